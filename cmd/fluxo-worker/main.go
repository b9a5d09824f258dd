package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fluxo/internal/amqp"
	"fluxo/internal/backend"
	"fluxo/internal/config"
	"fluxo/internal/log"
	"fluxo/internal/rates"
	"fluxo/internal/services"
	"fluxo/internal/storage"
	"fluxo/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger := log.New(log.Config{
		Level:     log.ParseLevel(os.Getenv("LOG_LEVEL")),
		Component: log.ComponentWorker,
	})
	log.SetDefault(logger)

	logger.Info("starting fluxo-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source, err := backend.NewTableSource(ctx, cfg, logger)
	if err != nil {
		logger.Error("backend initialization failed", log.FieldError, err.Error(), log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if source.Cleanup != nil {
			source.Cleanup()
		}
	}()

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("storage initialization failed", log.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ratesClient := rates.New(cfg.RatesURL, cfg.BaseCurrency, cfg.RatesTTL, logger)
	ingest := services.NewIngest(source.Source, ratesClient, backend.IngestOptions(cfg), logger)

	holder := &services.SnapshotHolder{}
	refreshWorker := worker.NewRefreshWorker(ingest, repo, holder, cfg.RefreshInterval, logger)

	// One refresh up front so a fresh deployment has a snapshot before the
	// first tick or bus message.
	if err := refreshWorker.Refresh(ctx, "startup"); err != nil {
		logger.Error("startup refresh failed", log.FieldError, err.Error())
	}

	var consumer worker.RefreshConsumer
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("message bus initialization failed", log.FieldError, err.Error())
			os.Exit(1)
		}
		defer amqpClient.Close()
		consumer = amqpClient
	} else {
		logger.Info("message bus disabled, running on interval only")
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	if err := refreshWorker.Run(ctx, consumer); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("worker stopped gracefully")
}
