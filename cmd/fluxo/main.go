package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fluxo/internal/amqp"
	"fluxo/internal/backend"
	"fluxo/internal/config"
	apphttp "fluxo/internal/http"
	"fluxo/internal/log"
	"fluxo/internal/rates"
	"fluxo/internal/services"
	"fluxo/internal/storage"
)

func main() {
	// .env is for local development; absent in containers.
	_ = godotenv.Load()

	logger := log.New(log.Config{
		Level:     log.ParseLevel(os.Getenv("LOG_LEVEL")),
		Component: log.ComponentApp,
	})
	log.SetDefault(logger)

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

	ratesClient := rates.New(cfg.RatesURL, cfg.BaseCurrency, cfg.RatesTTL, logger)
	ingest := services.NewIngest(source.Source, ratesClient, backend.IngestOptions(cfg), logger)

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("storage initialization failed", log.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	holder := &services.SnapshotHolder{}

	// Boot with a fresh ingest; fall back to the persisted snapshot so the
	// API can serve stale data while the source is unreachable.
	if snap, err := ingest.Run(ctx); err == nil {
		holder.Replace(snap)
		if err := repo.SaveSnapshot(ctx, snap); err != nil {
			logger.Warn("startup snapshot persist failed", log.FieldError, err.Error())
		}
	} else {
		logger.Warn("startup ingest failed, trying persisted snapshot", log.FieldError, err.Error())
		if snap, loadErr := repo.LoadSnapshot(ctx); loadErr == nil {
			holder.Replace(snap)
			logger.Info("serving persisted snapshot", log.FieldOccurrences, len(snap.Occurrences))
		} else if !errors.Is(loadErr, storage.ErrNoSnapshot) {
			logger.Error("persisted snapshot load failed", log.FieldError, loadErr.Error())
		}
	}

	var refresher apphttp.RefreshPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("message bus unavailable, refresh endpoint disabled", log.FieldError, err.Error())
		} else {
			defer amqpClient.Close()
			refresher = amqpClient
		}
	}

	srv := apphttp.NewServer(cfg, holder, refresher, logger)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", log.FieldError, err.Error())
		}
		cancel()
	}()

	logger.Info("starting fluxo server",
		"port", cfg.Port, log.FieldBackend, cfg.DataBackend, "ready", holder.Current() != nil)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("server stopped gracefully")
}
