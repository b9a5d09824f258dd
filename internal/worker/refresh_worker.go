package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"fluxo/internal/amqp"
	"fluxo/internal/log"
	"fluxo/internal/services"
)

// SnapshotStore persists finished snapshots.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *services.Snapshot) error
}

// RefreshConsumer delivers refresh requests from the message bus.
type RefreshConsumer interface {
	ConsumeRefreshRequests(ctx context.Context, handler func(*amqp.RefreshRequestMessage) error) error
}

// RefreshWorker re-ingests the source tables on request and on a fixed
// interval, persisting each snapshot and publishing it to the holder.
type RefreshWorker struct {
	ingest   *services.Ingest
	store    SnapshotStore
	holder   *services.SnapshotHolder
	interval time.Duration
	logger   *log.Logger
}

func NewRefreshWorker(ingest *services.Ingest, store SnapshotStore, holder *services.SnapshotHolder, interval time.Duration, logger *log.Logger) *RefreshWorker {
	return &RefreshWorker{
		ingest:   ingest,
		store:    store,
		holder:   holder,
		interval: interval,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// Refresh runs one full ingest, persists the snapshot and makes it current.
// The snapshot is published even when persisting fails; serving fresh data
// beats losing it.
func (w *RefreshWorker) Refresh(ctx context.Context, reason string) error {
	start := time.Now()
	snap, err := w.ingest.Run(ctx)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	var saveErr error
	if w.store != nil {
		if saveErr = w.store.SaveSnapshot(ctx, snap); saveErr != nil {
			w.logger.ErrorContext(ctx, "snapshot persist failed", log.FieldError, saveErr.Error())
		}
	}
	w.holder.Replace(snap)

	w.logger.InfoContext(ctx, "refresh complete",
		"reason", reason,
		log.FieldOccurrences, len(snap.Occurrences),
		log.FieldWarnings, len(snap.Warnings),
		log.FieldDuration, time.Since(start).Milliseconds(),
	)
	if saveErr != nil {
		return fmt.Errorf("persist snapshot: %w", saveErr)
	}
	return nil
}

// Run blocks until the context ends, serving bus requests and the periodic
// timer. consumer may be nil when the bus is disabled.
func (w *RefreshWorker) Run(ctx context.Context, consumer RefreshConsumer) error {
	g, gctx := errgroup.WithContext(ctx)

	if consumer != nil {
		g.Go(func() error {
			return consumer.ConsumeRefreshRequests(gctx, func(msg *amqp.RefreshRequestMessage) error {
				w.logger.InfoContext(gctx, "refresh requested",
					"reason", msg.Reason, "requested_by", msg.RequestedBy)
				return w.Refresh(gctx, msg.Reason)
			})
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				if err := w.Refresh(gctx, "scheduled"); err != nil {
					// Periodic failures are retried on the next tick.
					w.logger.ErrorContext(gctx, "scheduled refresh failed", log.FieldError, err.Error())
				}
			}
		}
	})

	return g.Wait()
}
