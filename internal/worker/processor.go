package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"saldopay/internal/model"
	"saldopay/internal/repository"
	"saldopay/internal/service"
)

// EntryWorker drains the ledger.entries topic and makes every applied
// mutation durable in Postgres. The idempotency key on each event keeps
// redeliveries from applying twice.
type EntryWorker struct {
	svc      service.LedgerService
	natsConn *nats.Conn
}

func NewEntryWorker(svc service.LedgerService, nc *nats.Conn) *EntryWorker {
	return &EntryWorker{
		svc:      svc,
		natsConn: nc,
	}
}

// Run subscribes to the entries topic and blocks until ctx is cancelled.
func (w *EntryWorker) Run(ctx context.Context) error {
	// QueueSubscribe: with several API replicas, each event reaches exactly
	// one worker in the group.
	sub, err := w.natsConn.QueueSubscribe(repository.TopicEntries, "entry_workers", func(m *nats.Msg) {
		var event model.LedgerEvent
		if err := json.Unmarshal(m.Data, &event); err != nil {
			slog.Error("worker: failed to unmarshal entry event", "error", err)
			return
		}

		if err := w.svc.SyncEntry(ctx, event); err != nil {
			slog.Error("worker: failed to sync entry",
				"account_id", event.AccountID,
				"key", event.IdempotencyKey,
				"error", err,
			)
			return
		}

		slog.Info("worker: entry synced",
			"account_id", event.AccountID,
			"kind", event.Kind,
			"key", event.IdempotencyKey,
		)
	})
	if err != nil {
		return fmt.Errorf("worker: failed to subscribe: %w", err)
	}

	slog.Info("entry worker is running")

	<-ctx.Done()

	slog.Info("entry worker shutting down, draining subscription...")
	return sub.Drain()
}

// Start implements the infrastructure.Server interface.
func (w *EntryWorker) Start(ctx context.Context) error {
	return w.Run(ctx)
}

// Stop implements the infrastructure.Server interface (shutdown is via ctx).
func (w *EntryWorker) Stop(ctx context.Context) error {
	return nil
}
