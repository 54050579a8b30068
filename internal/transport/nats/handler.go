package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"saldopay/internal/model"
	"saldopay/internal/repository"
	"saldopay/internal/service"
)

// Handler subscribes to NATS command topics and delegates to the ledger
// service, so internal callers can trigger debits without going through HTTP.
type Handler struct {
	svc  service.LedgerService
	nc   *nats.Conn
	subs []*nats.Subscription
}

func NewHandler(svc service.LedgerService, nc *nats.Conn) *Handler {
	return &Handler{svc: svc, nc: nc}
}

// Start subscribes to command topics and blocks until ctx is cancelled.
func (h *Handler) Start(ctx context.Context) error {
	sub, err := h.nc.QueueSubscribe(repository.TopicDebitCommands, "ledger_group", func(m *nats.Msg) {
		var req model.DebitRequest
		if err := json.Unmarshal(m.Data, &req); err != nil {
			slog.Error("nats: failed to unmarshal debit command", "error", err)
			return
		}
		if _, err := h.svc.Debit(ctx, req); err != nil {
			slog.Error("nats: debit failed", "account_id", req.AccountID, "error", err)
		}
	})
	if err != nil {
		return err
	}
	h.subs = append(h.subs, sub)

	slog.Info("NATS command handler is running")

	<-ctx.Done()
	slog.Info("NATS command handler shutting down, draining subscriptions...")

	for _, s := range h.subs {
		_ = s.Drain()
	}
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	for _, s := range h.subs {
		_ = s.Unsubscribe()
	}
	return nil
}
