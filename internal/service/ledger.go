package service

import (
	"context"

	"saldopay/internal/model"
)

// LedgerService defines the business operations of the balance ledger.
// All transport layers (HTTP, NATS) depend on this interface, not on the
// concrete repo.
type LedgerService interface {
	// Credit applies an approved sale notification to the named account.
	// Duplicate deliveries of the same sale credit at most once.
	Credit(ctx context.Context, n model.CreditNotification) (*model.CreditResult, error)
	// Debit charges the fixed price against the account, atomically refusing
	// when the balance does not cover it.
	Debit(ctx context.Context, req model.DebitRequest) (*model.DebitResult, error)
	Balance(ctx context.Context, accountID string) (int64, error)
	Register(ctx context.Context, creds model.Credentials) (*model.Account, error)
	Authenticate(ctx context.Context, creds model.Credentials) (*model.Account, error)
	// SyncEntry persists a ledger event into Postgres exactly once.
	SyncEntry(ctx context.Context, event model.LedgerEvent) error
}
