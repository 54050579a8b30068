package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"saldopay/internal/model"
)

const pgUniqueViolation = "23505"

// Register creates an account with a bcrypt-hashed password and seeds its
// balance, durably first, then in the cache. Only the ledger mutates the
// balance afterwards.
func (r *LedgerRepo) Register(ctx context.Context, creds model.Credentials) (*model.Account, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %v", ErrStorage, err)
	}

	account := &model.Account{
		ID:           uuid.NewString(),
		Username:     creds.Username,
		BalanceCents: r.settings.SignupBalanceCents,
		CreatedAt:    time.Now().UTC(),
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO accounts (id, username, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		account.ID, account.Username, string(hash), account.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("%w: insert account: %v", ErrStorage, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO balances (account_id, amount) VALUES ($1, $2)`,
		account.ID, account.BalanceCents,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: insert balance: %v", ErrStorage, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrStorage, err)
	}

	// Best effort: the cache warms itself from Postgres on first use anyway.
	if err := r.redis.SetNX(ctx, balanceKey(account.ID), account.BalanceCents, 0).Err(); err != nil {
		slog.Warn("ledger: seed balance cache", "account_id", account.ID, "error", err)
	}

	return account, nil
}

// Authenticate verifies the credentials and returns the account with its
// current balance.
func (r *LedgerRepo) Authenticate(ctx context.Context, creds model.Credentials) (*model.Account, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrValidation)
	}

	var (
		account model.Account
		hash    string
	)
	query := `SELECT id, username, password_hash, created_at FROM accounts WHERE username = $1`
	err := r.db.QueryRow(ctx, query, creds.Username).Scan(&account.ID, &account.Username, &hash, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("%w: select account: %v", ErrStorage, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password)); err != nil {
		return nil, ErrBadCredentials
	}

	balance, err := r.Balance(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	account.BalanceCents = balance
	return &account, nil
}
