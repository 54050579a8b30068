package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"saldopay/internal/model"
	"saldopay/internal/money"
)

//go:embed credit.lua
var creditLuaScript string

//go:embed debit.lua
var debitLuaScript string

// Script reply statuses shared by credit.lua and debit.lua.
const (
	statusApplied      = 1
	statusDuplicate    = 0
	statusCacheMiss    = -1
	statusInsufficient = -2
)

// RedisClient is the slice of go-redis the ledger uses. *redis.Client
// satisfies it; tests substitute a fake.
type RedisClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// DB is the slice of pgxpool.Pool the ledger uses.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Settings are the business constants the ledger operates with.
type Settings struct {
	// DebitPriceCents is the fixed price of the debit action.
	DebitPriceCents int64
	// SignupBalanceCents seeds newly registered accounts.
	SignupBalanceCents int64
	// IdempotencyTTL bounds retention of processed-event marks in Redis.
	IdempotencyTTL time.Duration
}

// LedgerRepo is the single Account Store abstraction. Redis holds the hot
// balance and idempotency marks and is the only place mutations are decided;
// Postgres is the durable copy, written by the entry worker. The Lua scripts
// make every check-then-act atomic, so no in-process lock is ever held
// across a store call.
type LedgerRepo struct {
	redis    RedisClient
	db       DB
	bus      MessageBus
	settings Settings
}

func NewLedgerRepo(rdb RedisClient, db DB, bus MessageBus, settings Settings) *LedgerRepo {
	return &LedgerRepo{
		redis:    rdb,
		db:       db,
		bus:      bus,
		settings: settings,
	}
}

func balanceKey(accountID string) string {
	return fmt.Sprintf("balance:%s", accountID)
}

func idemKey(key string) string {
	return fmt.Sprintf("idem:%s", key)
}

// Credit applies an approved sale notification. A notification that is not
// approved mutates nothing and is not an error: the provider must receive an
// acknowledgment so it stops redelivering. Duplicate deliveries of the same
// sale code credit at most once.
func (r *LedgerRepo) Credit(ctx context.Context, n model.CreditNotification) (*model.CreditResult, error) {
	if !n.Approved() {
		slog.Info("ledger: ignoring non-approved sale", "account_id", n.AccountID, "status", string(n.SaleStatus))
		return &model.CreditResult{Credited: false}, nil
	}
	if n.AccountID == "" || n.SaleCode == "" {
		return nil, fmt.Errorf("%w: missing account id or sale code", ErrValidation)
	}
	amount, err := money.FromDecimal(n.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: sale amount must be positive", ErrValidation)
	}

	res, err := r.applyWithWarmup(ctx, creditLuaScript, n.AccountID, n.SaleCode, amount)
	if err != nil {
		return nil, err
	}

	switch res.status {
	case statusApplied:
		r.publishEntry(n.AccountID, model.EntryCredit, amount, n.SaleCode)
		return &model.CreditResult{NewBalanceCents: res.balance, Credited: true}, nil
	case statusDuplicate:
		slog.Info("ledger: duplicate sale delivery", "account_id", n.AccountID, "sale_code", n.SaleCode)
		balance, err := r.Balance(ctx, n.AccountID)
		if err != nil {
			return nil, err
		}
		return &model.CreditResult{NewBalanceCents: balance, Credited: false}, nil
	default:
		return nil, fmt.Errorf("%w: unknown script status %d", ErrStorage, res.status)
	}
}

// Debit charges the fixed price. The read-check-write runs inside debit.lua,
// so two concurrent debits against one price's worth of balance can never
// both pass the sufficient-funds check.
func (r *LedgerRepo) Debit(ctx context.Context, req model.DebitRequest) (*model.DebitResult, error) {
	if req.AccountID == "" {
		return nil, fmt.Errorf("%w: missing account id", ErrValidation)
	}
	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	res, err := r.applyWithWarmup(ctx, debitLuaScript, req.AccountID, key, r.settings.DebitPriceCents)
	if err != nil {
		return nil, err
	}

	switch res.status {
	case statusApplied:
		r.publishEntry(req.AccountID, model.EntryDebit, r.settings.DebitPriceCents, key)
		return &model.DebitResult{NewBalanceCents: res.balance, Status: "success"}, nil
	case statusDuplicate:
		balance, err := r.Balance(ctx, req.AccountID)
		if err != nil {
			return nil, err
		}
		return &model.DebitResult{NewBalanceCents: balance, Status: "duplicate"}, nil
	case statusInsufficient:
		return nil, fmt.Errorf("%w: balance %s below price %s", ErrInsufficientFunds,
			money.Format(res.balance), money.Format(r.settings.DebitPriceCents))
	default:
		return nil, fmt.Errorf("%w: unknown script status %d", ErrStorage, res.status)
	}
}

// Balance reads the current balance, warming the cache from Postgres on a
// cold start.
func (r *LedgerRepo) Balance(ctx context.Context, accountID string) (int64, error) {
	if accountID == "" {
		return 0, fmt.Errorf("%w: missing account id", ErrValidation)
	}
	balance, err := r.redis.Get(ctx, balanceKey(accountID)).Int64()
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: redis get: %v", ErrStorage, err)
	}
	return r.warmUpBalance(ctx, accountID)
}

type scriptResult struct {
	status  int64
	balance int64
}

// applyWithWarmup runs a mutation script; on a cache miss it loads the
// balance from Postgres and retries exactly once. A second miss means the
// key was evicted under contention, which surfaces as ErrConflict.
func (r *LedgerRepo) applyWithWarmup(ctx context.Context, script, accountID, idempotencyKey string, amount int64) (*scriptResult, error) {
	var res *scriptResult
	backoff := retry.WithMaxRetries(1, retry.NewConstant(25*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var evalErr error
		res, evalErr = r.eval(ctx, script, accountID, idempotencyKey, amount)
		if evalErr != nil {
			return evalErr
		}
		if res.status == statusCacheMiss {
			if _, warmErr := r.warmUpBalance(ctx, accountID); warmErr != nil {
				return warmErr
			}
			return retry.RetryableError(ErrConflict)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *LedgerRepo) eval(ctx context.Context, script, accountID, idempotencyKey string, amount int64) (*scriptResult, error) {
	keys := []string{balanceKey(accountID), idemKey(idempotencyKey)}
	args := []interface{}{amount, int64(r.settings.IdempotencyTTL.Seconds())}

	v, err := r.redis.Eval(ctx, script, keys, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: eval: %v", ErrStorage, err)
	}
	arr, ok := v.([]interface{})
	if !ok || len(arr) < 2 {
		return nil, fmt.Errorf("%w: unexpected script reply %v", ErrStorage, v)
	}
	status, ok := arr[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected script status %v", ErrStorage, arr[0])
	}
	balance, _ := arr[1].(int64)
	return &scriptResult{status: status, balance: balance}, nil
}

// warmUpBalance loads the durable balance into Redis. SETNX keeps a
// concurrent Lua mutation from being clobbered by a stale read.
func (r *LedgerRepo) warmUpBalance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	query := `SELECT amount FROM balances WHERE account_id = $1`
	err := r.db.QueryRow(ctx, query, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("%w: select balance: %v", ErrStorage, err)
	}

	if err := r.redis.SetNX(ctx, balanceKey(accountID), balance, 0).Err(); err != nil {
		return 0, fmt.Errorf("%w: warm up balance: %v", ErrStorage, err)
	}
	return balance, nil
}

// publishEntry emits the mutation onto the bus for the durable-apply worker.
// Publish failures are logged, not propagated: the Redis mutation already
// committed and the webhook/debit response must reflect it.
func (r *LedgerRepo) publishEntry(accountID, kind string, amount int64, idempotencyKey string) {
	event := model.LedgerEvent{
		AccountID:      accountID,
		Kind:           kind,
		AmountCents:    amount,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("ledger: marshal entry event", "error", err)
		return
	}
	if err := r.bus.Publish(TopicEntries, data); err != nil {
		slog.Error("ledger: publish entry event", "account_id", accountID, "key", idempotencyKey, "error", err)
	}
}

// SyncEntry applies a published mutation to Postgres exactly once. The
// idempotency key carries the at-most-once guarantee across worker restarts
// and NATS redeliveries.
func (r *LedgerRepo) SyncEntry(ctx context.Context, event model.LedgerEvent) error {
	if event.AccountID == "" || event.IdempotencyKey == "" {
		return fmt.Errorf("%w: entry event missing account id or key", ErrValidation)
	}
	delta := event.AmountCents
	if event.Kind == model.EntryDebit {
		delta = -delta
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO entries (account_id, kind, amount, idempotency_key, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		event.AccountID, event.Kind, event.AmountCents, event.IdempotencyKey, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: insert entry: %v", ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		// Entry already durable, nothing to apply.
		return nil
	}

	tag, err = tx.Exec(ctx,
		`UPDATE balances SET amount = amount + $1, updated_at = now()
		 WHERE account_id = $2 AND amount + $1 >= 0`,
		delta, event.AccountID,
	)
	if err != nil {
		return fmt.Errorf("%w: apply entry: %v", ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: entry %s would drive balance negative or account missing", ErrConflict, event.IdempotencyKey)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStorage, err)
	}
	return nil
}
