package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// fakeStore mimics the Redis side of the ledger: one mutex guards every
// operation, giving the same atomicity the Lua scripts give the real client.
// Eval recognises the two embedded scripts by their mutation command.
type fakeStore struct {
	mu      sync.Mutex
	vals    map[string]string
	evalErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{vals: make(map[string]string)}
}

func (f *fakeStore) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.evalErr != nil {
		return redis.NewCmdResult(nil, f.evalErr)
	}

	balKey, idKey := keys[0], keys[1]
	amount := args[0].(int64)

	if _, dup := f.vals[idKey]; dup {
		return redis.NewCmdResult([]interface{}{int64(0), int64(0)}, nil)
	}
	balStr, ok := f.vals[balKey]
	if !ok {
		return redis.NewCmdResult([]interface{}{int64(-1), int64(0)}, nil)
	}
	balance, _ := strconv.ParseInt(balStr, 10, 64)

	credit := strings.Contains(script, "INCRBY")
	if !credit && balance < amount {
		return redis.NewCmdResult([]interface{}{int64(-2), balance}, nil)
	}
	if credit {
		balance += amount
	} else {
		balance -= amount
	}
	f.vals[balKey] = strconv.FormatInt(balance, 10)
	f.vals[idKey] = "1"
	return redis.NewCmdResult([]interface{}{int64(1), balance}, nil)
}

func (f *fakeStore) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vals[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.vals[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.vals[key] = toString(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeStore) balance(accountID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, _ := strconv.ParseInt(f.vals[balanceKey(accountID)], 10, 64)
	return v
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}

// evictingStore reports a cache miss from every script run, as if the
// balance key were evicted again between warm-up and eval.
type evictingStore struct {
	*fakeStore
}

func (s *evictingStore) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return redis.NewCmdResult([]interface{}{int64(-1), int64(0)}, nil)
}

// fakeRow satisfies pgx.Row with a caller-supplied Scan.
type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

func noRows(dest ...any) error { return pgx.ErrNoRows }

// fakeDB satisfies DB with caller-supplied hooks.
type fakeDB struct {
	queryRow func(sql string, args []any) pgx.Row
	exec     func(sql string, args []any) (pgconn.CommandTag, error)
	begin    func() (pgx.Tx, error)
}

func (d *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if d.queryRow == nil {
		return fakeRow{scan: noRows}
	}
	return d.queryRow(sql, args)
}

func (d *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if d.exec == nil {
		return pgconn.CommandTag{}, nil
	}
	return d.exec(sql, args)
}

func (d *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if d.begin == nil {
		return nil, errors.New("fakeDB: no begin hook")
	}
	return d.begin()
}

// dbWithBalance returns a fakeDB whose balances table holds one row.
func dbWithBalance(accountID string, cents int64) *fakeDB {
	return &fakeDB{
		queryRow: func(sql string, args []any) pgx.Row {
			return fakeRow{scan: func(dest ...any) error {
				if len(args) < 1 || args[0] != accountID {
					return pgx.ErrNoRows
				}
				*(dest[0].(*int64)) = cents
				return nil
			}}
		},
	}
}

// fakeTx overrides the pgx.Tx methods SyncEntry and Register use; the rest
// panic if reached.
type fakeTx struct {
	pgx.Tx
	exec       func(sql string, args []any) (pgconn.CommandTag, error)
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.exec(sql, args)
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}

// memBus collects published events.
type memBus struct {
	mu     sync.Mutex
	topics []string
	events [][]byte
	err    error
}

func (b *memBus) Publish(topic string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.topics = append(b.topics, topic)
	b.events = append(b.events, data)
	return nil
}

func (b *memBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
