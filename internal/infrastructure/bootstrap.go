package infrastructure

import (
	"context"

	"saldopay/internal/config"
	"saldopay/internal/repository"
	"saldopay/internal/service"
	transportHTTP "saldopay/internal/transport/http"
	transportNATS "saldopay/internal/transport/nats"
	"saldopay/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the
// application. Everything is passed explicitly; there is no ambient global
// client or config anywhere.
func Bootstrap(ctx context.Context) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	db, err := connectPostgres(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, err
	}

	rdb, err := connectRedis(ctx, cfg.RedisAddr())
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	var cleanupFns []func()
	cleanupFns = append(cleanupFns, func() {
		db.Close()
		_ = rdb.Close()
	})

	nc, err := connectNats(cfg.NatsAddr())
	if err != nil {
		return nil, runCleanup(cleanupFns), err
	}
	cleanupFns = append(cleanupFns, nc.Close)

	bus := transportNATS.NewBus(nc)
	repo := repository.NewLedgerRepo(rdb, db, bus, repository.Settings{
		DebitPriceCents:    cfg.DebitPriceCents,
		SignupBalanceCents: cfg.SignupBalanceCents,
		IdempotencyTTL:     cfg.IdempotencyTTL,
	})
	var svc service.LedgerService = repo

	servers := []Server{
		worker.NewEntryWorker(svc, nc),
		transportNATS.NewHandler(svc, nc),
		transportHTTP.NewServer(cfg.ApiAddr(), svc),
	}

	return NewApp(servers), runCleanup(cleanupFns), nil
}

// runCleanup returns a single function that calls all cleanup functions in
// reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
