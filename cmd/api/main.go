package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"saldopay/internal/infrastructure"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := infrastructure.Bootstrap(ctx)
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	slog.Info("saldopay starting")

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("app stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("saldopay stopped")
}
