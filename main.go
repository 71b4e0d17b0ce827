package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mbocsi/goreverb/listener"
)

func main() {
	cfg, err := listener.LoadConfig()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Client.LogLevel})
	slog.SetDefault(slog.New(handler))

	l, err := listener.New(cfg)
	if err != nil {
		slog.Error("Failed to create listener", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := l.Run(ctx); err != nil {
		slog.Error("Listener exited", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
