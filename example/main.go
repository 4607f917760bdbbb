package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/matthewmueller/liveserver"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	cfg := liveserver.DefaultConfig()
	cfg.Root = "example/public"
	cfg.Host = "127.0.0.1"
	cfg.Port = 3000
	server, err := liveserver.New(slog.Default(), cfg)
	if err != nil {
		slog.Error("Error starting server", "error", err)
		os.Exit(1)
	}
	slog.Info("Server started at " + server.Config().URL())
	if err := server.ListenAndServe(ctx); err != nil {
		slog.Error("Error in server", "error", err)
		os.Exit(1)
	}
}
