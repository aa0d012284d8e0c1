package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/feverd/feverd/internal/app"
	"github.com/feverd/feverd/internal/config"
	"github.com/feverd/feverd/internal/logging"
)

func main() {
	cfg := config.Load()

	application, err := app.New(cfg)
	if err != nil {
		logger := logging.New(logging.ParseLevel(cfg.Logging.Level))
		logger.Error("Failed to initialize", logging.WithField("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		application.Logger.Info("Shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			application.Logger.Error("Shutdown error", logging.WithField("error", err.Error()))
		}
		cancel()
	}()

	if err := application.Run(ctx); err != nil && err != http.ErrServerClosed {
		application.Logger.Error("HTTP server error", logging.WithField("error", err.Error()))
		os.Exit(1)
	}
}
