package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dshills/galeview/internal/testutil/fakebroker"
)

// main runs the in-memory broker as a standalone executable for local
// development against `galeview`.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Load configuration from environment variables
	config := fakebroker.LoadConfig()
	if err := config.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	b := fakebroker.New(config.Token, logger)
	if config.DataDir != "" {
		if err := b.LoadDir(config.DataDir); err != nil {
			logger.Error("failed to load fixtures", "error", err)
			os.Exit(1)
		}
	}

	srv := &http.Server{
		Addr:              config.Addr,
		Handler:           b.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("fake broker listening", "addr", config.Addr)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
