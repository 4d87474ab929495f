// Package main is the entry point for the mutual-radar server.
//
// main stays minimal: load config, build the logger, build the server, run
// it. Everything else lives under internal/.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/mutual-radar/internal/config"
	"github.com/sakif/mutual-radar/internal/logging"
	"github.com/sakif/mutual-radar/internal/server"
)

func main() {
	// Config errors go to stderr: the logger's level and format come from
	// the config itself.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
