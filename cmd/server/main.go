// Package main is the entry point of the signage management server.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/subitlab-buf/sms4-backend/internal/config"
	"github.com/subitlab-buf/sms4-backend/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.ResourcePath, 0o755); err != nil {
		logger.Error("failed to create resource directory",
			slog.String("dir", cfg.ResourcePath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if dbDir := filepath.Dir(cfg.DBPath); dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
