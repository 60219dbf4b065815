package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pario-ai/tokenash/pkg/config"
	"github.com/pario-ai/tokenash/pkg/history"
	"github.com/pario-ai/tokenash/pkg/logger"
)

// loadConfig reads the file named by --config, falling back to defaults when
// it does not exist.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.LoadOrDefault(path)
}

// setup loads the config and returns a context carrying the logger. The
// returned func flushes the logger.
func setup(cmd *cobra.Command) (context.Context, *config.Config, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logger.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx := logger.ContextWithLogger(cmd.Context(), log)
	return ctx, cfg, func() { _ = log.Sync() }, nil
}

func openStore(ctx context.Context, cfg *config.Config) (history.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := history.Open(cfg.Storage.Driver, cfg.StoragePath())
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Debug("ledger opened",
		zap.String("driver", cfg.Storage.Driver),
		zap.String("path", cfg.StoragePath()))
	return store, nil
}
