// Package cli holds the start-up steps shared by the household binaries.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"household/internal/config"
	"household/internal/device"
	applog "household/internal/log"
	"household/internal/storage"
)

// SetupLogger builds the process logger and makes it the slog default.
// An unknown level falls back to info.
func SetupLogger(level, format string) *applog.Logger {
	lvl, err := applog.ParseLevel(level)
	cfg := applog.DefaultConfig()
	cfg.Level = lvl
	cfg.Format = format
	cfg.Output = os.Stderr
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	if err != nil {
		logger.Warn("Falling back to info logging", applog.FieldError, err)
	}
	return logger
}

// LoadEnvFile loads .env files for local development. Missing files are
// ignored; variables already set in the environment win.
func LoadEnvFile(paths ...string) {
	_ = godotenv.Load(paths...)
}

// LoadAndValidateConfig exits the process when the configuration is invalid.
func LoadAndValidateConfig(logger *applog.Logger, role config.Role) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(role); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// OpenLocalStore opens the device database and returns it with the
// device id, minting one on first run.
func OpenLocalStore(ctx context.Context, logger *applog.Logger, path string) (*storage.SQLiteRepository, string, error) {
	repo, err := storage.NewSQLiteRepository(ctx, path)
	if err != nil {
		return nil, "", fmt.Errorf("open local store %s: %w", path, err)
	}
	id, err := device.Ensure(ctx, repo)
	if err != nil {
		repo.Close()
		return nil, "", err
	}
	logger.DebugContext(ctx, "Local store ready", "path", path, applog.FieldDeviceID, id)
	return repo, id, nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM.
func GracefulShutdown(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
