// Command household-api serves the household ledger over HTTP for devices
// configured with the http backend.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"household/internal/amqp"
	"household/internal/cli"
	"household/internal/config"
	apphttp "household/internal/http"
	"household/internal/ledger"
	applog "household/internal/log"
)

func main() {
	cli.LoadEnvFile()
	boot := config.Load()
	logger := cli.SetupLogger(boot.LogLevel, boot.LogFormat).WithComponent(applog.ComponentAPI)
	cfg := cli.LoadAndValidateConfig(logger, config.RoleAPI)

	ctx, cancel := cli.GracefulShutdown(logger)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server failed", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	store, err := ledger.Open(ctx, cfg.LedgerDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	var publisher apphttp.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			// Devices still converge on their periodic pass.
			logger.Warn("Change notices disabled", applog.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
		}
	}

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, store, publisher, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting household API", "port", cfg.Port, "ledger", cfg.LedgerDBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
