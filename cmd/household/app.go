package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"household/internal/backend"
	"household/internal/cli"
	"household/internal/config"
	"household/internal/connectivity"
	applog "household/internal/log"
	"household/internal/services"
	"household/internal/storage"
)

// app is what every subcommand works with.
type app struct {
	cfg      *config.Config
	logger   *applog.Logger
	store    *storage.SQLiteRepository
	deviceID string
	remote   *backend.Remote
	out      io.Writer
	now      func() time.Time
}

func openApp(ctx context.Context, cfg *config.Config, logger *applog.Logger, out io.Writer) (*app, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	rem, err := backend.New(ctx, bcfg, logger.Logger)
	if err != nil {
		return nil, err
	}

	store, id, err := cli.OpenLocalStore(ctx, logger, cfg.LocalDBPath)
	if err != nil {
		rem.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		deviceID: id,
		remote:   rem,
		out:      out,
		now:      time.Now,
	}, nil
}

func (a *app) Close() error {
	return errors.Join(a.remote.Close(), a.store.Close())
}

func (a *app) syncer(signal connectivity.Signal) *services.Syncer {
	u := services.NewUploader(a.store, a.remote.Gateway, signal)
	m := services.NewMerger(a.store, a.remote.Gateway, services.MergeOptions{PruneMissing: a.cfg.PruneMissing})
	return services.NewSyncer(u, m, a.store)
}

// probe returns a prober that has checked the remote once.
func (a *app) probe(ctx context.Context) *connectivity.Prober {
	p := connectivity.NewProber(a.remote.Pinger, a.cfg.ProbeInterval)
	p.Probe(ctx)
	return p
}

// withService runs fn against an ExpenseService whose writes are mirrored
// to the remote right away when it is reachable.
func (a *app) withService(ctx context.Context, fn func(*services.ExpenseService) error) error {
	d := services.NewDispatcher(a.store, a.remote.Gateway, a.probe(ctx), a.cfg.DispatchQueueSize)
	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}
	err := fn(services.NewExpenseService(a.store, a.deviceID, d))

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if serr := d.Stop(stopCtx); serr != nil {
		a.logger.Warn("Dispatcher did not finish", applog.FieldError, serr)
	}
	return err
}
