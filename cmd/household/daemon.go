package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"household/internal/amqp"
	"household/internal/connectivity"
	applog "household/internal/log"
	"household/internal/worker"
)

// cmdDaemon keeps the device in sync until interrupted: a periodic and
// reconnect-triggered pass, plus an immediate pass whenever another device
// announces a change.
func cmdDaemon(ctx context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return errUsage
	}

	prober := connectivity.NewProber(a.remote.Pinger, a.cfg.ProbeInterval)
	if err := prober.Start(ctx); err != nil {
		return fmt.Errorf("start prober: %w", err)
	}
	sched := worker.NewScheduler(a.syncer(prober), prober, worker.SchedulerConfig{Interval: a.cfg.SyncInterval})
	if err := sched.Start(ctx); err != nil {
		stopWithin(a, "prober", prober.Stop)
		return fmt.Errorf("start scheduler: %w", err)
	}

	a.logger.Info("Sync daemon started",
		applog.FieldDeviceID, a.deviceID,
		"backend", string(a.remote.Kind),
		"interval", a.cfg.SyncInterval.String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if a.cfg.AMQPURL != "" {
		client, err := amqp.NewClient(a.cfg.AMQPURL, a.cfg.AMQPExchange)
		if err != nil {
			a.logger.Warn("Change notices disabled", applog.FieldError, err)
		} else {
			defer client.Close()
			g.Go(func() error {
				err := client.Subscribe(gctx, func(_ context.Context, n amqp.ChangeNotice) error {
					if n.DeviceID == a.deviceID {
						return nil
					}
					a.logger.Debug("Change notice received", applog.FieldOperation, n.Op, applog.FieldRecordID, n.ID)
					sched.Nudge()
					return nil
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		}
	}

	err := g.Wait()

	stopWithin(a, "scheduler", sched.Stop)
	stopWithin(a, "prober", prober.Stop)
	a.logger.Info("Sync daemon stopped")
	return err
}

func stopWithin(a *app, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		a.logger.Warn("Shutdown incomplete", applog.FieldComponent, name, applog.FieldError, err)
	}
}
