// Command household-export writes one month of this device's ledger to an
// xlsx workbook without touching the remote.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"household/internal/cli"
	"household/internal/config"
	"household/internal/core"
	"household/internal/export"
	applog "household/internal/log"
	"household/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat).WithComponent(applog.ComponentExport)

	month := flag.String("month", core.PeriodOf(time.Now()).String(), "period as YYYY-MM")
	out := flag.String("o", "", "output file (default household-YYYY-MM.xlsx)")
	dbPath := flag.String("db", cfg.LocalDBPath, "device database")
	flag.Parse()

	p, err := core.ParsePeriod(*month)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	path := *out
	if path == "" {
		path = fmt.Sprintf("household-%s.xlsx", p)
	}

	if err := run(context.Background(), *dbPath, p, path); err != nil {
		logger.Error("Export failed", applog.FieldPeriod, p.String(), applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Export written", applog.FieldPeriod, p.String(), "file", path)
}

func run(ctx context.Context, dbPath string, p core.Period, path string) error {
	store, err := storage.NewSQLiteRepository(ctx, dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := export.WritePeriod(ctx, store, p, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
