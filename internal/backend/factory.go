package backend

import (
	"context"
	"fmt"
	"log/slog"

	"household/internal/remote"
	"household/internal/remote/httpapi"
	"household/internal/remote/memory"
	"household/internal/remote/sheets"
)

// New builds the backend cfg selects and wraps its gateway in retries.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Remote, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Retry.Sleep == nil || cfg.Retry.BaseDelay <= 0 {
		return nil, fmt.Errorf("backend %s: retry policy not configured", cfg.Kind)
	}

	var (
		gw      remote.Gateway
		budgets remote.BudgetStore
	)
	switch cfg.Kind {
	case HTTP:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("http backend requires a base URL")
		}
		c := httpapi.New(cfg.BaseURL, nil)
		gw, budgets = c, c
		logger.InfoContext(ctx, "Initialized HTTP backend", "base_url", cfg.BaseURL)

	case Sheets:
		c, err := sheets.New(ctx, cfg.Sheets)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		gw = c
		logger.InfoContext(ctx, "Initialized Google Sheets backend", "spreadsheet_id", cfg.Sheets.SpreadsheetID)

	case Memory:
		s := memory.New()
		gw, budgets = s, s
		logger.InfoContext(ctx, "Initialized memory backend")

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Kind)
	}

	wrapped := remote.WithRetry(gw, cfg.Retry)
	return &Remote{
		Kind:    cfg.Kind,
		Gateway: wrapped,
		Pinger:  wrapped,
		Budgets: budgets,
	}, nil
}
