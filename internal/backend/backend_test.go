package backend

import (
	"context"
	"strings"
	"testing"
	"time"

	"household/internal/config"
	"household/internal/retry"
)

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(&config.Config{
		RemoteBackend:            "sheets",
		RetryMax:                 2,
		RetryBaseDelay:           time.Second,
		GoogleSpreadsheetID:      "sid",
		GoogleServiceAccountJSON: "{}",
	})
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Kind != Sheets || cfg.Retry.MaxRetries != 2 || cfg.Retry.BaseDelay != time.Second || cfg.Retry.Sleep == nil {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Sheets.SpreadsheetID != "sid" || cfg.Sheets.CredentialsJSON != "{}" {
		t.Fatalf("sheets config not mapped: %+v", cfg.Sheets)
	}

	if _, err := FromAppConfig(&config.Config{RemoteBackend: "ftp"}); err == nil {
		t.Fatal("expected invalid backend error")
	}
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected nil config error")
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	policy := retry.DefaultPolicy()

	tests := []struct {
		name    string
		cfg     Config
		budgets bool
		errMsg  string
	}{
		{"memory", Config{Kind: Memory, Retry: policy}, true, ""},
		{"http", Config{Kind: HTTP, BaseURL: "http://localhost:8081", Retry: policy}, true, ""},
		{"http without url", Config{Kind: HTTP, Retry: policy}, false, "requires a base URL"},
		{"sheets without credentials", Config{Kind: Sheets, Retry: policy}, false, "missing service account credentials"},
		{"unknown", Config{Kind: "ftp", Retry: policy}, false, "unsupported backend type"},
		{"no retry policy", Config{Kind: Memory}, false, "retry policy not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(ctx, tt.cfg, nil)
			if tt.errMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
					t.Fatalf("want error containing %q, got %v", tt.errMsg, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer r.Close()
			if r.Gateway == nil || r.Pinger == nil {
				t.Fatal("gateway not built")
			}
			if (r.Budgets != nil) != tt.budgets {
				t.Fatalf("budgets = %v, want %v", r.Budgets != nil, tt.budgets)
			}
		})
	}
}

func TestMemoryBackendPings(t *testing.T) {
	r, err := New(context.Background(), Config{Kind: Memory, Retry: retry.DefaultPolicy()}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Pinger.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
