// Package backend builds the remote gateway a device syncs against.
package backend

import (
	"fmt"

	"household/internal/config"
	"household/internal/remote"
	"household/internal/remote/sheets"
	"household/internal/retry"
)

// Kind names a remote implementation.
type Kind string

const (
	HTTP   Kind = config.BackendHTTP
	Sheets Kind = config.BackendSheets
	Memory Kind = config.BackendMemory
)

func (k Kind) String() string {
	return string(k)
}

func (k Kind) IsValid() bool {
	switch k {
	case HTTP, Sheets, Memory:
		return true
	default:
		return false
	}
}

type Config struct {
	Kind    Kind
	BaseURL string
	Sheets  sheets.Config
	Retry   retry.Policy
}

// Remote is a constructed backend. Budgets is nil when the backend keeps
// no budget values.
type Remote struct {
	Kind    Kind
	Gateway remote.Gateway
	Pinger  remote.Pinger
	Budgets remote.BudgetStore
	Cleanup func() error
}

// Close runs the cleanup hook, if any.
func (r *Remote) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// FromAppConfig maps process settings to a backend config.
func FromAppConfig(c *config.Config) (Config, error) {
	if c == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	kind := Kind(c.RemoteBackend)
	if !kind.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", c.RemoteBackend)
	}

	policy := retry.DefaultPolicy()
	policy.MaxRetries = c.RetryMax
	if c.RetryBaseDelay > 0 {
		policy.BaseDelay = c.RetryBaseDelay
	}

	return Config{
		Kind:    kind,
		BaseURL: c.RemoteBaseURL,
		Sheets: sheets.Config{
			SpreadsheetID:   c.GoogleSpreadsheetID,
			SheetName:       c.GoogleSheetName,
			CredentialsJSON: c.GoogleServiceAccountJSON,
			CredentialsFile: c.GoogleServiceAccountFile,
			OAuthClientJSON: c.GoogleOAuthClientJSON,
			OAuthClientFile: c.GoogleOAuthClientFile,
			OAuthTokenFile:  c.GoogleOAuthTokenFile,
		},
		Retry: policy,
	}, nil
}
