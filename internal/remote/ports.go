// Package remote defines the gateway to the shared ledger every device
// synchronizes against, plus the retrying wrapper around it.
package remote

import (
	"context"
	"errors"
	"time"

	"household/internal/core"
)

// ErrRejected is returned when the remote refuses a write as invalid.
// It is never retried.
var ErrRejected = errors.New("rejected by remote")

type (
	// UpsertResult reports what CreateOrUpdate did. Both false means the
	// remote already held an equal or newer copy.
	UpsertResult struct {
		Created bool `json:"created,omitempty"`
		Updated bool `json:"updated"`
	}

	// UpdateResult: Success is false when the remote has no record with the id.
	UpdateResult struct {
		Success bool `json:"success"`
		Updated bool `json:"updated"`
	}

	DeleteResult struct {
		Success bool `json:"success"`
	}

	// Gateway is the remote ledger as seen from a device.
	Gateway interface {
		// CreateOrUpdate stores r unless the remote copy is at least as new.
		CreateOrUpdate(ctx context.Context, r core.ExpenseRecord) (UpsertResult, error)
		FetchByPeriod(ctx context.Context, p core.Period) ([]core.ExpenseRecord, error)
		// Update applies patch if the remote copy is older than updatedAt.
		Update(ctx context.Context, id string, patch core.Patch, updatedAt time.Time, deviceID string) (UpdateResult, error)
		Delete(ctx context.Context, id string) (DeleteResult, error)
	}

	// BudgetStore is the key-by-month budget value. No conflict handling.
	BudgetStore interface {
		GetBudget(ctx context.Context, p core.Period) (int64, bool, error)
		SetBudget(ctx context.Context, p core.Period, amount int64) error
	}

	// Pinger is implemented by gateways that can report reachability.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)
