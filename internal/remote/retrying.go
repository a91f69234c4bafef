package remote

import (
	"context"
	"time"

	"household/internal/core"
	"household/internal/retry"
)

// Retrying wraps every Gateway call in retry.Do.
type Retrying struct {
	next   Gateway
	policy retry.Policy
}

var _ Gateway = (*Retrying)(nil)

func WithRetry(next Gateway, policy retry.Policy) *Retrying {
	return &Retrying{next: next, policy: policy}
}

func (g *Retrying) CreateOrUpdate(ctx context.Context, r core.ExpenseRecord) (UpsertResult, error) {
	return retry.Do(ctx, g.policy, func(ctx context.Context) (UpsertResult, error) {
		return g.next.CreateOrUpdate(ctx, r)
	})
}

func (g *Retrying) FetchByPeriod(ctx context.Context, p core.Period) ([]core.ExpenseRecord, error) {
	return retry.Do(ctx, g.policy, func(ctx context.Context) ([]core.ExpenseRecord, error) {
		return g.next.FetchByPeriod(ctx, p)
	})
}

func (g *Retrying) Update(ctx context.Context, id string, patch core.Patch, updatedAt time.Time, deviceID string) (UpdateResult, error) {
	return retry.Do(ctx, g.policy, func(ctx context.Context) (UpdateResult, error) {
		return g.next.Update(ctx, id, patch, updatedAt, deviceID)
	})
}

func (g *Retrying) Delete(ctx context.Context, id string) (DeleteResult, error) {
	return retry.Do(ctx, g.policy, func(ctx context.Context) (DeleteResult, error) {
		return g.next.Delete(ctx, id)
	})
}

// Ping is not retried: probes want a fast answer.
func (g *Retrying) Ping(ctx context.Context) error {
	if p, ok := g.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
