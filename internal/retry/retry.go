// Package retry runs operations with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Policy configures Do. The zero value is not useful; start from DefaultPolicy.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt (default: 3)
	MaxRetries int

	// BaseDelay is the wait before the first retry; each later wait doubles (default: 2s)
	BaseDelay time.Duration

	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		Sleep:      SleepContext,
	}
}

// Delay returns the wait before retry n (0-based): BaseDelay * 2^n.
func (p Policy) Delay(n int) time.Duration {
	return p.BaseDelay << n
}

// SleepContext blocks for d, returning early with ctx.Err() on cancellation.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. errors.Is/As still see through it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do calls op until it succeeds, returns a permanent error, or the retry
// budget is spent. The last error is returned on exhaustion.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var (
		result T
		err    error
	)
	for attempt := 0; ; attempt++ {
		result, err = op(ctx)
		if err == nil || IsPermanent(err) || attempt >= p.MaxRetries {
			return result, err
		}

		delay := p.Delay(attempt)
		slog.DebugContext(ctx, "Retrying after failure",
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		if serr := sleep(ctx, delay); serr != nil {
			return result, err
		}
	}
}
