package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func testPolicy(rs *recordingSleep) Policy {
	p := DefaultPolicy()
	p.Sleep = rs.sleep
	return p
}

func TestDelaySchedule(t *testing.T) {
	p := DefaultPolicy()
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for n, w := range want {
		if got := p.Delay(n); got != w {
			t.Errorf("Delay(%d) = %v, want %v", n, got, w)
		}
	}
}

func TestDoSucceedsOnThirdAttempt(t *testing.T) {
	rs := &recordingSleep{}
	calls := 0
	got, err := Do(context.Background(), testPolicy(rs), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("network down")
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("Do = %q, %v", got, err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	// Two waits of 2s then 4s; no third wait.
	if len(rs.delays) != 2 || rs.delays[0] != 2*time.Second || rs.delays[1] != 4*time.Second {
		t.Fatalf("unexpected delays %v", rs.delays)
	}
}

func TestDoExhaustsAndReturnsLastError(t *testing.T) {
	rs := &recordingSleep{}
	calls := 0
	_, err := Do(context.Background(), testPolicy(rs), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("attempt failed")
	})
	if err == nil || err.Error() != "attempt failed" {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 1 attempt + 3 retries, got %d", calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(rs.delays) != len(want) {
		t.Fatalf("unexpected delays %v", rs.delays)
	}
	for i := range want {
		if rs.delays[i] != want[i] {
			t.Fatalf("delay %d = %v, want %v", i, rs.delays[i], want[i])
		}
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	rs := &recordingSleep{}
	invalid := errors.New("amount must be positive")
	calls := 0
	_, err := Do(context.Background(), testPolicy(rs), func(context.Context) (int, error) {
		calls++
		return 0, Permanent(invalid)
	})
	if !errors.Is(err, invalid) || !IsPermanent(err) {
		t.Fatalf("expected permanent wrapped error, got %v", err)
	}
	if calls != 1 || len(rs.delays) != 0 {
		t.Fatalf("permanent errors must not retry: calls=%d delays=%v", calls, rs.delays)
	}
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := DefaultPolicy()
	p.BaseDelay = time.Hour
	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, p, func(context.Context) (int, error) {
			calls++
			return 0, errors.New("offline")
		})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestPermanentNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) must be nil")
	}
}
