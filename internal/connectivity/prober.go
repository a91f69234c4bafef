package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"household/internal/remote"
)

// Prober polls the remote and turns the answers into a Signal.
type Prober struct {
	pinger   remote.Pinger
	interval time.Duration
	timeout  time.Duration

	state  sync.Mutex
	online bool
	ch     chan struct{}

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

var _ Signal = (*Prober)(nil)

// NewProber creates a prober that starts offline until the first probe.
func NewProber(p remote.Pinger, interval time.Duration) *Prober {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	timeout := 5 * time.Second
	if interval < timeout {
		timeout = interval
	}
	return &Prober{
		pinger:   p,
		interval: interval,
		timeout:  timeout,
		ch:       make(chan struct{}, 1),
	}
}

func (p *Prober) Online() bool {
	p.state.Lock()
	defer p.state.Unlock()
	return p.online
}

func (p *Prober) Reconnected() <-chan struct{} { return p.ch }

// Probe pings once and updates the state.
func (p *Prober) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err := p.pinger.Ping(ctx)

	p.state.Lock()
	was := p.online
	p.online = err == nil
	p.state.Unlock()

	switch {
	case !was && err == nil:
		slog.InfoContext(ctx, "Remote reachable")
		notify(p.ch)
	case was && err != nil:
		slog.WarnContext(ctx, "Remote unreachable", "error", err)
	}
	return err == nil
}

// Start probes immediately and then every interval until Stop.
func (p *Prober) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("connectivity prober is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)
	return nil
}

func (p *Prober) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Prober) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Probe(ctx)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
