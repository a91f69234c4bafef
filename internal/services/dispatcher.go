package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"household/internal/connectivity"
	"household/internal/core"
	"household/internal/remote"
	"household/internal/storage"
)

type jobKind int

const (
	jobUpload jobKind = iota
	jobUpdate
	jobDelete
)

func (k jobKind) String() string {
	switch k {
	case jobUpload:
		return "upload"
	case jobUpdate:
		return "update"
	case jobDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// job is one asynchronous remote call following a local write.
type job struct {
	kind   jobKind
	record core.ExpenseRecord // full record after the write; only ID for deletes
}

// Dispatcher sends remote calls for local writes on a single goroutine,
// in the order they were made. Anything it drops or fails stays pending
// and is picked up by the next sync pass.
type Dispatcher struct {
	store   storage.RecordStore
	gateway remote.Gateway
	signal  connectivity.Signal
	jobs    chan job

	// OnRejected is called when the remote refuses a write as invalid.
	// The local write is kept.
	OnRejected func(ctx context.Context, id string, err error)

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewDispatcher(store storage.RecordStore, gateway remote.Gateway, signal connectivity.Signal, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Dispatcher{
		store:      store,
		gateway:    gateway,
		signal:     signal,
		jobs:       make(chan job, queueSize),
		OnRejected: logRejected,
	}
}

// enqueue queues j without blocking, dropping it when the queue is full.
func (d *Dispatcher) enqueue(j job) bool {
	select {
	case d.jobs <- j:
		return true
	default:
		slog.Warn("Dispatch queue full, leaving record to the next sync pass",
			"id", j.record.ID, "op", j.kind.String())
		return false
	}
}

func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher is already running")
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.mu.Unlock()

	go d.runLoop(ctx)
	slog.InfoContext(ctx, "Dispatcher started", "queue_size", cap(d.jobs))
	return nil
}

// Stop lets the loop finish the jobs already queued and waits for it, or
// for ctx.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	stopCh, doneCh := d.stopCh, d.doneCh
	d.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Dispatcher stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Dispatcher stop timed out")
		return ctx.Err()
	}
}

func (d *Dispatcher) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Dispatcher) runLoop(ctx context.Context) {
	defer close(d.doneCh)
	for {
		select {
		case <-d.stopCh:
			d.drain(ctx)
			return
		case <-ctx.Done():
			return
		case j := <-d.jobs:
			d.process(ctx, j)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for ctx.Err() == nil {
		select {
		case j := <-d.jobs:
			d.process(ctx, j)
		default:
			return
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, j job) {
	if d.signal != nil && !d.signal.Online() {
		slog.DebugContext(ctx, "Offline, skipping dispatch", "id", j.record.ID, "op", j.kind.String())
		return
	}

	start := time.Now()
	var err error
	switch j.kind {
	case jobUpload:
		err = d.upload(ctx, j.record)
	case jobUpdate:
		err = d.update(ctx, j)
	case jobDelete:
		err = d.delete(ctx, j.record.ID)
	}

	switch {
	case err == nil:
		slog.DebugContext(ctx, "Dispatched",
			"id", j.record.ID,
			"op", j.kind.String(),
			"duration", time.Since(start))
	case errors.Is(err, remote.ErrRejected):
		if d.OnRejected != nil {
			d.OnRejected(ctx, j.record.ID, err)
		}
	default:
		slog.WarnContext(ctx, "Dispatch failed, left for next sync pass",
			"id", j.record.ID,
			"op", j.kind.String(),
			"error", err)
	}
}

func (d *Dispatcher) upload(ctx context.Context, r core.ExpenseRecord) error {
	if _, err := d.gateway.CreateOrUpdate(ctx, r); err != nil {
		return err
	}
	return d.markSynced(ctx, r)
}

// update sends every field of the record as a compare-and-swap, so edits
// whose own jobs never reached the remote are carried too. It falls back
// to a full upload when the remote has never seen the record.
func (d *Dispatcher) update(ctx context.Context, j job) error {
	r := j.record
	res, err := d.gateway.Update(ctx, r.ID, core.PatchOf(r), r.UpdatedAt, r.DeviceID)
	if err != nil {
		return err
	}
	if !res.Success {
		return d.upload(ctx, r)
	}
	return d.markSynced(ctx, r)
}

func (d *Dispatcher) delete(ctx context.Context, id string) error {
	if _, err := d.gateway.Delete(ctx, id); err != nil {
		return err
	}
	if err := d.store.RemoveQueuedDelete(ctx, id); err != nil {
		return fmt.Errorf("dequeue delete %s: %w", id, err)
	}
	return nil
}

func (d *Dispatcher) markSynced(ctx context.Context, r core.ExpenseRecord) error {
	if _, err := d.store.MarkSynced(ctx, r.ID, r.UpdatedAt); err != nil {
		return fmt.Errorf("mark %s synced: %w", r.ID, err)
	}
	return nil
}
