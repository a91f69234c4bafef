package services

import (
	"context"
	"errors"
	"fmt"

	"household/internal/connectivity"
	applog "household/internal/log"
	"household/internal/remote"
	"household/internal/storage"
)

// UploadResult counts what one outgoing pass did.
type UploadResult struct {
	Uploaded int
	Failed   int
	Deleted  int
}

// Uploader pushes local work to the remote ledger: queued deletes first,
// then every pending record in id order, one request at a time.
type Uploader struct {
	store   storage.RecordStore
	gateway remote.Gateway
	signal  connectivity.Signal

	// OnRejected is called when the remote refuses a record as invalid.
	OnRejected func(ctx context.Context, id string, err error)
}

// NewUploader creates an uploader. The gateway is expected to already
// carry the retry policy (see remote.WithRetry).
func NewUploader(store storage.RecordStore, gateway remote.Gateway, signal connectivity.Signal) *Uploader {
	return &Uploader{
		store:      store,
		gateway:    gateway,
		signal:     signal,
		OnRejected: logRejected,
	}
}

// SynchronizeOutgoing runs one upload pass. Remote failures are counted and
// left for the next pass; local store failures abort the pass.
func (u *Uploader) SynchronizeOutgoing(ctx context.Context) (UploadResult, error) {
	var res UploadResult
	if u.signal != nil && !u.signal.Online() {
		syncLogger().DebugContext(ctx, "Skipping upload, offline")
		return res, nil
	}

	if err := u.drainDeletes(ctx, &res); err != nil {
		return res, err
	}

	pending, err := u.store.ListPending(ctx)
	if err != nil {
		return res, fmt.Errorf("list pending records: %w", err)
	}

	for _, r := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if _, err := u.gateway.CreateOrUpdate(ctx, r); err != nil {
			res.Failed++
			if errors.Is(err, remote.ErrRejected) {
				u.rejected(ctx, r.ID, err)
			} else {
				syncLogger().WarnContext(ctx, "Upload failed, record stays pending",
					applog.FieldRecordID, r.ID, applog.FieldError, err)
			}
			continue
		}

		// Created, updated or already newer remotely: the remote is at or
		// past this version either way.
		changed, err := u.store.MarkSynced(ctx, r.ID, r.UpdatedAt)
		if err != nil {
			return res, fmt.Errorf("mark %s synced: %w", r.ID, err)
		}
		if !changed {
			syncLogger().DebugContext(ctx, "Record edited during upload, stays pending",
				applog.FieldRecordID, r.ID)
		}
		res.Uploaded++
	}

	if res.Uploaded > 0 || res.Failed > 0 || res.Deleted > 0 {
		syncLogger().InfoContext(ctx, "Upload pass completed",
			"uploaded", res.Uploaded,
			"failed", res.Failed,
			"deleted", res.Deleted)
	}
	return res, nil
}

func (u *Uploader) drainDeletes(ctx context.Context, res *UploadResult) error {
	ids, err := u.store.QueuedDeletes(ctx)
	if err != nil {
		return fmt.Errorf("list queued deletes: %w", err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := u.gateway.Delete(ctx, id); err != nil {
			res.Failed++
			syncLogger().WarnContext(ctx, "Remote delete failed, stays queued",
				applog.FieldRecordID, id, applog.FieldError, err)
			continue
		}
		if err := u.store.RemoveQueuedDelete(ctx, id); err != nil {
			return fmt.Errorf("dequeue delete %s: %w", id, err)
		}
		res.Deleted++
	}
	return nil
}

func (u *Uploader) rejected(ctx context.Context, id string, err error) {
	if u.OnRejected != nil {
		u.OnRejected(ctx, id, err)
	}
}

func logRejected(ctx context.Context, id string, err error) {
	syncLogger().ErrorContext(ctx, "Remote rejected record",
		applog.FieldRecordID, id, applog.FieldError, err)
}
