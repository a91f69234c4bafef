package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"household/internal/core"
	applog "household/internal/log"
	"household/internal/storage"
)

// syncLogger tags entries of the sync path. It reads the default logger on
// every call so a logger installed after construction still applies.
func syncLogger() *slog.Logger {
	return slog.Default().With(applog.FieldComponent, applog.ComponentSync)
}

// SyncResult is one bidirectional pass.
type SyncResult struct {
	Period   core.Period
	Upload   UploadResult
	Merge    MergeResult
	Duration time.Duration
}

// Syncer runs upload then merge of the current period.
type Syncer struct {
	uploader *Uploader
	merger   *Merger
	meta     storage.MetaStore
	now      func() time.Time
}

func NewSyncer(u *Uploader, m *Merger, meta storage.MetaStore) *Syncer {
	return &Syncer{uploader: u, merger: m, meta: meta, now: time.Now}
}

// SyncBidirectional uploads local work and then merges the period holding
// today. The merge is skipped while offline.
func (s *Syncer) SyncBidirectional(ctx context.Context) (SyncResult, error) {
	start := s.now()
	res := SyncResult{Period: core.PeriodOf(start)}

	up, err := s.uploader.SynchronizeOutgoing(ctx)
	res.Upload = up
	if err != nil {
		return res, fmt.Errorf("upload: %w", err)
	}

	if s.uploader.signal != nil && !s.uploader.signal.Online() {
		return res, nil
	}

	mr, err := s.merger.MergeIncoming(ctx, res.Period)
	res.Merge = mr
	if err != nil {
		return res, fmt.Errorf("merge: %w", err)
	}

	if s.meta != nil {
		if err := s.meta.SetLastSyncedAt(ctx, s.now()); err != nil {
			syncLogger().WarnContext(ctx, "Failed to record last sync time",
				applog.FieldOperation, applog.OpSync,
				applog.FieldError, err)
		}
	}
	res.Duration = s.now().Sub(start)
	return res, nil
}
