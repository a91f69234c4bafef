package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"household/internal/core"
	applog "household/internal/log"
	"household/internal/remote"
	"household/internal/storage"
)

// MergeResult counts what one incoming pass changed locally.
type MergeResult struct {
	Added     int
	Updated   int
	Conflicts int
	Removed   int
}

type MergeOptions struct {
	// PruneMissing deletes synced local records of the period that the
	// remote no longer has.
	PruneMissing bool
	Now          func() time.Time
}

// Merger reconciles the remote view of a period into the local store.
type Merger struct {
	store   storage.RecordStore
	gateway remote.Gateway
	opts    MergeOptions
}

func NewMerger(store storage.RecordStore, gateway remote.Gateway, opts MergeOptions) *Merger {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Merger{store: store, gateway: gateway, opts: opts}
}

// MergeIncoming fetches period from the remote and merges each record in
// its own transaction. Running it twice without changes in between is a
// no-op the second time.
func (m *Merger) MergeIncoming(ctx context.Context, period core.Period) (MergeResult, error) {
	var res MergeResult

	incoming, err := m.gateway.FetchByPeriod(ctx, period)
	if err != nil {
		return res, fmt.Errorf("fetch remote %s: %w", period, err)
	}

	for _, r := range incoming {
		if err := m.store.InTx(ctx, func(tx storage.RecordTx) error {
			return m.mergeOne(ctx, tx, r, &res)
		}); err != nil {
			return res, fmt.Errorf("merge %s: %w", r.ID, err)
		}
	}

	if m.opts.PruneMissing {
		removed, err := m.prune(ctx, period, incoming)
		if err != nil {
			return res, err
		}
		res.Removed = removed
	}

	syncLogger().InfoContext(ctx, "Merge pass completed",
		applog.FieldOperation, applog.OpSync,
		applog.FieldPeriod, period.String(),
		"fetched", len(incoming),
		"added", res.Added,
		"updated", res.Updated,
		"conflicts", res.Conflicts,
		"removed", res.Removed)
	return res, nil
}

func (m *Merger) mergeOne(ctx context.Context, tx storage.RecordTx, r core.ExpenseRecord, res *MergeResult) error {
	r.SyncStatus = core.StatusSynced

	queued, err := tx.DeleteQueued(ctx, r.ID)
	if err != nil {
		return err
	}
	if queued {
		return nil
	}

	local, err := tx.Get(ctx, r.ID)
	if errors.Is(err, storage.ErrNotFound) {
		if err := tx.Put(ctx, r); err != nil {
			return err
		}
		res.Added++
		return nil
	}
	if err != nil {
		return err
	}

	switch core.Resolve(local, r) {
	case core.KeepLocal:
		// The remote already holds exactly this version.
		if local.SyncStatus == core.StatusPending && local.UpdatedAt.Equal(r.UpdatedAt) {
			local.SyncStatus = core.StatusSynced
			return tx.Put(ctx, local)
		}
		return nil

	case core.TakeRemote:
		if err := tx.Put(ctx, r); err != nil {
			return err
		}
		res.Updated++
		return nil

	case core.Diverged:
		seen, err := tx.ConflictSeen(ctx, r.ID, r.UpdatedAt)
		if err != nil || seen {
			return err
		}
		dupID, err := core.NewID()
		if err != nil {
			return fmt.Errorf("mint duplicate id: %w", err)
		}
		dup := r
		dup.ID = dupID
		if err := tx.Put(ctx, dup); err != nil {
			return err
		}
		if err := tx.LogConflict(ctx, core.Conflict{
			LocalID:         local.ID,
			RemoteID:        r.ID,
			RemoteUpdatedAt: r.UpdatedAt,
			DuplicateID:     dupID,
			LocalDeviceID:   local.DeviceID,
			RemoteDeviceID:  r.DeviceID,
			DetectedAt:      core.Timestamp(m.opts.Now()),
		}); err != nil {
			return err
		}
		syncLogger().WarnContext(ctx, "Conflicting edits, remote copy kept as duplicate",
			applog.FieldRecordID, r.ID,
			"duplicate_id", dupID,
			"local_device", local.DeviceID,
			"remote_device", r.DeviceID)
		res.Conflicts++
		return nil
	}
	return nil
}

func (m *Merger) prune(ctx context.Context, period core.Period, incoming []core.ExpenseRecord) (int, error) {
	present := make(map[string]struct{}, len(incoming))
	for _, r := range incoming {
		present[r.ID] = struct{}{}
	}

	removed := 0
	err := m.store.InTx(ctx, func(tx storage.RecordTx) error {
		removed = 0
		local, err := tx.GetByPeriod(ctx, period)
		if err != nil {
			return err
		}
		for _, l := range local {
			if l.SyncStatus != core.StatusSynced {
				continue
			}
			if _, ok := present[l.ID]; ok {
				continue
			}
			dup, err := tx.IsDuplicate(ctx, l.ID)
			if err != nil {
				return err
			}
			if dup {
				continue
			}
			if err := tx.Delete(ctx, l.ID); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune %s: %w", period, err)
	}
	return removed, nil
}
