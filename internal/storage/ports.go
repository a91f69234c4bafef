package storage

import (
	"context"
	"errors"
	"time"

	"household/internal/core"
)

var ErrNotFound = errors.New("record not found")

// Ports for the device-local store.
type (
	// RecordReader is the read side used by listing and export code.
	RecordReader interface {
		Get(ctx context.Context, id string) (core.ExpenseRecord, error)
		GetByPeriod(ctx context.Context, p core.Period) ([]core.ExpenseRecord, error)
	}

	// RecordStore is the always-available local copy of expense records.
	RecordStore interface {
		RecordReader

		// ListPending returns every pending record in id (creation) order.
		ListPending(ctx context.Context) ([]core.ExpenseRecord, error)
		// Put inserts or replaces a record by id.
		Put(ctx context.Context, r core.ExpenseRecord) error
		// MarkSynced flips id to synced only while its stored updatedAt still
		// equals updatedAt. Reports whether the row changed.
		MarkSynced(ctx context.Context, id string, updatedAt time.Time) (bool, error)
		Delete(ctx context.Context, id string) error

		// InTx runs fn in one transaction.
		InTx(ctx context.Context, fn func(RecordTx) error) error

		// QueuedDeletes lists ids awaiting a remote delete, oldest first.
		QueuedDeletes(ctx context.Context) ([]string, error)
		RemoveQueuedDelete(ctx context.Context, id string) error
	}

	// RecordTx is the view of the store inside a transaction.
	RecordTx interface {
		Get(ctx context.Context, id string) (core.ExpenseRecord, error)
		GetByPeriod(ctx context.Context, p core.Period) ([]core.ExpenseRecord, error)
		Put(ctx context.Context, r core.ExpenseRecord) error
		Delete(ctx context.Context, id string) error

		QueueDelete(ctx context.Context, id string, at time.Time) error
		DeleteQueued(ctx context.Context, id string) (bool, error)

		// ConflictSeen reports whether this exact remote version already
		// produced a duplicate.
		ConflictSeen(ctx context.Context, remoteID string, remoteUpdatedAt time.Time) (bool, error)
		// IsDuplicate reports whether id was minted by conflict resolution.
		IsDuplicate(ctx context.Context, id string) (bool, error)
		LogConflict(ctx context.Context, c core.Conflict) error
	}

	// MetaStore holds the sync_meta singleton.
	MetaStore interface {
		DeviceID(ctx context.Context) (string, error)
		SetDeviceID(ctx context.Context, id string) error
		LastSyncedAt(ctx context.Context) (time.Time, error)
		SetLastSyncedAt(ctx context.Context, t time.Time) error
	}

	// ConflictStore exposes the conflict review list.
	ConflictStore interface {
		ListConflicts(ctx context.Context) ([]core.Conflict, error)
		DismissConflict(ctx context.Context, duplicateID string) error
	}
)
