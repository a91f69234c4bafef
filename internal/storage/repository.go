package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"household/internal/core"
	"household/internal/sqlitedb"
)

// SQLiteRepository is the device-local record store.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

var (
	_ RecordStore   = (*SQLiteRepository)(nil)
	_ MetaStore     = (*SQLiteRepository)(nil)
	_ ConflictStore = (*SQLiteRepository)(nil)
	_ RecordTx      = (*txRecords)(nil)
)

func NewSQLiteRepository(ctx context.Context, dbPath string) (*SQLiteRepository, error) {
	db, err := sqlitedb.Open(ctx, dbPath, Migrations())
	if err != nil {
		return nil, err
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (core.ExpenseRecord, error) {
	rec, err := r.queries.GetExpense(ctx, id)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("get expense %s: %w", id, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) GetByPeriod(ctx context.Context, p core.Period) ([]core.ExpenseRecord, error) {
	start, end := p.Bounds()
	recs, err := r.queries.ListExpensesByDateRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("list expenses for %s: %w", p, err)
	}
	return recs, nil
}

func (r *SQLiteRepository) ListPending(ctx context.Context) ([]core.ExpenseRecord, error) {
	recs, err := r.queries.ListPendingExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending expenses: %w", err)
	}
	return recs, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, rec core.ExpenseRecord) error {
	if err := r.queries.UpsertExpense(ctx, rec); err != nil {
		return fmt.Errorf("put expense %s: %w", rec.ID, err)
	}
	slog.DebugContext(ctx, "Expense saved locally",
		"id", rec.ID,
		"amount", rec.Amount,
		"date", rec.Date,
		"sync_status", rec.SyncStatus)
	return nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, updatedAt time.Time) (bool, error) {
	ok, err := r.queries.MarkExpenseSynced(ctx, id, updatedAt)
	if err != nil {
		return false, fmt.Errorf("mark expense %s synced: %w", id, err)
	}
	if !ok {
		slog.DebugContext(ctx, "Expense changed since upload, left pending", "id", id)
	}
	return ok, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if err := r.queries.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) InTx(ctx context.Context, fn func(RecordTx) error) error {
	return sqlitedb.InTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&txRecords{q: r.queries.WithTx(tx)})
	})
}

func (r *SQLiteRepository) QueuedDeletes(ctx context.Context) ([]string, error) {
	ids, err := r.queries.ListQueuedDeletes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list queued deletes: %w", err)
	}
	return ids, nil
}

func (r *SQLiteRepository) RemoveQueuedDelete(ctx context.Context, id string) error {
	if err := r.queries.RemoveQueuedDelete(ctx, id); err != nil {
		return fmt.Errorf("remove queued delete %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) DeviceID(ctx context.Context) (string, error) {
	id, _, err := r.queries.GetSyncMeta(ctx)
	if err != nil {
		return "", fmt.Errorf("read sync meta: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) SetDeviceID(ctx context.Context, id string) error {
	if err := r.queries.SetDeviceID(ctx, id); err != nil {
		return fmt.Errorf("store device id: %w", err)
	}
	return nil
}

// LastSyncedAt returns the zero time if no bidirectional sync has completed.
func (r *SQLiteRepository) LastSyncedAt(ctx context.Context) (time.Time, error) {
	_, last, err := r.queries.GetSyncMeta(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("read sync meta: %w", err)
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return fromMillis(last.Int64), nil
}

func (r *SQLiteRepository) SetLastSyncedAt(ctx context.Context, t time.Time) error {
	if err := r.queries.SetLastSyncedAt(ctx, t); err != nil {
		return fmt.Errorf("store last synced at: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListConflicts(ctx context.Context) ([]core.Conflict, error) {
	cs, err := r.queries.ListConflicts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	return cs, nil
}

// DismissConflict removes a conflict from the review list. Both records
// stay, and the conflict keeps guarding later merges.
func (r *SQLiteRepository) DismissConflict(ctx context.Context, duplicateID string) error {
	n, err := r.queries.DismissConflict(ctx, duplicateID, time.Now())
	if err != nil {
		return fmt.Errorf("dismiss conflict %s: %w", duplicateID, err)
	}
	if n == 0 {
		return fmt.Errorf("dismiss conflict %s: %w", duplicateID, ErrNotFound)
	}
	return nil
}

// txRecords is the RecordTx handed to InTx callbacks.
type txRecords struct {
	q *Queries
}

func (t *txRecords) Get(ctx context.Context, id string) (core.ExpenseRecord, error) {
	rec, err := t.q.GetExpense(ctx, id)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("get expense %s: %w", id, err)
	}
	return rec, nil
}

func (t *txRecords) GetByPeriod(ctx context.Context, p core.Period) ([]core.ExpenseRecord, error) {
	start, end := p.Bounds()
	recs, err := t.q.ListExpensesByDateRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("list expenses for %s: %w", p, err)
	}
	return recs, nil
}

func (t *txRecords) Put(ctx context.Context, rec core.ExpenseRecord) error {
	if err := t.q.UpsertExpense(ctx, rec); err != nil {
		return fmt.Errorf("put expense %s: %w", rec.ID, err)
	}
	return nil
}

func (t *txRecords) Delete(ctx context.Context, id string) error {
	if err := t.q.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}
	return nil
}

func (t *txRecords) QueueDelete(ctx context.Context, id string, at time.Time) error {
	if err := t.q.QueueDelete(ctx, id, at); err != nil {
		return fmt.Errorf("queue delete %s: %w", id, err)
	}
	return nil
}

func (t *txRecords) DeleteQueued(ctx context.Context, id string) (bool, error) {
	ok, err := t.q.IsDeleteQueued(ctx, id)
	if err != nil {
		return false, fmt.Errorf("check queued delete %s: %w", id, err)
	}
	return ok, nil
}

func (t *txRecords) ConflictSeen(ctx context.Context, remoteID string, remoteUpdatedAt time.Time) (bool, error) {
	n, err := t.q.CountConflictsByRemoteVersion(ctx, remoteID, remoteUpdatedAt)
	if err != nil {
		return false, fmt.Errorf("check conflict log for %s: %w", remoteID, err)
	}
	return n > 0, nil
}

func (t *txRecords) IsDuplicate(ctx context.Context, id string) (bool, error) {
	n, err := t.q.CountConflictsByDuplicate(ctx, id)
	if err != nil {
		return false, fmt.Errorf("check duplicate %s: %w", id, err)
	}
	return n > 0, nil
}

func (t *txRecords) LogConflict(ctx context.Context, c core.Conflict) error {
	if err := t.q.InsertConflict(ctx, c); err != nil {
		return fmt.Errorf("log conflict for %s: %w", c.RemoteID, err)
	}
	return nil
}
