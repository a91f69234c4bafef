package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"household/internal/core"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the SQL for the local store. It runs against the pool or
// against a transaction, whichever DBTX it was built with.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const expenseColumns = `id, amount, category, memo, date, created_at, updated_at, device_id, sync_status`

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(s rowScanner) (core.ExpenseRecord, error) {
	var (
		r                    core.ExpenseRecord
		createdAt, updatedAt int64
		status               string
	)
	if err := s.Scan(&r.ID, &r.Amount, &r.Category, &r.Memo, &r.Date, &createdAt, &updatedAt, &r.DeviceID, &status); err != nil {
		return core.ExpenseRecord{}, err
	}
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	r.SyncStatus = core.SyncStatus(status)
	return r, nil
}

func (q *Queries) listExpenses(ctx context.Context, query string, args ...any) ([]core.ExpenseRecord, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ExpenseRecord
	for rows.Next() {
		r, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *Queries) GetExpense(ctx context.Context, id string) (core.ExpenseRecord, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	r, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExpenseRecord{}, ErrNotFound
	}
	return r, err
}

func (q *Queries) ListExpensesByDateRange(ctx context.Context, start, end string) ([]core.ExpenseRecord, error) {
	return q.listExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE date >= ? AND date < ? ORDER BY date, id`,
		start, end)
}

func (q *Queries) ListPendingExpenses(ctx context.Context) ([]core.ExpenseRecord, error) {
	return q.listExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE sync_status = ? ORDER BY id`,
		string(core.StatusPending))
}

func (q *Queries) UpsertExpense(ctx context.Context, r core.ExpenseRecord) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO expenses (`+expenseColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    amount = excluded.amount,
    category = excluded.category,
    memo = excluded.memo,
    date = excluded.date,
    created_at = excluded.created_at,
    updated_at = excluded.updated_at,
    device_id = excluded.device_id,
    sync_status = excluded.sync_status`,
		r.ID, r.Amount, r.Category, r.Memo, r.Date,
		toMillis(r.CreatedAt), toMillis(r.UpdatedAt), r.DeviceID, string(r.SyncStatus))
	return err
}

func (q *Queries) MarkExpenseSynced(ctx context.Context, id string, updatedAt time.Time) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE expenses SET sync_status = ? WHERE id = ? AND updated_at = ?`,
		string(core.StatusSynced), id, toMillis(updatedAt))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (q *Queries) DeleteExpense(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	return err
}

func (q *Queries) DeleteExpenses(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := q.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM expenses WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) QueueDelete(ctx context.Context, id string, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO pending_deletes (id, queued_at) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		id, toMillis(at))
	return err
}

func (q *Queries) IsDeleteQueued(ctx context.Context, id string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_deletes WHERE id = ?`, id).Scan(&n)
	return n > 0, err
}

func (q *Queries) ListQueuedDeletes(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id FROM pending_deletes ORDER BY queued_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (q *Queries) RemoveQueuedDelete(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM pending_deletes WHERE id = ?`, id)
	return err
}

func (q *Queries) InsertConflict(ctx context.Context, c core.Conflict) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO conflicts (duplicate_id, local_id, remote_id, remote_updated_at, local_device_id, remote_device_id, detected_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.DuplicateID, c.LocalID, c.RemoteID, toMillis(c.RemoteUpdatedAt),
		c.LocalDeviceID, c.RemoteDeviceID, toMillis(c.DetectedAt))
	return err
}

func (q *Queries) CountConflictsByRemoteVersion(ctx context.Context, remoteID string, remoteUpdatedAt time.Time) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conflicts WHERE remote_id = ? AND remote_updated_at = ?`,
		remoteID, toMillis(remoteUpdatedAt)).Scan(&n)
	return n, err
}

func (q *Queries) CountConflictsByDuplicate(ctx context.Context, id string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conflicts WHERE duplicate_id = ?`, id).Scan(&n)
	return n, err
}

func (q *Queries) ListConflicts(ctx context.Context) ([]core.Conflict, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT duplicate_id, local_id, remote_id, remote_updated_at, local_device_id, remote_device_id, detected_at
FROM conflicts WHERE dismissed_at IS NULL ORDER BY detected_at, duplicate_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Conflict
	for rows.Next() {
		var (
			c                    core.Conflict
			remoteAt, detectedAt int64
		)
		if err := rows.Scan(&c.DuplicateID, &c.LocalID, &c.RemoteID, &remoteAt, &c.LocalDeviceID, &c.RemoteDeviceID, &detectedAt); err != nil {
			return nil, err
		}
		c.RemoteUpdatedAt = fromMillis(remoteAt)
		c.DetectedAt = fromMillis(detectedAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// DismissConflict stamps an undismissed conflict as reviewed. The row stays
// so merges still recognise the remote version and the duplicate.
func (q *Queries) DismissConflict(ctx context.Context, duplicateID string, at time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE conflicts SET dismissed_at = ? WHERE duplicate_id = ? AND dismissed_at IS NULL`,
		toMillis(at), duplicateID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) GetSyncMeta(ctx context.Context) (deviceID string, lastSyncedAt sql.NullInt64, err error) {
	err = q.db.QueryRowContext(ctx, `SELECT device_id, last_synced_at FROM sync_meta WHERE id = 1`).
		Scan(&deviceID, &lastSyncedAt)
	return deviceID, lastSyncedAt, err
}

func (q *Queries) SetDeviceID(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE sync_meta SET device_id = ? WHERE id = 1`, id)
	return err
}

func (q *Queries) SetLastSyncedAt(ctx context.Context, t time.Time) error {
	_, err := q.db.ExecContext(ctx, `UPDATE sync_meta SET last_synced_at = ? WHERE id = 1`, toMillis(t))
	return err
}
