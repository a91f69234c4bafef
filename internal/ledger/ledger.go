// Package ledger is the remote service's own store: the shared copy every
// device synchronizes against.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"household/internal/core"
	"household/internal/remote"
	"household/internal/sqlitedb"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store keeps the shared ledger in SQLite. Writes follow last-writer-wins
// on updatedAt; equal timestamps keep the stored copy.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ remote.Gateway     = (*Store)(nil)
	_ remote.BudgetStore = (*Store)(nil)
	_ remote.Pinger      = (*Store)(nil)
)

func migrations() fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

func Open(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sqlitedb.Open(ctx, dbPath, migrations())
	if err != nil {
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const columns = `id, amount, category, memo, date, created_at, updated_at, device_id`

type queryer interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func get(ctx context.Context, q queryer, id string) (core.ExpenseRecord, bool, error) {
	var (
		r                    core.ExpenseRecord
		createdAt, updatedAt int64
	)
	err := q.QueryRowContext(ctx, `SELECT `+columns+` FROM expenses WHERE id = ?`, id).
		Scan(&r.ID, &r.Amount, &r.Category, &r.Memo, &r.Date, &createdAt, &updatedAt, &r.DeviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExpenseRecord{}, false, nil
	}
	if err != nil {
		return core.ExpenseRecord{}, false, err
	}
	r.CreatedAt = time.UnixMilli(createdAt).UTC()
	r.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return r, true, nil
}

func write(ctx context.Context, tx *sql.Tx, r core.ExpenseRecord) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO expenses (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    amount = excluded.amount,
    category = excluded.category,
    memo = excluded.memo,
    date = excluded.date,
    created_at = excluded.created_at,
    updated_at = excluded.updated_at,
    device_id = excluded.device_id`,
		r.ID, r.Amount, r.Category, r.Memo, r.Date,
		r.CreatedAt.UTC().UnixMilli(), r.UpdatedAt.UTC().UnixMilli(), r.DeviceID)
	return err
}

func rejected(err error) error {
	return fmt.Errorf("%w: %v", remote.ErrRejected, err)
}

// CreateOrUpdate stores r unless the ledger holds an equal or newer copy.
func (s *Store) CreateOrUpdate(ctx context.Context, r core.ExpenseRecord) (remote.UpsertResult, error) {
	if err := r.Validate(); err != nil {
		return remote.UpsertResult{}, rejected(err)
	}
	r.CreatedAt = core.Timestamp(r.CreatedAt)
	r.UpdatedAt = core.Timestamp(r.UpdatedAt)

	var res remote.UpsertResult
	err := sqlitedb.InTx(ctx, s.db, func(tx *sql.Tx) error {
		existing, ok, err := get(ctx, tx, r.ID)
		if err != nil {
			return err
		}
		switch {
		case !ok:
			res = remote.UpsertResult{Created: true, Updated: true}
		case core.Supersedes(existing, r):
			res = remote.UpsertResult{Updated: true}
		default:
			return nil
		}
		return write(ctx, tx, r)
	})
	if err != nil {
		return remote.UpsertResult{}, fmt.Errorf("upsert expense %s: %w", r.ID, err)
	}

	slog.DebugContext(ctx, "Ledger upsert",
		"id", r.ID,
		"created", res.Created,
		"updated", res.Updated)
	return res, nil
}

func (s *Store) FetchByPeriod(ctx context.Context, p core.Period) ([]core.ExpenseRecord, error) {
	start, end := p.Bounds()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM expenses WHERE date >= ? AND date < ? ORDER BY date, id`, start, end)
	if err != nil {
		return nil, fmt.Errorf("list expenses for %s: %w", p, err)
	}
	defer rows.Close()

	out := []core.ExpenseRecord{}
	for rows.Next() {
		var (
			r                    core.ExpenseRecord
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&r.ID, &r.Amount, &r.Category, &r.Memo, &r.Date, &createdAt, &updatedAt, &r.DeviceID); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		r.CreatedAt = time.UnixMilli(createdAt).UTC()
		r.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expenses for %s: %w", p, err)
	}
	return out, nil
}

// Update applies patch when updatedAt is newer than the stored copy.
// Success is false when id is unknown.
func (s *Store) Update(ctx context.Context, id string, patch core.Patch, updatedAt time.Time, deviceID string) (remote.UpdateResult, error) {
	if patch.IsEmpty() {
		return remote.UpdateResult{}, rejected(core.ErrEmptyPatch)
	}

	var res remote.UpdateResult
	err := sqlitedb.InTx(ctx, s.db, func(tx *sql.Tx) error {
		existing, ok, err := get(ctx, tx, id)
		if err != nil || !ok {
			return err
		}
		res.Success = true
		if !updatedAt.After(existing.UpdatedAt) {
			return nil
		}

		next := patch.Apply(existing)
		next.UpdatedAt = core.Timestamp(updatedAt)
		next.DeviceID = deviceID
		if err := next.Validate(); err != nil {
			return rejected(err)
		}
		res.Updated = true
		return write(ctx, tx, next)
	})
	if err != nil {
		return remote.UpdateResult{}, fmt.Errorf("update expense %s: %w", id, err)
	}
	return res, nil
}

// Delete is idempotent.
func (s *Store) Delete(ctx context.Context, id string) (remote.DeleteResult, error) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id); err != nil {
		return remote.DeleteResult{}, fmt.Errorf("delete expense %s: %w", id, err)
	}
	return remote.DeleteResult{Success: true}, nil
}

// Get returns the stored copy of id, if any.
func (s *Store) Get(ctx context.Context, id string) (core.ExpenseRecord, bool, error) {
	r, ok, err := get(ctx, s.db, id)
	if err != nil {
		return core.ExpenseRecord{}, false, fmt.Errorf("get expense %s: %w", id, err)
	}
	return r, ok, nil
}

func (s *Store) GetBudget(ctx context.Context, p core.Period) (int64, bool, error) {
	var amount int64
	err := s.db.QueryRowContext(ctx, `SELECT amount FROM budgets WHERE month = ?`, p.String()).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get budget %s: %w", p, err)
	}
	return amount, true, nil
}

func (s *Store) SetBudget(ctx context.Context, p core.Period, amount int64) error {
	if amount < 0 {
		return rejected(core.ErrInvalidAmount)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO budgets (month, amount, updated_at) VALUES (?, ?, ?)
ON CONFLICT(month) DO UPDATE SET amount = excluded.amount, updated_at = excluded.updated_at`,
		p.String(), amount, s.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("set budget %s: %w", p, err)
	}
	return nil
}
