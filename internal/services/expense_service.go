package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"household/internal/core"
	"household/internal/storage"
)

// ExpenseService applies local mutations: the write lands in the local
// store before returning and the remote call is queued behind it.
type ExpenseService struct {
	store      storage.RecordStore
	deviceID   string
	dispatcher *Dispatcher
	now        func() time.Time
}

// NewExpenseService creates the service. A nil dispatcher leaves all remote
// work to the sync scheduler.
func NewExpenseService(store storage.RecordStore, deviceID string, dispatcher *Dispatcher) *ExpenseService {
	return &ExpenseService{
		store:      store,
		deviceID:   deviceID,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

func (s *ExpenseService) Create(ctx context.Context, in core.NewExpense) (core.ExpenseRecord, error) {
	if err := in.Validate(); err != nil {
		return core.ExpenseRecord{}, err
	}
	id, err := core.NewID()
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("mint id: %w", err)
	}
	at := core.Timestamp(s.now())
	r := core.ExpenseRecord{
		ID:         id,
		Amount:     in.Amount,
		Category:   in.Category,
		Memo:       in.Memo,
		Date:       in.Date,
		CreatedAt:  at,
		UpdatedAt:  at,
		DeviceID:   s.deviceID,
		SyncStatus: core.StatusPending,
	}
	if err := s.store.Put(ctx, r); err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("save expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense created", "id", r.ID, "amount", r.Amount, "date", r.Date)
	s.enqueue(job{kind: jobUpload, record: r})
	return r, nil
}

// Update applies patch to id. The new UpdatedAt is strictly after the
// previous one even if the clock went backwards.
func (s *ExpenseService) Update(ctx context.Context, id string, patch core.Patch) (core.ExpenseRecord, error) {
	if patch.IsEmpty() {
		return core.ExpenseRecord{}, core.ErrEmptyPatch
	}

	var updated core.ExpenseRecord
	err := s.store.InTx(ctx, func(tx storage.RecordTx) error {
		prev, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		next := patch.Apply(prev)
		if err := next.Validate(); err != nil {
			return err
		}

		at := core.Timestamp(s.now())
		if floor := prev.UpdatedAt.Add(time.Millisecond); at.Before(floor) {
			at = floor
		}
		next.UpdatedAt = at
		next.DeviceID = s.deviceID
		next.SyncStatus = core.StatusPending
		if err := tx.Put(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("update expense %s: %w", id, err)
	}

	slog.InfoContext(ctx, "Expense updated", "id", id)
	s.enqueue(job{kind: jobUpdate, record: updated})
	return updated, nil
}

// Delete removes id locally and queues the remote delete.
func (s *ExpenseService) Delete(ctx context.Context, id string) error {
	err := s.store.InTx(ctx, func(tx storage.RecordTx) error {
		if _, err := tx.Get(ctx, id); err != nil {
			return err
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		return tx.QueueDelete(ctx, id, core.Timestamp(s.now()))
	})
	if err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}

	slog.InfoContext(ctx, "Expense deleted", "id", id)
	s.enqueue(job{kind: jobDelete, record: core.ExpenseRecord{ID: id}})
	return nil
}

func (s *ExpenseService) Get(ctx context.Context, id string) (core.ExpenseRecord, error) {
	return s.store.Get(ctx, id)
}

func (s *ExpenseService) ListByPeriod(ctx context.Context, p core.Period) ([]core.ExpenseRecord, error) {
	return s.store.GetByPeriod(ctx, p)
}

// Remaining is budget minus everything recorded locally for p.
func (s *ExpenseService) Remaining(ctx context.Context, p core.Period, budget int64) (int64, error) {
	records, err := s.store.GetByPeriod(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("list expenses for %s: %w", p, err)
	}
	return core.Remaining(budget, records), nil
}

func (s *ExpenseService) enqueue(j job) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.enqueue(j)
}
