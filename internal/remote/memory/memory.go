// Package memory is an in-process remote ledger for local development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"household/internal/core"
	"household/internal/remote"
	"household/internal/retry"
)

// ErrOffline is returned by every call while the store is set offline.
var ErrOffline = errors.New("remote unreachable")

type Store struct {
	mu      sync.Mutex
	items   map[string]core.ExpenseRecord
	budgets map[string]int64
	offline bool
}

var (
	_ remote.Gateway     = (*Store)(nil)
	_ remote.BudgetStore = (*Store)(nil)
	_ remote.Pinger      = (*Store)(nil)
)

func New() *Store {
	return &Store{
		items:   map[string]core.ExpenseRecord{},
		budgets: map[string]int64{},
	}
}

// SetOffline makes every subsequent call fail with ErrOffline until cleared.
func (s *Store) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return ErrOffline
	}
	return nil
}

// Seed stores r verbatim, bypassing last-writer-wins.
func (s *Store) Seed(r core.ExpenseRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.SyncStatus = ""
	s.items[r.ID] = r
}

// Snapshot returns every stored record ordered by id.
func (s *Store) Snapshot() []core.ExpenseRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.ExpenseRecord, 0, len(s.items))
	for _, r := range s.items {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) CreateOrUpdate(_ context.Context, r core.ExpenseRecord) (remote.UpsertResult, error) {
	if err := r.Validate(); err != nil {
		return remote.UpsertResult{}, retry.Permanent(fmt.Errorf("%w: %v", remote.ErrRejected, err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return remote.UpsertResult{}, ErrOffline
	}

	r.SyncStatus = ""
	existing, ok := s.items[r.ID]
	if !ok {
		s.items[r.ID] = r
		return remote.UpsertResult{Created: true, Updated: true}, nil
	}
	if !core.Supersedes(existing, r) {
		return remote.UpsertResult{}, nil
	}
	s.items[r.ID] = r
	return remote.UpsertResult{Updated: true}, nil
}

func (s *Store) FetchByPeriod(_ context.Context, p core.Period) ([]core.ExpenseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return nil, ErrOffline
	}

	var out []core.ExpenseRecord
	for _, r := range s.items {
		if p.Contains(r.Date) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Update(_ context.Context, id string, patch core.Patch, updatedAt time.Time, deviceID string) (remote.UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return remote.UpdateResult{}, ErrOffline
	}

	existing, ok := s.items[id]
	if !ok {
		return remote.UpdateResult{Success: false}, nil
	}
	if !updatedAt.After(existing.UpdatedAt) {
		return remote.UpdateResult{Success: true, Updated: false}, nil
	}
	next := patch.Apply(existing)
	next.UpdatedAt = core.Timestamp(updatedAt)
	next.DeviceID = deviceID
	if err := next.Validate(); err != nil {
		return remote.UpdateResult{}, retry.Permanent(fmt.Errorf("%w: %v", remote.ErrRejected, err))
	}
	s.items[id] = next
	return remote.UpdateResult{Success: true, Updated: true}, nil
}

func (s *Store) Delete(_ context.Context, id string) (remote.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return remote.DeleteResult{}, ErrOffline
	}
	delete(s.items, id)
	return remote.DeleteResult{Success: true}, nil
}

func (s *Store) GetBudget(_ context.Context, p core.Period) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return 0, false, ErrOffline
	}
	v, ok := s.budgets[p.String()]
	return v, ok, nil
}

func (s *Store) SetBudget(_ context.Context, p core.Period, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return ErrOffline
	}
	s.budgets[p.String()] = amount
	return nil
}
