package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"household/internal/core"
	"household/internal/remote"
	"household/internal/remote/memory"
	"household/internal/storage"
)

func newTestStore(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(context.Background(), filepath.Join(t.TempDir(), "household.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustPut(t *testing.T, s storage.RecordStore, r core.ExpenseRecord) {
	t.Helper()
	if err := s.Put(context.Background(), r); err != nil {
		t.Fatalf("put %s: %v", r.ID, err)
	}
}

func mustGet(t *testing.T, s storage.RecordStore, id string) core.ExpenseRecord {
	t.Helper()
	r, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return r
}

func expense(id, date, device string, amount int64, at time.Time, status core.SyncStatus) core.ExpenseRecord {
	return core.ExpenseRecord{
		ID: id, Amount: amount, Date: date,
		CreatedAt: at, UpdatedAt: at, DeviceID: device, SyncStatus: status,
	}
}

// recordingGateway wraps the in-memory ledger, records calls and can fail
// or run a hook before each upload.
type recordingGateway struct {
	*memory.Store

	mu           sync.Mutex
	uploads      []string
	updates      []string
	deletes      []string
	failUploads  map[string]error
	failDeletes  error
	beforeUpload func(r core.ExpenseRecord)
}

func newRecordingGateway() *recordingGateway {
	return &recordingGateway{Store: memory.New(), failUploads: map[string]error{}}
}

func (g *recordingGateway) CreateOrUpdate(ctx context.Context, r core.ExpenseRecord) (remote.UpsertResult, error) {
	g.mu.Lock()
	g.uploads = append(g.uploads, r.ID)
	err := g.failUploads[r.ID]
	hook := g.beforeUpload
	g.mu.Unlock()

	if hook != nil {
		hook(r)
	}
	if err != nil {
		return remote.UpsertResult{}, err
	}
	return g.Store.CreateOrUpdate(ctx, r)
}

func (g *recordingGateway) Update(ctx context.Context, id string, p core.Patch, at time.Time, device string) (remote.UpdateResult, error) {
	g.mu.Lock()
	g.updates = append(g.updates, id)
	g.mu.Unlock()
	return g.Store.Update(ctx, id, p, at, device)
}

func (g *recordingGateway) Delete(ctx context.Context, id string) (remote.DeleteResult, error) {
	g.mu.Lock()
	g.deletes = append(g.deletes, id)
	err := g.failDeletes
	g.mu.Unlock()
	if err != nil {
		return remote.DeleteResult{}, err
	}
	return g.Store.Delete(ctx, id)
}

func (g *recordingGateway) calls() (uploads, updates, deletes []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.uploads...), append([]string(nil), g.updates...), append([]string(nil), g.deletes...)
}
