package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"household/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(context.Background(), filepath.Join(t.TempDir(), "nested", "local.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func record(id, date string, at time.Time, status core.SyncStatus) core.ExpenseRecord {
	return core.ExpenseRecord{
		ID: id, Amount: 1000, Category: "food", Date: date,
		CreatedAt: at, UpdatedAt: at, DeviceID: "dev-a", SyncStatus: status,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	at := time.Date(2024, 3, 5, 10, 0, 0, 123000000, time.UTC)

	want := record("01", "2024-03-05", at, core.StatusPending)
	want.Memo = "lunch"
	if err := repo.Put(ctx, want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := repo.Get(ctx, "01")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetByPeriodUsesHalfOpenRange(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	for _, r := range []core.ExpenseRecord{
		record("a", "2024-02-29", at, core.StatusSynced),
		record("b", "2024-03-01", at, core.StatusSynced),
		record("c", "2024-03-31", at, core.StatusPending),
		record("d", "2024-04-01", at, core.StatusSynced),
	} {
		if err := repo.Put(ctx, r); err != nil {
			t.Fatalf("put %s: %v", r.ID, err)
		}
	}

	got, err := repo.GetByPeriod(ctx, core.Period{Year: 2024, Month: time.March})
	if err != nil {
		t.Fatalf("by period: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestListPendingOrderedByID(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	for _, id := range []string{"03", "01", "02"} {
		if err := repo.Put(ctx, record(id, "2024-03-05", at, core.StatusPending)); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	if err := repo.Put(ctx, record("00", "2024-03-05", at, core.StatusSynced)); err != nil {
		t.Fatalf("put: %v", err)
	}

	pending, err := repo.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 3 || pending[0].ID != "01" || pending[1].ID != "02" || pending[2].ID != "03" {
		t.Fatalf("unexpected pending order: %+v", pending)
	}
}

func TestMarkSyncedIsGuardedByUpdatedAt(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	if err := repo.Put(ctx, record("01", "2024-03-05", at, core.StatusPending)); err != nil {
		t.Fatalf("put: %v", err)
	}

	// An edit landed after the upload started.
	edited := record("01", "2024-03-05", at, core.StatusPending)
	edited.UpdatedAt = at.Add(time.Second)
	if err := repo.Put(ctx, edited); err != nil {
		t.Fatalf("put: %v", err)
	}

	ok, err := repo.MarkSynced(ctx, "01", at)
	if err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	if ok {
		t.Fatalf("stale mark must not flip the record")
	}
	got, _ := repo.Get(ctx, "01")
	if got.SyncStatus != core.StatusPending {
		t.Fatalf("expected pending, got %s", got.SyncStatus)
	}

	ok, err = repo.MarkSynced(ctx, "01", edited.UpdatedAt)
	if err != nil || !ok {
		t.Fatalf("expected mark to succeed, ok=%v err=%v", ok, err)
	}
	got, _ = repo.Get(ctx, "01")
	if got.SyncStatus != core.StatusSynced {
		t.Fatalf("expected synced, got %s", got.SyncStatus)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	boom := errors.New("boom")

	err := repo.InTx(ctx, func(tx RecordTx) error {
		if err := tx.Put(ctx, record("01", "2024-03-05", at, core.StatusSynced)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := repo.Get(ctx, "01"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected rollback, got %v", err)
	}
}

func TestDeleteOutbox(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	if err := repo.Put(ctx, record("01", "2024-03-05", at, core.StatusSynced)); err != nil {
		t.Fatalf("put: %v", err)
	}
	err := repo.InTx(ctx, func(tx RecordTx) error {
		if err := tx.Delete(ctx, "01"); err != nil {
			return err
		}
		if err := tx.QueueDelete(ctx, "01", at); err != nil {
			return err
		}
		// Queuing twice is harmless.
		return tx.QueueDelete(ctx, "01", at.Add(time.Second))
	})
	if err != nil {
		t.Fatalf("delete tx: %v", err)
	}

	ids, err := repo.QueuedDeletes(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "01" {
		t.Fatalf("unexpected outbox %v err=%v", ids, err)
	}
	_ = repo.InTx(ctx, func(tx RecordTx) error {
		queued, err := tx.DeleteQueued(ctx, "01")
		if err != nil || !queued {
			t.Errorf("expected queued, got %v err=%v", queued, err)
		}
		return nil
	})

	if err := repo.RemoveQueuedDelete(ctx, "01"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	ids, _ = repo.QueuedDeletes(ctx)
	if len(ids) != 0 {
		t.Fatalf("expected empty outbox, got %v", ids)
	}
}

func TestConflictLog(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	c := core.Conflict{
		LocalID: "01", RemoteID: "01", RemoteUpdatedAt: at, DuplicateID: "02",
		LocalDeviceID: "dev-a", RemoteDeviceID: "dev-b", DetectedAt: at,
	}

	err := repo.InTx(ctx, func(tx RecordTx) error {
		seen, err := tx.ConflictSeen(ctx, "01", at)
		if err != nil || seen {
			t.Errorf("fresh log: seen=%v err=%v", seen, err)
		}
		return tx.LogConflict(ctx, c)
	})
	if err != nil {
		t.Fatalf("log conflict: %v", err)
	}

	_ = repo.InTx(ctx, func(tx RecordTx) error {
		if seen, _ := tx.ConflictSeen(ctx, "01", at); !seen {
			t.Errorf("expected conflict to be seen")
		}
		if seen, _ := tx.ConflictSeen(ctx, "01", at.Add(time.Millisecond)); seen {
			t.Errorf("different remote version must not match")
		}
		if dup, _ := tx.IsDuplicate(ctx, "02"); !dup {
			t.Errorf("expected 02 to be a duplicate")
		}
		return nil
	})

	list, err := repo.ListConflicts(ctx)
	if err != nil || len(list) != 1 || list[0] != c {
		t.Fatalf("unexpected conflicts %+v err=%v", list, err)
	}
	if err := repo.DismissConflict(ctx, "02"); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if err := repo.DismissConflict(ctx, "02"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second dismiss, got %v", err)
	}

	if list, _ := repo.ListConflicts(ctx); len(list) != 0 {
		t.Fatalf("dismissed conflict still listed: %+v", list)
	}
	_ = repo.InTx(ctx, func(tx RecordTx) error {
		if seen, _ := tx.ConflictSeen(ctx, "01", at); !seen {
			t.Errorf("dismissed conflict must still be seen by merges")
		}
		if dup, _ := tx.IsDuplicate(ctx, "02"); !dup {
			t.Errorf("dismissed duplicate must still be recognised")
		}
		return nil
	})
}

func TestSyncMeta(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	id, err := repo.DeviceID(ctx)
	if err != nil || id != "" {
		t.Fatalf("fresh device id = %q err=%v", id, err)
	}
	last, err := repo.LastSyncedAt(ctx)
	if err != nil || !last.IsZero() {
		t.Fatalf("fresh last synced = %v err=%v", last, err)
	}

	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	if err := repo.SetDeviceID(ctx, "dev-a"); err != nil {
		t.Fatalf("set device: %v", err)
	}
	if err := repo.SetLastSyncedAt(ctx, at); err != nil {
		t.Fatalf("set last synced: %v", err)
	}
	id, _ = repo.DeviceID(ctx)
	last, _ = repo.LastSyncedAt(ctx)
	if id != "dev-a" || !last.Equal(at) {
		t.Fatalf("meta = %q %v", id, last)
	}
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local.db")
	repo, err := NewSQLiteRepository(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := repo.SetDeviceID(ctx, "dev-a"); err != nil {
		t.Fatalf("set device: %v", err)
	}
	repo.Close()

	repo, err = NewSQLiteRepository(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer repo.Close()
	if id, _ := repo.DeviceID(ctx); id != "dev-a" {
		t.Fatalf("device id lost across reopen: %q", id)
	}
}
