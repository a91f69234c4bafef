package device

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"household/internal/storage"
)

func TestEnsureIsStableAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local.db")

	repo, err := storage.NewSQLiteRepository(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	first, err := Ensure(ctx, repo)
	if err != nil || first == "" {
		t.Fatalf("ensure: id=%q err=%v", first, err)
	}
	again, _ := Ensure(ctx, repo)
	if again != first {
		t.Fatalf("id changed within a session: %s -> %s", first, again)
	}
	repo.Close()

	repo, err = storage.NewSQLiteRepository(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer repo.Close()
	after, _ := Ensure(ctx, repo)
	if after != first {
		t.Fatalf("id changed across restart: %s -> %s", first, after)
	}
}

type failingMeta struct{ err error }

func (f failingMeta) DeviceID(context.Context) (string, error)         { return "", f.err }
func (f failingMeta) SetDeviceID(context.Context, string) error        { return f.err }
func (f failingMeta) LastSyncedAt(context.Context) (time.Time, error)  { return time.Time{}, f.err }
func (f failingMeta) SetLastSyncedAt(context.Context, time.Time) error { return f.err }

func TestEnsurePropagatesStoreErrors(t *testing.T) {
	boom := errors.New("disk gone")
	if _, err := Ensure(context.Background(), failingMeta{err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}
