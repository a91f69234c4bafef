package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"household/internal/amqp"
	"household/internal/core"
	"household/internal/ledger"
	"household/internal/remote"
	"household/internal/remote/httpapi"
	"household/internal/retry"
)

type fakePublisher struct {
	mu      sync.Mutex
	notices []amqp.ChangeNotice
	err     error
}

func (p *fakePublisher) PublishChange(_ context.Context, n amqp.ChangeNotice) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, n)
	return p.err
}

func (p *fakePublisher) ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.notices))
	for i, n := range p.notices {
		out[i] = n.Op + ":" + n.ID + ":" + n.Month
	}
	return out
}

func newTestServer(t *testing.T, cfg Config) (*httptest.Server, *httpapi.Client, *fakePublisher) {
	t.Helper()
	ctx := context.Background()
	store, err := ledger.Open(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	pub := &fakePublisher{}
	srv, err := NewServer(cfg, store, pub, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown(context.Background())
	})
	return ts, httpapi.New(ts.URL, ts.Client()), pub
}

var march = core.Period{Year: 2024, Month: time.March}

func record(id string, amount int64, at time.Time, device string) core.ExpenseRecord {
	return core.ExpenseRecord{
		ID: id, Amount: amount, Category: "food", Date: "2024-03-05",
		CreatedAt: at, UpdatedAt: at, DeviceID: device,
	}
}

func TestUpsertAndFetch(t *testing.T) {
	_, c, pub := newTestServer(t, Config{})
	ctx := context.Background()
	t0 := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	res, err := c.CreateOrUpdate(ctx, record("a", 1200, t0, "dev1"))
	if err != nil || !res.Created {
		t.Fatalf("first upload = %+v, %v", res, err)
	}
	res, err = c.CreateOrUpdate(ctx, record("a", 1200, t0, "dev1"))
	if err != nil || res.Created || res.Updated {
		t.Fatalf("repeat upload = %+v, %v", res, err)
	}

	got, err := c.FetchByPeriod(ctx, march)
	if err != nil || len(got) != 1 || got[0].Amount != 1200 {
		t.Fatalf("FetchByPeriod = %+v, %v", got, err)
	}

	// Newer write must purge the cached month.
	res, err = c.CreateOrUpdate(ctx, record("a", 1500, t0.Add(time.Second), "dev2"))
	if err != nil || !res.Updated {
		t.Fatalf("newer upload = %+v, %v", res, err)
	}
	got, err = c.FetchByPeriod(ctx, march)
	if err != nil || len(got) != 1 || got[0].Amount != 1500 || got[0].DeviceID != "dev2" {
		t.Fatalf("after update FetchByPeriod = %+v, %v", got, err)
	}

	if ops := pub.ops(); len(ops) != 2 || ops[0] != "upsert:a:2024-03" {
		t.Fatalf("notices = %v", ops)
	}
}

// slowLedger runs afterFetch once, between reading a month and returning it.
type slowLedger struct {
	*ledger.Store
	once       sync.Once
	afterFetch func()
}

func (l *slowLedger) FetchByPeriod(ctx context.Context, p core.Period) ([]core.ExpenseRecord, error) {
	out, err := l.Store.FetchByPeriod(ctx, p)
	l.once.Do(l.afterFetch)
	return out, err
}

func TestListingReadBeforeWriteIsNotCached(t *testing.T) {
	ctx := context.Background()
	store, err := ledger.Open(ctx, filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	t0 := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	slow := &slowLedger{Store: store}
	srv, err := NewServer(Config{}, slow, nil, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown(context.Background())
	})
	c := httpapi.New(ts.URL, ts.Client())

	// A write lands while the first listing is in flight.
	slow.afterFetch = func() {
		if _, err := c.CreateOrUpdate(ctx, record("a", 500, t0, "dev1")); err != nil {
			t.Errorf("concurrent upsert: %v", err)
		}
	}

	first, err := c.FetchByPeriod(ctx, march)
	if err != nil || len(first) != 0 {
		t.Fatalf("first listing = %+v, %v", first, err)
	}
	if n := srv.months.Size(); n != 0 {
		t.Fatalf("stale listing cached: %d entries", n)
	}
	second, err := c.FetchByPeriod(ctx, march)
	if err != nil || len(second) != 1 || second[0].ID != "a" {
		t.Fatalf("second listing = %+v, %v", second, err)
	}
}

func TestCacheMonthSkipsAfterInvalidation(t *testing.T) {
	srv, err := NewServer(Config{}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Shutdown(context.Background())

	gen := srv.monthsGeneration()
	if !srv.cacheMonth(gen, "2024-03", nil) {
		t.Fatal("listing at the current generation should be cached")
	}
	srv.invalidateMonths()
	if srv.months.Size() != 0 {
		t.Fatal("invalidate should purge cached listings")
	}
	if srv.cacheMonth(gen, "2024-03", nil) {
		t.Fatal("listing read before a write must not be cached")
	}
}

func TestUpsertRejectsInvalidRecords(t *testing.T) {
	_, c, pub := newTestServer(t, Config{})
	t0 := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	badDate := record("c", 5, t0, "dev")
	badDate.Date = "March"

	tests := []struct {
		name string
		rec  core.ExpenseRecord
	}{
		{"zero amount", record("a", 0, t0, "dev")},
		{"negative amount", record("b", -5, t0, "dev")},
		{"bad date", badDate},
		{"missing device", record("d", 5, t0, "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CreateOrUpdate(context.Background(), tt.rec)
			if !errors.Is(err, remote.ErrRejected) || !retry.IsPermanent(err) {
				t.Fatalf("want permanent rejection, got %v", err)
			}
		})
	}
	if len(pub.ops()) != 0 {
		t.Fatalf("rejected writes published %v", pub.ops())
	}
}

func TestUpdateExpense(t *testing.T) {
	_, c, pub := newTestServer(t, Config{})
	ctx := context.Background()
	t0 := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	if _, err := c.CreateOrUpdate(ctx, record("a", 1200, t0, "dev1")); err != nil {
		t.Fatal(err)
	}

	amount := int64(900)
	patch := core.Patch{Amount: &amount}

	res, err := c.Update(ctx, "a", patch, t0, "dev2")
	if err != nil || !res.Success || res.Updated {
		t.Fatalf("stale update = %+v, %v", res, err)
	}
	res, err = c.Update(ctx, "a", patch, t0.Add(time.Minute), "dev2")
	if err != nil || !res.Success || !res.Updated {
		t.Fatalf("newer update = %+v, %v", res, err)
	}
	res, err = c.Update(ctx, "missing", patch, t0.Add(time.Minute), "dev2")
	if err != nil || res.Success {
		t.Fatalf("unknown id = %+v, %v", res, err)
	}

	zero := int64(0)
	if _, err := c.Update(ctx, "a", core.Patch{Amount: &zero}, t0.Add(2*time.Minute), "dev2"); !errors.Is(err, remote.ErrRejected) {
		t.Fatalf("zero amount patch: %v", err)
	}

	got, _ := c.FetchByPeriod(ctx, march)
	if len(got) != 1 || got[0].Amount != 900 || got[0].Category != "food" {
		t.Fatalf("after patch %+v", got)
	}
	if ops := pub.ops(); len(ops) != 2 || ops[1] != "update:a:2024-03" {
		t.Fatalf("notices = %v", ops)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	_, c, pub := newTestServer(t, Config{})
	ctx := context.Background()
	t0 := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	if _, err := c.CreateOrUpdate(ctx, record("a", 1200, t0, "dev1")); err != nil {
		t.Fatal(err)
	}
	c.FetchByPeriod(ctx, march)

	for i := 0; i < 2; i++ {
		res, err := c.Delete(ctx, "a")
		if err != nil || !res.Success {
			t.Fatalf("delete %d = %+v, %v", i, res, err)
		}
	}
	got, err := c.FetchByPeriod(ctx, march)
	if err != nil || len(got) != 0 {
		t.Fatalf("after delete %+v, %v", got, err)
	}
	if ops := pub.ops(); len(ops) != 2 || ops[1] != "delete:a:2024-03" {
		t.Fatalf("notices = %v", ops)
	}
}

func TestBudgets(t *testing.T) {
	_, c, _ := newTestServer(t, Config{})
	ctx := context.Background()

	if _, ok, err := c.GetBudget(ctx, march); err != nil || ok {
		t.Fatalf("missing budget: ok=%v err=%v", ok, err)
	}
	if err := c.SetBudget(ctx, march, 150000); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}
	v, ok, err := c.GetBudget(ctx, march)
	if err != nil || !ok || v != 150000 {
		t.Fatalf("GetBudget = %d %v %v", v, ok, err)
	}
	if err := c.SetBudget(ctx, march, -1); !errors.Is(err, remote.ErrRejected) {
		t.Fatalf("negative budget: %v", err)
	}
}

func TestListRejectsBadMonth(t *testing.T) {
	ts, _, _ := newTestServer(t, Config{})
	resp, err := ts.Client().Get(ts.URL + "/api/expenses?month=2024-13")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var e httpapi.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
		t.Fatalf("error body %+v, %v", e, err)
	}
}

func TestHealthAndRequestID(t *testing.T) {
	ts, c, _ := newTestServer(t, Config{})
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	resp, err := ts.Client().Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status %d", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("X-Request-ID"), "req_") {
		t.Fatalf("missing request id header: %q", resp.Header.Get("X-Request-ID"))
	}
}

func TestRateLimitAppliesToAPIOnly(t *testing.T) {
	ts, _, _ := newTestServer(t, Config{RateLimitPerMinute: 1})

	get := func(path string) int {
		resp, err := ts.Client().Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if code := get("/api/expenses?month=2024-03"); code != http.StatusOK {
		t.Fatalf("first request %d", code)
	}
	if code := get("/api/expenses?month=2024-03"); code != http.StatusTooManyRequests {
		t.Fatalf("second request %d", code)
	}
	if code := get("/healthz"); code != http.StatusOK {
		t.Fatalf("healthz throttled: %d", code)
	}
}
