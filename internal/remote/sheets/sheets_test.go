package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"household/internal/core"
)

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "sid"})
	if err == nil || !strings.Contains(err.Error(), "missing credentials") {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

func TestNewRejectsBadOAuthToken(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(tokenFile, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := New(context.Background(), Config{
		SpreadsheetID:   "sid",
		OAuthClientJSON: testOAuthClient,
		OAuthTokenFile:  tokenFile,
	})
	if err == nil || !strings.Contains(err.Error(), "holds no token") {
		t.Fatalf("expected empty token error, got %v", err)
	}
}

func TestTokenFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	want := &oauth2.Token{AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer"}
	if err := SaveToken(path, want); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file mode = %v, want 0600", perm)
	}
	got, err := LoadToken(path)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if got.AccessToken != "at" || got.RefreshToken != "rt" {
		t.Errorf("LoadToken = %+v", got)
	}

	ts, err := UserTokenSource(context.Background(), []byte(testOAuthClient), path)
	if err != nil || ts == nil {
		t.Fatalf("UserTokenSource: %v", err)
	}
}

func TestOAuthConfigScope(t *testing.T) {
	cfg, err := OAuthConfig([]byte(testOAuthClient))
	if err != nil {
		t.Fatalf("OAuthConfig: %v", err)
	}
	if len(cfg.Scopes) != 1 || cfg.Scopes[0] != gsheet.SpreadsheetsScope {
		t.Errorf("scopes = %v", cfg.Scopes)
	}
	if _, err := OAuthConfig([]byte(`{"nope": true}`)); err == nil {
		t.Error("expected error for a non-client json")
	}
}

const testOAuthClient = `{"installed":{"client_id":"cid","client_secret":"secret",` +
	`"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",` +
	`"redirect_uris":["http://localhost"]}}`

func TestNewWithServiceRequiresSpreadsheetID(t *testing.T) {
	svc, err := gsheet.NewService(context.Background(), goption.WithoutAuthentication())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := NewWithService(svc, " ", ""); err == nil {
		t.Fatal("expected missing spreadsheet id error")
	}
}

func TestParseRows(t *testing.T) {
	values := [][]any{
		{"a", "2024-03-05", "1,200", "food", "lunch", "2024-03-05T10:00:00.000Z", "2024-03-05T10:00:00.000Z", "dev"},
		{},
		{"", "", "", "", "", "", "", ""},
		{"broken", "2024-03-05", "abc", "", "", "2024-03-05T10:00:00.000Z", "2024-03-05T10:00:00.000Z", "dev"},
		{"short", "2024-03-05"},
		{"b", "2024-04-01", "300.0", "", "", "2024-04-01T00:00:00.000Z", "2024-04-01T00:00:00.000Z", "dev"},
		{"a", "2024-03-09", "999", "", "", "2024-03-09T00:00:00.000Z", "2024-03-09T00:00:00.000Z", "dev"},
	}
	rows := parseRows(values, 2)
	if len(rows) != 2 {
		t.Fatalf("want 2 rows, got %d: %+v", len(rows), rows)
	}
	a := rows["a"]
	if a.num != 2 || a.record.Amount != 1200 || a.record.Category != "food" || a.record.Memo != "lunch" {
		t.Errorf("unexpected row a: %+v", a)
	}
	if b := rows["b"]; b.num != 7 || b.record.Amount != 300 {
		t.Errorf("unexpected row b: %+v", b)
	}
}

func TestFormatRowRoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 5, 10, 0, 0, 123e6, time.UTC)
	want := core.ExpenseRecord{
		ID: "a", Amount: 4500, Category: "rent", Memo: "march",
		Date: "2024-03-01", CreatedAt: at, UpdatedAt: at, DeviceID: "dev",
	}
	got, err := parseRow(toStrings(formatRow(want)))
	if err != nil {
		t.Fatalf("parseRow: %v", err)
	}
	if got.ID != want.ID || got.Amount != want.Amount || got.Date != want.Date ||
		!got.UpdatedAt.Equal(want.UpdatedAt) || got.DeviceID != want.DeviceID {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestFetchByPeriodAgainstFakeEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v4/spreadsheets/sid/values/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"range": "Ledger!A2:H4",
			"values": [][]string{
				{"b", "2024-03-20", "800", "", "", "2024-03-20T00:00:00.000Z", "2024-03-20T00:00:00.000Z", "dev"},
				{"a", "2024-03-01", "500", "", "", "2024-03-01T00:00:00.000Z", "2024-03-01T00:00:00.000Z", "dev"},
				{"c", "2024-04-01", "100", "", "", "2024-04-01T00:00:00.000Z", "2024-04-01T00:00:00.000Z", "dev"},
			},
		})
	}))
	defer srv.Close()

	ctx := context.Background()
	svc, err := gsheet.NewService(ctx,
		goption.WithoutAuthentication(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	c, err := NewWithService(svc, "sid", "Ledger")
	if err != nil {
		t.Fatalf("NewWithService: %v", err)
	}

	got, err := c.FetchByPeriod(ctx, core.Period{Year: 2024, Month: time.March})
	if err != nil {
		t.Fatalf("FetchByPeriod: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("unexpected records %+v", got)
	}
}
