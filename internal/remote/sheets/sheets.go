// Package sheets keeps the remote ledger in a Google Sheets tab, one row
// per record. Useful for a household that already budgets in a spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"household/internal/core"
	"household/internal/remote"
	"household/internal/retry"
)

// Config selects the spreadsheet and the credentials. A service account
// wins over an OAuth client when both are set.
type Config struct {
	SpreadsheetID   string
	SheetName       string // default "Ledger"
	CredentialsJSON string
	CredentialsFile string

	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenFile  string
}

// Client implements remote.Gateway over the Sheets values API.
//
// Sheets has no transactions, so last-writer-wins is checked with a
// read-then-write that is serialized only within this process.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string

	mu sync.Mutex
}

var _ remote.Gateway = (*Client)(nil)

// New creates a client authenticated with a service account or a saved
// OAuth user token.
func New(ctx context.Context, cfg Config) (*Client, error) {
	opts, err := clientOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets gateway ready",
		"spreadsheet_id", cfg.SpreadsheetID,
		"sheet", sheetName(cfg))
	return NewWithService(svc, cfg.SpreadsheetID, sheetName(cfg))
}

// NewWithService wraps an existing service, e.g. one pointed at a test endpoint.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheet string) (*Client, error) {
	if svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if sheet == "" {
		sheet = "Ledger"
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheet: sheet}, nil
}

func sheetName(cfg Config) string {
	if s := strings.TrimSpace(cfg.SheetName); s != "" {
		return s
	}
	return "Ledger"
}

func clientOptions(ctx context.Context, cfg Config) ([]goption.ClientOption, error) {
	creds, err := readSecret(cfg.CredentialsJSON, cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read service account: %w", err)
	}
	if creds != nil {
		return []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}, nil
	}

	client, err := readSecret(cfg.OAuthClientJSON, cfg.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	if client == nil || strings.TrimSpace(cfg.OAuthTokenFile) == "" {
		return nil, errors.New("missing credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE, or an OAuth client with GOOGLE_OAUTH_TOKEN_FILE)")
	}
	ts, err := UserTokenSource(ctx, client, cfg.OAuthTokenFile)
	if err != nil {
		return nil, err
	}
	return []goption.ClientOption{goption.WithTokenSource(ts)}, nil
}

// readSecret returns inline if set, else the contents of file, else nil.
func readSecret(inline, file string) ([]byte, error) {
	switch {
	case strings.TrimSpace(inline) != "":
		return []byte(inline), nil
	case strings.TrimSpace(file) != "":
		return os.ReadFile(file)
	default:
		return nil, nil
	}
}

// readAll returns every parsable data row keyed by id.
func (c *Client) readAll(ctx context.Context) (map[string]row, error) {
	rng := fmt.Sprintf("%s!A2:H", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseRows(resp.Values, 2), nil
}

func (c *Client) writeRow(ctx context.Context, rowNum int, r core.ExpenseRecord) error {
	rng := fmt.Sprintf("%s!A%d:H%d", c.sheet, rowNum, rowNum)
	vr := &gsheet.ValueRange{Values: [][]any{formatRow(r)}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", rng, err)
	}
	return nil
}

func (c *Client) CreateOrUpdate(ctx context.Context, r core.ExpenseRecord) (remote.UpsertResult, error) {
	if err := r.Validate(); err != nil {
		return remote.UpsertResult{}, retry.Permanent(fmt.Errorf("%w: %v", remote.ErrRejected, err))
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.readAll(ctx)
	if err != nil {
		return remote.UpsertResult{}, err
	}

	if existing, ok := rows[r.ID]; ok {
		if !core.Supersedes(existing.record, r) {
			return remote.UpsertResult{}, nil
		}
		if err := c.writeRow(ctx, existing.num, r); err != nil {
			return remote.UpsertResult{}, err
		}
		return remote.UpsertResult{Updated: true}, nil
	}

	rng := fmt.Sprintf("%s!A:H", c.sheet)
	vr := &gsheet.ValueRange{Values: [][]any{formatRow(r)}}
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return remote.UpsertResult{}, fmt.Errorf("append to %s: %w", c.sheet, err)
	}
	return remote.UpsertResult{Created: true, Updated: true}, nil
}

func (c *Client) FetchByPeriod(ctx context.Context, p core.Period) ([]core.ExpenseRecord, error) {
	rows, err := c.readAll(ctx)
	if err != nil {
		return nil, err
	}
	return inPeriod(rows, p), nil
}

func (c *Client) Update(ctx context.Context, id string, patch core.Patch, updatedAt time.Time, deviceID string) (remote.UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.readAll(ctx)
	if err != nil {
		return remote.UpdateResult{}, err
	}
	existing, ok := rows[id]
	if !ok {
		return remote.UpdateResult{Success: false}, nil
	}
	if !updatedAt.After(existing.record.UpdatedAt) {
		return remote.UpdateResult{Success: true, Updated: false}, nil
	}

	next := patch.Apply(existing.record)
	next.UpdatedAt = core.Timestamp(updatedAt)
	next.DeviceID = deviceID
	if err := next.Validate(); err != nil {
		return remote.UpdateResult{}, retry.Permanent(fmt.Errorf("%w: %v", remote.ErrRejected, err))
	}
	if err := c.writeRow(ctx, existing.num, next); err != nil {
		return remote.UpdateResult{}, err
	}
	return remote.UpdateResult{Success: true, Updated: true}, nil
}

// Delete blanks the record's row. Blank rows are skipped on read.
func (c *Client) Delete(ctx context.Context, id string) (remote.DeleteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.readAll(ctx)
	if err != nil {
		return remote.DeleteResult{}, err
	}
	existing, ok := rows[id]
	if !ok {
		return remote.DeleteResult{Success: true}, nil
	}

	rng := fmt.Sprintf("%s!A%d:H%d", c.sheet, existing.num, existing.num)
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return remote.DeleteResult{}, fmt.Errorf("clear %s: %w", rng, err)
	}
	return remote.DeleteResult{Success: true}, nil
}

// Ping reads the header row.
func (c *Client) Ping(ctx context.Context) error {
	rng := fmt.Sprintf("%s!A1:H1", c.sheet)
	_, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	return err
}
