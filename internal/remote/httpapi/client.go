// Package httpapi is the remote gateway that talks JSON to household-api.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"household/internal/core"
	"household/internal/remote"
	"household/internal/retry"
)

// Response bodies shared with the server.
type (
	UpsertResponse struct {
		Success bool   `json:"success"`
		Created bool   `json:"created,omitempty"`
		Updated bool   `json:"updated"`
		Message string `json:"message,omitempty"`
	}

	ListResponse struct {
		Expenses []remote.Record `json:"expenses"`
	}

	UpdateResponse struct {
		Success bool `json:"success"`
		Updated bool `json:"updated"`
	}

	DeleteResponse struct {
		Success bool `json:"success"`
	}

	BudgetBody struct {
		Month  string `json:"month"`
		Amount int64  `json:"amount"`
	}

	ErrorResponse struct {
		Error string `json:"error"`
	}
)

// StatusError is a non-2xx answer that is worth retrying.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote returned %d", e.Code)
	}
	return fmt.Sprintf("remote returned %d: %s", e.Code, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
}

var (
	_ remote.Gateway     = (*Client)(nil)
	_ remote.BudgetStore = (*Client)(nil)
	_ remote.Pinger      = (*Client)(nil)
)

// New creates a client. A nil httpClient gets a 15s-timeout default.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = newHTTPClient()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func newHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 15 * time.Second}
}

func (c *Client) CreateOrUpdate(ctx context.Context, r core.ExpenseRecord) (remote.UpsertResult, error) {
	var resp UpsertResponse
	if _, err := c.do(ctx, http.MethodPost, "/api/expenses", remote.ToWire(r), &resp); err != nil {
		return remote.UpsertResult{}, fmt.Errorf("upload expense %s: %w", r.ID, err)
	}
	return remote.UpsertResult{Created: resp.Created, Updated: resp.Updated || resp.Created}, nil
}

func (c *Client) FetchByPeriod(ctx context.Context, p core.Period) ([]core.ExpenseRecord, error) {
	var resp ListResponse
	path := "/api/expenses?month=" + url.QueryEscape(p.String())
	if _, err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch expenses for %s: %w", p, err)
	}
	out := make([]core.ExpenseRecord, 0, len(resp.Expenses))
	for _, w := range resp.Expenses {
		r, err := remote.FromWire(w)
		if err != nil {
			return nil, fmt.Errorf("decode expenses for %s: %w", p, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (c *Client) Update(ctx context.Context, id string, patch core.Patch, updatedAt time.Time, deviceID string) (remote.UpdateResult, error) {
	body := remote.UpdateRequest{
		Patch:     patch,
		UpdatedAt: remote.FormatTime(updatedAt),
		DeviceID:  deviceID,
	}
	var resp UpdateResponse
	status, err := c.do(ctx, http.MethodPatch, "/api/expenses/"+url.PathEscape(id), body, &resp)
	if status == http.StatusNotFound {
		return remote.UpdateResult{Success: false}, nil
	}
	if err != nil {
		return remote.UpdateResult{}, fmt.Errorf("update expense %s: %w", id, err)
	}
	return remote.UpdateResult{Success: resp.Success, Updated: resp.Updated}, nil
}

func (c *Client) Delete(ctx context.Context, id string) (remote.DeleteResult, error) {
	var resp DeleteResponse
	if _, err := c.do(ctx, http.MethodDelete, "/api/expenses/"+url.PathEscape(id), nil, &resp); err != nil {
		return remote.DeleteResult{}, fmt.Errorf("delete expense %s: %w", id, err)
	}
	return remote.DeleteResult{Success: resp.Success}, nil
}

func (c *Client) GetBudget(ctx context.Context, p core.Period) (int64, bool, error) {
	var resp BudgetBody
	status, err := c.do(ctx, http.MethodGet, "/api/budgets/"+p.String(), nil, &resp)
	if status == http.StatusNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get budget for %s: %w", p, err)
	}
	return resp.Amount, true, nil
}

func (c *Client) SetBudget(ctx context.Context, p core.Period, amount int64) error {
	body := BudgetBody{Month: p.String(), Amount: amount}
	if _, err := c.do(ctx, http.MethodPut, "/api/budgets/"+p.String(), body, nil); err != nil {
		return fmt.Errorf("set budget for %s: %w", p, err)
	}
	return nil
}

// Ping hits the liveness endpoint once.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	return err
}

// do sends one request. It returns the status code (0 if none was received)
// and an error classified for retry: 4xx answers other than 404/408/429 are
// permanent rejections.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, retry.Permanent(fmt.Errorf("marshal request: %w", err))
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var e ErrorResponse
		_ = json.Unmarshal(data, &e)
		return resp.StatusCode, classify(resp.StatusCode, e.Error)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func classify(code int, msg string) error {
	switch {
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		return retry.Permanent(fmt.Errorf("%w: %s", remote.ErrRejected, msg))
	case code == http.StatusNotFound, code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return &StatusError{Code: code, Message: msg}
	default:
		return retry.Permanent(&StatusError{Code: code, Message: msg})
	}
}

// IsNotFound reports whether err carries a 404 from the remote.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}
