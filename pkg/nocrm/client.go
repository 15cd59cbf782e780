// Package nocrm provides a client for the noCRM prospecting-list API.
package nocrm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// MaxRowsPerRequest is the row-append chunk size the API accepts per call.
const MaxRowsPerRequest = 100

// DefaultColumns is the column header seed for new prospecting lists.
var DefaultColumns = []string{"Neighborhood", "Parsing Date", "Type", "Téléphone", "Rooms", "Size", "Energy"}

// Client defines the CRM destination operations used by the sync engine.
type Client interface {
	// ListSpreadsheets returns all prospecting lists (without row contents).
	ListSpreadsheets(ctx context.Context) ([]Spreadsheet, error)
	// GetSpreadsheet fetches one list including its full row set.
	GetSpreadsheet(ctx context.Context, listID int64) (*Spreadsheet, error)
	// CreateSpreadsheet creates a new prospecting list and returns it.
	CreateSpreadsheet(ctx context.Context, title string, tags []string) (*Spreadsheet, error)
	// AppendRows uploads rows to a list, chunked at MaxRowsPerRequest per call.
	AppendRows(ctx context.Context, listID int64, rows [][]any) error
	// DeleteRow removes a single row from a list.
	DeleteRow(ctx context.Context, listID, rowID int64) error
}

// Spreadsheet is a CRM prospecting list.
type Spreadsheet struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	Tags          []string `json:"tags"`
	TotalRowCount int      `json:"total_row_count"`
	ColumnNames   []string `json:"column_names"`
	Rows          []Row    `json:"spreadsheet_rows"`
}

// Row is a single prospect row inside a spreadsheet.
type Row struct {
	ID            int64  `json:"id"`
	IsActive      bool   `json:"is_active"`
	IsArchived    bool   `json:"is_archived"`
	Content       []any  `json:"content"`
	SpreadsheetID *int64 `json:"spreadsheet_id"`
}

// Option configures the noCRM client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default request rate limit.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	apiKey    string
	userEmail string
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates a new noCRM API client. userEmail is attached to lists
// created through this client. Requests are throttled to 3 req/s by default.
func NewClient(apiKey, userEmail string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		userEmail: userEmail,
		baseURL:   "https://capitalead26.nocrm.io",
		http: &http.Client{
			Timeout: 300 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(3, 3),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wait blocks until the rate limiter allows one event, or ctx is cancelled.
func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// do executes a request with exponential backoff retries on transient
// failures (429, 500, 502, 503). The payload is re-marshalled per attempt.
func (c *httpClient) do(ctx context.Context, method, path string, payload any) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.wait(ctx); err != nil {
			return nil, 0, eris.Wrap(err, "nocrm: rate limit")
		}

		var body io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return nil, 0, eris.Wrap(err, "nocrm: marshal request body")
			}
			body = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, 0, eris.Wrap(err, "nocrm: create request")
		}
		req.Header.Set("X-API-KEY", c.apiKey)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "nocrm: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("nocrm: status %d: %s", resp.StatusCode, string(respBody))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return respBody, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) ListSpreadsheets(ctx context.Context) ([]Spreadsheet, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/api/v2/spreadsheets?limit=1000", nil)
	if err != nil {
		return nil, eris.Wrap(err, "nocrm: list spreadsheets")
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("nocrm: list spreadsheets: status %d: %s", status, string(body))
	}

	var sheets []Spreadsheet
	if err := json.Unmarshal(body, &sheets); err != nil {
		return nil, eris.Wrap(err, "nocrm: unmarshal spreadsheets")
	}
	return sheets, nil
}

func (c *httpClient) GetSpreadsheet(ctx context.Context, listID int64) (*Spreadsheet, error) {
	body, status, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v2/spreadsheets/%d", listID), nil)
	if err != nil {
		return nil, eris.Wrapf(err, "nocrm: get spreadsheet %d", listID)
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("nocrm: get spreadsheet %d: status %d: %s", listID, status, string(body))
	}

	var sheet Spreadsheet
	if err := json.Unmarshal(body, &sheet); err != nil {
		return nil, eris.Wrap(err, "nocrm: unmarshal spreadsheet")
	}
	return &sheet, nil
}

func (c *httpClient) CreateSpreadsheet(ctx context.Context, title string, tags []string) (*Spreadsheet, error) {
	payload := map[string]any{
		"title":       title,
		"description": title,
		"content":     [][]string{DefaultColumns},
		"tags":        tags,
		"user_id":     c.userEmail,
	}

	body, status, err := c.do(ctx, http.MethodPost, "/api/v2/spreadsheets", payload)
	if err != nil {
		return nil, eris.Wrapf(err, "nocrm: create spreadsheet %q", title)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, eris.Errorf("nocrm: create spreadsheet %q: status %d: %s", title, status, string(body))
	}

	var sheet Spreadsheet
	if err := json.Unmarshal(body, &sheet); err != nil {
		return nil, eris.Wrap(err, "nocrm: unmarshal created spreadsheet")
	}
	return &sheet, nil
}

func (c *httpClient) AppendRows(ctx context.Context, listID int64, rows [][]any) error {
	for start := 0; start < len(rows); start += MaxRowsPerRequest {
		end := start + MaxRowsPerRequest
		if end > len(rows) {
			end = len(rows)
		}

		payload := map[string]any{"content": rows[start:end]}
		body, status, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v2/spreadsheets/%d/rows", listID), payload)
		if err != nil {
			return eris.Wrapf(err, "nocrm: append rows to list %d", listID)
		}
		if status != http.StatusOK && status != http.StatusCreated {
			return eris.Errorf("nocrm: append rows to list %d: status %d: %s", listID, status, string(body))
		}
	}
	return nil
}

func (c *httpClient) DeleteRow(ctx context.Context, listID, rowID int64) error {
	body, status, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v2/spreadsheets/%d/rows/%d", listID, rowID), nil)
	if err != nil {
		return eris.Wrapf(err, "nocrm: delete row %d in list %d", rowID, listID)
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return eris.Errorf("nocrm: delete row %d in list %d: status %d: %s", rowID, listID, status, string(body))
	}
	return nil
}
