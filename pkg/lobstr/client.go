// Package lobstr provides a client for the Lobstr scraping API.
package lobstr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	runsPageLimit  = 120
	resultPageSize = 1000000
)

// Client defines the scraping-source operations used by the sync engine.
type Client interface {
	// ListRunIDs returns the ids of all completed ("done") runs for a cluster.
	ListRunIDs(ctx context.Context, clusterID string) ([]string, error)
	// FetchRecords returns every raw record produced by a run.
	FetchRecords(ctx context.Context, runID string) ([]RawRecord, error)
	// ListClusters returns all active clusters.
	ListClusters(ctx context.Context) ([]Cluster, error)
	// GetCluster fetches one cluster. Returns nil when the cluster does not exist.
	GetCluster(ctx context.Context, clusterID string) (*Cluster, error)
}

// Cluster is an upstream grouping of scrape configurations.
type Cluster struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Run is one scrape execution within a cluster.
type Run struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// listPage is the paginated envelope the API wraps every collection in.
type listPage[T any] struct {
	Count      int64 `json:"count"`
	Page       int64 `json:"page"`
	Limit      int64 `json:"limit"`
	Data       []T   `json:"data"`
	TotalPages int64 `json:"total_pages"`
}

type apiError struct {
	Errors struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"errors"`
}

// Option configures the Lobstr client.
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
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new Lobstr API client. Requests are throttled to
// 5 req/s by default.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: "https://api.lobstr.io",
		http: &http.Client{
			Timeout: 300 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 5),
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

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// get executes a GET request with exponential backoff retries on transient
// failures (429, 500, 502, 503). Returns the response body and status code.
func (c *httpClient) get(ctx context.Context, path string) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, eris.Wrap(err, "lobstr: create request")
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.wait(ctx); err != nil {
			return nil, 0, eris.Wrap(err, "lobstr: rate limit")
		}

		resp, err := c.http.Do(req.Clone(ctx))
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

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "lobstr: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("lobstr: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) ListRunIDs(ctx context.Context, clusterID string) ([]string, error) {
	var ids []string
	page := int64(0)
	var totalPages int64

	for {
		page++
		path := fmt.Sprintf("/v1/runs?cluster=%s&limit=%d&page=%d", url.QueryEscape(clusterID), runsPageLimit, page)

		body, status, err := c.get(ctx, path)
		if err != nil {
			return nil, eris.Wrapf(err, "lobstr: list runs for cluster %s", clusterID)
		}
		if status != http.StatusOK {
			return nil, eris.Errorf("lobstr: list runs for cluster %s: status %d: %s", clusterID, status, string(body))
		}

		var result listPage[Run]
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, eris.Wrap(err, "lobstr: unmarshal runs page")
		}

		for _, run := range result.Data {
			if run.Status == "done" {
				ids = append(ids, run.ID)
			}
		}

		totalPages = result.TotalPages
		if page >= totalPages {
			return ids, nil
		}
	}
}

func (c *httpClient) FetchRecords(ctx context.Context, runID string) ([]RawRecord, error) {
	var records []RawRecord
	page := int64(0)
	var totalPages int64

	for {
		page++
		path := fmt.Sprintf("/v1/results?page=%d&run=%s&page_size=%d", page, url.QueryEscape(runID), resultPageSize)

		body, status, err := c.get(ctx, path)
		if err != nil {
			return nil, eris.Wrapf(err, "lobstr: fetch records for run %s", runID)
		}
		if status != http.StatusOK {
			return nil, eris.Errorf("lobstr: fetch records for run %s: status %d: %s", runID, status, string(body))
		}

		var result listPage[RawRecord]
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, eris.Wrap(err, "lobstr: unmarshal results page")
		}

		records = append(records, result.Data...)

		totalPages = result.TotalPages
		if page >= totalPages {
			return records, nil
		}
	}
}

func (c *httpClient) ListClusters(ctx context.Context) ([]Cluster, error) {
	body, status, err := c.get(ctx, "/v1/clusters")
	if err != nil {
		return nil, eris.Wrap(err, "lobstr: list clusters")
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("lobstr: list clusters: status %d: %s", status, string(body))
	}

	var result listPage[Cluster]
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "lobstr: unmarshal clusters")
	}

	var active []Cluster
	for _, cl := range result.Data {
		if cl.IsActive {
			active = append(active, cl)
		}
	}
	return active, nil
}

func (c *httpClient) GetCluster(ctx context.Context, clusterID string) (*Cluster, error) {
	body, status, err := c.get(ctx, "/v1/clusters/"+url.PathEscape(clusterID))
	if err != nil {
		return nil, eris.Wrapf(err, "lobstr: get cluster %s", clusterID)
	}

	if status == http.StatusBadRequest {
		var apiErr apiError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Errors.Type == "ClusterDoesNotExistException" {
			return nil, nil
		}
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("lobstr: get cluster %s: status %d: %s", clusterID, status, string(body))
	}

	var cluster Cluster
	if err := json.Unmarshal(body, &cluster); err != nil {
		return nil, eris.Wrap(err, "lobstr: unmarshal cluster")
	}
	return &cluster, nil
}
