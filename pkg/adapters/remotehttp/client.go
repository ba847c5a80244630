// Package remotehttp implements the remote document store over the sync
// backend's JSON HTTP API, with a WebSocket stream for subscriptions.
// Documents are path-addressed (users/{ownerId}/{kind}/{id}); batches commit
// atomically server-side up to a ceiling.
package remotehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lingopad/lexsync/pkg/core"
)

// Client implements core.RemoteStore against the HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// Options configures the client. Zero values fall back to defaults matching
// the server's published limits.
type Options struct {
	// BaseURL is the API origin, e.g. "https://sync.lingopad.app".
	BaseURL string
	// Token is the bearer credential minted by the identity provider.
	Token string
	// HTTPClient overrides the default client (15s timeout).
	HTTPClient *http.Client
	Logger     *slog.Logger
	// MaxRetries bounds transport-level retries per call (default 3).
	MaxRetries int
}

// New creates a client. The identity provider owns token refresh; swap
// tokens by calling SetToken.
func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("remotehttp: base URL is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(opts.Token),
		httpClient: hc,
		logger:     opts.Logger,
		maxRetries: maxRetries,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}, nil
}

// SetToken replaces the bearer token after a session refresh.
func (c *Client) SetToken(token string) {
	c.token = strings.TrimSpace(token)
}

type wireDocument struct {
	Path   string         `json:"path"`
	Fields map[string]any `json:"fields"`
}

type wireQuery struct {
	Path       string         `json:"path"`
	Filters    map[string]any `json:"filters,omitempty"`
	OrderBy    string         `json:"orderBy,omitempty"`
	Descending bool           `json:"descending,omitempty"`
	Limit      int            `json:"limit,omitempty"`
}

type wireBatchOp struct {
	Kind   string         `json:"kind"`
	Path   string         `json:"path"`
	Fields map[string]any `json:"fields,omitempty"`
	Merge  bool           `json:"merge,omitempty"`
}

// Get fetches one document. Absence maps to core.ErrNotFound.
func (c *Client) Get(ctx context.Context, path string) (core.Document, error) {
	var out wireDocument
	err := c.doJSON(ctx, http.MethodGet, "/v1/docs/"+url.PathEscape(path), nil, &out)
	if err != nil {
		return core.Document{}, err
	}
	if out.Path == "" {
		out.Path = path
	}
	return core.Document{Path: out.Path, Fields: out.Fields}, nil
}

// Set writes a document. With merge, the server folds fields into the
// existing document instead of replacing it.
func (c *Client) Set(ctx context.Context, path string, fields map[string]any, merge bool) error {
	target := "/v1/docs/" + url.PathEscape(path)
	if merge {
		target += "?merge=1"
	}
	return c.doJSON(ctx, http.MethodPut, target, fields, nil)
}

// Delete removes a document. Deleting an absent document succeeds.
func (c *Client) Delete(ctx context.Context, path string) error {
	err := c.doJSON(ctx, http.MethodDelete, "/v1/docs/"+url.PathEscape(path), nil, nil)
	if err == core.ErrNotFound {
		return nil
	}
	return err
}

// Query lists documents under a collection path with optional field
// equality filters and ordering.
func (c *Client) Query(ctx context.Context, q core.Query) ([]core.Document, error) {
	body := wireQuery{
		Path:       q.Path,
		Filters:    q.Filters,
		OrderBy:    q.OrderBy,
		Descending: q.Descending,
		Limit:      q.Limit,
	}
	var out struct {
		Documents []wireDocument `json:"documents"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/query", body, &out); err != nil {
		return nil, err
	}
	docs := make([]core.Document, 0, len(out.Documents))
	for _, d := range out.Documents {
		docs = append(docs, core.Document{Path: d.Path, Fields: d.Fields})
	}
	return docs, nil
}

// BatchWrite commits ops atomically. When the server rejects part of an
// oversized or conflicting batch it answers 207 with the failed paths; that
// surfaces as core.PartialBatchError keyed by record id so the orchestrator
// re-enqueues exactly the remainder.
func (c *Client) BatchWrite(ctx context.Context, ops []core.WriteOp) error {
	if len(ops) == 0 {
		return nil
	}
	wireOps := make([]wireBatchOp, 0, len(ops))
	for _, op := range ops {
		wireOps = append(wireOps, wireBatchOp{
			Kind:   string(op.Kind),
			Path:   op.Path,
			Fields: op.Fields,
			Merge:  op.Merge,
		})
	}
	body := map[string]any{"ops": wireOps}
	var out struct {
		FailedPaths []string `json:"failedPaths"`
		Message     string   `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/batch", body, &out); err != nil {
		return err
	}
	if len(out.FailedPaths) > 0 {
		ids := make([]string, 0, len(out.FailedPaths))
		for _, p := range out.FailedPaths {
			ids = append(ids, lastSegment(p))
		}
		return &core.PartialBatchError{FailedIDs: ids, Err: fmt.Errorf("%s", out.Message)}
	}
	return nil
}

// doJSON performs one API call with bounded transport retries. 429 and 5xx
// responses honor Retry-After and back off exponentially; 401/403 map to
// ErrPermissionDenied, 404 to ErrNotFound, timeouts to TransientError.
func (c *Client) doJSON(ctx context.Context, method, requestPath string, body, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("X-Correlation-Id", correlationID())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt < c.maxRetries {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return core.Transient(err)
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return core.Transient(readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payload) == 0 {
				return nil
			}
			return json.Unmarshal(payload, out)
		}

		retryable := resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode == http.StatusRequestTimeout ||
			(resp.StatusCode >= 500 && resp.StatusCode <= 599)
		if retryable && attempt < c.maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		return c.mapStatus(resp.StatusCode, payload)
	}
}

func (c *Client) mapStatus(status int, payload []byte) error {
	var errPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payload, &errPayload)

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", core.ErrPermissionDenied, errPayload.Message)
	case http.StatusNotFound:
		return core.ErrNotFound
	}
	err := fmt.Errorf("http %d %s: %s", status, errPayload.Code, errPayload.Message)
	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500 {
		return core.Transient(err)
	}
	return err
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func lastSegment(path string) string {
	path = strings.Trim(path, "/")
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

func correlationID() string {
	return "sync_" + uuid.NewString()
}

var _ core.RemoteStore = (*Client)(nil)
