package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/shingolive/internal/events"
	"github.com/alfredjeanlab/shingolive/internal/model"
	"github.com/alfredjeanlab/shingolive/internal/presence"
)

const (
	// requestTimeout bounds a single API call. The event stream itself is
	// read by the sse package, not through this client.
	requestTimeout = 30 * time.Second

	// maxResponse bounds how much of a response body is read.
	maxResponse = 8 << 20
)

// HTTPClient implements StreamClient over the server's HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient returns a client for baseURL (e.g. "http://localhost:8080").
// A non-empty token is sent as a bearer token.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Emit sends a stream event and returns the id the server assigned.
func (c *HTTPClient) Emit(ctx context.Context, name string, payload json.RawMessage) (int64, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	var resp struct {
		ID int64 `json:"id"`
	}
	err := c.call(ctx, http.MethodPost, "/v1/events/"+url.PathEscape(name), nil, payload, &resp)
	return resp.ID, err
}

// ListEvents reads the server's event log.
func (c *HTTPClient) ListEvents(ctx context.Context, req *ListEventsRequest) ([]*model.Event, error) {
	q := url.Values{}
	if req.After > 0 {
		q.Set("after", strconv.FormatInt(req.After, 10))
	}
	if len(req.Names) > 0 {
		q.Set("names", strings.Join(req.Names, ","))
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	var resp struct {
		Events []*model.Event `json:"events"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/events", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// Status returns the server's merged system status.
func (c *HTTPClient) Status(ctx context.Context) (events.Status, error) {
	var st events.Status
	if err := c.call(ctx, http.MethodGet, "/v1/status", nil, nil, &st); err != nil {
		return events.Status{}, err
	}
	return st, nil
}

// Clients returns the roster of stream clients, including disconnected ones
// still remembered when includeGone is set.
func (c *HTTPClient) Clients(ctx context.Context, includeGone bool) ([]presence.Entry, error) {
	var q url.Values
	if includeGone {
		q = url.Values{"all": {"true"}}
	}
	var resp struct {
		Clients []presence.Entry `json:"clients"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/clients", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Clients, nil
}

func (c *HTTPClient) Diagnostics(ctx context.Context) (*Diagnostics, error) {
	var d Diagnostics
	if err := c.call(ctx, http.MethodGet, "/v1/diagnostics", nil, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Health returns the status string from GET /v1/health.
func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/health", nil, nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsNotConfigured reports whether err means the server lacks the optional
// backend (such as the event log) the call needs.
func IsNotConfigured(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotImplemented
}

// call sends body (already JSON, or nil) and decodes a 2xx response into out.
func (c *HTTPClient) call(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return newAPIError(resp.StatusCode, data)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// newAPIError prefers the server's {"error": "..."} message over the raw body.
func newAPIError(code int, body []byte) *APIError {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return &APIError{StatusCode: code, Message: e.Error}
	}
	return &APIError{StatusCode: code, Message: string(body)}
}
