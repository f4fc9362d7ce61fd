package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alfredjeanlab/shingolive/internal/events"
)

// testHandler captures the incoming request details and returns a canned response.
type testHandler struct {
	// captured from the request
	method      string
	path        string
	rawPath     string // URL-encoded path (for testing PathEscape)
	query       string
	body        string
	contentType string
	auth        string

	// canned response
	statusCode   int
	responseBody string
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.method = r.Method
	h.path = r.URL.Path
	h.rawPath = r.URL.RawPath
	h.query = r.URL.RawQuery
	h.contentType = r.Header.Get("Content-Type")
	h.auth = r.Header.Get("Authorization")
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		h.body = string(data)
	}

	w.Header().Set("Content-Type", "application/json")
	if h.statusCode != 0 {
		w.WriteHeader(h.statusCode)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if h.responseBody != "" {
		_, _ = w.Write([]byte(h.responseBody))
	}
}

// newTestClient creates an HTTPClient pointed at a test server with the given handler.
func newTestClient(h http.Handler) (*HTTPClient, *httptest.Server) {
	srv := httptest.NewServer(h)
	c := NewHTTPClient(srv.URL, "")
	return c, srv
}

// --- Emit ---

func TestHTTPClient_Emit(t *testing.T) {
	h := &testHandler{statusCode: http.StatusAccepted, responseBody: `{"id": 42}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	id, err := c.Emit(context.Background(), events.OrderUpdate, json.RawMessage(`{"order_id":7}`))
	if err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if id != 42 {
		t.Errorf("id = %d, want 42", id)
	}
	if h.method != http.MethodPost {
		t.Errorf("method = %q, want POST", h.method)
	}
	if h.path != "/v1/events/order-update" {
		t.Errorf("path = %q, want /v1/events/order-update", h.path)
	}
	if h.contentType != "application/json" {
		t.Errorf("content-type = %q", h.contentType)
	}
	if h.body != `{"order_id":7}` {
		t.Errorf("body = %q", h.body)
	}
}

func TestHTTPClient_Emit_EmptyPayload(t *testing.T) {
	h := &testHandler{statusCode: http.StatusAccepted, responseBody: `{"id": 1}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	if _, err := c.Emit(context.Background(), events.NodeUpdate, nil); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if h.body != `{}` {
		t.Errorf("body = %q, want {}", h.body)
	}
}

func TestHTTPClient_Emit_URLEscaping(t *testing.T) {
	h := &testHandler{responseBody: `{"id": 1}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	_, _ = c.Emit(context.Background(), "a/b", nil)
	if h.rawPath != "/v1/events/a%2Fb" {
		t.Errorf("rawPath = %q, want /v1/events/a%%2Fb", h.rawPath)
	}
}

// --- ListEvents ---

func TestHTTPClient_ListEvents(t *testing.T) {
	h := &testHandler{responseBody: `{"events": [
		{"id": 5, "name": "order-update", "topic": "shingo.order.completed", "source": "bus", "payload": {"order_id": 1}, "created_at": "2026-01-15T10:00:00Z"},
		{"id": 6, "name": "node-update", "source": "api", "payload": {}, "created_at": "2026-01-15T10:00:01Z"}
	]}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	evts, err := c.ListEvents(context.Background(), &ListEventsRequest{
		After: 4,
		Names: []string{"order-update", "node-update"},
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}

	q, _ := url.ParseQuery(h.query)
	if q.Get("after") != "4" || q.Get("names") != "order-update,node-update" || q.Get("limit") != "10" {
		t.Errorf("query = %q", h.query)
	}
	if len(evts) != 2 {
		t.Fatalf("got %d events, want 2", len(evts))
	}
	if evts[0].ID != 5 || evts[0].Topic != "shingo.order.completed" || string(evts[0].Source) != "bus" {
		t.Errorf("first event = %+v", evts[0])
	}
	if string(evts[0].Payload) != `{"order_id": 1}` {
		t.Errorf("payload = %s", evts[0].Payload)
	}
}

func TestHTTPClient_ListEvents_NoFilters(t *testing.T) {
	h := &testHandler{responseBody: `{"events": []}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	evts, err := c.ListEvents(context.Background(), &ListEventsRequest{})
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if h.query != "" {
		t.Errorf("query = %q, want empty", h.query)
	}
	if len(evts) != 0 {
		t.Errorf("got %d events, want 0", len(evts))
	}
}

// --- Status, Clients, Diagnostics, Health ---

func TestHTTPClient_Status(t *testing.T) {
	h := &testHandler{responseBody: `{"rds": "connected", "messaging": "disconnected"}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if h.path != "/v1/status" {
		t.Errorf("path = %q", h.path)
	}
	if !events.Connected(st.RDS) || events.Connected(st.Messaging) {
		t.Errorf("status = %+v", st)
	}
}

func TestHTTPClient_Clients(t *testing.T) {
	h := &testHandler{responseBody: `{"clients": [{"client": "c-1", "remote": "10.0.0.2:5000", "connected": true, "event_count": 3}]}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	roster, err := c.Clients(context.Background(), true)
	if err != nil {
		t.Fatalf("Clients() error = %v", err)
	}
	if h.query != "all=true" {
		t.Errorf("query = %q, want all=true", h.query)
	}
	if len(roster) != 1 || roster[0].Client != "c-1" || roster[0].EventCount != 3 || !roster[0].Connected {
		t.Errorf("roster = %+v", roster)
	}
}

func TestHTTPClient_Diagnostics(t *testing.T) {
	h := &testHandler{responseBody: `{
		"clients": 2,
		"last_event_id": 99,
		"dropped": 1,
		"ring_buffer_size": 1000,
		"status": {"rds": "connected"},
		"bus_configured": true,
		"bus_connected": false,
		"store_enabled": true,
		"uptime": "1h0m0s"
	}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	d, err := c.Diagnostics(context.Background())
	if err != nil {
		t.Fatalf("Diagnostics() error = %v", err)
	}
	if d.Clients != 2 || d.LastEventID != 99 || d.Dropped != 1 || d.RingBufferSize != 1000 {
		t.Errorf("diagnostics = %+v", d)
	}
	if !d.BusConfigured || d.BusConnected || !d.StoreEnabled || d.Uptime != "1h0m0s" {
		t.Errorf("diagnostics = %+v", d)
	}
	if !events.Connected(d.Status.RDS) || d.Status.Messaging != nil {
		t.Errorf("status = %+v", d.Status)
	}
}

func TestHTTPClient_Health(t *testing.T) {
	h := &testHandler{
		responseBody: `{"status": "ok"}`,
	}
	c, srv := newTestClient(h)
	defer srv.Close()

	status, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}

	if h.method != http.MethodGet {
		t.Errorf("method = %q, want GET", h.method)
	}
	if h.path != "/v1/health" {
		t.Errorf("path = %q, want /v1/health", h.path)
	}

	if status != "ok" {
		t.Errorf("status = %q, want 'ok'", status)
	}
}

func TestHTTPClient_SendsToken(t *testing.T) {
	h := &testHandler{responseBody: `{"status": "ok"}`}
	srv := httptest.NewServer(h)
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret")
	if _, err := c.Health(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.auth != "Bearer secret" {
		t.Errorf("Authorization = %q, want 'Bearer secret'", h.auth)
	}

	c = NewHTTPClient(srv.URL, "")
	if _, err := c.Health(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.auth != "" {
		t.Errorf("Authorization = %q, want none", h.auth)
	}
}

// --- Error handling ---

func TestHTTPClient_Error_JSONBody(t *testing.T) {
	h := &testHandler{
		statusCode:   http.StatusBadRequest,
		responseBody: `{"error": "unknown event \"heartbeat\""}`,
	}
	c, srv := newTestClient(h)
	defer srv.Close()

	_, err := c.Emit(context.Background(), "heartbeat", nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", apiErr.StatusCode)
	}
	if apiErr.Message != `unknown event "heartbeat"` {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestHTTPClient_Error_NonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal server error"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	_, err := c.Diagnostics(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", apiErr.StatusCode)
	}
	if apiErr.Message != "internal server error" {
		t.Errorf("message = %q, want 'internal server error'", apiErr.Message)
	}
}

func TestHTTPClient_Error_NotImplemented(t *testing.T) {
	h := &testHandler{
		statusCode:   http.StatusNotImplemented,
		responseBody: `{"error": "event log not configured"}`,
	}
	c, srv := newTestClient(h)
	defer srv.Close()

	_, err := c.ListEvents(context.Background(), &ListEventsRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501 APIError, got %v", err)
	}
}

func TestHTTPClient_Error_FormatString(t *testing.T) {
	apiErr := &APIError{StatusCode: 403, Message: "forbidden"}
	want := "HTTP 403: forbidden"
	if apiErr.Error() != want {
		t.Errorf("Error() = %q, want %q", apiErr.Error(), want)
	}
}

func TestHTTPClient_Error_EmptyJSONError(t *testing.T) {
	// JSON body with empty error field should use the raw body
	h := &testHandler{
		statusCode:   http.StatusUnprocessableEntity,
		responseBody: `{"error": ""}`,
	}
	c, srv := newTestClient(h)
	defer srv.Close()

	_, err := c.Status(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Message != `{"error": ""}` {
		t.Errorf("message = %q, want raw body", apiErr.Message)
	}
}

func TestHTTPClient_Error_CanceledContext(t *testing.T) {
	h := &testHandler{
		responseBody: `{"status": "ok"}`,
	}
	c, srv := newTestClient(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := c.Health(ctx)
	if err == nil {
		t.Fatal("expected error for canceled context, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %q, want to wrap context.Canceled", err.Error())
	}
}

func TestHTTPClient_Error_BadJSON(t *testing.T) {
	h := &testHandler{responseBody: `{"id": `}
	c, srv := newTestClient(h)
	defer srv.Close()

	_, err := c.Emit(context.Background(), events.NodeUpdate, nil)
	if err == nil || !strings.Contains(err.Error(), "decoding response") {
		t.Fatalf("expected decoding error, got %v", err)
	}
}

// --- NewHTTPClient base URL trimming ---

func TestNewHTTPClient_TrimsTrailingSlash(t *testing.T) {
	c := NewHTTPClient("http://localhost:8080/", "")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL = %q, want 'http://localhost:8080'", c.baseURL)
	}
}

func TestHTTPClient_Close(t *testing.T) {
	c := NewHTTPClient("http://localhost:9999", "")
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}

// --- Interface compliance ---

func TestHTTPClient_ImplementsStreamClient(t *testing.T) {
	var _ StreamClient = (*HTTPClient)(nil)
}

// --- Concurrent requests ---

func TestHTTPClient_ConcurrentRequests(t *testing.T) {
	var callCount atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")

	errs := make(chan error, 10)
	for range 10 {
		go func() {
			_, err := c.Health(context.Background())
			errs <- err
		}()
	}

	for range 10 {
		if err := <-errs; err != nil {
			t.Errorf("concurrent Health() error = %v", err)
		}
	}
	if n := callCount.Load(); n != 10 {
		t.Errorf("server saw %d calls, want 10", n)
	}
}

func TestIsNotConfigured(t *testing.T) {
	if !IsNotConfigured(fmt.Errorf("wrapped: %w", &APIError{StatusCode: http.StatusNotImplemented})) {
		t.Error("501 APIError should be not-configured")
	}
	if IsNotConfigured(&APIError{StatusCode: http.StatusBadRequest}) {
		t.Error("400 APIError should not be not-configured")
	}
	if IsNotConfigured(errors.New("plain")) {
		t.Error("plain error should not be not-configured")
	}
}
