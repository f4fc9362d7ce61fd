package sse

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"sync"
)

// ErrNotEventStream is returned when the server answers with a content type
// other than text/event-stream.
var ErrNotEventStream = errors.New("response is not an event stream")

// StatusError is returned when the server answers with a non-200 status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("event stream request failed: HTTP %d", e.StatusCode)
}

// Dialer opens event streams.
type Dialer struct {
	// Client performs the request. http.DefaultClient is used when nil.
	// It must not have a Timeout set, or long-lived streams will be cut.
	Client *http.Client

	// Token, when non-empty, is sent as a bearer token.
	Token string
}

// Dial issues GET url and returns the open stream. lastEventID, when
// non-empty, is sent as Last-Event-ID so the server can replay missed
// events. The stream is tied to ctx: cancelling ctx closes it.
func (d *Dialer) Dial(ctx context.Context, url, lastEventID string) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", ContentType)
	req.Header.Set("Cache-Control", "no-cache")
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	if d.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.Token)
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err != nil || mt != ContentType {
		resp.Body.Close()
		cancel()
		return nil, ErrNotEventStream
	}

	return &Stream{
		resp:   resp,
		dec:    NewDecoder(resp.Body),
		cancel: cancel,
	}, nil
}

// Stream is an open event stream. Next must be called from one goroutine;
// Close may be called from any goroutine and unblocks a pending Next.
type Stream struct {
	resp   *http.Response
	dec    *Decoder
	cancel context.CancelFunc
	once   sync.Once
}

// Next blocks until the next event arrives. It returns io.EOF when the
// server ends the stream, or the read error that terminated it.
func (s *Stream) Next() (Event, error) {
	return s.dec.Decode()
}

// LastEventID returns the id of the last event received. Call it from the
// goroutine that calls Next.
func (s *Stream) LastEventID() string {
	return s.dec.LastEventID()
}

// Close terminates the stream. It is safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.resp.Body.Close()
	})
	return err
}
