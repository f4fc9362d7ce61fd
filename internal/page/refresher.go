package page

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// RefreshEvent is the trigger name sent to elements that should re-fetch
// their content.
const RefreshEvent = "sse-refresh"

// Refresher delivers a trigger to a page element.
type Refresher interface {
	Trigger(ctx context.Context, el *Element, event string) error
}

// maxContentSize bounds a fetched fragment.
const maxContentSize = 4 << 20

// HTTPRefresher re-fetches an element's Source relative to BaseURL and stores
// the body as the element's content in Doc.
type HTTPRefresher struct {
	BaseURL string
	Token   string
	Doc     *Document
	Client  *http.Client
}

// NewHTTPRefresher returns a refresher writing into doc.
func NewHTTPRefresher(baseURL, token string, doc *Document) *HTTPRefresher {
	return &HTTPRefresher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Doc:     doc,
		Client:  &http.Client{},
	}
}

// Trigger fetches el.Source. Elements without a source are left alone.
func (r *HTTPRefresher) Trigger(ctx context.Context, el *Element, event string) error {
	if el.Source == "" {
		return nil
	}
	url := el.Source
	if strings.HasPrefix(url, "/") {
		url = r.BaseURL + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	// Same headers htmx sends for a triggered request.
	req.Header.Set("HX-Request", "true")
	req.Header.Set("HX-Trigger-Name", event)
	if el.ID != "" {
		req.Header.Set("HX-Trigger", el.ID)
	}
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return fmt.Errorf("refreshing %s: %w", el.Key(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxContentSize))
	if err != nil {
		return fmt.Errorf("reading %s: %w", el.Key(), err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("refreshing %s: HTTP %d", el.Key(), resp.StatusCode)
	}
	r.Doc.SetContent(el.Key(), string(body))
	return nil
}
