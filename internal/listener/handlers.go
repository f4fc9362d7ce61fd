package listener

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/shingolive/internal/events"
	"github.com/alfredjeanlab/shingolive/internal/page"
	"github.com/alfredjeanlab/shingolive/internal/sse"
)

// refreshGroups triggers a refresh on the first element of each group, in
// order. Missing elements are skipped; a failed refresh does not stop the
// others.
func refreshGroups(doc *page.Document, r page.Refresher, groups ...string) Handler {
	return func(ctx context.Context, _ sse.Event) error {
		var errs []error
		for _, g := range groups {
			el := doc.QueryGroup(g)
			if el == nil {
				continue
			}
			if err := r.Trigger(ctx, el, page.RefreshEvent); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// applyStatus updates the health indicators from a system-status payload.
// Components absent from the payload keep their current state.
func applyStatus(doc *page.Document) Handler {
	return func(_ context.Context, evt sse.Event) error {
		st, err := events.ParseStatus([]byte(evt.Data))
		if err != nil {
			return err
		}
		if st.RDS != nil {
			doc.SetClass(page.RDSStatusID, page.HealthClass(events.Connected(st.RDS)))
		}
		if st.Messaging != nil {
			doc.SetClass(page.MessagingStatusID, page.HealthClass(events.Connected(st.Messaging)))
		}
		return nil
	}
}
