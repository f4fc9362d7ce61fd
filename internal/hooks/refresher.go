package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/shingolive/internal/page"
)

// OnFailure values for Refresher.OnFailure.
const (
	OnFailureWarn   = "warn"   // log and carry on
	OnFailureFail   = "fail"   // return the error to the listener
	OnFailureIgnore = "ignore" // say nothing
)

// Refresher wraps another page.Refresher and runs Command after each
// successful trigger. The command sees the element and event in its
// environment:
//
//	SHINGO_EVENT          trigger name (sse-refresh)
//	SHINGO_ELEMENT        element key
//	SHINGO_ELEMENT_GROUP  data-sse group
//	SHINGO_ELEMENT_SOURCE fragment URL
type Refresher struct {
	Next      page.Refresher // optional
	Command   string
	Timeout   time.Duration
	Dir       string
	OnFailure string // defaults to OnFailureWarn
	Logger    *slog.Logger
}

// Trigger delivers the trigger to Next, then runs the hook command.
func (r *Refresher) Trigger(ctx context.Context, el *page.Element, event string) error {
	if r.Next != nil {
		if err := r.Next.Trigger(ctx, el, event); err != nil {
			return err
		}
	}
	if r.Command == "" {
		return nil
	}

	res := Execute(ctx, r.Command, r.Timeout, r.Dir, map[string]string{
		"SHINGO_EVENT":          event,
		"SHINGO_ELEMENT":        el.Key(),
		"SHINGO_ELEMENT_GROUP":  el.Group,
		"SHINGO_ELEMENT_SOURCE": el.Source,
	})
	if res.Err == nil {
		return nil
	}

	switch r.OnFailure {
	case OnFailureIgnore:
		return nil
	case OnFailureFail:
		return fmt.Errorf("hook for %s: %w: %s", el.Key(), res.Err, res.Output)
	default:
		logger := r.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("refresh hook failed", "element", el.Key(), "exit_code", res.ExitCode, "duration", res.Duration, "error", res.Err, "output", res.Output)
		return nil
	}
}
