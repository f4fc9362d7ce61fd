package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alfredjeanlab/shingolive/internal/config"
	"github.com/alfredjeanlab/shingolive/internal/events"
	"github.com/alfredjeanlab/shingolive/internal/hooks"
	"github.com/alfredjeanlab/shingolive/internal/listener"
	"github.com/alfredjeanlab/shingolive/internal/page"
	"github.com/alfredjeanlab/shingolive/internal/sse"
	"github.com/alfredjeanlab/shingolive/internal/ui"
	"github.com/spf13/cobra"
)

// listenOptions is everything the listen command needs to build a listener.
type listenOptions struct {
	EventsURL string
	BaseURL   string // fragment base; derived from EventsURL when empty
	Token     string
	Layout    string
	Resume    bool

	RetryDelay time.Duration
	Backoff    bool
	MaxDelay   time.Duration

	HookCommand   string
	HookTimeout   time.Duration
	HookOnFailure string

	// HandlerTimeout bounds the handling of one event; 0 derives it from
	// the hook timeout.
	HandlerTimeout time.Duration

	JSON bool
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Follow the event stream and refresh dashboard panels",
	Long: `Connects to the server's /events stream and keeps a dashboard page model
up to date: order, inventory and node updates re-fetch the tagged panels,
and system-status updates the rds and messaging indicators.

On any stream error the connection is closed and retried after --retry
(3s by default), forever, unless --backoff is set.

--on-refresh runs a shell command after each panel refresh with
SHINGO_ELEMENT, SHINGO_ELEMENT_GROUP, SHINGO_ELEMENT_SOURCE and
SHINGO_EVENT in its environment.`,
	GroupID: "stream",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lc, err := config.LoadListener()
		if err != nil {
			return err
		}
		opts := listenOptions{
			EventsURL:  lc.URL,
			Token:      authToken,
			Layout:     lc.Layout,
			Resume:     lc.Resume,
			RetryDelay: lc.RetryDelay,
			JSON:       jsonOutput,
		}
		if os.Getenv("SHINGO_EVENTS_URL") == "" && cmd.Flags().Changed("http-url") {
			opts.EventsURL = strings.TrimRight(httpURL, "/") + "/events"
		}
		if cmd.Flags().Changed("events-url") {
			opts.EventsURL, _ = cmd.Flags().GetString("events-url")
		}
		if cmd.Flags().Changed("layout") {
			opts.Layout, _ = cmd.Flags().GetString("layout")
		}
		if cmd.Flags().Changed("resume") {
			opts.Resume, _ = cmd.Flags().GetBool("resume")
		}
		if cmd.Flags().Changed("retry") {
			opts.RetryDelay, _ = cmd.Flags().GetDuration("retry")
		}
		opts.HandlerTimeout, _ = cmd.Flags().GetDuration("handler-timeout")
		opts.BaseURL, _ = cmd.Flags().GetString("base-url")
		opts.Backoff, _ = cmd.Flags().GetBool("backoff")
		opts.MaxDelay, _ = cmd.Flags().GetDuration("max-delay")
		opts.HookCommand, _ = cmd.Flags().GetString("on-refresh")
		opts.HookTimeout, _ = cmd.Flags().GetDuration("on-refresh-timeout")
		opts.HookOnFailure, _ = cmd.Flags().GetString("on-refresh-failure")

		debug, _ := cmd.Flags().GetBool("debug")
		level := slog.LevelWarn
		if debug {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		ui.EnableColor(ui.ShouldUseColor() && !opts.JSON)

		l, err := newListener(opts, cmd.OutOrStdout(), logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return l.Run(ctx)
	},
}

// newListener builds a listener over the configured page layout, printing
// connection changes, refreshes and indicator updates to out.
func newListener(opts listenOptions, out io.Writer, logger *slog.Logger) (*listener.Listener, error) {
	if opts.EventsURL == "" {
		return nil, fmt.Errorf("events URL is required")
	}
	if opts.RetryDelay <= 0 {
		return nil, fmt.Errorf("invalid --retry %v (must be positive)", opts.RetryDelay)
	}
	if opts.HandlerTimeout < 0 {
		return nil, fmt.Errorf("invalid --handler-timeout %v (must not be negative)", opts.HandlerTimeout)
	}
	base := opts.BaseURL
	if base == "" {
		var err error
		if base, err = baseURL(opts.EventsURL); err != nil {
			return nil, err
		}
	}

	layout, err := page.LoadLayout(opts.Layout)
	if err != nil {
		return nil, err
	}
	doc := page.NewDocument(layout...)
	if !hasRefreshGroups(doc) {
		logger.Warn("page layout has no refresh groups; only indicators will update", "layout", opts.Layout)
	}
	p := &listenPrinter{out: out, json: opts.JSON}

	var refresher page.Refresher = page.NewHTTPRefresher(base, opts.Token, doc)
	if opts.HookCommand != "" {
		switch opts.HookOnFailure {
		case "", hooks.OnFailureWarn, hooks.OnFailureFail, hooks.OnFailureIgnore:
		default:
			return nil, fmt.Errorf("invalid --on-refresh-failure %q (must be warn, fail or ignore)", opts.HookOnFailure)
		}
		refresher = &hooks.Refresher{
			Next:      refresher,
			Command:   opts.HookCommand,
			Timeout:   opts.HookTimeout,
			OnFailure: opts.HookOnFailure,
			Logger:    logger,
		}
	}
	refresher = &printingRefresher{next: refresher, p: p}

	d := listener.NewPageDispatcher(doc, refresher)
	if err := d.Wrap(events.SystemStatus, p.statusHandler); err != nil {
		return nil, err
	}

	logger.Debug("listening for stream events", "events", d.Names())

	var retry listener.RetryPolicy = listener.FixedDelay(opts.RetryDelay)
	if opts.Backoff {
		retry = listener.Backoff{
			Initial:    opts.RetryDelay,
			Max:        opts.MaxDelay,
			Multiplier: 2,
			Jitter:     0.2,
		}
	}

	return listener.New(listener.Options{
		URL:        opts.EventsURL,
		Dispatcher: d,
		Dialer:     listener.SSEDialer(&sse.Dialer{Token: opts.Token}),
		Retry:      retry,
		Logger:     logger,
		Resume:     opts.Resume,

		HandlerTimeout: handlerTimeout(opts),
		OnStateChange: func(s listener.State) {
			p.state(s, opts.EventsURL)
		},
	})
}

// maxRefreshesPerEvent is the most panels one event refreshes
// (order-update: orders and dashboard).
const maxRefreshesPerEvent = 2

// handlerTimeout is the explicit --handler-timeout, or enough for every
// refresh of one event to fetch its fragment and run the hook to its own
// timeout.
func handlerTimeout(opts listenOptions) time.Duration {
	if opts.HandlerTimeout > 0 {
		return opts.HandlerTimeout
	}
	if opts.HookCommand == "" {
		return listener.DefaultHandlerTimeout
	}
	return maxRefreshesPerEvent * (listener.DefaultHandlerTimeout + hooks.EffectiveTimeout(opts.HookTimeout))
}

func hasRefreshGroups(doc *page.Document) bool {
	for _, el := range doc.Snapshot() {
		if el.Group != "" {
			return true
		}
	}
	return false
}

// baseURL returns the scheme and host of an events URL, where fragment
// sources are resolved.
func baseURL(eventsURL string) (string, error) {
	u, err := url.Parse(eventsURL)
	if err != nil {
		return "", fmt.Errorf("parsing events URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("events URL %q must be absolute", eventsURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

// listenPrinter writes listener activity, one line per item. Callbacks come
// from the read goroutine and the retry timer, so writes are serialized.
type listenPrinter struct {
	mu     sync.Mutex
	out    io.Writer
	json   bool
	status events.Status
}

type listenLine struct {
	Type    string         `json:"type"`
	State   string         `json:"state,omitempty"`
	URL     string         `json:"url,omitempty"`
	Element string         `json:"element,omitempty"`
	Group   string         `json:"group,omitempty"`
	Error   string         `json:"error,omitempty"`
	Status  *events.Status `json:"status,omitempty"`
}

func (p *listenPrinter) emit(line listenLine, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.json {
		data, err := json.Marshal(line)
		if err != nil {
			return
		}
		fmt.Fprintln(p.out, string(data))
		return
	}
	fmt.Fprintln(p.out, text)
}

func (p *listenPrinter) state(s listener.State, url string) {
	var text string
	switch s {
	case listener.Connected:
		text = ui.RenderOK("●") + " connected to " + url
	case listener.Disconnected:
		text = ui.RenderFail("●") + " disconnected, retrying"
	default:
		text = ui.RenderMuted("○ " + s.String())
	}
	p.emit(listenLine{Type: "state", State: s.String(), URL: url}, text)
}

func (p *listenPrinter) refreshed(el *page.Element, err error) {
	line := listenLine{Type: "refresh", Element: el.Key(), Group: el.Group}
	text := ui.RenderMuted("↻") + " " + el.Key()
	if err != nil {
		line.Error = err.Error()
		text = ui.RenderFail("↻") + " " + el.Key() + " " + ui.RenderFail(err.Error())
	}
	p.emit(line, text)
}

// statusHandler wraps the indicator handler and prints the merged status
// once the page has been updated.
func (p *listenPrinter) statusHandler(next listener.Handler) listener.Handler {
	return func(ctx context.Context, evt sse.Event) error {
		if err := next(ctx, evt); err != nil {
			return err
		}
		st, err := events.ParseStatus([]byte(evt.Data))
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.status = p.status.Merge(st)
		merged := p.status
		p.mu.Unlock()

		text := ui.Indicator("rds", merged.RDS, events.Connected(merged.RDS)) + "  " +
			ui.Indicator("messaging", merged.Messaging, events.Connected(merged.Messaging))
		p.emit(listenLine{Type: "status", Status: &merged}, text)
		return nil
	}
}

// printingRefresher reports each refresh after delivering it.
type printingRefresher struct {
	next page.Refresher
	p    *listenPrinter
}

func (r *printingRefresher) Trigger(ctx context.Context, el *page.Element, event string) error {
	err := r.next.Trigger(ctx, el, event)
	r.p.refreshed(el, err)
	return err
}

func init() {
	listenCmd.Flags().String("events-url", "", "event stream URL (default from SHINGO_EVENTS_URL or --http-url)")
	listenCmd.Flags().String("base-url", "", "base URL for panel fragments (default: events URL host)")
	listenCmd.Flags().String("layout", "", "TOML page layout (default: built-in dashboard)")
	listenCmd.Flags().Bool("resume", false, "send Last-Event-ID on reconnect to replay missed events")
	listenCmd.Flags().Duration("retry", listener.DefaultRetryDelay, "delay before reconnecting after a stream error")
	listenCmd.Flags().Bool("backoff", false, "grow the reconnect delay exponentially")
	listenCmd.Flags().Duration("max-delay", time.Minute, "upper bound for --backoff delays")
	listenCmd.Flags().String("on-refresh", "", "shell command to run after each panel refresh")
	listenCmd.Flags().Duration("on-refresh-timeout", hooks.DefaultTimeout, "timeout for the --on-refresh command")
	listenCmd.Flags().String("on-refresh-failure", hooks.OnFailureWarn, "on hook failure: warn, fail or ignore")
	listenCmd.Flags().Duration("handler-timeout", 0, "time allowed to handle one event, refreshes and hooks included (default: derived from --on-refresh-timeout)")
	listenCmd.Flags().Bool("debug", false, "enable debug logging")
}
