package events

import "context"

var _ Publisher = (*NoopPublisher)(nil)

// NoopPublisher discards events. The server uses it when no bus is configured.
type NoopPublisher struct{}

// Publish only reports a done ctx, like a real publisher would.
func (*NoopPublisher) Publish(ctx context.Context, _ string, _ any) error {
	return ctx.Err()
}

func (*NoopPublisher) Close() error { return nil }
