package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/alfredjeanlab/shingolive/internal/events"
	"github.com/alfredjeanlab/shingolive/internal/model"
)

// Bridge forwards engine bus messages to the event stream.
type Bridge struct {
	srv    *Server
	sub    events.Subscriber
	topic  string
	logger *slog.Logger

	forwarded atomic.Int64
	ignored   atomic.Int64
}

// NewBridge returns a bridge feeding srv from sub. When sub can report its
// connection state, the server's health and diagnostics follow it.
func NewBridge(srv *Server, sub events.Subscriber) *Bridge {
	if c, ok := sub.(interface{ Connected() bool }); ok {
		srv.SetBusStatus(c.Connected)
	}
	return &Bridge{
		srv:    srv,
		sub:    sub,
		topic:  events.TopicAll,
		logger: srv.logger.With("component", "bridge"),
	}
}

// Run subscribes to the engine topics and forwards translated messages until
// ctx is done or the subscription closes.
func (b *Bridge) Run(ctx context.Context) error {
	ch, cancel, err := b.sub.Subscribe(b.topic)
	if err != nil {
		return fmt.Errorf("bridge subscribe: %w", err)
	}
	defer cancel()
	b.logger.Info("bus bridge started", "topic", b.topic)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("bridge subscription closed")
			}
			b.forward(ctx, msg)
		}
	}
}

func (b *Bridge) forward(ctx context.Context, msg events.Message) {
	name, payload, ok := events.Translate(msg.Topic, msg.Data)
	if !ok {
		b.ignored.Add(1)
		b.logger.Debug("ignoring bus topic", "topic", msg.Topic)
		return
	}
	if _, err := b.srv.Publish(ctx, name, payload, model.SourceBus, msg.Topic); err != nil {
		b.ignored.Add(1)
		b.logger.Warn("dropping bus message", "topic", msg.Topic, "event", name, "error", err)
		return
	}
	b.forwarded.Add(1)
}

// Forwarded returns the number of bus messages turned into stream events.
func (b *Bridge) Forwarded() int64 { return b.forwarded.Load() }

// Ignored returns the number of bus messages that produced no stream event.
func (b *Bridge) Ignored() int64 { return b.ignored.Load() }
