package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/shingolive/internal/idgen"
)

// clientName identifies shingolive connections in NATS monitoring.
const clientName = "shingolive"

// subscriptionBuffer is how many bus messages a subscription holds before
// new ones are dropped.
const subscriptionBuffer = 256

// HeaderSource names the header carrying the instance id of the process
// that published a stream event back onto the bus.
const HeaderSource = "Shingo-Source"

// instanceID tags this process's publishes so its own subscriber can skip
// them. Other shingolive instances on the same bus get a different id.
var instanceID = idgen.InstanceID()

// connect dials NATS with reconnect-forever defaults; opts may override them.
func connect(url string, opts ...nats.Option) (*nats.Conn, error) {
	defaults := []nats.Option{
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher re-publishes stream events on the bus as JSON.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc}, nil
}

// Publish encodes event as JSON (a json.RawMessage is sent unchanged) and
// publishes it on topic with a JSON content type and HeaderSource set.
func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	msg := nats.NewMsg(topic)
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	msg.Header.Set(HeaderSource, instanceID)
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// NATSSubscriber feeds engine bus messages to the bridge.
type NATSSubscriber struct {
	conn    *nats.Conn
	dropped atomic.Int64
}

// NewNATSSubscriber connects to NATS, reconnecting forever. Extra options
// (e.g. disconnect/reconnect handlers) are applied after the defaults.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	nc, err := connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc}, nil
}

// Subscribe delivers messages for topic (NATS wildcards allowed, e.g.
// "shingo.>") on the returned channel. Messages are dropped rather than
// block the NATS client when the channel is full. Messages this process
// published itself (HeaderSource equal to its instance id) are skipped. The cancel function
// unsubscribes and closes the channel.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan Message, func(), error) {
	ch := make(chan Message, subscriptionBuffer)

	var (
		mu     sync.Mutex
		closed bool
		once   sync.Once
	)

	sub, err := s.conn.Subscribe(topic, func(msg *nats.Msg) {
		if msg.Header.Get(HeaderSource) == instanceID {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- Message{Topic: msg.Subject, Data: msg.Data}:
		default:
			s.dropped.Add(1)
		}
	})
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	// The subscription must reach the server before messages published on
	// other connections are routed to it.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		close(ch)
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
	return ch, cancel, nil
}

// Connected reports whether the underlying NATS connection is up.
func (s *NATSSubscriber) Connected() bool {
	return s.conn.IsConnected()
}

// Dropped returns the number of messages discarded because a subscription
// channel was full.
func (s *NATSSubscriber) Dropped() int64 {
	return s.dropped.Load()
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
