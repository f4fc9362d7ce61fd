package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Stream event names delivered to pages on GET /events.
const (
	OrderUpdate     = "order-update"
	InventoryUpdate = "inventory-update"
	NodeUpdate      = "node-update"
	SystemStatus    = "system-status"
)

var streamNames = [...]string{OrderUpdate, InventoryUpdate, NodeUpdate, SystemStatus}

// StreamNames returns the closed set of stream event names.
func StreamNames() []string {
	return streamNames[:]
}

// IsStreamName reports whether name is one of the recognized stream events.
func IsStreamName(name string) bool {
	for _, n := range streamNames {
		if n == name {
			return true
		}
	}
	return false
}

// Connection states reported in a system-status payload. Anything other than
// StateConnected is treated as a failure by consumers.
const (
	StateConnected    = "connected"
	StateDisconnected = "disconnected"
)

// Bus topics published by the Shingo engine.
const (
	TopicOrderReceived      = "shingo.order.received"
	TopicOrderDispatched    = "shingo.order.dispatched"
	TopicOrderStatusChanged = "shingo.order.status_changed"
	TopicOrderCompleted     = "shingo.order.completed"
	TopicOrderFailed        = "shingo.order.failed"
	TopicOrderCancelled     = "shingo.order.cancelled"
	TopicInventoryChanged   = "shingo.inventory.changed"
	TopicNodeUpdated        = "shingo.node.updated"
	TopicCorrectionApplied  = "shingo.correction.applied"

	TopicRDSConnected          = "shingo.system.rds.connected"
	TopicRDSDisconnected       = "shingo.system.rds.disconnected"
	TopicMessagingConnected    = "shingo.system.messaging.connected"
	TopicMessagingDisconnected = "shingo.system.messaging.disconnected"

	// TopicStreamPrefix namespaces stream events re-published by the server
	// so other consumers on the bus can observe what pages were sent.
	TopicStreamPrefix = "shingo.stream."

	// TopicAll matches every engine topic.
	TopicAll = "shingo.>"
)

// StreamTopic returns the bus topic a stream event is re-published under.
func StreamTopic(name string) string {
	return TopicStreamPrefix + name
}

// Engine event payloads

type OrderChanged struct {
	OrderID  int64  `json:"order_id"`
	ClientID string `json:"client_id,omitempty"`
	Status   string `json:"status,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

type InventoryChanged struct {
	NodeID       int64   `json:"node_id"`
	NodeName     string  `json:"node_name,omitempty"`
	Action       string  `json:"action"` // "added", "removed", "moved", "adjusted"
	MaterialCode string  `json:"material_code,omitempty"`
	Quantity     float64 `json:"quantity"`
}

type NodeUpdated struct {
	NodeID   int64  `json:"node_id"`
	NodeName string `json:"node_name,omitempty"`
	Action   string `json:"action"` // "created", "updated", "deleted"
}

type CorrectionApplied struct {
	CorrectionID   int64  `json:"correction_id"`
	CorrectionType string `json:"correction_type"`
	NodeID         int64  `json:"node_id"`
	Reason         string `json:"reason,omitempty"`
	Actor          string `json:"actor,omitempty"`
}

type ConnectionChanged struct {
	Detail string `json:"detail,omitempty"`
}

// Status is the system-status payload. A nil field was not reported and
// leaves the corresponding indicator untouched.
type Status struct {
	RDS       *string `json:"rds,omitempty"`
	Messaging *string `json:"messaging,omitempty"`
}

// UnmarshalJSON accepts any JSON value for rds and messaging. Non-string
// values (including null) are kept as their raw JSON text so that they read
// as "not connected" rather than failing the whole payload.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("status payload is null")
	}
	s.RDS = rawString(raw, "rds")
	s.Messaging = rawString(raw, "messaging")
	return nil
}

func rawString(raw map[string]json.RawMessage, key string) *string {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return &s
	}
	text := string(bytes.TrimSpace(v))
	return &text
}

// ParseStatus decodes a system-status payload. The payload must be a JSON
// object.
func ParseStatus(data []byte) (Status, error) {
	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return Status{}, fmt.Errorf("parsing %s payload: %w", SystemStatus, err)
	}
	return st, nil
}

// Merge returns s with every field reported in other overwritten.
func (s Status) Merge(other Status) Status {
	if other.RDS != nil {
		v := *other.RDS
		s.RDS = &v
	}
	if other.Messaging != nil {
		v := *other.Messaging
		s.Messaging = &v
	}
	return s
}

// Empty reports whether neither field is set.
func (s Status) Empty() bool {
	return s.RDS == nil && s.Messaging == nil
}

// Connected reports whether a reported state counts as connected.
func Connected(state *string) bool {
	return state != nil && *state == StateConnected
}

// StatusOf builds a Status with only the named component set.
func StatusOf(component, state string) Status {
	switch component {
	case "rds":
		return Status{RDS: &state}
	case "messaging":
		return Status{Messaging: &state}
	}
	return Status{}
}

// Publisher is the interface for emitting events onto the bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
