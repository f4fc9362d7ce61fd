package model

import (
	"encoding/json"
	"time"
)

// Source identifies where a stream event entered the server.
type Source string

const (
	SourceAPI Source = "api" // POST /v1/events/{name}
	SourceBus Source = "bus" // translated from an engine bus topic
)

// Event is a persisted stream event, mirroring what is sent on /events.
type Event struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Topic     string          `json:"topic,omitempty"` // originating bus topic, if any
	Source    Source          `json:"source"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
