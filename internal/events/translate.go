package events

import (
	"encoding/json"
	"strings"
)

// route maps a bus topic pattern to the stream event pages receive.
type route struct {
	pattern string
	name    string
	payload func(topic string, data []byte) ([]byte, bool)
}

var routes = []route{
	{pattern: "shingo.order.>", name: OrderUpdate, payload: passthrough},
	{pattern: "shingo.inventory.>", name: InventoryUpdate, payload: passthrough},
	{pattern: "shingo.correction.>", name: InventoryUpdate, payload: passthrough},
	{pattern: "shingo.node.>", name: NodeUpdate, payload: passthrough},
	{pattern: "shingo.system.*.*", name: SystemStatus, payload: statusFromTopic},
}

// Translate maps an engine bus message to the stream event sent to pages.
// It returns ok=false for topics pages do not care about, including the
// server's own re-published stream topics.
func Translate(topic string, data []byte) (name string, payload []byte, ok bool) {
	if strings.HasPrefix(topic, TopicStreamPrefix) {
		return "", nil, false
	}
	for _, r := range routes {
		if !MatchTopic(r.pattern, topic) {
			continue
		}
		payload, ok := r.payload(topic, data)
		if !ok {
			return "", nil, false
		}
		return r.name, payload, true
	}
	return "", nil, false
}

func passthrough(_ string, data []byte) ([]byte, bool) {
	if len(data) == 0 {
		return []byte("{}"), true
	}
	return data, true
}

// statusFromTopic turns shingo.system.<component>.<state> into a
// system-status payload naming only that component.
func statusFromTopic(topic string, _ []byte) ([]byte, bool) {
	parts := strings.Split(topic, ".")
	component, state := parts[2], parts[3]
	if component != "rds" && component != "messaging" {
		return nil, false
	}
	if state != StateConnected && state != StateDisconnected {
		return nil, false
	}
	data, err := json.Marshal(StatusOf(component, state))
	if err != nil {
		return nil, false
	}
	return data, true
}

// MatchTopic matches a dot-separated topic against a pattern.
// Supports "*" as a single-segment wildcard and ">" as a multi-segment
// suffix wildcard (NATS-style).
func MatchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	patParts := strings.Split(pattern, ".")
	topParts := strings.Split(topic, ".")

	for i, pp := range patParts {
		if pp == ">" {
			// ">" matches one or more remaining segments.
			return i < len(topParts)
		}
		if i >= len(topParts) {
			return false
		}
		if pp != "*" && pp != topParts[i] {
			return false
		}
	}

	return len(patParts) == len(topParts)
}
