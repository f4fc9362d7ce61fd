package model

import "time"

// ComponentStatus is the last reported connection state of a Core
// subsystem shown on the dashboard (rds, messaging).
type ComponentStatus struct {
	Component string    `json:"component"`
	State     string    `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}
