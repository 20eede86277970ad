package domain

import (
	"time"
)

// Event is one analytics observation: a day transition, a widget lifecycle
// notification or an agent trackEvent call.
type Event struct {
	ID      string         `json:"id"`
	Name    string         `json:"event"`
	UserID  string         `json:"user_id,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	At      time.Time      `json:"at"`
}
