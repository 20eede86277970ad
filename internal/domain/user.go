// Package domain contains core domain types for the Seven Days to Calm service.
package domain

import (
	"time"
)

// DefaultUserID is used when a caller supplies no identity.
const DefaultUserID = "demo-user"

// ChallengeProgress is the server-side view of a user's challenge.
type ChallengeProgress struct {
	CurrentDay       int `json:"currentDay"`
	LastCompletedDay int `json:"lastCompletedDay"`
}

// User is the per-caller record mutated by tool calls.
type User struct {
	UserID    string            `json:"userId"`
	Challenge ChallengeProgress `json:"challenge"`
	Prefs     map[string]any    `json:"prefs"`
	Reminders []Reminder        `json:"reminders"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// NewUser returns an empty record for userID.
func NewUser(userID string, now time.Time) *User {
	return &User{
		UserID:    userID,
		Prefs:     map[string]any{},
		Reminders: []Reminder{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddReminder inserts r unless an identical (time, label) entry exists.
// Reports whether the list changed.
func (u *User) AddReminder(r Reminder) bool {
	for _, existing := range u.Reminders {
		if existing == r {
			return false
		}
	}
	u.Reminders = append(u.Reminders, r)
	return true
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Prefs = make(map[string]any, len(u.Prefs))
	for k, v := range u.Prefs {
		c.Prefs[k] = v
	}
	c.Reminders = append([]Reminder{}, u.Reminders...)
	return &c
}

// Reminder is a daily nudge at a 24h wall-clock time.
type Reminder struct {
	Time  string `json:"time"`
	Label string `json:"label"`
}
