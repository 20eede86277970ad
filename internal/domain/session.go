package domain

import (
	"time"
)

// SignedSession is a short-lived capability handed to the voice widget.
// It is generated per request and never stored.
type SignedSession struct {
	URL          string    `json:"url"`
	ExpiresAt    time.Time `json:"expiresAt"`
	ChallengeDay *int      `json:"challenge_day"`
}

// Expired reports whether the session is no longer usable at now.
func (s SignedSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
