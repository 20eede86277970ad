// Package tools implements the side effects the voice agent can request.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ashureev/seven-days-calm/internal/domain"
)

// ValidationError reports a request body that does not match a tool schema.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Decode reads a JSON object from r into dst. Malformed JSON and type
// mismatches become ValidationErrors; unknown fields are ignored.
func Decode(r io.Reader, dst any) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			return invalid("", "request body is required")
		case errors.As(err, &typeErr):
			return invalid(typeErr.Field, "expected %s, got %s", typeErr.Type, typeErr.Value)
		default:
			return invalid("", "invalid JSON body: %v", err)
		}
	}
	return nil
}

// SetChallengeDayInput is the body of setChallengeDay.
type SetChallengeDayInput struct {
	Day *int `json:"day"`
}

// Validate requires day in [1,7].
func (in SetChallengeDayInput) Validate() error {
	if in.Day == nil {
		return invalid("day", "is required")
	}
	if !domain.ValidDay(*in.Day) {
		return invalid("day", "must be between %d and %d, got %d", domain.MinDay, domain.MaxDay, *in.Day)
	}
	return nil
}

// TrackEventInput is the body of trackEvent.
type TrackEventInput struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Validate requires a non-empty name.
func (in TrackEventInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return invalid("name", "is required")
	}
	return nil
}

var reminderTime = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// SetReminderInput is the body of setReminder.
type SetReminderInput struct {
	Time  string `json:"time"`
	Label string `json:"label"`
}

// Validate requires a 24h HH:mm time and a non-empty label.
func (in SetReminderInput) Validate() error {
	if !reminderTime.MatchString(in.Time) {
		return invalid("time", "use HH:mm 24h time, got %q", in.Time)
	}
	if strings.TrimSpace(in.Label) == "" {
		return invalid("label", "is required")
	}
	return nil
}
