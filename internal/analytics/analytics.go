// Package analytics carries challenge and widget events to their observers.
package analytics

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/seven-days-calm/internal/domain"
)

// Event names emitted by the tracker, the widget binding and the bridge.
const (
	EventDaySet         = "em_day_set"
	EventDayUnlocked    = "em_day_unlocked"
	EventChallengeReset = "em_challenge_reset"
	EventSkipToToday    = "em_skip_to_today"
	EventConvaiStarted  = "em_convai_started"
	EventConvaiEnded    = "em_convai_ended"
)

// Sink receives events. Push must not block on slow consumers.
type Sink interface {
	Push(e domain.Event) error
}

// New stamps an event with an ID and the current time.
func New(name string, payload map[string]any) domain.Event {
	return domain.Event{
		ID:      uuid.NewString(),
		Name:    name,
		Payload: payload,
		At:      time.Now().UTC(),
	}
}

// Recorder keeps every pushed event in memory, in order. It plays the role of
// the page's data layer.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Push appends e.
func (r *Recorder) Push(e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// Last returns the most recent event, if any.
func (r *Recorder) Last() (domain.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return domain.Event{}, false
	}
	return r.events[len(r.events)-1], true
}

// SlogSink writes each event as a structured log line.
type SlogSink struct {
	Logger *slog.Logger
}

// Push logs e at info level.
func (s SlogSink) Push(e domain.Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("analytics event",
		"event", e.Name,
		"event_id", e.ID,
		"user_id", e.UserID,
		"payload", e.Payload,
	)
	return nil
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

// Push forwards e to all sinks, even after a failure.
func (m Multi) Push(e domain.Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Push(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

// Push does nothing.
func (Discard) Push(domain.Event) error { return nil }
