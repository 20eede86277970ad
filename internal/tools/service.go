package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/seven-days-calm/internal/analytics"
	"github.com/ashureev/seven-days-calm/internal/domain"
	"github.com/ashureev/seven-days-calm/internal/identity"
	"github.com/ashureev/seven-days-calm/internal/store"
)

// Service applies tool calls to user records.
type Service struct {
	repo store.Repository
	sink analytics.Sink
	now  func() time.Time
}

// NewService creates a tool service. A nil sink discards tracked events.
func NewService(repo store.Repository, sink analytics.Sink) *Service {
	if sink == nil {
		sink = analytics.Discard{}
	}
	return &Service{repo: repo, sink: sink, now: time.Now}
}

// SetChallengeDay overwrites the user's current day and returns the record.
func (s *Service) SetChallengeDay(ctx context.Context, userID string, in SetChallengeDayInput) (*domain.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	user, err := s.repo.UpdateUser(ctx, userID, func(u *domain.User) error {
		u.Challenge.CurrentDay = *in.Day
		u.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save user %s: %w", userID, err)
	}
	slog.Info("Challenge day set", "user_id", userID, "day", *in.Day)
	return user, nil
}

// TrackEvent records an observation. Delivery to the sink is best effort;
// the log line alone satisfies the call.
func (s *Service) TrackEvent(ctx context.Context, userID string, in TrackEventInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if _, err := identity.EnsureUser(ctx, s.repo, userID); err != nil {
		return err
	}

	e := analytics.New(in.Name, in.Payload)
	e.UserID = userID
	slog.Info("Tracked event", "user_id", userID, "event", e.Name, "event_id", e.ID, "payload", e.Payload)
	if err := s.sink.Push(e); err != nil {
		slog.Warn("Failed to forward tracked event", "user_id", userID, "event", e.Name, "error", err)
	}
	return nil
}

// SetReminder adds a reminder unless the same (time, label) already exists.
func (s *Service) SetReminder(ctx context.Context, userID string, in SetReminderInput) (*domain.User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	added := false
	user, err := s.repo.UpdateUser(ctx, userID, func(u *domain.User) error {
		if !u.AddReminder(domain.Reminder{Time: in.Time, Label: in.Label}) {
			return store.ErrNoChange
		}
		added = true
		u.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save user %s: %w", userID, err)
	}
	if !added {
		slog.Debug("Reminder already set", "user_id", userID, "time", in.Time, "label", in.Label)
		return user, nil
	}
	slog.Info("Reminder set", "user_id", userID, "time", in.Time, "label", in.Label)
	return user, nil
}

// GoalLog acknowledges a logged goal.
type GoalLog struct {
	Day       int       `json:"day"`
	Completed bool      `json:"completed"`
	Timestamp time.Time `json:"timestamp"`
}

// LogGoal records that the user finished (or abandoned) a day's practice.
// Completed days advance lastCompletedDay; it never moves backwards.
func (s *Service) LogGoal(ctx context.Context, userID string, day int, completed bool) (GoalLog, error) {
	if !domain.ValidDay(day) {
		return GoalLog{}, invalid("day", "must be between %d and %d, got %d", domain.MinDay, domain.MaxDay, day)
	}
	_, err := s.repo.UpdateUser(ctx, userID, func(u *domain.User) error {
		if !completed || day <= u.Challenge.LastCompletedDay {
			return store.ErrNoChange
		}
		u.Challenge.LastCompletedDay = day
		u.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return GoalLog{}, fmt.Errorf("save user %s: %w", userID, err)
	}
	entry := GoalLog{Day: day, Completed: completed, Timestamp: s.now().UTC()}
	slog.Info("Goal logged", "user_id", userID, "day", day, "completed", completed)
	return entry, nil
}
