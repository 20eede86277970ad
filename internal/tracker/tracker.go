// Package tracker holds the client side of the challenge: the current day,
// its persisted state, analytics for every transition and the attributes
// pushed onto the voice widget.
package tracker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/seven-days-calm/internal/analytics"
	"github.com/ashureev/seven-days-calm/internal/domain"
	"github.com/ashureev/seven-days-calm/internal/tools"
)

// NoticeDelay is how long the reset confirmation stays visible.
const NoticeDelay = 3 * time.Second

// ResetMessage is the text of the reset confirmation notice.
const ResetMessage = "Challenge reset. Welcome back to Day 1."

// ConfirmFunc approves a jump from one day to a later one.
type ConfirmFunc func(from, to int) bool

// SkipResult describes a SkipToToday call.
type SkipResult struct {
	From      int
	To        int
	Confirmed bool
}

// Jumped reports whether the current day moved.
func (r SkipResult) Jumped() bool {
	return r.Confirmed && r.To != r.From
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithUserID tags emitted events with userID.
func WithUserID(userID string) Option {
	return func(t *Tracker) { t.userID = userID }
}

// WithLogger sets the logger for degraded paths. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(t *Tracker) {
		if log != nil {
			t.log = log
		}
	}
}

// WithNoticeDelay overrides NoticeDelay.
func WithNoticeDelay(d time.Duration) Option {
	return func(t *Tracker) { t.noticeDelay = d }
}

// Tracker is the day state machine. It is safe for concurrent use.
// Transitions are serialized, and observers see days in the order they were
// committed.
type Tracker struct {
	storage     Storage
	sink        analytics.Sink
	now         func() time.Time
	userID      string
	noticeDelay time.Duration
	log         *slog.Logger

	// commitMu is held from the storage write through observer notification.
	commitMu sync.Mutex

	mu        sync.Mutex
	day       int
	startedAt time.Time

	obsMu     sync.Mutex
	observers map[int]func(day int)
	nextObs   int
}

// New creates a tracker on day 1. Call Init to load persisted state.
func New(storage Storage, sink analytics.Sink, opts ...Option) *Tracker {
	if sink == nil {
		sink = analytics.Discard{}
	}
	t := &Tracker{
		storage:     storage,
		sink:        sink,
		now:         time.Now,
		noticeDelay: NoticeDelay,
		log:         slog.Default(),
		day:         domain.MinDay,
		observers:   make(map[int]func(int)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Init loads the persisted day, stamps the start time when missing and
// writes the clamped day back. A missing or unparseable day becomes 1.
func (t *Tracker) Init() error {
	t.commitMu.Lock()
	defer t.commitMu.Unlock()

	t.mu.Lock()
	raw, ok, err := t.storage.Get(KeyChallengeDay)
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("read challenge day: %w", err)
	}
	day := domain.MinDay
	if ok {
		if n, perr := strconv.Atoi(strings.TrimSpace(raw)); perr == nil {
			day = n
		} else {
			t.log.Warn("Ignoring invalid persisted challenge day", "value", raw)
		}
	}
	day = domain.ClampDay(day)

	started, err := t.loadStart()
	if err != nil {
		t.mu.Unlock()
		return err
	}
	writes := map[string]string{KeyChallengeDay: strconv.Itoa(day)}
	if started.IsZero() {
		started = t.now().UTC()
		writes[KeyChallengeStart] = started.Format(time.RFC3339)
	}
	if err := t.storage.Apply(writes); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("persist challenge: %w", err)
	}
	t.day = day
	t.startedAt = started
	t.mu.Unlock()

	t.emit(analytics.EventDaySet, map[string]any{"day": day})
	t.notify(day)
	return nil
}

func (t *Tracker) loadStart() (time.Time, error) {
	raw, ok, err := t.storage.Get(KeyChallengeStart)
	if err != nil {
		return time.Time{}, fmt.Errorf("read challenge start: %w", err)
	}
	if !ok {
		return time.Time{}, nil
	}
	started, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		t.log.Warn("Ignoring invalid persisted challenge start", "value", raw)
		return time.Time{}, nil
	}
	return started, nil
}

func (t *Tracker) persistDay(day int) error {
	if err := t.storage.Set(KeyChallengeDay, strconv.Itoa(day)); err != nil {
		return fmt.Errorf("persist challenge day: %w", err)
	}
	return nil
}

// setDay persists and applies day. Callers hold no locks.
func (t *Tracker) setDay(day int) (int, error) {
	next := domain.ClampDay(day)

	t.commitMu.Lock()
	defer t.commitMu.Unlock()

	t.mu.Lock()
	if err := t.persistDay(next); err != nil {
		current := t.day
		t.mu.Unlock()
		return current, err
	}
	t.day = next
	t.mu.Unlock()

	t.emit(analytics.EventDaySet, map[string]any{"day": next})
	t.notify(next)
	return next, nil
}

// Complete marks day as done and unlocks the next one, stopping at day 7.
func (t *Tracker) Complete(day int) (int, error) {
	next, err := t.setDay(day + 1)
	if err != nil {
		return next, err
	}
	t.emit(analytics.EventDayUnlocked, map[string]any{"day": day, "next_day": next})
	return next, nil
}

// SetDay moves to day, clamped. Used by the agent's setChallengeDay tool.
func (t *Tracker) SetDay(day int) (int, error) {
	return t.setDay(day)
}

// Reset clears the persisted day and start time and returns to day 1. The
// returned notice hides itself after the notice delay.
func (t *Tracker) Reset() (*Notice, error) {
	t.commitMu.Lock()
	defer t.commitMu.Unlock()

	t.mu.Lock()
	err := t.storage.Apply(map[string]string{KeyChallengeDay: strconv.Itoa(domain.MinDay)}, KeyChallengeStart)
	if err != nil {
		t.mu.Unlock()
		return nil, fmt.Errorf("clear challenge: %w", err)
	}
	t.day = domain.MinDay
	t.startedAt = time.Time{}
	t.mu.Unlock()

	t.emit(analytics.EventDaySet, map[string]any{"day": domain.MinDay})
	t.emit(analytics.EventChallengeReset, nil)
	t.notify(domain.MinDay)
	return newNotice(ResetMessage, t.noticeDelay), nil
}

// ImpliedDay is the day the calendar says the user should be on: whole days
// elapsed since the start, plus one, clamped.
func (t *Tracker) ImpliedDay() int {
	t.mu.Lock()
	started := t.startedAt
	t.mu.Unlock()
	if started.IsZero() {
		return domain.MinDay
	}
	elapsed := t.now().Sub(started)
	if elapsed < 0 {
		elapsed = 0
	}
	return domain.ClampDay(int(elapsed/(24*time.Hour)) + 1)
}

// SkipToToday jumps to the implied day when it is ahead of the current day
// and confirm approves. A nil confirm declines. Nothing is emitted when the
// current day is already caught up.
func (t *Tracker) SkipToToday(confirm ConfirmFunc) (SkipResult, error) {
	from := t.Day()
	to := t.ImpliedDay()
	if to <= from {
		return SkipResult{From: from, To: from}, nil
	}

	res := SkipResult{From: from, To: to}
	if confirm != nil {
		res.Confirmed = confirm(from, to)
	}
	if res.Confirmed {
		if _, err := t.setDay(to); err != nil {
			return SkipResult{From: from, To: from}, err
		}
	}
	t.emit(analytics.EventSkipToToday, map[string]any{"from": from, "to": to, "confirmed": res.Confirmed})
	return res, nil
}

// Day returns the current day.
func (t *Tracker) Day() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.day
}

// StartedAt returns the challenge start, zero after a reset until Init runs.
func (t *Tracker) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt
}

// Theme returns the theme of the current day.
func (t *Tracker) Theme() domain.DayTheme {
	return domain.ThemeFor(t.Day())
}

// Progress derives the per-day flags for the current day.
func (t *Tracker) Progress() []domain.DayProgress {
	return domain.ProgressFor(t.Day())
}

// SaveReminder stores r as the client reminder payload.
func (t *Tracker) SaveReminder(r domain.Reminder) error {
	if err := (tools.SetReminderInput{Time: r.Time, Label: r.Label}).Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode reminder: %w", err)
	}
	if err := t.storage.Set(KeyReminder, string(payload)); err != nil {
		return fmt.Errorf("persist reminder: %w", err)
	}
	return nil
}

// Reminder returns the stored reminder payload, if any. A corrupt payload
// reads as absent.
func (t *Tracker) Reminder() (domain.Reminder, bool, error) {
	raw, ok, err := t.storage.Get(KeyReminder)
	if err != nil {
		return domain.Reminder{}, false, fmt.Errorf("read reminder: %w", err)
	}
	if !ok {
		return domain.Reminder{}, false, nil
	}
	var r domain.Reminder
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.log.Warn("Ignoring invalid persisted reminder", "error", err)
		return domain.Reminder{}, false, nil
	}
	return r, true, nil
}

// Emit pushes a custom event through the tracker's sink, tagged with its user.
func (t *Tracker) Emit(name string, payload map[string]any) {
	t.emit(name, payload)
}

func (t *Tracker) emit(name string, payload map[string]any) {
	e := analytics.New(name, payload)
	e.UserID = t.userID
	if err := t.sink.Push(e); err != nil {
		t.log.Warn("Failed to push analytics event", "event", name, "error", err)
	}
}

// subscribe registers fn to run after every day change. fn runs while the
// transition is still being committed, so it must not change the day itself.
// The returned func removes it.
func (t *Tracker) subscribe(fn func(day int)) func() {
	t.obsMu.Lock()
	id := t.nextObs
	t.nextObs++
	t.observers[id] = fn
	t.obsMu.Unlock()

	return func() {
		t.obsMu.Lock()
		delete(t.observers, id)
		t.obsMu.Unlock()
	}
}

func (t *Tracker) notify(day int) {
	t.obsMu.Lock()
	fns := make([]func(int), 0, len(t.observers))
	for _, fn := range t.observers {
		fns = append(fns, fn)
	}
	t.obsMu.Unlock()

	for _, fn := range fns {
		fn(day)
	}
}
