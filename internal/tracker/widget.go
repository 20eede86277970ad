package tracker

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ashureev/seven-days-calm/internal/analytics"
	"github.com/ashureev/seven-days-calm/internal/domain"
)

// Widget attribute names.
const (
	AttrDynamicVariables = "dynamic-variables"
	AttrFirstMessage     = "override-first-message"
	AttrSignedURL        = "signed-url"
)

// Widget lifecycle notifications.
const (
	LifecycleCall   = "call"
	LifecycleHangup = "hangup"
)

// Element is the embedded voice widget as seen by the tracker.
type Element interface {
	SetAttribute(name, value string)
}

// DynamicVariables is the variable bundle handed to the agent. Only the day
// is known client side; the rest are filled in during the conversation.
type DynamicVariables struct {
	ChallengeDay  int     `json:"challenge_day"`
	TimeAvailable *string `json:"time_available"`
	Energy        *string `json:"energy"`
	Environment   *string `json:"environment"`
	Intent        *string `json:"intent"`
}

// FirstMessage is the agent's opening line for day.
func FirstMessage(day int) string {
	theme := domain.ThemeFor(day)
	return fmt.Sprintf("Welcome to Day %d: %s. How much time would you like? 2, 5, or 8 minutes?",
		theme.Day, theme.Title)
}

// Attributes returns the widget attributes for day.
func Attributes(day int) map[string]string {
	vars, _ := json.Marshal(DynamicVariables{ChallengeDay: domain.ClampDay(day)})
	return map[string]string{
		AttrDynamicVariables: string(vars),
		AttrFirstMessage:     FirstMessage(day),
	}
}

func apply(el Element, day int) {
	attrs := Attributes(day)
	el.SetAttribute(AttrDynamicVariables, attrs[AttrDynamicVariables])
	el.SetAttribute(AttrFirstMessage, attrs[AttrFirstMessage])
}

// Binding keeps one widget element in sync with a tracker and turns the
// widget's lifecycle notifications into analytics.
type Binding struct {
	tracker *Tracker

	mu          sync.Mutex
	el          Element
	unsubscribe func()
	inCall      bool
}

// NewBinding creates a detached binding.
func NewBinding(t *Tracker) *Binding {
	return &Binding{tracker: t}
}

// Attach applies the current attributes to el and keeps them updated on every
// day change. Attaching replaces any previous element.
func (b *Binding) Attach(el Element) {
	b.Detach()

	b.mu.Lock()
	b.el = el
	// Subscribe before reading the day so a change committed in between is
	// applied after this one.
	b.unsubscribe = b.tracker.subscribe(func(day int) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.el != nil {
			apply(b.el, day)
		}
	})
	apply(el, b.tracker.Day())
	b.mu.Unlock()
}

// Detach stops updating the element. Lifecycle notifications are ignored
// until the next Attach.
func (b *Binding) Detach() {
	b.mu.Lock()
	unsub := b.unsubscribe
	b.el = nil
	b.unsubscribe = nil
	b.inCall = false
	b.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Attached reports whether an element is bound.
func (b *Binding) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.el != nil
}

// SetSignedURL pushes a freshly loaded session URL onto the element.
func (b *Binding) SetSignedURL(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.el != nil {
		b.el.SetAttribute(AttrSignedURL, url)
	}
}

// HandleLifecycle consumes a widget notification. It reports whether the
// notification was handled; unknown names and detached bindings are ignored.
func (b *Binding) HandleLifecycle(name string) bool {
	b.mu.Lock()
	if b.el == nil {
		b.mu.Unlock()
		return false
	}
	var event string
	switch name {
	case LifecycleCall:
		b.inCall = true
		event = analytics.EventConvaiStarted
	case LifecycleHangup:
		b.inCall = false
		event = analytics.EventConvaiEnded
	default:
		b.mu.Unlock()
		return false
	}
	b.mu.Unlock()

	b.tracker.emit(event, map[string]any{"day": b.tracker.Day()})
	return true
}

// Tools returns the client tools exposed to the agent. They are only
// available between a call notification and the matching hangup.
func (b *Binding) Tools() (*ClientTools, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inCall {
		return nil, false
	}
	return &ClientTools{tracker: b.tracker}, true
}

// ClientTools are the functions the voice agent may call in the page.
type ClientTools struct {
	tracker *Tracker
}

// SetChallengeDay moves the tracker to day and reports the applied day.
func (c *ClientTools) SetChallengeDay(day int) (int, error) {
	next, err := c.tracker.SetDay(day)
	if err != nil {
		return next, err
	}
	c.tracker.emit(analytics.EventDayUnlocked, map[string]any{"day": next})
	return next, nil
}

// TrackEvent forwards an agent event to the data layer. Blank names are
// dropped.
func (c *ClientTools) TrackEvent(name string, payload map[string]any) {
	if strings.TrimSpace(name) == "" {
		return
	}
	c.tracker.emit(name, payload)
}

// GetChallengeDay returns the current day.
func (c *ClientTools) GetChallengeDay() int {
	return c.tracker.Day()
}
