// Package route picks which guided session the voice agent should run.
package route

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ashureev/seven-days-calm/internal/domain"
)

// Route IDs for the non-challenge sessions.
const (
	TwoMinute   = "2min"
	FiveMinute  = "5min"
	EightMinute = "8min"
	Sleep       = "sleep"
	PreMeeting  = "pre_meeting"
)

// Reminder labels attached to each route family.
const (
	LabelChallenge  = "7 Days to Calm"
	LabelSleep      = "Sleep Wind-Down"
	LabelPreMeeting = "Pre-Meeting Focus"
	LabelBreath     = "Breath Break"
)

// Route is the session the agent should start.
type Route struct {
	ID            string `json:"id"`
	IsChallenge   bool   `json:"isChallenge"`
	ReminderLabel string `json:"reminderLabel"`
}

// Input carries what is known about the caller's request. Both fields are
// optional.
type Input struct {
	Utterance    string
	ChallengeDay *int
}

var (
	sleepPattern   = regexp.MustCompile(`sleep|bed|night`)
	meetingPattern = regexp.MustCompile(`meeting|presentation|interview`)
	timedPatterns  = []struct {
		re *regexp.Regexp
		id string
	}{
		{regexp.MustCompile(`(^|\s)2($|\s)`), TwoMinute},
		{regexp.MustCompile(`(^|\s)5($|\s)`), FiveMinute},
		{regexp.MustCompile(`(^|\s)8($|\s)`), EightMinute},
	}
)

// ChallengeID names the route for a challenge day.
func ChallengeID(day int) string {
	return fmt.Sprintf("challenge_day_%d", day)
}

// Decide returns exactly one route for any input. First match wins:
// challenge day, sleep vocabulary, meeting vocabulary, a standalone 2/5/8,
// then the two-minute default.
func Decide(in Input) Route {
	if in.ChallengeDay != nil && domain.ValidDay(*in.ChallengeDay) {
		return Route{ID: ChallengeID(*in.ChallengeDay), IsChallenge: true, ReminderLabel: LabelChallenge}
	}

	u := strings.ToLower(in.Utterance)
	if sleepPattern.MatchString(u) {
		return Route{ID: Sleep, ReminderLabel: LabelSleep}
	}
	if meetingPattern.MatchString(u) {
		return Route{ID: PreMeeting, ReminderLabel: LabelPreMeeting}
	}
	for _, p := range timedPatterns {
		if p.re.MatchString(u) {
			return Route{ID: p.id, ReminderLabel: LabelBreath}
		}
	}
	return Route{ID: TwoMinute, ReminderLabel: LabelBreath}
}
