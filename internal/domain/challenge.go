package domain

// Challenge day bounds.
const (
	MinDay = 1
	MaxDay = 7
)

// DayTheme describes one day of the program.
type DayTheme struct {
	Day         int    `json:"day"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

var dayThemes = [MaxDay]DayTheme{
	{Day: 1, Title: "Arrive", Description: "2-min quick reset, breath + sound"},
	{Day: 2, Title: "Longer Exhale", Description: "In 4 / Out 6, downshift"},
	{Day: 3, Title: "Body Scan", Description: "Head to feet, release tension"},
	{Day: 4, Title: "Label Thoughts", Description: "Notice thinking, return to breath"},
	{Day: 5, Title: "Box Breathing", Description: "4-4-4-4, find steadiness"},
	{Day: 6, Title: "Open Awareness", Description: "Sounds, touch, breath"},
	{Day: 7, Title: "Integration", Description: "Choose your favorite practice"},
}

// DayThemes returns the ordered program. The slice is a copy.
func DayThemes() []DayTheme {
	out := make([]DayTheme, len(dayThemes))
	copy(out, dayThemes[:])
	return out
}

// ThemeFor returns the theme for day after clamping it into range.
func ThemeFor(day int) DayTheme {
	return dayThemes[ClampDay(day)-1]
}

// ClampDay forces day into [MinDay, MaxDay].
func ClampDay(day int) int {
	if day < MinDay {
		return MinDay
	}
	if day > MaxDay {
		return MaxDay
	}
	return day
}

// ValidDay reports whether day is inside the program without clamping.
func ValidDay(day int) bool {
	return day >= MinDay && day <= MaxDay
}

// DayProgress is derived per theme from the current day and never stored.
type DayProgress struct {
	Day       int  `json:"day"`
	Unlocked  bool `json:"unlocked"`
	Completed bool `json:"completed"`
}

// ProgressFor derives the progress row for currentDay.
func ProgressFor(currentDay int) []DayProgress {
	current := ClampDay(currentDay)
	out := make([]DayProgress, 0, MaxDay)
	for _, t := range dayThemes {
		out = append(out, DayProgress{
			Day:       t.Day,
			Unlocked:  t.Day <= current,
			Completed: t.Day < current,
		})
	}
	return out
}
