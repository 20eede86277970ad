// Package web renders the challenge page and serves the embedded bridge
// script that connects the voice widget to the server.
package web

//go:generate templ generate

import (
	"embed"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/a-h/templ"

	"github.com/ashureev/seven-days-calm/internal/domain"
	"github.com/ashureev/seven-days-calm/internal/tracker"
)

//go:embed static
var staticFS embed.FS

// PageData is everything the challenge page needs to render.
type PageData struct {
	Day      int
	Theme    domain.DayTheme
	Themes   []domain.DayTheme
	Progress []domain.DayProgress
	Attrs    map[string]string
}

// NewPageData derives the page for day, clamped.
func NewPageData(day int) PageData {
	day = domain.ClampDay(day)
	return PageData{
		Day:      day,
		Theme:    domain.ThemeFor(day),
		Themes:   domain.DayThemes(),
		Progress: domain.ProgressFor(day),
		Attrs:    tracker.Attributes(day),
	}
}

// titleFor returns the theme title of day, empty when out of range.
func (d PageData) titleFor(day int) string {
	for _, t := range d.Themes {
		if t.Day == day {
			return t.Title
		}
	}
	return ""
}

// progressState is the CSS class of one progress marker.
func progressState(p domain.DayProgress) string {
	switch {
	case p.Completed:
		return "completed"
	case p.Unlocked:
		return "unlocked"
	default:
		return "locked"
	}
}

// PageHandler serves GET /. The day comes from the ?day= query; the page
// script replaces it with the locally stored day on load.
func PageHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		day := domain.MinDay
		if n, err := strconv.Atoi(r.URL.Query().Get("day")); err == nil {
			day = n
		}
		templ.Handler(Page(NewPageData(day))).ServeHTTP(w, r)
	})
}

// StaticHandler serves the embedded static assets under /static/.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
