package api

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ashureev/seven-days-calm/internal/identity"
	"github.com/ashureev/seven-days-calm/internal/metrics"
	"github.com/ashureev/seven-days-calm/internal/route"
	"github.com/ashureev/seven-days-calm/internal/tools"
)

// Tool names used as metric labels.
const (
	toolSetChallengeDay = "setChallengeDay"
	toolTrackEvent      = "trackEvent"
	toolSetReminder     = "setReminder"
	toolLogGoal         = "logGoal"
)

// toolError maps a tool failure to a response. Validation failures are 400;
// anything else is logged and reported as an opaque 500.
func toolError(w http.ResponseWriter, tool, userID string, err error) {
	if tools.IsValidation(err) {
		metrics.ToolCalls.WithLabelValues(tool, metrics.OutcomeInvalid).Inc()
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Error("Tool call failed", "tool", tool, "user_id", userID, "error", err)
	metrics.ToolCalls.WithLabelValues(tool, metrics.OutcomeInternal).Inc()
	Error(w, http.StatusInternalServerError, "internal")
}

// SetChallengeDay overwrites the caller's current day.
func (h *Handler) SetChallengeDay(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var in tools.SetChallengeDayInput
	if err := tools.Decode(r.Body, &in); err != nil {
		toolError(w, toolSetChallengeDay, userID, err)
		return
	}
	user, err := h.tools.SetChallengeDay(r.Context(), userID, in)
	if err != nil {
		toolError(w, toolSetChallengeDay, userID, err)
		return
	}

	metrics.ToolCalls.WithLabelValues(toolSetChallengeDay, metrics.OutcomeOK).Inc()
	JSON(w, http.StatusOK, map[string]interface{}{"ok": true, "user": user})
}

// TrackEvent records an agent observation.
func (h *Handler) TrackEvent(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var in tools.TrackEventInput
	if err := tools.Decode(r.Body, &in); err != nil {
		toolError(w, toolTrackEvent, userID, err)
		return
	}
	if err := h.tools.TrackEvent(r.Context(), userID, in); err != nil {
		toolError(w, toolTrackEvent, userID, err)
		return
	}

	metrics.ToolCalls.WithLabelValues(toolTrackEvent, metrics.OutcomeOK).Inc()
	JSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// SetReminder adds a reminder to the caller's list.
func (h *Handler) SetReminder(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var in tools.SetReminderInput
	if err := tools.Decode(r.Body, &in); err != nil {
		toolError(w, toolSetReminder, userID, err)
		return
	}
	if _, err := h.tools.SetReminder(r.Context(), userID, in); err != nil {
		toolError(w, toolSetReminder, userID, err)
		return
	}

	metrics.ToolCalls.WithLabelValues(toolSetReminder, metrics.OutcomeOK).Inc()
	JSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// GetUser returns the caller's record.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	user, err := identity.EnsureUser(r.Context(), h.repo, userID)
	if err != nil {
		slog.Error("Failed to load user", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "internal")
		return
	}
	JSON(w, http.StatusOK, user)
}

// Route picks a practice for an utterance and optional challenge day.
func (h *Handler) Route(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := route.Input{Utterance: q.Get("utterance")}
	if raw := strings.TrimSpace(q.Get("challenge_day")); raw != "" {
		if day, err := strconv.Atoi(raw); err == nil {
			in.ChallengeDay = &day
		}
	}
	JSON(w, http.StatusOK, route.Decide(in))
}

// LogGoal records a finished practice. When a tool bearer token is
// configured the caller must present it.
func (h *Handler) LogGoal(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	if expected := h.cfg.ToolBearer; expected != "" {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			metrics.ToolCalls.WithLabelValues(toolLogGoal, metrics.OutcomeDenied).Inc()
			Error(w, http.StatusUnauthorized, "Invalid token")
			return
		}
	}

	q := r.URL.Query()
	day, err := strconv.Atoi(strings.TrimSpace(q.Get("day")))
	if err != nil {
		toolError(w, toolLogGoal, userID, &tools.ValidationError{Field: "day", Message: "must be an integer"})
		return
	}
	completed := true
	if raw := strings.TrimSpace(q.Get("completed")); raw != "" {
		completed, err = strconv.ParseBool(raw)
		if err != nil {
			toolError(w, toolLogGoal, userID, &tools.ValidationError{Field: "completed", Message: "must be a boolean"})
			return
		}
	}

	entry, err := h.tools.LogGoal(r.Context(), userID, day, completed)
	if err != nil {
		toolError(w, toolLogGoal, userID, err)
		return
	}

	metrics.ToolCalls.WithLabelValues(toolLogGoal, metrics.OutcomeOK).Inc()
	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Day %d logged", day),
		"data":    entry,
	})
}
