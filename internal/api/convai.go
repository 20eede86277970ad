package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/seven-days-calm/internal/convai"
	"github.com/ashureev/seven-days-calm/internal/identity"
	"github.com/ashureev/seven-days-calm/internal/metrics"
	"github.com/ashureev/seven-days-calm/internal/middleware"
)

// SignedURL issues a short-lived session URL for the voice widget.
// Origins outside a configured allowlist are refused.
func (h *Handler) SignedURL(w http.ResponseWriter, r *http.Request) {
	origin := strings.TrimRight(r.Header.Get("Origin"), "/")
	if !middleware.OriginAllowed(h.cfg.CORSAllowlist, origin) {
		slog.Warn("Signed URL refused", "origin", origin)
		metrics.SignedURLs.WithLabelValues(metrics.OutcomeDenied).Inc()
		Error(w, http.StatusForbidden, "Origin not allowed")
		return
	}

	userID := identity.UserIDFromContext(r.Context())
	day := convai.ParseDay(r.URL.Query().Get("challenge_day"))

	sess, err := h.signer.Issue(userID, day)
	if err != nil {
		slog.Error("Failed to issue signed URL", "error", err, "user_id", userID)
		metrics.SignedURLs.WithLabelValues(metrics.OutcomeInternal).Inc()
		Error(w, http.StatusInternalServerError, "internal")
		return
	}

	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	} else {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Vary", "Origin")

	metrics.SignedURLs.WithLabelValues(metrics.OutcomeOK).Inc()
	slog.Info("Signed URL issued", "user_id", userID, "expires_at", sess.ExpiresAt)
	JSON(w, http.StatusOK, convai.SignedURLResponse{
		OK:           true,
		URL:          sess.URL,
		SignedURL:    sess.URL,
		ExpiresAt:    sess.ExpiresAt,
		ChallengeDay: sess.ChallengeDay,
	})
}
