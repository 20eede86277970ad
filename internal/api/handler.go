// Package api provides HTTP handlers for the calm session stub.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/seven-days-calm/internal/config"
	"github.com/ashureev/seven-days-calm/internal/convai"
	"github.com/ashureev/seven-days-calm/internal/store"
	"github.com/ashureev/seven-days-calm/internal/tools"
)

// Handler provides common handler utilities.
type Handler struct {
	repo   store.Repository
	tools  *tools.Service
	signer *convai.Signer
	cfg    *config.Config
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, svc *tools.Service, signer *convai.Signer, cfg *config.Config) *Handler {
	return &Handler{
		repo:   repo,
		tools:  svc,
		signer: signer,
		cfg:    cfg,
	}
}

// RegisterRoutes registers the session stub routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/convai/signed-url", h.SignedURL)

	r.Route("/api", func(r chi.Router) {
		r.Get("/route", h.Route)
		r.Get("/user", h.GetUser)
		r.Route("/tools", func(r chi.Router) {
			r.Post("/setChallengeDay", h.SetChallengeDay)
			r.Post("/trackEvent", h.TrackEvent)
			r.Post("/setReminder", h.SetReminder)
		})
	})

	r.Post("/tool/log-goal", h.LogGoal)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"ok":false,"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]interface{}{"ok": false, "error": message})
}
