// Package identity resolves the caller identity supplied by the page or the
// voice agent.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ashureev/seven-days-calm/internal/domain"
	"github.com/ashureev/seven-days-calm/internal/store"
)

const (
	UserHeaderName    = "X-User-ID"
	SessionHeaderName = "X-Calm-Session-ID"
	DefaultSessionID  = "default"

	// MaxUserIDLength bounds the X-User-ID header in bytes.
	MaxUserIDLength = 256
)

// ErrInvalidUserID is returned for an X-User-ID header that cannot name a user.
var ErrInvalidUserID = errors.New("invalid X-User-ID")

type contextKey int

const (
	userIDKey contextKey = iota
	sessionIDKey
)

var sessionPattern = regexp.MustCompile(`^[A-Za-z0-9._:@-]{1,128}$`)

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext extracts the tab session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionID
}

// WithUserID returns a context carrying userID. Used by tests and the CLI.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// ResolveUserID returns the X-User-ID header, trimmed, or fallback when the
// header is absent. The ID is opaque: any printable UTF-8 up to
// MaxUserIDLength bytes is used as given, anything else is rejected.
func ResolveUserID(r *http.Request, fallback string) (string, error) {
	id := strings.TrimSpace(r.Header.Get(UserHeaderName))
	if id == "" {
		return fallback, nil
	}
	if len(id) > MaxUserIDLength || !utf8.ValidString(id) {
		return "", ErrInvalidUserID
	}
	for _, c := range id {
		if unicode.IsControl(c) {
			return "", ErrInvalidUserID
		}
	}
	return id, nil
}

func sessionIDFromRequest(r *http.Request) string {
	sid := strings.TrimSpace(r.Header.Get(SessionHeaderName))
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	if !sessionPattern.MatchString(sid) {
		return DefaultSessionID
	}
	return sid
}

// EnsureUser returns the stored record for userID, creating an empty one on
// first access.
func EnsureUser(ctx context.Context, repo store.Repository, userID string) (*domain.User, error) {
	user, err := repo.UpdateUser(ctx, userID, func(*domain.User) error {
		return store.ErrNoChange
	})
	if err != nil {
		return nil, fmt.Errorf("ensure user %s: %w", userID, err)
	}
	return user, nil
}

// Middleware injects the caller identity and per-request session ID.
// Records are created lazily on first sight. A malformed X-User-ID is
// rejected with 400.
func Middleware(repo store.Repository, defaultUserID string) func(http.Handler) http.Handler {
	if defaultUserID == "" {
		defaultUserID = domain.DefaultUserID
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := ResolveUserID(r, defaultUserID)
			if err != nil {
				http.Error(w, `{"ok":false,"error":"invalid X-User-ID"}`, http.StatusBadRequest)
				return
			}

			if _, err := EnsureUser(r.Context(), repo, userID); err != nil {
				http.Error(w, `{"ok":false,"error":"failed to initialize user"}`, http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = context.WithValue(ctx, sessionIDKey, sessionIDFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
