// Package middleware provides HTTP middleware for the calm API.
package middleware

import "net/http"

// OriginAllowed reports whether origin may call the API. An empty allowlist
// admits every origin; "*" in the list does the same.
func OriginAllowed(allowlist []string, origin string) bool {
	if len(allowlist) == 0 {
		return true
	}
	for _, o := range allowlist {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// CORS returns middleware that handles CORS headers for allowlisted origins.
// Disallowed origins get no CORS headers; the browser then blocks the read.
func CORS(allowlist []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")

			if OriginAllowed(allowlist, origin) {
				if origin == "" {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
				}
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID, X-Calm-Session-ID")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
