// Package middleware provides HTTP middleware for the local brokerage API.
package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// TokenQueryParam is the query parameter accepted in place of the
// Authorization header, so links opened from a QR code can authenticate.
const TokenQueryParam = "token"

// TokenAuth guards routes with a static bearer token.
type TokenAuth struct {
	token  string
	public map[string]bool
}

// NewTokenAuth creates a TokenAuth. An empty token disables the check.
// Requests to any of the public paths are always let through.
func NewTokenAuth(token string, public ...string) *TokenAuth {
	m := make(map[string]bool, len(public))
	for _, p := range public {
		m[p] = true
	}
	return &TokenAuth{token: token, public: m}
}

// RequireToken is middleware that rejects requests without the token.
func (a *TokenAuth) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.token == "" || a.public[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		if !a.valid(RequestToken(r)) {
			writeError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *TokenAuth) valid(got string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(a.token)) == 1
}

// RequestToken returns the bearer token of r, falling back to the token
// query parameter.
func RequestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get(TokenQueryParam)
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs one line per request.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	log := logger.With("component", "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			log.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
				"ip", getIP(r))
		})
	}
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
