// Package auth guards the HTTP API with a static bearer token.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/star/skywatch/internal/httputil"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string

	// PublicReads lets GET and HEAD through without a token, leaving only
	// state-changing requests such as catalog refreshes protected.
	PublicReads bool
}

// Probes, scrapes and the event stream never need a token. EventSource
// cannot send an Authorization header.
var public = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/api/v1/stream/",
}

func isPublic(r *http.Request, cfg Config) bool {
	if cfg.PublicReads && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		return true
	}
	for _, p := range public {
		if r.URL.Path == p || (strings.HasSuffix(p, "/") && strings.HasPrefix(r.URL.Path, p)) {
			return true
		}
	}
	return false
}

// bearer returns the token from an "Authorization: Bearer <token>" header.
// The scheme is case-insensitive.
func bearer(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Middleware rejects requests without the configured token when auth is
// enabled.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || isPublic(r, cfg) {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := bearer(r)
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="skywatch"`)
				httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
