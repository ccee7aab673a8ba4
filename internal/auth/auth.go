// Package auth guards the control endpoints with a static bearer token.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/ccdanpian/sat-yuntai/internal/httputil"
)

// MinTokenLength is the shortest token accepted when auth is enabled.
const MinTokenLength = 16

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
	// PublicReads leaves GET and HEAD requests open so displays can poll
	// without the token; anything that moves the gimbal still needs it.
	PublicReads bool
}

// Validate rejects an enabled config without a usable token.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Token == "" {
		return errors.New("auth token is required when auth is enabled")
	}
	if len(c.Token) < MinTokenLength {
		return errors.New("auth token must be at least 16 characters")
	}
	return nil
}

// exemptPaths are always public regardless of auth configuration.
var exemptPaths = map[string]bool{
	"/healthz":              true,
	"/readyz":               true,
	"/metrics":              true,
	"/api/v1/gimbal/status": true,
	"/api/v1/tle/metadata":  true,
	"/api/v1/cache/stats":   true,
	"/api/v1/stream/frames": true,
}

func isExempt(cfg Config, r *http.Request) bool {
	if exemptPaths[r.URL.Path] {
		return true
	}
	if cfg.PublicReads && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		return true
	}
	return false
}

// Middleware enforces Bearer token auth on non-exempt requests when auth is
// enabled.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || isExempt(cfg, r) {
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="yuntai"`)
				httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
