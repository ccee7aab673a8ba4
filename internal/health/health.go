// Package health serves the liveness and readiness checks.
package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

// Healthz returns 200 "ok\n" unconditionally.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Checker runs named readiness checks.
type Checker struct {
	timeout time.Duration

	mu     sync.Mutex
	names  []string
	checks map[string]Check
}

// NewChecker creates a checker whose checks share a per-request timeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{timeout: timeout, checks: make(map[string]Check)}
}

// Add registers a check. Re-adding a name replaces the check.
func (c *Checker) Add(name string, fn Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.checks[name]; !ok {
		c.names = append(c.names, name)
	}
	c.checks[name] = fn
}

// Run executes every check in registration order and returns the failures
// keyed by name.
func (c *Checker) Run(ctx context.Context) map[string]error {
	c.mu.Lock()
	names := append([]string(nil), c.names...)
	checks := make([]Check, len(names))
	for i, n := range names {
		checks[i] = c.checks[n]
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	failed := make(map[string]error)
	for i, fn := range checks {
		if err := fn(ctx); err != nil {
			failed[names[i]] = err
		}
	}
	return failed
}

// Readyz returns 200 "ready\n" when every check passes and 503 listing the
// failed checks otherwise.
func (c *Checker) Readyz(w http.ResponseWriter, r *http.Request) {
	failed := c.Run(r.Context())
	w.Header().Set("Content-Type", "text/plain")
	if len(failed) == 0 {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready\n"))
		return
	}

	c.mu.Lock()
	names := append([]string(nil), c.names...)
	c.mu.Unlock()

	var b strings.Builder
	b.WriteString("not ready\n")
	for _, n := range names {
		if err, ok := failed[n]; ok {
			fmt.Fprintf(&b, "%s: %v\n", n, err)
		}
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte(b.String()))
}
