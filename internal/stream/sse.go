// Package stream implements Server-Sent Events (SSE) streaming of tracking
// frames. Clients connect via GET /api/v1/stream/frames and receive each new
// frame of the running session as it is produced.
//
// SSE message format:
//
//	data: {"type":"frame","frame":{...}}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","tle_fetched_at":"...","tle_age_seconds":1800}\n\n
//
// While no session runs the stream sends a single {"type":"idle"} message
// and then keep-alive comments (:\n\n) every KeepaliveInterval until a session
// starts.
package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/httputil"
	"github.com/ccdanpian/sat-yuntai/internal/metrics"
	"github.com/ccdanpian/sat-yuntai/internal/tle"
	"github.com/ccdanpian/sat-yuntai/internal/tracking"
)

// FrameSource supplies the latest tracking frame. *tracking.Tracker
// satisfies it.
type FrameSource interface {
	Frame() (*tracking.Frame, error)
}

// Config holds streaming configuration loaded from environment variables.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxTotal           int           // Max concurrent streams overall (default: 100).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Take the client IP from proxy headers.
}

// Handler manages SSE streaming connections.
type Handler struct {
	source  FrameSource
	store   *tle.Store
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler. store may be nil.
func NewHandler(source FrameSource, store *tle.Store, config Config, logger *slog.Logger) *Handler {
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		source:  source,
		store:   store,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxTotal),
		logger:  logger,
	}
}

// HandleFrames serves the SSE frame stream.
// GET /api/v1/stream/frames?interval=1&path=false
//
// interval is the poll period in seconds (1-10). path=false drops the polar
// paths from each frame to save bandwidth.
func (h *Handler) HandleFrames(w http.ResponseWriter, r *http.Request) {
	interval := time.Second
	if v := r.URL.Query().Get("interval"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 10 {
			httputil.WriteError(w, http.StatusBadRequest, "invalid interval parameter, must be 1-10")
			return
		}
		interval = time.Duration(n) * time.Second
	}

	withPath := true
	if v := r.URL.Query().Get("path"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "invalid path parameter, must be a boolean")
			return
		}
		withPath = b
	}

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"component", "stream",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
			"total", h.limiter.totalCount(),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.limiter.release(ip)
		httputil.WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncStreamConnections()
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"component", "stream",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"interval_seconds", interval.Seconds(),
	)

	c := &client{
		w:       w,
		flusher: flusher,
		rc:      http.NewResponseController(w),
		ip:      ip,
		logger:  h.logger,
	}

	defer func() {
		h.limiter.release(ip)
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"component", "stream",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
			"messages_sent", c.messagesSent,
			"bytes_sent", c.bytesSent,
		)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if err := c.rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "component", "stream", "error", err)
	}

	// Jittered retry interval (3-7s) spreads reconnects after a restart.
	fmt.Fprintf(w, "retry: %d\n\n", 3000+rand.IntN(4000))
	flusher.Flush()

	if err := c.sendJSON(h.metadata()); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "component", "stream", "remote_ip", ip, "error", err)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	var st sendState
	if err := h.poll(c, &st, withPath); err != nil {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			before := c.messagesSent
			if err := h.poll(c, &st, withPath); err != nil {
				return
			}
			if c.messagesSent != before {
				keepalive.Reset(h.config.KeepaliveInterval)
			}
		case <-keepalive.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "component", "stream", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// sendState remembers what a connection has already been sent.
type sendState struct {
	sessionID string
	cycle     int
	idle      bool
}

// poll sends the latest frame if it is new, or one idle message when the
// tracker has no session. Only write failures are returned.
func (h *Handler) poll(c *client, st *sendState, withPath bool) error {
	f, err := h.source.Frame()
	switch {
	case errors.Is(err, tracking.ErrNoSession):
		if st.idle {
			return nil
		}
		st.idle, st.sessionID, st.cycle = true, "", 0
		return h.send(c, idleMessage{Type: "idle"})
	case errors.Is(err, tracking.ErrNoFrame):
		return nil
	case err != nil:
		metrics.IncStreamErrors("source_error")
		h.logger.Debug("stream frame unavailable", "component", "stream", "error", err)
		return nil
	}

	if f.SessionID == st.sessionID && f.Cycle == st.cycle {
		return nil
	}
	st.idle, st.sessionID, st.cycle = false, f.SessionID, f.Cycle
	return h.send(c, buildFrameMessage(f, withPath))
}

func (h *Handler) send(c *client, v any) error {
	if err := c.sendJSON(v); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error", "component", "stream", "remote_ip", c.ip, "error", err)
		return err
	}
	return nil
}

func (h *Handler) metadata() metadataMessage {
	meta := metadataMessage{Type: "metadata"}
	if h.store == nil {
		return meta
	}
	if cat := h.store.Get(); cat != nil {
		meta.TLEFetchedAt = cat.FetchedAt.UTC().Format(time.RFC3339)
		meta.TLEAge = int(time.Since(cat.FetchedAt).Seconds())
		meta.Satellites = cat.Len()
	}
	return meta
}

// buildFrameMessage wraps a frame for the wire. Without paths, a shallow copy
// with the path fields cleared is sent; the published frame is never mutated.
func buildFrameMessage(f *tracking.Frame, withPath bool) frameMessage {
	if !withPath {
		cp := *f
		cp.Path.Points = nil
		cp.Path.Arrow = nil
		cp.Planned = nil
		f = &cp
	}
	return frameMessage{Type: "frame", Frame: f}
}

// SSE message payload types.

type metadataMessage struct {
	Type         string `json:"type"`
	TLEFetchedAt string `json:"tle_fetched_at,omitempty"`
	TLEAge       int    `json:"tle_age_seconds,omitempty"`
	Satellites   int    `json:"satellites,omitempty"`
}

type frameMessage struct {
	Type  string          `json:"type"`
	Frame *tracking.Frame `json:"frame"`
}

type idleMessage struct {
	Type string `json:"type"`
}
