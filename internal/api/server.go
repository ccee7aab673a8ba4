// Package api serves the tracking, trajectory and geometry endpoints.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/auth"
	"github.com/ccdanpian/sat-yuntai/internal/cache"
	"github.com/ccdanpian/sat-yuntai/internal/health"
	"github.com/ccdanpian/sat-yuntai/internal/httputil"
	"github.com/ccdanpian/sat-yuntai/internal/metrics"
	"github.com/ccdanpian/sat-yuntai/internal/pass"
	"github.com/ccdanpian/sat-yuntai/internal/passes"
	"github.com/ccdanpian/sat-yuntai/internal/passlog"
	"github.com/ccdanpian/sat-yuntai/internal/propagation"
	"github.com/ccdanpian/sat-yuntai/internal/stream"
	"github.com/ccdanpian/sat-yuntai/internal/tle"
	"github.com/ccdanpian/sat-yuntai/internal/tracking"
)

// Deps are the services the handlers call into. PassLog may be nil when the
// pass log is disabled.
type Deps struct {
	Store        *tle.Store
	Refresher    *tle.Refresher
	Propagator   *propagation.Propagator
	Trajectories *cache.TrajectoryCache
	Tracker      *tracking.Tracker
	Analyzer     *pass.Analyzer
	PassLog      *passlog.Store
	Stream       *stream.Handler
	Health       *health.Checker

	Search           passes.SearchConfig
	BeamHalfAngleDeg float64
	// Location interprets start times sent without a zone offset.
	Location   *time.Location
	TrustProxy bool
	// Constellation names the configured TLE preset, if any.
	Constellation string
}

func (d Deps) withDefaults() Deps {
	if d.Location == nil {
		d.Location = time.FixedZone("UTC+8", 8*60*60)
	}
	if d.BeamHalfAngleDeg <= 0 {
		d.BeamHalfAngleDeg = 5
	}
	if d.Search == (passes.SearchConfig{}) {
		d.Search = passes.DefaultSearchConfig()
	}
	if d.Health == nil {
		d.Health = health.NewChecker(2 * time.Second)
	}
	return d
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	s := &Server{deps: deps.withDefaults(), logger: logger}

	mux := http.NewServeMux()
	s.routes(mux)

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger, deps.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", s.deps.Health.Readyz)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/tle/metadata", s.handleTLEMetadata)
	mux.HandleFunc("POST /api/v1/tle/refresh", s.handleTLERefresh)
	mux.HandleFunc("GET /api/v1/satellites", s.handleSatellites)
	mux.HandleFunc("GET /api/v1/satellites/{norad_id}", s.handleSatellite)
	mux.HandleFunc("GET /api/v1/constellations", s.handleConstellations)

	mux.HandleFunc("POST /api/v1/tracking/start", s.handleTrackingStart)
	mux.HandleFunc("POST /api/v1/tracking/stop", s.handleTrackingStop)
	mux.HandleFunc("GET /api/v1/tracking/position", s.handleTrackingPosition)
	mux.HandleFunc("GET /api/v1/tracking/frame", s.handleTrackingFrame)
	mux.HandleFunc("GET /api/v1/gimbal/status", s.handleGimbalStatus)

	mux.HandleFunc("POST /api/v1/position", s.handlePosition)
	mux.HandleFunc("POST /api/v1/trajectory", s.handleTrajectory)
	mux.HandleFunc("GET /api/v1/cache/stats", s.handleCacheStats)

	mux.HandleFunc("POST /api/v1/passes/analyze", s.handlePassAnalyze)
	mux.HandleFunc("POST /api/v1/passes/predict", s.handlePassPredict)
	mux.HandleFunc("GET /api/v1/passes/history", s.handlePassHistory)

	mux.HandleFunc("POST /api/v1/polar/project", s.handlePolarProject)
	mux.HandleFunc("POST /api/v1/scene/beam", s.handleSceneBeam)
	mux.HandleFunc("POST /api/v1/scene/subpoints", s.handleSceneSubPoints)
	mux.HandleFunc("POST /api/v1/scene/search", s.handleSubPointSearch)
	mux.HandleFunc("POST /api/v1/scene/find", s.handleSubPointFind)

	if s.deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/frames", s.deps.Stream.HandleFrames)
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the full middleware chain, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) handleGimbalStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.deps.Tracker.Gimbal().Status())
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.deps.Trajectories.Stats())
}

// healthPath reports whether path is a liveness or readiness check that should not log at INFO.
func healthPath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if healthPath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
