package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yuntai_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yuntai_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	tleFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yuntai_tle_fetch_total",
			Help: "TLE catalog refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)

	tleSatellites = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "yuntai_tle_satellites",
		Help: "Satellites in the loaded TLE catalog.",
	})

	propagationDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "yuntai_propagation_batch_duration_seconds",
		Help:    "Duration of worker-pool propagation batches.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	})

	propagationSatellitesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yuntai_propagation_satellites_total",
			Help: "Satellites propagated in batches by outcome.",
		},
		[]string{"outcome"},
	)

	trajectorySearchSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yuntai_trajectory_search_duration_seconds",
			Help:    "Duration of trajectory searches by outcome.",
			Buckets: prometheus.ExponentialBuckets(0.005, 3, 8),
		},
		[]string{"outcome"},
	)

	trajectoryCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yuntai_trajectory_cache_requests_total",
			Help: "Trajectory cache lookups by result.",
		},
		[]string{"result"},
	)

	trajectoryCacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "yuntai_trajectory_cache_entries",
		Help: "Trajectories currently held in the cache.",
	})

	trackingCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yuntai_tracking_cycles_total",
			Help: "Tracking cycles by outcome.",
		},
		[]string{"outcome"},
	)

	trackingActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "yuntai_tracking_active",
		Help: "1 while a tracking session is running.",
	})

	gimbalCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yuntai_gimbal_commands_total",
			Help: "Gimbal pointing commands by controller and outcome.",
		},
		[]string{"controller", "outcome"},
	)

	passesRecordedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "yuntai_passes_recorded_total",
		Help: "Pass analyses written to the pass log.",
	})

	streamConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "yuntai_stream_connections_total",
		Help: "SSE connections accepted.",
	})

	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "yuntai_streams_active",
		Help: "SSE connections currently open.",
	})

	streamMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "yuntai_stream_messages_total",
		Help: "SSE events written.",
	})

	streamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "yuntai_stream_bytes_total",
		Help: "SSE payload bytes written.",
	})

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yuntai_stream_errors_total",
			Help: "SSE failures by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		tleFetchTotal,
		tleSatellites,
		propagationDurationSeconds,
		propagationSatellitesTotal,
		trajectorySearchSeconds,
		trajectoryCacheTotal,
		trajectoryCacheEntries,
		trackingCyclesTotal,
		trackingActive,
		gimbalCommandsTotal,
		passesRecordedTotal,
		streamConnectionsTotal,
		streamsActive,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// knownRoutes are exact paths kept verbatim as labels.
var knownRoutes = map[string]bool{
	"/":                         true,
	"/healthz":                  true,
	"/readyz":                   true,
	"/metrics":                  true,
	"/api/v1/tle/metadata":      true,
	"/api/v1/tle/refresh":       true,
	"/api/v1/tracking/start":    true,
	"/api/v1/tracking/stop":     true,
	"/api/v1/tracking/position": true,
	"/api/v1/tracking/frame":    true,
	"/api/v1/trajectory":        true,
	"/api/v1/position":          true,
	"/api/v1/passes/analyze":    true,
	"/api/v1/passes/predict":    true,
	"/api/v1/passes/history":    true,
	"/api/v1/polar/project":     true,
	"/api/v1/scene/beam":        true,
	"/api/v1/scene/subpoints":   true,
	"/api/v1/scene/search":      true,
	"/api/v1/scene/find":        true,
	"/api/v1/satellites":        true,
	"/api/v1/constellations":    true,
	"/api/v1/gimbal/status":     true,
	"/api/v1/cache/stats":       true,
	"/api/v1/stream/frames":     true,
}

const satellitePrefix = "/api/v1/satellites/"

// normalizeRoute maps a request path to a bounded label set so scanners and
// per-satellite paths cannot blow up series cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if id, ok := strings.CutPrefix(path, satellitePrefix); ok && id != "" && !strings.Contains(id, "/") {
		return satellitePrefix + "{norad_id}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE handlers behind the middleware push events.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}

// RecordTLEFetch counts a catalog refresh and, on success, its size.
func RecordTLEFetch(outcome string, satellites int) {
	tleFetchTotal.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		tleSatellites.Set(float64(satellites))
	}
}

// RecordPropagation records one worker-pool batch.
func RecordPropagation(d time.Duration, success, errors int) {
	propagationDurationSeconds.Observe(d.Seconds())
	propagationSatellitesTotal.WithLabelValues("success").Add(float64(success))
	propagationSatellitesTotal.WithLabelValues("error").Add(float64(errors))
}

// ObserveTrajectorySearch records a search by outcome (found, no_pass, error).
func ObserveTrajectorySearch(d time.Duration, outcome string) {
	trajectorySearchSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

// IncCacheHits counts a trajectory cache hit.
func IncCacheHits() { trajectoryCacheTotal.WithLabelValues("hit").Inc() }

// IncCacheMisses counts a trajectory cache miss.
func IncCacheMisses() { trajectoryCacheTotal.WithLabelValues("miss").Inc() }

// SetCacheEntries sets the trajectory cache size.
func SetCacheEntries(n int) { trajectoryCacheEntries.Set(float64(n)) }

// IncTrackingCycles counts a tracking cycle by outcome.
func IncTrackingCycles(outcome string) { trackingCyclesTotal.WithLabelValues(outcome).Inc() }

// SetTrackingActive flags whether a session is running.
func SetTrackingActive(active bool) {
	if active {
		trackingActive.Set(1)
		return
	}
	trackingActive.Set(0)
}

// IncGimbalCommands counts a gimbal command.
func IncGimbalCommands(controller, outcome string) {
	gimbalCommandsTotal.WithLabelValues(controller, outcome).Inc()
}

// IncPassesRecorded counts a pass written to the log.
func IncPassesRecorded() { passesRecordedTotal.Inc() }

// IncStreamConnections counts an accepted SSE connection.
func IncStreamConnections() { streamConnectionsTotal.Inc() }

// IncStreamsActive and DecStreamsActive track open SSE connections.
func IncStreamsActive() { streamsActive.Inc() }

func DecStreamsActive() { streamsActive.Dec() }

// IncStreamMessages counts an SSE event.
func IncStreamMessages() { streamMessagesTotal.Inc() }

// AddStreamBytes counts SSE payload bytes.
func AddStreamBytes(n int) { streamBytesTotal.Add(float64(n)) }

// IncStreamErrors counts an SSE failure by reason.
func IncStreamErrors(reason string) { streamErrorsTotal.WithLabelValues(reason).Inc() }
