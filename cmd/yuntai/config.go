package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/auth"
	"github.com/ccdanpian/sat-yuntai/internal/cache"
	"github.com/ccdanpian/sat-yuntai/internal/gimbal"
	"github.com/ccdanpian/sat-yuntai/internal/observability"
	"github.com/ccdanpian/sat-yuntai/internal/pass"
	"github.com/ccdanpian/sat-yuntai/internal/passes"
	"github.com/ccdanpian/sat-yuntai/internal/propagation"
	"github.com/ccdanpian/sat-yuntai/internal/stream"
	"github.com/ccdanpian/sat-yuntai/internal/tle"
	"github.com/ccdanpian/sat-yuntai/internal/tracking"
)

// TLEConfig holds TLE source configuration loaded from environment variables.
type TLEConfig struct {
	EnableFetch     bool
	SourceURL       string
	ExtraSourceURLs []string
	CacheDir        string
	MaxFiles        int
	MaxAge          time.Duration
	CheckInterval   time.Duration
	Constellation   string
	Selector        tle.Selector
}

func loadLogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv("YUNTAI_LOG_LEVEL"))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// envInt reads a positive integer, keeping def on absence or error.
func envInt(logger *slog.Logger, key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", def)
		return def
	}
	return n
}

// envSeconds reads a positive whole number of seconds.
func envSeconds(logger *slog.Logger, key string, def time.Duration) time.Duration {
	return time.Duration(envInt(logger, key, int(def/time.Second))) * time.Second
}

// envFloat reads a float in [lo, hi].
func envFloat(logger *slog.Logger, key string, def, lo, hi float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < lo || f > hi {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", def)
		return def
	}
	return f
}

func envBool(logger *slog.Logger, key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", def)
		return def
	}
	return b
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("YUNTAI_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("YUNTAI_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("YUNTAI_AUTH_TOKEN")
		cfg.PublicReads = envBool(logger, "YUNTAI_AUTH_PUBLIC_READS", false)
		if err := cfg.Validate(); err != nil {
			return cfg, fmt.Errorf("YUNTAI_AUTH_TOKEN: %w", err)
		}
		logger.Info("auth enabled", "public_reads", cfg.PublicReads)
	}

	return cfg, nil
}

func loadTLEConfig(logger *slog.Logger) TLEConfig {
	cfg := TLEConfig{
		EnableFetch: true,
		CacheDir:    "/tmp/yuntai/tle",
		MaxFiles:    5,
		MaxAge:      24 * time.Hour,
		ExtraSourceURLs: []string{
			// ISS (NORAD 25544) is not always in the active group mirror.
			"https://celestrak.org/NORAD/elements/gp.php?CATNR=25544&FORMAT=tle",
		},
		CheckInterval: 10 * time.Minute,
	}

	cfg.EnableFetch = envBool(logger, "YUNTAI_ENABLE_TLE_FETCH", cfg.EnableFetch)

	// A constellation preset picks the source group and its selector; the
	// explicit variables below override either part.
	if v := os.Getenv("YUNTAI_TLE_CONSTELLATION"); v != "" {
		if c, ok := tle.LookupConstellation(v); ok {
			cfg.Constellation = c.Name
			cfg.SourceURL = c.SourceURL
			cfg.Selector = c.Selector
		} else {
			logger.Warn("unknown YUNTAI_TLE_CONSTELLATION, using default source",
				"value", v,
				"known", tle.ConstellationNames(),
			)
		}
	}

	if v := os.Getenv("YUNTAI_TLE_SOURCE_URL"); v != "" {
		cfg.SourceURL = v
	}

	if v, ok := os.LookupEnv("YUNTAI_TLE_NAME_TAG"); ok {
		cfg.Selector.Tag = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv("YUNTAI_TLE_NAMES"); ok {
		cfg.Selector.Names = nil
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				cfg.Selector.Names = append(cfg.Selector.Names, n)
			}
		}
	}

	if v, ok := os.LookupEnv("YUNTAI_TLE_EXTRA_URLS"); ok {
		var urls []string
		for _, u := range strings.Split(v, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				urls = append(urls, u)
			}
		}
		cfg.ExtraSourceURLs = urls
	}

	if v := os.Getenv("YUNTAI_TLE_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}

	cfg.MaxFiles = envInt(logger, "YUNTAI_TLE_MAX_FILES", cfg.MaxFiles)
	cfg.MaxAge = envSeconds(logger, "YUNTAI_TLE_MAX_AGE", cfg.MaxAge)
	cfg.CheckInterval = envSeconds(logger, "YUNTAI_TLE_CHECK_INTERVAL", cfg.CheckInterval)

	logger.Info("TLE config",
		"fetch_enabled", cfg.EnableFetch,
		"source_url", cfg.SourceURL,
		"extra_urls", cfg.ExtraSourceURLs,
		"constellation", cfg.Constellation,
		"selector", cfg.Selector.String(),
		"cache_dir", cfg.CacheDir,
		"max_age_seconds", cfg.MaxAge.Seconds(),
	)

	return cfg
}

func loadPropConfig(logger *slog.Logger) propagation.Config {
	cfg := propagation.Config{
		Workers: envInt(logger, "YUNTAI_PROP_WORKERS", runtime.NumCPU()),
		Step:    envSeconds(logger, "YUNTAI_PROP_STEP", 10*time.Second),
	}

	logger.Info("propagation config",
		"workers", cfg.Workers,
		"step_seconds", cfg.Step.Seconds(),
	)

	return cfg
}

func loadCacheConfig(logger *slog.Logger) cache.Config {
	cfg := cache.Config{
		TTL:        envSeconds(logger, "YUNTAI_CACHE_TTL", 10*time.Minute),
		Sweep:      envSeconds(logger, "YUNTAI_CACHE_SWEEP", 30*time.Second),
		MaxEntries: envInt(logger, "YUNTAI_CACHE_MAX_ENTRIES", 256),
	}

	logger.Info("cache config",
		"ttl_seconds", cfg.TTL.Seconds(),
		"sweep_seconds", cfg.Sweep.Seconds(),
		"max_entries", cfg.MaxEntries,
	)

	return cfg
}

func loadSearchConfig(logger *slog.Logger) passes.SearchConfig {
	cfg := passes.DefaultSearchConfig()
	cfg.Horizon = time.Duration(envInt(logger, "YUNTAI_SEARCH_HORIZON_HOURS", 24)) * time.Hour
	cfg.AcceptancePeakDegree = envFloat(logger, "YUNTAI_SEARCH_ACCEPT_ELEVATION", cfg.AcceptancePeakDegree, 0, 90)
	cfg.VisibleElevation = envFloat(logger, "YUNTAI_SEARCH_VISIBLE_ELEVATION", cfg.VisibleElevation, 0, 90)

	logger.Info("trajectory search config",
		"horizon_hours", cfg.Horizon.Hours(),
		"accept_elevation", cfg.AcceptancePeakDegree,
		"visible_elevation", cfg.VisibleElevation,
	)

	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: envInt(logger, "YUNTAI_STREAM_MAX_CONCURRENT", 10),
		MaxTotal:           envInt(logger, "YUNTAI_STREAM_MAX_TOTAL", 100),
		KeepaliveInterval:  envSeconds(logger, "YUNTAI_STREAM_KEEPALIVE_INTERVAL", 30*time.Second),
		TrustProxy:         envBool(logger, "YUNTAI_TRUST_PROXY", false),
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"max_total", cfg.MaxTotal,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)

	return cfg
}

func loadTrackingConfig(logger *slog.Logger) tracking.Config {
	cfg := tracking.DefaultConfig()
	cfg.Interval = time.Duration(envInt(logger, "YUNTAI_TRACK_INTERVAL_MS", int(cfg.Interval/time.Millisecond))) * time.Millisecond
	cfg.BeamHalfAngleDeg = envFloat(logger, "YUNTAI_BEAM_HALF_ANGLE", cfg.BeamHalfAngleDeg, 0.1, 89)
	cfg.DownlinkHz = envFloat(logger, "YUNTAI_DOWNLINK_HZ", 0, 0, 300e9)

	logger.Info("tracking config",
		"interval_ms", cfg.Interval.Milliseconds(),
		"beam_half_angle_deg", cfg.BeamHalfAngleDeg,
		"downlink_hz", cfg.DownlinkHz,
	)

	return cfg
}

// loadPassRules reads an optional JSON rules file and the oblique fallback.
// A broken rules file is fatal.
func loadPassRules(logger *slog.Logger) (pass.Rules, error) {
	rules := pass.DefaultRules()

	if path := os.Getenv("YUNTAI_PASS_RULES_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return rules, fmt.Errorf("reading YUNTAI_PASS_RULES_FILE: %w", err)
		}
		if err := json.Unmarshal(data, &rules); err != nil {
			return rules, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if v := os.Getenv("YUNTAI_OBLIQUE_FALLBACK"); v != "" {
		rules.ObliqueFallback = strings.ToLower(v)
	}
	if err := rules.Validate(); err != nil {
		return rules, err
	}

	logger.Info("pass rules",
		"cross_north", rules.CrossNorth.String(),
		"cross_south", rules.CrossSouth.String(),
		"near_north", rules.NearNorth.String(),
		"near_south", rules.NearSouth.String(),
		"oblique_fallback", rules.ObliqueFallback,
	)
	return rules, nil
}

// loadGimbalConfig reports false when no serial port is configured.
func loadGimbalConfig(logger *slog.Logger) (gimbal.PortOptions, bool) {
	opts := gimbal.PortOptions{Path: os.Getenv("YUNTAI_GIMBAL_PORT")}
	if opts.Path == "" {
		return opts, false
	}
	opts.BaudRate = envInt(logger, "YUNTAI_GIMBAL_BAUD", 115200)
	opts.DataBits = envInt(logger, "YUNTAI_GIMBAL_DATA_BITS", 8)
	opts.StopBits = envInt(logger, "YUNTAI_GIMBAL_STOP_BITS", 1)
	opts.Parity = os.Getenv("YUNTAI_GIMBAL_PARITY")
	return opts, true
}

// loadPassLogPath returns "" when the pass log is disabled.
func loadPassLogPath(logger *slog.Logger) string {
	path, ok := os.LookupEnv("YUNTAI_PASSLOG_PATH")
	if !ok {
		path = "/tmp/yuntai/passlog.db"
	}
	if path == "" || strings.EqualFold(path, "off") {
		logger.Info("pass log disabled")
		return ""
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Warn("could not create pass log directory", "path", path, "error", err)
	}
	return path
}

// loadLocalZone returns the zone for start times sent without an offset
// (default UTC+8).
func loadLocalZone(logger *slog.Logger) *time.Location {
	hours := envFloat(logger, "YUNTAI_LOCAL_UTC_OFFSET", 8, -12, 14)
	secs := int(hours * 3600)
	name := fmt.Sprintf("UTC%+g", hours)
	return time.FixedZone(name, secs)
}

func loadTracingConfig(logger *slog.Logger) observability.TracingConfig {
	cfg := observability.TracingConfig{
		Enabled:     envBool(logger, "YUNTAI_TRACING_ENABLED", false),
		ServiceName: "yuntai",
		Exporter:    "stdout",
		Endpoint:    os.Getenv("YUNTAI_OTLP_ENDPOINT"),
		SampleRatio: envFloat(logger, "YUNTAI_TRACING_SAMPLE_RATIO", 1, 0, 1),
	}
	if v := os.Getenv("YUNTAI_TRACING_EXPORTER"); v != "" {
		cfg.Exporter = strings.ToLower(v)
	}
	return cfg
}
