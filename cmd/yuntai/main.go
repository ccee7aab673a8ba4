package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/api"
	"github.com/ccdanpian/sat-yuntai/internal/cache"
	"github.com/ccdanpian/sat-yuntai/internal/gimbal"
	"github.com/ccdanpian/sat-yuntai/internal/health"
	"github.com/ccdanpian/sat-yuntai/internal/observability"
	"github.com/ccdanpian/sat-yuntai/internal/pass"
	"github.com/ccdanpian/sat-yuntai/internal/passlog"
	"github.com/ccdanpian/sat-yuntai/internal/propagation"
	"github.com/ccdanpian/sat-yuntai/internal/stream"
	"github.com/ccdanpian/sat-yuntai/internal/tle"
	"github.com/ccdanpian/sat-yuntai/internal/tracking"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: loadLogLevel(),
	}))

	addr := os.Getenv("YUNTAI_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, loadTracingConfig(logger), logger)
	if err != nil {
		logger.Error("invalid tracing configuration", "error", err)
		os.Exit(1)
	}

	tleCfg := loadTLEConfig(logger)
	store := tle.NewStore()
	var fetcher *tle.Fetcher
	if tleCfg.EnableFetch {
		fetcher = tle.NewFetcher(tleCfg.SourceURL, logger, tleCfg.ExtraSourceURLs...)
	}
	refresher := tle.NewRefresher(store, fetcher, tle.NewCache(tleCfg.CacheDir, tleCfg.MaxFiles),
		tleCfg.MaxAge, tleCfg.EnableFetch, logger)
	refresher.SetSelector(tleCfg.Selector)

	// Attempt to load cached TLE data on startup.
	if err := refresher.LoadCache(); err != nil {
		logger.Info("no TLE cache found, starting without TLE data", "error", err)
	}

	prop := propagation.NewPropagator(store, loadPropConfig(logger), logger)
	trajectories := cache.New(loadCacheConfig(logger), store, logger)

	rules, err := loadPassRules(logger)
	if err != nil {
		logger.Error("invalid pass rules", "error", err)
		os.Exit(1)
	}
	analyzer, err := pass.NewAnalyzer(rules)
	if err != nil {
		logger.Error("invalid pass rules", "error", err)
		os.Exit(1)
	}

	checker := health.NewChecker(2 * time.Second)
	checker.Add("tle_catalog", func(context.Context) error {
		if store.Get() == nil && refresher.FetchEnabled() {
			return propagation.ErrNoCatalog
		}
		return nil
	})

	var passLog *passlog.Store
	var recorder tracking.Recorder
	if path := loadPassLogPath(logger); path != "" {
		passLog, err = passlog.Open(path, logger)
		if err != nil {
			logger.Error("failed to open pass log", "path", path, "error", err)
			os.Exit(1)
		}
		defer passLog.Close()
		recorder = passLog
		checker.Add("passlog", passLog.Ping)
	}

	driver := gimbal.NewDriver(openGimbal(logger), logger)
	defer driver.Close()

	trackCfg := loadTrackingConfig(logger)
	tracker := tracking.NewTracker(driver, analyzer, recorder, trackCfg, logger)

	streamCfg := loadStreamConfig(logger)
	streamHandler := stream.NewHandler(tracker, store, streamCfg, logger)

	srv := api.NewServer(addr, logger, authCfg, api.Deps{
		Store:            store,
		Refresher:        refresher,
		Propagator:       prop,
		Trajectories:     trajectories,
		Tracker:          tracker,
		Analyzer:         analyzer,
		PassLog:          passLog,
		Stream:           streamHandler,
		Health:           checker,
		Search:           loadSearchConfig(logger),
		BeamHalfAngleDeg: trackCfg.BeamHalfAngleDeg,
		Location:         loadLocalZone(logger),
		TrustProxy:       streamCfg.TrustProxy,
		Constellation:    tleCfg.Constellation,
	})

	// Start cache background worker.
	go trajectories.Start(ctx)
	go refresher.Run(ctx, tleCfg.CheckInterval)

	go func() {
		logger.Info("starting server",
			"addr", addr,
			"auth_enabled", authCfg.Enabled,
			"tle_fetch_enabled", tleCfg.EnableFetch,
			"gimbal", driver.Status().Controller,
			"passlog_enabled", passLog != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := tracker.Stop(); err != nil && !errors.Is(err, tracking.ErrNoSession) {
		logger.Warn("tracking stop error", "error", err)
	}
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	logger.Info("server stopped")
}

// openGimbal opens the serial pan-tilt head when a port is configured. A
// port that cannot be opened leaves the service in simulation mode.
func openGimbal(logger *slog.Logger) gimbal.Controller {
	opts, ok := loadGimbalConfig(logger)
	if !ok {
		logger.Info("no gimbal port configured, using simulated gimbal", "component", "gimbal")
		return gimbal.NewSimulated(logger)
	}
	ctrl, err := gimbal.OpenSerial(opts)
	if err != nil {
		logger.Warn("gimbal unavailable, falling back to simulation",
			"component", "gimbal",
			"port", opts.Path,
			"error", err,
		)
		return gimbal.NewSimulated(logger)
	}
	logger.Info("gimbal connected",
		"component", "gimbal",
		"port", opts.Path,
		"baud_rate", opts.BaudRate,
	)
	return ctrl
}
