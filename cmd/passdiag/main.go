// Command passdiag finds the next pass of one satellite over a station and
// prints the pointing analysis the tracking service would show for it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/pass"
	"github.com/ccdanpian/sat-yuntai/internal/passes"
	"github.com/ccdanpian/sat-yuntai/internal/polar"
	"github.com/ccdanpian/sat-yuntai/internal/propagation"
	"github.com/ccdanpian/sat-yuntai/internal/tle"
	"github.com/ccdanpian/sat-yuntai/internal/transform"
)

type options struct {
	tleFile    string
	norad      int
	name       string
	line1      string
	line2      string
	lat        float64
	lon        float64
	altKm      float64
	start      string
	horizon    time.Duration
	accept     float64
	convention string
	asJSON     bool
}

func main() {
	var o options
	flag.StringVar(&o.tleFile, "tle", "", "TLE file to pick the satellite from (with -norad or -name)")
	flag.IntVar(&o.norad, "norad", 0, "NORAD catalog number")
	flag.StringVar(&o.name, "name", "", "satellite name")
	flag.StringVar(&o.line1, "line1", "", "TLE line 1 (instead of -tle)")
	flag.StringVar(&o.line2, "line2", "", "TLE line 2 (instead of -tle)")
	flag.Float64Var(&o.lat, "lat", 39.9042, "station latitude, degrees")
	flag.Float64Var(&o.lon, "lon", 116.4074, "station longitude, degrees")
	flag.Float64Var(&o.altKm, "alt", 0.05, "station altitude, km")
	flag.StringVar(&o.start, "start", "", "search start, RFC 3339 (default now)")
	flag.DurationVar(&o.horizon, "horizon", 24*time.Hour, "search horizon")
	flag.Float64Var(&o.accept, "accept", 30, "minimum peak elevation, degrees")
	flag.StringVar(&o.convention, "convention", "auto", "mount convention: north, south or auto")
	flag.BoolVar(&o.asJSON, "json", false, "print the result as JSON")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, o, logger); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

type report struct {
	Satellite  tle.Element        `json:"satellite"`
	Trajectory *passes.Trajectory `json:"trajectory"`
	Arc        *pass.Arc          `json:"arc"`
	Analysis   *pass.Analysis     `json:"analysis,omitempty"`
	RiseAz     float64            `json:"rise_reported_azimuth"`
	SetAz      float64            `json:"set_reported_azimuth"`
	Path       polar.Path         `json:"path"`
}

func run(ctx context.Context, o options, logger *slog.Logger) error {
	e, err := loadElement(o, logger)
	if err != nil {
		return err
	}
	obs, err := transform.NewObserver(o.lat, o.lon, o.altKm)
	if err != nil {
		return err
	}
	convention, err := polar.ParseConvention(o.convention)
	if err != nil {
		return err
	}
	start := time.Now().UTC()
	if o.start != "" {
		if start, err = time.Parse(time.RFC3339, o.start); err != nil {
			return fmt.Errorf("invalid -start: %w", err)
		}
	}

	m, err := propagation.NewSGP4(e)
	if err != nil {
		return err
	}
	cfg := passes.DefaultSearchConfig()
	cfg.Horizon = o.horizon
	cfg.AcceptancePeakDegree = o.accept

	traj, err := passes.Search(ctx, m, obs, start, cfg)
	if errors.Is(err, passes.ErrNoPass) {
		return fmt.Errorf("%s: no pass above %.0f° within %s of %s", e.Name, o.accept, o.horizon, start.Format(time.RFC3339))
	}
	if err != nil {
		return err
	}

	analyzer, err := pass.NewAnalyzer(pass.DefaultRules())
	if err != nil {
		return err
	}
	r := report{Satellite: e, Trajectory: traj, Arc: pass.FirstPass(traj.Points)}
	if a, err := analyzer.Analyze(r.Arc); err == nil {
		r.Analysis = &a
	} else if !errors.Is(err, pass.ErrEmptyPass) {
		return err
	}
	if r.Path, err = polar.ProjectPath(traj.Points, polar.ViewportFor(400, 400, 30)); err != nil {
		return err
	}
	if n := len(traj.Points); n > 0 {
		r.RiseAz, _ = polar.ToReported(traj.Points[0].AzimuthDeg, convention)
		r.SetAz, _ = polar.ToReported(traj.Points[n-1].AzimuthDeg, convention)
	}

	if o.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	printReport(r, convention)
	return nil
}

func loadElement(o options, logger *slog.Logger) (tle.Element, error) {
	if o.line1 != "" || o.line2 != "" {
		return tle.ParseElement(o.name, o.line1, o.line2)
	}
	if o.tleFile == "" {
		return tle.Element{}, errors.New("either -tle or -line1/-line2 is required")
	}
	if o.norad == 0 && o.name == "" {
		return tle.Element{}, errors.New("-tle needs -norad or -name")
	}
	f, err := os.Open(o.tleFile)
	if err != nil {
		return tle.Element{}, err
	}
	defer f.Close()

	elements, err := tle.Parse(f, logger)
	if err != nil {
		return tle.Element{}, err
	}
	cat := tle.NewCatalog(o.tleFile, time.Now(), elements)
	if o.norad != 0 {
		return cat.ByID(o.norad)
	}
	return cat.ByName(o.name)
}

func printReport(r report, c polar.Convention) {
	t := r.Trajectory
	fmt.Printf("%s (NORAD %d) epoch %s\n", r.Satellite.Name, r.Satellite.NORADID, r.Satellite.Epoch.Format(time.RFC3339))
	fmt.Printf("Pass: %s → %s (%d points, %d candidates)\n",
		t.StartTime.Format(time.RFC3339), t.EndTime.Format(time.RFC3339), len(t.Points), t.Candidates)
	fmt.Printf("Max elevation: %.2f°\n", t.MaxElevation)
	fmt.Printf("Reported azimuth (%s): rise %.1f°, set %.1f°\n", c, r.RiseAz, r.SetAz)

	if r.Analysis == nil {
		fmt.Println("No visible arc.")
		return
	}
	a := r.Analysis
	fmt.Printf("Peak: az %.1f° el %.1f° at %s\n", a.Peak.AzimuthDeg, a.Peak.ElevationDeg, a.Peak.Time().Format(time.RFC3339))
	fmt.Printf("Track: %s\n", a.Description)
	fmt.Printf("Mount: face %s (%s)\n", strings.ToUpper(a.Suggestion.Sector.String()), a.Suggestion.Rule)
	fmt.Printf("  %s\n", a.Suggestion.Rationale)
}
