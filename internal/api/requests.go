package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/httputil"
	"github.com/ccdanpian/sat-yuntai/internal/passes"
	"github.com/ccdanpian/sat-yuntai/internal/scene"
	"github.com/ccdanpian/sat-yuntai/internal/tle"
	"github.com/ccdanpian/sat-yuntai/internal/transform"
)

// satelliteInput names a satellite either by its two lines or by a catalog
// key (NORAD ID, then name).
type satelliteInput struct {
	Name    string `json:"name"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2"`
	NORADID int    `json:"noradId"`
}

// Station altitude is in kilometres above the ellipsoid.
type stationInput = scene.GeoPoint

// Layouts accepted for start times without an offset.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	return invalid(httputil.DecodeJSON(w, r, v))
}

// resolveElement returns the element set for in. Explicit lines take
// precedence over the catalog.
func (s *Server) resolveElement(in satelliteInput) (tle.Element, error) {
	if in.Line1 != "" || in.Line2 != "" {
		e, err := tle.ParseElement(strings.TrimSpace(in.Name), strings.TrimSpace(in.Line1), strings.TrimSpace(in.Line2))
		if err != nil {
			return tle.Element{}, invalid(fmt.Errorf("satellite TLE: %w", err))
		}
		if in.NORADID != 0 && in.NORADID != e.NORADID {
			return tle.Element{}, invalidf("noradId %d does not match TLE catalog number %d", in.NORADID, e.NORADID)
		}
		return e, nil
	}
	if in.NORADID == 0 && strings.TrimSpace(in.Name) == "" {
		return tle.Element{}, invalidf("satellite requires line1/line2, noradId or name")
	}
	if s.deps.Store == nil {
		return tle.Element{}, fmt.Errorf("looking up satellite: %w", tle.ErrNotFound)
	}
	e, err := s.deps.Store.Lookup(in.NORADID, in.Name)
	if err != nil {
		return tle.Element{}, fmt.Errorf("looking up satellite: %w", err)
	}
	return e, nil
}

func observerFor(g stationInput) (transform.Observer, error) {
	if err := g.Validate(); err != nil {
		return transform.Observer{}, invalid(fmt.Errorf("groundStation: %w", err))
	}
	obs, err := transform.NewObserver(g.LatDeg, g.LonDeg, g.AltKm)
	if err != nil {
		return transform.Observer{}, invalid(fmt.Errorf("groundStation: %w", err))
	}
	return obs, nil
}

// parseTime accepts RFC 3339 or a local timestamp interpreted in loc. An empty
// string yields def.
func parseTime(v string, loc *time.Location, def time.Time) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, invalidf("invalid time %q: want RFC 3339 or YYYY-MM-DDTHH:MM:SS", v)
}

// trajectory runs the pass search through the cache. The search starts at
// the cache-rounded start so hits and misses agree.
func (s *Server) trajectory(ctx context.Context, e tle.Element, obs transform.Observer, start time.Time) (*passes.Trajectory, bool, time.Time, error) {
	m, err := s.deps.Propagator.Model(e)
	if err != nil {
		return nil, false, time.Time{}, invalid(err)
	}
	key := s.deps.Trajectories.KeyFor(e, obs, start)
	traj, cached, err := s.deps.Trajectories.GetOrCompute(ctx, key, func(ctx context.Context) (*passes.Trajectory, error) {
		return passes.Search(ctx, m, obs, key.Start, s.deps.Search)
	})
	if err != nil {
		if errors.Is(err, passes.ErrNoPass) {
			return nil, false, key.Start, fmt.Errorf("%s: %w within %s of %s", e.Name, err,
				s.deps.Search.Horizon, key.Start.Format(time.RFC3339))
		}
		return nil, false, key.Start, err
	}
	return traj, cached, key.Start, nil
}
