package passes

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ccdanpian/sat-yuntai/internal/anglemath"
	"github.com/ccdanpian/sat-yuntai/internal/propagation"
	"github.com/ccdanpian/sat-yuntai/internal/transform"
)

// MaxSubPointSteps bounds the samples one satellite may be scanned at.
const MaxSubPointSteps = 100_000

// SubPointQuery describes a sub-point box search: every Interval from Start
// to End inclusive, a sample whose sub-point lies within LatErrorDeg and
// LonErrorDeg of the target is a hit.
type SubPointQuery struct {
	Start        time.Time
	End          time.Time
	Interval     time.Duration
	TargetLatDeg float64
	TargetLonDeg float64
	LatErrorDeg  float64
	LonErrorDeg  float64
	// FrequencyHz is the downlink carrier used for the Doppler shift; zero
	// leaves DopplerHz at zero.
	FrequencyHz float64
}

// Validate rejects empty windows, oversized scans and bad boxes.
func (q SubPointQuery) Validate() error {
	if q.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", q.Interval)
	}
	if q.End.Before(q.Start) {
		return fmt.Errorf("end %s is before start %s", q.End.Format(time.RFC3339), q.Start.Format(time.RFC3339))
	}
	if steps := q.End.Sub(q.Start)/q.Interval + 1; steps > MaxSubPointSteps {
		return fmt.Errorf("%d steps exceeds %d", steps, MaxSubPointSteps)
	}
	for _, v := range []float64{q.TargetLatDeg, q.TargetLonDeg, q.LatErrorDeg, q.LonErrorDeg, q.FrequencyHz} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %v", anglemath.ErrInvalidAngle, v)
		}
	}
	if q.TargetLatDeg < -90 || q.TargetLatDeg > 90 {
		return fmt.Errorf("target latitude %.4f out of range [-90, 90]", q.TargetLatDeg)
	}
	if q.LatErrorDeg < 0 || q.LonErrorDeg < 0 {
		return errors.New("latitude and longitude errors must not be negative")
	}
	if q.FrequencyHz < 0 {
		return errors.New("frequency must not be negative")
	}
	return nil
}

// SubPointHit is one sample that fell inside the search box, with the
// station-relative geometry at that instant.
type SubPointHit struct {
	Time          time.Time `json:"time"`
	NORADID       int       `json:"norad_id"`
	SatelliteName string    `json:"satellite_name"`
	LatDeg        float64   `json:"lat_sat"`
	LonDeg        float64   `json:"lon_sat"`
	AltKm         float64   `json:"alt_sat"`
	RangeKm       float64   `json:"distance"`
	// AzimuthDeg is the direction from the station to the satellite.
	AzimuthDeg   float64 `json:"direction_angle"`
	ElevationDeg float64 `json:"elevation"`
	RangeRateKmS float64 `json:"range_rate_km_s"`
	// RelativeVelocityMS is positive while the satellite approaches.
	RelativeVelocityMS float64 `json:"relative_velocity"`
	DopplerHz          float64 `json:"doppler_shift"`
}

func (q SubPointQuery) inBox(latDeg, lonDeg float64) bool {
	if math.Abs(latDeg-q.TargetLatDeg) > q.LatErrorDeg {
		return false
	}
	d, err := anglemath.CircularDiffDeg(lonDeg, q.TargetLonDeg)
	return err == nil && math.Abs(d) <= q.LonErrorDeg
}

// scan walks m over the query window and calls hit for every sample in the
// box until hit returns false. Propagation failures end the scan with an
// error.
func scan(ctx context.Context, m *propagation.SGP4, obs transform.Observer, q SubPointQuery, hit func(SubPointHit) bool) error {
	e := m.Element()
	for t := q.Start; !t.After(q.End); t = t.Add(q.Interval) {
		if err := ctx.Err(); err != nil {
			return err
		}
		sv, err := m.ECEF(t)
		if err != nil {
			return fmt.Errorf("NORAD %d at %s: %w", e.NORADID, t.Format(time.RFC3339), err)
		}
		g := transform.ECEFToGeodetic(sv.Pos)
		if !q.inBox(g.LatDeg, g.LonDeg) {
			continue
		}
		la := obs.Look(sv)
		h := SubPointHit{
			Time:               t.UTC(),
			NORADID:            e.NORADID,
			SatelliteName:      e.Name,
			LatDeg:             g.LatDeg,
			LonDeg:             g.LonDeg,
			AltKm:              g.AltKm,
			RangeKm:            la.RangeKm,
			AzimuthDeg:         la.AzimuthDeg,
			ElevationDeg:       la.ElevationDeg,
			RangeRateKmS:       la.RangeRateKmS,
			RelativeVelocityMS: -la.RangeRateKmS * 1000,
		}
		if q.FrequencyHz > 0 {
			h.DopplerHz = transform.DopplerShiftHz(q.FrequencyHz, la.RangeRateKmS)
		}
		if !hit(h) {
			return nil
		}
	}
	return nil
}

// SubPointSearch returns every sample of m whose sub-point falls inside the
// query box, in time order.
func SubPointSearch(ctx context.Context, m *propagation.SGP4, obs transform.Observer, q SubPointQuery) (hits []SubPointHit, err error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "passes.SubPointSearch")
	span.SetAttributes(attribute.Int("norad_id", m.Element().NORADID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("hits", len(hits)))
		span.End()
	}()

	hits = []SubPointHit{}
	err = scan(ctx, m, obs, q, func(h SubPointHit) bool {
		hits = append(hits, h)
		return true
	})
	return hits, err
}

// FindResult is the outcome of FindFirst.
type FindResult struct {
	Hit *SubPointHit `json:"hit,omitempty"`
	// Scanned counts satellites searched; Skipped those whose propagation
	// failed part way.
	Scanned int `json:"scanned"`
	Skipped int `json:"skipped"`
}

// FindFirst searches models in order and returns the first satellite sample
// inside the query box. A satellite that fails to propagate is skipped.
func FindFirst(ctx context.Context, models []*propagation.SGP4, obs transform.Observer, q SubPointQuery) (FindResult, error) {
	if err := q.Validate(); err != nil {
		return FindResult{}, err
	}
	ctx, span := tracer.Start(ctx, "passes.FindFirst")
	span.SetAttributes(attribute.Int("satellites", len(models)))
	defer span.End()

	var res FindResult
	for _, m := range models {
		var found *SubPointHit
		err := scan(ctx, m, obs, q, func(h SubPointHit) bool {
			found = &h
			return false
		})
		res.Scanned++
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		if found != nil {
			res.Hit = found
			span.SetAttributes(attribute.Int("norad_id", found.NORADID))
			return res, nil
		}
		if err != nil {
			res.Skipped++
		}
	}
	return res, nil
}
