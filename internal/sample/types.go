// Package sample defines the angular and geocentric samples that flow from the
// propagation layer into the display and pass-analysis code.
package sample

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// AngularSample is one observation of a satellite from a ground station.
// Azimuth is clockwise from true north in [0, 360); elevation is in [-90, 90].
type AngularSample struct {
	TimestampMs  int64
	AzimuthDeg   float64
	ElevationDeg float64
}

// Time returns the sample timestamp in UTC.
func (s AngularSample) Time() time.Time {
	return time.UnixMilli(s.TimestampMs).UTC()
}

// TrajectoryPoint is an AngularSample with optional range data.
// Points in a trajectory have non-decreasing timestamps.
type TrajectoryPoint struct {
	AngularSample
	RangeKm      *float64
	RangeRateKmS *float64
}

// Visible reports whether the point is strictly above the horizon.
// Exactly 0° is not visible.
func (p TrajectoryPoint) Visible() bool {
	return p.ElevationDeg > 0
}

// NewPoint builds a TrajectoryPoint at t without range data.
func NewPoint(t time.Time, azDeg, elDeg float64) TrajectoryPoint {
	return TrajectoryPoint{AngularSample: AngularSample{
		TimestampMs:  t.UnixMilli(),
		AzimuthDeg:   azDeg,
		ElevationDeg: elDeg,
	}}
}

// WithRange returns a copy of p carrying range and range rate.
func (p TrajectoryPoint) WithRange(rangeKm, rangeRateKmS float64) TrajectoryPoint {
	p.RangeKm = &rangeKm
	p.RangeRateKmS = &rangeRateKmS
	return p
}

type pointJSON struct {
	Time      string   `json:"time"`
	Azimuth   float64  `json:"azimuth"`
	Elevation float64  `json:"elevation"`
	Range     *float64 `json:"range,omitempty"`
	RangeRate *float64 `json:"range_rate,omitempty"`
	Visible   bool     `json:"visible"`
}

// MarshalJSON encodes the point in the wire shape used by the trajectory API.
func (p TrajectoryPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(pointJSON{
		Time:      p.Time().Format(time.RFC3339Nano),
		Azimuth:   p.AzimuthDeg,
		Elevation: p.ElevationDeg,
		Range:     p.RangeKm,
		RangeRate: p.RangeRateKmS,
		Visible:   p.Visible(),
	})
}

// UnmarshalJSON accepts {time, azimuth, elevation, range?}. The visible field
// is ignored and recomputed from elevation.
func (p *TrajectoryPoint) UnmarshalJSON(data []byte) error {
	var raw pointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339Nano, raw.Time)
	if err != nil {
		return fmt.Errorf("invalid time %q: %w", raw.Time, err)
	}
	if math.IsNaN(raw.Azimuth) || math.IsNaN(raw.Elevation) {
		return fmt.Errorf("non-finite angle in sample at %s", raw.Time)
	}
	*p = TrajectoryPoint{
		AngularSample: AngularSample{
			TimestampMs:  t.UnixMilli(),
			AzimuthDeg:   raw.Azimuth,
			ElevationDeg: raw.Elevation,
		},
		RangeKm:      raw.Range,
		RangeRateKmS: raw.RangeRate,
	}
	return nil
}

// GeoSample is a satellite sub-point as delivered by the propagation layer.
type GeoSample struct {
	LatDeg        float64   `json:"lat"`
	LonDeg        float64   `json:"lon"`
	AltKm         float64   `json:"alt"`
	Time          time.Time `json:"time"`
	SatelliteName string    `json:"satellite_name"`
}

// Ordered reports whether points have non-decreasing timestamps.
func Ordered(points []TrajectoryPoint) bool {
	for i := 1; i < len(points); i++ {
		if points[i].TimestampMs < points[i-1].TimestampMs {
			return false
		}
	}
	return true
}
