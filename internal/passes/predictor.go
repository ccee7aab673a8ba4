package passes

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/pass"
	"github.com/ccdanpian/sat-yuntai/internal/propagation"
	"github.com/ccdanpian/sat-yuntai/internal/tle"
	"github.com/ccdanpian/sat-yuntai/internal/transform"
)

// GroundTrackPoint is a sub-satellite position at a specific time during a pass.
type GroundTrackPoint struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`  // km
	Elevation float64   `json:"elevation"` // degrees above observer's horizon
}

// PassEvent describes a single satellite pass over an observer location.
type PassEvent struct {
	StartTime        time.Time          `json:"start_time"`
	MaxElevationTime time.Time          `json:"max_elevation_time"`
	EndTime          time.Time          `json:"end_time"`
	DurationSeconds  float64            `json:"duration_seconds"`
	MaxElevation     float64            `json:"max_elevation"`
	AzimuthAtMax     float64            `json:"azimuth_at_max"`
	StartAzimuth     float64            `json:"start_azimuth"`
	EndAzimuth       float64            `json:"end_azimuth"`
	Description      string             `json:"description"`
	GroundTrack      []GroundTrackPoint `json:"ground_track,omitempty"`
}

// SatellitePasses holds the predicted passes for one satellite.
type SatellitePasses struct {
	NORADID int         `json:"norad_id"`
	Name    string      `json:"name"`
	Passes  []PassEvent `json:"passes"`
	Error   string      `json:"error,omitempty"`
}

// Request holds the parameters for a pass prediction request.
type Request struct {
	Observer     transform.Observer
	Elements     []tle.Element
	Start        time.Time
	HorizonHours float64
	MinElevation float64 // degrees
	MaxPasses    int
	GroundTrack  bool
}

const (
	coarseStepSec      = 30 // seconds between coarse scan steps
	fineStepSec        = 1  // seconds between fine scan steps
	groundTrackStepSec = 10 // seconds between ground track samples
	minPassDur         = 10 * time.Second
)

// Predict lists upcoming passes for each element in the request.
// Each satellite is processed in its own goroutine, bounded by a semaphore.
func Predict(ctx context.Context, req Request) []SatellitePasses {
	results := make([]SatellitePasses, len(req.Elements))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i, e := range req.Elements {
		wg.Add(1)
		go func(idx int, e tle.Element) {
			defer wg.Done()
			results[idx] = SatellitePasses{NORADID: e.NORADID, Name: e.Name}

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx].Error = "cancelled"
				return
			}

			passes, err := predictSatellite(ctx, req, e)
			if err != nil {
				results[idx].Error = err.Error()
				return
			}
			results[idx].Passes = passes
		}(i, e)
	}

	wg.Wait()
	return results
}

// predictSatellite finds all passes for a single satellite.
func predictSatellite(ctx context.Context, req Request, e tle.Element) ([]PassEvent, error) {
	m, err := propagation.NewSGP4(e)
	if err != nil {
		return nil, fmt.Errorf("sgp4 init: %w", err)
	}

	end := req.Start.Add(time.Duration(req.HorizonHours * float64(time.Hour)))
	var passes []PassEvent

	// Coarse scan for elevation above the threshold.
	t := req.Start
	for t.Before(end) && len(passes) < req.MaxPasses {
		if ctx.Err() != nil {
			return passes, nil
		}

		la, _, err := lookAt(m, req.Observer, t)
		if err != nil || la.ElevationDeg < req.MinElevation {
			t = t.Add(coarseStepSec * time.Second)
			continue
		}

		pe, windowEnd := refinePass(ctx, m, req, t, end)
		if pe != nil && pe.EndTime.Sub(pe.StartTime) >= minPassDur {
			passes = append(passes, *pe)
		}
		t = windowEnd.Add(coarseStepSec * time.Second)
	}

	return passes, nil
}

// refinePass scans at one-second resolution around a coarse hit. It backs up
// one coarse step to find the rise, then scans forward to the set.
// Returns the pass event and the time the scan stopped.
func refinePass(ctx context.Context, m *propagation.SGP4, req Request, coarseHit, windowEnd time.Time) (*PassEvent, time.Time) {
	searchStart := coarseHit.Add(-coarseStepSec * time.Second)
	if searchStart.Before(req.Start) {
		searchStart = req.Start
	}

	var (
		pe        PassEvent
		wasAbove  bool
		foundRise bool
	)

	t := searchStart
	for t.Before(windowEnd) {
		if ctx.Err() != nil {
			break
		}

		la, ecef, err := lookAt(m, req.Observer, t)
		if err != nil {
			t = t.Add(fineStepSec * time.Second)
			continue
		}
		above := la.ElevationDeg >= req.MinElevation

		if above && !wasAbove {
			pe.StartTime = t
			pe.StartAzimuth = la.AzimuthDeg
			pe.MaxElevation = la.ElevationDeg
			pe.MaxElevationTime = t
			pe.AzimuthAtMax = la.AzimuthDeg
			foundRise = true
		}

		if above && foundRise {
			if la.ElevationDeg > pe.MaxElevation {
				pe.MaxElevation = la.ElevationDeg
				pe.MaxElevationTime = t
				pe.AzimuthAtMax = la.AzimuthDeg
			}
			if req.GroundTrack && int(t.Sub(pe.StartTime).Seconds())%groundTrackStepSec == 0 {
				geo := transform.ECEFToGeodetic(ecef.Pos)
				pe.GroundTrack = append(pe.GroundTrack, GroundTrackPoint{
					Time:      t,
					Latitude:  geo.LatDeg,
					Longitude: geo.LonDeg,
					Altitude:  geo.AltKm,
					Elevation: la.ElevationDeg,
				})
			}
		}

		if !above && wasAbove && foundRise {
			pe.EndTime = t
			pe.EndAzimuth = la.AzimuthDeg
			break
		}

		wasAbove = above
		t = t.Add(fineStepSec * time.Second)
	}

	// Still above at the end of the window: close the pass there.
	if foundRise && pe.EndTime.IsZero() && wasAbove {
		pe.EndTime = t
		if la, _, err := lookAt(m, req.Observer, t); err == nil {
			pe.EndAzimuth = la.AzimuthDeg
		}
	}

	if !foundRise || pe.EndTime.IsZero() {
		return nil, t
	}

	pe.DurationSeconds = pe.EndTime.Sub(pe.StartTime).Seconds()
	if d, err := pass.Describe(pe.StartAzimuth, pe.EndAzimuth); err == nil {
		pe.Description = d
	}
	return &pe, pe.EndTime
}

// lookAt returns look angles and the Earth-fixed state at t.
func lookAt(m *propagation.SGP4, obs transform.Observer, t time.Time) (transform.LookAngles, transform.StateVector, error) {
	ecef, err := m.ECEF(t)
	if err != nil {
		return transform.LookAngles{}, transform.StateVector{}, err
	}
	return obs.Look(ecef), ecef, nil
}
