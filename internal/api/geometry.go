package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/anglemath"
	"github.com/ccdanpian/sat-yuntai/internal/httputil"
	"github.com/ccdanpian/sat-yuntai/internal/polar"
	"github.com/ccdanpian/sat-yuntai/internal/sample"
	"github.com/ccdanpian/sat-yuntai/internal/scene"
)

const (
	defaultViewSize   = 400
	defaultViewMargin = 30
	maxProjectPoints  = 100_000
	maxSubPointTimes  = 1440
	maxSubPointTotal  = 200_000
)

type projectRequest struct {
	Points []sample.TrajectoryPoint `json:"points"`
	Width  float64                  `json:"width"`
	Height float64                  `json:"height"`
	Margin *float64                 `json:"margin"`
	// With a convention set, point azimuths are reported values and are
	// converted back to true azimuth before projection.
	Convention string `json:"convention"`
}

type projectResponse struct {
	Viewport   polar.Viewport   `json:"viewport"`
	Background polar.Background `json:"background"`
	Path       polar.Path       `json:"path"`
}

// handlePolarProject lays a trajectory out on the polar sky view.
// POST /api/v1/polar/project
func (s *Server) handlePolarProject(w http.ResponseWriter, r *http.Request) {
	var body projectRequest
	if err := s.decode(w, r, &body); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if len(body.Points) > maxProjectPoints {
		s.writeErr(w, r, invalidf("too many points: %d (max %d)", len(body.Points), maxProjectPoints))
		return
	}

	width, height := body.Width, body.Height
	if width == 0 {
		width = defaultViewSize
	}
	if height == 0 {
		height = defaultViewSize
	}
	margin := float64(defaultViewMargin)
	if body.Margin != nil {
		margin = *body.Margin
	}
	if width < 0 || height < 0 || margin < 0 {
		s.writeErr(w, r, invalidf("width, height and margin must not be negative"))
		return
	}
	vp := polar.ViewportFor(width, height, margin)

	points := body.Points
	if body.Convention != "" {
		c, err := polar.ParseConvention(body.Convention)
		if err != nil {
			s.writeErr(w, r, invalid(err))
			return
		}
		points = make([]sample.TrajectoryPoint, len(body.Points))
		for i, p := range body.Points {
			az, err := polar.Unproject(p.AzimuthDeg, c)
			if err != nil {
				s.writeErr(w, r, invalid(fmt.Errorf("point %d: %w", i, err)))
				return
			}
			p.AzimuthDeg = az
			points[i] = p
		}
	}

	path, err := polar.ProjectPath(points, vp)
	if err != nil {
		s.writeErr(w, r, invalid(err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, projectResponse{
		Viewport:   vp,
		Background: polar.BackgroundFor(vp),
		Path:       path,
	})
}

type beamRequest struct {
	GroundStation stationInput `json:"groundStation"`
	Azimuth       float64      `json:"azimuth"`
	Elevation     float64      `json:"elevation"`
	// RangeKm sets the cone height.
	RangeKm      float64  `json:"range_km"`
	HalfAngleDeg *float64 `json:"half_angle_deg"`
}

// handleSceneBeam builds the antenna beam volume for one pointing.
// POST /api/v1/scene/beam
func (s *Server) handleSceneBeam(w http.ResponseWriter, r *http.Request) {
	var body beamRequest
	if err := s.decode(w, r, &body); err != nil {
		s.writeErr(w, r, err)
		return
	}
	apex, err := scene.ToScenePoint(body.GroundStation, scene.EarthRadiusKm)
	if err != nil {
		s.writeErr(w, r, invalid(fmt.Errorf("groundStation: %w", err)))
		return
	}
	az, err := anglemath.NormalizeDeg(body.Azimuth)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	el, err := anglemath.ClampElevation(body.Elevation)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	half := s.deps.BeamHalfAngleDeg
	if body.HalfAngleDeg != nil {
		half = *body.HalfAngleDeg
	}

	vol, err := scene.BuildBeam(apex, anglemath.Deg2Rad(az), anglemath.Deg2Rad(el),
		body.RangeKm, anglemath.Deg2Rad(half), scene.EarthRadiusKm)
	if err != nil {
		s.writeErr(w, r, invalid(err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, vol)
}

type subPointsRequest struct {
	NORADIDs  []int  `json:"norad_ids"`
	StartTime string `json:"startTime"`
	// Samples spaced StepSeconds apart starting at StartTime (default 1).
	Count       int     `json:"count"`
	StepSeconds float64 `json:"step_seconds"`
}

type subPointsResponse struct {
	Samples []sample.GeoSample     `json:"samples"`
	Overlay scene.SatelliteOverlay `json:"overlay"`
}

// handleSceneSubPoints propagates catalog satellites and returns their
// sub-points with the scene overlay built from them. An empty norad_ids
// selects the whole catalog.
// POST /api/v1/scene/subpoints
func (s *Server) handleSceneSubPoints(w http.ResponseWriter, r *http.Request) {
	var body subPointsRequest
	if err := s.decode(w, r, &body); err != nil {
		s.writeErr(w, r, err)
		return
	}
	count := body.Count
	if count == 0 {
		count = 1
	}
	if count < 0 || count > maxSubPointTimes {
		s.writeErr(w, r, invalidf("count must be in [1, %d]", maxSubPointTimes))
		return
	}
	step := time.Duration(body.StepSeconds * float64(time.Second))
	if step == 0 {
		step = s.deps.Propagator.Step()
	}
	if step < 0 {
		s.writeErr(w, r, invalidf("step_seconds must be positive"))
		return
	}
	sats := len(body.NORADIDs)
	if sats == 0 {
		if cat := s.deps.Store.Get(); cat != nil {
			sats = cat.Len()
		}
	}
	if sats*count > maxSubPointTotal {
		s.writeErr(w, r, invalidf("%d satellites × %d times exceeds %d samples", sats, count, maxSubPointTotal))
		return
	}
	start, err := parseTime(body.StartTime, s.deps.Location, time.Now().UTC())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	times := make([]time.Time, count)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * step)
	}
	samples, err := s.deps.Propagator.SubPoints(r.Context(), body.NORADIDs, times)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	overlay, err := scene.BuildSatelliteOverlay(samples, scene.EarthRadiusKm)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if samples == nil {
		samples = []sample.GeoSample{}
	}
	httputil.WriteJSON(w, http.StatusOK, subPointsResponse{Samples: samples, Overlay: overlay})
}
