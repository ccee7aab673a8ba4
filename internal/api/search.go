package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/httputil"
	"github.com/ccdanpian/sat-yuntai/internal/passes"
	"github.com/ccdanpian/sat-yuntai/internal/propagation"
	"github.com/ccdanpian/sat-yuntai/internal/sample"
	"github.com/ccdanpian/sat-yuntai/internal/scene"
	"github.com/ccdanpian/sat-yuntai/internal/tle"
)

const (
	defaultSearchWindow   = time.Hour
	defaultSearchInterval = 60 * time.Second
	defaultBoxDeg         = 5.0
	maxFindSamples        = 2_000_000
)

// boxInput is the shared part of the sub-point search requests.
type boxInput struct {
	GroundStation   stationInput `json:"groundStation"`
	StartTime       string       `json:"startTime"`
	EndTime         string       `json:"endTime"`
	IntervalSeconds float64      `json:"interval_seconds"`
	LatError        *float64     `json:"lat_error"`
	LonError        *float64     `json:"lon_error"`
}

// query validates the box around the station shifted by the given offsets.
func (s *Server) query(in boxInput, dLat, dLon float64) (passes.SubPointQuery, error) {
	start, err := parseTime(in.StartTime, s.deps.Location, time.Now().UTC())
	if err != nil {
		return passes.SubPointQuery{}, err
	}
	end, err := parseTime(in.EndTime, s.deps.Location, start.Add(defaultSearchWindow))
	if err != nil {
		return passes.SubPointQuery{}, err
	}
	interval := defaultSearchInterval
	if in.IntervalSeconds != 0 {
		interval = time.Duration(in.IntervalSeconds * float64(time.Second))
	}
	q := passes.SubPointQuery{
		Start:        start,
		End:          end,
		Interval:     interval,
		TargetLatDeg: in.GroundStation.LatDeg + dLat,
		TargetLonDeg: in.GroundStation.LonDeg + dLon,
		LatErrorDeg:  defaultBoxDeg,
		LonErrorDeg:  defaultBoxDeg,
	}
	if in.LatError != nil {
		q.LatErrorDeg = *in.LatError
	}
	if in.LonError != nil {
		q.LonErrorDeg = *in.LonError
	}
	if err := q.Validate(); err != nil {
		return passes.SubPointQuery{}, invalid(err)
	}
	return q, nil
}

type subPointSearchRequest struct {
	boxInput
	Satellite    satelliteInput `json:"satellite"`
	FrequencyMHz float64        `json:"frequency_mhz"`
	// ShowCover adds the coverage footprint at the start time.
	ShowCover        bool    `json:"show_cover"`
	CoverageRadiusKm float64 `json:"coverage_radius_km"`
}

type coverage struct {
	Center   sample.GeoSample `json:"center"`
	RadiusKm float64          `json:"radius_km"`
	Ring     [][2]float64     `json:"ring"`
	Polyline scene.Polyline   `json:"polyline"`
}

type subPointSearchResponse struct {
	Results  []passes.SubPointHit `json:"results"`
	Coverage *coverage            `json:"coverage,omitempty"`
}

// handleSubPointSearch lists the times a satellite's sub-point passes
// within the error box around the ground station.
// POST /api/v1/scene/search
func (s *Server) handleSubPointSearch(w http.ResponseWriter, r *http.Request) {
	var body subPointSearchRequest
	if err := s.decode(w, r, &body); err != nil {
		s.writeErr(w, r, err)
		return
	}
	obs, err := observerFor(body.GroundStation)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	q, err := s.query(body.boxInput, 0, 0)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	q.FrequencyHz = body.FrequencyMHz * 1e6
	if err := q.Validate(); err != nil {
		s.writeErr(w, r, invalid(err))
		return
	}
	e, err := s.resolveElement(body.Satellite)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	m, err := s.deps.Propagator.Model(e)
	if err != nil {
		s.writeErr(w, r, invalid(err))
		return
	}

	hits, err := passes.SubPointSearch(r.Context(), m, obs, q)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	resp := subPointSearchResponse{Results: hits}
	if body.ShowCover {
		radius := body.CoverageRadiusKm
		if radius == 0 {
			radius = scene.DefaultCoverageRadiusKm
		}
		center, err := m.Geo(q.Start)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		ring, err := scene.CoverageRing(scene.GeoPoint{LatDeg: center.LatDeg, LonDeg: center.LonDeg},
			radius, scene.DefaultCoveragePoints)
		if err != nil {
			s.writeErr(w, r, invalid(err))
			return
		}
		line, err := scene.BorderPolyline(ring)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		resp.Coverage = &coverage{Center: center, RadiusKm: radius, Ring: ring, Polyline: line}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type findRequest struct {
	boxInput
	NORADIDs []int   `json:"norad_ids"`
	DeltaLat float64 `json:"delta_lat"`
	DeltaLon float64 `json:"delta_lon"`
}

type findResponse struct {
	Found     bool      `json:"found"`
	Satellite string    `json:"satellite,omitempty"`
	NORADID   int       `json:"norad_id,omitempty"`
	Time      time.Time `json:"time,omitzero"`
	LatDeg    float64   `json:"lat_sat,omitempty"`
	LonDeg    float64   `json:"lon_sat,omitempty"`
	passes.FindResult
}

// handleSubPointFind returns the first catalog satellite whose sub-point
// enters the box centred delta_lat/delta_lon away from the ground station.
// POST /api/v1/scene/find
func (s *Server) handleSubPointFind(w http.ResponseWriter, r *http.Request) {
	var body findRequest
	if err := s.decode(w, r, &body); err != nil {
		s.writeErr(w, r, err)
		return
	}
	obs, err := observerFor(body.GroundStation)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	q, err := s.query(body.boxInput, body.DeltaLat, body.DeltaLon)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	models, err := s.deps.Propagator.Models(body.NORADIDs)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	steps := int(q.End.Sub(q.Start)/q.Interval) + 1
	if len(models)*steps > maxFindSamples {
		s.writeErr(w, r, invalidf("%d satellites × %d steps exceeds %d samples", len(models), steps, maxFindSamples))
		return
	}

	res, err := passes.FindFirst(r.Context(), models, obs, q)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	resp := findResponse{FindResult: res}
	if h := res.Hit; h != nil {
		resp.Found = true
		resp.Satellite = strings.TrimSpace(h.SatelliteName)
		resp.NORADID = h.NORADID
		resp.Time = h.Time
		resp.LatDeg, resp.LonDeg = h.LatDeg, h.LonDeg
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type satelliteSummary struct {
	NORADID int       `json:"noradId"`
	Name    string    `json:"name"`
	Epoch   time.Time `json:"epoch"`
}

type satelliteList struct {
	Count      int                `json:"count"`
	Selector   string             `json:"selector"`
	Satellites []satelliteSummary `json:"satellites"`
}

// handleSatellites lists catalog satellites, optionally narrowed by the tag
// and names query parameters.
// GET /api/v1/satellites
func (s *Server) handleSatellites(w http.ResponseWriter, r *http.Request) {
	cat := s.deps.Store.Get()
	if cat == nil {
		s.writeErr(w, r, fmt.Errorf("listing satellites: %w", propagation.ErrNoCatalog))
		return
	}
	sel := tle.Selector{Tag: r.URL.Query().Get("tag")}
	if v := r.URL.Query().Get("names"); v != "" {
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				sel.Names = append(sel.Names, n)
			}
		}
	}

	out := satelliteList{Selector: sel.String(), Satellites: []satelliteSummary{}}
	for _, e := range cat.Elements {
		if sel.Match(e.Name) {
			out.Satellites = append(out.Satellites, satelliteSummary{NORADID: e.NORADID, Name: e.Name, Epoch: e.Epoch})
		}
	}
	out.Count = len(out.Satellites)
	httputil.WriteJSON(w, http.StatusOK, out)
}

type constellationsResponse struct {
	Active   string   `json:"active,omitempty"`
	Selector string   `json:"selector"`
	Known    []string `json:"known"`
}

// GET /api/v1/constellations
func (s *Server) handleConstellations(w http.ResponseWriter, r *http.Request) {
	resp := constellationsResponse{
		Active:   s.deps.Constellation,
		Selector: tle.Selector{}.String(),
		Known:    tle.ConstellationNames(),
	}
	if s.deps.Refresher != nil {
		resp.Selector = s.deps.Refresher.Selector().String()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
