package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/httputil"
	"github.com/ccdanpian/sat-yuntai/internal/pass"
	"github.com/ccdanpian/sat-yuntai/internal/passes"
	"github.com/ccdanpian/sat-yuntai/internal/passlog"
	"github.com/ccdanpian/sat-yuntai/internal/sample"
	"github.com/ccdanpian/sat-yuntai/internal/tle"
)

const (
	maxPredictSatellites = 50
	maxPredictHours      = 72
	maxPredictPasses     = 50
	maxAnalyzePoints     = 100_000
)

type analyzeRequest struct {
	// Either Points, or a satellite and station to search from StartTime.
	Points        []sample.TrajectoryPoint `json:"points,omitempty"`
	Satellite     *satelliteInput          `json:"satellite,omitempty"`
	GroundStation *stationInput            `json:"groundStation,omitempty"`
	StartTime     string                   `json:"startTime,omitempty"`
}

type analyzeResponse struct {
	Arc      *pass.Arc      `json:"arc"`
	Empty    bool           `json:"empty"`
	Analysis *pass.Analysis `json:"analysis,omitempty"`
}

// handlePassAnalyze segments the first pass out of a trajectory and
// suggests a mount direction for it. A trajectory that never rises is a
// valid empty result.
// POST /api/v1/passes/analyze
func (s *Server) handlePassAnalyze(w http.ResponseWriter, r *http.Request) {
	var body analyzeRequest
	if err := s.decode(w, r, &body); err != nil {
		s.writeErr(w, r, err)
		return
	}

	points := body.Points
	switch {
	case len(points) > 0:
		if len(points) > maxAnalyzePoints {
			s.writeErr(w, r, invalidf("too many points: %d (max %d)", len(points), maxAnalyzePoints))
			return
		}
		if !sample.Ordered(points) {
			s.writeErr(w, r, invalidf("points must have non-decreasing timestamps"))
			return
		}
	case body.Satellite != nil && body.GroundStation != nil:
		e, err := s.resolveElement(*body.Satellite)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		obs, err := observerFor(*body.GroundStation)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		start, err := parseTime(body.StartTime, s.deps.Location, time.Now().UTC())
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		traj, _, _, err := s.trajectory(r.Context(), e, obs, start)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		points = traj.Points
	default:
		s.writeErr(w, r, invalidf("request requires points, or satellite and groundStation"))
		return
	}

	arc := pass.FirstPass(points)
	analysis, err := s.deps.Analyzer.Analyze(arc)
	switch {
	case errors.Is(err, pass.ErrEmptyPass):
		httputil.WriteJSON(w, http.StatusOK, analyzeResponse{Arc: arc, Empty: true})
	case err != nil:
		s.writeErr(w, r, invalid(err))
	default:
		httputil.WriteJSON(w, http.StatusOK, analyzeResponse{Arc: arc, Analysis: &analysis})
	}
}

type predictRequest struct {
	Satellites    []satelliteInput `json:"satellites"`
	GroundStation stationInput     `json:"groundStation"`
	StartTime     string           `json:"startTime"`
	Hours         float64          `json:"hours"`
	MinElevation  *float64         `json:"minElevation"`
	MaxPasses     int              `json:"maxPasses"`
	GroundTrack   bool             `json:"groundTrack"`
}

type predictResponse struct {
	Start        time.Time                `json:"start"`
	Hours        float64                  `json:"hours"`
	MinElevation float64                  `json:"min_elevation"`
	Satellites   []passes.SatellitePasses `json:"satellites"`
}

// handlePassPredict lists upcoming passes for up to 50 satellites.
// POST /api/v1/passes/predict
func (s *Server) handlePassPredict(w http.ResponseWriter, r *http.Request) {
	var body predictRequest
	if err := s.decode(w, r, &body); err != nil {
		s.writeErr(w, r, err)
		return
	}

	if len(body.Satellites) == 0 {
		s.writeErr(w, r, invalidf("satellites must not be empty"))
		return
	}
	if len(body.Satellites) > maxPredictSatellites {
		s.writeErr(w, r, invalidf("too many satellites: %d (max %d)", len(body.Satellites), maxPredictSatellites))
		return
	}
	hours := body.Hours
	if hours == 0 {
		hours = 24
	}
	if hours < 0 || hours > maxPredictHours {
		s.writeErr(w, r, invalidf("hours must be in (0, %d]", maxPredictHours))
		return
	}
	minEl := 10.0
	if body.MinElevation != nil {
		minEl = *body.MinElevation
	}
	if minEl < 0 || minEl >= 90 {
		s.writeErr(w, r, invalidf("minElevation must be in [0, 90)"))
		return
	}
	maxPasses := body.MaxPasses
	if maxPasses == 0 {
		maxPasses = 10
	}
	if maxPasses < 0 || maxPasses > maxPredictPasses {
		s.writeErr(w, r, invalidf("maxPasses must be in [1, %d]", maxPredictPasses))
		return
	}

	obs, err := observerFor(body.GroundStation)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	start, err := parseTime(body.StartTime, s.deps.Location, time.Now().UTC())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	elements := make([]tle.Element, 0, len(body.Satellites))
	for i, in := range body.Satellites {
		e, err := s.resolveElement(in)
		if err != nil {
			s.writeErr(w, r, fmt.Errorf("satellites[%d]: %w", i, err))
			return
		}
		elements = append(elements, e)
	}

	results := passes.Predict(r.Context(), passes.Request{
		Observer:     obs,
		Elements:     elements,
		Start:        start,
		HorizonHours: hours,
		MinElevation: minEl,
		MaxPasses:    maxPasses,
		GroundTrack:  body.GroundTrack,
	})
	if err := r.Context().Err(); err != nil {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, predictResponse{
		Start:        start,
		Hours:        hours,
		MinElevation: minEl,
		Satellites:   results,
	})
}

type historyResponse struct {
	Count  int              `json:"count"`
	Passes []passlog.Record `json:"passes"`
}

// handlePassHistory lists recorded pass analyses, newest first.
// GET /api/v1/passes/history?norad_id=25544&session_id=...&since=...&limit=50
func (s *Server) handlePassHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.PassLog == nil {
		s.writeErr(w, r, errPassLogDisabled)
		return
	}

	q := r.URL.Query()
	var query passlog.Query
	if v := q.Get("norad_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil || id <= 0 {
			s.writeErr(w, r, invalidf("invalid norad_id %q", v))
			return
		}
		query.NORADID = id
	}
	query.SessionID = q.Get("session_id")
	if v := q.Get("since"); v != "" {
		t, err := parseTime(v, s.deps.Location, time.Time{})
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		query.Since = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			s.writeErr(w, r, invalidf("invalid limit %q, must be 1-1000", v))
			return
		}
		query.Limit = n
	}

	records, err := s.deps.PassLog.Passes(r.Context(), query)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if records == nil {
		records = []passlog.Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, historyResponse{Count: len(records), Passes: records})
}
