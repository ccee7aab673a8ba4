package api

import (
	"math"
	"net/http"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/httputil"
	"github.com/ccdanpian/sat-yuntai/internal/passes"
	"github.com/ccdanpian/sat-yuntai/internal/sample"
)

type positionRequest struct {
	Satellite     satelliteInput `json:"satellite"`
	GroundStation stationInput   `json:"groundStation"`
	Time          string         `json:"time"`
}

// handlePosition returns look angles for one instant (default now).
// POST /api/v1/position
func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	var body positionRequest
	if err := s.decode(w, r, &body); err != nil {
		s.writeErr(w, r, err)
		return
	}
	e, err := s.resolveElement(body.Satellite)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	obs, err := observerFor(body.GroundStation)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	at, err := parseTime(body.Time, s.deps.Location, time.Now().UTC())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	m, err := s.deps.Propagator.Model(e)
	if err != nil {
		s.writeErr(w, r, invalid(err))
		return
	}
	pt, err := m.Point(obs, at)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pt)
}

type trajectoryRequest struct {
	Satellite     satelliteInput `json:"satellite"`
	GroundStation stationInput   `json:"groundStation"`
	StartTime     string         `json:"startTime"`
}

type trajectoryResponse struct {
	*passes.Trajectory
	TotalPoints     int       `json:"totalPoints"`
	VisibleCount    int       `json:"visibleCount"`
	SearchStartTime time.Time `json:"searchStartTime"`
	Cached          bool      `json:"cached"`
}

// handleTrajectory finds the next pass peaking above the acceptance
// elevation. No such pass within the horizon is a 404.
// POST /api/v1/trajectory
func (s *Server) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	var body trajectoryRequest
	if err := s.decode(w, r, &body); err != nil {
		s.writeErr(w, r, err)
		return
	}
	e, err := s.resolveElement(body.Satellite)
	if err != nil {
		s.writeErr(w, r, err)
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

	traj, cached, searchStart, err := s.trajectory(r.Context(), e, obs, start)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	out := *traj
	out.MaxElevation = math.Round(traj.MaxElevation*100) / 100
	httputil.WriteJSON(w, http.StatusOK, trajectoryResponse{
		Trajectory:      &out,
		TotalPoints:     len(traj.Points),
		VisibleCount:    countVisible(traj.Points),
		SearchStartTime: searchStart,
		Cached:          cached,
	})
}

func countVisible(points []sample.TrajectoryPoint) int {
	n := 0
	for _, p := range points {
		if p.Visible() {
			n++
		}
	}
	return n
}
