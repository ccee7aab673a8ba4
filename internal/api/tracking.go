package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/httputil"
	"github.com/ccdanpian/sat-yuntai/internal/passes"
	"github.com/ccdanpian/sat-yuntai/internal/polar"
	"github.com/ccdanpian/sat-yuntai/internal/tracking"
)

type startTrackingRequest struct {
	Satellite      satelliteInput `json:"satellite"`
	GroundStation  stationInput   `json:"groundStation"`
	SimulationMode bool           `json:"simulationMode"`
	// StartTime is the simulation clock origin.
	StartTime       string `json:"startTime"`
	GimbalDirection string `json:"gimbalDirection"`
	// Plan searches the next pass and attaches it to every frame.
	Plan bool `json:"plan"`
}

type startTrackingResponse struct {
	Success    bool       `json:"success"`
	Message    string     `json:"message"`
	SessionID  string     `json:"session_id"`
	StartedAt  time.Time  `json:"started_at"`
	Simulation bool       `json:"simulation"`
	SimStart   *time.Time `json:"simulation_start,omitempty"`
	Planned    int        `json:"planned_points"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// handleTrackingStart starts (or replaces) the tracking session.
// POST /api/v1/tracking/start
func (s *Server) handleTrackingStart(w http.ResponseWriter, r *http.Request) {
	var body startTrackingRequest
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
	convention, err := polar.ParseConvention(body.GimbalDirection)
	if err != nil {
		s.writeErr(w, r, invalid(err))
		return
	}
	start, err := parseTime(body.StartTime, s.deps.Location, time.Time{})
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	req := tracking.Request{
		Element:    e,
		Station:    body.GroundStation,
		Simulation: body.SimulationMode,
		Start:      start,
		Convention: convention,
	}

	if body.Plan {
		from := start
		if from.IsZero() || !body.SimulationMode {
			from = time.Now()
		}
		traj, _, _, err := s.trajectory(r.Context(), e, obs, from)
		switch {
		case err == nil:
			req.Planned = traj.Points
		case errors.Is(err, passes.ErrNoPass):
			s.logger.Info("no pass to plan for tracking session",
				"component", "api",
				"satellite", e.Name,
				"norad_id", e.NORADID,
			)
		default:
			s.writeErr(w, r, err)
			return
		}
	}

	sess, err := s.deps.Tracker.Start(r.Context(), req)
	if err != nil {
		s.writeErr(w, r, invalid(err))
		return
	}

	resp := startTrackingResponse{
		Success:    true,
		Message:    "tracking started",
		SessionID:  sess.ID(),
		StartedAt:  sess.StartedAt(),
		Simulation: body.SimulationMode,
		Planned:    len(req.Planned),
	}
	if body.SimulationMode {
		st := sess.Request().Start
		resp.SimStart = &st
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// handleTrackingStop stops the running session. Stopping while idle is not
// an error.
// POST /api/v1/tracking/stop
func (s *Server) handleTrackingStop(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Tracker.Stop()
	switch {
	case errors.Is(err, tracking.ErrNoSession):
		httputil.WriteJSON(w, http.StatusOK, messageResponse{Success: true, Message: "no active tracking session"})
	case err != nil:
		s.writeErr(w, r, err)
	default:
		httputil.WriteJSON(w, http.StatusOK, messageResponse{Success: true, Message: "tracking stopped"})
	}
}

// GET /api/v1/tracking/position
func (s *Server) handleTrackingPosition(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.deps.Tracker.Position())
}

// GET /api/v1/tracking/frame
func (s *Server) handleTrackingFrame(w http.ResponseWriter, r *http.Request) {
	f, err := s.deps.Tracker.Frame()
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, f)
}
