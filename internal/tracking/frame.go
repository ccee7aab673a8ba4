package tracking

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ccdanpian/sat-yuntai/internal/gimbal"
	"github.com/ccdanpian/sat-yuntai/internal/pass"
	"github.com/ccdanpian/sat-yuntai/internal/polar"
	"github.com/ccdanpian/sat-yuntai/internal/sample"
	"github.com/ccdanpian/sat-yuntai/internal/scene"
)

// Frame is the output of one tracking cycle, ready for the polar view, the
// 3D scene and the gimbal readout.
type Frame struct {
	SessionID  string    `json:"session_id"`
	Cycle      int       `json:"cycle"`
	Time       time.Time `json:"time"`
	Simulation bool      `json:"simulation"`
	Satellite  string    `json:"satellite"`
	NORADID    int       `json:"norad_id"`
	Convention string    `json:"convention"`

	Sample sample.TrajectoryPoint `json:"sample"`
	Polar  polar.Point            `json:"polar"`
	// Path is the visible part of the current arc.
	Path polar.Path `json:"path"`
	// Planned is the projected trajectory found at session start, if any.
	Planned *polar.Path `json:"planned,omitempty"`

	SubPoint   sample.GeoSample  `json:"sub_point"`
	ScenePoint r3.Vec            `json:"scene_point"`
	Beam       *scene.BeamVolume `json:"beam,omitempty"`

	ReportedAzimuth float64         `json:"reported_azimuth"`
	Gimbal          gimbal.Position `json:"gimbal"`
	GimbalError     string          `json:"gimbal_error,omitempty"`

	Heading   string         `json:"heading,omitempty"`
	DopplerHz *float64       `json:"doppler_hz,omitempty"`
	Analysis  *pass.Analysis `json:"analysis,omitempty"`
}

// Position is the lightweight view served by the position endpoint.
type Position struct {
	AzimuthDeg     float64    `json:"azimuth"`
	ElevationDeg   float64    `json:"elevation"`
	IsTracking     bool       `json:"is_tracking"`
	SimulationTime *time.Time `json:"simulation_time,omitempty"`
}
