// Package gimbal drives the two-axis pan-tilt mount that points the antenna.
package gimbal

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ccdanpian/sat-yuntai/internal/anglemath"
	"github.com/ccdanpian/sat-yuntai/internal/metrics"
)

// Mechanical limits of the mount, in the mount's own azimuth convention.
const (
	AzimuthMin   = -180.0
	AzimuthMax   = 180.0
	ElevationMin = -30.0
	ElevationMax = 90.0

	DefaultSpeed = 10
	DefaultAccel = 0
)

// Command is one absolute pointing request.
type Command struct {
	AzimuthDeg   float64
	ElevationDeg float64
	Speed        int
	Accel        int
}

// Controller sends commands to a mount.
type Controller interface {
	Point(ctx context.Context, cmd Command) error
	// Name identifies the controller kind in logs and metrics.
	Name() string
	Close() error
}

// Clamp limits az and el to the mount range and reports whether either
// value changed.
func Clamp(az, el float64) (float64, float64, bool) {
	caz := math.Max(AzimuthMin, math.Min(AzimuthMax, az))
	cel := math.Max(ElevationMin, math.Min(ElevationMax, el))
	return caz, cel, caz != az || cel != el
}

// Position is the last commanded mount orientation.
type Position struct {
	AzimuthDeg   float64   `json:"azimuth"`
	ElevationDeg float64   `json:"elevation"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
}

// Status reports the driver state for the status endpoint.
type Status struct {
	Initialized    bool   `json:"initialized"`
	Controller     string `json:"controller"`
	SimulationMode bool   `json:"simulation_mode"`
}

// Driver clamps and forwards pointing commands to a Controller and remembers
// the last commanded position. Safe for concurrent use.
type Driver struct {
	ctrl   Controller
	logger *slog.Logger

	mu  sync.Mutex
	pos Position
}

// NewDriver wraps ctrl.
func NewDriver(ctrl Controller, logger *slog.Logger) *Driver {
	return &Driver{ctrl: ctrl, logger: logger}
}

// Point clamps the request to the mount limits and sends it. The stored
// position is updated only when the controller accepts the command; on error
// Point returns the last accepted position unchanged with the error.
func (d *Driver) Point(ctx context.Context, azDeg, elDeg float64) (Position, error) {
	for _, v := range []float64{azDeg, elDeg} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Position{}, fmt.Errorf("gimbal command %v: %w", v, anglemath.ErrInvalidAngle)
		}
	}

	az, el, clamped := Clamp(azDeg, elDeg)
	if clamped {
		d.logger.Debug("gimbal command clamped",
			"component", "gimbal",
			"requested_azimuth", azDeg,
			"requested_elevation", elDeg,
			"azimuth", az,
			"elevation", el,
		)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.ctrl.Point(ctx, Command{AzimuthDeg: az, ElevationDeg: el, Speed: DefaultSpeed, Accel: DefaultAccel})
	if err != nil {
		metrics.IncGimbalCommands(d.ctrl.Name(), "error")
		return d.pos, fmt.Errorf("%s gimbal: %w", d.ctrl.Name(), err)
	}
	metrics.IncGimbalCommands(d.ctrl.Name(), "ok")

	d.pos = Position{AzimuthDeg: az, ElevationDeg: el, UpdatedAt: time.Now().UTC()}
	return d.pos, nil
}

// Position returns the last commanded position.
func (d *Driver) Position() Position {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos
}

// Status describes the underlying controller.
func (d *Driver) Status() Status {
	name := d.ctrl.Name()
	return Status{
		Initialized:    name != SimulatedName,
		Controller:     name,
		SimulationMode: name == SimulatedName,
	}
}

// Close releases the controller.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctrl.Close()
}
