package gimbal

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/ccdanpian/sat-yuntai/internal/anglemath"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name           string
		az, el         float64
		wantAz, wantEl float64
		clamped        bool
	}{
		{"inside", 45, 30, 45, 30, false},
		{"edges", -180, 90, -180, 90, false},
		{"azimuth over", 200, 10, 180, 10, true},
		{"azimuth under", -190, 10, -180, 10, true},
		{"elevation under", 0, -45, 0, -30, true},
		{"elevation over", 0, 95, 0, 90, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			az, el, clamped := Clamp(tt.az, tt.el)
			assert.Equal(t, tt.wantAz, az)
			assert.Equal(t, tt.wantEl, el)
			assert.Equal(t, tt.clamped, clamped)
		})
	}
}

func TestDriver_Simulated(t *testing.T) {
	sim := NewSimulated(testLogger())
	d := NewDriver(sim, testLogger())

	pos, err := d.Point(context.Background(), 120, -40)
	require.NoError(t, err)
	assert.Equal(t, 120.0, pos.AzimuthDeg)
	assert.Equal(t, -30.0, pos.ElevationDeg)
	assert.False(t, pos.UpdatedAt.IsZero())
	assert.Equal(t, pos, d.Position())

	cmds := sim.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, Command{AzimuthDeg: 120, ElevationDeg: -30, Speed: DefaultSpeed, Accel: DefaultAccel}, cmds[0])

	st := d.Status()
	assert.False(t, st.Initialized)
	assert.True(t, st.SimulationMode)
	assert.Equal(t, SimulatedName, st.Controller)
}

func TestDriver_RejectsNonFinite(t *testing.T) {
	sim := NewSimulated(testLogger())
	d := NewDriver(sim, testLogger())

	_, err := d.Point(context.Background(), math.NaN(), 10)
	assert.ErrorIs(t, err, anglemath.ErrInvalidAngle)
	assert.Empty(t, sim.Commands())
}

type failingController struct{}

func (failingController) Point(context.Context, Command) error { return errors.New("port gone") }
func (failingController) Name() string { return "failing" }
func (failingController) Close() error { return nil }

func TestDriver_KeepsPositionOnError(t *testing.T) {
	d := NewDriver(failingController{}, testLogger())
	_, err := d.Point(context.Background(), 10, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing gimbal")
	assert.Zero(t, d.Position())
}

// flakyController accepts commands until fail is set.
type flakyController struct{ fail bool }

func (f *flakyController) Point(context.Context, Command) error {
	if f.fail {
		return errors.New("write timeout")
	}
	return nil
}
func (*flakyController) Name() string { return "flaky" }
func (*flakyController) Close() error { return nil }

func TestDriver_ErrorReturnsLastAccepted(t *testing.T) {
	ctrl := &flakyController{}
	d := NewDriver(ctrl, testLogger())

	accepted, err := d.Point(context.Background(), 120, 45)
	require.NoError(t, err)

	ctrl.fail = true
	got, err := d.Point(context.Background(), 200, 10)
	require.Error(t, err)
	assert.Equal(t, accepted, got)
	assert.Equal(t, accepted, d.Position())
	assert.InDelta(t, 120, d.Position().AzimuthDeg, 1e-9)
	assert.InDelta(t, 45, d.Position().ElevationDeg, 1e-9)
}

type bufferPort struct {
	bytes.Buffer
	closed bool
}

func (b *bufferPort) Close() error {
	b.closed = true
	return nil
}

func TestSerial_WireFormat(t *testing.T) {
	port := &bufferPort{}
	d := NewDriver(NewSerial(port), testLogger())

	_, err := d.Point(context.Background(), -37.5, 42.25)
	require.NoError(t, err)
	assert.Equal(t, `{"T":133,"X":-37.5,"Y":42.25,"SPD":10,"ACC":0}`+"\n", port.String())

	st := d.Status()
	assert.True(t, st.Initialized)
	assert.False(t, st.SimulationMode)

	require.NoError(t, d.Close())
	assert.True(t, port.closed)
}

func TestSerial_CancelledContext(t *testing.T) {
	port := &bufferPort{}
	s := NewSerial(port)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Point(ctx, Command{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, port.Len())
}

func TestPortOptions(t *testing.T) {
	_, err := PortOptions{}.Normalize()
	assert.Error(t, err, "path is required")

	opts, err := PortOptions{Path: "/dev/ttyAMA0"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{Path: "/dev/ttyAMA0", BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}, opts)

	mode, err := PortOptions{Path: "/dev/ttyUSB0", StopBits: 2, Parity: "even"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.EvenParity, mode.Parity)

	mode, err = PortOptions{Path: "/dev/ttyUSB0"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)

	for _, bad := range []PortOptions{
		{Path: "/dev/x", DataBits: 9},
		{Path: "/dev/x", StopBits: 3},
		{Path: "/dev/x", Parity: "mark"},
	} {
		_, err := bad.Normalize()
		assert.Error(t, err, "%+v", bad)
	}
}
