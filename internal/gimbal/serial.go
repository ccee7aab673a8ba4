package gimbal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// SerialName is the controller name for the serial-attached mount.
const SerialName = "serial"

// cmdGimbalCtrl is the pan-tilt driver board's absolute-position command.
const cmdGimbalCtrl = 133

// PortOptions describes the serial connection parameters.
type PortOptions struct {
	Path     string `json:"path"`
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options and applies defaults (115200 8N1).
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if strings.TrimSpace(opts.Path) == "" {
		return opts, fmt.Errorf("serial port path is required")
	}
	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	return opts, nil
}

// SerialMode converts the options into the go.bug.st/serial mode.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}
	return mode, nil
}

// wireCommand is one JSON line understood by the driver board. Field order
// matches the board's documentation.
type wireCommand struct {
	T   int     `json:"T"`
	X   float64 `json:"X"`
	Y   float64 `json:"Y"`
	SPD int     `json:"SPD"`
	ACC int     `json:"ACC"`
}

// Serial writes newline-terminated JSON commands to the mount.
type Serial struct {
	mu   sync.Mutex
	port io.WriteCloser
}

// OpenSerial opens the port described by opts.
func OpenSerial(opts PortOptions) (*Serial, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(opts.Path, mode)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", opts.Path, err)
	}
	return NewSerial(port), nil
}

// NewSerial wraps an already-open port.
func NewSerial(port io.WriteCloser) *Serial {
	return &Serial{port: port}
}

func (s *Serial) Point(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(wireCommand{
		T:   cmdGimbalCtrl,
		X:   cmd.AzimuthDeg,
		Y:   cmd.ElevationDeg,
		SPD: cmd.Speed,
		ACC: cmd.Accel,
	})
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.port.Write(line); err != nil {
		return fmt.Errorf("writing command: %w", err)
	}
	return nil
}

func (s *Serial) Name() string { return SerialName }

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}
