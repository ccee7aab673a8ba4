package gimbal

import (
	"context"
	"log/slog"
	"sync"
)

// SimulatedName is the controller name reported when no hardware is attached.
const SimulatedName = "simulated"

// Simulated accepts every command and keeps a history for inspection.
type Simulated struct {
	logger *slog.Logger

	mu       sync.Mutex
	commands []Command
}

// NewSimulated returns a controller that only logs.
func NewSimulated(logger *slog.Logger) *Simulated {
	return &Simulated{logger: logger}
}

func (s *Simulated) Point(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
	s.logger.Debug("simulated gimbal command",
		"component", "gimbal",
		"azimuth", cmd.AzimuthDeg,
		"elevation", cmd.ElevationDeg,
	)
	return nil
}

func (s *Simulated) Name() string { return SimulatedName }

func (s *Simulated) Close() error { return nil }

// Commands returns a copy of every command received.
func (s *Simulated) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.commands...)
}
