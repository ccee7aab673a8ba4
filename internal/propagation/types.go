// Package propagation runs SGP4 for catalog satellites and turns the output
// into observer-relative trajectory points and geodetic sub-points.
package propagation

import "time"

// Config holds propagation settings loaded from environment variables.
type Config struct {
	Workers int           // worker pool size (default: runtime.NumCPU())
	Step    time.Duration // default trajectory sampling step (default: 10s)
}

// BatchStats summarizes one worker-pool batch.
type BatchStats struct {
	Success  int
	Errors   int
	Duration time.Duration
}
