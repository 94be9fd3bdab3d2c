package control

import (
	"time"

	"github.com/star/ascent/internal/flight"
	"github.com/star/ascent/internal/staging"
	"github.com/star/ascent/internal/telemetry"
)

// State is the lifecycle of a controller run.
type State string

const (
	StatePending  State = "pending"
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateAborted  State = "aborted"
	StateFailed   State = "failed" // rejected before liftoff
)

// Status is a snapshot of the flight for the monitoring API.
type Status struct {
	FlightID    string            `json:"flight_id"`
	State       State             `json:"state"`
	Phase       staging.Phase     `json:"phase"`
	StartedAt   time.Time         `json:"started_at"`
	Ticks       int               `json:"ticks"`
	LastSample  *telemetry.Sample `json:"last_sample,omitempty"`
	LastCommand *flight.Command   `json:"last_command,omitempty"`
	Orbit       *flight.Elements  `json:"orbit,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Done reports whether the run has ended.
func (s Status) Done() bool {
	return s.State == StateComplete || s.State == StateAborted || s.State == StateFailed
}
