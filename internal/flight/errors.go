package flight

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds shared by the controller, the vehicle adapters and the
// configuration layer. Callers test for them with errors.Is.
var (
	// ErrTelemetryUnavailable indicates the vehicle capability failed to
	// answer a read or accept a command.
	ErrTelemetryUnavailable = errors.New("telemetry unavailable")

	// ErrInvalidConfig indicates a configuration rejected before flight.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissionAbort indicates the controller gave up on the ascent.
	ErrMissionAbort = errors.New("mission abort")
)

// InvalidConfigf returns an ErrInvalidConfig-wrapped error.
func InvalidConfigf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// AbortError records why and when the control loop stopped early.
type AbortError struct {
	Phase       string
	MissionTime float64 // seconds, last sampled mission time (0 if none)
	Elapsed     time.Duration
	Err         error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("mission abort in %s at T+%.2fs: %v", e.Phase, e.MissionTime, e.Err)
}

// Unwrap exposes both ErrMissionAbort and the underlying cause.
func (e *AbortError) Unwrap() []error {
	return []error{ErrMissionAbort, e.Err}
}
