// Package flight defines the contract between the ascent controller and the
// vehicle it flies: the capability interface, the command it issues, and the
// error kinds shared across the controller and its adapters.
package flight

import (
	"context"
	"fmt"
	"math"

	"github.com/star/ascent/internal/telemetry"
)

// Propellant names a resource pool the controller watches.
type Propellant string

const (
	// SolidFuel is the booster propellant.
	SolidFuel Propellant = "SolidFuel"
	// LiquidFuel is the core stage propellant.
	LiquidFuel Propellant = "LiquidFuel"
)

// Command is one attitude and throttle request.
//
// Yaw is a normalized control-surface input in [-1, 1], not an angle; the
// booster phase uses it as a scripted turn input.
type Command struct {
	PitchDeg   float64 `json:"pitch_deg"`
	HeadingDeg float64 `json:"heading_deg"`
	Throttle   float64 `json:"throttle"`
	Yaw        float64 `json:"yaw"`
}

// Validate checks the command ranges before it reaches the vehicle.
func (c Command) Validate() error {
	for _, v := range [...]float64{c.PitchDeg, c.HeadingDeg, c.Throttle, c.Yaw} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("command has non-finite field: %+v", c)
		}
	}
	if c.PitchDeg < 0 || c.PitchDeg > 90 {
		return fmt.Errorf("pitch %g outside [0, 90]", c.PitchDeg)
	}
	if c.Throttle < 0 || c.Throttle > 1 {
		return fmt.Errorf("throttle %g outside [0, 1]", c.Throttle)
	}
	if c.Yaw < -1 || c.Yaw > 1 {
		return fmt.Errorf("yaw %g outside [-1, 1]", c.Yaw)
	}
	return nil
}

// Elements are the orbital quantities guidance reads each tick.
type Elements struct {
	Apoapsis       float64 `json:"apoapsis"`         // m above the surface
	Periapsis      float64 `json:"periapsis"`        // m above the surface
	TimeToApoapsis float64 `json:"time_to_apoapsis"` // s
}

// Vehicle is the capability the controller flies. Every method may block on
// the connection to the vehicle and must honour ctx. Failures wrap
// ErrTelemetryUnavailable.
type Vehicle interface {
	// ReadSample returns the current telemetry reading.
	ReadSample(ctx context.Context) (telemetry.Sample, error)

	// IssueCommand applies pitch, heading, throttle and yaw.
	IssueCommand(ctx context.Context, cmd Command) error

	// SetAttitude retargets the attitude hold without touching the throttle.
	SetAttitude(ctx context.Context, pitchDeg, headingDeg float64) error

	// SetThrottle changes only the throttle.
	SetThrottle(ctx context.Context, throttle float64) error

	// SetYaw changes only the yaw input.
	SetYaw(ctx context.Context, yaw float64) error

	// EngageAutopilot engages attitude hold along surface prograde.
	EngageAutopilot(ctx context.Context) error

	// ActivateNextStage fires the next staging event. Not idempotent.
	ActivateNextStage(ctx context.Context) error

	// RemainingPropellant returns the amount left in the current stage.
	RemainingPropellant(ctx context.Context, kind Propellant) (float64, error)

	// OrbitalElements returns the current orbit.
	OrbitalElements(ctx context.Context) (Elements, error)
}
