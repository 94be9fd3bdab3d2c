// Package vehicle holds the point-mass vehicle model: staged mass and thrust
// as functions of mission time, and gravity, air density and the commanded
// thrust angle as functions of altitude.
//
// Every parameter lives in an immutable Config passed to NewModel, so several
// models with different constants can be evaluated side by side.
package vehicle

import (
	"math"

	"github.com/star/ascent/internal/flight"
	"github.com/star/ascent/internal/ladder"
)

// Body is the gravity model of the central body.
type Body struct {
	Name   string
	Mu     float64 // gravitational parameter, m^3/s^2
	Radius float64 // mean radius, m
}

// Atmosphere is an exponential density profile.
type Atmosphere struct {
	SeaLevelDensity float64 // kg/m^3
	ScaleHeight     float64 // m
}

// Aero holds the quadratic drag parameters.
type Aero struct {
	DragCoefficient float64
	ReferenceArea   float64 // m^2
}

// Stage describes one propulsive stage. Stages burn one after another in
// slice order; every stage except the last is jettisoned at the end of its
// burn window.
type Stage struct {
	Name           string
	DryMass        float64 // kg, structure left after the burn
	PropellantMass float64 // kg
	BurnDuration   float64 // s
	Isp            float64 // s
}

// Thrust returns the constant thrust over the burn window, derived from the
// stage impulse budget.
func (s Stage) Thrust(g0 float64) float64 {
	return s.PropellantMass * g0 * s.Isp / s.BurnDuration
}

// FlowRate returns the propellant mass flow during the burn, kg/s.
func (s Stage) FlowRate() float64 {
	return s.PropellantMass / s.BurnDuration
}

// Config is the complete, read-only parameter set of a vehicle model.
type Config struct {
	Body       Body
	Atmosphere Atmosphere
	Aero       Aero
	G0         float64 // standard gravity used for Isp, m/s^2
	Payload    float64 // kg carried above the last stage
	Stages     []Stage

	// PitchProgram maps altitude (m) to the commanded thrust angle above
	// the horizon (deg). Zero value means AscentPitchProgram.
	PitchProgram ladder.Ladder[float64]
}

// AscentPitchProgram is the reference altitude-keyed pitch schedule.
var AscentPitchProgram = ladder.Must(0.0,
	ladder.Band[float64]{Below: 15000, Value: 90},
	ladder.Band[float64]{Below: 30000, Value: 85},
	ladder.Band[float64]{Below: 40000, Value: 70},
	ladder.Band[float64]{Below: 50000, Value: 60},
	ladder.Band[float64]{Below: 60000, Value: 45},
	ladder.Band[float64]{Below: 70000, Value: 35},
	ladder.Band[float64]{Below: 80000, Value: 20},
)

// Reference returns the reference two-stage mission: nine solid boosters
// around a liquid core, launched from Kerbin.
func Reference() Config {
	return Config{
		Body: Body{
			Name:   "Kerbin",
			Mu:     3.53e12,
			Radius: 600000,
		},
		Atmosphere: Atmosphere{
			SeaLevelDensity: 1.225,
			ScaleHeight:     5600,
		},
		Aero: Aero{
			DragCoefficient: 0.3,
			ReferenceArea:   3.1416 * math.Pow(1.5/2, 2),
		},
		G0:      9.81,
		Payload: 2760,
		Stages: []Stage{
			{
				Name:           "srb",
				DryMass:        1899,
				PropellantMass: 18215,
				BurnDuration:   60,
				Isp:            245,
			},
			{
				// Post-booster stack 32700 = 4199 dry + 25741 propellant + payload.
				Name:           "core",
				DryMass:        4199,
				PropellantMass: 25741,
				BurnDuration:   300,
				Isp:            270,
			},
		},
		PitchProgram: AscentPitchProgram,
	}
}

// Validate rejects configurations the model cannot evaluate.
func (c Config) Validate() error {
	if c.Body.Mu <= 0 {
		return flight.InvalidConfigf("body gravitational parameter must be positive, got %g", c.Body.Mu)
	}
	if c.Body.Radius <= 0 {
		return flight.InvalidConfigf("body radius must be positive, got %g", c.Body.Radius)
	}
	if c.Atmosphere.SeaLevelDensity < 0 {
		return flight.InvalidConfigf("sea level density must not be negative, got %g", c.Atmosphere.SeaLevelDensity)
	}
	if c.Atmosphere.ScaleHeight <= 0 {
		return flight.InvalidConfigf("scale height must be positive, got %g", c.Atmosphere.ScaleHeight)
	}
	if c.Aero.DragCoefficient < 0 || c.Aero.ReferenceArea < 0 {
		return flight.InvalidConfigf("drag coefficient and reference area must not be negative")
	}
	if c.G0 <= 0 {
		return flight.InvalidConfigf("g0 must be positive, got %g", c.G0)
	}
	if c.Payload < 0 {
		return flight.InvalidConfigf("payload must not be negative, got %g", c.Payload)
	}
	if len(c.Stages) == 0 {
		return flight.InvalidConfigf("at least one stage is required")
	}
	for i, s := range c.Stages {
		if !(s.BurnDuration > 0) {
			return flight.InvalidConfigf("stage %d (%s): burn duration must be positive, got %g", i, s.Name, s.BurnDuration)
		}
		if s.PropellantMass < 0 {
			return flight.InvalidConfigf("stage %d (%s): propellant mass must not be negative, got %g", i, s.Name, s.PropellantMass)
		}
		if s.DryMass < 0 {
			return flight.InvalidConfigf("stage %d (%s): dry mass must not be negative, got %g", i, s.Name, s.DryMass)
		}
		if s.Isp < 0 {
			return flight.InvalidConfigf("stage %d (%s): specific impulse must not be negative, got %g", i, s.Name, s.Isp)
		}
	}
	last := c.Stages[len(c.Stages)-1]
	if last.DryMass+c.Payload <= 0 {
		return flight.InvalidConfigf("burnout mass must be positive")
	}
	if err := c.PitchProgram.Validate(); err != nil {
		return flight.InvalidConfigf("pitch program: %v", err)
	}
	return nil
}
