// Package staging sequences the ascent phases. The sequencer only ever moves
// forward: each call checks the exit predicate of the current phase and
// advances by at most one phase, so a stale reading that would satisfy an
// earlier phase's predicate has no effect.
package staging

import (
	"fmt"
	"math"

	"github.com/star/ascent/internal/flight"
)

// Phase is a flight phase.
type Phase int

const (
	SRBAscent Phase = iota
	GravityTurn
	Cutoff
)

func (p Phase) String() string {
	switch p {
	case SRBAscent:
		return "SRB_ASCENT"
	case GravityTurn:
		return "GRAVITY_TURN"
	case Cutoff:
		return "CUTOFF"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Config holds the phase thresholds.
type Config struct {
	TargetApoapsis   float64 // m; GRAVITY_TURN ends at or above it
	BoosterThreshold float64 // booster propellant at or below which SRB_ASCENT ends (default: 1.0)
	YawAltitude      float64 // m; booster yaw turns on at or above it (default: 3000)
	BoosterYaw       float64 // yaw input above YawAltitude (default: 1.0)
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		TargetApoapsis:   100000,
		BoosterThreshold: 1.0,
		YawAltitude:      3000,
		BoosterYaw:       1.0,
	}
}

// Observation is the subset of telemetry the predicates read.
type Observation struct {
	BoosterPropellant float64
	Apoapsis          float64
}

// Transition describes the result of one Advance call.
type Transition struct {
	From, To Phase
}

// Changed reports whether the phase moved.
func (t Transition) Changed() bool { return t.From != t.To }

// Sequencer is the phase state machine. It is not safe for concurrent use.
type Sequencer struct {
	cfg   Config
	phase Phase
}

// NewSequencer starts a sequencer in SRB_ASCENT.
func NewSequencer(cfg Config) (*Sequencer, error) {
	if !(cfg.TargetApoapsis > 0) || math.IsInf(cfg.TargetApoapsis, 0) {
		return nil, flight.InvalidConfigf("target apoapsis must be positive and finite, got %g", cfg.TargetApoapsis)
	}
	if cfg.BoosterThreshold < 0 || math.IsNaN(cfg.BoosterThreshold) {
		return nil, flight.InvalidConfigf("booster threshold must not be negative, got %g", cfg.BoosterThreshold)
	}
	if cfg.BoosterYaw < -1 || cfg.BoosterYaw > 1 || math.IsNaN(cfg.BoosterYaw) {
		return nil, flight.InvalidConfigf("booster yaw %g outside [-1, 1]", cfg.BoosterYaw)
	}
	if math.IsNaN(cfg.YawAltitude) {
		return nil, flight.InvalidConfigf("yaw altitude is NaN")
	}
	return &Sequencer{cfg: cfg, phase: SRBAscent}, nil
}

// Phase returns the current phase.
func (s *Sequencer) Phase() Phase { return s.phase }

// Config returns the thresholds in use.
func (s *Sequencer) Config() Config { return s.cfg }

// Advance evaluates the current phase's exit predicate. Only the field the
// current phase reads must be finite.
func (s *Sequencer) Advance(obs Observation) (Transition, error) {
	t := Transition{From: s.phase, To: s.phase}

	switch s.phase {
	case SRBAscent:
		if err := finite("booster propellant", obs.BoosterPropellant); err != nil {
			return t, err
		}
		if obs.BoosterPropellant <= s.cfg.BoosterThreshold {
			s.phase = GravityTurn
		}
	case GravityTurn:
		if err := finite("apoapsis", obs.Apoapsis); err != nil {
			return t, err
		}
		if obs.Apoapsis >= s.cfg.TargetApoapsis {
			s.phase = Cutoff
		}
	}

	t.To = s.phase
	return t, nil
}

// BoosterYaw returns the scripted yaw input for SRB_ASCENT at altitude h.
func (s *Sequencer) BoosterYaw(h float64) (float64, error) {
	if err := finite("altitude", h); err != nil {
		return 0, err
	}
	if h < s.cfg.YawAltitude {
		return 0, nil
	}
	return s.cfg.BoosterYaw, nil
}

func finite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s is not finite: %v", name, v)
	}
	return nil
}
