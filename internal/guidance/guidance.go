// Package guidance computes the gravity-turn command: a base pitch and
// throttle from an altitude ladder, a pitch correction driven by apoapsis and
// time to apoapsis, and a throttle override for burst and coast.
package guidance

import (
	"fmt"
	"math"
	"time"

	"github.com/star/ascent/internal/flight"
	"github.com/star/ascent/internal/ladder"
)

// Setpoint is a base pitch (deg) and throttle pair.
type Setpoint struct {
	Pitch    float64
	Throttle float64
}

// AscentLadder is the reference altitude-keyed setpoint table.
var AscentLadder = ladder.Must(Setpoint{Pitch: 5, Throttle: 0.3},
	ladder.Band[Setpoint]{Below: 30000, Value: Setpoint{Pitch: 70, Throttle: 1.0}},
	ladder.Band[Setpoint]{Below: 40000, Value: Setpoint{Pitch: 60, Throttle: 0.9}},
	ladder.Band[Setpoint]{Below: 50000, Value: Setpoint{Pitch: 45, Throttle: 0.7}},
	ladder.Band[Setpoint]{Below: 76000, Value: Setpoint{Pitch: 35, Throttle: 0.7}},
)

// Config holds the law's thresholds. The defaults are hand-tuned against the
// reference vehicle.
type Config struct {
	TargetApoapsis float64 // m, apoapsis the correction steers toward
	Ladder         ladder.Ladder[Setpoint]
	HeadingDeg     float64       // (default: 90)
	BaseTick       time.Duration // (default: 2s)
	BurstHold      time.Duration // extra wait after a burst (default: 3s)
	PitchStep      float64       // correction size, deg (default: 10)
	RaiseWithin    float64       // s to apoapsis under which a low apoapsis raises pitch (default: 20)
	LowerWithin    float64       // s to apoapsis under which a high apoapsis lowers pitch (default: 40)
	CoastAfter     float64       // s to apoapsis above which coasting is allowed (default: 60)
	CoastAltitude  float64       // m above which CoastAfter applies (default: 30000)
	SpeedLimit     float64       // m/s separating burst from coast (default: 1800)
	BurstThrottle  float64       // (default: 1.0)
	CoastThrottle  float64       // (default: 0.1)
}

// DefaultConfig returns the reference law for a target apoapsis.
func DefaultConfig(target float64) Config {
	return Config{
		TargetApoapsis: target,
		Ladder:         AscentLadder,
		HeadingDeg:     90,
		BaseTick:       2 * time.Second,
		BurstHold:      3 * time.Second,
		PitchStep:      10,
		RaiseWithin:    20,
		LowerWithin:    40,
		CoastAfter:     60,
		CoastAltitude:  30000,
		SpeedLimit:     1800,
		BurstThrottle:  1.0,
		CoastThrottle:  0.1,
	}
}

// Input is the telemetry one decision reads.
type Input struct {
	Altitude       float64
	Apoapsis       float64
	TimeToApoapsis float64
	Speed          float64
}

// Mode names the throttle branch taken.
type Mode string

const (
	ModeLadder Mode = "ladder"
	ModeBurst  Mode = "burst"
	ModeCoast  Mode = "coast"
)

// Decision is the command for one tick and the wait before the next.
type Decision struct {
	Command flight.Command
	Delay   time.Duration
	Mode    Mode
}

// Law is a configured guidance law. It holds no state between calls.
type Law struct {
	cfg Config
}

// New validates cfg.
func New(cfg Config) (*Law, error) {
	if !(cfg.TargetApoapsis > 0) {
		return nil, flight.InvalidConfigf("guidance target apoapsis must be positive, got %g", cfg.TargetApoapsis)
	}
	if cfg.BaseTick <= 0 {
		return nil, flight.InvalidConfigf("tick interval must be positive, got %s", cfg.BaseTick)
	}
	if cfg.BurstHold < 0 {
		return nil, flight.InvalidConfigf("burst hold must not be negative, got %s", cfg.BurstHold)
	}
	if err := cfg.Ladder.Validate(); err != nil {
		return nil, flight.InvalidConfigf("guidance ladder: %v", err)
	}
	for _, th := range []float64{cfg.BurstThrottle, cfg.CoastThrottle, cfg.Ladder.Above.Throttle} {
		if th < 0 || th > 1 {
			return nil, flight.InvalidConfigf("throttle %g outside [0, 1]", th)
		}
	}
	for _, b := range cfg.Ladder.Bands {
		if b.Value.Throttle < 0 || b.Value.Throttle > 1 {
			return nil, flight.InvalidConfigf("ladder throttle %g outside [0, 1]", b.Value.Throttle)
		}
	}
	return &Law{cfg: cfg}, nil
}

// Config returns the law's configuration.
func (l *Law) Config() Config { return l.cfg }

// Decide computes the command for in. Non-finite input is an error and no
// command is produced.
func (l *Law) Decide(in Input) (Decision, error) {
	for _, f := range [...]struct {
		name string
		v    float64
	}{
		{"altitude", in.Altitude},
		{"apoapsis", in.Apoapsis},
		{"time to apoapsis", in.TimeToApoapsis},
		{"speed", in.Speed},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return Decision{}, fmt.Errorf("guidance input %s is not finite: %v", f.name, f.v)
		}
	}

	c := l.cfg
	base := c.Ladder.Lookup(in.Altitude)

	pitch := base.Pitch
	switch {
	case in.TimeToApoapsis < c.RaiseWithin && in.Apoapsis < c.TargetApoapsis:
		pitch += c.PitchStep
	case in.TimeToApoapsis < c.LowerWithin && in.Apoapsis > c.TargetApoapsis:
		pitch -= c.PitchStep
	}
	pitch = math.Max(0, math.Min(90, pitch))

	d := Decision{Delay: c.BaseTick, Mode: ModeLadder}
	throttle := base.Throttle
	switch {
	case in.TimeToApoapsis < c.RaiseWithin && in.Speed < c.SpeedLimit:
		throttle = c.BurstThrottle
		d.Delay += c.BurstHold
		d.Mode = ModeBurst
	case (in.TimeToApoapsis > c.CoastAfter && in.Altitude > c.CoastAltitude) ||
		(in.Speed > c.SpeedLimit && in.TimeToApoapsis > c.LowerWithin):
		throttle = c.CoastThrottle
		d.Mode = ModeCoast
	}

	d.Command = flight.Command{
		PitchDeg:   pitch,
		HeadingDeg: c.HeadingDeg,
		Throttle:   throttle,
	}
	return d, nil
}
