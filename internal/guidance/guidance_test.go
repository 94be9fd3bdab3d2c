package guidance

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/star/ascent/internal/flight"
	"github.com/star/ascent/internal/ladder"
)

func referenceLaw(t *testing.T) *Law {
	t.Helper()
	l, err := New(DefaultConfig(100000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

// TestReferenceBurst is the worked example: a low apoapsis close ahead at
// 45 km raises pitch and fires a burst.
func TestReferenceBurst(t *testing.T) {
	l := referenceLaw(t)
	d, err := l.Decide(Input{Altitude: 45000, Apoapsis: 85000, TimeToApoapsis: 15, Speed: 1500})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Command.PitchDeg != 55 {
		t.Errorf("pitch = %v, want 55", d.Command.PitchDeg)
	}
	if d.Command.Throttle != 1.0 {
		t.Errorf("throttle = %v, want 1.0", d.Command.Throttle)
	}
	if d.Delay != 5*time.Second {
		t.Errorf("delay = %v, want 5s", d.Delay)
	}
	if d.Command.HeadingDeg != 90 {
		t.Errorf("heading = %v, want 90", d.Command.HeadingDeg)
	}
	if d.Mode != ModeBurst {
		t.Errorf("mode = %v, want burst", d.Mode)
	}
}

func TestDecideBranches(t *testing.T) {
	l := referenceLaw(t)

	tests := []struct {
		name     string
		in       Input
		pitch    float64
		throttle float64
		delay    time.Duration
		mode     Mode
	}{
		{
			name:  "ladder low band",
			in:    Input{Altitude: 20000, Apoapsis: 40000, TimeToApoapsis: 45, Speed: 900},
			pitch: 70, throttle: 1.0, delay: 2 * time.Second, mode: ModeLadder,
		},
		{
			name:  "band edge 30000",
			in:    Input{Altitude: 30000, Apoapsis: 60000, TimeToApoapsis: 50, Speed: 1000},
			pitch: 60, throttle: 0.9, delay: 2 * time.Second, mode: ModeLadder,
		},
		{
			name:  "band edge 76000",
			in:    Input{Altitude: 76000, Apoapsis: 100000, TimeToApoapsis: 50, Speed: 1700},
			pitch: 5, throttle: 0.3, delay: 2 * time.Second, mode: ModeLadder,
		},
		{
			name:  "high apoapsis lowers pitch",
			in:    Input{Altitude: 55000, Apoapsis: 110000, TimeToApoapsis: 30, Speed: 1600},
			pitch: 25, throttle: 0.7, delay: 2 * time.Second, mode: ModeLadder,
		},
		{
			name:  "coast on long time to apoapsis",
			in:    Input{Altitude: 35000, Apoapsis: 70000, TimeToApoapsis: 61, Speed: 1200},
			pitch: 60, throttle: 0.1, delay: 2 * time.Second, mode: ModeCoast,
		},
		{
			name:  "coast on high speed",
			in:    Input{Altitude: 20000, Apoapsis: 70000, TimeToApoapsis: 41, Speed: 1801},
			pitch: 70, throttle: 0.1, delay: 2 * time.Second, mode: ModeCoast,
		},
		{
			name:  "no coast below coast altitude",
			in:    Input{Altitude: 29000, Apoapsis: 70000, TimeToApoapsis: 90, Speed: 1000},
			pitch: 70, throttle: 1.0, delay: 2 * time.Second, mode: ModeLadder,
		},
		{
			name:  "fast but apoapsis close: no burst",
			in:    Input{Altitude: 60000, Apoapsis: 95000, TimeToApoapsis: 10, Speed: 1900},
			pitch: 45, throttle: 0.7, delay: 2 * time.Second, mode: ModeLadder,
		},
		{
			name:  "exactly at target: no correction",
			in:    Input{Altitude: 60000, Apoapsis: 100000, TimeToApoapsis: 30, Speed: 1900},
			pitch: 35, throttle: 0.7, delay: 2 * time.Second, mode: ModeLadder,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := l.Decide(tt.in)
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if d.Command.PitchDeg != tt.pitch || d.Command.Throttle != tt.throttle || d.Delay != tt.delay || d.Mode != tt.mode {
				t.Errorf("Decide = (pitch %v, throttle %v, delay %v, %s), want (%v, %v, %v, %s)",
					d.Command.PitchDeg, d.Command.Throttle, d.Delay, d.Mode,
					tt.pitch, tt.throttle, tt.delay, tt.mode)
			}
		})
	}
}

// TestPitchClamp drives the correction past both ends of [0, 90].
func TestPitchClamp(t *testing.T) {
	cfg := DefaultConfig(100000)
	cfg.PitchStep = 50
	cfg.Ladder = ladder.Must(Setpoint{Pitch: 5, Throttle: 0.3},
		ladder.Band[Setpoint]{Below: 30000, Value: Setpoint{Pitch: 85, Throttle: 1}},
	)
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, tta := range []float64{-1e9, -5, 0, 10, 19.99, 20, 39.99, 40, 60, 1e9} {
		for _, apo := range []float64{-1e9, 0, 99999, 100000, 100001, 1e9} {
			for _, h := range []float64{-100, 0, 29999, 30000, 1e7} {
				for _, spd := range []float64{0, 1799, 1800, 1801, 1e6} {
					d, err := l.Decide(Input{Altitude: h, Apoapsis: apo, TimeToApoapsis: tta, Speed: spd})
					if err != nil {
						t.Fatalf("Decide: %v", err)
					}
					if d.Command.PitchDeg < 0 || d.Command.PitchDeg > 90 {
						t.Fatalf("pitch %v out of range for h=%v apo=%v tta=%v spd=%v",
							d.Command.PitchDeg, h, apo, tta, spd)
					}
					if err := d.Command.Validate(); err != nil {
						t.Fatalf("invalid command: %v", err)
					}
				}
			}
		}
	}

	d, _ := l.Decide(Input{Altitude: 0, Apoapsis: 0, TimeToApoapsis: 0, Speed: 0})
	if d.Command.PitchDeg != 90 {
		t.Errorf("upper clamp: pitch = %v, want 90", d.Command.PitchDeg)
	}
	d, _ = l.Decide(Input{Altitude: 90000, Apoapsis: 2e5, TimeToApoapsis: 30, Speed: 0})
	if d.Command.PitchDeg != 0 {
		t.Errorf("lower clamp: pitch = %v, want 0", d.Command.PitchDeg)
	}
}

func TestDecideRejectsNonFinite(t *testing.T) {
	l := referenceLaw(t)
	bad := []Input{
		{Altitude: math.NaN()},
		{Apoapsis: math.Inf(1)},
		{TimeToApoapsis: math.NaN()},
		{Speed: math.Inf(-1)},
	}
	for _, in := range bad {
		if d, err := l.Decide(in); err == nil {
			t.Errorf("Decide(%+v) = %+v, want error", in, d)
		}
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero target", func(c *Config) { c.TargetApoapsis = 0 }},
		{"zero tick", func(c *Config) { c.BaseTick = 0 }},
		{"negative hold", func(c *Config) { c.BurstHold = -time.Second }},
		{"burst throttle", func(c *Config) { c.BurstThrottle = 1.5 }},
		{"ladder throttle", func(c *Config) {
			c.Ladder = ladder.Ladder[Setpoint]{Bands: []ladder.Band[Setpoint]{{Below: 1, Value: Setpoint{Throttle: -1}}}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(100000)
			tt.mutate(&cfg)
			if _, err := New(cfg); !errors.Is(err, flight.ErrInvalidConfig) {
				t.Errorf("New error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
