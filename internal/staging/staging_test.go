package staging

import (
	"errors"
	"math"
	"testing"

	"github.com/star/ascent/internal/flight"
)

func newSequencer(t *testing.T) *Sequencer {
	t.Helper()
	s, err := NewSequencer(DefaultConfig())
	if err != nil {
		t.Fatalf("NewSequencer: %v", err)
	}
	return s
}

func TestFullProgression(t *testing.T) {
	s := newSequencer(t)
	if s.Phase() != SRBAscent {
		t.Fatalf("initial phase = %v, want SRB_ASCENT", s.Phase())
	}

	steps := []struct {
		obs  Observation
		want Phase
	}{
		{Observation{BoosterPropellant: 18000}, SRBAscent},
		{Observation{BoosterPropellant: 1.0001}, SRBAscent},
		{Observation{BoosterPropellant: 1.0}, GravityTurn},
		{Observation{Apoapsis: 50000}, GravityTurn},
		{Observation{Apoapsis: 99999.9}, GravityTurn},
		{Observation{Apoapsis: 100000}, Cutoff},
		{Observation{Apoapsis: 0, BoosterPropellant: 1e6}, Cutoff},
	}
	for i, st := range steps {
		tr, err := s.Advance(st.obs)
		if err != nil {
			t.Fatalf("step %d: Advance: %v", i, err)
		}
		if tr.To != st.want || s.Phase() != st.want {
			t.Errorf("step %d: phase = %v, want %v", i, s.Phase(), st.want)
		}
	}
}

// TestNoRegression feeds readings that satisfy earlier phases' predicates
// after the sequencer has moved on.
func TestNoRegression(t *testing.T) {
	s := newSequencer(t)
	if _, err := s.Advance(Observation{BoosterPropellant: 0}); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	// Spurious booster reading with propellant back above threshold.
	tr, err := s.Advance(Observation{BoosterPropellant: 5000, Apoapsis: 20000})
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if tr.Changed() || s.Phase() != GravityTurn {
		t.Errorf("phase = %v after spurious booster reading, want GRAVITY_TURN", s.Phase())
	}

	if _, err := s.Advance(Observation{Apoapsis: 120000}); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	for _, obs := range []Observation{{BoosterPropellant: 5000}, {Apoapsis: 1000}, {}} {
		if _, err := s.Advance(obs); err != nil {
			t.Fatalf("Advance: %v", err)
		}
		if s.Phase() != Cutoff {
			t.Fatalf("phase = %v after %+v, want CUTOFF", s.Phase(), obs)
		}
	}
}

func TestAdvanceMovesOneStepAtATime(t *testing.T) {
	s := newSequencer(t)
	tr, err := s.Advance(Observation{BoosterPropellant: 0, Apoapsis: 200000})
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if tr.From != SRBAscent || tr.To != GravityTurn {
		t.Errorf("transition = %v -> %v, want SRB_ASCENT -> GRAVITY_TURN", tr.From, tr.To)
	}
}

func TestAdvanceRejectsNonFinite(t *testing.T) {
	s := newSequencer(t)
	if _, err := s.Advance(Observation{BoosterPropellant: math.NaN()}); err == nil {
		t.Error("expected error for NaN booster propellant")
	}
	if s.Phase() != SRBAscent {
		t.Errorf("phase = %v after rejected reading, want SRB_ASCENT", s.Phase())
	}

	// Only the field of the current phase is checked.
	if _, err := s.Advance(Observation{BoosterPropellant: 0, Apoapsis: math.NaN()}); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if _, err := s.Advance(Observation{Apoapsis: math.Inf(1)}); err == nil {
		t.Error("expected error for infinite apoapsis")
	}
}

func TestBoosterYaw(t *testing.T) {
	s := newSequencer(t)
	tests := []struct {
		h    float64
		want float64
	}{
		{0, 0},
		{2999.99, 0},
		{3000, 1},
		{45000, 1},
	}
	for _, tt := range tests {
		got, err := s.BoosterYaw(tt.h)
		if err != nil {
			t.Fatalf("BoosterYaw(%v): %v", tt.h, err)
		}
		if got != tt.want {
			t.Errorf("BoosterYaw(%v) = %v, want %v", tt.h, got, tt.want)
		}
	}
	if _, err := s.BoosterYaw(math.NaN()); err == nil {
		t.Error("expected error for NaN altitude")
	}
}

func TestNewSequencerValidation(t *testing.T) {
	bad := []Config{
		{TargetApoapsis: 0, BoosterYaw: 1},
		{TargetApoapsis: math.Inf(1)},
		{TargetApoapsis: 1, BoosterThreshold: -1},
		{TargetApoapsis: 1, BoosterYaw: 2},
	}
	for _, cfg := range bad {
		if _, err := NewSequencer(cfg); !errors.Is(err, flight.ErrInvalidConfig) {
			t.Errorf("NewSequencer(%+v) error = %v, want ErrInvalidConfig", cfg, err)
		}
	}
}

func TestPhaseString(t *testing.T) {
	if got, _ := GravityTurn.MarshalText(); string(got) != "GRAVITY_TURN" {
		t.Errorf("MarshalText = %s, want GRAVITY_TURN", got)
	}
	if got := Phase(9).String(); got != "Phase(9)" {
		t.Errorf("String = %s, want Phase(9)", got)
	}
}
