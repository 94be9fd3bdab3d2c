package dynamics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

// stubModel is a constant-coefficient model for exercising the equations.
type stubModel struct {
	mass, thrust, g, rho, angle, drag float64
}

func (s stubModel) Mass(float64) float64           { return s.mass }
func (s stubModel) Thrust(float64) float64         { return s.thrust }
func (s stubModel) Gravity(float64) float64        { return s.g }
func (s stubModel) Density(float64) float64        { return s.rho }
func (s stubModel) CommandedAngle(float64) float64 { return s.angle }
func (s stubModel) DragFactor() float64            { return s.drag }

func TestDerivativeAtRestHasNoDrag(t *testing.T) {
	m := stubModel{mass: 100, thrust: 2000, g: 10, rho: 1, angle: 90, drag: 5}
	d := Derivative(m, 0, State{})

	if !scalar.EqualWithinAbs(d.VX, 0, 1e-9) {
		t.Errorf("dvx = %v, want 0", d.VX)
	}
	if !scalar.EqualWithinAbs(d.VY, 10, 1e-9) {
		t.Errorf("dvy = %v, want 10", d.VY)
	}
	if d.X != 0 || d.H != 0 {
		t.Errorf("dx, dh = %v, %v, want 0, 0", d.X, d.H)
	}
}

func TestDerivativeDragOpposesVelocity(t *testing.T) {
	m := stubModel{mass: 2, g: 0, rho: 1, drag: 0.5}
	s := State{VX: 3, VY: 4}
	d := Derivative(m, 0, s)

	// |D| = 0.5 * 1 * 25 = 12.5, split 3:4 against the velocity, over 2 kg.
	if !scalar.EqualWithinAbs(d.VX, -12.5*0.6/2, 1e-12) {
		t.Errorf("dvx = %v, want %v", d.VX, -12.5*0.6/2)
	}
	if !scalar.EqualWithinAbs(d.VY, -12.5*0.8/2, 1e-12) {
		t.Errorf("dvy = %v, want %v", d.VY, -12.5*0.8/2)
	}
	if d.X != 3 || d.H != 4 {
		t.Errorf("dx, dh = %v, %v, want 3, 4", d.X, d.H)
	}
}

func TestDerivativeResolvesThrustFromHorizon(t *testing.T) {
	tests := []struct {
		angle  float64
		wantVX float64
		wantVY float64
	}{
		{0, 10, 0},
		{90, 0, 10},
		{45, 10 / math.Sqrt2, 10 / math.Sqrt2},
	}
	for _, tt := range tests {
		m := stubModel{mass: 1, thrust: 10, angle: tt.angle}
		d := Derivative(m, 0, State{})
		if !scalar.EqualWithinAbs(d.VX, tt.wantVX, 1e-12) || !scalar.EqualWithinAbs(d.VY, tt.wantVY, 1e-12) {
			t.Errorf("angle %v: (dvx, dvy) = (%v, %v), want (%v, %v)", tt.angle, d.VX, d.VY, tt.wantVX, tt.wantVY)
		}
	}
}

func TestFuncMatchesDerivative(t *testing.T) {
	m := stubModel{mass: 50, thrust: 900, g: 9.8, rho: 1.1, angle: 60, drag: 0.2}
	s := State{VX: 12, VY: -7, X: 100, H: 2000}

	y := make([]float64, Dim)
	s.Put(y)
	f := make([]float64, Dim)
	Func(m)(1.5, y, f)

	if got, want := FromSlice(f), Derivative(m, 1.5, s); got != want {
		t.Errorf("Func = %+v, want %+v", got, want)
	}
	if FromSlice(y) != s {
		t.Errorf("Func modified its input state")
	}
}

func TestStateFinite(t *testing.T) {
	if !(State{VX: 1, VY: 2, X: 3, H: 4}).Finite() {
		t.Error("finite state reported non-finite")
	}
	if (State{H: math.NaN()}).Finite() {
		t.Error("NaN state reported finite")
	}
	if (State{VX: math.Inf(1)}).Finite() {
		t.Error("Inf state reported finite")
	}
}
