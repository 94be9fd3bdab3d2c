// Package dynamics is the right-hand side of the planar point-mass ascent
// model: state (vx, vy, x, h) under staged thrust, inverse-square gravity and
// quadratic drag.
package dynamics

import (
	"math"
)

// Dim is the number of state components.
const Dim = 4

// State is the integration state vector.
type State struct {
	VX float64 // horizontal velocity, m/s
	VY float64 // vertical velocity, m/s
	X  float64 // downrange distance, m
	H  float64 // altitude, m
}

// FromSlice reads a state from y[0:4].
func FromSlice(y []float64) State {
	return State{VX: y[0], VY: y[1], X: y[2], H: y[3]}
}

// Put writes s into y[0:4].
func (s State) Put(y []float64) {
	y[0], y[1], y[2], y[3] = s.VX, s.VY, s.X, s.H
}

// Speed returns the velocity magnitude.
func (s State) Speed() float64 { return math.Hypot(s.VX, s.VY) }

// Finite reports whether every component is a finite number.
func (s State) Finite() bool {
	for _, v := range [...]float64{s.VX, s.VY, s.X, s.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Model is the subset of vehicle.Model the equations need.
type Model interface {
	Mass(t float64) float64
	Thrust(t float64) float64
	Gravity(h float64) float64
	Density(h float64) float64
	CommandedAngle(h float64) float64
	DragFactor() float64
}

// Derivative returns d/dt of s at time t. It only reads m and s.
func Derivative(m Model, t float64, s State) State {
	var dx, dy float64
	if v := s.Speed(); v > 0 {
		drag := m.DragFactor() * m.Density(s.H) * v * v
		dx = -drag * s.VX / v
		dy = -drag * s.VY / v
	}

	thrust := m.Thrust(t)
	theta := m.CommandedAngle(s.H) * math.Pi / 180
	mass := m.Mass(t)

	return State{
		VX: (thrust*math.Cos(theta) + dx) / mass,
		VY: (thrust*math.Sin(theta)+dy)/mass - m.Gravity(s.H),
		X:  s.VX,
		H:  s.VY,
	}
}

// Func adapts Derivative to the flat-slice signature used by ODE solvers.
func Func(m Model) func(t float64, y, f []float64) {
	return func(t float64, y, f []float64) {
		Derivative(m, t, FromSlice(y)).Put(f)
	}
}
