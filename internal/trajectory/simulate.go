// Package trajectory integrates the ascent equations of motion from liftoff
// to a cutoff time and reports the state on a caller-chosen time grid.
package trajectory

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ready-steady/ode/dopri"

	"github.com/star/ascent/internal/dynamics"
	"github.com/star/ascent/internal/flight"
	"github.com/star/ascent/internal/telemetry"
)

// ErrIntegrationFailure is matched by every *IntegrationError.
var ErrIntegrationFailure = errors.New("integration failure")

// IntegrationError reports a solver failure or a non-finite state.
type IntegrationError struct {
	LastValidTime float64 // latest time at which the state was finite
	Err           error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("integration failed after t=%.3fs: %v", e.LastValidTime, e.Err)
}

func (e *IntegrationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrIntegrationFailure}
	}
	return []error{ErrIntegrationFailure, e.Err}
}

var errNonFinite = errors.New("non-finite state")

// Options tunes the adaptive Dormand-Prince integrator.
type Options struct {
	RelTol  float64 // relative tolerance (default: 1e-6)
	AbsTol  float64 // absolute tolerance (default: 1e-9)
	MaxStep float64 // largest internal step in seconds, 0 = solver default
}

// DefaultOptions returns the reference tolerances.
func DefaultOptions() Options {
	return Options{RelTol: 1e-6, AbsTol: 1e-9}
}

// Point is the predicted state at one grid time.
type Point struct {
	T     float64
	State dynamics.State
	Mass  float64
}

// Trajectory is a predicted ascent, one point per requested grid time.
type Trajectory struct {
	Points []Point
}

// Final returns the last point.
func (tr *Trajectory) Final() Point {
	return tr.Points[len(tr.Points)-1]
}

// Samples converts the prediction into log samples so it can be written and
// compared with the same codec as recorded telemetry.
func (tr *Trajectory) Samples() []telemetry.Sample {
	out := make([]telemetry.Sample, len(tr.Points))
	for i, p := range tr.Points {
		out[i] = telemetry.Sample{
			MissionTime: p.T,
			Speed:       p.State.Speed(),
			Altitude:    p.State.H,
			Lateral:     math.Abs(p.State.X),
			Mass:        p.Mass,
		}
	}
	return out
}

// Cutoff returns the integration end time: total burn time minus margin.
func Cutoff(burnTime, margin float64) (float64, error) {
	if margin < 0 || math.IsNaN(margin) {
		return 0, flight.InvalidConfigf("cutoff margin must not be negative, got %g", margin)
	}
	if margin >= burnTime {
		return 0, flight.InvalidConfigf("cutoff margin %gs must be less than total burn time %gs", margin, burnTime)
	}
	return burnTime - margin, nil
}

// Grid returns n evenly spaced times covering [t0, t1], both ends included.
func Grid(t0, t1 float64, n int) ([]float64, error) {
	if n < 2 {
		return nil, flight.InvalidConfigf("grid needs at least 2 points, got %d", n)
	}
	if !(t1 > t0) {
		return nil, flight.InvalidConfigf("grid end %g must be after start %g", t1, t0)
	}
	xs := make([]float64, n)
	step := (t1 - t0) / float64(n-1)
	for i := range xs {
		xs[i] = t0 + float64(i)*step
	}
	xs[n-1] = t1
	return xs, nil
}

// Simulate integrates m from t=0 with the all-zero state and reports the
// state at each time in grid. The grid must be non-negative and strictly
// ascending; its first point need not be zero.
func Simulate(ctx context.Context, m dynamics.Model, grid []float64, opts Options) (*Trajectory, error) {
	if len(grid) == 0 {
		return nil, flight.InvalidConfigf("empty output grid")
	}
	for i, t := range grid {
		if math.IsNaN(t) || t < 0 {
			return nil, flight.InvalidConfigf("grid point %d is %g", i, t)
		}
		if i > 0 && t <= grid[i-1] {
			return nil, flight.InvalidConfigf("grid is not strictly ascending at point %d", i)
		}
	}
	if opts.RelTol <= 0 || opts.AbsTol <= 0 {
		return nil, flight.InvalidConfigf("tolerances must be positive")
	}

	// The solver reports its first value at the initial point, so t=0 is
	// prepended when the caller's grid starts later.
	xs := grid
	skip := 0
	if grid[0] > 0 {
		xs = append([]float64{0}, grid...)
		skip = 1
	}

	var values []float64
	var lastValid float64
	var failure error

	if len(xs) == 1 {
		values = make([]float64, dynamics.Dim)
	} else {
		cfg := dopri.DefaultConfig()
		cfg.RelError = opts.RelTol
		cfg.AbsError = opts.AbsTol
		if opts.MaxStep > 0 {
			cfg.MaxStep = opts.MaxStep
		}
		integrator, err := dopri.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("creating integrator: %w", err)
		}

		rhs := dynamics.Func(m)
		derivative := func(t float64, y, f []float64) {
			// Once poisoned, the solver is fed zeros so it runs out quickly.
			if failure != nil {
				clear(f)
				return
			}
			if err := ctx.Err(); err != nil {
				failure = err
				clear(f)
				return
			}
			rhs(t, y, f)
			if !dynamics.FromSlice(y).Finite() || !dynamics.FromSlice(f).Finite() {
				failure = fmt.Errorf("%w at t=%g", errNonFinite, t)
				clear(f)
				return
			}
			if t > lastValid {
				lastValid = t
			}
		}

		values, _, err = integrator.Compute(derivative, make([]float64, dynamics.Dim), xs)
		if failure != nil {
			if errors.Is(failure, context.Canceled) || errors.Is(failure, context.DeadlineExceeded) {
				return nil, failure
			}
			return nil, &IntegrationError{LastValidTime: lastValid, Err: failure}
		}
		if err != nil {
			return nil, &IntegrationError{LastValidTime: lastValid, Err: err}
		}
		// With only the two endpoints the solver reports every internal
		// step instead of the requested points.
		if len(xs) == 2 && len(values) >= 2*dynamics.Dim {
			values = append(values[:dynamics.Dim:dynamics.Dim], values[len(values)-dynamics.Dim:]...)
		}
		if len(values) != len(xs)*dynamics.Dim {
			return nil, &IntegrationError{
				LastValidTime: lastValid,
				Err:           fmt.Errorf("solver returned %d values for %d points", len(values), len(xs)),
			}
		}
	}

	tr := &Trajectory{Points: make([]Point, 0, len(grid))}
	for i := skip; i < len(xs); i++ {
		s := dynamics.FromSlice(values[i*dynamics.Dim:])
		if !s.Finite() {
			valid := 0.0
			if i > 0 {
				valid = xs[i-1]
			}
			return nil, &IntegrationError{LastValidTime: valid, Err: fmt.Errorf("%w at t=%g", errNonFinite, xs[i])}
		}
		tr.Points = append(tr.Points, Point{T: xs[i], State: s, Mass: m.Mass(xs[i])})
	}
	return tr, nil
}
