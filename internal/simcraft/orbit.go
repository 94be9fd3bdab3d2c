package simcraft

import (
	"fmt"
	"math"

	"github.com/star/ascent/internal/dynamics"
	"github.com/star/ascent/internal/flight"
)

// Elements derives the two-body orbit of a planar state about a body of
// gravitational parameter mu and radius r0. Altitude is radial and the
// horizontal velocity is taken as tangential, so the result is exact for
// the curved-Earth reading of the flat model and adequate for guidance.
func Elements(mu, r0 float64, s dynamics.State) (flight.Elements, error) {
	if !s.Finite() {
		return flight.Elements{}, fmt.Errorf("state is not finite: %+v", s)
	}
	r := r0 + s.H
	v := s.Speed()
	energy := v*v/2 - mu/r
	if energy >= 0 {
		return flight.Elements{}, fmt.Errorf("escape trajectory: specific energy %g J/kg", energy)
	}

	a := -mu / (2 * energy)
	h := r * math.Abs(s.VX) // specific angular momentum
	e := math.Sqrt(math.Max(0, 1-h*h/(mu*a)))

	el := flight.Elements{
		Apoapsis:  a*(1+e) - r0,
		Periapsis: a*(1-e) - r0,
	}

	if e < 1e-9 {
		return el, nil
	}

	// Near-radial paths: ballistic time to the top.
	if e > 1-1e-6 {
		if s.VY > 0 {
			el.TimeToApoapsis = s.VY / (mu / (r * r))
		}
		return el, nil
	}

	// True anomaly from e*cos(nu) = h^2/(mu*r) - 1 and e*sin(nu) = h*vr/mu.
	nu := math.Atan2(h*s.VY/mu, h*h/(mu*r)-1)
	ecc := 2 * math.Atan(math.Sqrt((1-e)/(1+e))*math.Tan(nu/2))
	mean := ecc - e*math.Sin(ecc)
	if mean < 0 {
		mean += 2 * math.Pi
	}
	n := math.Sqrt(mu / (a * a * a))
	tta := (math.Pi - mean) / n
	if tta < 0 {
		tta += 2 * math.Pi / n
	}
	el.TimeToApoapsis = tta
	return el, nil
}
