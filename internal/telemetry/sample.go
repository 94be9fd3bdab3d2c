// Package telemetry holds the flight sample type, the in-memory append-only
// log shared between the control loop and the HTTP API, and the plain-text
// log file format.
//
// Log file format, one sample per line, every field with 2 decimals:
//
//	mission_time,speed,altitude,lateral_distance,mass
//
// Precision beyond 2 decimals is lost on write. Paths ending in ".zst" are
// zstd-compressed.
package telemetry

import (
	"fmt"
	"math"
)

// Sample is one telemetry reading.
type Sample struct {
	MissionTime float64 `json:"t" msgpack:"t"`         // s since liftoff
	Speed       float64 `json:"speed" msgpack:"speed"` // m/s
	Altitude    float64 `json:"alt" msgpack:"alt"`     // m above the surface
	Lateral     float64 `json:"lateral" msgpack:"lat"` // m from the launch point
	Mass        float64 `json:"mass" msgpack:"mass"`   // kg
}

// Normalized returns s with a transient negative altitude at liftoff
// clamped to zero.
func (s Sample) Normalized() Sample {
	if s.Altitude < 0 {
		s.Altitude = 0
	}
	return s
}

// Validate checks the field ranges a logged sample must satisfy.
func (s Sample) Validate() error {
	for _, f := range [...]struct {
		name string
		v    float64
	}{
		{"mission_time", s.MissionTime},
		{"speed", s.Speed},
		{"altitude", s.Altitude},
		{"lateral_distance", s.Lateral},
		{"mass", s.Mass},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%s is not finite: %v", f.name, f.v)
		}
	}
	switch {
	case s.MissionTime < 0:
		return fmt.Errorf("mission_time must not be negative, got %v", s.MissionTime)
	case s.Speed < 0:
		return fmt.Errorf("speed must not be negative, got %v", s.Speed)
	case s.Altitude < 0:
		return fmt.Errorf("altitude must not be negative, got %v", s.Altitude)
	case s.Lateral < 0:
		return fmt.Errorf("lateral_distance must not be negative, got %v", s.Lateral)
	case s.Mass <= 0:
		return fmt.Errorf("mass must be positive, got %v", s.Mass)
	}
	return nil
}
