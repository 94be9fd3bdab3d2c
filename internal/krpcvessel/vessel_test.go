package krpcvessel

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/atburke/krpc-go/spacecenter"
	"github.com/atburke/krpc-go/types"

	"github.com/star/ascent/internal/flight"
)

func TestLateralDistance(t *testing.T) {
	pad := r3.Vec{X: 600000}
	up := r3.Unit(pad)

	tests := []struct {
		name string
		pos  r3.Vec
		want float64
	}{
		{"on pad", pad, 0},
		{"straight up", r3.Vec{X: 700000}, 0},
		{"downrange", r3.Vec{X: 600000, Y: 3000, Z: 4000}, 5000},
		{"climbing downrange", r3.Vec{X: 650000, Y: 1200}, 1200},
		{"below pad", r3.Vec{X: 599000, Z: -250}, 250},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lateralDistance(pad, up, tt.pos)
			if !scalar.EqualWithinAbs(got, tt.want, 1e-6) {
				t.Errorf("lateralDistance = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLateralDistanceTiltedPad(t *testing.T) {
	pad := r3.Vec{X: 300000, Y: 300000}
	up := r3.Unit(pad)
	// Move 100 m up and 50 m along Z, which is horizontal at this pad.
	pos := r3.Add(r3.Add(pad, r3.Scale(100, up)), r3.Vec{Z: 50})

	if got := lateralDistance(pad, up, pos); !scalar.EqualWithinAbs(got, 50, 1e-6) {
		t.Errorf("lateralDistance = %v, want 50", got)
	}
}

func TestVec(t *testing.T) {
	got := vec(types.Tuple3[float64, float64, float64]{A: 1, B: 2, C: 3})
	if got != (r3.Vec{X: 1, Y: 2, Z: 3}) {
		t.Errorf("vec = %v, want (1, 2, 3)", got)
	}
}

func TestUnavailableWrapsCause(t *testing.T) {
	cause := errors.New("socket closed")
	err := unavailable("speed", cause)
	if !errors.Is(err, flight.ErrTelemetryUnavailable) || !errors.Is(err, cause) {
		t.Errorf("unavailable = %v, want both the sentinel and the cause", err)
	}
}

type fakeAutopilot struct {
	calls     []string
	frame     *spacecenter.ReferenceFrame
	direction types.Tuple3[float64, float64, float64]
	engageErr error
}

func (a *fakeAutopilot) SetReferenceFrame(frame *spacecenter.ReferenceFrame) error {
	a.calls = append(a.calls, "frame")
	a.frame = frame
	return nil
}

func (a *fakeAutopilot) SetTargetDirection(dir types.Tuple3[float64, float64, float64]) error {
	a.calls = append(a.calls, "direction")
	a.direction = dir
	return nil
}

func (a *fakeAutopilot) TargetPitchAndHeading(pitch, heading float32) error {
	a.calls = append(a.calls, fmt.Sprintf("pitch %g heading %g", pitch, heading))
	return nil
}

func (a *fakeAutopilot) Engage() error {
	a.calls = append(a.calls, "engage")
	return a.engageErr
}

type fixedPrograde struct {
	dir types.Tuple3[float64, float64, float64]
	err error
}

func (p fixedPrograde) Prograde() (types.Tuple3[float64, float64, float64], error) {
	return p.dir, p.err
}

func TestEngageAutopilotHoldsSurfacePrograde(t *testing.T) {
	body, surface := &spacecenter.ReferenceFrame{}, &spacecenter.ReferenceFrame{}
	prograde := types.Tuple3[float64, float64, float64]{A: 0.6, B: 0.8}
	ap := &fakeAutopilot{}
	v := &Vessel{autopilot: ap, frame: body, surface: surface, surfaceFlight: fixedPrograde{dir: prograde}}

	if err := v.EngageAutopilot(context.Background()); err != nil {
		t.Fatalf("EngageAutopilot: %v", err)
	}
	if err := v.SetAttitude(context.Background(), 75, 90); err != nil {
		t.Fatalf("SetAttitude: %v", err)
	}

	if ap.frame != surface {
		t.Error("autopilot frame is not the surface frame")
	}
	if ap.direction != prograde {
		t.Errorf("target direction = %v, want %v", ap.direction, prograde)
	}
	want := []string{"frame", "direction", "engage", "pitch 75 heading 90"}
	if fmt.Sprint(ap.calls) != fmt.Sprint(want) {
		t.Errorf("calls = %v, want %v", ap.calls, want)
	}
}

func TestEngageAutopilotErrors(t *testing.T) {
	cause := errors.New("stream closed")
	tests := []struct {
		name string
		ap   *fakeAutopilot
		pg   fixedPrograde
	}{
		{"prograde read", &fakeAutopilot{}, fixedPrograde{err: cause}},
		{"engage", &fakeAutopilot{engageErr: cause}, fixedPrograde{}},
	}
	for _, tt := range tests {
		v := &Vessel{autopilot: tt.ap, surfaceFlight: tt.pg}
		err := v.EngageAutopilot(context.Background())
		if !errors.Is(err, flight.ErrTelemetryUnavailable) || !errors.Is(err, cause) {
			t.Errorf("%s: err = %v, want ErrTelemetryUnavailable wrapping the cause", tt.name, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ap := &fakeAutopilot{}
	v := &Vessel{autopilot: ap, surfaceFlight: fixedPrograde{}}
	if err := v.EngageAutopilot(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(ap.calls) != 0 {
		t.Errorf("calls after cancel = %v, want none", ap.calls)
	}
}
