// Package krpcvessel flies a Kerbal Space Program vessel through the kRPC
// server. It implements flight.Vehicle for the active vessel.
package krpcvessel

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	krpcgo "github.com/atburke/krpc-go"
	"github.com/atburke/krpc-go/spacecenter"
	"github.com/atburke/krpc-go/types"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/ascent/internal/flight"
	"github.com/star/ascent/internal/telemetry"
)

// Options configures the kRPC connection.
type Options struct {
	Host string // kRPC server address (default: client default)
}

// autopilot is the part of *spacecenter.AutoPilot the ascent drives.
type autopilot interface {
	SetReferenceFrame(frame *spacecenter.ReferenceFrame) error
	SetTargetDirection(dir types.Tuple3[float64, float64, float64]) error
	TargetPitchAndHeading(pitch, heading float32) error
	Engage() error
}

// prograder reports the prograde direction in its flight's frame.
type prograder interface {
	Prograde() (types.Tuple3[float64, float64, float64], error)
}

// Vessel is the active vessel of a connected kRPC session.
type Vessel struct {
	closeFn func()

	vessel    *spacecenter.Vessel
	control   *spacecenter.Control
	autopilot autopilot
	flight    *spacecenter.Flight
	orbit     *spacecenter.Orbit
	resources *spacecenter.Resources
	frame     *spacecenter.ReferenceFrame // body-fixed, for lateral distance

	// Surface frame and flight in it; attitude targets are read against
	// the local horizon.
	surface       *spacecenter.ReferenceFrame
	surfaceFlight prograder

	// Launch site in the body-fixed frame, and local up there.
	pad r3.Vec
	up  r3.Vec

	logger *slog.Logger
}

// Dial connects to the kRPC server and binds the active vessel. The vessel's
// position at connect time is taken as the launch site.
func Dial(ctx context.Context, opts Options, logger *slog.Logger) (*Vessel, error) {
	client := krpcgo.DefaultKRPCClient()
	if opts.Host != "" {
		client.Host = opts.Host
	}
	if err := client.Connect(ctx); err != nil {
		return nil, unavailable("connect", err)
	}

	v, err := bind(spacecenter.New(client))
	if err != nil {
		client.Close()
		return nil, err
	}
	v.closeFn = func() { client.Close() }
	v.logger = logger.With("component", "krpc")
	v.logger.Info("connected to kRPC", "host", opts.Host)
	return v, nil
}

func bind(sc *spacecenter.SpaceCenter) (*Vessel, error) {
	vessel, err := sc.ActiveVessel()
	if err != nil {
		return nil, unavailable("active vessel", err)
	}
	control, err := vessel.Control()
	if err != nil {
		return nil, unavailable("control", err)
	}
	autopilot, err := vessel.AutoPilot()
	if err != nil {
		return nil, unavailable("autopilot", err)
	}
	orbit, err := vessel.Orbit()
	if err != nil {
		return nil, unavailable("orbit", err)
	}
	body, err := orbit.Body()
	if err != nil {
		return nil, unavailable("body", err)
	}
	frame, err := body.ReferenceFrame()
	if err != nil {
		return nil, unavailable("body frame", err)
	}
	fl, err := vessel.Flight(frame)
	if err != nil {
		return nil, unavailable("flight", err)
	}
	surface, err := vessel.SurfaceReferenceFrame()
	if err != nil {
		return nil, unavailable("surface frame", err)
	}
	surfaceFlight, err := vessel.Flight(surface)
	if err != nil {
		return nil, unavailable("surface flight", err)
	}
	resources, err := vessel.Resources()
	if err != nil {
		return nil, unavailable("resources", err)
	}
	pos, err := vessel.Position(frame)
	if err != nil {
		return nil, unavailable("launch position", err)
	}

	pad := vec(pos)
	if r3.Norm(pad) == 0 {
		return nil, fmt.Errorf("%w: launch position at body centre", flight.ErrTelemetryUnavailable)
	}
	return &Vessel{
		vessel:        vessel,
		control:       control,
		autopilot:     autopilot,
		flight:        fl,
		orbit:         orbit,
		resources:     resources,
		frame:         frame,
		surface:       surface,
		surfaceFlight: surfaceFlight,
		pad:           pad,
		up:            r3.Unit(pad),
	}, nil
}

// Close ends the kRPC session.
func (v *Vessel) Close() {
	if v.closeFn != nil {
		v.closeFn()
	}
}

func (v *Vessel) ReadSample(ctx context.Context) (telemetry.Sample, error) {
	if err := ctx.Err(); err != nil {
		return telemetry.Sample{}, err
	}
	met, err := v.vessel.MET()
	if err != nil {
		return telemetry.Sample{}, unavailable("mission time", err)
	}
	speed, err := v.flight.Speed()
	if err != nil {
		return telemetry.Sample{}, unavailable("speed", err)
	}
	alt, err := v.flight.MeanAltitude()
	if err != nil {
		return telemetry.Sample{}, unavailable("altitude", err)
	}
	pos, err := v.vessel.Position(v.frame)
	if err != nil {
		return telemetry.Sample{}, unavailable("position", err)
	}
	mass, err := v.vessel.Mass()
	if err != nil {
		return telemetry.Sample{}, unavailable("mass", err)
	}
	return telemetry.Sample{
		MissionTime: met,
		Speed:       speed,
		Altitude:    alt,
		Lateral:     lateralDistance(v.pad, v.up, vec(pos)),
		Mass:        float64(mass),
	}, nil
}

func (v *Vessel) IssueCommand(ctx context.Context, cmd flight.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if err := v.SetAttitude(ctx, cmd.PitchDeg, cmd.HeadingDeg); err != nil {
		return err
	}
	if err := v.SetThrottle(ctx, cmd.Throttle); err != nil {
		return err
	}
	return v.SetYaw(ctx, cmd.Yaw)
}

func (v *Vessel) SetAttitude(ctx context.Context, pitchDeg, headingDeg float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := v.autopilot.TargetPitchAndHeading(float32(pitchDeg), float32(headingDeg)); err != nil {
		return unavailable("target pitch and heading", err)
	}
	return nil
}

func (v *Vessel) SetThrottle(ctx context.Context, throttle float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := v.control.SetThrottle(float32(throttle)); err != nil {
		return unavailable("throttle", err)
	}
	return nil
}

func (v *Vessel) SetYaw(ctx context.Context, yaw float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := v.control.SetYaw(float32(yaw)); err != nil {
		return unavailable("yaw", err)
	}
	return nil
}

// EngageAutopilot engages the attitude autopilot in the surface frame,
// holding surface prograde until the first pitch and heading target.
func (v *Vessel) EngageAutopilot(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := v.autopilot.SetReferenceFrame(v.surface); err != nil {
		return unavailable("autopilot frame", err)
	}
	prograde, err := v.surfaceFlight.Prograde()
	if err != nil {
		return unavailable("surface prograde", err)
	}
	if err := v.autopilot.SetTargetDirection(prograde); err != nil {
		return unavailable("autopilot direction", err)
	}
	if err := v.autopilot.Engage(); err != nil {
		return unavailable("engage autopilot", err)
	}
	return nil
}

func (v *Vessel) ActivateNextStage(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := v.control.ActivateNextStage(); err != nil {
		return unavailable("activate next stage", err)
	}
	v.logger.Info("stage activated")
	return nil
}

func (v *Vessel) RemainingPropellant(ctx context.Context, kind flight.Propellant) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	amount, err := v.resources.Amount(string(kind))
	if err != nil {
		return 0, unavailable("resource "+string(kind), err)
	}
	return float64(amount), nil
}

func (v *Vessel) OrbitalElements(ctx context.Context) (flight.Elements, error) {
	if err := ctx.Err(); err != nil {
		return flight.Elements{}, err
	}
	apo, err := v.orbit.ApoapsisAltitude()
	if err != nil {
		return flight.Elements{}, unavailable("apoapsis", err)
	}
	peri, err := v.orbit.PeriapsisAltitude()
	if err != nil {
		return flight.Elements{}, unavailable("periapsis", err)
	}
	tta, err := v.orbit.TimeToApoapsis()
	if err != nil {
		return flight.Elements{}, unavailable("time to apoapsis", err)
	}
	return flight.Elements{Apoapsis: apo, Periapsis: peri, TimeToApoapsis: tta}, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("krpc %s: %w: %w", op, flight.ErrTelemetryUnavailable, err)
}

func vec(t types.Tuple3[float64, float64, float64]) r3.Vec {
	return r3.Vec{X: t.A, Y: t.B, Z: t.C}
}

// lateralDistance is the horizontal distance of pos from the pad, measured
// in the plane perpendicular to local up at the pad.
func lateralDistance(pad, up, pos r3.Vec) float64 {
	d := r3.Sub(pos, pad)
	horizontal := r3.Sub(d, r3.Scale(r3.Dot(d, up), up))
	n := r3.Norm(horizontal)
	if math.IsNaN(n) {
		return 0
	}
	return n
}
