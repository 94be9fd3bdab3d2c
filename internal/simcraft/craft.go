// Package simcraft is a software-in-the-loop vehicle: it integrates the
// point-mass ascent model under the commands the controller issues and
// serves telemetry from the integrated state.
//
// A Craft is also the controller's clock. Sleeping advances simulated time
// and propagates the dynamics over the interval, so a whole ascent runs in
// milliseconds and is deterministic.
package simcraft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ready-steady/ode/dopri"

	"github.com/star/ascent/internal/dynamics"
	"github.com/star/ascent/internal/flight"
	"github.com/star/ascent/internal/telemetry"
	"github.com/star/ascent/internal/vehicle"
)

var errInjected = errors.New("injected read failure")

// Options tunes the simulated vehicle.
type Options struct {
	// YawAuthority is the pitch-over in degrees produced by a full yaw input
	// before the autopilot is engaged (default: 10).
	YawAuthority float64
	// MaxStep caps the integrator step in seconds (default: 0.5).
	MaxStep float64
	// Epoch is the wall time reported at simulated time zero.
	Epoch time.Time
}

// Craft is a simulated vehicle. The first stage is the solid booster; every
// later stage burns liquid fuel and follows the throttle. A staging event
// ignites the first stage, then each further event drops the burning stage
// and lights the next one.
type Craft struct {
	mu sync.Mutex

	model  *vehicle.Model
	stages []vehicle.Stage
	opts   Options
	logger *slog.Logger

	now      float64 // simulated seconds since construction
	ignition float64
	events   int // staging events so far

	// y is (vx, vy, x, h, propellant per stage).
	y []float64

	pitch     float64
	heading   float64
	throttle  float64
	yaw       float64
	autopilot bool

	failReads int
}

// New builds a craft sitting on the pad with full tanks.
func New(cfg vehicle.Config, opts Options, logger *slog.Logger) (*Craft, error) {
	m, err := vehicle.NewModel(cfg)
	if err != nil {
		return nil, err
	}
	if opts.YawAuthority == 0 {
		opts.YawAuthority = 10
	}
	if opts.MaxStep == 0 {
		opts.MaxStep = 0.5
	}
	if opts.MaxStep < 0 || opts.YawAuthority < 0 || opts.YawAuthority > 90 {
		return nil, flight.InvalidConfigf("simulated vehicle: max step %g, yaw authority %g", opts.MaxStep, opts.YawAuthority)
	}
	if opts.Epoch.IsZero() {
		opts.Epoch = time.Unix(0, 0).UTC()
	}

	stages := m.Config().Stages
	y := make([]float64, dynamics.Dim+len(stages))
	for i, s := range stages {
		y[dynamics.Dim+i] = s.PropellantMass
	}
	return &Craft{
		model:   m,
		stages:  stages,
		opts:    opts,
		logger:  logger.With("component", "simcraft"),
		y:       y,
		pitch:   90,
		heading: 90,
	}, nil
}

// Now returns the simulated wall time.
func (c *Craft) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.Epoch.Add(time.Duration(c.now * float64(time.Second)))
}

// Sleep advances simulated time by d, propagating the vehicle.
func (c *Craft) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advance(ctx, d.Seconds())
}

// InjectReadFailures makes the next n telemetry reads fail.
func (c *Craft) InjectReadFailures(n int) {
	c.mu.Lock()
	c.failReads = n
	c.mu.Unlock()
}

// Events returns the number of staging events fired.
func (c *Craft) Events() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

// State returns the current planar state.
func (c *Craft) State() dynamics.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return dynamics.FromSlice(c.y)
}

// active returns the burning stage index, or -1.
func (c *Craft) active() int {
	i := c.events - 1
	if i < 0 || i >= len(c.stages) {
		return -1
	}
	return i
}

// massOf returns the vehicle mass for state y: payload plus every stage not
// yet dropped.
func (c *Craft) massOf(y []float64) float64 {
	m := c.model.Config().Payload
	first := max(c.events-1, 0)
	for i := first; i < len(c.stages); i++ {
		m += c.stages[i].DryMass + math.Max(0, y[dynamics.Dim+i])
	}
	return m
}

// thrustOf returns the thrust and propellant flow of the burning stage.
func (c *Craft) thrustOf(y []float64) (thrust, flow float64) {
	i := c.active()
	if i < 0 || y[dynamics.Dim+i] <= 0 {
		return 0, 0
	}
	level := 1.0
	if i > 0 {
		level = c.throttle
	}
	return level * c.model.StageThrust(i), level * c.stages[i].FlowRate()
}

// angle returns the thrust direction above the horizon in degrees.
func (c *Craft) angle() float64 {
	if c.autopilot {
		return c.pitch
	}
	return 90 - c.yaw*c.opts.YawAuthority
}

// frame freezes mass, thrust and attitude for one derivative evaluation.
type frame struct {
	model  *vehicle.Model
	mass   float64
	thrust float64
	angle  float64
}

func (f frame) Mass(float64) float64 { return f.mass }
func (f frame) Thrust(float64) float64 { return f.thrust }
func (f frame) Gravity(h float64) float64 { return f.model.Gravity(h) }
func (f frame) Density(h float64) float64 { return f.model.Density(h) }
func (f frame) CommandedAngle(float64) float64 { return f.angle }
func (f frame) DragFactor() float64 { return f.model.DragFactor() }

func (c *Craft) derivative(t float64, y, f []float64) {
	thrust, flow := c.thrustOf(y)
	fr := frame{model: c.model, mass: c.massOf(y), thrust: thrust, angle: c.angle()}
	s := dynamics.FromSlice(y)
	// The pad holds the vehicle until thrust exceeds weight.
	if s.H <= 0 && s.VY <= 0 && thrust*math.Sin(fr.angle*math.Pi/180) <= fr.mass*fr.model.Gravity(0) {
		clear(f)
	} else {
		dynamics.Derivative(fr, t, s).Put(f)
	}
	for i := range c.stages {
		f[dynamics.Dim+i] = 0
	}
	if i := c.active(); i >= 0 && flow > 0 {
		f[dynamics.Dim+i] = -flow
	}
}

// advance integrates over dt seconds. Called with mu held.
func (c *Craft) advance(ctx context.Context, dt float64) error {
	t0 := c.now
	c.now += dt
	if c.active() < 0 && dynamics.FromSlice(c.y).H <= 0 {
		return nil
	}

	cfg := dopri.DefaultConfig()
	cfg.MaxStep = c.opts.MaxStep
	integrator, err := dopri.New(cfg)
	if err != nil {
		return fmt.Errorf("creating integrator: %w", err)
	}

	var cancelled error
	rhs := func(t float64, y, f []float64) {
		if cancelled != nil {
			clear(f)
			return
		}
		if err := ctx.Err(); err != nil {
			cancelled = err
			clear(f)
			return
		}
		c.derivative(t, y, f)
	}
	values, _, err := integrator.Compute(rhs, c.y, []float64{t0, c.now})
	if cancelled != nil {
		return cancelled
	}
	if err != nil {
		return fmt.Errorf("propagating %.2fs at t=%.2f: %w", dt, t0, err)
	}

	n := len(c.y)
	next := append([]float64(nil), values[len(values)-n:]...)
	if !dynamics.FromSlice(next).Finite() {
		return fmt.Errorf("propagation produced a non-finite state at t=%.2f", c.now)
	}
	for i := range c.stages {
		next[dynamics.Dim+i] = math.Max(0, next[dynamics.Dim+i])
	}
	if next[3] < 0 {
		next[1], next[3] = 0, 0
		next[0] = 0
	}
	c.y = next
	return nil
}

func (c *Craft) ReadSample(ctx context.Context) (telemetry.Sample, error) {
	if err := ctx.Err(); err != nil {
		return telemetry.Sample{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failReads > 0 {
		c.failReads--
		return telemetry.Sample{}, fmt.Errorf("%w: %w", flight.ErrTelemetryUnavailable, errInjected)
	}

	s := dynamics.FromSlice(c.y)
	met := 0.0
	if c.events > 0 {
		met = c.now - c.ignition
	}
	return telemetry.Sample{
		MissionTime: met,
		Speed:       s.Speed(),
		Altitude:    s.H,
		Lateral:     math.Abs(s.X),
		Mass:        c.massOf(c.y),
	}, nil
}

func (c *Craft) IssueCommand(ctx context.Context, cmd flight.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pitch, c.heading, c.throttle, c.yaw = cmd.PitchDeg, cmd.HeadingDeg, cmd.Throttle, cmd.Yaw
	return nil
}

func (c *Craft) SetAttitude(ctx context.Context, pitchDeg, headingDeg float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if pitchDeg < 0 || pitchDeg > 90 || math.IsNaN(pitchDeg) {
		return fmt.Errorf("pitch %g outside [0, 90]", pitchDeg)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pitch, c.heading = pitchDeg, headingDeg
	return nil
}

func (c *Craft) SetThrottle(ctx context.Context, throttle float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if throttle < 0 || throttle > 1 || math.IsNaN(throttle) {
		return fmt.Errorf("throttle %g outside [0, 1]", throttle)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.throttle = throttle
	return nil
}

func (c *Craft) SetYaw(ctx context.Context, yaw float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if yaw < -1 || yaw > 1 || math.IsNaN(yaw) {
		return fmt.Errorf("yaw %g outside [-1, 1]", yaw)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.yaw = yaw
	return nil
}

// EngageAutopilot switches attitude control from the yaw input to the
// commanded pitch. The current flight path angle becomes the hold target.
func (c *Craft) EngageAutopilot(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.autopilot {
		c.autopilot = true
		c.yaw = 0
		c.pitch = c.angle0()
	}
	return nil
}

// angle0 returns the surface prograde elevation, or 90 on the pad.
func (c *Craft) angle0() float64 {
	s := dynamics.FromSlice(c.y)
	if s.Speed() == 0 {
		return 90
	}
	return math.Max(0, math.Atan2(s.VY, s.VX)*180/math.Pi)
}

func (c *Craft) ActivateNextStage(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events > len(c.stages) {
		return fmt.Errorf("no stages left to activate")
	}
	if c.events == 0 {
		c.ignition = c.now
	}
	c.events++
	c.logger.Info("staging", "event", c.events, "mission_time", c.now-c.ignition)
	return nil
}

func (c *Craft) RemainingPropellant(ctx context.Context, kind flight.Propellant) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	first := max(c.events-1, 0)
	var total float64
	for i := first; i < len(c.stages); i++ {
		solid := i == 0
		if (kind == flight.SolidFuel) == solid {
			total += c.y[dynamics.Dim+i]
		}
	}
	switch kind {
	case flight.SolidFuel, flight.LiquidFuel:
		return total, nil
	}
	return 0, fmt.Errorf("unknown propellant %q", kind)
}

func (c *Craft) OrbitalElements(ctx context.Context) (flight.Elements, error) {
	if err := ctx.Err(); err != nil {
		return flight.Elements{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	body := c.model.Config().Body
	return Elements(body.Mu, body.Radius, dynamics.FromSlice(c.y))
}
