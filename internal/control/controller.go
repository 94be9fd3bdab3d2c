// Package control runs the closed-loop ascent: a single sequential loop that
// samples telemetry, advances the staging sequencer, asks the guidance law
// for a command, issues it and waits for the next tick.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/star/ascent/internal/flight"
	"github.com/star/ascent/internal/guidance"
	"github.com/star/ascent/internal/metrics"
	"github.com/star/ascent/internal/staging"
	"github.com/star/ascent/internal/telemetry"
)

var phaseNames = []string{
	staging.SRBAscent.String(),
	staging.GravityTurn.String(),
	staging.Cutoff.String(),
}

// Config holds the controller timing and thresholds.
type Config struct {
	Staging  staging.Config
	Guidance guidance.Config
	Retry    RetryPolicy

	BoosterTick     time.Duration // sampling period during SRB_ASCENT (default: 250ms)
	IgnitionSettle  time.Duration // wait after ignition before the first sample (default: 2s)
	SeparationDelay time.Duration // wait before and after booster separation (default: 1s)
	TurnEntryHold   time.Duration // wait between the entry attitude and full throttle (default: 2s)
	CutoffHold      time.Duration // wait before and after the final separation (default: 2s)

	TurnEntryPitch    float64 // deg (default: 75)
	TurnEntryHeading  float64 // deg (default: 90)
	TurnEntryThrottle float64 // (default: 1.0)

	// CoreThreshold is the core propellant at or below which a gravity turn
	// that has not reached the target aborts (default: 1.0).
	CoreThreshold float64

	// Deadline bounds the whole flight; 0 means no limit.
	Deadline time.Duration
}

// DefaultConfig returns the reference controller for a target apoapsis.
func DefaultConfig(target float64) Config {
	st := staging.DefaultConfig()
	st.TargetApoapsis = target
	return Config{
		Staging:           st,
		Guidance:          guidance.DefaultConfig(target),
		Retry:             DefaultRetryPolicy(),
		BoosterTick:       250 * time.Millisecond,
		IgnitionSettle:    2 * time.Second,
		SeparationDelay:   time.Second,
		TurnEntryHold:     2 * time.Second,
		CutoffHold:        2 * time.Second,
		TurnEntryPitch:    75,
		TurnEntryHeading:  90,
		TurnEntryThrottle: 1.0,
		CoreThreshold:     1.0,
	}
}

// Validate checks timing and thresholds. The staging and guidance sections
// are checked by their constructors.
func (c Config) Validate() error {
	if c.BoosterTick <= 0 {
		return flight.InvalidConfigf("booster tick must be positive, got %s", c.BoosterTick)
	}
	for name, d := range map[string]time.Duration{
		"ignition settle":  c.IgnitionSettle,
		"separation delay": c.SeparationDelay,
		"turn entry hold":  c.TurnEntryHold,
		"cutoff hold":      c.CutoffHold,
		"deadline":         c.Deadline,
	} {
		if d < 0 {
			return flight.InvalidConfigf("%s must not be negative, got %s", name, d)
		}
	}
	if c.TurnEntryPitch < 0 || c.TurnEntryPitch > 90 {
		return flight.InvalidConfigf("turn entry pitch %g outside [0, 90]", c.TurnEntryPitch)
	}
	if c.TurnEntryThrottle < 0 || c.TurnEntryThrottle > 1 {
		return flight.InvalidConfigf("turn entry throttle %g outside [0, 1]", c.TurnEntryThrottle)
	}
	if c.CoreThreshold < 0 {
		return flight.InvalidConfigf("core threshold must not be negative, got %g", c.CoreThreshold)
	}
	return c.Retry.Validate()
}

// Options carries the controller's collaborators.
type Options struct {
	Clock    Clock          // default: WallClock
	Log      *telemetry.Log // default: a fresh log
	Sink     SampleSink     // optional file sink
	FlightID string
}

// Controller flies one ascent. Run may be called once.
type Controller struct {
	cfg      Config
	vehicle  flight.Vehicle
	clock    Clock
	seq      *staging.Sequencer
	law      *guidance.Law
	log      *telemetry.Log
	sampler  *Sampler
	retry    *retrier
	flightID string
	logger   *slog.Logger

	status atomic.Pointer[Status]
}

// New validates cfg and wires the controller.
func New(cfg Config, v flight.Vehicle, opts Options, logger *slog.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seq, err := staging.NewSequencer(cfg.Staging)
	if err != nil {
		return nil, err
	}
	law, err := guidance.New(cfg.Guidance)
	if err != nil {
		return nil, err
	}

	if opts.Clock == nil {
		opts.Clock = WallClock{}
	}
	if opts.Log == nil {
		opts.Log = telemetry.NewLog()
	}
	logger = logger.With("flight_id", opts.FlightID)

	r := &retrier{policy: cfg.Retry, clock: opts.Clock, logger: logger}
	c := &Controller{
		cfg:     cfg,
		vehicle: v,
		clock:   opts.Clock,
		seq:     seq,
		law:     law,
		log:     opts.Log,
		sampler: &Sampler{
			vehicle: v,
			retry:   r,
			log:     opts.Log,
			sink:    opts.Sink,
			logger:  logger,
		},
		retry:    r,
		flightID: opts.FlightID,
		logger:   logger,
	}
	c.status.Store(&Status{FlightID: opts.FlightID, State: StatePending, Phase: seq.Phase()})
	return c, nil
}

// Log returns the in-memory flight log.
func (c *Controller) Log() *telemetry.Log { return c.log }

// Status returns a snapshot of the flight state. Safe for concurrent use.
func (c *Controller) Status() Status { return *c.status.Load() }

// Started reports whether the preflight check passed.
func (c *Controller) Started() bool { return c.Status().State != StatePending }

// update applies fn to a copy of the status and publishes it. Only the loop
// goroutine writes.
func (c *Controller) update(fn func(*Status)) {
	s := *c.status.Load()
	fn(&s)
	c.status.Store(&s)
}

// Run flies the ascent until CUTOFF, an abort, or ctx is done. Failures after
// liftoff are returned as *flight.AbortError.
func (c *Controller) Run(ctx context.Context) error {
	if c.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Deadline)
		defer cancel()
	}

	if err := c.preflight(ctx); err != nil {
		c.update(func(s *Status) {
			s.State = StateFailed
			s.Error = err.Error()
		})
		return err
	}

	start := c.clock.Now()
	c.update(func(s *Status) {
		s.State = StateRunning
		s.StartedAt = start
	})
	metrics.SetPhase(c.seq.Phase().String(), phaseNames)

	if err := c.fly(ctx); err != nil {
		abort := &flight.AbortError{
			Phase:   c.seq.Phase().String(),
			Elapsed: c.clock.Now().Sub(start),
			Err:     err,
		}
		if last, ok := c.log.Last(); ok {
			abort.MissionTime = last.MissionTime
		}
		metrics.IncMissionAborts()
		c.logger.Error("mission abort",
			"phase", abort.Phase,
			"mission_time", abort.MissionTime,
			"error", err,
		)
		c.update(func(s *Status) {
			s.State = StateAborted
			s.Error = abort.Error()
		})
		return abort
	}

	c.update(func(s *Status) { s.State = StateComplete })
	c.logger.Info("ascent complete",
		"samples", c.log.Len(),
		"elapsed", c.clock.Now().Sub(start).String(),
	)
	return nil
}

// preflight rejects a target the vehicle is already above.
func (c *Controller) preflight(ctx context.Context) error {
	var sample telemetry.Sample
	err := c.retry.do(ctx, "read_sample", func(ctx context.Context) error {
		var err error
		sample, err = c.vehicle.ReadSample(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("preflight: %w", err)
	}
	if math.IsNaN(sample.Altitude) || math.IsInf(sample.Altitude, 0) {
		return fmt.Errorf("preflight: altitude is not finite: %v", sample.Altitude)
	}
	if target := c.cfg.Staging.TargetApoapsis; target <= sample.Altitude {
		return flight.InvalidConfigf("target apoapsis %.0f m is not above current altitude %.0f m", target, sample.Altitude)
	}
	return nil
}

func (c *Controller) fly(ctx context.Context) error {
	c.logger.Info("ignition")
	if err := c.stage(ctx, "ignition"); err != nil {
		return err
	}
	if err := c.clock.Sleep(ctx, c.cfg.IgnitionSettle); err != nil {
		return err
	}

	for {
		var err error
		switch c.seq.Phase() {
		case staging.SRBAscent:
			err = c.boosterTick(ctx)
		case staging.GravityTurn:
			err = c.turnTick(ctx)
		case staging.Cutoff:
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (c *Controller) boosterTick(ctx context.Context) error {
	tickStart := c.clock.Now()

	sample, err := c.sampler.Sample(ctx)
	if err != nil {
		return err
	}
	c.recordSample(sample)

	fuel, err := c.propellant(ctx, flight.SolidFuel)
	if err != nil {
		return err
	}
	tr, err := c.seq.Advance(staging.Observation{BoosterPropellant: fuel})
	if err != nil {
		return err
	}
	if tr.Changed() {
		c.transition(tr, sample)
		if err := c.leaveBooster(ctx); err != nil {
			return err
		}
		return c.enterTurn(ctx)
	}

	yaw, err := c.seq.BoosterYaw(sample.Altitude)
	if err != nil {
		return err
	}
	if err := c.retry.do(ctx, "set_yaw", func(ctx context.Context) error {
		return c.vehicle.SetYaw(ctx, yaw)
	}); err != nil {
		return err
	}

	metrics.ObserveTick(tr.To.String(), c.clock.Now().Sub(tickStart))
	return c.clock.Sleep(ctx, c.cfg.BoosterTick)
}

func (c *Controller) leaveBooster(ctx context.Context) error {
	if err := c.retry.do(ctx, "set_yaw", func(ctx context.Context) error {
		return c.vehicle.SetYaw(ctx, 0)
	}); err != nil {
		return err
	}
	if err := c.clock.Sleep(ctx, c.cfg.SeparationDelay); err != nil {
		return err
	}
	c.logger.Info("booster separation")
	if err := c.stage(ctx, "booster_separation"); err != nil {
		return err
	}
	return c.clock.Sleep(ctx, c.cfg.SeparationDelay)
}

func (c *Controller) enterTurn(ctx context.Context) error {
	if err := c.retry.do(ctx, "engage_autopilot", c.vehicle.EngageAutopilot); err != nil {
		return err
	}
	if err := c.retry.do(ctx, "set_attitude", func(ctx context.Context) error {
		return c.vehicle.SetAttitude(ctx, c.cfg.TurnEntryPitch, c.cfg.TurnEntryHeading)
	}); err != nil {
		return err
	}
	if err := c.clock.Sleep(ctx, c.cfg.TurnEntryHold); err != nil {
		return err
	}
	return c.retry.do(ctx, "set_throttle", func(ctx context.Context) error {
		return c.vehicle.SetThrottle(ctx, c.cfg.TurnEntryThrottle)
	})
}

func (c *Controller) turnTick(ctx context.Context) error {
	tickStart := c.clock.Now()

	sample, err := c.sampler.Sample(ctx)
	if err != nil {
		return err
	}
	c.recordSample(sample)

	var el flight.Elements
	if err := c.retry.do(ctx, "orbital_elements", func(ctx context.Context) error {
		var err error
		el, err = c.vehicle.OrbitalElements(ctx)
		return err
	}); err != nil {
		return err
	}
	metrics.SetOrbit(el.Apoapsis, el.TimeToApoapsis)
	c.update(func(s *Status) { s.Orbit = &el })

	tr, err := c.seq.Advance(staging.Observation{Apoapsis: el.Apoapsis})
	if err != nil {
		return err
	}
	if tr.Changed() {
		c.transition(tr, sample)
		return c.cutoff(ctx)
	}

	fuel, err := c.propellant(ctx, flight.LiquidFuel)
	if err != nil {
		return err
	}
	if fuel <= c.cfg.CoreThreshold {
		return fmt.Errorf("core propellant exhausted (%.2f left) with apoapsis %.0f m below target %.0f m",
			fuel, el.Apoapsis, c.cfg.Staging.TargetApoapsis)
	}

	d, err := c.law.Decide(guidance.Input{
		Altitude:       sample.Altitude,
		Apoapsis:       el.Apoapsis,
		TimeToApoapsis: el.TimeToApoapsis,
		Speed:          sample.Speed,
	})
	if err != nil {
		return err
	}
	if err := d.Command.Validate(); err != nil {
		return fmt.Errorf("guidance produced %w", err)
	}
	if err := c.retry.do(ctx, "issue_command", func(ctx context.Context) error {
		return c.vehicle.IssueCommand(ctx, d.Command)
	}); err != nil {
		return err
	}

	metrics.SetCommand(d.Command.PitchDeg, d.Command.Throttle)
	cmd := d.Command
	c.update(func(s *Status) { s.LastCommand = &cmd })
	c.logger.Debug("guidance",
		"alt", sample.Altitude,
		"apo", el.Apoapsis,
		"tta", el.TimeToApoapsis,
		"speed", sample.Speed,
		"pitch", d.Command.PitchDeg,
		"throttle", d.Command.Throttle,
		"mode", string(d.Mode),
		"delay", d.Delay.String(),
	)

	metrics.ObserveTick(tr.To.String(), c.clock.Now().Sub(tickStart))
	return c.clock.Sleep(ctx, d.Delay)
}

func (c *Controller) cutoff(ctx context.Context) error {
	if err := c.retry.do(ctx, "set_throttle", func(ctx context.Context) error {
		return c.vehicle.SetThrottle(ctx, 0)
	}); err != nil {
		return err
	}
	if err := c.clock.Sleep(ctx, c.cfg.CutoffHold); err != nil {
		return err
	}
	c.logger.Info("final separation")
	if err := c.stage(ctx, "final_separation"); err != nil {
		return err
	}
	return c.clock.Sleep(ctx, c.cfg.CutoffHold)
}

// stage fires a staging event exactly once.
func (c *Controller) stage(ctx context.Context, op string) error {
	if err := c.retry.once(ctx, op, c.vehicle.ActivateNextStage); err != nil {
		return err
	}
	metrics.IncStageEvents()
	return nil
}

func (c *Controller) propellant(ctx context.Context, kind flight.Propellant) (float64, error) {
	var amount float64
	err := c.retry.do(ctx, "remaining_propellant", func(ctx context.Context) error {
		var err error
		amount, err = c.vehicle.RemainingPropellant(ctx, kind)
		return err
	})
	return amount, err
}

func (c *Controller) recordSample(sample telemetry.Sample) {
	c.update(func(s *Status) {
		s.Ticks++
		s.LastSample = &sample
	})
}

func (c *Controller) transition(tr staging.Transition, sample telemetry.Sample) {
	c.logger.Info("phase transition",
		"from", tr.From.String(),
		"to", tr.To.String(),
		"mission_time", sample.MissionTime,
		"alt", sample.Altitude,
	)
	metrics.SetPhase(tr.To.String(), phaseNames)
	c.update(func(s *Status) { s.Phase = tr.To })
}

// IsAbort reports whether err ended a flight after liftoff.
func IsAbort(err error) bool {
	return errors.Is(err, flight.ErrMissionAbort)
}
