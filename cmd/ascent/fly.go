package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/star/ascent/internal/api"
	"github.com/star/ascent/internal/config"
	"github.com/star/ascent/internal/control"
	"github.com/star/ascent/internal/flight"
	"github.com/star/ascent/internal/krpcvessel"
	"github.com/star/ascent/internal/simcraft"
	"github.com/star/ascent/internal/telemetry"
)

func runFly(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fly", flag.ContinueOnError)
	var c common
	c.register(fs)
	kind := fs.String("vehicle", "sim", "vehicle to fly: sim or krpc")
	var o flyOverrides
	fs.Float64Var(&o.target, "target", 0, "target apoapsis in m (default: mission.target_apoapsis)")
	fs.Float64Var(&o.tick, "tick", 0, "guidance tick interval in s (default: mission.guidance_tick)")
	fs.StringVar(&o.logPath, "log", "", "telemetry log path (default: telemetry.log_path)")
	fs.StringVar(&o.httpAddr, "http", "", "serve the monitoring API on this address (default: http.addr)")
	fs.StringVar(&o.krpcHost, "krpc-host", "", "kRPC server host (default: krpc.host)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *kind != "sim" && *kind != "krpc" {
		return usageErrorf("fly: -vehicle must be sim or krpc, got %q", *kind)
	}

	cfg, logger, closeLog, err := c.setup()
	if err != nil {
		return err
	}
	defer closeLog()

	if err := o.apply(&cfg); err != nil {
		return err
	}

	flightID := uuid.NewString()

	v, clock, release, err := openVehicle(ctx, *kind, cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	fw, err := telemetry.Create(cfg.Telemetry.LogPath)
	if err != nil {
		return err
	}
	defer fw.Close()

	ctl, err := control.New(cfg.ControllerConfig(), v, control.Options{
		Clock:    clock,
		Sink:     fw,
		FlightID: flightID,
	}, logger)
	if err != nil {
		return err
	}

	logger.Info("flight starting",
		"flight_id", flightID,
		"vehicle", *kind,
		"target_apoapsis", cfg.Mission.TargetApoapsis,
		"log", fw.Path(),
		"http", cfg.HTTP.Addr,
	)

	flightErr := flyWithMonitor(ctx, ctl, cfg, logger)

	if err := fw.Close(); err != nil {
		logger.Error("closing telemetry log", "error", err)
	}
	archiveFlight(cfg, ctl, flightID, logger)

	st := ctl.Status()
	attrs := []any{"flight_id", flightID, "state", st.State, "phase", st.Phase, "samples", ctl.Log().Len()}
	if last, ok := ctl.Log().Last(); ok {
		attrs = append(attrs, "mission_time", last.MissionTime, "altitude", last.Altitude, "speed", last.Speed)
	}
	logger.Info("flight finished", attrs...)
	return flightErr
}

// flyOverrides holds the fly flags that override config values. Zero
// values leave the config untouched.
type flyOverrides struct {
	target   float64
	tick     float64 // seconds
	logPath  string
	httpAddr string
	krpcHost string
}

// apply overrides cfg and validates the result.
func (o flyOverrides) apply(cfg *config.Config) error {
	if o.tick < 0 || math.IsNaN(o.tick) || math.IsInf(o.tick, 0) {
		return usageErrorf("fly: -tick must be a positive number of seconds, got %g", o.tick)
	}
	if o.target != 0 {
		cfg.Mission.TargetApoapsis = o.target
	}
	if o.tick > 0 {
		cfg.Mission.GuidanceTick = time.Duration(o.tick * float64(time.Second))
	}
	if o.logPath != "" {
		cfg.Telemetry.LogPath = o.logPath
	}
	if o.httpAddr != "" {
		cfg.HTTP.Addr = o.httpAddr
	}
	if o.krpcHost != "" {
		cfg.KRPC.Host = o.krpcHost
	}
	return cfg.Validate()
}

// openVehicle returns the vehicle to fly, the clock the controller should
// wait on and a release func.
func openVehicle(ctx context.Context, kind string, cfg config.Config, logger *slog.Logger) (flight.Vehicle, control.Clock, func(), error) {
	switch kind {
	case "krpc":
		v, err := krpcvessel.Dial(ctx, krpcvessel.Options{Host: cfg.KRPC.Host}, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to kRPC at %s: %w", cfg.KRPC.Host, err)
		}
		return v, control.WallClock{}, v.Close, nil
	default:
		vc, err := cfg.VehicleConfig()
		if err != nil {
			return nil, nil, nil, err
		}
		craft, err := simcraft.New(vc, simcraft.Options{Epoch: time.Now()}, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return craft, craft, func() {}, nil
	}
}

// flyWithMonitor runs the controller and, when configured, the monitoring
// API next to it. The API stays up for http.shutdown_linger after the
// flight so clients can fetch the final state. A server failure stops the
// flight and is joined to its outcome.
func flyWithMonitor(ctx context.Context, ctl *control.Controller, cfg config.Config, logger *slog.Logger) error {
	if cfg.HTTP.Addr == "" {
		return ctl.Run(ctx)
	}

	opts, err := apiOptions(cfg, cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	srv, err := api.NewServer(ctl, opts, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	var flightErr error
	g.Go(func() error {
		return srv.Run(serverCtx)
	})
	g.Go(func() error {
		defer stopServer()
		flightErr = ctl.Run(gctx)
		select {
		case <-time.After(cfg.HTTP.ShutdownLinger):
		case <-gctx.Done():
		}
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return errors.Join(flightErr, fmt.Errorf("monitoring API: %w", err))
	}
	return flightErr
}

func archiveFlight(cfg config.Config, ctl *control.Controller, id string, logger *slog.Logger) {
	if cfg.Telemetry.ArchiveDir == "" || ctl.Log().Len() == 0 {
		return
	}
	archive := telemetry.NewArchive(cfg.Telemetry.ArchiveDir, cfg.Telemetry.MaxFiles, cfg.Telemetry.Compress)
	path, err := archive.Store(ctl.Log().Snapshot(), id, ctl.Status().StartedAt)
	if err != nil {
		logger.Error("archiving flight", "error", err)
		return
	}
	logger.Info("flight archived", "path", path)
}
