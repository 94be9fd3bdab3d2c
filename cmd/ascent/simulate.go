package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/star/ascent/internal/config"
	"github.com/star/ascent/internal/metrics"
	"github.com/star/ascent/internal/telemetry"
	"github.com/star/ascent/internal/trajectory"
	"github.com/star/ascent/internal/vehicle"
)

func runSimulate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	var c common
	c.register(fs)
	margin := fs.Float64("margin", -1, "seconds before total burnout to stop (default: simulation.margin)")
	points := fs.Int("points", 0, "output grid size (default: simulation.points)")
	out := fs.String("out", "", "prediction log path (default: telemetry.predicted_path)")
	sweep := fs.String("sweep", "", "comma-separated margins to simulate concurrently, e.g. 20,25,30")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, logger, closeLog, err := c.setup()
	if err != nil {
		return err
	}
	defer closeLog()

	if *margin >= 0 {
		cfg.Simulation.Margin = *margin
	}
	if *points != 0 {
		cfg.Simulation.Points = *points
	}
	if *out != "" {
		cfg.Telemetry.PredictedPath = *out
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	vc, err := cfg.VehicleConfig()
	if err != nil {
		return err
	}
	model, err := vehicle.NewModel(vc)
	if err != nil {
		return err
	}

	if *sweep != "" {
		margins, err := parseMargins(*sweep)
		if err != nil {
			return err
		}
		return simulateSweep(ctx, model, cfg, margins, os.Stdout, logger)
	}
	return simulateOne(ctx, model, cfg, logger)
}

func simulateOne(ctx context.Context, model *vehicle.Model, cfg config.Config, logger *slog.Logger) error {
	run, err := newRun(model, cfg, cfg.Simulation.Margin)
	if err != nil {
		return err
	}

	start := time.Now()
	tr, err := trajectory.Simulate(ctx, run.Model, run.Grid, run.Options)
	metrics.ObserveSimulation(time.Since(start), err)
	if err != nil {
		return err
	}

	samples := tr.Samples()
	if err := telemetry.WriteFile(cfg.Telemetry.PredictedPath, samples); err != nil {
		return err
	}
	final := samples[len(samples)-1]
	logger.Info("prediction written",
		"path", cfg.Telemetry.PredictedPath,
		"points", len(samples),
		"cutoff", final.MissionTime,
		"altitude", final.Altitude,
		"speed", final.Speed,
		"lateral", final.Lateral,
		"mass", final.Mass,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func simulateSweep(ctx context.Context, model *vehicle.Model, cfg config.Config, margins []float64, w io.Writer, logger *slog.Logger) error {
	runs := make([]trajectory.Run, len(margins))
	for i, m := range margins {
		run, err := newRun(model, cfg, m)
		if err != nil {
			return err
		}
		runs[i] = run
	}

	wp := trajectory.NewWorkerPool(cfg.Simulation.Workers, logger)
	results, ok, failed := wp.RunBatch(ctx, runs)
	for _, r := range results {
		metrics.ObserveSimulation(r.Duration, r.Err)
	}
	logger.Info("sweep complete", "runs", len(runs), "succeeded", ok, "failed", failed)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "margin\tcutoff\tspeed\taltitude\tlateral\tmass\tms\t")
	for i, r := range results {
		if r.Err != nil {
			fmt.Fprintf(tw, "%g\t-\t-\t-\t-\t-\t-\t%v\n", margins[i], r.Err)
			continue
		}
		f := r.Trajectory.Samples()
		last := f[len(f)-1]
		fmt.Fprintf(tw, "%g\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%d\t\n",
			margins[i], last.MissionTime, last.Speed, last.Altitude, last.Lateral, last.Mass,
			r.Duration.Milliseconds())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d simulations failed", failed, len(runs))
	}
	return nil
}

func newRun(model *vehicle.Model, cfg config.Config, margin float64) (trajectory.Run, error) {
	cutoff, err := trajectory.Cutoff(model.BurnTime(), margin)
	if err != nil {
		return trajectory.Run{}, err
	}
	grid, err := trajectory.Grid(0, cutoff, cfg.Simulation.Points)
	if err != nil {
		return trajectory.Run{}, err
	}
	return trajectory.Run{
		Name:    "margin=" + strconv.FormatFloat(margin, 'g', -1, 64),
		Model:   model,
		Grid:    grid,
		Options: cfg.Integrator(),
	}, nil
}

func parseMargins(s string) ([]float64, error) {
	var out []float64
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		m, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, usageErrorf("simulate: bad -sweep margin %q", f)
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, usageErrorf("simulate: -sweep lists no margins")
	}
	return out, nil
}
