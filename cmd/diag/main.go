// Command diag prints the vehicle model tables: mass and thrust over the burn
// and the atmosphere, gravity and commanded pitch over altitude.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/star/ascent/internal/config"
	"github.com/star/ascent/internal/vehicle"
)

func main() {
	configPath := flag.String("config", os.Getenv("ASCENT_CONFIG"), "config file (TOML, YAML or JSON)")
	step := flag.Float64("step", 10, "time step of the burn table in s")
	altStep := flag.Float64("alt-step", 5000, "altitude step of the atmosphere table in m")
	flag.Parse()

	if *step <= 0 || *altStep <= 0 {
		fmt.Fprintln(os.Stderr, "diag: -step and -alt-step must be positive")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "diag:", err)
		os.Exit(2)
	}
	vc, err := cfg.VehicleConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "diag:", err)
		os.Exit(2)
	}
	m, err := vehicle.NewModel(vc)
	if err != nil {
		fmt.Fprintln(os.Stderr, "diag:", err)
		os.Exit(2)
	}

	if err := dump(os.Stdout, m, *step, *altStep, cfg.Mission.TargetApoapsis); err != nil {
		fmt.Fprintln(os.Stderr, "diag:", err)
		os.Exit(1)
	}
}

func dump(w io.Writer, m *vehicle.Model, step, altStep, ceiling float64) error {
	cfg := m.Config()
	fmt.Fprintf(w, "body %s  mu=%.4g  radius=%.0f m\n", cfg.Body.Name, cfg.Body.Mu, cfg.Body.Radius)
	fmt.Fprintf(w, "liftoff mass %.1f kg  burnout mass %.1f kg  total burn %.1f s  drag factor %.5f\n\n",
		m.StartMass(), m.FinalMass(), m.BurnTime(), m.DragFactor())

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "stage\tname\tstart s\tend s\tthrust N\tflow kg/s\t")
	for i, s := range cfg.Stages {
		start, end := m.Window(i)
		fmt.Fprintf(tw, "%d\t%s\t%.1f\t%.1f\t%.0f\t%.2f\t\n", i, s.Name, start, end, m.StageThrust(i), s.FlowRate())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	fmt.Fprintln(tw, "t s\tstage\tmass kg\tthrust N\t")
	burn := m.BurnTime()
	for t := 0.0; ; t += step {
		if t > burn {
			t = burn
		}
		fmt.Fprintf(tw, "%.1f\t%d\t%.1f\t%.0f\t\n", t, m.StageAt(t), m.Mass(t), m.Thrust(t))
		if t == burn {
			break
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	fmt.Fprintln(tw, "h m\tdensity kg/m3\tgravity m/s2\tpitch deg\t")
	for h := 0.0; h <= ceiling; h += altStep {
		fmt.Fprintf(tw, "%.0f\t%.5f\t%.4f\t%.0f\t\n", h, m.Density(h), m.Gravity(h), m.CommandedAngle(h))
	}
	return tw.Flush()
}
