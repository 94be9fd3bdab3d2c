package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/star/ascent/internal/control"
	"github.com/star/ascent/internal/flight"
	"github.com/star/ascent/internal/vehicle"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Mission.TargetApoapsis != 100000 {
		t.Errorf("target apoapsis = %v, want 100000", c.Mission.TargetApoapsis)
	}
	if c.Simulation.Margin != 25 || c.Simulation.Points != 1000 {
		t.Errorf("simulation = %+v, want margin 25 and 1000 points", c.Simulation)
	}
	if c.KRPC.Host != "127.0.0.1" {
		t.Errorf("krpc host = %q, want 127.0.0.1", c.KRPC.Host)
	}
	if c.Log.Level != "info" || c.Log.Format != "json" {
		t.Errorf("log = %+v, want info/json", c.Log)
	}

	ctl := c.ControllerConfig()
	want := control.DefaultConfig(100000)
	if ctl.BoosterTick != want.BoosterTick || ctl.IgnitionSettle != want.IgnitionSettle ||
		ctl.Retry != want.Retry || ctl.Guidance.BaseTick != want.Guidance.BaseTick {
		t.Errorf("controller config differs from the reference: %+v", ctl)
	}

	vc, err := c.VehicleConfig()
	if err != nil {
		t.Fatalf("VehicleConfig: %v", err)
	}
	ref := vehicle.Reference()
	if len(vc.Stages) != len(ref.Stages) {
		t.Fatalf("got %d stages, want %d", len(vc.Stages), len(ref.Stages))
	}
	for i := range ref.Stages {
		if vc.Stages[i] != ref.Stages[i] {
			t.Errorf("stage %d = %+v, want %+v", i, vc.Stages[i], ref.Stages[i])
		}
	}
	if vc.Payload != ref.Payload {
		t.Errorf("payload = %v, want %v", vc.Payload, ref.Payload)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("ASCENT_MISSION_TARGET_APOAPSIS", "120000")
	t.Setenv("ASCENT_RETRY_INITIAL", "50ms")
	t.Setenv("ASCENT_HTTP_ADDR", ":9090")
	t.Setenv("ASCENT_LOG_LEVEL", "debug")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Mission.TargetApoapsis != 120000 {
		t.Errorf("target apoapsis = %v, want 120000", c.Mission.TargetApoapsis)
	}
	if c.Retry.Initial != 50*time.Millisecond {
		t.Errorf("retry initial = %v, want 50ms", c.Retry.Initial)
	}
	if c.HTTP.Addr != ":9090" {
		t.Errorf("http addr = %q, want :9090", c.HTTP.Addr)
	}
	if c.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", c.Log.Level)
	}
	if got := c.ControllerConfig().Staging.TargetApoapsis; got != 120000 {
		t.Errorf("staging target = %v, want 120000", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ascent.toml")
	body := `
[mission]
target_apoapsis = 90000
booster_tick = "100ms"

[vehicle]
payload = 1000

[[vehicle.stages]]
name = "first"
dry_mass = 500
propellant_mass = 4000
burn_duration = 40
isp = 250

[[vehicle.stages]]
name = "second"
dry_mass = 300
propellant_mass = 2000
burn_duration = 100
isp = 300
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Mission.TargetApoapsis != 90000 || c.Mission.BoosterTick != 100*time.Millisecond {
		t.Errorf("mission = %+v, want 90000 and 100ms", c.Mission)
	}
	vc, err := c.VehicleConfig()
	if err != nil {
		t.Fatalf("VehicleConfig: %v", err)
	}
	if len(vc.Stages) != 2 || vc.Stages[0].Name != "first" || vc.Stages[1].Isp != 300 {
		t.Errorf("stages = %+v, want first/second from the file", vc.Stages)
	}
	if vc.Payload != 1000 {
		t.Errorf("payload = %v, want 1000", vc.Payload)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero target", func(c *Config) { c.Mission.TargetApoapsis = 0 }},
		{"zero booster tick", func(c *Config) { c.Mission.BoosterTick = 0 }},
		{"zero guidance tick", func(c *Config) { c.Mission.GuidanceTick = 0 }},
		{"negative margin", func(c *Config) { c.Simulation.Margin = -1 }},
		{"one point", func(c *Config) { c.Simulation.Points = 1 }},
		{"no workers", func(c *Config) { c.Simulation.Workers = 0 }},
		{"zero tolerance", func(c *Config) { c.Simulation.RelTol = 0 }},
		{"no log path", func(c *Config) { c.Telemetry.LogPath = "" }},
		{"archive without files", func(c *Config) { c.Telemetry.ArchiveDir = "a"; c.Telemetry.MaxFiles = 0 }},
		{"auth without token", func(c *Config) { c.HTTP.AuthEnabled = true }},
		{"stream limits inverted", func(c *Config) { c.HTTP.StreamPerIP = 10; c.HTTP.StreamTotal = 5 }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"retry without attempts", func(c *Config) { c.Retry.Attempts = 0 }},
		{"negative payload", func(c *Config) { c.Vehicle.Payload = -1 }},
		{"negative core threshold", func(c *Config) { c.Mission.CoreThreshold = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			c.Vehicle.Stages = append([]Stage(nil), base.Vehicle.Stages...)
			tt.mutate(&c)
			err := c.Validate()
			if !errors.Is(err, flight.ErrInvalidConfig) {
				t.Errorf("Validate = %v, want ErrInvalidConfig", err)
			}
		})
	}

	if err := base.Validate(); err != nil {
		t.Errorf("defaults rejected: %v", err)
	}
}
