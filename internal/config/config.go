// Package config loads the ascent configuration from defaults, an optional
// TOML/YAML/JSON file and ASCENT_* environment variables, in increasing
// precedence. Nested keys map to variables by upper-casing and replacing
// dots with underscores: mission.target_apoapsis is
// ASCENT_MISSION_TARGET_APOAPSIS.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/star/ascent/internal/control"
	"github.com/star/ascent/internal/flight"
	"github.com/star/ascent/internal/trajectory"
	"github.com/star/ascent/internal/vehicle"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ASCENT"

// Config is the full program configuration.
type Config struct {
	Mission    Mission    `mapstructure:"mission"`
	Vehicle    Vehicle    `mapstructure:"vehicle"`
	Simulation Simulation `mapstructure:"simulation"`
	Telemetry  Telemetry  `mapstructure:"telemetry"`
	Retry      Retry      `mapstructure:"retry"`
	HTTP       HTTP       `mapstructure:"http"`
	KRPC       KRPC       `mapstructure:"krpc"`
	Log        Log        `mapstructure:"log"`
}

// Mission holds the flight targets and controller timing.
type Mission struct {
	TargetApoapsis   float64       `mapstructure:"target_apoapsis"`
	BoosterTick      time.Duration `mapstructure:"booster_tick"`
	IgnitionSettle   time.Duration `mapstructure:"ignition_settle"`
	SeparationDelay  time.Duration `mapstructure:"separation_delay"`
	TurnEntryHold    time.Duration `mapstructure:"turn_entry_hold"`
	CutoffHold       time.Duration `mapstructure:"cutoff_hold"`
	Deadline         time.Duration `mapstructure:"deadline"`
	BoosterThreshold float64       `mapstructure:"booster_threshold"`
	CoreThreshold    float64       `mapstructure:"core_threshold"`
	YawAltitude      float64       `mapstructure:"yaw_altitude"`
	BoosterYaw       float64       `mapstructure:"booster_yaw"`
	Heading          float64       `mapstructure:"heading"`
	GuidanceTick     time.Duration `mapstructure:"guidance_tick"`
	BurstHold        time.Duration `mapstructure:"burst_hold"`
}

// Stage mirrors vehicle.Stage.
type Stage struct {
	Name           string  `mapstructure:"name"`
	DryMass        float64 `mapstructure:"dry_mass"`
	PropellantMass float64 `mapstructure:"propellant_mass"`
	BurnDuration   float64 `mapstructure:"burn_duration"`
	Isp            float64 `mapstructure:"isp"`
}

// Vehicle overrides parts of the reference vehicle model.
type Vehicle struct {
	Payload         float64 `mapstructure:"payload"`
	DragCoefficient float64 `mapstructure:"drag_coefficient"`
	ReferenceArea   float64 `mapstructure:"reference_area"`
	Stages          []Stage `mapstructure:"stages"`
}

// Simulation tunes the trajectory predictor.
type Simulation struct {
	Margin  float64 `mapstructure:"margin"`
	Points  int     `mapstructure:"points"`
	RelTol  float64 `mapstructure:"rel_tol"`
	AbsTol  float64 `mapstructure:"abs_tol"`
	MaxStep float64 `mapstructure:"max_step"`
	Workers int     `mapstructure:"workers"`
}

// Telemetry locates the flight logs.
type Telemetry struct {
	LogPath       string `mapstructure:"log_path"`
	PredictedPath string `mapstructure:"predicted_path"`
	ArchiveDir    string `mapstructure:"archive_dir"`
	MaxFiles      int    `mapstructure:"max_files"`
	Compress      bool   `mapstructure:"compress"`
}

// Retry mirrors control.RetryPolicy.
type Retry struct {
	Attempts   int           `mapstructure:"attempts"`
	Initial    time.Duration `mapstructure:"initial"`
	Max        time.Duration `mapstructure:"max"`
	Multiplier float64       `mapstructure:"multiplier"`
}

// HTTP configures the monitoring API. An empty Addr disables it during
// flights.
type HTTP struct {
	Addr           string        `mapstructure:"addr"`
	TrustProxy     bool          `mapstructure:"trust_proxy"`
	AuthEnabled    bool          `mapstructure:"auth_enabled"`
	AuthToken      string        `mapstructure:"auth_token"`
	StreamPerIP    int           `mapstructure:"stream_per_ip"`
	StreamTotal    int           `mapstructure:"stream_total"`
	SimCacheSize   int           `mapstructure:"sim_cache_size"`
	SimCacheTTL    time.Duration `mapstructure:"sim_cache_ttl"`
	SimMaxPoints   int           `mapstructure:"sim_max_points"`
	ShutdownLinger time.Duration `mapstructure:"shutdown_linger"`
}

// KRPC locates the kRPC server.
type KRPC struct {
	Host string `mapstructure:"host"`
}

// Log configures the process logger.
type Log struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	ref := vehicle.Reference()
	ctl := control.DefaultConfig(100000)

	v.SetDefault("mission.target_apoapsis", 100000.0)
	v.SetDefault("mission.booster_tick", ctl.BoosterTick)
	v.SetDefault("mission.ignition_settle", ctl.IgnitionSettle)
	v.SetDefault("mission.separation_delay", ctl.SeparationDelay)
	v.SetDefault("mission.turn_entry_hold", ctl.TurnEntryHold)
	v.SetDefault("mission.cutoff_hold", ctl.CutoffHold)
	v.SetDefault("mission.deadline", time.Duration(0))
	v.SetDefault("mission.booster_threshold", ctl.Staging.BoosterThreshold)
	v.SetDefault("mission.core_threshold", ctl.CoreThreshold)
	v.SetDefault("mission.yaw_altitude", ctl.Staging.YawAltitude)
	v.SetDefault("mission.booster_yaw", ctl.Staging.BoosterYaw)
	v.SetDefault("mission.heading", ctl.Guidance.HeadingDeg)
	v.SetDefault("mission.guidance_tick", ctl.Guidance.BaseTick)
	v.SetDefault("mission.burst_hold", ctl.Guidance.BurstHold)

	stages := make([]map[string]any, len(ref.Stages))
	for i, s := range ref.Stages {
		stages[i] = map[string]any{
			"name":            s.Name,
			"dry_mass":        s.DryMass,
			"propellant_mass": s.PropellantMass,
			"burn_duration":   s.BurnDuration,
			"isp":             s.Isp,
		}
	}
	v.SetDefault("vehicle.payload", ref.Payload)
	v.SetDefault("vehicle.drag_coefficient", ref.Aero.DragCoefficient)
	v.SetDefault("vehicle.reference_area", ref.Aero.ReferenceArea)
	v.SetDefault("vehicle.stages", stages)

	integ := trajectory.DefaultOptions()
	v.SetDefault("simulation.margin", 25.0)
	v.SetDefault("simulation.points", 1000)
	v.SetDefault("simulation.rel_tol", integ.RelTol)
	v.SetDefault("simulation.abs_tol", integ.AbsTol)
	v.SetDefault("simulation.max_step", integ.MaxStep)
	v.SetDefault("simulation.workers", runtime.NumCPU())

	v.SetDefault("telemetry.log_path", "flight.log")
	v.SetDefault("telemetry.predicted_path", "predicted.log")
	v.SetDefault("telemetry.archive_dir", "")
	v.SetDefault("telemetry.max_files", 20)
	v.SetDefault("telemetry.compress", false)

	rp := control.DefaultRetryPolicy()
	v.SetDefault("retry.attempts", rp.Attempts)
	v.SetDefault("retry.initial", rp.Initial)
	v.SetDefault("retry.max", rp.Max)
	v.SetDefault("retry.multiplier", rp.Multiplier)

	v.SetDefault("http.addr", "")
	v.SetDefault("http.trust_proxy", false)
	v.SetDefault("http.auth_enabled", false)
	v.SetDefault("http.auth_token", "")
	v.SetDefault("http.stream_per_ip", 10)
	v.SetDefault("http.stream_total", 1000)
	v.SetDefault("http.sim_cache_size", 32)
	v.SetDefault("http.sim_cache_ttl", 10*time.Minute)
	v.SetDefault("http.sim_max_points", 5000)
	v.SetDefault("http.shutdown_linger", 5*time.Second)

	v.SetDefault("krpc.host", "127.0.0.1")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 64)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)
	v.SetDefault("log.compress", true)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (optional) and the environment over the defaults and
// validates the result.
func Load(path string) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, flight.InvalidConfigf("decoding config: %v", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

var (
	logLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	logFormats = map[string]bool{"json": true, "text": true}
)

// Validate checks every section. Errors wrap flight.ErrInvalidConfig.
func (c Config) Validate() error {
	if _, err := c.VehicleConfig(); err != nil {
		return err
	}
	if err := c.ControllerConfig().Validate(); err != nil {
		return err
	}
	if !(c.Mission.TargetApoapsis > 0) {
		return flight.InvalidConfigf("mission.target_apoapsis must be positive, got %g", c.Mission.TargetApoapsis)
	}
	if c.Mission.GuidanceTick <= 0 || c.Mission.BurstHold < 0 {
		return flight.InvalidConfigf("mission.guidance_tick must be positive and mission.burst_hold not negative")
	}
	if c.Simulation.Margin < 0 {
		return flight.InvalidConfigf("simulation.margin must not be negative, got %g", c.Simulation.Margin)
	}
	if c.Simulation.Points < 2 {
		return flight.InvalidConfigf("simulation.points must be at least 2, got %d", c.Simulation.Points)
	}
	if c.Simulation.RelTol <= 0 || c.Simulation.AbsTol <= 0 || c.Simulation.MaxStep < 0 {
		return flight.InvalidConfigf("simulation tolerances must be positive")
	}
	if c.Simulation.Workers < 1 {
		return flight.InvalidConfigf("simulation.workers must be at least 1, got %d", c.Simulation.Workers)
	}
	if c.Telemetry.LogPath == "" {
		return flight.InvalidConfigf("telemetry.log_path is required")
	}
	if c.Telemetry.ArchiveDir != "" && c.Telemetry.MaxFiles < 1 {
		return flight.InvalidConfigf("telemetry.max_files must be at least 1, got %d", c.Telemetry.MaxFiles)
	}
	if c.HTTP.AuthEnabled && c.HTTP.AuthToken == "" {
		return flight.InvalidConfigf("http.auth_token is required when auth is enabled")
	}
	if c.HTTP.StreamPerIP < 1 || c.HTTP.StreamTotal < c.HTTP.StreamPerIP {
		return flight.InvalidConfigf("http stream limits must satisfy 1 <= stream_per_ip <= stream_total")
	}
	if !logLevels[strings.ToLower(c.Log.Level)] {
		return flight.InvalidConfigf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if !logFormats[strings.ToLower(c.Log.Format)] {
		return flight.InvalidConfigf("log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

// VehicleConfig applies the vehicle section to the reference model and
// validates it.
func (c Config) VehicleConfig() (vehicle.Config, error) {
	cfg := vehicle.Reference()
	cfg.Payload = c.Vehicle.Payload
	cfg.Aero.DragCoefficient = c.Vehicle.DragCoefficient
	cfg.Aero.ReferenceArea = c.Vehicle.ReferenceArea
	if len(c.Vehicle.Stages) > 0 {
		cfg.Stages = make([]vehicle.Stage, len(c.Vehicle.Stages))
		for i, s := range c.Vehicle.Stages {
			cfg.Stages[i] = vehicle.Stage{
				Name:           s.Name,
				DryMass:        s.DryMass,
				PropellantMass: s.PropellantMass,
				BurnDuration:   s.BurnDuration,
				Isp:            s.Isp,
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		return vehicle.Config{}, err
	}
	return cfg, nil
}

// ControllerConfig builds the flight controller settings.
func (c Config) ControllerConfig() control.Config {
	m := c.Mission
	cfg := control.DefaultConfig(m.TargetApoapsis)
	cfg.BoosterTick = m.BoosterTick
	cfg.IgnitionSettle = m.IgnitionSettle
	cfg.SeparationDelay = m.SeparationDelay
	cfg.TurnEntryHold = m.TurnEntryHold
	cfg.CutoffHold = m.CutoffHold
	cfg.Deadline = m.Deadline
	cfg.CoreThreshold = m.CoreThreshold
	cfg.TurnEntryHeading = m.Heading

	cfg.Staging.BoosterThreshold = m.BoosterThreshold
	cfg.Staging.YawAltitude = m.YawAltitude
	cfg.Staging.BoosterYaw = m.BoosterYaw

	cfg.Guidance.HeadingDeg = m.Heading
	cfg.Guidance.BaseTick = m.GuidanceTick
	cfg.Guidance.BurstHold = m.BurstHold

	cfg.Retry = control.RetryPolicy{
		Attempts:   c.Retry.Attempts,
		Initial:    c.Retry.Initial,
		Max:        c.Retry.Max,
		Multiplier: c.Retry.Multiplier,
	}
	return cfg
}

// Integrator returns the solver tolerances.
func (c Config) Integrator() trajectory.Options {
	return trajectory.Options{
		RelTol:  c.Simulation.RelTol,
		AbsTol:  c.Simulation.AbsTol,
		MaxStep: c.Simulation.MaxStep,
	}
}
