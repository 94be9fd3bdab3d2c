// Command ascent flies the two-stage ascent against a kRPC vessel or the
// built-in simulator, predicts the trajectory offline, compares the two and
// serves recorded flights over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/star/ascent/internal/api"
	"github.com/star/ascent/internal/auth"
	"github.com/star/ascent/internal/config"
	"github.com/star/ascent/internal/flight"
	"github.com/star/ascent/internal/logging"
	"github.com/star/ascent/internal/stream"
)

const usageText = `usage: ascent <command> [flags]

commands:
  fly       fly the ascent (-vehicle sim|krpc)
  simulate  predict the trajectory and write it as a telemetry log
  compare   compare a recorded flight log with a prediction
  serve     serve a recorded flight over the monitoring API

Run "ascent <command> -h" for the flags of a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "fly":
		err = runFly(ctx, args)
	case "simulate":
		err = runSimulate(ctx, args)
	case "compare":
		err = runCompare(args)
	case "serve":
		err = runServe(ctx, args)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usageText)
	default:
		fmt.Fprint(os.Stderr, usageText)
		err = usageErrorf("unknown command %q", cmd)
	}
	stop()

	if err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintln(os.Stderr, "ascent:", err)
	}
	os.Exit(exitCode(err))
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// exitCode is 2 for bad invocations and configuration, 1 for any other
// failure. Asking for help is not a failure.
func exitCode(err error) int {
	var ue usageError
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.As(err, &ue), errors.Is(err, flight.ErrInvalidConfig):
		return 2
	}
	return 1
}

// common holds the flags every command shares.
type common struct {
	configPath string
	logLevel   string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", os.Getenv("ASCENT_CONFIG"), "config file (TOML, YAML or JSON)")
	fs.StringVar(&c.logLevel, "log-level", "", "override log.level")
}

// setup loads the configuration and builds the logger. The returned func
// closes the log file.
func (c *common) setup() (config.Config, *slog.Logger, func() error, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	logger, closeLog, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return config.Config{}, nil, nil, flight.InvalidConfigf("%v", err)
	}
	logging.LogBuild(logger)
	return cfg, logger, closeLog, nil
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageErrorf("%s: %v", fs.Name(), err)
	}
	if fs.NArg() > 0 {
		return usageErrorf("%s: unexpected arguments %v", fs.Name(), fs.Args())
	}
	return nil
}

// apiOptions maps the configuration onto the monitoring server.
func apiOptions(cfg config.Config, addr string) (api.Options, error) {
	vc, err := cfg.VehicleConfig()
	if err != nil {
		return api.Options{}, err
	}
	sc := stream.DefaultConfig()
	sc.MaxConcurrentPerIP = cfg.HTTP.StreamPerIP
	sc.MaxConcurrent = cfg.HTTP.StreamTotal
	return api.Options{
		Addr:          addr,
		Auth:          auth.Config{Enabled: cfg.HTTP.AuthEnabled, Token: cfg.HTTP.AuthToken},
		Stream:        sc,
		TrustProxy:    cfg.HTTP.TrustProxy,
		Vehicle:       vc,
		Integrator:    cfg.Integrator(),
		DefaultMargin: cfg.Simulation.Margin,
		MaxPoints:     cfg.HTTP.SimMaxPoints,
		CacheSize:     cfg.HTTP.SimCacheSize,
		CacheTTL:      cfg.HTTP.SimCacheTTL,
	}, nil
}
