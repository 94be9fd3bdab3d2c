package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"

	"github.com/star/ascent/internal/api"
	"github.com/star/ascent/internal/telemetry"
)

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var c common
	c.register(fs)
	logPath := fs.String("log", "", "flight log to serve (default: newest archived flight, else telemetry.log_path)")
	httpAddr := fs.String("http", "", "listen address (default: http.addr, else :8080)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, logger, closeLog, err := c.setup()
	if err != nil {
		return err
	}
	defer closeLog()

	addr := *httpAddr
	if addr == "" {
		addr = cfg.HTTP.Addr
	}
	if addr == "" {
		addr = ":8080"
	}

	path, id := *logPath, ""
	if path == "" && cfg.Telemetry.ArchiveDir != "" {
		archive := telemetry.NewArchive(cfg.Telemetry.ArchiveDir, cfg.Telemetry.MaxFiles, cfg.Telemetry.Compress)
		if latest, err := archive.Latest(); err == nil {
			path, id = latest.Path, latest.ID
		} else {
			logger.Info("no archived flight, falling back to the flight log", "error", err)
		}
	}
	if path == "" {
		path = cfg.Telemetry.LogPath
	}
	if id == "" {
		id = flightName(path)
	}

	samples, err := telemetry.ReadFile(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	rec, err := api.NewRecorded(id, samples, info.ModTime())
	if err != nil {
		return err
	}

	opts, err := apiOptions(cfg, addr)
	if err != nil {
		return err
	}
	srv, err := api.NewServer(rec, opts, logger)
	if err != nil {
		return err
	}
	logger.Info("serving recorded flight", "path", path, "flight_id", id, "samples", len(samples))
	return srv.Run(ctx)
}

// flightName is the log file name without its extensions.
func flightName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), ".zst")
	return strings.TrimSuffix(base, filepath.Ext(base))
}
