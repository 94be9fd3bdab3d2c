package main

import (
	"flag"
	"os"

	"github.com/star/ascent/internal/compare"
	"github.com/star/ascent/internal/telemetry"
)

func runCompare(args []string) error {
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	var c common
	c.register(fs)
	recordedPath := fs.String("recorded", "", "recorded flight log (default: telemetry.log_path)")
	predictedPath := fs.String("predicted", "", "prediction log (default: telemetry.predicted_path)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, logger, closeLog, err := c.setup()
	if err != nil {
		return err
	}
	defer closeLog()

	if *recordedPath == "" {
		*recordedPath = cfg.Telemetry.LogPath
	}
	if *predictedPath == "" {
		*predictedPath = cfg.Telemetry.PredictedPath
	}

	recorded, err := telemetry.ReadFile(*recordedPath)
	if err != nil {
		return err
	}
	predicted, err := telemetry.ReadFile(*predictedPath)
	if err != nil {
		return err
	}

	report, err := compare.Compare(recorded, predicted)
	if err != nil {
		return err
	}
	logger.Info("comparison complete",
		"recorded", *recordedPath,
		"predicted", *predictedPath,
		"matched", report.Matched,
		"out_of_span", report.OutOfSpan,
	)
	return report.Write(os.Stdout)
}
