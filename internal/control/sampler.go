package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/star/ascent/internal/flight"
	"github.com/star/ascent/internal/metrics"
	"github.com/star/ascent/internal/telemetry"
)

// SampleSink receives every recorded sample, typically a log file.
type SampleSink interface {
	Append(telemetry.Sample) error
}

// Sampler reads one sample per tick and records it, so the value a decision
// used is exactly the value that gets logged.
type Sampler struct {
	vehicle flight.Vehicle
	retry   *retrier
	log     *telemetry.Log
	sink    SampleSink
	logger  *slog.Logger
}

// Sample reads, normalizes and records the current telemetry.
func (s *Sampler) Sample(ctx context.Context) (telemetry.Sample, error) {
	var sample telemetry.Sample
	err := s.retry.do(ctx, "read_sample", func(ctx context.Context) error {
		var err error
		sample, err = s.vehicle.ReadSample(ctx)
		return err
	})
	if err != nil {
		return telemetry.Sample{}, err
	}

	sample = sample.Normalized()
	if err := s.log.Append(sample); err != nil {
		return telemetry.Sample{}, err
	}
	if s.sink != nil {
		if err := s.sink.Append(sample); err != nil {
			return telemetry.Sample{}, fmt.Errorf("recording sample: %w", err)
		}
	}

	metrics.SetSample(sample.MissionTime, sample.Speed, sample.Altitude, sample.Mass)
	s.logger.Debug("sample",
		"t", sample.MissionTime,
		"speed", sample.Speed,
		"alt", sample.Altitude,
		"lateral", sample.Lateral,
		"mass", sample.Mass,
	)
	return sample, nil
}
