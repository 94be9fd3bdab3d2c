package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/star/ascent/internal/flight"
	"github.com/star/ascent/internal/metrics"
	"github.com/star/ascent/internal/telemetry"
	"github.com/star/ascent/internal/trajectory"
	"github.com/star/ascent/internal/vehicle"
)

const (
	defaultPoints    = 1000
	defaultMaxPoints = 5000
	defaultCacheSize = 32
	defaultCacheTTL  = 10 * time.Minute
	simulateTimeout  = 20 * time.Second
)

type prediction struct {
	Margin   float64            `json:"margin"`
	Cutoff   float64            `json:"cutoff"`
	BurnTime float64            `json:"burn_time"`
	Final    telemetry.Sample   `json:"final"`
	Samples  []telemetry.Sample `json:"samples"`
}

// simulator serves model predictions. Identical requests share one
// integration and its cached result.
type simulator struct {
	model     *vehicle.Model
	opts      trajectory.Options
	margin    float64
	maxPoints int
	cache     *expirable.LRU[string, *prediction]
	group     singleflight.Group
	logger    *slog.Logger
}

func newSimulator(opts Options, logger *slog.Logger) (*simulator, error) {
	cfg := opts.Vehicle
	if len(cfg.Stages) == 0 {
		cfg = vehicle.Reference()
	}
	model, err := vehicle.NewModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("simulation model: %w", err)
	}

	integ := opts.Integrator
	if integ.RelTol == 0 && integ.AbsTol == 0 {
		integ = trajectory.DefaultOptions()
	}
	margin := opts.DefaultMargin
	if margin == 0 {
		margin = 25
	}
	maxPoints := opts.MaxPoints
	if maxPoints <= 0 {
		maxPoints = defaultMaxPoints
	}
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	return &simulator{
		model:     model,
		opts:      integ,
		margin:    margin,
		maxPoints: maxPoints,
		cache:     expirable.NewLRU[string, *prediction](size, nil, ttl),
		logger:    logger,
	}, nil
}

func (s *simulator) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	margin := s.margin
	if v := q.Get("margin"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			writeError(w, http.StatusBadRequest, "margin must be a number of seconds", nil)
			return
		}
		margin = f
	}
	points := defaultPoints
	if v := q.Get("points"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 2 || n > s.maxPoints {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("points must be between 2 and %d", s.maxPoints), nil)
			return
		}
		points = n
	}

	key := strconv.FormatFloat(margin, 'g', -1, 64) + "/" + strconv.Itoa(points)
	if p, ok := s.cache.Get(key); ok {
		metrics.IncSimulationCache("hit")
		writeJSON(w, http.StatusOK, p)
		return
	}
	metrics.IncSimulationCache("miss")

	v, err, _ := s.group.Do(key, func() (any, error) {
		// Detached from the request so a caller that goes away does not
		// fail the others waiting on the same key.
		ctx, cancel := context.WithTimeout(context.Background(), simulateTimeout)
		defer cancel()
		p, err := s.predict(ctx, margin, points)
		if err != nil {
			return nil, err
		}
		s.cache.Add(key, p)
		return p, nil
	})
	if err != nil {
		var ie *trajectory.IntegrationError
		switch {
		case errors.Is(err, flight.ErrInvalidConfig):
			writeError(w, http.StatusBadRequest, err.Error(), nil)
		case errors.As(err, &ie):
			writeError(w, http.StatusUnprocessableEntity, err.Error(),
				map[string]any{"last_valid_time": ie.LastValidTime})
		default:
			s.logger.Error("simulation failed", "margin", margin, "points", points, "error", err)
			writeError(w, http.StatusServiceUnavailable, "simulation unavailable", nil)
		}
		return
	}
	writeJSON(w, http.StatusOK, v.(*prediction))
}

func (s *simulator) predict(ctx context.Context, margin float64, points int) (*prediction, error) {
	start := time.Now()
	p, err := s.run(ctx, margin, points)
	metrics.ObserveSimulation(time.Since(start), err)
	if err == nil {
		s.logger.Debug("simulation complete", "margin", margin, "points", points,
			"duration_ms", time.Since(start).Milliseconds())
	}
	return p, err
}

func (s *simulator) run(ctx context.Context, margin float64, points int) (*prediction, error) {
	burn := s.model.BurnTime()
	cutoff, err := trajectory.Cutoff(burn, margin)
	if err != nil {
		return nil, err
	}
	grid, err := trajectory.Grid(0, cutoff, points)
	if err != nil {
		return nil, err
	}
	tr, err := trajectory.Simulate(ctx, s.model, grid, s.opts)
	if err != nil {
		return nil, err
	}
	samples := tr.Samples()
	return &prediction{
		Margin:   margin,
		Cutoff:   cutoff,
		BurnTime: burn,
		Final:    samples[len(samples)-1],
		Samples:  samples,
	}, nil
}
