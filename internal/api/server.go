// Package api serves the monitoring HTTP interface: probes, Prometheus
// metrics, the flight status and log, the live telemetry stream and on-demand
// trajectory predictions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/star/ascent/internal/auth"
	"github.com/star/ascent/internal/control"
	"github.com/star/ascent/internal/health"
	"github.com/star/ascent/internal/httputil"
	"github.com/star/ascent/internal/metrics"
	"github.com/star/ascent/internal/stream"
	"github.com/star/ascent/internal/telemetry"
	"github.com/star/ascent/internal/trajectory"
	"github.com/star/ascent/internal/vehicle"
)

// Flight is the flight being monitored. *control.Controller satisfies it.
type Flight interface {
	Log() *telemetry.Log
	Status() control.Status
}

// Options configures the server.
type Options struct {
	Addr       string
	Auth       auth.Config
	Stream     stream.Config
	TrustProxy bool

	// Vehicle and Integrator drive /api/v1/simulate.
	Vehicle       vehicle.Config
	Integrator    trajectory.Options
	DefaultMargin float64       // s (default: 25)
	MaxPoints     int           // largest accepted grid (default: 5000)
	CacheSize     int           // cached predictions (default: 32)
	CacheTTL      time.Duration // prediction lifetime in the cache (default: 10m)
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server for flight.
func NewServer(flight Flight, opts Options, logger *slog.Logger) (*Server, error) {
	logger = logger.With("component", "api")

	sim, err := newSimulator(opts, logger)
	if err != nil {
		return nil, err
	}
	opts.Stream.TrustProxy = opts.TrustProxy
	sse := stream.NewHandler(flight, opts.Stream, logger)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", health.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", health.Readyz(readiness(flight))).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/flight", flightHandler(flight)).Methods(http.MethodGet)
	v1.HandleFunc("/flight/samples", samplesHandler(flight)).Methods(http.MethodGet)
	v1.HandleFunc("/stream/telemetry", sse.HandleTelemetry).Methods(http.MethodGet)
	v1.HandleFunc("/simulate", sim.handle).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	// Build middleware chain: metrics -> logging -> auth -> router.
	var handler http.Handler = r
	handler = auth.Middleware(opts.Auth)(handler)
	handler = loggingMiddleware(logger, opts.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}, nil
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		errc <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// readiness is ready once the controller has passed its preflight check.
func readiness(flight Flight) health.Probe {
	return func() error {
		switch st := flight.Status(); st.State {
		case control.StatePending:
			return errors.New("flight not started")
		case control.StateFailed:
			return errors.New("flight rejected: " + st.Error)
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, extra map[string]any) {
	body := map[string]any{"error": msg}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush keeps the telemetry stream working through the logger.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
