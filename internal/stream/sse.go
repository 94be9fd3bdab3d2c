// Package stream implements Server-Sent Events (SSE) streaming of flight
// telemetry. Clients connect via GET /api/v1/stream/telemetry and receive every
// sample recorded by the controller, plus phase changes.
//
// SSE message format:
//
//	id: 42
//	data: {"type":"samples","next":42,"samples":[{"t":12.5,"speed":180.2,...}]}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","flight_id":"...","state":"running","phase":"SRB_ASCENT","samples":40}\n\n
//
// The id is the log cursor after the batch. A reconnecting client sends it
// back as Last-Event-ID (or ?since=N) and resumes without gaps. When the flight
// ends an "end" message is sent and the stream closes.
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent timeout.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/star/ascent/internal/control"
	"github.com/star/ascent/internal/httputil"
	"github.com/star/ascent/internal/metrics"
	"github.com/star/ascent/internal/telemetry"
)

// Source is the flight being streamed.
type Source interface {
	Log() *telemetry.Log
	Status() control.Status
}

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxConcurrent      int           // Max concurrent streams overall (default: 1000).
	MaxBatch           int           // Max samples per message (default: 200).
	PollInterval       time.Duration // Default log poll interval (default: 250ms).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Take the client IP from proxy headers.
}

// DefaultConfig returns the reference stream settings.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		MaxConcurrent:      1000,
		MaxBatch:           200,
		PollInterval:       250 * time.Millisecond,
		KeepaliveInterval:  30 * time.Second,
	}
}

// Handler manages SSE streaming connections.
type Handler struct {
	source  Source
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(source Source, config Config, logger *slog.Logger) *Handler {
	def := DefaultConfig()
	if config.MaxConcurrentPerIP <= 0 {
		config.MaxConcurrentPerIP = def.MaxConcurrentPerIP
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = def.MaxConcurrent
	}
	if config.MaxBatch <= 0 {
		config.MaxBatch = def.MaxBatch
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = def.KeepaliveInterval
	}
	return &Handler{
		source:  source,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP, config.MaxConcurrent),
		logger:  logger,
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// cursor returns the starting log position from ?since or Last-Event-ID.
func cursor(r *http.Request) (int, bool) {
	v := r.URL.Query().Get("since")
	if v == "" {
		v = r.Header.Get("Last-Event-ID")
	}
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// HandleTelemetry serves the SSE telemetry stream.
// GET /api/v1/stream/telemetry?since=0&interval=250
func (h *Handler) HandleTelemetry(w http.ResponseWriter, r *http.Request) {
	next, ok := cursor(r)
	if !ok {
		badRequest(w, "invalid since parameter, must be a non-negative integer")
		return
	}

	interval := h.config.PollInterval
	if v := r.URL.Query().Get("interval"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 50 || n > 10000 {
			badRequest(w, "invalid interval parameter, must be 50-10000 ms")
			return
		}
		interval = time.Duration(n) * time.Millisecond
	}

	// Rate limiting: enforce concurrent stream limit per IP.
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "too many concurrent streams"})
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"since", next,
	)

	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's default WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
	}

	// Jittered retry interval (3-7s) spreads reconnects after a restart.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	flusher.Flush()

	log := h.source.Log()
	st := h.source.Status()
	if err := c.sendJSON(-1, metadataMessage{
		Type:     "metadata",
		FlightID: st.FlightID,
		State:    string(st.State),
		Phase:    st.Phase.String(),
		Samples:  log.Len(),
	}); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}
	phase := st.Phase

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		// Status is read before the log so a flight that ends between the
		// two reads still has its last samples flushed.
		st := h.source.Status()
		sent, err := h.flush(c, log, &next)
		if err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
			return
		}
		if sent {
			keepaliveTicker.Reset(h.config.KeepaliveInterval)
		}

		if st.Phase != phase {
			phase = st.Phase
			msg := phaseMessage{Type: "phase", Phase: phase.String()}
			if st.LastSample != nil {
				msg.MissionTime = st.LastSample.MissionTime
			}
			if err := c.sendJSON(-1, msg); err != nil {
				metrics.IncStreamErrors("send_error")
				return
			}
		}

		if st.Done() {
			c.sendJSON(-1, endMessage{Type: "end", State: string(st.State), Phase: phase.String(), Error: st.Error})
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// flush sends every sample past *next in batches of at most MaxBatch.
func (h *Handler) flush(c *client, log *telemetry.Log, next *int) (bool, error) {
	samples, end := log.Since(*next)
	if len(samples) == 0 {
		*next = end
		return false, nil
	}
	start := *next
	for len(samples) > 0 {
		n := min(len(samples), h.config.MaxBatch)
		start += n
		if err := c.sendJSON(start, samplesMessage{Type: "samples", Next: start, Samples: samples[:n]}); err != nil {
			return true, err
		}
		samples = samples[n:]
	}
	*next = end
	return true, nil
}

// SSE message payload types.

type metadataMessage struct {
	Type     string `json:"type"`
	FlightID string `json:"flight_id"`
	State    string `json:"state"`
	Phase    string `json:"phase"`
	Samples  int    `json:"samples"`
}

type samplesMessage struct {
	Type    string             `json:"type"`
	Next    int                `json:"next"`
	Samples []telemetry.Sample `json:"samples"`
}

type phaseMessage struct {
	Type        string  `json:"type"`
	Phase       string  `json:"phase"`
	MissionTime float64 `json:"t"`
}

type endMessage struct {
	Type  string `json:"type"`
	State string `json:"state"`
	Phase string `json:"phase"`
	Error string `json:"error,omitempty"`
}
