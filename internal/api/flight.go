package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/star/ascent/internal/control"
	"github.com/star/ascent/internal/staging"
	"github.com/star/ascent/internal/telemetry"
)

const (
	maxSamplesPerPage = 10000
	msgpackType       = "application/msgpack"
)

// Recorded is a finished flight loaded from a telemetry log file, served
// read-only.
type Recorded struct {
	log    *telemetry.Log
	status control.Status
}

// NewRecorded replays samples into a completed flight.
func NewRecorded(id string, samples []telemetry.Sample, startedAt time.Time) (*Recorded, error) {
	log := telemetry.NewLog()
	for i, s := range samples {
		if err := log.Append(s); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	st := control.Status{
		FlightID:  id,
		State:     control.StateComplete,
		Phase:     staging.Cutoff,
		StartedAt: startedAt,
		Ticks:     len(samples),
	}
	if last, ok := log.Last(); ok {
		st.LastSample = &last
	}
	return &Recorded{log: log, status: st}, nil
}

func (r *Recorded) Log() *telemetry.Log { return r.log }
func (r *Recorded) Status() control.Status { return r.status }

func flightHandler(flight Flight) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, flight.Status())
	}
}

type samplesPage struct {
	Next    int                `json:"next" msgpack:"next"`
	Samples []telemetry.Sample `json:"samples" msgpack:"samples"`
}

// samplesHandler pages through the flight log. ?since is the index of the
// first sample wanted; the response's next is the index to ask for next.
func samplesHandler(flight Flight) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		since := 0
		if s := q.Get("since"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "since must be a non-negative integer", nil)
				return
			}
			since = n
		}
		limit := maxSamplesPerPage
		if s := q.Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 || n > maxSamplesPerPage {
				writeError(w, http.StatusBadRequest,
					fmt.Sprintf("limit must be between 1 and %d", maxSamplesPerPage), nil)
				return
			}
			limit = n
		}

		samples, next := flight.Log().Since(since)
		if len(samples) > limit {
			samples = samples[:limit]
			next = since + limit
		}
		if samples == nil {
			samples = []telemetry.Sample{}
		}
		page := samplesPage{Next: next, Samples: samples}

		if strings.Contains(r.Header.Get("Accept"), msgpackType) {
			body, err := msgpack.Marshal(page)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "encoding failed", nil)
				return
			}
			w.Header().Set("Content-Type", msgpackType)
			w.WriteHeader(http.StatusOK)
			w.Write(body)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}
