package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/star/ascent/internal/auth"
	"github.com/star/ascent/internal/control"
	"github.com/star/ascent/internal/telemetry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func recordedFlight(t *testing.T, n int) *Recorded {
	t.Helper()
	samples := make([]telemetry.Sample, n)
	for i := range samples {
		ts := float64(i)
		samples[i] = telemetry.Sample{
			MissionTime: ts,
			Speed:       10 * ts,
			Altitude:    100 * ts,
			Lateral:     ts,
			Mass:        34599 - 50*ts,
		}
	}
	r, err := NewRecorded("test-flight", samples, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("NewRecorded: %v", err)
	}
	return r
}

type pendingFlight struct{ log *telemetry.Log }

func (p pendingFlight) Log() *telemetry.Log { return p.log }
func (p pendingFlight) Status() control.Status {
	return control.Status{FlightID: "pending", State: control.StatePending}
}

func newTestServer(t *testing.T, f Flight, opts Options) http.Handler {
	t.Helper()
	srv, err := NewServer(f, opts, testLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv.Handler()
}

func get(h http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRoutes(t *testing.T) {
	h := newTestServer(t, recordedFlight(t, 5), Options{})

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"healthz", "GET", "/healthz", http.StatusOK},
		{"readyz", "GET", "/readyz", http.StatusOK},
		{"metrics", "GET", "/metrics", http.StatusOK},
		{"flight", "GET", "/api/v1/flight", http.StatusOK},
		{"samples", "GET", "/api/v1/flight/samples", http.StatusOK},
		{"unknown path", "GET", "/api/v1/nope", http.StatusNotFound},
		{"wrong method", "POST", "/api/v1/flight", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("%s %s status = %d, want %d", tt.method, tt.path, w.Code, tt.wantStatus)
			}
		})
	}
}

func TestReadyzPendingFlight(t *testing.T) {
	h := newTestServer(t, pendingFlight{log: telemetry.NewLog()}, Options{})
	w := get(h, "/readyz", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if !strings.Contains(w.Body.String(), "flight not started") {
		t.Errorf("body = %q, want the pending reason", w.Body.String())
	}
}

func TestFlightStatus(t *testing.T) {
	h := newTestServer(t, recordedFlight(t, 5), Options{})
	w := get(h, "/api/v1/flight", nil)

	var st struct {
		FlightID   string           `json:"flight_id"`
		State      string           `json:"state"`
		Phase      string           `json:"phase"`
		LastSample telemetry.Sample `json:"last_sample"`
	}
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.FlightID != "test-flight" || st.State != "complete" || st.Phase != "CUTOFF" {
		t.Errorf("status = %+v, want test-flight complete CUTOFF", st)
	}
	if st.LastSample.MissionTime != 4 {
		t.Errorf("last_sample.t = %v, want 4", st.LastSample.MissionTime)
	}
}

func TestSamplesPaging(t *testing.T) {
	h := newTestServer(t, recordedFlight(t, 5), Options{})

	tests := []struct {
		query    string
		wantNext int
		wantT    []float64
	}{
		{"", 5, []float64{0, 1, 2, 3, 4}},
		{"?since=3", 5, []float64{3, 4}},
		{"?since=1&limit=2", 3, []float64{1, 2}},
		{"?since=9", 5, nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := get(h, "/api/v1/flight/samples"+tt.query, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			var page samplesPage
			if err := json.NewDecoder(w.Body).Decode(&page); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if page.Next != tt.wantNext {
				t.Errorf("next = %d, want %d", page.Next, tt.wantNext)
			}
			if len(page.Samples) != len(tt.wantT) {
				t.Fatalf("got %d samples, want %d", len(page.Samples), len(tt.wantT))
			}
			for i, s := range page.Samples {
				if s.MissionTime != tt.wantT[i] {
					t.Errorf("sample %d t = %v, want %v", i, s.MissionTime, tt.wantT[i])
				}
			}
		})
	}
}

func TestSamplesEmptyIsArray(t *testing.T) {
	h := newTestServer(t, recordedFlight(t, 2), Options{})
	w := get(h, "/api/v1/flight/samples?since=2", nil)
	if !strings.Contains(w.Body.String(), `"samples":[]`) {
		t.Errorf("body = %s, want an empty samples array", w.Body.String())
	}
}

func TestSamplesInvalidParams(t *testing.T) {
	h := newTestServer(t, recordedFlight(t, 2), Options{})
	for _, q := range []string{"?since=-1", "?since=abc", "?limit=0", "?limit=10001"} {
		w := get(h, "/api/v1/flight/samples"+q, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestSamplesMsgpack(t *testing.T) {
	h := newTestServer(t, recordedFlight(t, 3), Options{})
	w := get(h, "/api/v1/flight/samples", http.Header{"Accept": {"application/msgpack"}})

	if ct := w.Header().Get("Content-Type"); ct != "application/msgpack" {
		t.Fatalf("Content-Type = %q, want application/msgpack", ct)
	}
	var page samplesPage
	if err := msgpack.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("msgpack decode: %v", err)
	}
	if page.Next != 3 || len(page.Samples) != 3 {
		t.Fatalf("page = next %d with %d samples, want 3 and 3", page.Next, len(page.Samples))
	}
	if page.Samples[2].Altitude != 200 {
		t.Errorf("altitude = %v, want 200", page.Samples[2].Altitude)
	}
}

func TestAuthGuardsAPI(t *testing.T) {
	h := newTestServer(t, recordedFlight(t, 2), Options{
		Auth: auth.Config{Enabled: true, Token: "tok"},
	})

	if w := get(h, "/api/v1/flight", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}
	if w := get(h, "/api/v1/flight", http.Header{"Authorization": {"Bearer tok"}}); w.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", w.Code)
	}
	if w := get(h, "/healthz", nil); w.Code != http.StatusOK {
		t.Errorf("healthz: status = %d, want 200", w.Code)
	}
}

func TestTelemetryStreamThroughMiddleware(t *testing.T) {
	h := newTestServer(t, recordedFlight(t, 3), Options{})
	w := get(h, "/api/v1/stream/telemetry", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	body := w.Body.String()
	for _, want := range []string{`"type":"metadata"`, `"type":"samples"`, `"type":"end"`} {
		if !strings.Contains(body, want) {
			t.Errorf("stream missing %s", want)
		}
	}
}

func TestSimulate(t *testing.T) {
	h := newTestServer(t, recordedFlight(t, 2), Options{})

	w := get(h, "/api/v1/simulate?margin=25&points=50", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var p prediction
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(p.Samples) != 50 {
		t.Fatalf("got %d samples, want 50", len(p.Samples))
	}
	if p.Cutoff != p.BurnTime-25 {
		t.Errorf("cutoff = %v, want burn time %v - 25", p.Cutoff, p.BurnTime)
	}
	if p.Final.MissionTime != p.Cutoff {
		t.Errorf("final t = %v, want %v", p.Final.MissionTime, p.Cutoff)
	}
	if p.Final.Altitude <= 0 {
		t.Errorf("final altitude = %v, want above the pad", p.Final.Altitude)
	}

	again := get(h, "/api/v1/simulate?margin=25&points=50", nil)
	if again.Body.String() != w.Body.String() {
		t.Error("cached prediction differs from the first response")
	}
}

func TestSimulateRejects(t *testing.T) {
	h := newTestServer(t, recordedFlight(t, 2), Options{MaxPoints: 100})

	tests := []struct {
		name  string
		query string
	}{
		{"margin beyond burn time", "?margin=100000"},
		{"negative margin", "?margin=-1"},
		{"margin not a number", "?margin=soon"},
		{"too few points", "?points=1"},
		{"too many points", "?points=101"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(h, "/api/v1/simulate"+tt.query, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			var resp map[string]any
			json.NewDecoder(w.Body).Decode(&resp)
			if _, ok := resp["error"]; !ok {
				t.Error("response missing 'error' field")
			}
		})
	}
}

func TestNewRecordedRejectsBadLog(t *testing.T) {
	_, err := NewRecorded("x", []telemetry.Sample{
		{MissionTime: 2, Mass: 1},
		{MissionTime: 1, Mass: 1},
	}, time.Time{})
	if err == nil {
		t.Fatal("expected error for out-of-order samples")
	}
}

func TestProbePath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/healthz", true},
		{"/readyz", true},
		{"/metrics", false},
		{"/api/v1/flight", false},
	}
	for _, tt := range tests {
		if got := probePath(tt.path); got != tt.want {
			t.Errorf("probePath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
