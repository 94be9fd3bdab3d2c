// Package compare measures how far a recorded flight strayed from the
// predicted trajectory.
package compare

import (
	"errors"
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat"

	"github.com/star/ascent/internal/telemetry"
)

// ErrNoOverlap is returned when no recorded sample falls inside the
// prediction's time span.
var ErrNoOverlap = errors.New("no recorded samples within prediction span")

// FieldStats summarises recorded minus predicted for one quantity.
type FieldStats struct {
	Name   string  `json:"name"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	RMS    float64 `json:"rms"`
	MaxAbs float64 `json:"max_abs"`
	MaxAt  float64 `json:"max_at"` // mission time of MaxAbs
}

// Report is the outcome of Compare.
type Report struct {
	Matched   int          `json:"matched"`
	OutOfSpan int          `json:"out_of_span"`
	SpanStart float64      `json:"span_start"`
	SpanEnd   float64      `json:"span_end"`
	Fields    []FieldStats `json:"fields"`
}

// Field returns the statistics for name.
func (r Report) Field(name string) (FieldStats, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldStats{}, false
}

var fields = []struct {
	name string
	get  func(telemetry.Sample) float64
}{
	{"speed", func(s telemetry.Sample) float64 { return s.Speed }},
	{"altitude", func(s telemetry.Sample) float64 { return s.Altitude }},
	{"lateral", func(s telemetry.Sample) float64 { return s.Lateral }},
	{"mass", func(s telemetry.Sample) float64 { return s.Mass }},
}

// Compare interpolates predicted linearly at each recorded mission time that
// lies within the prediction span and reports per-field residual statistics.
// Recorded samples outside the span are counted, not compared. Predicted
// times must be strictly ascending.
func Compare(recorded, predicted []telemetry.Sample) (Report, error) {
	if len(predicted) < 2 {
		return Report{}, fmt.Errorf("prediction needs at least 2 samples, got %d", len(predicted))
	}

	ts := make([]float64, len(predicted))
	for i, p := range predicted {
		ts[i] = p.MissionTime
	}
	rep := Report{SpanStart: ts[0], SpanEnd: ts[len(ts)-1]}

	var times []float64
	var inSpan []telemetry.Sample
	for _, s := range recorded {
		if s.MissionTime < rep.SpanStart || s.MissionTime > rep.SpanEnd {
			rep.OutOfSpan++
			continue
		}
		times = append(times, s.MissionTime)
		inSpan = append(inSpan, s)
	}
	rep.Matched = len(inSpan)
	if rep.Matched == 0 {
		return rep, ErrNoOverlap
	}

	ys := make([]float64, len(predicted))
	residuals := make([]float64, len(inSpan))
	for _, f := range fields {
		for i, p := range predicted {
			ys[i] = f.get(p)
		}
		var pl interp.PiecewiseLinear
		if err := pl.Fit(ts, ys); err != nil {
			return Report{}, fmt.Errorf("fitting predicted %s: %w", f.name, err)
		}
		for i, s := range inSpan {
			residuals[i] = f.get(s) - pl.Predict(s.MissionTime)
		}
		rep.Fields = append(rep.Fields, summarise(f.name, times, residuals))
	}
	return rep, nil
}

func summarise(name string, times, r []float64) FieldStats {
	st := FieldStats{Name: name, Mean: stat.Mean(r, nil)}
	if len(r) > 1 {
		st.StdDev = stat.StdDev(r, nil)
	}
	st.RMS = math.Sqrt(floats.Dot(r, r) / float64(len(r)))

	abs := make([]float64, len(r))
	for i, v := range r {
		abs[i] = math.Abs(v)
	}
	i := floats.MaxIdx(abs)
	st.MaxAbs = abs[i]
	st.MaxAt = times[i]
	return st
}

// Write prints the report as an aligned table.
func (r Report) Write(w io.Writer) error {
	fmt.Fprintf(w, "compared %d samples over t=[%.2f, %.2f]s, %d outside the prediction\n",
		r.Matched, r.SpanStart, r.SpanEnd, r.OutOfSpan)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "field\tmean\tstddev\trms\tmax|r|\tat t\t")
	for _, f := range r.Fields {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t\n", f.Name, f.Mean, f.StdDev, f.RMS, f.MaxAbs, f.MaxAt)
	}
	return tw.Flush()
}
