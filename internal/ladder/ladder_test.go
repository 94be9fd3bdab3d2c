package ladder

import (
	"math"
	"testing"
)

func TestLookupFirstMatch(t *testing.T) {
	l := Must("top",
		Band[string]{Below: 10, Value: "low"},
		Band[string]{Below: 20, Value: "mid"},
	)

	tests := []struct {
		key  float64
		want string
	}{
		{math.Inf(-1), "low"},
		{-5, "low"},
		{0, "low"},
		{9.999, "low"},
		{10, "mid"}, // lower edge is inclusive
		{19.999, "mid"},
		{20, "top"},
		{1e9, "top"},
		{math.Inf(1), "top"},
		{math.NaN(), "top"},
	}

	for _, tt := range tests {
		if got := l.Lookup(tt.key); got != tt.want {
			t.Errorf("Lookup(%v) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestNewRejectsUnorderedBounds(t *testing.T) {
	tests := []struct {
		name  string
		bands []Band[int]
	}{
		{"descending", []Band[int]{{Below: 20, Value: 1}, {Below: 10, Value: 2}}},
		{"duplicate", []Band[int]{{Below: 10, Value: 1}, {Below: 10, Value: 2}}},
		{"nan", []Band[int]{{Below: math.NaN(), Value: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(0, tt.bands...); err == nil {
				t.Fatal("expected error for invalid bounds")
			}
		})
	}
}

func TestEmptyLadder(t *testing.T) {
	l := Must(42)
	if got := l.Lookup(-1); got != 42 {
		t.Errorf("Lookup on empty ladder = %d, want 42", got)
	}
}
