package telemetry

import (
	"fmt"
	"sync"
)

// Log is the in-memory record of a flight. One writer appends; any number of
// readers may call Since, Last and Len concurrently.
type Log struct {
	mu      sync.RWMutex
	samples []Sample
}

// NewLog creates an empty Log.
func NewLog() *Log {
	return &Log{}
}

// Append validates s and adds it to the end of the log. Samples must arrive
// in mission-time order.
func (l *Log) Append(s Sample) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("rejecting sample: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.samples); n > 0 && s.MissionTime < l.samples[n-1].MissionTime {
		return fmt.Errorf("rejecting sample: mission_time %.3f before previous %.3f",
			s.MissionTime, l.samples[n-1].MissionTime)
	}
	l.samples = append(l.samples, s)
	return nil
}

// Len returns the number of samples recorded so far.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples)
}

// Last returns the most recent sample.
func (l *Log) Last() (Sample, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.samples) == 0 {
		return Sample{}, false
	}
	return l.samples[len(l.samples)-1], true
}

// Since returns a copy of the samples at index n and later, plus the index
// to pass next time.
func (l *Log) Since(n int) ([]Sample, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n < 0 {
		n = 0
	}
	if n >= len(l.samples) {
		return nil, len(l.samples)
	}
	out := make([]Sample, len(l.samples)-n)
	copy(out, l.samples[n:])
	return out, len(l.samples)
}

// Snapshot returns a copy of every sample.
func (l *Log) Snapshot() []Sample {
	out, _ := l.Since(0)
	return out
}
