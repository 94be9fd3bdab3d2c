package telemetry

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// FormatLine renders one sample as a log line without the trailing newline.
func FormatLine(s Sample) string {
	return fmt.Sprintf("%.2f,%.2f,%.2f,%.2f,%.2f", s.MissionTime, s.Speed, s.Altitude, s.Lateral, s.Mass)
}

// ParseLine parses one log line.
func ParseLine(line string) (Sample, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 5 {
		return Sample{}, fmt.Errorf("want 5 fields, got %d", len(fields))
	}
	var v [5]float64
	for i, f := range fields {
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Sample{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		v[i] = x
	}
	return Sample{MissionTime: v[0], Speed: v[1], Altitude: v[2], Lateral: v[3], Mass: v[4]}, nil
}

// Write encodes samples to w, one line each.
func Write(w io.Writer, samples []Sample) error {
	bw := bufio.NewWriter(w)
	for _, s := range samples {
		if _, err := bw.WriteString(FormatLine(s) + "\n"); err != nil {
			return fmt.Errorf("writing sample: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing log: %w", err)
	}
	return nil
}

// Read decodes a log. Blank lines are skipped; any other malformed line is
// an error naming its line number.
func Read(r io.Reader) ([]Sample, error) {
	scanner := bufio.NewScanner(r)
	var samples []Sample
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	return samples, nil
}

func compressed(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

// ReadFile reads a log file, decompressing ".zst" paths.
func ReadFile(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if compressed(path) {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	return Read(r)
}

// WriteFile writes samples to path, replacing any existing file.
func WriteFile(path string, samples []Sample) error {
	fw, err := Create(path)
	if err != nil {
		return err
	}
	for _, s := range samples {
		if err := fw.Append(s); err != nil {
			fw.Close()
			return err
		}
	}
	return fw.Close()
}

// FileWriter appends samples to a log file as they are recorded. Plain
// files are flushed after every line so a crash loses at most one sample.
type FileWriter struct {
	f    *os.File
	bw   *bufio.Writer
	zw   *zstd.Encoder
	path string
}

// Create opens path for writing, truncating it.
func Create(path string) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating log: %w", err)
	}
	fw := &FileWriter{f: f, path: path}
	var w io.Writer = f
	if compressed(path) {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		fw.zw = zw
		w = zw
	}
	fw.bw = bufio.NewWriter(w)
	return fw, nil
}

// Path returns the file being written.
func (fw *FileWriter) Path() string { return fw.path }

// Append writes one sample.
func (fw *FileWriter) Append(s Sample) error {
	if _, err := fw.bw.WriteString(FormatLine(s) + "\n"); err != nil {
		return fmt.Errorf("writing sample: %w", err)
	}
	if fw.zw != nil {
		return nil
	}
	if err := fw.bw.Flush(); err != nil {
		return fmt.Errorf("flushing log: %w", err)
	}
	return nil
}

// Close flushes buffered samples and closes the file.
func (fw *FileWriter) Close() error {
	var errs []error
	if err := fw.bw.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flushing log: %w", err))
	}
	if fw.zw != nil {
		if err := fw.zw.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing zstd stream: %w", err))
		}
	}
	if err := fw.f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing log: %w", err))
	}
	return errors.Join(errs...)
}
