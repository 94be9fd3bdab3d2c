package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Archive keeps completed flight logs on disk, newest maxFiles only.
type Archive struct {
	dir      string
	maxFiles int
	compress bool
}

// NewArchive creates an Archive that stores files in dir and keeps at most
// maxFiles. With compress set, files are written zstd-compressed.
func NewArchive(dir string, maxFiles int, compress bool) *Archive {
	if maxFiles <= 0 {
		maxFiles = 20
	}
	return &Archive{
		dir:      dir,
		maxFiles: maxFiles,
		compress: compress,
	}
}

// Store writes samples as flight_<unix>_<id>.txt[.zst] and prunes old files
// beyond maxFiles. It returns the written path.
func (a *Archive) Store(samples []Sample, id string, ts time.Time) (string, error) {
	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return "", fmt.Errorf("creating archive dir: %w", err)
	}

	name := fmt.Sprintf("flight_%d_%s.txt", ts.Unix(), id)
	if a.compress {
		name += ".zst"
	}
	path := filepath.Join(a.dir, name)

	if err := WriteFile(path, samples); err != nil {
		return "", fmt.Errorf("writing archive file: %w", err)
	}

	return path, a.prune()
}

// ArchivedFlight describes one archived log.
type ArchivedFlight struct {
	Path string
	ID   string
	Time time.Time
}

// List returns archived flights, oldest first.
func (a *Archive) List() ([]ArchivedFlight, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing archive dir: %w", err)
	}

	var files []ArchivedFlight
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		stem := strings.TrimSuffix(name, ".zst")
		if !strings.HasPrefix(stem, "flight_") || !strings.HasSuffix(stem, ".txt") {
			continue
		}
		stem = strings.TrimSuffix(strings.TrimPrefix(stem, "flight_"), ".txt")
		tsStr, id, ok := strings.Cut(stem, "_")
		if !ok {
			continue
		}
		unix, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			continue
		}
		files = append(files, ArchivedFlight{
			Path: filepath.Join(a.dir, name),
			ID:   id,
			Time: time.Unix(unix, 0),
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Time.Before(files[j].Time)
	})

	return files, nil
}

// Latest returns the newest archived flight.
func (a *Archive) Latest() (ArchivedFlight, error) {
	files, err := a.List()
	if err != nil {
		return ArchivedFlight{}, err
	}
	if len(files) == 0 {
		return ArchivedFlight{}, fmt.Errorf("no archived flights in %s", a.dir)
	}
	return files[len(files)-1], nil
}

func (a *Archive) prune() error {
	files, err := a.List()
	if err != nil {
		return err
	}

	if len(files) <= a.maxFiles {
		return nil
	}

	for _, f := range files[:len(files)-a.maxFiles] {
		if err := os.Remove(f.Path); err != nil {
			return fmt.Errorf("pruning archive file %s: %w", filepath.Base(f.Path), err)
		}
	}

	return nil
}
