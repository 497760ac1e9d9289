// Package benchmarks loads historical per-subject averages and turns them
// into track benchmarks for the orientation engine.
package benchmarks

import (
	"embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
	"github.com/mpi-hub/orientation-hub/internal/domain/orientation"
	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
)

//go:embed historical.yaml
var historicalFS embed.FS

const embeddedFile = "historical.yaml"

// document is the on-disk YAML shape.
type document struct {
	TargetAverage float64                                `yaml:"target_average"`
	Tracks        map[string]map[int]map[string]float64 `yaml:"tracks"`
}

// Table is a parsed set of historical averages.
type Table struct {
	TargetAverage float64
	History       orientation.History
	Source        string
}

// Load reads the tables from path, or the embedded defaults when path is empty.
func Load(path string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		raw, err := historicalFS.ReadFile(embeddedFile)
		if err != nil {
			return nil, fmt.Errorf("benchmarks: read embedded tables: %w", err)
		}
		return Parse(raw, "embedded")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("benchmarks: read %s: %w", path, err)
	}
	return Parse(raw, path)
}

// Parse decodes and validates a YAML document.
func Parse(raw []byte, source string) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, shared.WrapError("benchmarks", "parse", shared.ErrInvalidBenchmark, source, err)
	}
	if len(doc.Tracks) == 0 {
		return nil, shared.NewDomainError("benchmarks", "parse", shared.ErrInvalidBenchmark, source+": no tracks")
	}

	t := &Table{
		TargetAverage: doc.TargetAverage,
		History:       make(orientation.History, len(doc.Tracks)),
		Source:        source,
	}
	if t.TargetAverage <= 0 {
		t.TargetAverage = orientation.DefaultTargetAverage
	}

	var errs []error
	for name, years := range doc.Tracks {
		id, err := orientation.ParseTrackID(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		h := make(orientation.TrackHistory, len(years))
		for year, subjects := range years {
			avgs := make(orientation.YearAverages, len(subjects))
			for subject, v := range subjects {
				if math.IsNaN(v) || v < 0 || v > 20 {
					errs = append(errs, fmt.Errorf("%s %d %q: average %v outside 0-20", id, year, subject, v))
					continue
				}
				key := gradebook.NormalizeName(subject)
				if _, dup := avgs[key]; dup {
					errs = append(errs, fmt.Errorf("%s %d %q: duplicate subject", id, year, key))
					continue
				}
				avgs[key] = v
			}
			h[year] = avgs
		}
		t.History[id] = h
	}
	if err := errors.Join(errs...); err != nil {
		return nil, shared.WrapError("benchmarks", "validate", shared.ErrInvalidBenchmark, source, err)
	}
	return t, nil
}

// Benchmarks derives the per-track benchmark values with each track's own formula.
// targetAverage overrides the table's target when positive.
func (t *Table) Benchmarks(tracks []orientation.Track, targetAverage float64) orientation.Benchmarks {
	if targetAverage <= 0 {
		targetAverage = t.TargetAverage
	}
	return orientation.DeriveBenchmarks(tracks, t.History, targetAverage)
}

// Track returns the history of one track.
func (t *Table) Track(id orientation.TrackID) (orientation.TrackHistory, bool) {
	h, ok := t.History[id]
	return h, ok && len(h) > 0
}
