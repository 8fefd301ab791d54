// Package calibration loads and applies the grade-threshold tables used by
// the session finalizer (spec §4.10 step 4, §9 Open Questions: "Calibration
// tables for grade mapping ... implementers should load a static
// JSON/CSV-like table of thresholds at engine construction and fail the
// grade mapping with 'N' if absent").
//
// A [Table] is loaded once at engine construction and is immutable
// thereafter, mirroring the teacher's read-only-after-construction config
// philosophy. Metrics with no calibrated band are graded 'N' rather than
// guessed.
package calibration

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Band is one grade's qualifying threshold: a metric value of at least Min
// (on a normalized [0, 1] scale unless the metric documents otherwise)
// earns Grade.
type Band struct {
	Grade string  `yaml:"grade"`
	Min   float64 `yaml:"min"`
}

// Table maps a metric name ("overall", "pitch", "harmonic", "cadence") to
// its ordered list of grade bands.
type Table struct {
	Metrics map[string][]Band `yaml:"metrics"`
}

// Grade maps value to a letter grade for the named metric. Returns 'N' if
// the metric has no calibrated bands (Open Question: missing calibration
// data never guesses a grade). Bands are evaluated highest-Min first; the
// first band whose Min value is <= value wins.
func (t *Table) Grade(metric string, value float64) byte {
	if t == nil {
		return 'N'
	}
	bands, ok := t.Metrics[metric]
	if !ok || len(bands) == 0 {
		return 'N'
	}
	for _, b := range bands {
		if value >= b.Min {
			if len(b.Grade) == 0 {
				return 'N'
			}
			return b.Grade[0]
		}
	}
	return 'F'
}

// Load parses a YAML calibration table. Bands for each metric are sorted by
// descending Min so Grade can scan them in priority order regardless of
// the order they appear in the source document.
func Load(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("calibration: decode yaml: %w", err)
	}
	for metric, bands := range t.Metrics {
		sorted := append([]Band(nil), bands...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Min > sorted[j].Min })
		t.Metrics[metric] = sorted
	}
	return &t, nil
}

// Default returns the engine's built-in calibration table, used when the
// caller does not supply one at Engine construction. Thresholds follow the
// A/B/C/D/F bands spec.md implies via its self-similarity and scaling
// test properties (self-compare >= 0.95 grades 'A'; finalize floor 0.70
// sits inside the 'C' band).
func Default() *Table {
	t := &Table{
		Metrics: map[string][]Band{
			"overall": {
				{Grade: "A", Min: 0.90},
				{Grade: "B", Min: 0.80},
				{Grade: "C", Min: 0.65},
				{Grade: "D", Min: 0.50},
				{Grade: "F", Min: 0},
			},
			"pitch": {
				{Grade: "A", Min: 0.88},
				{Grade: "B", Min: 0.75},
				{Grade: "C", Min: 0.60},
				{Grade: "D", Min: 0.45},
				{Grade: "F", Min: 0},
			},
			"harmonic": {
				{Grade: "A", Min: 0.85},
				{Grade: "B", Min: 0.70},
				{Grade: "C", Min: 0.55},
				{Grade: "D", Min: 0.40},
				{Grade: "F", Min: 0},
			},
			"cadence": {
				{Grade: "A", Min: 0.85},
				{Grade: "B", Min: 0.70},
				{Grade: "C", Min: 0.55},
				{Grade: "D", Min: 0.40},
				{Grade: "F", Min: 0},
			},
		},
	}
	return t
}
