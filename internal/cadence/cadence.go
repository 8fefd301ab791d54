// Package cadence analyzes the rhythmic structure of an attempt: onset
// detection via energy flux with adaptive thresholding, inter-onset
// intervals, tempo estimate, tempo confidence, and a bounded cadence score.
package cadence

import (
	"math"
	"sort"
)

// Config fixes the analyzer's onset-detection sensitivity and tempo bounds.
type Config struct {
	HopMs          float64
	FluxSensitivity float64 // multiplier on the adaptive threshold; default 1.5
	MinTempoHz     float64 // lower bound on a plausible onset rate, e.g. 0.5
	MaxTempoHz     float64 // upper bound, e.g. 10
	AdaptiveWindow int     // frames of flux history used to compute the adaptive threshold
}

// Onset is one detected onset, in frames since the analyzer started.
type Onset struct {
	FrameIndex int
	TimeMs     float64
}

// Result summarizes cadence over all frames observed so far.
type Result struct {
	Onsets         []Onset
	TempoHz        float64 // inverse of median IOI
	TempoConfidence float64 // inverse coefficient of variation of IOIs, [0,1]
	CadenceScore   float64 // [0,1]
}

// Analyzer is stateful: it tracks frame energy history to compute flux and
// an adaptive threshold, and accumulates onsets across the session.
type Analyzer struct {
	cfg Config

	prevEnergy   float64
	fluxHistory  []float64
	frameIndex   int
	onsets       []Onset
}

// New returns an Analyzer, defaulting unset sensitivity/window fields.
func New(cfg Config) *Analyzer {
	if cfg.FluxSensitivity <= 0 {
		cfg.FluxSensitivity = 1.5
	}
	if cfg.AdaptiveWindow <= 0 {
		cfg.AdaptiveWindow = 20
	}
	if cfg.MinTempoHz <= 0 {
		cfg.MinTempoHz = 0.5
	}
	if cfg.MaxTempoHz <= 0 {
		cfg.MaxTempoHz = 10
	}
	return &Analyzer{cfg: cfg}
}

// Step folds one frame's RMS energy into the flux history and reports
// whether this frame is a new onset.
func (a *Analyzer) Step(rms float64) bool {
	flux := rms - a.prevEnergy
	if flux < 0 {
		flux = 0
	}
	a.prevEnergy = rms

	threshold := a.adaptiveThreshold()
	a.fluxHistory = append(a.fluxHistory, flux)
	if len(a.fluxHistory) > a.cfg.AdaptiveWindow {
		a.fluxHistory = a.fluxHistory[len(a.fluxHistory)-a.cfg.AdaptiveWindow:]
	}

	// The first frame only establishes the energy baseline; it has no
	// previous frame to measure flux against.
	isOnset := a.frameIndex > 0 && flux > threshold && flux > 0
	if isOnset {
		a.onsets = append(a.onsets, Onset{
			FrameIndex: a.frameIndex,
			TimeMs:     float64(a.frameIndex) * a.cfg.HopMs,
		})
	}
	a.frameIndex++
	return isOnset
}

func (a *Analyzer) adaptiveThreshold() float64 {
	if len(a.fluxHistory) == 0 {
		return 0
	}
	var sum float64
	for _, f := range a.fluxHistory {
		sum += f
	}
	mean := sum / float64(len(a.fluxHistory))
	return mean * a.cfg.FluxSensitivity
}

// Result computes the current cadence summary from the accumulated onsets.
func (a *Analyzer) Result() Result {
	r := Result{Onsets: append([]Onset(nil), a.onsets...)}
	if len(a.onsets) < 2 {
		return r
	}

	iois := make([]float64, 0, len(a.onsets)-1)
	for i := 1; i < len(a.onsets); i++ {
		iois = append(iois, a.onsets[i].TimeMs-a.onsets[i-1].TimeMs)
	}

	median := medianOf(iois)
	if median <= 0 {
		return r
	}

	tempoHz := 1000 / median
	if tempoHz < a.cfg.MinTempoHz {
		tempoHz = a.cfg.MinTempoHz
	}
	if tempoHz > a.cfg.MaxTempoHz {
		tempoHz = a.cfg.MaxTempoHz
	}
	r.TempoHz = tempoHz

	mean, stddev := meanStddev(iois)
	var cv float64
	if mean > 0 {
		cv = stddev / mean
	}
	confidence := 1 / (1 + cv)
	r.TempoConfidence = confidence

	durationMs := float64(a.frameIndex) * a.cfg.HopMs
	var rate float64
	if durationMs > 0 {
		rate = float64(len(a.onsets)) / (durationMs / 1000)
	}
	normalizedRate := rate / a.cfg.MaxTempoHz
	if normalizedRate > 1 {
		normalizedRate = 1
	}
	r.CadenceScore = 0.5*confidence + 0.5*normalizedRate

	return r
}

// Reset clears all accumulated state.
func (a *Analyzer) Reset() {
	a.prevEnergy = 0
	a.fluxHistory = nil
	a.frameIndex = 0
	a.onsets = nil
}

func medianOf(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func meanStddev(values []float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	stddev = math.Sqrt(variance)
	return mean, stddev
}
