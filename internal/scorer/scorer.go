// Package scorer maintains a realtime similarity estimate blending DTW
// distance with pitch, harmonic, cadence, and loudness similarity, gated by
// a readiness condition and flagged stale when reads outlive updates.
package scorer

import (
	"math"
	"time"
)

// Weights configures the default blend. Values need not sum to 1; they are
// treated as relative weights and renormalized over the reliable
// components on every update.
type Weights struct {
	MFCC     float64
	Pitch    float64
	Harmonic float64
	Cadence  float64
	Loudness float64
}

// DefaultWeights matches the default blend named in the scorer's score
// composition: MFCC-derived distance dominates, the enhanced-analyzer
// components share the remainder.
func DefaultWeights() Weights {
	return Weights{MFCC: 0.60, Pitch: 0.15, Harmonic: 0.10, Cadence: 0.10, Loudness: 0.05}
}

// Config fixes a Scorer's weighting, distance transform, readiness
// threshold, and staleness window.
type Config struct {
	Weights           Weights
	DistanceScale     float64 // k in exp(-k*distance); chosen so self-compare scores near 1
	MinFramesRequired int
	StalenessWindow   time.Duration
}

// Inputs is one update's worth of component readings. A component's
// Reliable flag being false redistributes its weight to the others rather
// than contributing a (possibly meaningless) value.
type Inputs struct {
	DTWDistance float64
	DTWReliable bool

	PitchSimilarity float64
	PitchReliable   bool

	HarmonicSimilarity float64
	HarmonicReliable   bool

	CadenceSimilarity float64
	CadenceReliable   bool

	LoudnessSimilarity float64
	LoudnessReliable   bool

	FramesObserved    int
	MasterLoaded      bool
	ActiveSegmentSeen bool
}

// Result is the scorer's latest output.
type Result struct {
	ProvisionalScore       float64
	Reliable               bool
	ComponentContributions map[string]float64
	Stale                  bool
}

// Scorer holds readiness and staleness state across Update calls.
type Scorer struct {
	cfg Config

	lastUpdate time.Time
	lastResult Result
	hasResult  bool
}

// New returns a Scorer, defaulting Weights and DistanceScale if unset.
func New(cfg Config) *Scorer {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if cfg.DistanceScale <= 0 {
		cfg.DistanceScale = 1.0
	}
	return &Scorer{cfg: cfg}
}

// Update computes a fresh provisional score from in and records now as the
// last-update instant for staleness tracking.
func (s *Scorer) Update(in Inputs, now time.Time) Result {
	type component struct {
		name     string
		weight   float64
		value    float64
		reliable bool
	}

	f := math.Exp(-s.cfg.DistanceScale * in.DTWDistance)
	comps := []component{
		{"mfcc", s.cfg.Weights.MFCC, f, in.DTWReliable},
		{"pitch", s.cfg.Weights.Pitch, in.PitchSimilarity, in.PitchReliable},
		{"harmonic", s.cfg.Weights.Harmonic, in.HarmonicSimilarity, in.HarmonicReliable},
		{"cadence", s.cfg.Weights.Cadence, in.CadenceSimilarity, in.CadenceReliable},
		{"loudness", s.cfg.Weights.Loudness, in.LoudnessSimilarity, in.LoudnessReliable},
	}

	var reliableWeight float64
	for _, c := range comps {
		if c.reliable {
			reliableWeight += c.weight
		}
	}

	contributions := make(map[string]float64, len(comps))
	var score float64
	if reliableWeight > 0 {
		scale := 1 / reliableWeight
		for _, c := range comps {
			if !c.reliable {
				contributions[c.name] = 0
				continue
			}
			contribution := c.weight * scale * c.value
			contributions[c.name] = contribution
			score += contribution
		}
	} else {
		for _, c := range comps {
			contributions[c.name] = 0
		}
	}

	reliable := in.FramesObserved >= s.cfg.MinFramesRequired && in.MasterLoaded && in.ActiveSegmentSeen

	result := Result{
		ProvisionalScore:       score,
		Reliable:               reliable,
		ComponentContributions: contributions,
		Stale:                  false,
	}
	s.lastResult = result
	s.lastUpdate = now
	s.hasResult = true
	return result
}

// Read returns the most recent result without recomputation, flagging it
// Stale if now is more than StalenessWindow past the last Update.
func (s *Scorer) Read(now time.Time) Result {
	if !s.hasResult {
		return Result{ComponentContributions: map[string]float64{}}
	}
	result := s.lastResult
	if s.cfg.StalenessWindow > 0 && now.Sub(s.lastUpdate) > s.cfg.StalenessWindow {
		result.Stale = true
	}
	return result
}

// Reset clears all scorer state.
func (s *Scorer) Reset() {
	s.lastResult = Result{}
	s.hasResult = false
	s.lastUpdate = time.Time{}
}

// DistanceToSimilarity exposes the scorer's bounded monotone distance
// transform f(d) = exp(-k*d), used identically by the finalizer's refined
// DTW step (spec: "derive similarity_at_finalize via the same score
// transform as the realtime scorer").
func (s *Scorer) DistanceToSimilarity(distance float64) float64 {
	return math.Exp(-s.cfg.DistanceScale * distance)
}
