// Package finalizer produces a FinalSummary from an attempt's complete
// frame history: best-segment selection, loudness normalization, refined
// DTW against the full master sequence, and calibrated grade mapping.
package finalizer

import (
	"errors"
	"math"

	"github.com/MrWong99/callecho/internal/calibration"
	"github.com/MrWong99/callecho/internal/dtw"
)

// ErrNoMaster is returned when Finalize is called with no master bound.
var ErrNoMaster = errors.New("finalizer: no master bound")

// ErrNoData is returned when no ACTIVE segment was detected, or the best
// segment found is shorter than the minimum required for refined DTW.
var ErrNoData = errors.New("finalizer: no usable active segment")

// Config fixes the finalizer's segment-selection gate, fallback floor, and
// normalization bounds.
type Config struct {
	PitchConfidenceGate    float64 // frames at/above this count toward the pitch-stability proxy
	ProvisionalFloor       float64 // default 0.70
	MinSegmentFrames       int     // segments shorter than this return ErrNoData
	MinNormalizationScalar float64 // default 0.125
	MaxNormalizationScalar float64 // default 4.0
	MelBands               int    // mel band count the cepstral c0 correction below was derived from
}

func (c *Config) applyDefaults() {
	if c.ProvisionalFloor <= 0 {
		c.ProvisionalFloor = 0.70
	}
	if c.MinNormalizationScalar <= 0 {
		c.MinNormalizationScalar = 0.125
	}
	if c.MaxNormalizationScalar <= 0 {
		c.MaxNormalizationScalar = 4.0
	}
	if c.MelBands <= 0 {
		c.MelBands = 26
	}
}

// FrameAnnotation is one frame's worth of state needed for segment
// selection and refined scoring: VAD activity, loudness, pitch
// reliability, and the frame's MFCC vector.
type FrameAnnotation struct {
	Active          bool
	RMSLinear       float64
	PitchConfidence float64
	MFCC            []float32
}

// Segment is a half-open frame range [Start, End) within the attempt's
// frame history.
type Segment struct {
	Start int
	End   int
}

// Finalizer is a stateless algorithm: callers own caching of the result on
// the session, per the idempotence requirement.
type Finalizer struct {
	cfg        Config
	comparator *dtw.Comparator
}

// New returns a Finalizer using comparator for the refined DTW step.
func New(cfg Config, comparator *dtw.Comparator) *Finalizer {
	cfg.applyDefaults()
	return &Finalizer{cfg: cfg, comparator: comparator}
}

// FinalizeInput is the full argument set for one Finalize call.
type FinalizeInput struct {
	Frames              []FrameAnnotation
	MasterMFCC          [][]float32
	MasterRMS           float64
	PreFinalizeScore    float64
	ScoreTransform      func(distance float64) float64
	PitchSimilarity     float64
	HarmonicSimilarity  float64
	CadenceSimilarity   float64
	Calibration         *calibration.Table
}

// Summary is the computed FinalSummary for one attempt.
type Summary struct {
	Segment               Segment
	NormalizationScalar   float64
	LoudnessDeviation     float64
	SimilarityAtFinalize  float64
	OverallGrade          byte
	PitchGrade            byte
	HarmonicGrade         byte
	CadenceGrade          byte
	FallbackUsed          bool
}

// Finalize runs the full finalize algorithm over in.
func (fz *Finalizer) Finalize(in FinalizeInput) (Summary, error) {
	if len(in.MasterMFCC) == 0 {
		return Summary{}, ErrNoMaster
	}

	seg, ok := selectSegment(in.Frames, fz.cfg.PitchConfidenceGate)
	if !ok {
		return Summary{}, ErrNoData
	}
	segFrames := in.Frames[seg.Start:seg.End]
	if len(segFrames) < fz.cfg.MinSegmentFrames {
		return Summary{}, ErrNoData
	}

	userRMS := meanRMS(segFrames)

	var normScalar float64
	if userRMS > 0 {
		normScalar = in.MasterRMS / userRMS
	}
	normScalar = clamp(normScalar, fz.cfg.MinNormalizationScalar, fz.cfg.MaxNormalizationScalar)

	var loudnessDeviation float64
	if in.MasterRMS > 0 {
		loudnessDeviation = (userRMS - in.MasterRMS) / in.MasterRMS
	}

	segMFCC := fz.loudnessNormalizedMFCC(segFrames, normScalar)

	distance, err := fz.comparator.Distance(segMFCC, in.MasterMFCC)
	if err != nil {
		return Summary{}, err
	}

	transform := in.ScoreTransform
	if transform == nil {
		transform = func(d float64) float64 { return math.Exp(-d) }
	}
	similarity := transform(distance)

	var overallGrade, pitchGrade, harmonicGrade, cadenceGrade byte = 'N', 'N', 'N', 'N'
	if in.Calibration != nil {
		overallGrade = in.Calibration.Grade("overall", similarity)
		pitchGrade = in.Calibration.Grade("pitch", in.PitchSimilarity)
		harmonicGrade = in.Calibration.Grade("harmonic", in.HarmonicSimilarity)
		cadenceGrade = in.Calibration.Grade("cadence", in.CadenceSimilarity)
	}

	fallbackUsed := in.PreFinalizeScore < fz.cfg.ProvisionalFloor && similarity >= fz.cfg.ProvisionalFloor

	return Summary{
		Segment:              seg,
		NormalizationScalar:  normScalar,
		LoudnessDeviation:    loudnessDeviation,
		SimilarityAtFinalize: similarity,
		OverallGrade:         overallGrade,
		PitchGrade:           pitchGrade,
		HarmonicGrade:        harmonicGrade,
		CadenceGrade:         cadenceGrade,
		FallbackUsed:         fallbackUsed,
	}, nil
}

// selectSegment finds every maximal contiguous run of Active frames,
// scores each on a composite of (duration, mean active energy, pitch
// stability), and returns the highest-scoring run. Ties break toward the
// earliest start.
func selectSegment(frames []FrameAnnotation, pitchGate float64) (Segment, bool) {
	var candidates []Segment
	inRun := false
	start := 0
	for i, f := range frames {
		if f.Active && !inRun {
			inRun = true
			start = i
		} else if !f.Active && inRun {
			inRun = false
			candidates = append(candidates, Segment{Start: start, End: i})
		}
	}
	if inRun {
		candidates = append(candidates, Segment{Start: start, End: len(frames)})
	}
	if len(candidates) == 0 {
		return Segment{}, false
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}

	type scored struct {
		seg               Segment
		duration          float64
		meanEnergy        float64
		pitchStability    float64
	}
	scoredCandidates := make([]scored, len(candidates))
	var maxDuration, maxEnergy float64
	for i, c := range candidates {
		seg := frames[c.Start:c.End]
		duration := float64(len(seg))
		energy := meanRMS(seg)
		var stableCount int
		for _, f := range seg {
			if f.PitchConfidence >= pitchGate {
				stableCount++
			}
		}
		stability := float64(stableCount) / duration

		scoredCandidates[i] = scored{seg: c, duration: duration, meanEnergy: energy, pitchStability: stability}
		if duration > maxDuration {
			maxDuration = duration
		}
		if energy > maxEnergy {
			maxEnergy = energy
		}
	}

	bestIdx := 0
	var bestComposite float64 = -1
	for i, c := range scoredCandidates {
		durNorm := safeDiv(c.duration, maxDuration)
		energyNorm := safeDiv(c.meanEnergy, maxEnergy)
		composite := (durNorm + energyNorm + c.pitchStability) / 3
		if composite > bestComposite {
			bestComposite = composite
			bestIdx = i
		}
	}
	return scoredCandidates[bestIdx].seg, true
}

// loudnessNormalizedMFCC rescales each frame's c0 coefficient to what it
// would have been had the user segment's raw audio been scaled by
// normScalar before MFCC extraction, without re-running the front end.
// Gain on a linear waveform multiplies every mel band's power equally, so
// under the log-mel -> DCT-II pipeline it shifts only c0 (DCT-II's other
// basis vectors are orthogonal to a constant offset): a uniform power
// scale of g shifts log-mel energy by ln(g) in every band, and the
// orthonormal DCT-II turns a uniform shift c into a c0 delta of
// sqrt(mel_bands)*c. Squaring the amplitude scale for power gives
// g = normScalar^2, so c0 shifts by sqrt(mel_bands)*2*ln(normScalar).
func (fz *Finalizer) loudnessNormalizedMFCC(frames []FrameAnnotation, normScalar float64) [][]float32 {
	var c0Shift float32
	if normScalar > 0 {
		c0Shift = float32(math.Sqrt(float64(fz.cfg.MelBands)) * 2 * math.Log(normScalar))
	}

	out := make([][]float32, len(frames))
	for i, f := range frames {
		if len(f.MFCC) == 0 {
			out[i] = f.MFCC
			continue
		}
		v := append([]float32(nil), f.MFCC...)
		v[0] += c0Shift
		out[i] = v
	}
	return out
}

func meanRMS(frames []FrameAnnotation) float64 {
	if len(frames) == 0 {
		return 0
	}
	var sum float64
	for _, f := range frames {
		sum += f.RMSLinear
	}
	return sum / float64(len(frames))
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
