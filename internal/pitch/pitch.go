// Package pitch estimates fundamental frequency and voicing confidence per
// frame using the YIN algorithm: cumulative mean normalized difference,
// parabolic sub-sample interpolation, and one-pole EMA smoothing.
package pitch

import (
	"fmt"
	"math"
)

// Config fixes a Tracker's search range, decision threshold, and smoothing
// behavior for its lifetime.
type Config struct {
	SampleRate   float64
	MinFreqHz    float64 // e.g. 50 (lower bound of searchable lag range)
	MaxFreqHz    float64 // e.g. 1500
	Threshold    float64 // tau*, recommended 0.10-0.15, default 0.12
	UnvoicedGate float64 // confidence below this reports f0=0 and is excluded from EMA
	EMAHalfLifeMs float64 // smoothing time constant; 0 disables smoothing
	HopMs        float64
}

// Result is one frame's pitch estimate, after smoothing.
type Result struct {
	F0Hz       float64
	Confidence float64
	Voiced     bool
}

// Tracker holds YIN's EMA smoothing state across frames.
type Tracker struct {
	cfg Config

	minLag int
	maxLag int
	alpha  float64

	smoothedF0   float64
	smoothedConf float64
	initialized  bool
}

// New validates cfg and returns a Tracker.
func New(cfg Config) (*Tracker, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("pitch: sample rate must be positive")
	}
	if cfg.MinFreqHz <= 0 || cfg.MaxFreqHz <= cfg.MinFreqHz {
		return nil, fmt.Errorf("pitch: invalid frequency range [%v, %v]", cfg.MinFreqHz, cfg.MaxFreqHz)
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.12
	}

	minLag := int(cfg.SampleRate / cfg.MaxFreqHz)
	if minLag < 1 {
		minLag = 1
	}
	maxLag := int(cfg.SampleRate / cfg.MinFreqHz)

	alpha := 1.0
	if cfg.EMAHalfLifeMs > 0 && cfg.HopMs > 0 {
		alpha = 1 - math.Exp(-math.Ln2*cfg.HopMs/cfg.EMAHalfLifeMs)
	}

	return &Tracker{
		cfg:    cfg,
		minLag: minLag,
		maxLag: maxLag,
		alpha:  alpha,
	}, nil
}

// Track estimates f0 and confidence for one windowed frame and folds the
// result into the tracker's EMA smoothing state.
func (tr *Tracker) Track(frame []float32) Result {
	raw, voiced := tr.estimate(frame)

	if !voiced {
		// Unvoiced frames report f0=0 and do not perturb the smoothed
		// trajectory.
		return Result{F0Hz: 0, Confidence: raw.Confidence, Voiced: false}
	}

	if !tr.initialized {
		tr.smoothedF0 = raw.F0Hz
		tr.smoothedConf = raw.Confidence
		tr.initialized = true
	} else {
		tr.smoothedF0 += tr.alpha * (raw.F0Hz - tr.smoothedF0)
		tr.smoothedConf += tr.alpha * (raw.Confidence - tr.smoothedConf)
	}

	return Result{F0Hz: tr.smoothedF0, Confidence: tr.smoothedConf, Voiced: true}
}

// Reset clears the EMA smoothing state.
func (tr *Tracker) Reset() {
	tr.smoothedF0 = 0
	tr.smoothedConf = 0
	tr.initialized = false
}

func (tr *Tracker) estimate(frame []float32) (Result, bool) {
	maxLag := tr.maxLag
	if maxLag >= len(frame) {
		maxLag = len(frame) - 1
	}
	if maxLag <= tr.minLag {
		return Result{}, false
	}

	d := yinDifference(frame, maxLag)
	dPrime := cumulativeMeanNormalize(d)

	tau, found := firstDip(dPrime, tr.minLag, maxLag, tr.cfg.Threshold)
	if !found {
		return Result{Confidence: 0}, false
	}

	tauInterp, dInterp := parabolicInterpolate(dPrime, tau)
	if tauInterp <= 0 {
		return Result{Confidence: 0}, false
	}

	confidence := 1 - dInterp
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	if confidence < tr.cfg.UnvoicedGate {
		return Result{Confidence: confidence}, false
	}

	f0 := tr.cfg.SampleRate / tauInterp
	return Result{F0Hz: f0, Confidence: confidence}, true
}

// yinDifference computes YIN's difference function d(tau) for
// tau in [0, maxLag].
func yinDifference(frame []float32, maxLag int) []float64 {
	n := len(frame)
	d := make([]float64, maxLag+1)
	for tau := 0; tau <= maxLag; tau++ {
		var sum float64
		for j := 0; j < n-tau; j++ {
			diff := float64(frame[j]) - float64(frame[j+tau])
			sum += diff * diff
		}
		d[tau] = sum
	}
	return d
}

// cumulativeMeanNormalize applies YIN's step 2: d'(0) = 1, and for tau >= 1,
// d'(tau) = d(tau) / ((1/tau) * sum_{j=1}^{tau} d(j)).
func cumulativeMeanNormalize(d []float64) []float64 {
	dPrime := make([]float64, len(d))
	dPrime[0] = 1
	var runningSum float64
	for tau := 1; tau < len(d); tau++ {
		runningSum += d[tau]
		if runningSum == 0 {
			dPrime[tau] = 1
			continue
		}
		dPrime[tau] = d[tau] * float64(tau) / runningSum
	}
	return dPrime
}

// firstDip finds the smallest lag in [minLag, maxLag] that dips below
// threshold and is a local minimum, preferring the smallest qualifying lag
// to mitigate octave errors rather than the global minimum.
func firstDip(dPrime []float64, minLag, maxLag int, threshold float64) (int, bool) {
	for tau := minLag; tau <= maxLag; tau++ {
		if dPrime[tau] >= threshold {
			continue
		}
		for tau+1 <= maxLag && dPrime[tau+1] < dPrime[tau] {
			tau++
		}
		return tau, true
	}
	return 0, false
}

// parabolicInterpolate fits a parabola through (tau-1, tau, tau+1) to
// refine the integer lag to sub-sample precision, returning the
// interpolated lag and the interpolated d' value at that lag.
func parabolicInterpolate(dPrime []float64, tau int) (float64, float64) {
	if tau <= 0 || tau >= len(dPrime)-1 {
		return float64(tau), dPrime[tau]
	}
	y0, y1, y2 := dPrime[tau-1], dPrime[tau], dPrime[tau+1]
	denom := y0 - 2*y1 + y2
	if denom == 0 {
		return float64(tau), y1
	}
	shift := 0.5 * (y0 - y2) / denom
	interpTau := float64(tau) + shift
	interpVal := y1 - 0.25*(y0-y2)*shift
	return interpTau, interpVal
}
