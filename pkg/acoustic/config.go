package acoustic

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/callecho/internal/scorer"
)

// Config is the analyzer configuration snapshot carried by a session,
// loaded from YAML or built programmatically. LoadConfig decodes onto a
// copy of DefaultConfig, so knobs a YAML document leaves out keep their
// defaults; a Config built in code is used exactly as given.
type Config struct {
	WindowMs      float64 `yaml:"window_ms"`
	HopMs         float64 `yaml:"hop_ms"`
	MelBands      int     `yaml:"mel_bands"`
	CepstralCoefs int     `yaml:"cepstral_coefs"`
	PreEmphasis   float32 `yaml:"pre_emphasis"`
	FFTSize       int     `yaml:"fft_size"` // not read: the FFT size is always the next power of two >= window

	VADOnThresholdRMS  float64 `yaml:"vad_on_threshold"`
	VADOffThresholdRMS float64 `yaml:"vad_off_threshold"`
	VADMinOnMs         float64 `yaml:"vad_min_on_ms"`
	VADMinOffMs        float64 `yaml:"vad_min_off_ms"`

	PitchMinFreqHz      float64 `yaml:"pitch_min_freq_hz"`
	PitchMaxFreqHz      float64 `yaml:"pitch_max_freq_hz"`
	PitchYinThreshold   float64 `yaml:"pitch_yin_threshold"`
	PitchSmoothingTauMs float64 `yaml:"pitch_smoothing_tau_ms"`
	PitchUnvoicedGate   float64 `yaml:"pitch_unvoiced_gate"`

	DTWBandRatio           float64 `yaml:"dtw_band_ratio"`
	DTWRollingWindowFrames int     `yaml:"dtw_rolling_window_frames"`
	DistanceScale          float64 `yaml:"distance_scale"`

	MinAudioMsForReadiness float64        `yaml:"min_audio_ms_for_readiness"`
	ScoreWeights           scorer.Weights `yaml:"score_weights"`
	StalenessWindowMs      float64        `yaml:"staleness_window_ms"`

	ProvisionalFloor float64 `yaml:"provisional_floor"`
	// FinalizeMinSegmentFrames overrides the minimum best-segment length
	// Finalize will accept. Zero (the default) derives the same floor
	// min_audio_ms_for_readiness already implies, via minFramesRequired.
	FinalizeMinSegmentFrames int     `yaml:"finalize_min_segment_frames"`
	NormalizationMinScalar   float64 `yaml:"normalization_min_scalar"`
	NormalizationMaxScalar   float64 `yaml:"normalization_max_scalar"`

	EnhancedAnalyzersDefault bool `yaml:"enhanced_analyzers_default"`
}

// DefaultConfig returns the engine's built-in default config, matching the
// recognized knob defaults: 25/10 ms framing, 26 mel bands, 13 cepstral
// coefficients, 0.97 pre-emphasis, YIN threshold 0.12, 10% DTW band, and
// default score weights (0.60, 0.15, 0.10, 0.10, 0.05).
func DefaultConfig() Config {
	return Config{
		WindowMs:      25,
		HopMs:         10,
		MelBands:      26,
		CepstralCoefs: 13,
		PreEmphasis:   0.97,

		VADOnThresholdRMS:  0.05,
		VADOffThresholdRMS: 0.02,
		VADMinOnMs:         30,
		VADMinOffMs:        100,

		PitchMinFreqHz:      50,
		PitchMaxFreqHz:      2000,
		PitchYinThreshold:   0.12,
		PitchSmoothingTauMs: 60,
		PitchUnvoicedGate:   0.5,

		DTWBandRatio:           0.10,
		DTWRollingWindowFrames: 100,
		DistanceScale:          1.0,

		MinAudioMsForReadiness: 500,
		ScoreWeights:           scorer.DefaultWeights(),
		StalenessWindowMs:      1000,

		ProvisionalFloor:         0.70,
		FinalizeMinSegmentFrames: 0, // derive from min_audio_ms_for_readiness
		NormalizationMinScalar:   0.125,
		NormalizationMaxScalar:   4.0,

		EnhancedAnalyzersDefault: false,
	}
}

// LoadConfig parses a YAML document onto a copy of DefaultConfig, so a
// caller-supplied document may set only the knobs it cares about.
func LoadConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("acoustic: decode config yaml: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for internal consistency, returning a
// *Error with KindConfiguration describing the first problem found.
func (c Config) Validate() *Error {
	if c.WindowMs <= 0 || c.HopMs <= 0 {
		return newErr("config.validate", KindConfiguration, fmt.Errorf("window_ms and hop_ms must be positive"))
	}
	if c.HopMs > c.WindowMs {
		return newErr("config.validate", KindConfiguration, fmt.Errorf("hop_ms (%v) must not exceed window_ms (%v)", c.HopMs, c.WindowMs))
	}
	if c.MelBands <= 0 || c.CepstralCoefs <= 0 {
		return newErr("config.validate", KindConfiguration, fmt.Errorf("mel_bands and cepstral_coefs must be positive"))
	}
	if c.CepstralCoefs > c.MelBands {
		return newErr("config.validate", KindConfiguration, fmt.Errorf("cepstral_coefs (%d) cannot exceed mel_bands (%d)", c.CepstralCoefs, c.MelBands))
	}
	if c.VADOnThresholdRMS < c.VADOffThresholdRMS {
		return newErr("config.validate", KindConfiguration, fmt.Errorf("vad_on_threshold must be >= vad_off_threshold"))
	}
	if c.PitchMinFreqHz <= 0 || c.PitchMaxFreqHz <= c.PitchMinFreqHz {
		return newErr("config.validate", KindConfiguration, fmt.Errorf("invalid pitch frequency range"))
	}
	if c.DTWBandRatio <= 0 || c.DTWBandRatio > 1 {
		return newErr("config.validate", KindConfiguration, fmt.Errorf("dtw_band_ratio must be in (0,1]"))
	}
	if c.MinAudioMsForReadiness <= 0 {
		return newErr("config.validate", KindConfiguration, fmt.Errorf("min_audio_ms_for_readiness must be positive"))
	}
	w := c.ScoreWeights
	if w.MFCC < 0 || w.Pitch < 0 || w.Harmonic < 0 || w.Cadence < 0 || w.Loudness < 0 {
		return newErr("config.validate", KindConfiguration, fmt.Errorf("score_weights must be non-negative"))
	}
	if w.MFCC+w.Pitch+w.Harmonic+w.Cadence+w.Loudness <= 0 {
		return newErr("config.validate", KindConfiguration, fmt.Errorf("score_weights must not all be zero"))
	}
	return nil
}

// minFramesRequired derives min_frames_required deterministically from
// MinAudioMsForReadiness and HopMs, per the readiness invariant.
func (c Config) minFramesRequired() int {
	n := int(c.MinAudioMsForReadiness/c.HopMs + 0.999999)
	if n < 1 {
		n = 1
	}
	return n
}

// finalizeMinSegmentFrames returns the finalize_segment_policy minimum
// duration in frames: the explicit override if set, else the same floor
// min_audio_ms_for_readiness already implies.
func (c Config) finalizeMinSegmentFrames() int {
	if c.FinalizeMinSegmentFrames > 0 {
		return c.FinalizeMinSegmentFrames
	}
	return c.minFramesRequired()
}
