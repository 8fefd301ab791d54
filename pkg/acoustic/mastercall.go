package acoustic

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/callecho/internal/cadence"
	"github.com/MrWong99/callecho/internal/frontend"
	"github.com/MrWong99/callecho/internal/harmonic"
	"github.com/MrWong99/callecho/internal/pitch"
	"github.com/MrWong99/callecho/internal/vad"
	"github.com/MrWong99/callecho/internal/wavdecode"
	pcm "github.com/MrWong99/callecho/pkg/audio"
)

// MasterLoader resolves a caller-chosen opaque master identifier to raw
// mono samples at some source sample rate. Resolution to storage (file
// path, URL, blob store) is the loader's job; the engine only consumes the
// samples it returns. The default loader treats identifier as a filesystem
// path to a WAV file.
type MasterLoader func(identifier string) (samples []float32, sampleRate int, err error)

// defaultMasterLoader reads identifier as a WAV file path via the wavdecode
// collaborator.
func defaultMasterLoader(workingRate int) MasterLoader {
	return func(identifier string) ([]float32, int, error) {
		f, err := os.Open(identifier)
		if err != nil {
			return nil, 0, fmt.Errorf("open master %q: %w", identifier, err)
		}
		defer f.Close()

		decoded, err := wavdecode.Decode(f, workingRate)
		if err != nil {
			return nil, 0, err
		}
		return decoded.Samples, decoded.SampleRate, nil
	}
}

// MasterCall is a reference call's precomputed features, immutable once
// cached and shared read-only across sessions.
type MasterCall struct {
	ID            string
	MFCC          [][]float32
	RMSLinear     float64
	PeakLinear    float64
	RawSamples    []float32 // retained for overlay export
	SampleRate    int
	MeanF0Hz      float64 // 0 if the reference has no reliably voiced frames
	MeanHarmonic  float64
	TempoHz       float64
}

func mfccCoeffsOnly(frames []frontend.Frame) [][]float32 {
	out := make([][]float32, len(frames))
	for i, f := range frames {
		out[i] = f.Coeffs
	}
	return out
}

// masterCache is the engine's process-wide, read-only-after-insert cache
// of precomputed MasterCall features, keyed by identifier. Concurrent
// first-loads of the same identifier are deduplicated with singleflight so
// only one decode+analyze pass runs.
type masterCache struct {
	mu      sync.RWMutex
	entries map[string]*MasterCall
	group   singleflight.Group
}

func newMasterCache() *masterCache {
	return &masterCache{entries: make(map[string]*MasterCall)}
}

func (c *masterCache) get(id string) (*MasterCall, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[id]
	return m, ok
}

// loadOrBuild returns the cached MasterCall for id, building it with
// build on a cache miss. Concurrent misses for the same id share one
// build call.
func (c *masterCache) loadOrBuild(id string, build func() (*MasterCall, error)) (*MasterCall, bool, error) {
	if m, ok := c.get(id); ok {
		return m, true, nil
	}

	v, err, _ := c.group.Do(id, func() (interface{}, error) {
		if m, ok := c.get(id); ok {
			return m, nil
		}
		m, err := build()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[id] = m
		c.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*MasterCall), false, nil
}

// buildMasterCall runs the full analysis pipeline once over a reference
// call's raw samples: MFCC extraction, loudness, and (when sufficient
// voiced content exists) mean pitch, mean harmonic richness, and tempo, so
// realtime similarity has something stable to compare against.
func buildMasterCall(id string, samples []float32, sampleRate int, cfg Config) (*MasterCall, error) {
	// A master call's frames must all be retained, not just the tail
	// window a live session needs; size the ring for the whole stream.
	approxHopSamples := int(cfg.HopMs * float64(sampleRate) / 1000)
	if approxHopSamples < 1 {
		approxHopSamples = 1
	}
	fe, err := frontend.New(frontend.Config{
		SampleRate:    float64(sampleRate),
		WindowMs:      cfg.WindowMs,
		HopMs:         cfg.HopMs,
		PreEmphasis:   cfg.PreEmphasis,
		MelBands:      cfg.MelBands,
		CepstralCoefs: cfg.CepstralCoefs,
		RingCapacity:  len(samples)/approxHopSamples + 1,
	})
	if err != nil {
		return nil, err
	}

	detector, err := vad.New(vad.Config{
		OnThresholdRMS:  cfg.VADOnThresholdRMS,
		OffThresholdRMS: cfg.VADOffThresholdRMS,
		MinActiveMs:     cfg.VADMinOnMs,
		MinSilenceMs:    cfg.VADMinOffMs,
		HopMs:           cfg.HopMs,
	})
	if err != nil {
		return nil, err
	}

	tracker, err := pitch.New(pitch.Config{
		SampleRate:    float64(sampleRate),
		MinFreqHz:     cfg.PitchMinFreqHz,
		MaxFreqHz:     cfg.PitchMaxFreqHz,
		Threshold:     cfg.PitchYinThreshold,
		UnvoicedGate:  cfg.PitchUnvoicedGate,
		EMAHalfLifeMs: cfg.PitchSmoothingTauMs,
		HopMs:         cfg.HopMs,
	})
	if err != nil {
		return nil, err
	}

	harmonicAnalyzer := harmonic.New(harmonic.Config{SampleRate: float64(sampleRate), FFTSize: fe.FFTSize()})
	cadenceAnalyzer := cadence.New(cadence.Config{HopMs: cfg.HopMs})

	frames := fe.Push(samples)

	windowSamples := fe.WindowSamples()
	hopSamples := fe.HopSamples()
	rawBuf := append([]float32(nil), samples...)

	var pitchSum float64
	var pitchCount int
	var harmonicSum float64
	var harmonicCount int

	for _, frame := range frames {
		if len(rawBuf) < windowSamples {
			break
		}
		window := rawBuf[:windowSamples]
		rms := pcm.RMS(window)
		vadResult := detector.Step(rms)
		cadenceAnalyzer.Step(rms)

		pr := tracker.Track(window)
		hr := harmonicAnalyzer.Analyze(frame.Magnitude, pr.F0Hz, pr.Voiced)

		// Only the call's active portion defines its tonal identity;
		// leading/trailing near-silence would otherwise drag the mean
		// toward whatever the noise floor happens to estimate.
		if vadResult.Active && pr.Voiced {
			pitchSum += pr.F0Hz
			pitchCount++
		}
		if vadResult.Active && hr.HarmonicConfidence > 0 {
			harmonicSum += hr.HarmonicRichness
			harmonicCount++
		}

		if len(rawBuf) >= hopSamples {
			rawBuf = rawBuf[hopSamples:]
		}
	}

	var meanF0, meanHarmonic float64
	if pitchCount > 0 {
		meanF0 = pitchSum / float64(pitchCount)
	}
	if harmonicCount > 0 {
		meanHarmonic = harmonicSum / float64(harmonicCount)
	}

	return &MasterCall{
		ID:           id,
		MFCC:         mfccCoeffsOnly(frames),
		RMSLinear:    pcm.RMS(samples),
		PeakLinear:   pcm.Peak(samples),
		RawSamples:   samples,
		SampleRate:   sampleRate,
		MeanF0Hz:     meanF0,
		MeanHarmonic: meanHarmonic,
		TempoHz:      cadenceAnalyzer.Result().TempoHz,
	}, nil
}
