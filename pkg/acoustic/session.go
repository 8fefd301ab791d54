package acoustic

import (
	"sync"
	"time"

	"github.com/MrWong99/callecho/internal/cadence"
	"github.com/MrWong99/callecho/internal/dtw"
	"github.com/MrWong99/callecho/internal/finalizer"
	"github.com/MrWong99/callecho/internal/frontend"
	"github.com/MrWong99/callecho/internal/harmonic"
	"github.com/MrWong99/callecho/internal/loudness"
	"github.com/MrWong99/callecho/internal/pitch"
	"github.com/MrWong99/callecho/internal/scorer"
	"github.com/MrWong99/callecho/internal/vad"
	pcm "github.com/MrWong99/callecho/pkg/audio"
)

// session holds all per-attempt state. A session owns its analyzers by
// composition; analyzers hold no back-reference to the session, so data
// flows in only through explicit arguments on each method below.
type session struct {
	mu sync.Mutex

	id     SessionID
	cfg    Config
	rate   float64

	frontEnd *frontend.FrontEnd
	detector *vad.Detector
	meter    loudness.Meter
	tracker  *pitch.Tracker
	harm     *harmonic.Analyzer
	cad      *cadence.Analyzer
	comparator *dtw.Comparator
	score    *scorer.Scorer
	finalize *finalizer.Finalizer

	enhancedEnabled bool

	windowSamples int
	hopSamples    int
	rawBuf        []float32
	allSamples    []float32 // retained for overlay export

	masterID string
	master   *MasterCall

	frameCounter      int
	activeSegmentSeen bool
	frameAnnotations  []finalizer.FrameAnnotation

	lastPitch    pitch.Result
	lastHarmonic harmonic.Result
	lastLoudness loudness.Frame
	lastCadence  cadence.Result
	lastUpdate   time.Time
	startTime    time.Time

	finalized       bool
	finalSummary    FinalSummary
}

func newSession(id SessionID, sampleRateHz float64, cfg Config) (*session, error) {
	fe, err := frontend.New(frontend.Config{
		SampleRate:    sampleRateHz,
		WindowMs:      cfg.WindowMs,
		HopMs:         cfg.HopMs,
		PreEmphasis:   cfg.PreEmphasis,
		MelBands:      cfg.MelBands,
		CepstralCoefs: cfg.CepstralCoefs,
		RingCapacity:  cfg.DTWRollingWindowFrames,
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
		SampleRate:    sampleRateHz,
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

	comparator := dtw.New(dtw.Config{BandRatio: cfg.DTWBandRatio, MinFrames: cfg.minFramesRequired()})

	sc := scorer.New(scorer.Config{
		Weights:           cfg.ScoreWeights,
		DistanceScale:     cfg.DistanceScale,
		MinFramesRequired: cfg.minFramesRequired(),
		StalenessWindow:   time.Duration(cfg.StalenessWindowMs * float64(time.Millisecond)),
	})

	fz := finalizer.New(finalizer.Config{
		PitchConfidenceGate:    cfg.PitchUnvoicedGate,
		ProvisionalFloor:       cfg.ProvisionalFloor,
		MinSegmentFrames:       cfg.finalizeMinSegmentFrames(),
		MinNormalizationScalar: cfg.NormalizationMinScalar,
		MaxNormalizationScalar: cfg.NormalizationMaxScalar,
		MelBands:               cfg.MelBands,
	}, comparator)

	return &session{
		id:              id,
		cfg:             cfg,
		rate:            sampleRateHz,
		frontEnd:        fe,
		detector:        detector,
		tracker:         tracker,
		harm:            harmonic.New(harmonic.Config{SampleRate: sampleRateHz, FFTSize: fe.FFTSize()}),
		cad:             cadence.New(cadence.Config{HopMs: cfg.HopMs}),
		comparator:      comparator,
		score:           sc,
		finalize:        fz,
		enhancedEnabled: cfg.EnhancedAnalyzersDefault,
		windowSamples:   fe.WindowSamples(),
		hopSamples:      fe.HopSamples(),
		startTime:       time.Time{},
	}, nil
}

// processChunk runs one chunk of audio through the full per-frame
// pipeline: VAD, loudness, MFCC, and (when enabled) pitch/harmonic/cadence,
// then folds the results into the realtime scorer.
func (s *session) processChunk(samples []float32, now time.Time) {
	if s.startTime.IsZero() {
		s.startTime = now
	}

	s.rawBuf = append(s.rawBuf, samples...)
	s.allSamples = append(s.allSamples, samples...)
	frames := s.frontEnd.Push(samples)

	for _, frame := range frames {
		if len(s.rawBuf) < s.windowSamples {
			break
		}
		window := s.rawBuf[:s.windowSamples]

		loudnessFrame := s.meter.Measure(window)
		vadResult := s.detector.Step(loudnessFrame.RMSLinear)
		s.meter.Accumulate(loudnessFrame, vadResult.Active)

		var pr pitch.Result
		var hr harmonic.Result
		if s.enhancedEnabled {
			s.cad.Step(loudnessFrame.RMSLinear)
			s.lastCadence = s.cad.Result()
			pr = s.tracker.Track(window)
			hr = s.harm.Analyze(frame.Magnitude, pr.F0Hz, pr.Voiced)
		}

		if vadResult.Active {
			s.activeSegmentSeen = true
		}

		s.frameAnnotations = append(s.frameAnnotations, finalizer.FrameAnnotation{
			Active:          vadResult.Active,
			RMSLinear:       loudnessFrame.RMSLinear,
			PitchConfidence: pr.Confidence,
			MFCC:            frame.Coeffs,
		})

		s.lastPitch = pr
		s.lastHarmonic = hr
		s.lastLoudness = loudnessFrame
		s.lastUpdate = now
		s.frameCounter++

		if len(s.rawBuf) >= s.hopSamples {
			s.rawBuf = s.rawBuf[s.hopSamples:]
		}

		s.updateScore(now)
	}
}

func (s *session) updateScore(now time.Time) {
	in := scorer.Inputs{
		FramesObserved:    s.frameCounter,
		MasterLoaded:      s.master != nil,
		ActiveSegmentSeen: s.activeSegmentSeen,
	}

	if s.master != nil && len(s.master.MFCC) > 0 {
		window := s.frontEnd.Window(s.cfg.DTWRollingWindowFrames)
		if len(window) > 0 {
			vectors := make([][]float32, len(window))
			for i, f := range window {
				vectors[i] = f.Coeffs
			}
			if d, err := s.comparator.Distance(vectors, s.master.MFCC); err == nil {
				in.DTWDistance = d
				in.DTWReliable = true
			}
		}

		if s.enhancedEnabled {
			if s.master.MeanF0Hz > 0 && s.lastPitch.Voiced {
				in.PitchSimilarity = similarityRatio(s.lastPitch.F0Hz, s.master.MeanF0Hz)
				in.PitchReliable = true
			}
			if s.master.MeanHarmonic > 0 && s.lastHarmonic.HarmonicConfidence > 0 {
				in.HarmonicSimilarity = similarityRatio(s.lastHarmonic.HarmonicRichness, s.master.MeanHarmonic)
				in.HarmonicReliable = true
			}
			if s.master.TempoHz > 0 && s.lastCadence.TempoHz > 0 {
				in.CadenceSimilarity = similarityRatio(s.lastCadence.TempoHz, s.master.TempoHz)
				in.CadenceReliable = true
			}
		}

		if s.master.RMSLinear > 0 && s.meter.MeanActiveRMS() > 0 {
			deviation := (s.meter.MeanActiveRMS() - s.master.RMSLinear) / s.master.RMSLinear
			in.LoudnessSimilarity = clamp01(1 - absFloat(deviation))
			in.LoudnessReliable = true
		}
	}

	s.score.Update(in, now)
}

// similarityRatio maps two positive quantities to a [0,1] similarity via
// 1 - relative difference, clamped at 0.
func similarityRatio(user, master float64) float64 {
	if master <= 0 {
		return 0
	}
	return clamp01(1 - absFloat(user-master)/master)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func (s *session) reset() {
	s.frontEnd.Reset()
	s.detector.Reset()
	s.meter.Reset()
	s.tracker.Reset()
	s.cad.Reset()
	s.score.Reset()

	s.rawBuf = nil
	s.allSamples = nil
	s.frameCounter = 0
	s.activeSegmentSeen = false
	s.frameAnnotations = nil
	s.lastPitch = pitch.Result{}
	s.lastHarmonic = harmonic.Result{}
	s.lastLoudness = loudness.Frame{}
	s.lastCadence = cadence.Result{}
	s.lastUpdate = time.Time{}
	s.startTime = time.Time{}
	s.finalized = false
	s.finalSummary = FinalSummary{}
}

func (s *session) realtimeState(now time.Time) RealtimeState {
	r := s.score.Read(now)
	return RealtimeState{
		FramesObserved:    s.frameCounter,
		MinFramesRequired: s.cfg.minFramesRequired(),
		UsingRealtimePath: true,
		Reliable:          r.Reliable,
		ProvisionalScore:  r.ProvisionalScore,
		Stale:             r.Stale,
	}
}

func (s *session) enhancedSummary(now time.Time) EnhancedSummary {
	reliable := s.score.Read(now).Reliable
	if !reliable {
		return EnhancedSummary{}
	}
	var lastMs float64
	if !s.startTime.IsZero() {
		lastMs = float64(s.lastUpdate.Sub(s.startTime).Milliseconds())
	}
	return EnhancedSummary{
		PitchHz:             s.lastPitch.F0Hz,
		PitchConfidence:     s.lastPitch.Confidence,
		HarmonicityScore:    s.lastHarmonic.HarmonicRichness,
		HarmonicConfidence:  s.lastHarmonic.HarmonicConfidence,
		CadenceScore:        s.lastCadence.CadenceScore,
		TempoConfidence:     s.lastCadence.TempoConfidence,
		RMSDBFS:             s.lastLoudness.RMSDB,
		PeakDBFS:            s.lastLoudness.PeakDB,
		LoudnessDeviation:   loudnessDeviation(s.meter.MeanActiveRMS(), s.master),
		NormalizationScalar: normalizationScalar(s.meter.MeanActiveRMS(), s.master, s.cfg),
		LastUpdateMs:        lastMs,
		FramesObserved:      s.frameCounter,
	}
}

func loudnessDeviation(userRMS float64, master *MasterCall) float64 {
	if master == nil || master.RMSLinear <= 0 {
		return 0
	}
	return (userRMS - master.RMSLinear) / master.RMSLinear
}

func normalizationScalar(userRMS float64, master *MasterCall, cfg Config) float64 {
	if master == nil || master.RMSLinear <= 0 || userRMS <= 0 {
		return 1
	}
	scalar := master.RMSLinear / userRMS
	if scalar < cfg.NormalizationMinScalar {
		return cfg.NormalizationMinScalar
	}
	if scalar > cfg.NormalizationMaxScalar {
		return cfg.NormalizationMaxScalar
	}
	return scalar
}

func (s *session) exportOverlay(decimationStep int) OverlayExport {
	if decimationStep < 1 {
		decimationStep = 1
	}
	var masterPeaks []float32
	if s.master != nil {
		masterPeaks = decimatePeaks(s.master.RawSamples, decimationStep)
	}
	userPeaks := decimatePeaks(s.allSamples, decimationStep)
	return OverlayExport{
		MasterPeaks:       masterPeaks,
		UserPeaks:         userPeaks,
		StepSize:          decimationStep,
		AlignmentOffsetMs: 0,
	}
}

func decimatePeaks(samples []float32, step int) []float32 {
	if len(samples) == 0 {
		return nil
	}
	n := (len(samples) + step - 1) / step
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		start := i * step
		end := start + step
		if end > len(samples) {
			end = len(samples)
		}
		out[i] = float32(pcm.Peak(samples[start:end]))
	}
	return out
}
