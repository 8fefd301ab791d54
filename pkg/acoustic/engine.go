// Package acoustic is the engine's externally visible surface: an Engine
// factory producing isolated Sessions, each compared against a
// lazily-loaded, immutable, cache-shared MasterCall.
package acoustic

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/callecho/internal/calibration"
	"github.com/MrWong99/callecho/internal/dtw"
	"github.com/MrWong99/callecho/internal/finalizer"
	"github.com/MrWong99/callecho/internal/telemetry"
)

// Option configures optional Engine construction parameters.
type Option func(*Engine)

// WithHooks installs caller-provided observability callbacks, invoked
// synchronously on the caller's goroutine. The zero value is safe and
// fires nothing.
func WithHooks(h telemetry.Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// WithCalibration installs a grade-threshold table for Finalize's grade
// mapping. Without this option, calibration.Default() is used.
func WithCalibration(t *calibration.Table) Option {
	return func(e *Engine) { e.calibration = t }
}

// WithMasterLoader overrides how master identifiers resolve to raw
// samples. Without this option, identifiers are treated as WAV file
// paths.
func WithMasterLoader(loader MasterLoader) Option {
	return func(e *Engine) { e.masterLoader = loader }
}

// WithWorkingSampleRate fixes the canonical rate master audio is resampled
// to. Default 44100.
func WithWorkingSampleRate(hz int) Option {
	return func(e *Engine) { e.workingRate = hz }
}

// Engine is a process-wide factory producing sessions, and owner of the
// shared master-call cache. Created once; destroyed by simply dropping the
// reference (there is no background goroutine to stop).
type Engine struct {
	defaultCfg  Config
	calibration *calibration.Table
	hooks       telemetry.Hooks
	masterLoader MasterLoader
	workingRate int

	mu            sync.RWMutex
	sessions      map[SessionID]*session
	nextSessionID int64

	masters *masterCache
}

// NewEngine constructs an Engine from defaultCfg, which every session uses
// unless CreateSession is given an override.
func NewEngine(defaultCfg Config, opts ...Option) (*Engine, error) {
	if cerr := defaultCfg.Validate(); cerr != nil {
		return nil, cerr
	}

	e := &Engine{
		defaultCfg:  defaultCfg,
		calibration: calibration.Default(),
		workingRate: 44100,
		sessions:    make(map[SessionID]*session),
		masters:     newMasterCache(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.masterLoader == nil {
		e.masterLoader = defaultMasterLoader(e.workingRate)
	}
	return e, nil
}

// CreateSession allocates session state for a new attempt at sampleRateHz.
// Default config enables MFCC+DTW scoring; enhanced analyzers stay off
// until EnableEnhancedAnalyzers is called, unless overridden by cfg.
func (e *Engine) CreateSession(sampleRateHz float64, cfg *Config) (SessionID, error) {
	if sampleRateHz <= 0 || sampleRateHz < 8000 || sampleRateHz > 96000 {
		return 0, newErr("create_session", KindConfiguration, fmt.Errorf("sample rate %v Hz outside supported range [8000, 96000]", sampleRateHz))
	}

	resolved := e.defaultCfg
	if cfg != nil {
		resolved = *cfg
	}
	if cerr := resolved.Validate(); cerr != nil {
		return 0, cerr
	}

	id := SessionID(atomic.AddInt64(&e.nextSessionID, 1))
	sess, err := newSession(id, sampleRateHz, resolved)
	if err != nil {
		return 0, newErr("create_session", KindResourceExhausted, err)
	}

	e.mu.Lock()
	e.sessions[id] = sess
	e.mu.Unlock()

	return id, nil
}

// DestroySession releases session state. Repeated calls after success
// return KindSessionNotFound.
func (e *Engine) DestroySession(id SessionID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sessions[id]; !ok {
		return newErr("destroy_session", KindSessionNotFound, nil)
	}
	delete(e.sessions, id)
	return nil
}

func (e *Engine) lookup(id SessionID) (*session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, newErr("session", KindSessionNotFound, nil)
	}
	return s, nil
}

// LoadMasterCall resolves masterIdentifier to cached features, decoding
// and caching them on first use, and binds the session to this master.
func (e *Engine) LoadMasterCall(id SessionID, masterIdentifier string) error {
	sess, err := e.lookup(id)
	if err != nil {
		return err
	}

	start := time.Now()
	master, cacheHit, loadErr := e.masters.loadOrBuild(masterIdentifier, func() (*MasterCall, error) {
		samples, sampleRate, err := e.masterLoader(masterIdentifier)
		if err != nil {
			return nil, err
		}
		return buildMasterCall(masterIdentifier, samples, sampleRate, e.defaultCfg)
	})
	if loadErr != nil {
		return newErr("load_master_call", KindDecodeFailed, loadErr).With("master_id", masterIdentifier)
	}

	sess.mu.Lock()
	sess.masterID = masterIdentifier
	sess.master = master
	sess.mu.Unlock()

	e.hooks.FireMasterLoaded(telemetry.MasterLoadEvent{
		MasterID: masterIdentifier,
		CacheHit: cacheHit,
		Duration: time.Since(start),
	})
	return nil
}

// EnableEnhancedAnalyzers toggles pitch/harmonic/cadence analyzers for
// subsequent chunks. Pre-existing features remain.
func (e *Engine) EnableEnhancedAnalyzers(id SessionID, enable bool) error {
	sess, err := e.lookup(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	sess.enhancedEnabled = enable
	sess.mu.Unlock()
	return nil
}

// ProcessChunk advances analyzer states with one chunk of mono float PCM
// at the session's sample rate.
func (e *Engine) ProcessChunk(id SessionID, samples []float32) error {
	sess, err := e.lookup(id)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.finalized {
		return newErr("process_chunk", KindFinalized, nil)
	}
	if len(samples) == 0 {
		return newErr("process_chunk", KindBadFormat, fmt.Errorf("chunk must be non-empty"))
	}

	start := time.Now()
	sess.processChunk(samples, start)
	e.hooks.FireChunkProcessed(telemetry.ChunkEvent{
		SessionID: int64(id),
		Duration:  time.Since(start),
	})
	return nil
}

// GetRealtimeState is a pure read of the session's readiness and
// provisional score.
func (e *Engine) GetRealtimeState(id SessionID) (RealtimeState, error) {
	sess, err := e.lookup(id)
	if err != nil {
		return RealtimeState{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.realtimeState(time.Now()), nil
}

// GetSimilarityScore returns the current provisional score, or
// KindNotReady if the session is not yet reliable.
func (e *Engine) GetSimilarityScore(id SessionID) (float64, error) {
	sess, err := e.lookup(id)
	if err != nil {
		return 0, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	state := sess.realtimeState(time.Now())
	if !state.Reliable {
		return 0, newErr("get_similarity_score", KindNotReady, nil)
	}
	return state.ProvisionalScore, nil
}

// GetEnhancedSummary returns the current live per-dimension snapshot,
// zero-filled before readiness.
func (e *Engine) GetEnhancedSummary(id SessionID) (EnhancedSummary, error) {
	sess, err := e.lookup(id)
	if err != nil {
		return EnhancedSummary{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.enhancedSummary(time.Now()), nil
}

// ExportOverlay returns two parallel decimated peak arrays for the master
// and user audio observed so far. Safe to call at any time.
func (e *Engine) ExportOverlay(id SessionID, decimationStep int) (OverlayExport, error) {
	sess, err := e.lookup(id)
	if err != nil {
		return OverlayExport{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.exportOverlay(decimationStep), nil
}

// Finalize triggers SessionFinalizer and returns the refined FinalSummary.
// Subsequent calls return the cached result without recomputation;
// subsequent ProcessChunk calls fail with KindFinalized.
func (e *Engine) Finalize(id SessionID) (FinalSummary, error) {
	sess, err := e.lookup(id)
	if err != nil {
		return FinalSummary{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.finalized {
		return sess.finalSummary, nil
	}
	if sess.master == nil {
		return FinalSummary{}, newErr("finalize", KindNoMaster, nil)
	}

	start := time.Now()
	preScore := sess.score.Read(start).ProvisionalScore

	out, ferr := sess.finalize.Finalize(finalizer.FinalizeInput{
		Frames:             sess.frameAnnotations,
		MasterMFCC:         sess.master.MFCC,
		MasterRMS:          sess.master.RMSLinear,
		PreFinalizeScore:   preScore,
		ScoreTransform:     sess.score.DistanceToSimilarity,
		PitchSimilarity:    similarityRatio(sess.lastPitch.F0Hz, sess.master.MeanF0Hz),
		HarmonicSimilarity: similarityRatio(sess.lastHarmonic.HarmonicRichness, sess.master.MeanHarmonic),
		CadenceSimilarity:  similarityRatio(sess.lastCadence.TempoHz, sess.master.TempoHz),
		Calibration:        e.calibration,
	})
	if ferr != nil {
		switch ferr {
		case finalizer.ErrNoMaster:
			return FinalSummary{}, newErr("finalize", KindNoMaster, ferr)
		case finalizer.ErrNoData:
			return FinalSummary{}, newErr("finalize", KindNoData, ferr)
		default:
			if ferr == dtw.ErrNotReady || ferr == dtw.ErrEmptySequence {
				return FinalSummary{}, newErr("finalize", KindNoData, ferr)
			}
			return FinalSummary{}, newErr("finalize", KindInternal, ferr)
		}
	}

	segmentStartMs := float64(out.Segment.Start) * sess.cfg.HopMs
	segmentDurationMs := float64(out.Segment.End-out.Segment.Start) * sess.cfg.HopMs

	summary := FinalSummary{
		SimilarityAtFinalize: out.SimilarityAtFinalize,
		SegmentStartMs:       segmentStartMs,
		SegmentDurationMs:    segmentDurationMs,
		LoudnessDeviation:    out.LoudnessDeviation,
		NormalizationScalar:  out.NormalizationScalar,
		PitchGrade:           out.PitchGrade,
		HarmonicGrade:        out.HarmonicGrade,
		CadenceGrade:         out.CadenceGrade,
		OverallGrade:         out.OverallGrade,
		FallbackUsed:         out.FallbackUsed,
		ComponentContributions: map[string]float64{
			"mfcc":     out.SimilarityAtFinalize, // refined DTW is the sole finalize-time distance component
			"pitch":    0,
			"harmonic": 0,
			"cadence":  0,
			"loudness": 0,
		},
	}

	sess.finalized = true
	sess.finalSummary = summary

	e.hooks.FireFinalize(telemetry.FinalizeEvent{
		SessionID: int64(id),
		Duration:  time.Since(start),
	})
	return summary, nil
}

// Reset clears analyzer/scorer state; keeps master binding and config.
func (e *Engine) Reset(id SessionID) error {
	sess, err := e.lookup(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.reset()
	return nil
}
