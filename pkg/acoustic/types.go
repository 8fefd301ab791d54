package acoustic

import "github.com/MrWong99/callecho/internal/frontend"

// SessionID uniquely identifies a session within an Engine. IDs are opaque
// integers, never reused after DestroySession.
type SessionID int64

// MFCCFrame is a fixed-width cepstral coefficient vector plus the sample
// index of its window's first sample.
type MFCCFrame = frontend.Frame

// EnhancedSummary is the live per-dimension snapshot a session exposes
// once enhanced analyzers are enabled. All fields are zero (never NaN)
// before readiness.
type EnhancedSummary struct {
	PitchHz            float64
	PitchConfidence    float64
	HarmonicityScore   float64
	HarmonicConfidence float64
	CadenceScore       float64
	TempoConfidence    float64
	RMSDBFS            float64
	PeakDBFS           float64
	LoudnessDeviation  float64
	NormalizationScalar float64
	LastUpdateMs       float64
	FramesObserved     int
}

// RealtimeState is the poll-based readiness contract callers use to decide
// whether get_similarity_score will return a meaningful value.
type RealtimeState struct {
	FramesObserved    int
	MinFramesRequired int
	UsingRealtimePath bool
	Reliable          bool
	ProvisionalScore  float64
	Stale             bool
}

// FinalSummary is the refined, idempotently cached result of Finalize.
type FinalSummary struct {
	SimilarityAtFinalize  float64
	SegmentStartMs        float64
	SegmentDurationMs     float64
	LoudnessDeviation     float64
	NormalizationScalar   float64
	PitchGrade            byte
	HarmonicGrade         byte
	CadenceGrade          byte
	OverallGrade          byte
	FallbackUsed          bool
	ComponentContributions map[string]float64
}

// OverlayExport is two parallel decimated peak arrays for visual
// comparison, plus the decimation step and alignment offset used to
// produce them.
type OverlayExport struct {
	MasterPeaks       []float32
	UserPeaks         []float32
	StepSize          int
	AlignmentOffsetMs float64
}
