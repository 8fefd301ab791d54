package finalizer

import (
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/callecho/internal/calibration"
	"github.com/MrWong99/callecho/internal/dtw"
)

func testFinalizer() *Finalizer {
	return New(Config{
		PitchConfidenceGate: 0.5,
		ProvisionalFloor:    0.70,
		MinSegmentFrames:    2,
	}, dtw.New(dtw.Config{MinFrames: 1}))
}

func mfccVec(v float32) []float32 { return []float32{v, v, v} }

func activeFrames(n int, rms float64, pitchConf float64, coeff float32) []FrameAnnotation {
	out := make([]FrameAnnotation, n)
	for i := range out {
		out[i] = FrameAnnotation{Active: true, RMSLinear: rms, PitchConfidence: pitchConf, MFCC: mfccVec(coeff)}
	}
	return out
}

func inactiveFrames(n int) []FrameAnnotation {
	out := make([]FrameAnnotation, n)
	for i := range out {
		out[i] = FrameAnnotation{Active: false}
	}
	return out
}

func TestNoMasterReturnsError(t *testing.T) {
	fz := testFinalizer()
	_, err := fz.Finalize(FinalizeInput{
		Frames:     activeFrames(10, 0.5, 0.9, 1),
		MasterMFCC: nil,
	})
	if !errors.Is(err, ErrNoMaster) {
		t.Errorf("got %v, want ErrNoMaster", err)
	}
}

func TestNoActiveSegmentReturnsNoData(t *testing.T) {
	fz := testFinalizer()
	master := [][]float32{mfccVec(1), mfccVec(1)}
	_, err := fz.Finalize(FinalizeInput{
		Frames:     inactiveFrames(10),
		MasterMFCC: master,
	})
	if !errors.Is(err, ErrNoData) {
		t.Errorf("got %v, want ErrNoData", err)
	}
}

func TestSelfSimilarAttemptGradesHigh(t *testing.T) {
	fz := testFinalizer()
	master := make([][]float32, 20)
	for i := range master {
		master[i] = mfccVec(1)
	}

	result, err := fz.Finalize(FinalizeInput{
		Frames:             activeFrames(20, 0.5, 0.9, 1),
		MasterMFCC:         master,
		MasterRMS:          0.5,
		PreFinalizeScore:   0.9,
		PitchSimilarity:    0.95,
		HarmonicSimilarity: 0.95,
		CadenceSimilarity:  0.95,
		Calibration:        calibration.Default(),
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if result.SimilarityAtFinalize < 0.9 {
		t.Errorf("SimilarityAtFinalize = %v, want near 1 for identical MFCC content", result.SimilarityAtFinalize)
	}
	if result.OverallGrade != 'A' {
		t.Errorf("OverallGrade = %c, want A", result.OverallGrade)
	}
	if result.NormalizationScalar != 1.0 {
		t.Errorf("NormalizationScalar = %v, want 1.0 for matched RMS", result.NormalizationScalar)
	}
	if result.LoudnessDeviation != 0 {
		t.Errorf("LoudnessDeviation = %v, want 0 for matched RMS", result.LoudnessDeviation)
	}
}

func TestNormalizationScalarIsClamped(t *testing.T) {
	fz := testFinalizer()
	master := make([][]float32, 5)
	for i := range master {
		master[i] = mfccVec(1)
	}

	result, err := fz.Finalize(FinalizeInput{
		Frames:      activeFrames(5, 0.01, 0.9, 1), // user far quieter than master
		MasterMFCC:  master,
		MasterRMS:   1.0,
		Calibration: calibration.Default(),
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if result.NormalizationScalar != 4.0 {
		t.Errorf("NormalizationScalar = %v, want clamped to 4.0", result.NormalizationScalar)
	}
}

func TestBestSegmentChosenAmongMultipleCandidates(t *testing.T) {
	fz := testFinalizer()
	master := make([][]float32, 5)
	for i := range master {
		master[i] = mfccVec(1)
	}

	var frames []FrameAnnotation
	frames = append(frames, inactiveFrames(3)...)
	frames = append(frames, activeFrames(4, 0.1, 0.2, 1)...) // weak first segment: low energy, low pitch stability
	frames = append(frames, inactiveFrames(3)...)
	frames = append(frames, activeFrames(8, 0.8, 0.95, 1)...) // strong second segment
	frames = append(frames, inactiveFrames(2)...)

	result, err := fz.Finalize(FinalizeInput{
		Frames:      frames,
		MasterMFCC:  master,
		MasterRMS:   0.8,
		Calibration: calibration.Default(),
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	wantStart := 3 + 4 + 3
	if result.Segment.Start != wantStart {
		t.Errorf("selected segment start = %d, want %d (the stronger segment)", result.Segment.Start, wantStart)
	}
}

func TestFallbackUsedWhenFinalizedScoreCrossesFloor(t *testing.T) {
	fz := testFinalizer()
	master := make([][]float32, 10)
	for i := range master {
		master[i] = mfccVec(1)
	}

	result, err := fz.Finalize(FinalizeInput{
		Frames:           activeFrames(10, 0.5, 0.9, 1),
		MasterMFCC:       master,
		MasterRMS:        0.5,
		PreFinalizeScore: 0.5, // below the 0.70 floor
		Calibration:      calibration.Default(),
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !result.FallbackUsed {
		t.Error("expected fallback_used=true when finalized similarity crosses the floor from below")
	}
}

func TestLoudnessNormalizedMFCCCancelsGainForScaledSelf(t *testing.T) {
	fz := New(Config{
		PitchConfidenceGate: 0.5,
		ProvisionalFloor:    0.70,
		MinSegmentFrames:    2,
		MelBands:            26,
	}, dtw.New(dtw.Config{MinFrames: 1}))

	masterRMS := 1.0
	userRMS := 0.25
	normScalar := masterRMS / userRMS // 4.0, within clamp bounds

	const masterC0 = float32(5)
	shift := float32(math.Sqrt(26) * 2 * math.Log(normScalar))
	userC0 := masterC0 - shift // what a uniformly 0.25x-scaled recording's c0 would measure

	master := make([][]float32, 10)
	for i := range master {
		master[i] = []float32{masterC0, 2, -1}
	}
	frames := make([]FrameAnnotation, 10)
	for i := range frames {
		frames[i] = FrameAnnotation{Active: true, RMSLinear: userRMS, PitchConfidence: 0.9, MFCC: []float32{userC0, 2, -1}}
	}

	result, err := fz.Finalize(FinalizeInput{
		Frames:      frames,
		MasterMFCC:  master,
		MasterRMS:   masterRMS,
		Calibration: calibration.Default(),
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if result.NormalizationScalar != 4.0 {
		t.Errorf("NormalizationScalar = %v, want 4.0", result.NormalizationScalar)
	}
	if result.SimilarityAtFinalize < 0.999 {
		t.Errorf("SimilarityAtFinalize = %v, want ~1 once the c0 gain correction cancels the scale difference", result.SimilarityAtFinalize)
	}
}

func TestMissingCalibrationReportsNotGraded(t *testing.T) {
	fz := testFinalizer()
	master := make([][]float32, 10)
	for i := range master {
		master[i] = mfccVec(1)
	}

	result, err := fz.Finalize(FinalizeInput{
		Frames:     activeFrames(10, 0.5, 0.9, 1),
		MasterMFCC: master,
		MasterRMS:  0.5,
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if result.OverallGrade != 'N' {
		t.Errorf("OverallGrade = %c, want N without a calibration table", result.OverallGrade)
	}
}
