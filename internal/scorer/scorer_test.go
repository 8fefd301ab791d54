package scorer

import (
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		Weights:           DefaultWeights(),
		DistanceScale:     2.0,
		MinFramesRequired: 10,
		StalenessWindow:   500 * time.Millisecond,
	}
}

func fullyReliableInputs() Inputs {
	return Inputs{
		DTWDistance: 0, DTWReliable: true,
		PitchSimilarity: 1, PitchReliable: true,
		HarmonicSimilarity: 1, HarmonicReliable: true,
		CadenceSimilarity: 1, CadenceReliable: true,
		LoudnessSimilarity: 1, LoudnessReliable: true,
		FramesObserved: 20, MasterLoaded: true, ActiveSegmentSeen: true,
	}
}

func TestSelfCompareScoresNearOne(t *testing.T) {
	s := New(testConfig())
	r := s.Update(fullyReliableInputs(), time.Unix(0, 0))

	if r.ProvisionalScore < 0.95 {
		t.Errorf("ProvisionalScore = %v, want near 1 for a perfect self-compare", r.ProvisionalScore)
	}
	if !r.Reliable {
		t.Error("expected reliable=true")
	}
}

func TestContributionsSumToScore(t *testing.T) {
	s := New(testConfig())
	r := s.Update(fullyReliableInputs(), time.Unix(0, 0))

	var sum float64
	for _, v := range r.ComponentContributions {
		sum += v
	}
	diff := sum - r.ProvisionalScore
	if diff < 0 {
		diff = -diff
	}
	if diff > 1e-9 {
		t.Errorf("contributions sum to %v, want %v", sum, r.ProvisionalScore)
	}
}

func TestUnreliableComponentWeightIsRedistributed(t *testing.T) {
	s := New(testConfig())
	in := fullyReliableInputs()
	in.PitchReliable = false

	r := s.Update(in, time.Unix(0, 0))
	if r.ComponentContributions["pitch"] != 0 {
		t.Errorf("unreliable component should contribute 0, got %v", r.ComponentContributions["pitch"])
	}

	var sum float64
	for _, v := range r.ComponentContributions {
		sum += v
	}
	if sum < 0.95 {
		t.Errorf("redistributed weight should keep score near 1 for otherwise-perfect input, got %v", sum)
	}
}

func TestNotReliableWhenFramesInsufficient(t *testing.T) {
	s := New(testConfig())
	in := fullyReliableInputs()
	in.FramesObserved = 2

	r := s.Update(in, time.Unix(0, 0))
	if r.Reliable {
		t.Error("expected reliable=false with too few frames observed")
	}
}

func TestNotReliableWithoutMasterOrActiveSegment(t *testing.T) {
	s := New(testConfig())

	noMaster := fullyReliableInputs()
	noMaster.MasterLoaded = false
	if s.Update(noMaster, time.Unix(0, 0)).Reliable {
		t.Error("expected reliable=false without a loaded master")
	}

	noSegment := fullyReliableInputs()
	noSegment.ActiveSegmentSeen = false
	if s.Update(noSegment, time.Unix(0, 0)).Reliable {
		t.Error("expected reliable=false without an observed active segment")
	}
}

func TestReadFlagsStaleAfterWindow(t *testing.T) {
	s := New(testConfig())
	base := time.Unix(0, 0)
	s.Update(fullyReliableInputs(), base)

	fresh := s.Read(base.Add(100 * time.Millisecond))
	if fresh.Stale {
		t.Error("expected not stale within the staleness window")
	}

	stale := s.Read(base.Add(time.Second))
	if !stale.Stale {
		t.Error("expected stale after the staleness window elapses")
	}
}

func TestReadBeforeAnyUpdate(t *testing.T) {
	s := New(testConfig())
	r := s.Read(time.Unix(0, 0))
	if r.ProvisionalScore != 0 {
		t.Errorf("ProvisionalScore before any update = %v, want 0", r.ProvisionalScore)
	}
}

func TestResetClearsState(t *testing.T) {
	s := New(testConfig())
	s.Update(fullyReliableInputs(), time.Unix(0, 0))
	s.Reset()

	r := s.Read(time.Unix(0, 0))
	if r.ProvisionalScore != 0 {
		t.Error("Reset did not clear the cached result")
	}
}
