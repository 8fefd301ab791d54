package cadence

import "testing"

func testConfig() Config {
	return Config{
		HopMs:           10,
		FluxSensitivity: 1.5,
		MinTempoHz:      0.5,
		MaxTempoHz:      10,
		AdaptiveWindow:  20,
	}
}

// stepBurst feeds a silent run followed by one loud frame, simulating a
// single discrete call onset.
func stepBurst(a *Analyzer, silentFrames int) {
	for i := 0; i < silentFrames; i++ {
		a.Step(0.01)
	}
	a.Step(0.5)
}

func TestRegularOnsetsYieldStableTempo(t *testing.T) {
	a := New(testConfig())
	// Five evenly spaced bursts, 20 frames (200ms) apart.
	for i := 0; i < 5; i++ {
		stepBurst(a, 19)
	}

	r := a.Result()
	if len(r.Onsets) < 4 {
		t.Fatalf("got %d onsets, want at least 4", len(r.Onsets))
	}
	if r.TempoHz <= 0 {
		t.Errorf("TempoHz = %v, want positive", r.TempoHz)
	}
	if r.TempoConfidence < 0.5 {
		t.Errorf("TempoConfidence = %v, want high for regular spacing", r.TempoConfidence)
	}
}

func TestNoOnsetsYieldsZeroedResult(t *testing.T) {
	a := New(testConfig())
	for i := 0; i < 50; i++ {
		a.Step(0.01)
	}
	r := a.Result()
	if r.TempoHz != 0 {
		t.Errorf("TempoHz = %v, want 0 with no onsets", r.TempoHz)
	}
	if r.CadenceScore != 0 {
		t.Errorf("CadenceScore = %v, want 0", r.CadenceScore)
	}
}

func TestSingleOnsetInsufficientForTempo(t *testing.T) {
	a := New(testConfig())
	stepBurst(a, 19)
	r := a.Result()
	if len(r.Onsets) != 1 {
		t.Fatalf("got %d onsets, want 1", len(r.Onsets))
	}
	if r.TempoHz != 0 {
		t.Errorf("TempoHz with a single onset = %v, want 0", r.TempoHz)
	}
}

func TestIrregularOnsetsLowerConfidence(t *testing.T) {
	regular := New(testConfig())
	for i := 0; i < 5; i++ {
		stepBurst(regular, 19)
	}

	irregular := New(testConfig())
	gaps := []int{5, 40, 10, 35, 8}
	for _, g := range gaps {
		stepBurst(irregular, g)
	}

	rr := regular.Result()
	ri := irregular.Result()
	if ri.TempoConfidence >= rr.TempoConfidence {
		t.Errorf("irregular confidence %v should be lower than regular %v", ri.TempoConfidence, rr.TempoConfidence)
	}
}

func TestResetClearsState(t *testing.T) {
	a := New(testConfig())
	stepBurst(a, 19)
	a.Reset()
	r := a.Result()
	if len(r.Onsets) != 0 {
		t.Error("Reset did not clear onsets")
	}
}
