package vad

import "testing"

func testConfig() Config {
	return Config{
		OnThresholdRMS:  0.05,
		OffThresholdRMS: 0.02,
		MinActiveMs:     30,
		MinSilenceMs:    50,
		HopMs:           10,
	}
}

func TestInitialStateIsSilence(t *testing.T) {
	d, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.State() != StateSilence {
		t.Errorf("initial state = %v, want SILENCE", d.State())
	}
}

func TestNewRejectsInvertedThresholds(t *testing.T) {
	cfg := testConfig()
	cfg.OnThresholdRMS = 0.01
	cfg.OffThresholdRMS = 0.05
	if _, err := New(cfg); err == nil {
		t.Error("expected error for on < off threshold")
	}
}

func TestSpuriousSpikeIsAbsorbed(t *testing.T) {
	d, _ := New(testConfig())
	// MinActiveMs=30ms, HopMs=10ms -> needs 3 consecutive loud frames.
	d.Step(0.1)
	r := d.Step(0.0) // drops back to silence before D_on
	if r.State != StateSilence {
		t.Errorf("single spike should not reach ACTIVE, got %v", r.State)
	}
	if r.Active {
		t.Error("spurious spike should not report active")
	}
}

func TestSustainedEnergyReachesActiveWithOnset(t *testing.T) {
	d, _ := New(testConfig())
	var last Result
	for i := 0; i < 3; i++ {
		last = d.Step(0.1)
	}
	if last.State != StateActive {
		t.Fatalf("after 3 loud frames, state = %v, want ACTIVE", last.State)
	}
	if !last.Onset {
		t.Error("expected onset on the frame entering ACTIVE")
	}
	if !last.Active {
		t.Error("expected active=true once ACTIVE")
	}

	next := d.Step(0.1)
	if next.Onset {
		t.Error("onset should only fire once, on entry")
	}
}

func TestOffsetFiresOnLeavingActive(t *testing.T) {
	d, _ := New(testConfig())
	for i := 0; i < 3; i++ {
		d.Step(0.1)
	}
	r := d.Step(0.0) // below off threshold
	if r.State != StateCandidateSilence {
		t.Fatalf("state = %v, want CANDIDATE_SILENCE", r.State)
	}
	if !r.Offset {
		t.Error("expected offset on the frame leaving ACTIVE")
	}
	if r.Active {
		t.Error("CANDIDATE_SILENCE should report active=false")
	}
}

func TestReturnToActiveFromCandidateSilenceCancelsOffset(t *testing.T) {
	d, _ := New(testConfig())
	for i := 0; i < 3; i++ {
		d.Step(0.1)
	}
	d.Step(0.0) // -> CANDIDATE_SILENCE
	r := d.Step(0.1)
	if r.State != StateActive {
		t.Errorf("state = %v, want ACTIVE after re-loud frame", r.State)
	}
	if !r.Onset {
		t.Error("re-entering ACTIVE from CANDIDATE_SILENCE is still a frame that enters ACTIVE")
	}
}

func TestSustainedSilenceReturnsToSilence(t *testing.T) {
	d, _ := New(testConfig())
	for i := 0; i < 3; i++ {
		d.Step(0.1)
	}
	var last Result
	// MinSilenceMs=50ms, HopMs=10ms -> needs 5 consecutive quiet frames.
	for i := 0; i < 5; i++ {
		last = d.Step(0.0)
	}
	if last.State != StateSilence {
		t.Errorf("state after sustained silence = %v, want SILENCE", last.State)
	}
}

func TestTrailingAudioNeverReachingOnsetIsInactive(t *testing.T) {
	d, _ := New(testConfig())
	var results []Result
	for i := 0; i < 2; i++ { // fewer than the 3 frames required
		results = append(results, d.Step(0.1))
	}
	for _, r := range results {
		if r.Active {
			t.Error("frames before D_on elapses must report inactive")
		}
	}
}

func TestResetReturnsToSilence(t *testing.T) {
	d, _ := New(testConfig())
	for i := 0; i < 3; i++ {
		d.Step(0.1)
	}
	d.Reset()
	if d.State() != StateSilence {
		t.Errorf("state after Reset = %v, want SILENCE", d.State())
	}
}
