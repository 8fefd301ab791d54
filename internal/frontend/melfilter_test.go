package frontend

import "testing"

func TestMelFilterbankShape(t *testing.T) {
	const numFilters, fftSize, sampleRate = 26, 512, 16000
	fb := melFilterbank(numFilters, fftSize, sampleRate)

	if len(fb) != numFilters {
		t.Fatalf("got %d filters, want %d", len(fb), numFilters)
	}
	numBins := fftSize/2 + 1
	for i, filter := range fb {
		if len(filter) != numBins {
			t.Fatalf("filter %d has %d bins, want %d", i, len(filter), numBins)
		}
	}
}

func TestMelFilterbankWeightsAreNonNegative(t *testing.T) {
	fb := melFilterbank(26, 512, 16000)
	for i, filter := range fb {
		for b, w := range filter {
			if w < 0 {
				t.Errorf("filter %d bin %d has negative weight %v", i, b, w)
			}
			if w > 1.0001 {
				t.Errorf("filter %d bin %d has weight > 1: %v", i, b, w)
			}
		}
	}
}

func TestMelHzRoundTrip(t *testing.T) {
	for _, hz := range []float64{0, 100, 440, 1000, 4000, 8000} {
		mel := hzToMel(hz)
		back := melToHz(mel)
		diff := back - hz
		if diff < 0 {
			diff = -diff
		}
		if diff > 1e-6 {
			t.Errorf("hzToMel/melToHz round trip for %v Hz: got %v", hz, back)
		}
	}
}
