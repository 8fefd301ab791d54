package frontend

import "math"

// hzToMel and melToHz use the Slaney/HTK-style formula, matching the
// retrieved austinkregel/vscode-music-player MFCC pipeline this package is
// grounded on.
func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// melFilterbank builds numFilters overlapping triangular filters spanning
// 0 Hz to the Nyquist frequency, each row indexed by FFT bin
// (0..fftSize/2 inclusive). Filter i peaks at 1.0 at its center frequency
// and tapers linearly to 0 at its neighbours' centers.
func melFilterbank(numFilters, fftSize, sampleRate int) [][]float64 {
	nyquist := float64(sampleRate) / 2
	numBins := fftSize/2 + 1

	lowMel := hzToMel(0)
	highMel := hzToMel(nyquist)

	melPoints := make([]float64, numFilters+2)
	for i := range melPoints {
		melPoints[i] = lowMel + float64(i)*(highMel-lowMel)/float64(numFilters+1)
	}

	binPoints := make([]int, numFilters+2)
	for i, mel := range melPoints {
		hz := melToHz(mel)
		bin := int(math.Round(hz / nyquist * float64(numBins-1)))
		if bin < 0 {
			bin = 0
		}
		if bin > numBins-1 {
			bin = numBins - 1
		}
		binPoints[i] = bin
	}

	filters := make([][]float64, numFilters)
	for i := range filters {
		filters[i] = make([]float64, numBins)
		left, center, right := binPoints[i], binPoints[i+1], binPoints[i+2]

		for b := left; b < center; b++ {
			if center > left {
				filters[i][b] = float64(b-left) / float64(center-left)
			}
		}
		for b := center; b < right; b++ {
			if right > center {
				filters[i][b] = float64(right-b) / float64(right-center)
			}
		}
		if center < numBins {
			filters[i][center] = 1
		}
	}
	return filters
}
