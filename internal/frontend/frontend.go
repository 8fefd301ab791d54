// Package frontend implements deterministic MFCC extraction from a mono
// float audio stream: framing, pre-emphasis, Hamming windowing, FFT, mel
// filterbank, and DCT-II, grounded on the retrieved
// austinkregel/vscode-music-player feature-extraction pipeline. Input
// samples, the pre-emphasis stage and the emitted coefficients are 32-bit
// float; windowing, FFT, mel filtering, log and DCT run in float64.
package frontend

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

const logFloor = 1e-10

// Config fixes the frame parameters for the lifetime of a FrontEnd. Frame
// parameters are configured once and never change.
type Config struct {
	SampleRate    float64 // Hz
	WindowMs      float64 // e.g. 25
	HopMs         float64 // e.g. 10
	PreEmphasis   float32 // e.g. 0.97
	MelBands      int     // e.g. 26
	CepstralCoefs int     // e.g. 13
	RingCapacity  int     // frame ring buffer depth; drives DTW window size
}

// Frame is one emitted MFCC vector together with the sample index (in the
// front end's own sample-count timeline) of its window's first sample.
type Frame struct {
	Coeffs      []float32
	Magnitude   []float64 // magnitude spectrum (fftSize/2+1 bins); shared with HarmonicAnalyzer
	SampleIndex int64
}

// FrontEnd turns a mono float32 stream into a sequence of [Frame]s.
type FrontEnd struct {
	cfg Config

	windowSamples int
	hopSamples    int
	fftSize       int

	hamming    []float64
	filterbank [][]float64
	fft        *fourier.FFT

	buf         []float32
	prevRaw     float32
	samplesSeen int64

	ring    []Frame
	ringCap int
}

// New constructs a FrontEnd from cfg. fftSize is the next power of two
// greater than or equal to the window length in samples.
func New(cfg Config) (*FrontEnd, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("frontend: sample rate must be positive, got %v", cfg.SampleRate)
	}
	if cfg.WindowMs <= 0 || cfg.HopMs <= 0 {
		return nil, fmt.Errorf("frontend: window_ms and hop_ms must be positive")
	}
	if cfg.MelBands <= 0 || cfg.CepstralCoefs <= 0 {
		return nil, fmt.Errorf("frontend: mel_bands and cepstral_coefs must be positive")
	}
	if cfg.CepstralCoefs > cfg.MelBands {
		return nil, fmt.Errorf("frontend: cepstral_coefs (%d) cannot exceed mel_bands (%d)", cfg.CepstralCoefs, cfg.MelBands)
	}

	windowSamples := int(math.Round(cfg.WindowMs * cfg.SampleRate / 1000))
	hopSamples := int(math.Round(cfg.HopMs * cfg.SampleRate / 1000))
	if windowSamples <= 0 || hopSamples <= 0 {
		return nil, fmt.Errorf("frontend: window/hop too small for sample rate %v", cfg.SampleRate)
	}

	fftSize := 1
	for fftSize < windowSamples {
		fftSize <<= 1
	}

	ringCap := cfg.RingCapacity
	if ringCap <= 0 {
		ringCap = 512
	}

	f := &FrontEnd{
		cfg:           cfg,
		windowSamples: windowSamples,
		hopSamples:    hopSamples,
		fftSize:       fftSize,
		hamming:       hammingWindow(windowSamples),
		filterbank:    melFilterbank(cfg.MelBands, fftSize, int(cfg.SampleRate)),
		fft:           fourier.NewFFT(fftSize),
		ringCap:       ringCap,
	}
	return f, nil
}

func hammingWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// Push feeds newly arrived samples into the framing buffer and returns the
// zero or more frames completed as a result. Completed frames are also
// appended to the internal ring buffer, evicting the oldest frame once
// RingCapacity is exceeded.
func (f *FrontEnd) Push(samples []float32) []Frame {
	emphasized := make([]float32, len(samples))
	for i, x := range samples {
		emphasized[i] = x - f.cfg.PreEmphasis*f.prevRaw
		f.prevRaw = x
	}
	f.buf = append(f.buf, emphasized...)

	var out []Frame
	for len(f.buf) >= f.windowSamples {
		coeffs, magnitude := f.extract(f.buf[:f.windowSamples])
		frame := Frame{Coeffs: coeffs, Magnitude: magnitude, SampleIndex: f.samplesSeen}
		out = append(out, frame)
		f.pushRing(frame)

		f.buf = f.buf[f.hopSamples:]
		f.samplesSeen += int64(f.hopSamples)
	}

	if cap(f.buf) > 8*f.windowSamples {
		compacted := make([]float32, len(f.buf))
		copy(compacted, f.buf)
		f.buf = compacted
	}
	return out
}

func (f *FrontEnd) pushRing(fr Frame) {
	f.ring = append(f.ring, fr)
	if len(f.ring) > f.ringCap {
		f.ring = f.ring[len(f.ring)-f.ringCap:]
	}
}

// Window returns the last n frames in the ring buffer (or fewer if not yet
// available), oldest first. DTWComparator's realtime rolling window reads
// from this.
func (f *FrontEnd) Window(n int) []Frame {
	if n <= 0 || n > len(f.ring) {
		n = len(f.ring)
	}
	return f.ring[len(f.ring)-n:]
}

// Frames returns every frame currently held in the ring buffer.
func (f *FrontEnd) Frames() []Frame {
	return f.ring
}

// Reset clears all buffered samples, ring frames, and the pre-emphasis
// filter's carry sample, returning the FrontEnd to its just-constructed
// state.
func (f *FrontEnd) Reset() {
	f.buf = nil
	f.ring = nil
	f.prevRaw = 0
	f.samplesSeen = 0
}

// WindowSamples reports the configured frame length in samples.
func (f *FrontEnd) WindowSamples() int { return f.windowSamples }

// HopSamples reports the configured hop length in samples.
func (f *FrontEnd) HopSamples() int { return f.hopSamples }

// FFTSize reports the FFT length used for the magnitude spectrum backing
// each frame, so collaborators like HarmonicAnalyzer can be configured
// consistently.
func (f *FrontEnd) FFTSize() int { return f.fftSize }

func (f *FrontEnd) extract(window []float32) (coeffs []float32, magnitude []float64) {
	padded := make([]float64, f.fftSize)
	for i, x := range window {
		padded[i] = float64(x) * f.hamming[i]
	}

	spectrum := f.fft.Coefficients(nil, padded)

	numBins := f.fftSize/2 + 1
	magnitude = make([]float64, numBins)
	power := make([]float64, numBins)
	for i := 0; i < numBins && i < len(spectrum); i++ {
		mag := cmplx.Abs(spectrum[i])
		magnitude[i] = mag
		power[i] = mag * mag
	}

	logMel := make([]float64, f.cfg.MelBands)
	for b, filter := range f.filterbank {
		var energy float64
		for i, w := range filter {
			energy += w * power[i]
		}
		if energy < logFloor {
			energy = logFloor
		}
		logMel[b] = math.Log(energy)
	}

	return dctII(logMel, f.cfg.CepstralCoefs), magnitude
}
