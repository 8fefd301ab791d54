// Package wavdecode is the engine's concrete WAV-decode collaborator: it
// reads mono or stereo WAV at any common sample rate, mixes stereo to mono,
// and resamples to the engine's canonical working rate. The core itself
// never touches a file; this package is the thing load_master_call hands
// the resolved identifier to.
package wavdecode

import (
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	pcm "github.com/MrWong99/callecho/pkg/audio"
)

// Decoded is the result of decoding and conforming one reference WAV to a
// working sample rate.
type Decoded struct {
	Samples    []float32
	SampleRate int
}

// Decode reads a WAV stream from r, mixes stereo to mono by averaging, and
// resamples to workingRate. Returns an error wrapping the underlying decode
// failure on malformed input.
func Decode(r io.Reader, workingRate int) (Decoded, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Decoded{}, fmt.Errorf("wavdecode: not a valid WAV stream")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Decoded{}, fmt.Errorf("wavdecode: read PCM buffer: %w", err)
	}

	mono := toMono(buf)
	resampled := pcm.Resample(mono, int(dec.SampleRate), workingRate)

	return Decoded{Samples: resampled, SampleRate: workingRate}, nil
}

// toMono converts a go-audio PCM buffer (any bit depth, interleaved if
// stereo) into normalized mono float32 samples in [-1.0, 1.0].
func toMono(buf *audio.IntBuffer) []float32 {
	format := buf.Format
	channels := 1
	if format != nil && format.NumChannels > 0 {
		channels = format.NumChannels
	}

	scale := float32(1 << uint(buf.SourceBitDepth-1))
	if scale <= 0 {
		scale = float32(1 << 15)
	}

	floats := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		floats[i] = float32(v) / scale
	}

	if channels <= 1 {
		return floats
	}
	return pcm.MixStereoToMono(floats)
}
