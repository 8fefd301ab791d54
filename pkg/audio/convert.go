package audio

// MixStereoToMono averages interleaved left/right float32 samples into mono.
// Used when decoding a master WAV file that was recorded in stereo; per the
// engine's external interface contract, stereo references are always mixed
// down before MFCC extraction.
func MixStereoToMono(interleaved []float32) []float32 {
	frames := len(interleaved) / 2
	out := make([]float32, frames)
	for i := range frames {
		out[i] = (interleaved[2*i] + interleaved[2*i+1]) / 2
	}
	return out
}

// Resample converts mono float32 PCM from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate the input is returned unchanged
// (zero allocation). This is the only resampling the engine performs, and
// it is used exclusively by the master-call decode path: session audio is
// always processed at the session's fixed sample rate, never resampled.
func Resample(pcm []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) == 0 {
		return pcm
	}

	dstLen := int(int64(len(pcm)) * int64(dstRate) / int64(srcRate))
	if dstLen <= 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range out {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)

		s0 := pcm[idx]
		var s1 float32
		if idx+1 < len(pcm) {
			s1 = pcm[idx+1]
		} else {
			s1 = s0
		}

		out[i] = float32(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}
