package audio

import "math"

// DownmixLeft converts interleaved 16-bit stereo PCM to mono by keeping only
// the left sample of each pair. The capture subprocess mirrors system audio
// onto both channels, so averaging would only add clipping risk.
// Input must be little-endian int16 PCM; trailing bytes that do not form a
// complete stereo pair are ignored.
func DownmixLeft(pcm []byte) []byte {
	pairs := len(pcm) / 4
	out := make([]byte, pairs*2)
	for i := range pairs {
		out[i*2] = pcm[i*4]
		out[i*2+1] = pcm[i*4+1]
	}
	return out
}

// PCM16ToFloat32 converts little-endian int16 PCM to float32 samples in
// [-1, 1]. Negative samples are scaled by 1/32768 and non-negative samples by
// 1/32767 so that both extremes map exactly to ∓1.
func PCM16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		if s < 0 {
			out[i] = float32(s) / 32768
		} else {
			out[i] = float32(s) / 32767
		}
	}
	return out
}

// Float32ToPCM16 converts float32 samples back to little-endian int16 PCM,
// clamping to [-1, 1] first. Round-tripping through [PCM16ToFloat32] is exact
// except for at most 1 LSB at the extremes.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		var s int16
		if v < 0 {
			s = int16(math.Round(float64(v) * 32768))
		} else {
			s = int16(math.Round(float64(v) * 32767))
		}
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. The input must be little-endian int16 samples. If
// srcRate == dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}
