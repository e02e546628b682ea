package audio

import (
	"encoding/binary"
	"fmt"
)

// SampleCount returns the number of whole samples in pcm at the given depth.
func SampleCount(pcm []byte, depth BitDepth) int {
	bps := depth.BytesPerSample()
	if bps <= 0 {
		return 0
	}
	return len(pcm) / bps
}

// TrimPartialSample returns pcm shortened to a whole number of samples,
// dropping a trailing byte that cannot form a complete sample. The result
// aliases pcm; no copy is made.
func TrimPartialSample(pcm []byte, depth BitDepth) []byte {
	bps := depth.BytesPerSample()
	if bps <= 1 {
		return pcm
	}
	return pcm[:len(pcm)-len(pcm)%bps]
}

// DecodeSamples converts raw PCM bytes into signed 16-bit samples. 8-bit
// unsigned input is centered and rescaled linearly.
func DecodeSamples(pcm []byte, depth BitDepth) ([]int16, error) {
	switch depth {
	case PCM8:
		samples := make([]int16, len(pcm))
		for i, b := range pcm {
			samples[i] = (int16(b) - 128) << 8
		}
		return samples, nil

	case PCM16:
		if len(pcm)%2 != 0 {
			return nil, fmt.Errorf("pcm length must be even for 16-bit audio, got %d bytes", len(pcm))
		}
		samples := make([]int16, len(pcm)/2)
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		}
		return samples, nil

	default:
		return nil, fmt.Errorf("%w: bit depth must be 8 or 16, got %d", ErrInvalidConfig, int(depth))
	}
}

// EncodeSamples converts signed 16-bit samples into raw PCM bytes at the
// given depth. Conversion to 8-bit keeps the top byte and recenters to the
// unsigned range.
func EncodeSamples(samples []int16, depth BitDepth) ([]byte, error) {
	switch depth {
	case PCM8:
		pcm := make([]byte, len(samples))
		for i, s := range samples {
			pcm[i] = byte((s >> 8) + 128)
		}
		return pcm, nil

	case PCM16:
		pcm := make([]byte, len(samples)*2)
		for i, s := range samples {
			binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
		}
		return pcm, nil

	default:
		return nil, fmt.Errorf("%w: bit depth must be 8 or 16, got %d", ErrInvalidConfig, int(depth))
	}
}

// Float32Samples converts raw PCM bytes into float32 samples normalized to
// [-1, 1), the representation speech classifiers consume.
func Float32Samples(pcm []byte, depth BitDepth) ([]float32, error) {
	samples, err := DecodeSamples(pcm, depth)
	if err != nil {
		return nil, err
	}

	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out, nil
}
