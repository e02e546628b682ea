package audio

import (
	"fmt"
	"log/slog"
	"math"
)

// MinRecommendedRateHz is the sample rate below which speech quality
// degrades noticeably. Lower rates are accepted but logged.
const MinRecommendedRateHz = 8000

// Resampler converts raw PCM between sample rates and bit depths using
// linear interpolation. Conversion is purely sequential arithmetic, so the
// same input always produces the same output.
type Resampler struct {
	logger *slog.Logger
}

// NewResampler creates a resampler. A nil logger falls back to the default.
func NewResampler(logger *slog.Logger) *Resampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resampler{logger: logger}
}

// Resample converts pcm from its source format to the target rate and depth.
// The output holds round(inputSamples * toRate / fromRate) samples. The
// returned slice never aliases pcm.
func (r *Resampler) Resample(pcm []byte, from Config, toRateHz uint32, toDepth BitDepth) ([]byte, error) {
	if err := from.Validate(); err != nil {
		return nil, err
	}

	if toRateHz == 0 {
		return nil, fmt.Errorf("%w: target sample rate must be positive, got %d", ErrInvalidConfig, toRateHz)
	}

	if !toDepth.Valid() {
		return nil, fmt.Errorf("%w: target bit depth must be 8 or 16, got %d", ErrInvalidConfig, int(toDepth))
	}

	if from.SampleRateHz < MinRecommendedRateHz || toRateHz < MinRecommendedRateHz {
		r.logger.Warn("Resampling below recommended minimum rate, quality will degrade",
			slog.Uint64("from_rate", uint64(from.SampleRateHz)),
			slog.Uint64("to_rate", uint64(toRateHz)),
			slog.Int("min_recommended", MinRecommendedRateHz),
		)
	}

	pcm = TrimPartialSample(pcm, from.BitDepth)
	if len(pcm) == 0 {
		return nil, nil
	}

	if from.SampleRateHz == toRateHz && from.BitDepth == toDepth {
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out, nil
	}

	src, err := DecodeSamples(pcm, from.BitDepth)
	if err != nil {
		return nil, err
	}

	resampled := resampleLinear(src, from.SampleRateHz, toRateHz)
	return EncodeSamples(resampled, toDepth)
}

// resampleLinear interpolates src from one rate to another. Positions that
// fall between two source samples blend them proportionally; positions past
// the final sample repeat it.
func resampleLinear(src []int16, fromRate, toRate uint32) []int16 {
	if fromRate == toRate {
		out := make([]int16, len(src))
		copy(out, src)
		return out
	}

	outLen := int(math.Round(float64(len(src)) * float64(toRate) / float64(fromRate)))
	if outLen <= 0 {
		return nil
	}

	out := make([]int16, outLen)
	ratio := float64(fromRate) / float64(toRate)

	for i := range out {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)

		if idx+1 < len(src) {
			out[i] = int16Lerp(src[idx], src[idx+1], frac)
		} else {
			out[i] = src[len(src)-1]
		}
	}

	return out
}

func int16Lerp(a, b int16, frac float64) int16 {
	return int16(float64(a)*(1-frac) + float64(b)*frac)
}
