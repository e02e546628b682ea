package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidConfig indicates an audio configuration that cannot describe
// real PCM data (zero sample rate, unknown bit depth, zero buffer length).
var ErrInvalidConfig = errors.New("invalid audio config")

// BitDepth identifies the PCM sample encoding of raw audio bytes.
type BitDepth int

const (
	// PCM8 is 8-bit unsigned PCM, one byte per sample.
	PCM8 BitDepth = 8
	// PCM16 is 16-bit signed little-endian PCM, two bytes per sample.
	PCM16 BitDepth = 16
)

// Valid reports whether the bit depth is one of the supported encodings.
func (d BitDepth) Valid() bool {
	return d == PCM8 || d == PCM16
}

// Bits returns the number of bits per sample.
func (d BitDepth) Bits() int {
	return int(d)
}

// BytesPerSample returns the number of bytes one sample occupies.
func (d BitDepth) BytesPerSample() int {
	return int(d) / 8
}

func (d BitDepth) String() string {
	switch d {
	case PCM8:
		return "pcm8"
	case PCM16:
		return "pcm16"
	default:
		return fmt.Sprintf("bitdepth(%d)", int(d))
	}
}

// Config describes the raw PCM format of captured audio and how much
// history the ring buffer keeps.
type Config struct {
	SampleRateHz  uint32   `json:"sample_rate"`
	BitDepth      BitDepth `json:"bit_depth"`
	BufferSeconds uint32   `json:"buffer_seconds"`
}

// Validate checks that the configuration describes a usable PCM format.
func (c Config) Validate() error {
	if c.SampleRateHz == 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidConfig, c.SampleRateHz)
	}

	if !c.BitDepth.Valid() {
		return fmt.Errorf("%w: bit depth must be 8 or 16, got %d", ErrInvalidConfig, int(c.BitDepth))
	}

	if c.BufferSeconds == 0 {
		return fmt.Errorf("%w: buffer length must be at least 1 second, got %d", ErrInvalidConfig, c.BufferSeconds)
	}

	if _, err := c.BufferCapacityBytes(); err != nil {
		return err
	}

	return nil
}

// BytesPerSecond returns the raw byte rate of this format.
func (c Config) BytesPerSecond() int {
	return int(c.SampleRateHz) * c.BitDepth.BytesPerSample()
}

// BufferCapacityBytes returns the ring buffer capacity this configuration
// implies: sample rate times bytes per sample times buffer seconds.
func (c Config) BufferCapacityBytes() (int, error) {
	perSecond := uint64(c.SampleRateHz) * uint64(c.BitDepth.BytesPerSample())
	if perSecond == 0 || c.BufferSeconds == 0 {
		return 0, fmt.Errorf("%w: buffer capacity is zero", ErrInvalidConfig)
	}
	if perSecond > uint64(math.MaxInt)/uint64(c.BufferSeconds) {
		return 0, fmt.Errorf("%w: buffer of %ds at %d Hz does not fit in memory",
			ErrInvalidConfig, c.BufferSeconds, c.SampleRateHz)
	}
	return int(perSecond * uint64(c.BufferSeconds)), nil
}

// BytesToDuration converts a byte count in this format to audio duration.
func (c Config) BytesToDuration(n int) time.Duration {
	bps := c.BytesPerSecond()
	if bps <= 0 || n <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(bps) * float64(time.Second))
}

// DurationToBytes converts an audio duration to a sample-aligned byte count
// in this format.
func (c Config) DurationToBytes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	samples := int64(d) * int64(c.SampleRateHz) / int64(time.Second)
	return int(samples) * c.BitDepth.BytesPerSample()
}
