package vad

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/mortenfc/rewind/internal/audio"
)

// DefaultSpeechThreshold is the probability at or above which a window
// counts as speech.
const DefaultSpeechThreshold = 0.5

// ErrNegativePadding is returned when a caller asks for negative segment
// padding.
var ErrNegativePadding = errors.New("padding must be non-negative")

// Windowing describes how classifier windows map onto the raw capture
// buffer the classified audio was resampled from.
type Windowing struct {
	WindowSamples int            // native samples per window
	NativeRateHz  uint32         // rate the classifier scored at
	RawRateHz     uint32         // rate of the raw buffer
	RawBitDepth   audio.BitDepth // sample format of the raw buffer
	RawLenBytes   int            // raw buffer length in bytes, sample-aligned
}

// Validate checks that the geometry is usable for index arithmetic.
func (w Windowing) Validate() error {
	if w.WindowSamples <= 0 {
		return fmt.Errorf("window samples must be positive, got %d", w.WindowSamples)
	}

	if w.NativeRateHz == 0 {
		return fmt.Errorf("native sample rate must be positive")
	}

	if w.RawRateHz == 0 {
		return fmt.Errorf("raw sample rate must be positive")
	}

	if !w.RawBitDepth.Valid() {
		return fmt.Errorf("bit depth must be 8 or 16, got %d", int(w.RawBitDepth))
	}

	if w.RawLenBytes < 0 {
		return fmt.Errorf("raw length must not be negative, got %d", w.RawLenBytes)
	}

	return nil
}

// RawByteOffset maps the start of a window index onto a byte offset in the
// raw buffer, aligned to whole samples and clamped to the buffer length.
func (w Windowing) RawByteOffset(windowIndex int) int {
	bps := int64(w.RawBitDepth.BytesPerSample())

	nativeSamples := int64(windowIndex) * int64(w.WindowSamples)
	if nativeSamples > math.MaxInt64/int64(w.RawRateHz) {
		return w.RawLenBytes
	}

	rawSample := nativeSamples * int64(w.RawRateHz) / int64(w.NativeRateHz)
	if rawSample > math.MaxInt64/bps {
		return w.RawLenBytes
	}

	off := rawSample * bps
	if off > int64(w.RawLenBytes) {
		return w.RawLenBytes
	}

	return int(off)
}

// Segment is a half-open byte range [StartByte, EndByte) of the raw capture
// buffer judged to contain speech.
type Segment struct {
	StartByte int `json:"start_byte"`
	EndByte   int `json:"end_byte"`
}

// Bytes returns the segment length in bytes.
func (s Segment) Bytes() int {
	return s.EndByte - s.StartByte
}

// Merger turns window probabilities into padded byte segments of the raw
// capture buffer, folding together segments that padding made overlap.
type Merger struct {
	threshold float32
	logger    *slog.Logger
}

// NewMerger creates a segment merger using the given speech threshold.
func NewMerger(threshold float32, logger *slog.Logger) (*Merger, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Merger{threshold: threshold, logger: logger}, nil
}

// Merge thresholds probabilities into maximal runs of speech windows, pads
// each run by paddingMs on both sides, and merges runs that then overlap or
// touch, in one left-to-right pass. Returned segments are chronological,
// non-overlapping, and never extend outside the raw buffer no matter how
// large paddingMs is.
func (m *Merger) Merge(probs []float32, win Windowing, paddingMs int) ([]Segment, error) {
	if paddingMs < 0 {
		return nil, fmt.Errorf("%w: got %d ms", ErrNegativePadding, paddingMs)
	}

	if err := win.Validate(); err != nil {
		return nil, err
	}

	pad := paddingBytes(paddingMs, win)

	var segments []Segment
	for i := 0; i < len(probs); {
		if probs[i] < m.threshold {
			i++
			continue
		}

		// Maximal run of consecutive speech windows.
		j := i + 1
		for j < len(probs) && probs[j] >= m.threshold {
			j++
		}

		start := win.RawByteOffset(i)
		if pad > start {
			start = 0
		} else {
			start -= pad
		}

		end := win.RawByteOffset(j)
		if pad > win.RawLenBytes-end {
			end = win.RawLenBytes
		} else {
			end += pad
		}

		if n := len(segments); n > 0 && start <= segments[n-1].EndByte {
			if end > segments[n-1].EndByte {
				segments[n-1].EndByte = end
			}
		} else if end > start {
			segments = append(segments, Segment{StartByte: start, EndByte: end})
		}

		i = j
	}

	m.logger.Debug("Segments merged",
		slog.Int("windows", len(probs)),
		slog.Int("segments", len(segments)),
		slog.Int("speech_bytes", TotalBytes(segments)),
		slog.Int("padding_ms", paddingMs))

	return segments, nil
}

// paddingBytes converts paddingMs into a sample-aligned byte count,
// saturating at the raw buffer length since padding is clamped to the
// buffer anyway.
func paddingBytes(paddingMs int, win Windowing) int {
	if paddingMs == 0 {
		return 0
	}

	bps := win.RawBitDepth.BytesPerSample()
	maxPad := win.RawLenBytes

	ms := int64(paddingMs)
	rate := int64(win.RawRateHz)
	if ms > math.MaxInt64/rate {
		return maxPad
	}

	samples := ms * rate / 1000
	if samples > int64(maxPad/bps) {
		return maxPad
	}

	return int(samples) * bps
}

// ExtractSegments concatenates the raw bytes of each segment in order. The
// segments must lie inside raw and must not overlap; Merge output satisfies
// both.
func ExtractSegments(raw []byte, segments []Segment) ([]byte, error) {
	total := 0
	prevEnd := 0
	for i, s := range segments {
		if s.StartByte < 0 || s.EndByte < s.StartByte || s.EndByte > len(raw) {
			return nil, fmt.Errorf("segment %d [%d, %d) is outside buffer of %d bytes",
				i, s.StartByte, s.EndByte, len(raw))
		}
		if s.StartByte < prevEnd {
			return nil, fmt.Errorf("segment %d [%d, %d) overlaps the previous segment",
				i, s.StartByte, s.EndByte)
		}
		prevEnd = s.EndByte
		total += s.Bytes()
	}

	out := make([]byte, 0, total)
	for _, s := range segments {
		out = append(out, raw[s.StartByte:s.EndByte]...)
	}

	return out, nil
}

// TotalBytes returns the combined length of all segments.
func TotalBytes(segments []Segment) int {
	total := 0
	for _, s := range segments {
		total += s.Bytes()
	}
	return total
}
