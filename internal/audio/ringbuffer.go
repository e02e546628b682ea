package audio

import (
	"fmt"
	"sync"
)

// RingBuffer is a fixed-capacity byte store that keeps the most recent
// capacity bytes written to it. A single producer appends with Write while
// readers take chronological copies with Snapshot. Once the write position
// wraps past the end of the storage the buffer is marked as overflowed and
// snapshots return the full capacity, oldest byte first.
type RingBuffer struct {
	data       []byte
	writeIndex int
	overflowed bool

	totalWritten uint64

	mu sync.Mutex
}

// BufferStats describes the current state of a ring buffer for monitoring.
type BufferStats struct {
	CapacityBytes int    `json:"capacity_bytes"`
	SizeBytes     int    `json:"size_bytes"`
	Overflowed    bool   `json:"overflowed"`
	TotalWritten  uint64 `json:"total_written_bytes"`
}

// NewRingBuffer creates a ring buffer holding at most capacity bytes.
func NewRingBuffer(capacity int) (*RingBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ring buffer capacity must be positive, got %d", capacity)
	}

	return &RingBuffer{
		data: make([]byte, capacity),
	}, nil
}

// NewRingBufferFor creates a ring buffer sized for the given audio format,
// holding cfg.BufferSeconds of history.
func NewRingBufferFor(cfg Config) (*RingBuffer, error) {
	capacity, err := cfg.BufferCapacityBytes()
	if err != nil {
		return nil, err
	}
	return NewRingBuffer(capacity)
}

// Write appends p at the current write position, wrapping to the start of
// the storage when the end is reached. A write that reaches or passes the
// end marks the buffer as overflowed. Writes never fail; when p is larger
// than the capacity only its final capacity bytes are kept. Implements
// io.Writer.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(p) == 0 {
		return 0, nil
	}

	rb.totalWritten += uint64(len(p))
	capacity := len(rb.data)

	if len(p) >= capacity {
		// Only the newest capacity bytes survive. The write index still
		// advances as if every byte had been stored, and the kept bytes are
		// placed so that a snapshot reads them in chronological order.
		rb.writeIndex = (rb.writeIndex + len(p)) % capacity
		tail := p[len(p)-capacity:]
		n := copy(rb.data[rb.writeIndex:], tail)
		copy(rb.data, tail[n:])
		rb.overflowed = true
		return len(p), nil
	}

	end := rb.writeIndex + len(p)
	if end < capacity {
		copy(rb.data[rb.writeIndex:], p)
		rb.writeIndex = end
		return len(p), nil
	}

	// The write reaches the end of the storage and wraps.
	first := capacity - rb.writeIndex
	copy(rb.data[rb.writeIndex:], p[:first])
	copy(rb.data, p[first:])
	rb.writeIndex = end % capacity
	rb.overflowed = true
	return len(p), nil
}

// Snapshot returns a copy of the buffer's logical content in chronological
// order: before the first wrap, the bytes written so far; after it, the full
// capacity with the oldest byte first. The copy is taken under the buffer's
// lock but the caller processes it without holding the lock.
func (rb *RingBuffer) Snapshot() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if !rb.overflowed {
		out := make([]byte, rb.writeIndex)
		copy(out, rb.data[:rb.writeIndex])
		return out
	}

	out := make([]byte, len(rb.data))
	n := copy(out, rb.data[rb.writeIndex:])
	copy(out[n:], rb.data[:rb.writeIndex])
	return out
}

// Reset clears the write position and the overflow flag. The storage
// contents are left in place; they become unreachable through Snapshot.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.writeIndex = 0
	rb.overflowed = false
	rb.totalWritten = 0
}

// Capacity returns the fixed storage size in bytes.
func (rb *RingBuffer) Capacity() int {
	return len(rb.data)
}

// Len returns the number of bytes a snapshot would currently return.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.overflowed {
		return len(rb.data)
	}
	return rb.writeIndex
}

// HasOverflowed reports whether any write has wrapped past the end of the
// storage since construction or the last Reset.
func (rb *RingBuffer) HasOverflowed() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.overflowed
}

// Stats returns current buffer statistics.
func (rb *RingBuffer) Stats() BufferStats {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	size := rb.writeIndex
	if rb.overflowed {
		size = len(rb.data)
	}

	return BufferStats{
		CapacityBytes: len(rb.data),
		SizeBytes:     size,
		Overflowed:    rb.overflowed,
		TotalWritten:  rb.totalWritten,
	}
}
