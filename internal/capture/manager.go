package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/ringbuffer"

	"github.com/mortenfc/rewind/internal/audio"
	"github.com/mortenfc/rewind/internal/metrics"
)

const (
	// DefaultChunkMs is the assumed duration of one device chunk when the
	// configuration leaves it zero. It sizes transfer queue slots only;
	// the device keeps its own period.
	DefaultChunkMs = 100

	// DefaultQueueChunks is the transfer queue depth in chunks.
	DefaultQueueChunks = 32
)

// Config contains capture manager configuration.
type Config struct {
	// Audio is the capture format. It also sizes the ring buffer, which
	// holds the most recent Audio.BufferSeconds of audio.
	Audio audio.Config

	// ChunkMs is the expected duration of one device chunk and sizes the
	// transfer queue slots. Zero selects DefaultChunkMs.
	ChunkMs int

	// QueueChunks is the transfer queue depth in chunks. A queue smaller
	// than the device's real chunk size drops everything, so keep it at
	// several chunks. Zero selects DefaultQueueChunks.
	QueueChunks int
}

// Stats represents capture session statistics.
type Stats struct {
	SessionID      string            `json:"session_id,omitempty"`
	Active         bool              `json:"active"`
	StartedAt      time.Time         `json:"started_at"`
	ReceivedChunks uint64            `json:"received_chunks"`
	ReceivedBytes  uint64            `json:"received_bytes"`
	DroppedChunks  uint64            `json:"dropped_chunks"`
	Buffer         audio.BufferStats `json:"buffer"`
}

// Manager owns the ring buffer and moves audio into it from a capture
// device. The device callback writes chunks to a transfer queue; a drain
// goroutine moves queued audio into the ring buffer so the realtime
// callback never touches the buffer mutex. When the queue is full the
// incoming chunk is dropped and counted.
type Manager struct {
	cfg     Config
	backend Backend
	buffer  *audio.RingBuffer
	queue   *ringbuffer.RingBuffer
	notify  chan struct{}
	metrics *metrics.Metrics
	logger  *slog.Logger

	capturing atomic.Bool

	receivedChunks atomic.Uint64
	receivedBytes  atomic.Uint64
	droppedChunks  atomic.Uint64

	mu        sync.Mutex
	device    Device
	cancel    context.CancelFunc
	drained   chan struct{}
	sessionID string
	startedAt time.Time
}

// NewManager creates a capture manager on the given backend. m may be nil;
// a nil logger selects slog.Default.
func NewManager(backend Backend, cfg Config, m *metrics.Metrics, logger *slog.Logger) (*Manager, error) {
	if backend == nil {
		return nil, errors.New("backend must not be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := cfg.Audio.Validate(); err != nil {
		return nil, err
	}

	chunkMs := cfg.ChunkMs
	if chunkMs == 0 {
		chunkMs = DefaultChunkMs
	}
	if chunkMs < 0 || chunkMs > 10000 {
		return nil, fmt.Errorf("chunk duration must be 1..10000 ms, got %d", cfg.ChunkMs)
	}

	queueChunks := cfg.QueueChunks
	if queueChunks == 0 {
		queueChunks = DefaultQueueChunks
	}
	if queueChunks < 0 || queueChunks > 65536 {
		return nil, fmt.Errorf("queue depth must be 1..65536 chunks, got %d", cfg.QueueChunks)
	}

	buffer, err := audio.NewRingBufferFor(cfg.Audio)
	if err != nil {
		return nil, err
	}

	chunkBytes := cfg.Audio.BytesPerSecond() * chunkMs / 1000
	if chunkBytes < 1 {
		chunkBytes = cfg.Audio.BitDepth.BytesPerSample()
	}

	return &Manager{
		cfg:     cfg,
		backend: backend,
		buffer:  buffer,
		queue:   ringbuffer.New(chunkBytes * queueChunks),
		notify:  make(chan struct{}, 1),
		metrics: m,
		logger:  logger,
	}, nil
}

// Start initializes the capture device and begins filling the ring buffer.
// The drain goroutine stops when ctx is cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.capturing.Load() {
		return errors.New("capture already active")
	}

	device, err := m.backend.InitDevice(m.cfg.Audio, m.onRecv)
	if err != nil {
		return fmt.Errorf("preparing capture device: %w", err)
	}

	m.capturing.Store(true)
	if err := device.Start(); err != nil {
		m.capturing.Store(false)
		device.Uninit()
		return fmt.Errorf("starting capture device: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.device = device
	m.cancel = cancel
	m.drained = make(chan struct{})
	m.sessionID = uuid.NewString()
	m.startedAt = time.Now()

	go m.drain(runCtx, m.drained)

	m.logger.Info("Capture started",
		slog.String("session_id", m.sessionID),
		slog.Int("sample_rate_hz", int(m.cfg.Audio.SampleRateHz)),
		slog.String("bit_depth", m.cfg.Audio.BitDepth.String()),
		slog.Int("buffer_capacity_bytes", m.buffer.Capacity()))

	return nil
}

// Stop halts the device and waits for the drain goroutine to move the
// remaining queued audio into the ring buffer. Stopping an inactive
// manager is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.capturing.Load() {
		m.mu.Unlock()
		return
	}
	m.capturing.Store(false)

	device := m.device
	cancel := m.cancel
	drained := m.drained
	m.device = nil
	m.cancel = nil
	m.mu.Unlock()

	if err := device.Stop(); err != nil {
		m.logger.Warn("Error stopping capture device", slog.String("error", err.Error()))
	}
	device.Uninit()

	// The drain goroutine flushes the queue once more on cancellation, so
	// audio already queued still reaches the ring buffer.
	cancel()
	<-drained

	stats := m.GetStats()
	m.logger.Info("Capture stopped",
		slog.String("session_id", stats.SessionID),
		slog.Uint64("received_chunks", stats.ReceivedChunks),
		slog.Uint64("received_bytes", stats.ReceivedBytes),
		slog.Uint64("dropped_chunks", stats.DroppedChunks),
		slog.Int("buffer_fill_bytes", stats.Buffer.SizeBytes))
}

// Active reports whether a capture session is running.
func (m *Manager) Active() bool {
	return m.capturing.Load()
}

// AudioConfig returns the capture format.
func (m *Manager) AudioConfig() audio.Config {
	return m.cfg.Audio
}

// Snapshot returns a chronological copy of the buffered audio.
func (m *Manager) Snapshot() []byte {
	return m.buffer.Snapshot()
}

// ResetBuffer discards the buffered history. Capture continues; audio
// still in flight lands in the emptied buffer.
func (m *Manager) ResetBuffer() {
	m.buffer.Reset()
	m.metrics.SetBufferState(m.buffer.Len(), m.buffer.HasOverflowed())
	m.logger.Info("Ring buffer reset")
}

// GetStats returns current capture statistics.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	sessionID := m.sessionID
	startedAt := m.startedAt
	m.mu.Unlock()

	return Stats{
		SessionID:      sessionID,
		Active:         m.capturing.Load(),
		StartedAt:      startedAt,
		ReceivedChunks: m.receivedChunks.Load(),
		ReceivedBytes:  m.receivedBytes.Load(),
		DroppedChunks:  m.droppedChunks.Load(),
		Buffer:         m.buffer.Stats(),
	}
}

// onRecv runs on the device's realtime thread. It must stay cheap and
// must never block, so a full queue drops the chunk instead of waiting.
func (m *Manager) onRecv(pcm []byte) {
	if !m.capturing.Load() || len(pcm) == 0 {
		return
	}

	// The callback is the queue's only writer, so free space can only
	// grow between this check and the write.
	if m.queue.Free() < len(pcm) {
		drops := m.droppedChunks.Add(1)
		m.metrics.RecordCaptureDrop()
		if drops%32 == 1 {
			m.logger.Warn("Transfer queue full, dropping chunk",
				slog.Int("chunk_bytes", len(pcm)),
				slog.Uint64("dropped_total", drops))
		}
		return
	}

	n, err := m.queue.Write(pcm)
	if err != nil || n < len(pcm) {
		m.droppedChunks.Add(1)
		m.metrics.RecordCaptureDrop()
		return
	}

	m.receivedChunks.Add(1)
	m.receivedBytes.Add(uint64(n))
	m.metrics.RecordCaptureChunk(n)

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// drain moves queued audio into the ring buffer until ctx is cancelled,
// with a final flush so Stop never leaves audio behind.
func (m *Manager) drain(ctx context.Context, done chan struct{}) {
	defer close(done)

	scratch := make([]byte, min(m.queue.Capacity(), m.buffer.Capacity()))
	for {
		select {
		case <-ctx.Done():
			m.flushQueue(scratch)
			return
		case <-m.notify:
			m.flushQueue(scratch)
		}
	}
}

func (m *Manager) flushQueue(scratch []byte) {
	for {
		n, _ := m.queue.Read(scratch)
		if n == 0 {
			return
		}

		if _, err := m.buffer.Write(scratch[:n]); err != nil {
			m.logger.Error("Failed to buffer captured audio", slog.String("error", err.Error()))
			return
		}

		m.metrics.SetBufferState(m.buffer.Len(), m.buffer.HasOverflowed())
	}
}
