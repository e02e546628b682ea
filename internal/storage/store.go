package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/wav"

	"github.com/mortenfc/rewind/internal/audio"
	"github.com/mortenfc/rewind/internal/metrics"
)

// DefaultPrefix names saved moments when the configuration leaves the
// prefix empty.
const DefaultPrefix = "moment"

// ErrNoAudio is returned when a save is requested for an empty extraction.
var ErrNoAudio = errors.New("no audio to save")

// Config contains file store configuration.
type Config struct {
	// Dir receives saved moments.
	Dir string

	// DebugDir receives debug dumps. Empty selects Dir/debug.
	DebugDir string

	// Prefix is the filename prefix for saved moments. Empty selects
	// DefaultPrefix.
	Prefix string
}

// Stats represents file store statistics.
type Stats struct {
	SavedMoments uint64    `json:"saved_moments"`
	SavedBytes   uint64    `json:"saved_bytes"`
	DebugDumps   uint64    `json:"debug_dumps"`
	LastSavePath string    `json:"last_save_path,omitempty"`
	LastSaveTime time.Time `json:"last_save_time,omitempty"`
}

// FileStore writes WAV files into a moments directory and a debug
// directory. Directories are created on first use.
type FileStore struct {
	dir      string
	debugDir string
	prefix   string
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu    sync.RWMutex
	stats Stats
}

// New creates a FileStore rooted at cfg.Dir. m may be nil; a nil logger
// selects slog.Default.
func New(cfg Config, m *metrics.Metrics, logger *slog.Logger) (*FileStore, error) {
	if cfg.Dir == "" {
		return nil, errors.New("output directory must not be empty")
	}

	if logger == nil {
		logger = slog.Default()
	}

	debugDir := cfg.DebugDir
	if debugDir == "" {
		debugDir = filepath.Join(cfg.Dir, "debug")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &FileStore{
		dir:      cfg.Dir,
		debugDir: debugDir,
		prefix:   prefix,
		metrics:  m,
		logger:   logger,
	}, nil
}

// SaveMoment writes pcm as <prefix>_<timestamp>.wav under the moments
// directory and returns the full path. Empty extractions are rejected.
func (s *FileStore) SaveMoment(pcm []byte, cfg audio.Config) (string, error) {
	if len(pcm) == 0 {
		return "", ErrNoAudio
	}

	now := time.Now()
	base := fmt.Sprintf("%s_%s", s.prefix, stamp(now))

	path, err := s.writeWAV(s.dir, base, pcm, cfg)
	if err != nil {
		s.metrics.RecordSaveError()
		return "", err
	}

	duration := cfg.BytesToDuration(len(pcm))

	s.mu.Lock()
	s.stats.SavedMoments++
	s.stats.SavedBytes += uint64(len(pcm))
	s.stats.LastSavePath = path
	s.stats.LastSaveTime = now
	s.mu.Unlock()

	s.metrics.RecordMomentSaved(duration.Seconds())

	s.logger.Info("Moment saved",
		slog.String("path", path),
		slog.Int("bytes", len(pcm)),
		slog.Duration("audio", duration))

	return path, nil
}

// SaveDebug writes pcm as <baseName>_<timestamp>.wav under the debug
// directory. It satisfies the pipeline's debug sink interface.
func (s *FileStore) SaveDebug(baseName string, pcm []byte, cfg audio.Config) (string, error) {
	if len(pcm) == 0 {
		return "", ErrNoAudio
	}

	if baseName == "" {
		return "", errors.New("debug base name must not be empty")
	}

	// Strip any directory components a caller may have smuggled in.
	base := fmt.Sprintf("%s_%s", filepath.Base(baseName), stamp(time.Now()))

	path, err := s.writeWAV(s.debugDir, base, pcm, cfg)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.stats.DebugDumps++
	s.mu.Unlock()

	s.logger.Debug("Debug dump saved",
		slog.String("path", path),
		slog.Int("bytes", len(pcm)))

	return path, nil
}

// GetStats returns current file store statistics.
func (s *FileStore) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// writeWAV encodes pcm and writes it to dir/base.wav, appending a numeric
// suffix instead of clobbering an existing file.
func (s *FileStore) writeWAV(dir, base string, pcm []byte, cfg audio.Config) (string, error) {
	blob, err := audio.EncodeWAV(pcm, cfg)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}

	path := filepath.Join(dir, base+".wav")
	for attempt := 1; ; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) && attempt < 100 {
			path = filepath.Join(dir, fmt.Sprintf("%s_%d.wav", base, attempt))
			continue
		}
		if err != nil {
			return "", fmt.Errorf("creating %s: %w", path, err)
		}

		if _, err := f.Write(blob); err != nil {
			f.Close()
			return "", fmt.Errorf("writing %s: %w", path, err)
		}

		if err := f.Close(); err != nil {
			return "", fmt.Errorf("closing %s: %w", path, err)
		}

		return path, nil
	}
}

// stamp renders a wall-clock instant as YYYYMMDD_HHMMSS_mmm for filenames.
func stamp(t time.Time) string {
	return fmt.Sprintf("%s_%03d", t.Format("20060102_150405"), t.Nanosecond()/int(time.Millisecond))
}

// ReadWAV loads a mono WAV file and returns its raw PCM payload together
// with the matching audio configuration. Only 8 and 16-bit PCM files are
// accepted.
func ReadWAV(path string) ([]byte, audio.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, audio.Config{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()

	if !dec.IsValidFile() {
		return nil, audio.Config{}, fmt.Errorf("%s is not a valid WAV file", path)
	}

	if dec.NumChans != 1 {
		return nil, audio.Config{}, fmt.Errorf("expected mono audio, got %d channels", dec.NumChans)
	}

	var depth audio.BitDepth
	switch dec.BitDepth {
	case 8:
		depth = audio.PCM8
	case 16:
		depth = audio.PCM16
	default:
		return nil, audio.Config{}, fmt.Errorf("unsupported bit depth %d, want 8 or 16", dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, audio.Config{}, fmt.Errorf("reading samples from %s: %w", path, err)
	}

	pcm := make([]byte, 0, len(buf.Data)*depth.BytesPerSample())
	switch depth {
	case audio.PCM8:
		for _, v := range buf.Data {
			pcm = append(pcm, byte(v))
		}
	case audio.PCM16:
		for _, v := range buf.Data {
			u := uint16(int16(v))
			pcm = append(pcm, byte(u), byte(u>>8))
		}
	}

	rate := dec.SampleRate
	seconds := uint32(1)
	if rate > 0 {
		if s := (uint32(len(buf.Data)) + rate - 1) / rate; s > 0 {
			seconds = s
		}
	}

	cfg := audio.Config{SampleRateHz: rate, BitDepth: depth, BufferSeconds: seconds}
	if err := cfg.Validate(); err != nil {
		return nil, audio.Config{}, err
	}

	return pcm, cfg, nil
}
