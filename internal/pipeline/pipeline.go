package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mortenfc/rewind/internal/audio"
	"github.com/mortenfc/rewind/internal/metrics"
	"github.com/mortenfc/rewind/internal/vad"
)

// DefaultPaddingMs is the segment padding the stock configuration applies
// around detected speech so onsets and offsets are not clipped.
const DefaultPaddingMs = 300

// Config carries pipeline defaults. Options can override the padding and
// execution mode per call.
type Config struct {
	// SpeechThreshold is the probability at or above which a window counts
	// as speech. Zero selects vad.DefaultSpeechThreshold.
	SpeechThreshold float32

	// PaddingMs is the default padding added around each speech segment.
	PaddingMs int

	// Parallel selects the default execution mode for classification.
	Parallel bool

	// PartitionWindows and MaxWorkers tune the classification driver; zero
	// values select the driver defaults.
	PartitionWindows int
	MaxWorkers       int
}

// Options overrides pipeline defaults for a single call. Nil pointer fields
// keep the configured default.
type Options struct {
	// PaddingMs overrides the configured segment padding.
	PaddingMs *int

	// Parallel overrides the configured execution mode.
	Parallel *bool

	// OnProgress receives classification progress from 0.0 to 1.0.
	OnProgress func(float64)

	// DebugBaseName, when non-empty, asks the debug sink to write a
	// side-channel WAV dump of the extracted audio under that name.
	DebugBaseName string
}

// DebugSink persists side-channel WAV dumps of extracted speech.
type DebugSink interface {
	SaveDebug(baseName string, pcm []byte, cfg audio.Config) (string, error)
}

// Processor runs the speech extraction pipeline over raw PCM snapshots.
// A Processor holds no per-run state: repeated calls with identical
// arguments return identical bytes, and the input buffer is never modified.
type Processor struct {
	classifier vad.Classifier
	resampler  *audio.Resampler
	driver     *vad.Driver
	merger     *vad.Merger
	debug      DebugSink
	metrics    *metrics.Metrics
	logger     *slog.Logger

	paddingMs int
	parallel  bool
}

// New creates a Processor around the given classifier. debug and m may be
// nil; a nil logger selects slog.Default.
func New(classifier vad.Classifier, cfg Config, debug DebugSink, m *metrics.Metrics, logger *slog.Logger) (*Processor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.PaddingMs < 0 {
		return nil, fmt.Errorf("%w: got %d ms", vad.ErrNegativePadding, cfg.PaddingMs)
	}

	threshold := cfg.SpeechThreshold
	if threshold == 0 {
		threshold = vad.DefaultSpeechThreshold
	}

	driver, err := vad.NewDriver(classifier, vad.DriverConfig{
		PartitionWindows: cfg.PartitionWindows,
		MaxWorkers:       cfg.MaxWorkers,
	}, logger)
	if err != nil {
		return nil, err
	}

	merger, err := vad.NewMerger(threshold, logger)
	if err != nil {
		return nil, err
	}

	return &Processor{
		classifier: classifier,
		resampler:  audio.NewResampler(logger),
		driver:     driver,
		merger:     merger,
		debug:      debug,
		metrics:    m,
		logger:     logger,
		paddingMs:  cfg.PaddingMs,
		parallel:   cfg.Parallel,
	}, nil
}

// Result describes one extraction pass over a raw snapshot.
type Result struct {
	// Audio holds the concatenated speech-bearing bytes in the input format.
	Audio []byte

	// Segments is the number of merged speech segments Audio was cut from.
	Segments int

	// Elapsed is the wall time the pass took.
	Elapsed time.Duration
}

// Process extracts the speech-bearing bytes of raw using the configured
// defaults. Empty or sub-window inputs return empty output without error.
//
// Processing cannot be cancelled once started. A caller that races a
// timeout against Process only abandons the result; the computation runs
// to completion in the background.
func (p *Processor) Process(raw []byte, cfg audio.Config) ([]byte, error) {
	return p.ProcessWithOptions(raw, cfg, Options{})
}

// ProcessWithOptions is Process with per-call overrides.
func (p *Processor) ProcessWithOptions(raw []byte, cfg audio.Config, opts Options) ([]byte, error) {
	res, err := p.Extract(raw, cfg, opts)
	if err != nil {
		return nil, err
	}
	return res.Audio, nil
}

// Extract runs the pipeline and reports segment details alongside the audio.
func (p *Processor) Extract(raw []byte, cfg audio.Config, opts Options) (*Result, error) {
	started := time.Now()

	out, segments, err := p.run(raw, cfg, opts)
	if err != nil {
		p.metrics.RecordProcessingError()
		return nil, err
	}

	elapsed := time.Since(started)
	p.metrics.RecordProcessing(elapsed.Seconds(), len(raw), len(out), len(segments))

	p.logger.Info("Speech extraction complete",
		slog.Int("input_bytes", len(raw)),
		slog.Int("output_bytes", len(out)),
		slog.Int("segments", len(segments)),
		slog.Duration("elapsed", elapsed))

	return &Result{
		Audio:    out,
		Segments: len(segments),
		Elapsed:  elapsed,
	}, nil
}

func (p *Processor) run(raw []byte, cfg audio.Config, opts Options) ([]byte, []vad.Segment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	paddingMs := p.paddingMs
	if opts.PaddingMs != nil {
		paddingMs = *opts.PaddingMs
	}
	if paddingMs < 0 {
		return nil, nil, fmt.Errorf("%w: got %d ms", vad.ErrNegativePadding, paddingMs)
	}

	parallel := p.parallel
	if opts.Parallel != nil {
		parallel = *opts.Parallel
	}

	// A trailing partial sample is dropped; everything downstream assumes
	// whole samples.
	trimmed := audio.TrimPartialSample(raw, cfg.BitDepth)

	native, err := p.resampler.Resample(trimmed, cfg, p.classifier.SampleRate(), audio.PCM16)
	if err != nil {
		return nil, nil, err
	}

	nativeCfg := audio.Config{
		SampleRateHz:  p.classifier.SampleRate(),
		BitDepth:      audio.PCM16,
		BufferSeconds: cfg.BufferSeconds,
	}

	probs, err := p.driver.Classify(native, nativeCfg, parallel, opts.OnProgress)
	if err != nil {
		return nil, nil, err
	}

	segments, err := p.merger.Merge(probs, p.driver.Windowing(cfg, len(trimmed)), paddingMs)
	if err != nil {
		return nil, nil, err
	}

	out, err := vad.ExtractSegments(trimmed, segments)
	if err != nil {
		return nil, nil, err
	}

	p.dumpDebug(opts.DebugBaseName, out, cfg)

	return out, segments, nil
}

// dumpDebug writes the side-channel WAV dump. Failures are logged rather
// than returned because the extraction result is already valid.
func (p *Processor) dumpDebug(baseName string, pcm []byte, cfg audio.Config) {
	if baseName == "" || len(pcm) == 0 {
		return
	}

	if p.debug == nil {
		p.logger.Warn("Debug dump requested but no debug sink configured",
			slog.String("base_name", baseName))
		return
	}

	path, err := p.debug.SaveDebug(baseName, pcm, cfg)
	if err != nil {
		p.logger.Error("Failed to write debug dump",
			slog.String("base_name", baseName),
			slog.String("error", err.Error()))
		return
	}

	p.logger.Debug("Debug dump written", slog.String("path", path))
}
