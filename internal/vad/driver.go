package vad

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mortenfc/rewind/internal/audio"
)

// DefaultPartitionWindows is the number of windows scored from one fresh
// classifier state before the driver resets it. Both execution modes reset
// at the same boundaries, which is what keeps their outputs identical.
const DefaultPartitionWindows = 256

// DriverConfig contains tuning for the classification driver.
type DriverConfig struct {
	// PartitionWindows is the number of windows per state-reset partition.
	// Zero or negative selects DefaultPartitionWindows.
	PartitionWindows int

	// MaxWorkers caps the number of concurrent scoring workers in parallel
	// mode. Zero or negative selects GOMAXPROCS.
	MaxWorkers int
}

// Driver runs a stateful classifier over a PCM buffer window by window and
// returns one speech probability per window, in chronological order.
//
// The classifier state is reset to InitialState at fixed partition
// boundaries in both sequential and parallel mode. Parallel mode fans the
// partitions out across workers; because every partition starts from the
// same state either way, and window data is read-only during a run, the two
// modes return bit-identical probability sequences.
type Driver struct {
	classifier       Classifier
	partitionWindows int
	maxWorkers       int
	logger           *slog.Logger
}

// NewDriver creates a classification driver around the given classifier.
func NewDriver(classifier Classifier, cfg DriverConfig, logger *slog.Logger) (*Driver, error) {
	if classifier == nil {
		return nil, fmt.Errorf("classifier must not be nil")
	}

	if classifier.WindowSize() <= 0 {
		return nil, fmt.Errorf("classifier window size must be positive, got %d", classifier.WindowSize())
	}

	if classifier.ContextSize() < 0 {
		return nil, fmt.Errorf("classifier context size must not be negative, got %d", classifier.ContextSize())
	}

	if classifier.SampleRate() == 0 {
		return nil, fmt.Errorf("classifier sample rate must be positive")
	}

	if logger == nil {
		logger = slog.Default()
	}

	partition := cfg.PartitionWindows
	if partition <= 0 {
		partition = DefaultPartitionWindows
	}

	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Driver{
		classifier:       classifier,
		partitionWindows: partition,
		maxWorkers:       workers,
		logger:           logger,
	}, nil
}

// Classify scores every full window in pcm and returns the probabilities in
// window order. The audio must already be at the classifier's native sample
// rate. A trailing partial sample and a trailing partial window are dropped.
// Inputs shorter than one window yield a nil sequence without invoking the
// classifier.
//
// onProgress, when non-nil, receives non-decreasing values from 0.0 to 1.0.
// It is never invoked concurrently with itself, but in parallel mode the
// calls may come from different goroutines. It should return quickly.
func (d *Driver) Classify(pcm []byte, cfg audio.Config, parallel bool, onProgress func(float64)) ([]float32, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.SampleRateHz != d.classifier.SampleRate() {
		return nil, fmt.Errorf("classifier operates at %d Hz, got %d Hz audio",
			d.classifier.SampleRate(), cfg.SampleRateHz)
	}

	trimmed := audio.TrimPartialSample(pcm, cfg.BitDepth)
	samples, err := audio.Float32Samples(trimmed, cfg.BitDepth)
	if err != nil {
		return nil, err
	}

	windows := len(samples) / d.classifier.WindowSize()

	progress := newProgressTracker(windows, onProgress)
	progress.report(0)

	if windows == 0 {
		progress.report(1)
		return nil, nil
	}

	results := make([]float32, windows)

	if parallel && windows > d.partitionWindows {
		err = d.classifyParallel(samples, results, progress)
	} else {
		err = d.classifySequential(samples, results, progress)
	}
	if err != nil {
		return nil, err
	}

	progress.report(1)

	d.logger.Debug("Classification complete",
		slog.Int("windows", windows),
		slog.Bool("parallel", parallel))

	return results, nil
}

func (d *Driver) classifySequential(samples, results []float32, progress *progressTracker) error {
	windows := len(results)
	for first := 0; first < windows; first += d.partitionWindows {
		count := d.partitionWindows
		if first+count > windows {
			count = windows - first
		}
		if err := d.scorePartition(samples, results, first, count, progress); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) classifyParallel(samples, results []float32, progress *progressTracker) error {
	windows := len(results)

	g := new(errgroup.Group)
	g.SetLimit(d.maxWorkers)

	for first := 0; first < windows; first += d.partitionWindows {
		count := d.partitionWindows
		if first+count > windows {
			count = windows - first
		}
		start := first
		g.Go(func() error {
			return d.scorePartition(samples, results, start, count, progress)
		})
	}

	return g.Wait()
}

// scorePartition scores windows [first, first+count) starting from a fresh
// classifier state. Partitions write to disjoint ranges of results and never
// share state blobs, so workers need no coordination beyond the progress
// tracker.
func (d *Driver) scorePartition(samples, results []float32, first, count int, progress *progressTracker) error {
	windowSize := d.classifier.WindowSize()
	contextSize := d.classifier.ContextSize()

	state := d.classifier.InitialState()
	context := make([]float32, contextSize)

	for i := 0; i < count; i++ {
		w := first + i
		start := w * windowSize
		window := samples[start : start+windowSize]

		if contextSize > 0 {
			from := start - contextSize
			if from >= 0 {
				copy(context, samples[from:start])
			} else {
				// Context reaching before the session start is zero-filled.
				for j := 0; j < -from; j++ {
					context[j] = 0
				}
				copy(context[-from:], samples[:start])
			}
		}

		prob, next, err := d.classifier.Score(window, context, state)
		if err != nil {
			return fmt.Errorf("%w: window %d: %w", ErrInference, w, err)
		}

		results[w] = prob
		state = next
		progress.add(1)
	}

	return nil
}

// Windowing reports the geometry for mapping this driver's window indices
// back onto the raw buffer the classified audio was resampled from.
func (d *Driver) Windowing(raw audio.Config, rawLenBytes int) Windowing {
	return Windowing{
		WindowSamples: d.classifier.WindowSize(),
		NativeRateHz:  d.classifier.SampleRate(),
		RawRateHz:     raw.SampleRateHz,
		RawBitDepth:   raw.BitDepth,
		RawLenBytes:   rawLenBytes,
	}
}

// progressTracker serializes progress callbacks and keeps the reported value
// non-decreasing even when partitions finish out of order.
type progressTracker struct {
	mu    sync.Mutex
	fn    func(float64)
	total int
	done  int
	last  float64
}

func newProgressTracker(total int, fn func(float64)) *progressTracker {
	return &progressTracker{total: total, fn: fn}
}

func (p *progressTracker) add(n int) {
	if p.fn == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.done += n
	v := float64(p.done) / float64(p.total)
	if v > 1 {
		v = 1
	}
	p.emit(v)
}

func (p *progressTracker) report(v float64) {
	if p.fn == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.emit(v)
}

// emit requires mu to be held.
func (p *progressTracker) emit(v float64) {
	if v < p.last {
		return
	}
	p.last = v
	p.fn(v)
}
