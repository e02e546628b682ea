package pipeline

import (
	"fmt"
	"runtime"
	"time"

	"github.com/mortenfc/rewind/internal/audio"
)

// BenchmarkResult summarizes repeated extraction passes over one buffer.
type BenchmarkResult struct {
	Runs          int     `json:"runs"`
	AvgMs         float64 `json:"avg_ms"`
	AvgAllocBytes float64 `json:"avg_alloc_bytes"`
}

// MeasureProcessing runs warmup untimed extraction passes followed by runs
// timed passes over the same buffer and reports the average wall-clock time
// and heap allocation per pass. Allocation is derived from the runtime's
// cumulative TotalAlloc, so allocations by other goroutines in the process
// inflate the number; measure on a quiet process for meaningful results.
func (p *Processor) MeasureProcessing(raw []byte, cfg audio.Config, runs, warmup int) (BenchmarkResult, error) {
	if runs <= 0 {
		return BenchmarkResult{}, fmt.Errorf("runs must be positive, got %d", runs)
	}

	if warmup < 0 {
		return BenchmarkResult{}, fmt.Errorf("warmup must not be negative, got %d", warmup)
	}

	// Use the inner run path so measurement passes do not pollute the
	// operational metrics or the info log.
	for i := 0; i < warmup; i++ {
		if _, _, err := p.run(raw, cfg, Options{}); err != nil {
			return BenchmarkResult{}, fmt.Errorf("warmup pass %d: %w", i, err)
		}
	}

	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	started := time.Now()
	for i := 0; i < runs; i++ {
		if _, _, err := p.run(raw, cfg, Options{}); err != nil {
			return BenchmarkResult{}, fmt.Errorf("timed pass %d: %w", i, err)
		}
	}
	elapsed := time.Since(started)

	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	return BenchmarkResult{
		Runs:          runs,
		AvgMs:         elapsed.Seconds() * 1000 / float64(runs),
		AvgAllocBytes: float64(after.TotalAlloc-before.TotalAlloc) / float64(runs),
	}, nil
}
