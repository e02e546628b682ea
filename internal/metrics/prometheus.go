package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the rewind recorder. All
// record helpers are safe to call on a nil receiver, so components can treat
// metrics as optional wiring.
type Metrics struct {
	// Capture metrics
	CaptureChunks  prometheus.Counter
	CaptureBytes   prometheus.Counter
	CaptureDrops   prometheus.Counter
	BufferFill     prometheus.Gauge
	BufferOverflow prometheus.Gauge

	// Pipeline metrics
	ProcessingRuns     prometheus.Counter
	ProcessingErrors   prometheus.Counter
	ProcessingDuration prometheus.Histogram
	SpeechBytes        prometheus.Histogram
	SpeechRatio        prometheus.Histogram
	SegmentsExtracted  prometheus.Counter

	// Save metrics
	MomentsSaved   prometheus.Counter
	SaveErrors     prometheus.Counter
	MomentDuration prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// selects the default registerer. Tests pass their own registry so repeated
// construction does not panic on duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Capture metrics
		CaptureChunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "rewind_capture_chunks_total",
			Help: "Total number of PCM chunks written into the ring buffer",
		}),
		CaptureBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "rewind_capture_bytes_total",
			Help: "Total number of PCM bytes written into the ring buffer",
		}),
		CaptureDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "rewind_capture_dropped_chunks_total",
			Help: "Total number of capture chunks dropped because the intake queue was full",
		}),
		BufferFill: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rewind_buffer_fill_bytes",
			Help: "Current number of valid bytes held by the ring buffer",
		}),
		BufferOverflow: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rewind_buffer_overflowed",
			Help: "Whether the ring buffer has wrapped since the last reset (0 or 1)",
		}),

		// Pipeline metrics
		ProcessingRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "rewind_processing_runs_total",
			Help: "Total number of speech extraction runs",
		}),
		ProcessingErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "rewind_processing_errors_total",
			Help: "Total number of failed speech extraction runs",
		}),
		ProcessingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rewind_processing_duration_seconds",
			Help:    "Wall-clock duration of speech extraction runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),
		SpeechBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rewind_speech_bytes",
			Help:    "Size of extracted speech audio in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		SpeechRatio: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rewind_speech_ratio",
			Help:    "Extracted bytes divided by input bytes per run",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		}),
		SegmentsExtracted: factory.NewCounter(prometheus.CounterOpts{
			Name: "rewind_segments_extracted_total",
			Help: "Total number of speech segments extracted",
		}),

		// Save metrics
		MomentsSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "rewind_moments_saved_total",
			Help: "Total number of speech moments saved to disk",
		}),
		SaveErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "rewind_save_errors_total",
			Help: "Total number of failed save attempts",
		}),
		MomentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rewind_moment_duration_seconds",
			Help:    "Audio duration of saved speech moments",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~2 minutes
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rewind_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rewind_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rewind_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordCaptureChunk records one chunk of PCM entering the ring buffer.
func (m *Metrics) RecordCaptureChunk(sizeBytes int) {
	if m == nil {
		return
	}
	m.CaptureChunks.Inc()
	m.CaptureBytes.Add(float64(sizeBytes))
}

// RecordCaptureDrop increments the dropped chunks counter.
func (m *Metrics) RecordCaptureDrop() {
	if m == nil {
		return
	}
	m.CaptureDrops.Inc()
}

// SetBufferState publishes the ring buffer's fill level and overflow flag.
func (m *Metrics) SetBufferState(fillBytes int, overflowed bool) {
	if m == nil {
		return
	}
	m.BufferFill.Set(float64(fillBytes))
	if overflowed {
		m.BufferOverflow.Set(1)
	} else {
		m.BufferOverflow.Set(0)
	}
}

// RecordProcessing records one successful speech extraction run.
func (m *Metrics) RecordProcessing(durationSeconds float64, inputBytes, outputBytes, segments int) {
	if m == nil {
		return
	}
	m.ProcessingRuns.Inc()
	m.ProcessingDuration.Observe(durationSeconds)
	m.SpeechBytes.Observe(float64(outputBytes))
	if inputBytes > 0 {
		m.SpeechRatio.Observe(float64(outputBytes) / float64(inputBytes))
	}
	m.SegmentsExtracted.Add(float64(segments))
}

// RecordProcessingError increments the failed runs counter.
func (m *Metrics) RecordProcessingError() {
	if m == nil {
		return
	}
	m.ProcessingErrors.Inc()
}

// RecordMomentSaved records a successfully persisted speech moment.
func (m *Metrics) RecordMomentSaved(audioSeconds float64) {
	if m == nil {
		return
	}
	m.MomentsSaved.Inc()
	m.MomentDuration.Observe(audioSeconds)
}

// RecordSaveError increments the failed saves counter.
func (m *Metrics) RecordSaveError() {
	if m == nil {
		return
	}
	m.SaveErrors.Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error.
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
