package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mortenfc/rewind/internal/audio"
	"github.com/mortenfc/rewind/internal/capture"
	"github.com/mortenfc/rewind/internal/config"
	"github.com/mortenfc/rewind/internal/metrics"
	"github.com/mortenfc/rewind/internal/pipeline"
	"github.com/mortenfc/rewind/internal/storage"
)

// Capture is the ring buffer view the API serves. *capture.Manager
// implements it; tests substitute a stub so no audio device is needed.
type Capture interface {
	Active() bool
	AudioConfig() audio.Config
	Snapshot() []byte
	ResetBuffer()
	GetStats() capture.Stats
}

// Extractor runs speech extraction over a snapshot. *pipeline.Processor
// implements it.
type Extractor interface {
	Extract(raw []byte, cfg audio.Config, opts pipeline.Options) (*pipeline.Result, error)
}

// Saver persists extracted audio. *storage.FileStore implements it.
type Saver interface {
	SaveMoment(pcm []byte, cfg audio.Config) (string, error)
	GetStats() storage.Stats
}

// HTTPServer provides HTTP API endpoints for monitoring and management
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	config  *config.Config
	capture Capture
	proc    Extractor
	store   Saver
	metrics *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, capt Capture, proc Extractor, store Saver, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		capture:   capt,
		proc:      proc,
		store:     store,
		metrics:   m,
		startTime: time.Now(),
	}

	// Create HTTP server with routes
	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Capture and storage statistics
	mux.HandleFunc("/status", h.withMetrics("/status", h.handleStatus))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Snapshot, extract and save the buffered speech
	mux.HandleFunc("/save", h.withMetrics("/save", h.handleSave))

	// Clear the rolling buffer
	mux.HandleFunc("/reset", h.withMetrics("/reset", h.handleReset))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		// Call the original handler
		handler(ww, r)

		// Record metrics
		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		// Record error if status code indicates an error
		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	captureStats := h.capture.GetStats()
	storeStats := h.store.GetStats()

	captureStatus := "idle"
	if captureStats.Active {
		captureStatus = "capturing"
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "rewind",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"capture": map[string]interface{}{
				"status":          captureStatus,
				"received_chunks": captureStats.ReceivedChunks,
				"dropped_chunks":  captureStats.DroppedChunks,
				"buffer_fill":     captureStats.Buffer.SizeBytes,
				"buffer_capacity": captureStats.Buffer.CapacityBytes,
			},
			"storage": map[string]interface{}{
				"status":        "running",
				"saved_moments": storeStats.SavedMoments,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStatus implements the /status endpoint
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := h.capture.AudioConfig()
	uptime := time.Since(h.startTime)

	status := map[string]interface{}{
		"uptime":    uptime.String(),
		"timestamp": time.Now().UTC(),
		"audio": map[string]interface{}{
			"sample_rate":    cfg.SampleRateHz,
			"bit_depth":      cfg.BitDepth.Bits(),
			"buffer_seconds": cfg.BufferSeconds,
		},
		"capture": h.capture.GetStats(),
		"storage": h.store.GetStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sanitizedConfig := map[string]interface{}{
		"audio": map[string]interface{}{
			"sample_rate":    h.config.Audio.SampleRate,
			"bit_depth":      h.config.Audio.BitDepth,
			"buffer_seconds": h.config.Audio.BufferSeconds,
		},
		"vad": map[string]interface{}{
			"threshold":         h.config.VAD.Threshold,
			"padding_ms":        h.config.VAD.PaddingMs,
			"parallel":          h.config.VAD.Parallel,
			"partition_windows": h.config.VAD.PartitionWindows,
			"max_workers":       h.config.VAD.MaxWorkers,
		},
		"capture": map[string]interface{}{
			"device":       h.config.Capture.Device,
			"chunk_ms":     h.config.Capture.ChunkMs,
			"queue_chunks": h.config.Capture.QueueChunks,
		},
		"output": map[string]interface{}{
			"directory":       h.config.Output.Directory,
			"debug_directory": h.config.Output.DebugDirectory,
			"file_prefix":     h.config.Output.FilePrefix,
			"save_debug":      h.config.Output.SaveDebug,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleSave implements the POST /save endpoint. It snapshots the rolling
// buffer, extracts the speech-bearing portions and persists them as a WAV.
// Query parameters padding_ms, parallel and debug override the configured
// defaults for this one request.
func (h *HTTPServer) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	opts, err := saveOptions(r, h.config.Output.SaveDebug)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	snapshot := h.capture.Snapshot()
	cfg := h.capture.AudioConfig()

	if len(snapshot) == 0 {
		http.Error(w, "Buffer is empty", http.StatusConflict)
		return
	}

	res, err := h.proc.Extract(snapshot, cfg, opts)
	if err != nil {
		h.logger.Error("Speech extraction failed", slog.String("error", err.Error()))
		http.Error(w, "Extraction failed", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"timestamp":      time.Now().UTC(),
		"segments":       res.Segments,
		"input_bytes":    len(snapshot),
		"output_bytes":   len(res.Audio),
		"input_duration": cfg.BytesToDuration(len(snapshot)).String(),
		"elapsed_ms":     res.Elapsed.Milliseconds(),
	}

	if len(res.Audio) == 0 {
		response["saved"] = false
		response["reason"] = "no speech detected"

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
		return
	}

	path, err := h.store.SaveMoment(res.Audio, cfg)
	if err != nil {
		h.logger.Error("Failed to save moment", slog.String("error", err.Error()))
		http.Error(w, "Save failed", http.StatusInternalServerError)
		return
	}

	response["saved"] = true
	response["path"] = path
	response["output_duration"] = cfg.BytesToDuration(len(res.Audio)).String()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// saveOptions parses the /save query parameters into pipeline options.
func saveOptions(r *http.Request, debugDefault bool) (pipeline.Options, error) {
	var opts pipeline.Options

	query := r.URL.Query()

	if raw := query.Get("padding_ms"); raw != "" {
		padding, err := strconv.Atoi(raw)
		if err != nil || padding < 0 {
			return opts, fmt.Errorf("padding_ms must be a non-negative integer, got %q", raw)
		}
		opts.PaddingMs = &padding
	}

	if raw := query.Get("parallel"); raw != "" {
		parallel, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, fmt.Errorf("parallel must be a boolean, got %q", raw)
		}
		opts.Parallel = &parallel
	}

	debug := debugDefault
	if raw := query.Get("debug"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, fmt.Errorf("debug must be a boolean, got %q", raw)
		}
		debug = parsed
	}
	if debug {
		opts.DebugBaseName = "save"
	}

	return opts, nil
}

// handleReset implements the POST /reset endpoint. Capture continues; only
// the buffered history is discarded.
func (h *HTTPServer) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.capture.ResetBuffer()

	response := map[string]interface{}{
		"reset":     true,
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Rewind Audio Capture Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":        "API documentation",
			"GET /health":  "Service health check",
			"GET /status":  "Capture and storage statistics",
			"GET /config":  "Get service configuration",
			"POST /save":   "Extract speech from the buffer and save it as WAV",
			"POST /reset":  "Clear the rolling buffer",
			"GET /metrics": "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
