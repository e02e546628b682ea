package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mortenfc/rewind/internal/capture"
	"github.com/mortenfc/rewind/internal/config"
	"github.com/mortenfc/rewind/internal/metrics"
	"github.com/mortenfc/rewind/internal/pipeline"
	"github.com/mortenfc/rewind/internal/server"
	"github.com/mortenfc/rewind/internal/storage"
	"github.com/mortenfc/rewind/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "rewind"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	inputPath := flag.String("input", "", "Process a WAV file instead of capturing (offline mode)")
	saveOnExit := flag.Bool("save-on-exit", false, "Extract and save buffered speech before shutting down")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary
	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("bit_depth", cfg.Audio.BitDepth),
		slog.Int("buffer_seconds", cfg.Audio.BufferSeconds),
		slog.Float64("vad_threshold", float64(cfg.VAD.Threshold)),
		slog.Int("padding_ms", cfg.VAD.PaddingMs),
		slog.String("output_directory", cfg.Output.Directory),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics(nil)
	logger.Info("Prometheus metrics initialized")

	// Initialize storage
	store, err := storage.New(storage.Config{
		Dir:      cfg.Output.Directory,
		DebugDir: cfg.Output.DebugDirectory,
		Prefix:   cfg.Output.FilePrefix,
	}, appMetrics, logger)
	if err != nil {
		logger.Error("Failed to create file store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize the extraction pipeline. The file store doubles as the
	// pipeline's debug dump sink.
	proc, err := pipeline.New(vad.NewEnergyClassifier(), cfg.VAD.ToPipeline(), store, appMetrics, logger)
	if err != nil {
		logger.Error("Failed to create pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Offline mode: process a WAV file and exit
	if *inputPath != "" {
		os.Exit(runOffline(logger, cfg, proc, store, *inputPath))
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the capture backend and manager
	backend, err := capture.NewMalgoBackend(cfg.Capture.Device, cfg.Capture.ChunkMs, logger)
	if err != nil {
		logger.Error("Failed to initialize audio backend", slog.String("error", err.Error()))
		os.Exit(1)
	}

	manager, err := capture.NewManager(backend, capture.Config{
		Audio:       cfg.Audio.ToAudio(),
		ChunkMs:     cfg.Capture.ChunkMs,
		QueueChunks: cfg.Capture.QueueChunks,
	}, appMetrics, logger)
	if err != nil {
		logger.Error("Failed to create capture manager", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, manager, proc, store, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Start capturing
	if err := manager.Start(ctx); err != nil {
		logger.Error("Failed to start capture", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start HTTP server (if enabled)
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// SIGUSR1 saves the buffered speech, SIGINT/SIGTERM shut down
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("output_directory", cfg.Output.Directory),
	)

	for {
		sig := <-sigChan
		if sig == syscall.SIGUSR1 {
			logger.Info("Save signal received")
			saveMoment(logger, manager, proc, store, cfg.Output.SaveDebug)
			continue
		}

		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		break
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop capturing. The final queue flush runs before Stop returns, so a
	// save-on-exit snapshot sees everything the device delivered.
	manager.Stop()

	if *saveOnExit {
		saveMoment(logger, manager, proc, store, cfg.Output.SaveDebug)
	}

	if err := backend.Uninit(); err != nil {
		logger.Error("Error releasing audio backend", slog.String("error", err.Error()))
	}

	// Get final statistics
	stats := manager.GetStats()
	logger.Info("Final capture statistics",
		slog.Uint64("received_chunks", stats.ReceivedChunks),
		slog.Uint64("received_bytes", stats.ReceivedBytes),
		slog.Uint64("dropped_chunks", stats.DroppedChunks),
		slog.Uint64("total_buffered_bytes", stats.Buffer.TotalWritten),
	)

	storeStats := store.GetStats()
	logger.Info("Final storage statistics",
		slog.Uint64("saved_moments", storeStats.SavedMoments),
		slog.Uint64("saved_bytes", storeStats.SavedBytes),
	)

	logger.Info("Service stopped")
}

// loadConfig loads the configuration file, falling back to defaults when
// the stock path does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}

	if path == defaultConfigPath && errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Config file %s not found, using defaults\n", path)
		return config.Default(), nil
	}

	return nil, err
}

// saveMoment snapshots the rolling buffer, extracts the speech-bearing
// portions and saves them as a WAV. Shared by the SIGUSR1 trigger and
// -save-on-exit.
func saveMoment(logger *slog.Logger, manager *capture.Manager, proc *pipeline.Processor, store *storage.FileStore, saveDebug bool) {
	snapshot := manager.Snapshot()
	if len(snapshot) == 0 {
		logger.Warn("Nothing to save, buffer is empty")
		return
	}

	var opts pipeline.Options
	if saveDebug {
		opts.DebugBaseName = "save"
	}

	cfg := manager.AudioConfig()

	res, err := proc.Extract(snapshot, cfg, opts)
	if err != nil {
		logger.Error("Speech extraction failed", slog.String("error", err.Error()))
		return
	}

	if len(res.Audio) == 0 {
		logger.Info("No speech detected in buffer", slog.Int("input_bytes", len(snapshot)))
		return
	}

	path, err := store.SaveMoment(res.Audio, cfg)
	if err != nil {
		logger.Error("Failed to save moment", slog.String("error", err.Error()))
		return
	}

	logger.Info("Moment saved",
		slog.String("path", path),
		slog.Int("segments", res.Segments),
		slog.Duration("audio", cfg.BytesToDuration(len(res.Audio))),
	)
}

// runOffline pushes a WAV file through the same pipeline live capture uses
// and saves the extraction. Returns the process exit code.
func runOffline(logger *slog.Logger, cfg *config.Config, proc *pipeline.Processor, store *storage.FileStore, path string) int {
	logger.Info("Offline mode", slog.String("input", path))

	pcm, audioCfg, err := storage.ReadWAV(path)
	if err != nil {
		logger.Error("Failed to read input file", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("Input loaded",
		slog.Int("bytes", len(pcm)),
		slog.Int("sample_rate_hz", int(audioCfg.SampleRateHz)),
		slog.Int("bit_depth", audioCfg.BitDepth.Bits()),
		slog.Duration("audio", audioCfg.BytesToDuration(len(pcm))),
	)

	var opts pipeline.Options
	if cfg.Output.SaveDebug {
		opts.DebugBaseName = "offline"
	}

	res, err := proc.Extract(pcm, audioCfg, opts)
	if err != nil {
		logger.Error("Speech extraction failed", slog.String("error", err.Error()))
		return 1
	}

	if len(res.Audio) == 0 {
		logger.Info("No speech detected in input", slog.Int("input_bytes", len(pcm)))
		return 0
	}

	savedPath, err := store.SaveMoment(res.Audio, audioCfg)
	if err != nil {
		logger.Error("Failed to save extraction", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("Extraction saved",
		slog.String("path", savedPath),
		slog.Int("segments", res.Segments),
		slog.Int("output_bytes", len(res.Audio)),
		slog.Duration("elapsed", res.Elapsed),
	)

	return 0
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
