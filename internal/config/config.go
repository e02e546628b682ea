package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mortenfc/rewind/internal/audio"
	"github.com/mortenfc/rewind/internal/pipeline"
	"github.com/mortenfc/rewind/internal/vad"
)

// Config represents the complete service configuration
type Config struct {
	Audio   AudioConfig   `yaml:"audio"`
	VAD     VADConfig     `yaml:"vad"`
	Capture CaptureConfig `yaml:"capture"`
	Output  OutputConfig  `yaml:"output"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

// AudioConfig describes the capture format and the rolling buffer length
type AudioConfig struct {
	SampleRate    int `yaml:"sample_rate"`    // Hz
	BitDepth      int `yaml:"bit_depth"`      // 8 or 16
	BufferSeconds int `yaml:"buffer_seconds"` // rolling history length
}

// VADConfig contains speech detection and extraction parameters
type VADConfig struct {
	Threshold        float32 `yaml:"threshold"`         // speech probability cutoff, 0 selects the 0.5 default
	PaddingMs        int     `yaml:"padding_ms"`        // padding around segments
	Parallel         bool    `yaml:"parallel"`          // classify partitions concurrently
	PartitionWindows int     `yaml:"partition_windows"` // 0 selects the driver default
	MaxWorkers       int     `yaml:"max_workers"`       // 0 selects NumCPU
}

// CaptureConfig contains capture device configuration
type CaptureConfig struct {
	Device      string `yaml:"device"`       // name substring, empty = system default
	ChunkMs     int    `yaml:"chunk_ms"`     // device period and queue slot duration
	QueueChunks int    `yaml:"queue_chunks"` // transfer queue depth
}

// OutputConfig contains file output configuration
type OutputConfig struct {
	Directory      string `yaml:"directory"`
	DebugDirectory string `yaml:"debug_directory"` // empty selects Directory/debug
	FilePrefix     string `yaml:"file_prefix"`
	SaveDebug      bool   `yaml:"save_debug"` // also dump a debug WAV per save
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the stock configuration used when no config file is
// given: half a minute of 16 kHz 16-bit rolling audio, sequential
// classification, and the HTTP API on localhost.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:    16000,
			BitDepth:      16,
			BufferSeconds: 30,
		},
		VAD: VADConfig{
			Threshold: vad.DefaultSpeechThreshold,
			PaddingMs: pipeline.DefaultPaddingMs,
		},
		Capture: CaptureConfig{
			ChunkMs:     100,
			QueueChunks: 32,
		},
		Output: OutputConfig{
			Directory:  "./recordings",
			FilePrefix: "moment",
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Address: "127.0.0.1",
			Port:    8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 1 {
		return fmt.Errorf("sample_rate must be positive, got %d", a.SampleRate)
	}

	if a.SampleRate > 384000 {
		return fmt.Errorf("sample_rate must be at most 384000 Hz, got %d", a.SampleRate)
	}

	if a.BitDepth != 8 && a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 8 or 16, got %d", a.BitDepth)
	}

	if a.BufferSeconds < 1 || a.BufferSeconds > 3600 {
		return fmt.Errorf("buffer_seconds must be between 1 and 3600, got %d", a.BufferSeconds)
	}

	return nil
}

// ToAudio converts the section to the PCM format descriptor used across
// the pipeline. Call Validate first; invalid values convert blindly.
func (a *AudioConfig) ToAudio() audio.Config {
	return audio.Config{
		SampleRateHz:  uint32(a.SampleRate),
		BitDepth:      audio.BitDepth(a.BitDepth),
		BufferSeconds: uint32(a.BufferSeconds),
	}
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.Threshold < 0 || v.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", v.Threshold)
	}

	if v.PaddingMs < 0 {
		return fmt.Errorf("padding_ms must not be negative, got %d", v.PaddingMs)
	}

	if v.PaddingMs > 60000 {
		return fmt.Errorf("padding_ms must be at most 60000, got %d", v.PaddingMs)
	}

	if v.PartitionWindows < 0 {
		return fmt.Errorf("partition_windows must not be negative, got %d", v.PartitionWindows)
	}

	if v.MaxWorkers < 0 || v.MaxWorkers > 1024 {
		return fmt.Errorf("max_workers must be between 0 and 1024, got %d", v.MaxWorkers)
	}

	return nil
}

// ToPipeline converts the section to the extraction pipeline defaults.
func (v *VADConfig) ToPipeline() pipeline.Config {
	return pipeline.Config{
		SpeechThreshold:  v.Threshold,
		PaddingMs:        v.PaddingMs,
		Parallel:         v.Parallel,
		PartitionWindows: v.PartitionWindows,
		MaxWorkers:       v.MaxWorkers,
	}
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	if c.ChunkMs < 0 || c.ChunkMs > 10000 {
		return fmt.Errorf("chunk_ms must be between 0 and 10000, got %d", c.ChunkMs)
	}

	if c.QueueChunks < 0 || c.QueueChunks > 65536 {
		return fmt.Errorf("queue_chunks must be between 0 and 65536, got %d", c.QueueChunks)
	}

	return nil
}

// Validate validates output configuration
func (o *OutputConfig) Validate() error {
	if o.Directory == "" {
		return fmt.Errorf("directory cannot be empty")
	}

	if strings.ContainsAny(o.FilePrefix, `/\`) {
		return fmt.Errorf("file_prefix must not contain path separators, got %q", o.FilePrefix)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output accepts stdout, stderr, or a file path.
	return nil
}
