package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mortenfc/rewind/internal/audio"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid configuration",
			config: Config{
				Audio: AudioConfig{
					SampleRate:    16000,
					BitDepth:      16,
					BufferSeconds: 30,
				},
				VAD: VADConfig{
					Threshold: 0.5,
					PaddingMs: 300,
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
			},
			expectError: false,
		},
		{
			name: "invalid audio sample rate",
			config: Config{
				Audio: AudioConfig{
					SampleRate:    0, // Invalid sample rate
					BitDepth:      16,
					BufferSeconds: 30,
				},
				VAD: VADConfig{
					Threshold: 0.5,
					PaddingMs: 300,
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
			},
			expectError: true,
			errorMsg:    "sample_rate must be positive",
		},
		{
			name: "invalid VAD threshold",
			config: Config{
				Audio: AudioConfig{
					SampleRate:    16000,
					BitDepth:      16,
					BufferSeconds: 30,
				},
				VAD: VADConfig{
					Threshold: 1.5, // Invalid threshold > 1
					PaddingMs: 300,
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
			},
			expectError: true,
			errorMsg:    "threshold must be between 0 and 1",
		},
		{
			name: "invalid HTTP port",
			config: Config{
				Audio: AudioConfig{
					SampleRate:    16000,
					BitDepth:      16,
					BufferSeconds: 30,
				},
				VAD: VADConfig{
					Threshold: 0.5,
					PaddingMs: 300,
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
					Port:    70000, // Invalid port
				},
				Logging: LoggingConfig{
					Level:  "info",
					Format: "text",
					Output: "stdout",
				},
			},
			expectError: true,
			errorMsg:    "port must be between 1 and 65535",
		},
		{
			name: "empty output directory",
			config: Config{
				Audio: AudioConfig{
					SampleRate:    16000,
					BitDepth:      16,
					BufferSeconds: 30,
				},
				VAD: VADConfig{
					Threshold: 0.5,
					PaddingMs: 300,
				},
				Capture: CaptureConfig{
					ChunkMs:     100,
					QueueChunks: 32,
				},
				Output: OutputConfig{
					Directory:  "", // Invalid empty directory
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
			},
			expectError: true,
			errorMsg:    "directory cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	// Create a temporary directory for test files
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
audio:
  sample_rate: 16000
  bit_depth: 16
  buffer_seconds: 30
vad:
  threshold: 0.5
  padding_ms: 300
  parallel: false
  partition_windows: 0
  max_workers: 0
capture:
  device: ""
  chunk_ms: 100
  queue_chunks: 32
output:
  directory: "./recordings"
  debug_directory: ""
  file_prefix: "moment"
  save_debug: false
http:
  enabled: true
  address: "127.0.0.1"
  port: 8080
logging:
  level: "info"
  format: "text"
  output: "stdout"
`,
			expectError: false,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
audio:
  sample_rate: 16000
  buffer_seconds: invalid_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "missing required fields",
			configYAML: `
audio:
  sample_rate: 16000
  # missing bit_depth
`,
			expectError: true,
			errorMsg:    "bit_depth must be 8 or 16",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Create temporary config file
			configPath := filepath.Join(tempDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.configYAML), 0644)
			if err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			// Load configuration
			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				} else if config == nil {
					t.Errorf("Expected config to be loaded but got nil")
				}
			}
		})
	}
}

func TestConfigLoadValues(t *testing.T) {
	tempDir := t.TempDir()
	configYAML := `
audio:
  sample_rate: 22050
  bit_depth: 8
  buffer_seconds: 120
vad:
  threshold: 0.7
  padding_ms: 150
  parallel: true
  partition_windows: 128
  max_workers: 4
capture:
  device: "USB Audio"
  chunk_ms: 50
  queue_chunks: 64
output:
  directory: "/tmp/moments"
  debug_directory: "/tmp/moments/raw"
  file_prefix: "clip"
  save_debug: true
http:
  enabled: false
  address: ""
  port: 0
logging:
  level: "debug"
  format: "json"
  output: "stderr"
`

	configPath := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}

	if config.Audio.SampleRate != 22050 {
		t.Errorf("Expected sample rate 22050, got %d", config.Audio.SampleRate)
	}
	if config.Audio.BitDepth != 8 {
		t.Errorf("Expected bit depth 8, got %d", config.Audio.BitDepth)
	}
	if config.VAD.Threshold != 0.7 {
		t.Errorf("Expected threshold 0.7, got %f", config.VAD.Threshold)
	}
	if !config.VAD.Parallel {
		t.Errorf("Expected parallel classification to be enabled")
	}
	if config.Capture.Device != "USB Audio" {
		t.Errorf("Expected device 'USB Audio', got '%s'", config.Capture.Device)
	}
	if config.Output.DebugDirectory != "/tmp/moments/raw" {
		t.Errorf("Expected debug directory '/tmp/moments/raw', got '%s'", config.Output.DebugDirectory)
	}
	if !config.Output.SaveDebug {
		t.Errorf("Expected save_debug to be enabled")
	}
	if config.HTTP.Enabled {
		t.Errorf("Expected HTTP to be disabled")
	}
	if config.Logging.Format != "json" {
		t.Errorf("Expected logging format 'json', got '%s'", config.Logging.Format)
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Errorf("Expected error for nonexistent file but got none")
	}
	if !contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestDefault(t *testing.T) {
	config := Default()

	if err := config.Validate(); err != nil {
		t.Errorf("Expected default config to validate, got: %v", err)
	}

	if config.Audio.SampleRate != 16000 {
		t.Errorf("Expected default sample rate 16000, got %d", config.Audio.SampleRate)
	}
	if config.Audio.BufferSeconds != 30 {
		t.Errorf("Expected default buffer of 30 seconds, got %d", config.Audio.BufferSeconds)
	}
	if config.Output.Directory == "" {
		t.Errorf("Expected default output directory to be set")
	}
	if !config.HTTP.Enabled {
		t.Errorf("Expected HTTP API to be enabled by default")
	}
}

func TestConversionHelpers(t *testing.T) {
	audioSection := AudioConfig{
		SampleRate:    16000,
		BitDepth:      16,
		BufferSeconds: 30,
	}

	want := audio.Config{
		SampleRateHz:  16000,
		BitDepth:      audio.PCM16,
		BufferSeconds: 30,
	}
	if got := audioSection.ToAudio(); got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}

	vadSection := VADConfig{
		Threshold:        0.7,
		PaddingMs:        150,
		Parallel:         true,
		PartitionWindows: 128,
		MaxWorkers:       4,
	}

	pipelineCfg := vadSection.ToPipeline()
	if pipelineCfg.SpeechThreshold != 0.7 {
		t.Errorf("Expected threshold 0.7, got %f", pipelineCfg.SpeechThreshold)
	}
	if pipelineCfg.PaddingMs != 150 {
		t.Errorf("Expected padding 150 ms, got %d", pipelineCfg.PaddingMs)
	}
	if !pipelineCfg.Parallel {
		t.Errorf("Expected parallel classification to be enabled")
	}
	if pipelineCfg.PartitionWindows != 128 {
		t.Errorf("Expected 128 windows per partition, got %d", pipelineCfg.PartitionWindows)
	}
	if pipelineCfg.MaxWorkers != 4 {
		t.Errorf("Expected 4 workers, got %d", pipelineCfg.MaxWorkers)
	}
}

func TestAudioConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config AudioConfig
		valid  bool
	}{
		{
			name: "valid 16-bit config",
			config: AudioConfig{
				SampleRate:    16000,
				BitDepth:      16,
				BufferSeconds: 30,
			},
			valid: true,
		},
		{
			name: "valid 8-bit config",
			config: AudioConfig{
				SampleRate:    8000,
				BitDepth:      8,
				BufferSeconds: 1,
			},
			valid: true,
		},
		{
			name: "sample rate too high",
			config: AudioConfig{
				SampleRate:    400000,
				BitDepth:      16,
				BufferSeconds: 30,
			},
			valid: false,
		},
		{
			name: "unsupported bit depth",
			config: AudioConfig{
				SampleRate:    16000,
				BitDepth:      24,
				BufferSeconds: 30,
			},
			valid: false,
		},
		{
			name: "buffer too long",
			config: AudioConfig{
				SampleRate:    16000,
				BitDepth:      16,
				BufferSeconds: 4000,
			},
			valid: false,
		},
		{
			name: "zero-length buffer",
			config: AudioConfig{
				SampleRate:    16000,
				BitDepth:      16,
				BufferSeconds: 0,
			},
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}

func TestVADConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config VADConfig
		valid  bool
	}{
		{
			name: "valid config",
			config: VADConfig{
				Threshold: 0.5,
				PaddingMs: 300,
			},
			valid: true,
		},
		{
			name: "zero padding and threshold",
			config: VADConfig{
				Threshold: 0,
				PaddingMs: 0,
			},
			valid: true,
		},
		{
			name: "negative threshold",
			config: VADConfig{
				Threshold: -0.1,
				PaddingMs: 300,
			},
			valid: false,
		},
		{
			name: "negative padding",
			config: VADConfig{
				Threshold: 0.5,
				PaddingMs: -1,
			},
			valid: false,
		},
		{
			name: "excessive padding",
			config: VADConfig{
				Threshold: 0.5,
				PaddingMs: 70000,
			},
			valid: false,
		},
		{
			name: "negative partition size",
			config: VADConfig{
				Threshold:        0.5,
				PaddingMs:        300,
				PartitionWindows: -1,
			},
			valid: false,
		},
		{
			name: "too many workers",
			config: VADConfig{
				Threshold:  0.5,
				PaddingMs:  300,
				MaxWorkers: 2048,
			},
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}

func TestCaptureConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config CaptureConfig
		valid  bool
	}{
		{
			name: "valid config",
			config: CaptureConfig{
				Device:      "USB Audio",
				ChunkMs:     100,
				QueueChunks: 32,
			},
			valid: true,
		},
		{
			name:   "zeros select defaults",
			config: CaptureConfig{},
			valid:  true,
		},
		{
			name: "negative chunk duration",
			config: CaptureConfig{
				ChunkMs:     -1,
				QueueChunks: 32,
			},
			valid: false,
		},
		{
			name: "excessive chunk duration",
			config: CaptureConfig{
				ChunkMs:     20000,
				QueueChunks: 32,
			},
			valid: false,
		},
		{
			name: "excessive queue depth",
			config: CaptureConfig{
				ChunkMs:     100,
				QueueChunks: 100000,
			},
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}

func TestOutputConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config OutputConfig
		valid  bool
	}{
		{
			name: "valid config",
			config: OutputConfig{
				Directory:  "./recordings",
				FilePrefix: "moment",
			},
			valid: true,
		},
		{
			name: "empty prefix is allowed",
			config: OutputConfig{
				Directory: "./recordings",
			},
			valid: true,
		},
		{
			name: "empty directory",
			config: OutputConfig{
				Directory:  "",
				FilePrefix: "moment",
			},
			valid: false,
		},
		{
			name: "prefix with path separator",
			config: OutputConfig{
				Directory:  "./recordings",
				FilePrefix: "../escape",
			},
			valid: false,
		},
		{
			name: "prefix with backslash",
			config: OutputConfig{
				Directory:  "./recordings",
				FilePrefix: `clips\win`,
			},
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}

func TestHTTPConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config HTTPConfig
		valid  bool
	}{
		{
			name: "valid enabled config",
			config: HTTPConfig{
				Enabled: true,
				Address: "127.0.0.1",
				Port:    8080,
			},
			valid: true,
		},
		{
			name: "disabled skips address checks",
			config: HTTPConfig{
				Enabled: false,
			},
			valid: true,
		},
		{
			name: "port too high",
			config: HTTPConfig{
				Enabled: true,
				Address: "127.0.0.1",
				Port:    70000,
			},
			valid: false,
		},
		{
			name: "empty address",
			config: HTTPConfig{
				Enabled: true,
				Address: "",
				Port:    8080,
			},
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
		valid  bool
	}{
		{
			name: "valid json to stdout",
			config: LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
			valid: true,
		},
		{
			name: "valid text to stderr",
			config: LoggingConfig{
				Level:  "debug",
				Format: "text",
				Output: "stderr",
			},
			valid: true,
		},
		{
			name: "file path output",
			config: LoggingConfig{
				Level:  "warn",
				Format: "text",
				Output: "/var/log/rewind.log",
			},
			valid: true,
		},
		{
			name: "invalid log level",
			config: LoggingConfig{
				Level:  "trace",
				Format: "json",
				Output: "stdout",
			},
			valid: false,
		},
		{
			name: "invalid format",
			config: LoggingConfig{
				Level:  "info",
				Format: "xml",
				Output: "stdout",
			},
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}

// Helper function to check if a string contains a substring
func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 ||
		(len(s) > len(substr) && findSubstring(s, substr)))
}

func findSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
