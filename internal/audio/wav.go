package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// WAVHeaderSize is the size of the canonical 44-byte PCM WAV header.
const WAVHeaderSize = 44

// WAVHeader represents the header structure of a canonical PCM WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// EncodeWAV wraps raw mono PCM bytes in a canonical 44-byte WAV header.
// The pcm bytes are written as-is: 8-bit audio must be unsigned, 16-bit
// audio signed little-endian.
func EncodeWAV(pcm []byte, cfg Config) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio data")
	}

	if cfg.SampleRateHz == 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRateHz)
	}

	if !cfg.BitDepth.Valid() {
		return nil, fmt.Errorf("bit depth must be 8 or 16, got %d", int(cfg.BitDepth))
	}

	bytesPerSample := cfg.BitDepth.BytesPerSample()
	if len(pcm)%bytesPerSample != 0 {
		return nil, fmt.Errorf("audio data length must be a multiple of %d bytes, got %d", bytesPerSample, len(pcm))
	}

	numChannels := uint16(1)
	bitsPerSample := uint16(cfg.BitDepth.Bits())
	dataSize := uint32(len(pcm))

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    cfg.SampleRateHz,
		ByteRate:      cfg.SampleRateHz * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, WAVHeaderSize+len(pcm)))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	buf.Write(pcm)

	return buf.Bytes(), nil
}

// DecodeWAV extracts the raw PCM bytes and format from canonical WAV data.
// The returned Config's BufferSeconds is derived from the clip length,
// rounded up, so the config validates and can size a buffer that would hold
// the clip.
func DecodeWAV(data []byte) ([]byte, Config, error) {
	if len(data) < WAVHeaderSize {
		return nil, Config{}, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", WAVHeaderSize, len(data))
	}

	buf := bytes.NewReader(data)
	var header WAVHeader

	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return nil, Config{}, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" {
		return nil, Config{}, fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(header.Format[:]) != "WAVE" {
		return nil, Config{}, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(header.Subchunk1ID[:]) != "fmt " {
		return nil, Config{}, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(header.Subchunk2ID[:]) != "data" {
		return nil, Config{}, fmt.Errorf("invalid WAV file: missing data chunk")
	}

	if header.AudioFormat != 1 {
		return nil, Config{}, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}

	if header.NumChannels != 1 {
		return nil, Config{}, fmt.Errorf("unsupported channel count: %d (only mono is supported)", header.NumChannels)
	}

	depth := BitDepth(header.BitsPerSample)
	if !depth.Valid() {
		return nil, Config{}, fmt.Errorf("unsupported bit depth: %d (only 8-bit and 16-bit are supported)", header.BitsPerSample)
	}

	if header.SampleRate == 0 {
		return nil, Config{}, fmt.Errorf("invalid sample rate: 0")
	}

	if int(header.Subchunk2Size) > len(data)-WAVHeaderSize {
		return nil, Config{}, fmt.Errorf("truncated WAV data: header declares %d bytes, %d available",
			header.Subchunk2Size, len(data)-WAVHeaderSize)
	}

	pcm := make([]byte, header.Subchunk2Size)
	copy(pcm, data[WAVHeaderSize:WAVHeaderSize+int(header.Subchunk2Size)])

	samples := len(pcm) / depth.BytesPerSample()
	seconds := (uint32(samples) + header.SampleRate - 1) / header.SampleRate
	if seconds == 0 {
		seconds = 1
	}

	cfg := Config{
		SampleRateHz:  header.SampleRate,
		BitDepth:      depth,
		BufferSeconds: seconds,
	}

	return pcm, cfg, nil
}

// ValidateWAV validates WAV framing without decoding the audio data
func ValidateWAV(data []byte) error {
	if len(data) < WAVHeaderSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", WAVHeaderSize, len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}

	return nil
}

// GetWAVDuration calculates the duration of a WAV file in seconds
func GetWAVDuration(data []byte) (float64, error) {
	if err := ValidateWAV(data); err != nil {
		return 0, err
	}

	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	if sampleRate == 0 {
		return 0, fmt.Errorf("invalid sample rate: 0")
	}

	bitsPerSample := binary.LittleEndian.Uint16(data[34:36])
	if bitsPerSample != 8 && bitsPerSample != 16 {
		return 0, fmt.Errorf("unsupported bit depth: %d", bitsPerSample)
	}

	dataSize := binary.LittleEndian.Uint32(data[40:44])
	numSamples := dataSize / uint32(bitsPerSample/8)

	return float64(numSamples) / float64(sampleRate), nil
}

// WAVInfo holds basic information about a WAV file
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumSamples    uint32  `json:"num_samples"`
}

// GetWAVInfo extracts metadata from a WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, err
	}

	buf := bytes.NewReader(data)
	var header WAVHeader

	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if header.BitsPerSample == 0 || header.SampleRate == 0 {
		return nil, fmt.Errorf("invalid WAV header: zero sample rate or bit depth")
	}

	numSamples := header.Subchunk2Size / uint32(header.BitsPerSample/8)
	duration := float64(numSamples) / float64(header.SampleRate)

	return &WAVInfo{
		SampleRate:    header.SampleRate,
		Channels:      header.NumChannels,
		BitsPerSample: header.BitsPerSample,
		Duration:      duration,
		DataSize:      header.Subchunk2Size,
		NumSamples:    numSamples,
	}, nil
}
