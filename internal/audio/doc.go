// Package audio provides the PCM building blocks of the rewind recorder.
// It implements the fixed-capacity ring buffer that holds the most recent
// capture history, sample format conversion, linear resampling, and WAV
// encoding/decoding for saved output.
package audio
