// Package storage persists extracted speech as timestamped WAV files and
// reads WAV files back in for offline processing. It keeps save statistics
// for the status endpoint and doubles as the pipeline's debug dump sink.
package storage
