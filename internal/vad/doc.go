// Package vad provides voice activity detection over captured PCM audio.
// A windowed driver feeds a stateful classifier and returns per-window
// speech probabilities that are identical whether the windows are scored
// sequentially or fanned out across workers; a merger turns those
// probabilities into padded byte segments of the original buffer.
package vad
