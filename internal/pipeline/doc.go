// Package pipeline orchestrates speech extraction: a raw PCM snapshot is
// resampled to the classifier's native format, scored window by window,
// merged into padded speech segments, and returned as the concatenation of
// those segments' raw bytes. The package also measures extraction cost for
// sizing decisions.
package pipeline
