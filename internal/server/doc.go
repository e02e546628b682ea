// Package server implements the HTTP API for the rewind capture service.
// It exposes health and status monitoring, a sanitized configuration echo,
// Prometheus metrics, and the save endpoint that snapshots the rolling
// buffer, extracts speech and persists it as a WAV file.
package server
