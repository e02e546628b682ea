// Package config provides configuration loading and validation for the rewind capture service.
// It handles YAML-based configuration split into sections for the audio format, speech
// detection, the capture device, file output, the HTTP API, and logging. Each section
// validates its own ranges and converts itself to the parameter structs the rest of the
// service consumes.
package config
