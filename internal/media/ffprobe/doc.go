// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs the binary and Parse decodes captured output. Helpers on
// Result pick the primary video stream and resolve its duration, which the
// frame sampler uses to place its capture offsets.
package ffprobe
