// Package services defines shared utilities consumed by the audit pipeline and
// its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp audit IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into input, parse, and media errors (and tool/config/transient failures
//     underneath them).
//
// Use these helpers when wiring new pipeline steps so error handling and
// observability stay uniform.
package services
