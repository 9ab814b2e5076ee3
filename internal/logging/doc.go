// Package logging assembles the slog loggers used by tally.
//
// It owns the console and JSON handlers, the fan-out handler that mirrors
// records into a StreamHub, and the context helpers that tag lines with the
// audit ID and pipeline stage. The StreamHub doubles as the per-audit session
// log: it is reset when an audit starts and polled by the dashboard and CLI.
package logging
