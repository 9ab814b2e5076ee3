// Package render turns audit results and session state into the terminal
// report printed by the CLI and the HTML dashboard served by the daemon.
//
// Both renderers share ChartRows, which scales claimed and actual quantities
// against the largest known value so mismatched items can be drawn side by
// side.
package render
