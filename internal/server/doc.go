// Package server exposes a single audit session over HTTP for the tally
// daemon: evidence upload, audit start, status and log polling, results,
// certificates and the optional history archive.
//
// Only one daemon may run per state directory; Start takes a file lock and
// fails fast when another instance holds it.
package server
