// Package session is the state container behind both the CLI and the daemon.
//
// A Session holds the staged ledger and video, the lifecycle Status, the
// latest audit.Result and a session log. Run (or Start, for background
// execution) resets the log and discards the previous result before sampling
// frames and submitting the request, so a stale verdict is never reported as
// current. Only one audit runs at a time; a second Run fails fast with
// ErrAuditInFlight. Missing evidence fails with an input error and leaves the
// state untouched.
package session
