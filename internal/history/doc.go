// Package history archives finished audits in a local SQLite database.
//
// Only immutable results are stored, after an audit completes. The in-flight
// session, its log and staged evidence are never written here. The archive is
// opt-in via [history] enabled in the config file.
package history
