// Package preflight provides readiness checks for the binaries, directories
// and reasoning service tally depends on.
//
// These checks run in two contexts:
//   - The CLI "tally status" command runs every check and prints a table.
//   - The daemon runs the local checks (SkipLLM) at start and logs failures
//     so a missing ffmpeg is reported before the first audit is attempted.
//
// Checks are independent and run concurrently.
package preflight
