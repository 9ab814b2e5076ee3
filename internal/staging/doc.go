// Package staging manages the per-session work directories kept under
// staging_dir: listing them for status output and pruning the ones an
// interrupted audit left behind.
package staging
