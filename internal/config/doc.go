// Package config loads, normalizes, and validates tally configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a .env file when present, and honours
// environment fallbacks such as TALLY_API_KEY and OPENROUTER_API_KEY. The
// Config type centralizes every knob the CLI and daemon need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
