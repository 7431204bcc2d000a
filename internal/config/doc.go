// Package config loads, normalizes, and validates archivist configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the ARCHIVIST_MAK environment
// fallback for the device media access key. Always obtain settings through
// Load so downstream code receives expanded paths and validated limits.
package config
