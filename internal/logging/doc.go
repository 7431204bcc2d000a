// Package logging assembles the slog loggers used across archivist.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// context helpers that tag log lines with queue item IDs, stages and
// correlation IDs. NewNop gives tests and optional wiring a logger that
// cannot fail.
package logging
