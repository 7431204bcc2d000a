// Package queue persists queued recordings in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages the database connection, schema initialization, stats
// queries, heartbeat tracking, stuck-item recovery and status transitions.
// Each item carries the recording it describes (source, destination, format,
// device metadata) plus the last status the archive pipeline published for it,
// so `queue list` can show progress without talking to the runner.
//
// The database is transient storage for in-flight archives rather than a
// catalogue of the library. Schema changes bump the version in schema.go;
// users clear the database to adopt the new schema.
package queue
