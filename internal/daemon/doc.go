// Package daemon owns the long-running `archivist run` process.
//
// It wires configuration, queue storage, the device client, the archive
// pipeline and the workflow manager into a single lifecycle, holds a flock
// lock so only one runner drains a queue database, and serves the Prometheus
// endpoint when metrics.bind is set.
package daemon
