// Package preflight checks the filesystem state a run depends on.
//
// The workflow manager calls RunAll before claiming each queue item; while
// any check fails it leaves the queue alone and tries again later, so a
// full disk or an unmounted library does not turn every pending recording
// into a failure. `archivist deps` prints the same results.
package preflight
