// Package workflow drains the recording queue through the archive pipeline.
//
// The Manager claims pending items, runs up to max_active_runs pipelines at
// once (all sharing one download slot and one processing slot, so extra runs
// simply wait their turn), persists each run's status back to the queue at a
// throttled rate, keeps heartbeats fresh, and emits notifications when a
// recording finishes or the queue drains. Running items can be cancelled by
// ID; the pipeline cleans up and the item ends up cancelled.
package workflow
