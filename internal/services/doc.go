// Package services holds the cross-cutting helpers shared by the archive
// pipeline, the workflow manager and the CLI.
//
// Key responsibilities:
//   - Context helpers that stamp queue item IDs, stage names, and correlation
//     identifiers for logging.
//   - Error markers plus the Wrap helper, which pairs a short user-facing
//     summary with the detailed internal cause and any captured tool output.
package services
