// Command archivist downloads recordings from a networked video recorder
// and archives them into a media library.
//
// The queue subcommands edit the SQLite queue directly; `archivist run`
// drains it. `archivist fetch` archives a single recording in the
// foreground without touching the queue.
package main
