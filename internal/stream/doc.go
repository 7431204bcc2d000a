// Package stream moves a recording from a network response to a file on disk
// through a decoder without buffering the whole payload.
//
// A bounded chunk Pipe sits between the network loop, which runs on the
// caller's goroutine, and the decode goroutine. When the decoder stalls the
// pipe fills and the network loop blocks, which in turn stops reading from
// the connection. A decoder that exits early closes the pipe's read side so
// the network loop fails on its next write instead of filling a pipe nobody
// drains.
package stream
