// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// The archive pipeline uses it to measure how far a recording's video stream
// starts after its audio, so commercial cut points line up with the picture.
package ffprobe
