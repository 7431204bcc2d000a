// Package edl models the time segments produced by commercial detection.
//
// A cut list names the ranges to remove from a recording; Keep turns it into
// the complementary ranges to retain and TrimArgs renders each kept range as
// the ffmpeg seek and duration arguments used by the per-part trim pass.
package edl
