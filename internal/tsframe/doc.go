// Package tsframe reads MPEG transport streams one 188-byte frame at a time.
//
// Each frame's 4-byte header is decoded field by field, the adaptation field
// (when flagged) is stepped over, and the remaining payload is exposed through
// a cursor that can never read past its own frame. A frame whose first byte
// is not the 0x47 sync marker ends the stream with ErrSyncLost; the reader
// never tries to resynchronise.
package tsframe
