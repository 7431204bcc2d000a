// Package procexec runs external tools under cancellation.
//
// Each command starts in its own process group with stdout and stderr merged
// into one pipe. A reader goroutine splits the output into lines (on either
// '\n' or '\r', since ffmpeg and HandBrake redraw progress with carriage
// returns) and hands them to an Interpreter, which also decides which exit
// codes count as success. Cancelling the context kills the whole group and
// Run returns only after the process and the reader are both gone.
package procexec
