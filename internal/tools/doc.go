// Package tools knows how to talk to ffmpeg, comskip and HandBrakeCLI.
//
// It builds their argument vectors and provides procexec interpreters that
// turn their console output into progress updates. Nothing here launches a
// process; the archive pipeline hands the results to procexec.Runner.
package tools
