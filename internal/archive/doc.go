// Package archive runs one recording from the device to its destination
// file.
//
// A run moves through Connecting, Downloading and Downloaded while holding
// the process-wide download slot, then Remuxing, FindingCommercials,
// RemovingCommercials and Transcoding while holding the processing slot.
// Every transition is published to the Recording, which refuses to move
// backwards. Failures end in Failed with a user-facing summary; cancellation
// ends in Cancelled and is not an error.
package archive
