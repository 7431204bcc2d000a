// Package tivo talks to the recording device.
//
// A Locator resolves a recording to its download URL, Client performs the
// authenticated session and download requests, and TransportDecoder walks the
// downloaded transport stream packet by packet, handing scrambled payloads to
// a PacketCipher. The cipher itself is supplied by the caller.
package tivo
