package archive

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Paths names every file a run creates next to its destination.
type Paths struct {
	Destination string
	Download    string
	Encrypted   string
	Fixed       string
	Cut         string
	Metadata    string
	CutList     string
	PartList    string
	Transcode   string

	stem string
}

// NewPaths derives the working files from destination. They share its
// directory and its name without the extension.
func NewPaths(destination string, f Format) Paths {
	stem := strings.TrimSuffix(destination, filepath.Ext(destination))
	p := Paths{
		Destination: destination,
		Download:    stem + ".download.ts",
		Encrypted:   stem + ".TiVo",
		Fixed:       stem + ".fixed.ts",
		Cut:         stem + ".cut.ts",
		Metadata:    stem + ".ts.txt",
		CutList:     stem + ".fixed.ffsplit",
		PartList:    stem + ".fixed.parts",
		stem:        stem,
	}
	if f.NeedsTranscode {
		p.Transcode = stem + ".transcode" + f.Extension
	}
	return p
}

// Part names the n-th (1-based) kept segment of the fixed file.
func (p Paths) Part(n int) string {
	return fmt.Sprintf("%s.fixed.part%02d.ts", p.stem, n)
}

// ComskipLeftovers are the files comskip writes beside its input.
func (p Paths) ComskipLeftovers() []string {
	return []string{
		p.stem + ".fixed.logo.txt",
		p.stem + ".fixed.log",
		p.stem + ".fixed.txt",
		p.CutList,
	}
}

// Intermediates are the working files removed when a run ends. The metadata
// sidecar is listed only when failed is set; a successful run leaves it next
// to the destination. The encrypted copy is kept when keepEncrypted is set.
func (p Paths) Intermediates(failed, keepEncrypted bool) []string {
	out := []string{p.Download, p.Fixed, p.Cut, p.PartList, p.Transcode}
	out = append(out, p.ComskipLeftovers()...)
	if failed {
		out = append(out, p.Metadata)
	}
	if !keepEncrypted && !strings.EqualFold(p.Encrypted, p.Destination) {
		out = append(out, p.Encrypted)
	}
	return out
}

var unsafeNameChars = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_",
)

// DefaultDestination names the library file for a recording titled title.
func DefaultDestination(libraryDir, title string, f Format) string {
	name := strings.Trim(unsafeNameChars.Replace(strings.TrimSpace(title)), ". ")
	if name == "" {
		name = "recording"
	}
	return filepath.Join(libraryDir, name+f.Extension)
}
