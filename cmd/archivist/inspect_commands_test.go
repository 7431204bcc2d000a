package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"archivist/internal/tsframe"
)

func TestCutlistCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "show.edl")
	content := "10.00\t20.00\t0\nnot a cut\n30.5 40 0\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write edl: %v", err)
	}

	out, _, err := runCLI(t, []string{"cutlist", path}, "")
	if err != nil {
		t.Fatalf("cutlist: %v", err)
	}
	requireContains(t, out, "Commercial breaks")
	requireContains(t, out, "30.50")
	requireContains(t, out, "end")

	out, _, err = runCLI(t, []string{"--json", "cutlist", "--offset", "1", path}, "")
	if err != nil {
		t.Fatalf("cutlist --json: %v", err)
	}
	var got struct {
		Breaks [][2]float64 `json:"breaks"`
		Keep   [][2]float64 `json:"keep"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(got.Breaks) != 2 || got.Breaks[0] != [2]float64{11, 21} {
		t.Fatalf("breaks = %v", got.Breaks)
	}
	if len(got.Keep) != 3 || got.Keep[2][1] != -1 {
		t.Fatalf("keep = %v", got.Keep)
	}
}

func TestCutlistWithoutBreaks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.edl")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write edl: %v", err)
	}
	out, _, err := runCLI(t, []string{"cutlist", path}, "")
	if err != nil {
		t.Fatalf("cutlist: %v", err)
	}
	requireContains(t, out, "whole recording is kept")
}

func frame(pid uint16, scrambled bool) []byte {
	b := make([]byte, tsframe.FrameSize)
	b[0] = tsframe.SyncByte
	b[1] = byte(pid>>8) & 0x1f
	b[2] = byte(pid)
	b[3] = 0x10
	if scrambled {
		b[3] |= 0x80
	}
	return b
}

func TestScanTransportStream(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(frame(0x0000, false))
	buf.Write(frame(0x0100, false))
	buf.Write(frame(0x0100, true))
	buf.Write([]byte("garbage!"))

	summary, err := scanTransportStream(&buf)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if summary.Frames != 3 || summary.Scrambled != 1 || summary.PIDs != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.ByType["PAT"] != 1 || summary.ByType["av/private"] != 2 {
		t.Fatalf("by type = %v", summary.ByType)
	}
	if summary.Error == "" {
		t.Fatal("expected framing error to be reported")
	}
}

func TestTSInfoCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.ts")
	data := append(frame(0x0011, false), frame(0x0200, false)...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write ts: %v", err)
	}
	out, _, err := runCLI(t, []string{"tsinfo", path}, "")
	if err != nil {
		t.Fatalf("tsinfo: %v", err)
	}
	requireContains(t, out, "Frames: 2")
	requireContains(t, out, "SDT")

	if _, _, err := runCLI(t, []string{"tsinfo", filepath.Join(t.TempDir(), "missing.ts")}, ""); err == nil {
		t.Fatal("expected error for missing file")
	}
}
