package tools

import (
	"context"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"github.com/shirou/gopsutil/v4/cpu"
)

// ComskipExitCommercialsFound is comskip's exit code when it found breaks.
const ComskipExitCommercialsFound = 1

// ComskipArgs runs commercial detection over input, writing its cut list and
// by-products into workDir.
func ComskipArgs(ini string, threads int, input, workDir string) []string {
	return []string{
		"--ini", ini,
		"--threads", strconv.Itoa(threads),
		"--ts", input,
		workDir,
	}
}

// ComskipIniPath returns the comskip.ini that sits next to the comskip
// executable. Bare executable names are resolved through PATH first.
func ComskipIniPath(binary string) string {
	resolved := binary
	if filepath.Base(binary) == binary {
		if found, err := exec.LookPath(binary); err == nil {
			resolved = found
		}
	}
	if real, err := filepath.EvalSymlinks(resolved); err == nil {
		resolved = real
	}
	return filepath.Join(filepath.Dir(resolved), "comskip.ini")
}

// ComskipThreads returns configured when positive, otherwise the number of
// logical CPUs (at least 1).
func ComskipThreads(ctx context.Context, configured int) int {
	if configured > 0 {
		return configured
	}
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

var comskipPercentPattern = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%`)

// ComskipProgress interprets comskip output. Exit code 0 (no breaks found)
// and 1 (breaks found) are both successes.
type ComskipProgress struct {
	onProgress ProgressFunc
	mu         sync.Mutex
	last       float64
}

// NewComskipProgress reports to fn, which may be nil.
func NewComskipProgress(fn ProgressFunc) *ComskipProgress {
	return &ComskipProgress{onProgress: fn, last: -1}
}

func (c *ComskipProgress) Consume(line string) {
	m := comskipPercentPattern.FindStringSubmatch(line)
	if m == nil || c.onProgress == nil {
		return
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return
	}
	fraction := clampFraction(pct / 100)
	c.mu.Lock()
	if fraction <= c.last {
		c.mu.Unlock()
		return
	}
	c.last = fraction
	c.mu.Unlock()
	c.onProgress(Progress{Fraction: fraction, ETA: Unknown})
}

func (c *ComskipProgress) AcceptExit(code int) bool {
	return code == 0 || code == ComskipExitCommercialsFound
}
