package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// CheckComskipIni reports the comskip.ini that comskip will be pointed at.
// The file is expected next to the comskip executable, after resolving PATH
// lookups and symlinks.
func CheckComskipIni(comskipCommand string) Status {
	result := Status{
		Name:        "comskip.ini",
		Description: "Detection settings read by comskip",
		Optional:    true,
	}
	binary := strings.TrimSpace(comskipCommand)
	if binary == "" {
		result.Detail = "comskip not configured"
		return result
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		result.Command = binary
		result.Detail = fmt.Sprintf("binary %q not found", binary)
		return result
	}
	if real, err := filepath.EvalSymlinks(resolved); err == nil {
		resolved = real
	}
	candidate := filepath.Join(filepath.Dir(resolved), "comskip.ini")
	result.Command = candidate
	info, err := os.Stat(candidate)
	if err != nil || !isRegular(info) {
		result.Detail = fmt.Sprintf("%s missing; comskip will use its built-in defaults", candidate)
		return result
	}
	result.Available = true
	return result
}

// IsExecutable reports whether info describes a file the current platform
// will run.
func IsExecutable(info os.FileInfo) bool {
	if !isRegular(info) {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

func isRegular(info os.FileInfo) bool {
	return info != nil && info.Mode().IsRegular()
}
