package preflight

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v4/disk"
	"golang.org/x/sys/unix"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least
// minBytes available to unprivileged users.
func CheckFreeSpace(ctx context.Context, name, path string, minBytes uint64) Result {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	detail := fmt.Sprintf("%s free of %s", formatGiB(usage.Free), formatGiB(usage.Total))
	if usage.Free < minBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s (need %s)", detail, formatGiB(minBytes))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

func formatGiB(n uint64) string {
	return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
}
