package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"browserfetch/internal/textutil"
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

// FreeBytes reports the space available to unprivileged users on the volume
// holding path.
func FreeBytes(path string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}

// CheckFreeSpace fails when the volume holding path has less than minBytes free.
func CheckFreeSpace(name, path string, minBytes int64) Result {
	free, err := FreeBytes(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	detail := fmt.Sprintf("%s free", textutil.FormatBytes(free))
	if minBytes > 0 && free < minBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s, need %s", detail, textutil.FormatBytes(minBytes))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckHelper verifies the helper interpreter is on PATH and the helper
// script is readable.
func CheckHelper(_ context.Context, command, script string) []Result {
	command = strings.TrimSpace(command)
	interp := Result{Name: "Helper runtime"}
	switch {
	case command == "":
		interp.Detail = "command not configured"
	default:
		if resolved, err := exec.LookPath(command); err != nil {
			interp.Detail = fmt.Sprintf("binary %q not found", command)
		} else {
			interp.Passed = true
			interp.Detail = resolved
		}
	}

	helper := Result{Name: "Helper script"}
	script = strings.TrimSpace(script)
	switch {
	case script == "":
		helper.Detail = "script not configured"
	default:
		if err := unix.Access(script, unix.R_OK); err != nil {
			helper.Detail = fmt.Sprintf("%s (error: %v)", script, err)
		} else {
			helper.Passed = true
			helper.Detail = script
		}
	}
	return []Result{interp, helper}
}
