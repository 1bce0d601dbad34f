package executor

import (
	"fmt"
	"runtime"
	"slices"

	"browserfetch/internal/download"
)

// Platforms accepted in a download target.
var Platforms = []string{"win64", "win32", "mac_arm", "mac_x64", "linux64", "linux"}

// Platform maps an OS/arch pair onto the download platform identifier.
func Platform(goos, goarch string) string {
	switch goos {
	case "windows":
		switch goarch {
		case "amd64":
			return "win64"
		case "386":
			return "win32"
		default:
			return "windows"
		}
	case "darwin":
		if goarch == "arm64" {
			return "mac_arm"
		}
		return "mac_x64"
	case "linux":
		if goarch == "amd64" {
			return "linux64"
		}
		return "linux"
	default:
		return "unknown"
	}
}

// CurrentPlatform is Platform for the running binary.
func CurrentPlatform() string {
	return Platform(runtime.GOOS, runtime.GOARCH)
}

// PlatformOS returns the GOOS value a platform identifier targets.
func PlatformOS(platform string) string {
	switch platform {
	case "win64", "win32", "windows":
		return "windows"
	case "mac_arm", "mac_x64":
		return "darwin"
	case "linux64", "linux":
		return "linux"
	default:
		return runtime.GOOS
	}
}

// ValidateTarget rejects unknown browsers and platforms with messages the
// classifier maps to application errors.
func ValidateTarget(target download.Target) error {
	if !target.Browser.Valid() {
		return fmt.Errorf("invalid browser type: %s", target.Browser)
	}
	if !slices.Contains(Platforms, target.Platform) {
		return fmt.Errorf("invalid platform: %s", target.Platform)
	}
	if target.Version == "" {
		return fmt.Errorf("invalid version: empty")
	}
	return nil
}
