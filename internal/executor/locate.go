package executor

import (
	"path/filepath"
	"runtime"

	"browserfetch/internal/download"
	"browserfetch/internal/fileutil"
)

var executableCandidates = map[download.Browser]map[string][]string{
	download.Chrome: {
		"windows": {"chrome.exe", "Application/chrome.exe"},
		"darwin": {
			"Google Chrome.app/Contents/MacOS/Google Chrome",
			"chrome-mac/Google Chrome.app/Contents/MacOS/Google Chrome",
			"chrome-mac-arm64/Google Chrome.app/Contents/MacOS/Google Chrome",
			"chrome-mac-x64/Google Chrome.app/Contents/MacOS/Google Chrome",
		},
		"linux": {"chrome", "google-chrome", "chrome-linux/chrome"},
	},
	download.Chromium: {
		"windows": {"chrome.exe", "Application/chrome.exe"},
		"darwin": {
			"Chromium.app/Contents/MacOS/Chromium",
			"chrome-mac/Chromium.app/Contents/MacOS/Chromium",
		},
		"linux": {"chrome", "chromium", "chrome-linux/chrome"},
	},
	download.Firefox: {
		"windows": {"firefox.exe", "firefox/firefox.exe"},
		"darwin":  {"Firefox.app/Contents/MacOS/firefox"},
		"linux":   {"firefox"},
	},
	download.ChromeDriver: {
		"windows": {"chromedriver.exe"},
		"darwin":  {"chromedriver"},
		"linux":   {"chromedriver"},
	},
}

// Candidates lists executable paths relative to an install directory, most
// likely first.
func Candidates(browser download.Browser, goos string) []string {
	byOS, ok := executableCandidates[browser]
	if !ok {
		return nil
	}
	if paths, ok := byOS[goos]; ok {
		return paths
	}
	return byOS["linux"]
}

// FindExecutable returns the first candidate that exists under installPath,
// falling back to the first candidate when none does.
func FindExecutable(installPath string, browser download.Browser, goos string) string {
	candidates := Candidates(browser, goos)
	if len(candidates) == 0 {
		return installPath
	}
	for _, rel := range candidates {
		full := filepath.Join(installPath, filepath.FromSlash(rel))
		if fileutil.Exists(full) {
			return full
		}
	}
	return filepath.Join(installPath, filepath.FromSlash(candidates[0]))
}

// HostLocator is a download.Locator for the running OS.
func HostLocator(installPath string, browser download.Browser) string {
	return FindExecutable(installPath, browser, runtime.GOOS)
}
