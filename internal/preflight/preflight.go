package preflight

import (
	"context"

	"browserfetch/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Install directory", cfg.Paths.InstallDir),
		CheckFreeSpace("Install volume", cfg.Paths.InstallDir, cfg.Download.MinFreeBytes),
	}

	switch cfg.Download.Executor {
	case config.ExecutorMirror:
		results = append(results, Result{Name: "Mirror bucket", Passed: cfg.Download.MirrorBucket != "", Detail: cfg.Download.MirrorBucket})
	default:
		results = append(results, CheckHelper(ctx, cfg.Download.HelperCommand, cfg.Download.HelperScript)...)
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
