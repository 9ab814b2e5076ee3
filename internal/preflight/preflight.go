package preflight

import (
	"context"

	"golang.org/x/sync/errgroup"

	"tally/internal/config"
	"tally/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	// Degraded marks an optional check that passed only because the
	// dependency is optional.
	Degraded bool
	Detail   string
}

// Options selects which checks Run performs.
type Options struct {
	// SkipLLM omits the network round trip to the reasoning service.
	SkipLLM bool
}

// Run executes all applicable checks concurrently. Results are returned in a
// fixed order: directories, tools, then the reasoning service.
func Run(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}
	var checks []func(context.Context) Result
	for _, dir := range []struct{ name, path string }{
		{"Staging directory", cfg.Paths.StagingDir},
		{"State directory", cfg.Paths.StateDir},
		{"Certificate directory", cfg.Paths.CertificateDir},
		{"Log directory", cfg.Paths.LogDir},
	} {
		checks = append(checks, func(context.Context) Result {
			return CheckDirectoryAccess(dir.name, dir.path)
		})
	}
	for _, status := range deps.CheckTools(cfg) {
		checks = append(checks, func(context.Context) Result {
			return CheckTool(status)
		})
	}
	if !opts.SkipLLM {
		checks = append(checks, func(ctx context.Context) Result {
			return CheckLLM(ctx, "Reasoning service", cfg.GetLLM())
		})
	}

	results := make([]Result, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, check := range checks {
		g.Go(func() error {
			results[i] = check(gctx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// AllPassed reports whether every check passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Failures returns the checks that did not pass.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
