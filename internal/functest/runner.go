package functest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/steveyegge/mergewatch/internal/scenario"
	"github.com/steveyegge/mergewatch/internal/workspace"
)

// Result is the outcome of one test.
type Result struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Runner takes a set of tests through setup, branch map registration, run
// and verify. A test that fails a phase is dropped from the later ones; the
// others carry on.
type Runner struct {
	Env   Env
	Tests []Test
	// Settings overrides the bot settings; nil means DefaultBotSettings.
	Settings *scenario.BotSettings
}

type tracked struct {
	test    Test
	err     error
	elapsed time.Duration
}

func (r *Runner) logger() *slog.Logger {
	if r.Env.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Env.Logger
}

// Run executes every test and returns one result per test, in order. The
// error joins the failures, each prefixed with its test's name; it is also
// non-nil when the branch map could not be registered.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	runs := make([]*tracked, len(r.Tests))
	for i, t := range r.Tests {
		t.Harness().StoreNodesAndEdges(t.Branches())
		runs[i] = &tracked{test: t}
	}

	r.phase(ctx, runs, "setup", func(ctx context.Context, t Test) error { return t.Setup(ctx) })

	if err := r.registerBranchMap(ctx, runs); err != nil {
		return r.results(runs), fmt.Errorf("register branch map: %w", err)
	}

	r.phase(ctx, runs, "initial wait", waitIdle)
	r.phase(ctx, runs, "run", func(ctx context.Context, t Test) error { return t.Run(ctx) })
	r.phase(ctx, runs, "wait", waitIdle)
	r.phase(ctx, runs, "verify", func(ctx context.Context, t Test) error { return t.Verify(ctx) })

	results := r.results(runs)
	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Name, res.Err))
		}
	}
	if n := len(errs); n > 0 {
		r.logger().Error(fmt.Sprintf("%d of %d tests failed", n, len(results)))
	}
	return results, errors.Join(errs...)
}

func waitIdle(ctx context.Context, t Test) error {
	return t.Harness().WaitForIdle(ctx, false)
}

func (r *Runner) phase(ctx context.Context, runs []*tracked, name string, fn func(context.Context, Test) error) {
	for _, run := range runs {
		if run.err != nil {
			continue
		}
		start := time.Now()
		err := fn(ctx, run.test)
		run.elapsed += time.Since(start)
		if err != nil {
			run.err = fmt.Errorf("%s: %w", name, err)
			run.test.Harness().Log.Error(run.err.Error())
		}
	}
}

func (r *Runner) results(runs []*tracked) []Result {
	out := make([]Result, len(runs))
	for i, run := range runs {
		out[i] = Result{Name: run.test.Name(), Err: run.err, Duration: run.elapsed}
	}
	return out
}

// registerBranchMap writes the branch map for the bot from the tests that
// are still running, replacing any previous one, so the service picks up
// their nodes.
func (r *Runner) registerBranchMap(ctx context.Context, runs []*tracked) error {
	var (
		branches []scenario.BranchSpec
		edges    []scenario.EdgeProperties
	)
	for _, run := range runs {
		if run.err != nil {
			continue
		}
		branches = append(branches, run.test.Branches()...)
		edges = append(edges, run.test.Edges()...)
	}

	settings := scenario.DefaultBotSettings()
	if r.Settings != nil {
		settings = *r.Settings
	}
	bm, err := scenario.NewBranchMap(settings, branches, edges)
	if err != nil {
		return err
	}
	data, err := bm.Marshal()
	if err != nil {
		return err
	}

	c, err := rootDataClient(ctx, r.Env.P4, r.Env.WorkspacesRoot)
	if err != nil {
		return err
	}
	file := scenario.BranchMapFile(r.Env.Bot)
	if _, err := c.Print(ctx, file); err != nil {
		_, err = workspace.AddFileAndSubmit(ctx, c, file, string(data), false)
		if err != nil {
			return fmt.Errorf("add %s: %w", file, err)
		}
	} else {
		if err := c.Sync(ctx); err != nil {
			return err
		}
		if _, err := workspace.EditFileAndSubmit(ctx, c, file, string(data), ""); err != nil {
			return fmt.Errorf("edit %s: %w", file, err)
		}
	}
	r.logger().Info(fmt.Sprintf("Registered %d branches for %s", len(branches), r.Env.Bot))
	return nil
}
