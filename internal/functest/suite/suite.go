// Package suite holds the functional tests mergewatch ships and the
// manifest format that selects among them.
package suite

import (
	"context"
	"fmt"
	"sort"

	"github.com/steveyegge/mergewatch/internal/functest"
	"github.com/steveyegge/mergewatch/internal/scenario"
	"github.com/steveyegge/mergewatch/internal/workspace"
)

// Constructor builds a test bound to env.
type Constructor func(env functest.Env) functest.Test

var registry = map[string]Constructor{
	"SimpleMerge":    NewSimpleMerge,
	"StompBinary":    NewStompBinary,
	"ShelveConflict": NewShelveConflict,
	"ReconsiderNull": NewReconsiderNull,
}

// Names lists every known test in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds the named test.
func New(name string, env functest.Env) (functest.Test, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown test %q", name)
	}
	return ctor(env), nil
}

// mainDev is the two-stream layout most tests use: Dev is a development
// stream of Main and Main flows into it.
type mainDev struct {
	functest.Base
}

var mainDevStreams = []scenario.Stream{
	{Name: "Main", Type: scenario.Mainline},
	{Name: "Dev", Type: scenario.Development, Parent: "Main"},
}

func (t *mainDev) Branches() []scenario.BranchSpec {
	return []scenario.BranchSpec{
		t.BranchDef("Main", []string{"Dev"}, false),
		t.BranchDef("Dev", nil, false),
	}
}

// provision creates the depot, both streams and their workspaces, and
// returns the Main and Dev clients.
func (t *mainDev) provision(ctx context.Context) (main, dev *workspace.Client, err error) {
	if err := t.CreateDepot(ctx, ""); err != nil {
		return nil, nil, err
	}
	if err := t.CreateStreamsAndWorkspaces(ctx, mainDevStreams, ""); err != nil {
		return nil, nil, err
	}
	if main, err = t.Client("Main", "", ""); err != nil {
		return nil, nil, err
	}
	if dev, err = t.Client("Dev", "", ""); err != nil {
		return nil, nil, err
	}
	return main, dev, nil
}

// seed adds file to both streams independently, optionally editing the Dev
// copy so the two diverge.
func (t *mainDev) seed(ctx context.Context, file string, binary, diverge bool) error {
	main, dev, err := t.provision(ctx)
	if err != nil {
		return err
	}
	if _, err := workspace.AddFileAndSubmit(ctx, main, file, "Initial content", binary); err != nil {
		return err
	}
	if _, err := workspace.AddFileAndSubmit(ctx, dev, file, "Initial content", binary); err != nil {
		return err
	}
	if diverge {
		if _, err := workspace.EditFileAndSubmit(ctx, dev, file, "Dev content", ""); err != nil {
			return err
		}
	}
	return nil
}

func (t *mainDev) editMain(ctx context.Context, file, content, command string) (int, error) {
	main, err := t.Client("Main", "", "")
	if err != nil {
		return 0, err
	}
	return workspace.EditFileAndSubmit(ctx, main, file, content, command)
}
