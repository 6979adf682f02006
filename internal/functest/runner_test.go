package functest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/mergewatch/internal/functest"
	"github.com/steveyegge/mergewatch/internal/scenario"
	"github.com/steveyegge/mergewatch/internal/testutil"
)

// scripted records each phase it is taken through and fails the ones
// listed in fail.
type scripted struct {
	functest.Base
	trace *[]string
	fail  map[string]error
}

func newScripted(fx *fixture, name string, trace *[]string, fail map[string]error) *scripted {
	t := &scripted{trace: trace, fail: fail}
	t.Init(fx.env, name)
	fx.svc.SetBranch(t.FullBranchName("Main"), testutil.Branch{Name: t.FullBranchName("Main")})
	return t
}

func (t *scripted) step(phase string) error {
	*t.trace = append(*t.trace, t.Name()+":"+phase)
	return t.fail[phase]
}

func (t *scripted) Setup(context.Context) error  { return t.step("setup") }
func (t *scripted) Run(context.Context) error    { return t.step("run") }
func (t *scripted) Verify(context.Context) error { return t.step("verify") }

func (t *scripted) Branches() []scenario.BranchSpec {
	return []scenario.BranchSpec{t.BranchDef("Main", nil, false)}
}

func readBranchMap(t *testing.T, fx *fixture) *scenario.BranchMap {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(fx.env.WorkspacesRoot, scenario.DataWorkspace, scenario.BranchMapFile(bot)))
	require.NoError(t, err)
	bm, err := scenario.ParseBranchMap(raw)
	require.NoError(t, err)
	return bm
}

func TestRunnerPhases(t *testing.T) {
	fx := newFixture(t)
	var trace []string
	r := &functest.Runner{
		Env: fx.env,
		Tests: []functest.Test{
			newScripted(fx, "A", &trace, nil),
			newScripted(fx, "B", &trace, map[string]error{"run": errors.New("boom")}),
		},
	}

	results, err := r.Run(context.Background())
	require.Error(t, err)
	assert.EqualError(t, err, "B: run: boom")

	assert.Equal(t, []string{
		"A:setup", "B:setup",
		"A:run", "B:run",
		"A:verify",
	}, trace)

	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].Name)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "B", results[1].Name)
	assert.EqualError(t, results[1].Err, "run: boom")

	bm := readBranchMap(t, fx)
	assert.Equal(t, []string{"AMain", "BMain"}, bm.BranchNames())
}

func TestRunnerExcludesFailedSetupFromBranchMap(t *testing.T) {
	fx := newFixture(t)
	var trace []string
	r := &functest.Runner{
		Env: fx.env,
		Tests: []functest.Test{
			newScripted(fx, "A", &trace, map[string]error{"setup": errors.New("no depot")}),
			newScripted(fx, "B", &trace, nil),
		},
	}

	results, err := r.Run(context.Background())
	assert.EqualError(t, err, "A: setup: no depot")
	assert.Equal(t, []string{"A:setup", "B:setup", "B:run", "B:verify"}, trace)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, []string{"BMain"}, readBranchMap(t, fx).BranchNames())
}

func TestRunnerReplacesBranchMap(t *testing.T) {
	fx := newFixture(t)
	var trace []string

	first := &functest.Runner{Env: fx.env, Tests: []functest.Test{newScripted(fx, "A", &trace, nil)}}
	_, err := first.Run(context.Background())
	require.NoError(t, err)

	settings := scenario.DefaultBotSettings()
	second := &functest.Runner{
		Env:      fx.env,
		Tests:    []functest.Test{newScripted(fx, "C", &trace, nil)},
		Settings: &settings,
	}
	_, err = second.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"CMain"}, readBranchMap(t, fx).BranchNames())
	changes := fx.p4.ChangesSince(scenario.DataStream, 0)
	require.Len(t, changes, 2)
	assert.Contains(t, changes[0].Desc, "Adding file")
	assert.Contains(t, changes[1].Desc, "Edited file")
}

func TestRunnerBranchMapFailure(t *testing.T) {
	fx := newFixture(t)
	var trace []string
	fx.p4.Fail("submit", errors.New("server down"))
	r := &functest.Runner{Env: fx.env, Tests: []functest.Test{newScripted(fx, "A", &trace, nil)}}

	results, err := r.Run(context.Background())
	assert.ErrorContains(t, err, "register branch map")
	assert.Equal(t, []string{"A:setup"}, trace)
	require.Len(t, results, 1)
}
