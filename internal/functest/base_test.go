package functest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/mergewatch/internal/functest"
	"github.com/steveyegge/mergewatch/internal/idle"
	"github.com/steveyegge/mergewatch/internal/notification"
	"github.com/steveyegge/mergewatch/internal/rmapi"
	"github.com/steveyegge/mergewatch/internal/scenario"
	"github.com/steveyegge/mergewatch/internal/testutil"
	"github.com/steveyegge/mergewatch/internal/workspace"
)

const bot = "FUNCTIONALTEST"

type fixture struct {
	env functest.Env
	p4  *testutil.FakeP4
	svc *testutil.MergeService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	svc := testutil.NewMergeService()
	t.Cleanup(svc.Close)
	f := testutil.NewFakeP4()
	return &fixture{
		p4:  f,
		svc: svc,
		env: functest.Env{
			P4:             f,
			API:            rmapi.NewClient(svc.URL()),
			Notify:         notification.NewClient(svc.URL()),
			Bot:            bot,
			WorkspacesRoot: t.TempDir(),
			Wait:           idle.WaitOptions{Attempts: 3, InitialInterval: time.Millisecond},
		},
	}
}

func (fx *fixture) base(name string) *functest.Base {
	b := &functest.Base{}
	b.Init(fx.env, name)
	return b
}

var streams = []scenario.Stream{
	{Name: "Main", Type: scenario.Mainline},
	{Name: "Dev", Type: scenario.Development, Parent: "Main"},
}

func TestCreateStreamsAndWorkspaces(t *testing.T) {
	fx := newFixture(t)
	b := fx.base("Demo")
	ctx := context.Background()

	require.NoError(t, b.CreateDepot(ctx, ""))
	require.NoError(t, b.CreateStreamsAndWorkspaces(ctx, streams, "", "testuser1", "testuser2"))

	specs := fx.p4.Specs("stream")
	require.Len(t, specs, 2)
	assert.Contains(t, specs[0], "Stream: //Demo/Main")
	assert.Contains(t, specs[1], "Parent: //Demo/Main")
	assert.Contains(t, fx.p4.Specs("depot")[0], "Depot: Demo")
	assert.Equal(t, []string{
		"testuser1_Demo_Dev", "testuser1_Demo_Main",
		"testuser2_Demo_Dev", "testuser2_Demo_Main",
	}, fx.p4.Clients())

	dev, err := b.Client("Dev", "", "")
	require.NoError(t, err)
	assert.Equal(t, "testuser1_Demo_Dev", dev.Workspace)
	assert.Equal(t, "//Demo/Dev", dev.Stream)
	assert.DirExists(t, dev.Root)

	_, err = b.Client("Dev", "nobody", "")
	assert.EqualError(t, err, "Demo: nobody has no clients set up in client mappings")
}

func TestClientBeforeSetup(t *testing.T) {
	b := newFixture(t).base("Demo")
	_, err := b.Client("Main", "", "")
	assert.EqualError(t, err, "Demo: no clients set up")
}

func TestEnsureBlocked(t *testing.T) {
	fx := newFixture(t)
	b := fx.base("Demo")
	ctx := context.Background()
	fx.svc.SetBranch("DemoMain", testutil.Branch{
		Name:  "DemoMain",
		Edges: map[string]testutil.Edge{"DemoDev": {Blocked: true, ConflictCL: 7}},
	})
	fx.svc.SetBranch("DemoDev", testutil.Branch{Name: "DemoDev", Blocked: true, Edges: map[string]testutil.Edge{}})

	assert.NoError(t, b.EnsureBlocked(ctx, "Main", "Dev"))
	assert.NoError(t, b.EnsureBlocked(ctx, "Dev", ""))
	assert.ErrorIs(t, b.EnsureBlocked(ctx, "Main", ""), functest.ErrNotBlocked)

	err := b.EnsureNotBlocked(ctx, "Main", "Dev")
	assert.ErrorIs(t, err, functest.ErrBlocked)
	assert.EqualError(t, err, "Main -> Dev is blocked")
	assert.NoError(t, b.EnsureNotBlocked(ctx, "Main", ""))
	assert.EqualError(t, b.EnsureNotBlocked(ctx, "Dev", ""), "Dev (node) is blocked")

	es, err := b.EdgeState(ctx, "Main", "Dev")
	require.NoError(t, err)
	cl, ok := es.ConflictCL()
	assert.True(t, ok)
	assert.Equal(t, 7, cl)
}

func TestEnsureNotBlockedMissingEdge(t *testing.T) {
	fx := newFixture(t)
	fx.svc.SetBranch("DemoMain", testutil.Branch{Name: "DemoMain", Edges: map[string]testutil.Edge{}})
	err := fx.base("Demo").EnsureNotBlocked(context.Background(), "Main", "Dev")
	assert.ErrorContains(t, err, "edge not found")
}

func TestCheckHeadRevision(t *testing.T) {
	fx := newFixture(t)
	b := fx.base("Demo")
	ctx := context.Background()
	fx.p4.SubmitAs("//Demo/Main", "u", "one", "a.txt")
	fx.p4.SubmitAs("//Demo/Main", "u", "two", "a.txt")

	assert.NoError(t, b.CheckHeadRevision(ctx, "Main", "a.txt", 2, ""))
	assert.NoError(t, b.CheckHeadRevision(ctx, "Main", "missing.txt", 0, ""))

	err := b.CheckHeadRevision(ctx, "Main", "a.txt", 3, "")
	assert.ErrorIs(t, err, functest.ErrUnexpectedRevision)
	assert.ErrorContains(t, err, "(expected: 3, actual: 2)")

	err = b.CheckHeadRevision(ctx, "Main", "a.txt", 0, "")
	assert.ErrorContains(t, err, "expected no revision of //Demo/Main/a.txt")

	fx.p4.Fail("fstat", assert.AnError)
	assert.ErrorIs(t, b.CheckHeadRevision(ctx, "Main", "a.txt", 1, ""), assert.AnError)
}

func TestAddTargetBranches(t *testing.T) {
	fx := newFixture(t)
	b := fx.base("Demo")
	ctx := context.Background()

	initial := []scenario.BranchSpec{b.BranchDef("Main", nil, false)}
	b.StoreNodesAndEdges(initial)
	bm, err := scenario.NewBranchMap(scenario.DefaultBotSettings(), initial, nil)
	require.NoError(t, err)
	data, err := bm.Marshal()
	require.NoError(t, err)
	root, err := b.RootDataClient(ctx)
	require.NoError(t, err)
	file := scenario.BranchMapFile(bot)
	_, err = workspace.AddFileAndSubmit(ctx, root, file, string(data), false)
	require.NoError(t, err)

	feature := b.BranchDef("Feature", nil, false)
	edge := scenario.EdgeProperties{From: "DemoMain", To: "DemoFeature", InitialCL: 3}
	require.NoError(t, b.AddTargetBranches(ctx, []scenario.BranchSpec{feature}, "Main", []scenario.EdgeProperties{edge}))

	raw, err := os.ReadFile(filepath.Join(fx.env.WorkspacesRoot, scenario.DataWorkspace, file))
	require.NoError(t, err)
	updated, err := scenario.ParseBranchMap(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"DemoMain", "DemoFeature"}, updated.BranchNames())
	assert.Equal(t, []string{"DemoFeature"}, updated.FlowsTo("DemoMain"))
	assert.Equal(t, 1, updated.EdgeCount())

	changes := fx.p4.ChangesSince(scenario.DataStream, 0)
	require.Len(t, changes, 2)
	assert.Contains(t, changes[1].Desc, "#robomerge added branch")

	g := b.Graph()
	assert.Equal(t, []string{"DEMOMAIN", "DEMOFEATURE"}, g.Nodes)
	assert.Equal(t, []scenario.Edge{{Source: "DEMOMAIN", Target: "DEMOFEATURE"}}, g.Edges)
}

func TestAddTargetBranchesWithoutMap(t *testing.T) {
	b := newFixture(t).base("Demo")
	err := b.AddTargetBranches(context.Background(), nil, "Main", nil)
	assert.ErrorContains(t, err, "read functionaltest.branchmap.json")
}

func setupMainDev(t *testing.T, fx *fixture, name string) *functest.Base {
	t.Helper()
	b := fx.base(name)
	require.NoError(t, b.CreateStreamsAndWorkspaces(context.Background(), streams, ""))
	b.StoreNodesAndEdges([]scenario.BranchSpec{
		b.BranchDef("Main", []string{"Dev"}, false),
		b.BranchDef("Dev", nil, false),
	})
	return b
}

func TestWaitForIdle(t *testing.T) {
	fx := newFixture(t)
	b := setupMainDev(t, fx, "Demo")
	cl := fx.p4.SubmitAs("//Demo/Main", "testuser1", "edit", "a.txt")

	fx.svc.SetBranch("DemoDev", testutil.Branch{Name: "DemoDev", Edges: map[string]testutil.Edge{}})
	fx.svc.SetBranch("DemoMain", testutil.Branch{
		Name:   "DemoMain",
		LastCL: cl,
		Edges:  map[string]testutil.Edge{"DemoDev": {LastCL: cl - 1}},
	})
	assert.ErrorIs(t, b.WaitForIdle(context.Background(), false), idle.ErrNeverSettled)

	fx.svc.SetBranch("DemoMain", testutil.Branch{
		Name:   "DemoMain",
		LastCL: cl,
		Edges:  map[string]testutil.Edge{"DemoDev": {LastCL: cl}},
	})
	assert.NoError(t, b.WaitForIdle(context.Background(), true))
}
