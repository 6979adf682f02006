// Package functest is the framework functional tests are written against.
// A test embeds Base, declares its streams and branch graph, and drives
// Perforce and the merge service through Base's helpers; Runner sequences
// a set of tests through setup, run and verify with idle waits in between.
package functest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/mergewatch/internal/branchstate"
	"github.com/steveyegge/mergewatch/internal/idle"
	"github.com/steveyegge/mergewatch/internal/logging"
	"github.com/steveyegge/mergewatch/internal/notification"
	"github.com/steveyegge/mergewatch/internal/p4"
	"github.com/steveyegge/mergewatch/internal/rmapi"
	"github.com/steveyegge/mergewatch/internal/scenario"
	"github.com/steveyegge/mergewatch/internal/workspace"
)

// DefaultUser owns the workspaces tests submit from. Its clients also supply
// the watermarks idle checks compare against.
const DefaultUser = "testuser1"

var (
	// ErrNotBlocked is returned by EnsureBlocked.
	ErrNotBlocked = errors.New("isn't blocked")
	// ErrBlocked is returned by EnsureNotBlocked.
	ErrBlocked = errors.New("is blocked")
	// ErrUnexpectedRevision is returned by CheckHeadRevision.
	ErrUnexpectedRevision = errors.New("unexpected head revision")
)

// Server is the Perforce surface tests use.
type Server interface {
	workspace.Transport
	Stream(ctx context.Context, spec string) error
	Depot(ctx context.Context, spec string) error
	Fstat(ctx context.Context, depotPath string) (string, error)
}

var _ Server = (*p4.Perforce)(nil)

// Env is what every test in a run shares.
type Env struct {
	P4             Server
	API            rmapi.API
	Notify         *notification.Client
	Bot            string
	WorkspacesRoot string
	Logger         *slog.Logger
	Wait           idle.WaitOptions
}

// Test is one functional test. Setup provisions streams and seeds files,
// Run submits the changes under test and Verify checks the outcome once
// the service has settled.
type Test interface {
	Name() string
	Setup(ctx context.Context) error
	Run(ctx context.Context) error
	Verify(ctx context.Context) error
	Branches() []scenario.BranchSpec
	Edges() []scenario.EdgeProperties
	Harness() *Base
}

// Base carries per-test state and the helpers tests are written with.
// Embed it and call Init from the test's constructor.
type Base struct {
	Env
	scenario.Builder

	Log     *slog.Logger
	clients *workspace.Registry
	graph   scenario.Graph
}

// Init binds the test to env under name.
func (b *Base) Init(env Env, name string) {
	b.Env = env
	b.Builder = scenario.Builder{TestName: name, WorkspacesRoot: env.WorkspacesRoot}
	logger := env.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b.Log = logging.ForTest(logger, name)
	b.clients = workspace.NewRegistry()
}

func (b *Base) Name() string { return b.TestName }

// Harness returns b. Runner uses it to reach the helpers of embedded Bases.
func (b *Base) Harness() *Base { return b }

// Edges defaults to no edge overrides.
func (b *Base) Edges() []scenario.EdgeProperties { return nil }

// Graph returns the nodes and edges idle checks cover.
func (b *Base) Graph() scenario.Graph { return b.graph }

// P4Client registers a workspace session for user on stream. Nothing is
// created on the server until Create.
func (b *Base) P4Client(user, stream, depot string) (*workspace.Client, error) {
	ws, root := b.ClientWorkspace(user, stream, depot)
	return b.clients.Add(workspace.NewClient(b.P4, user, ws, root, b.StreamPath(stream, depot), stream))
}

// CreateDepot creates the stream depot name, or the test's own depot when
// name is empty.
func (b *Base) CreateDepot(ctx context.Context, name string) error {
	return b.P4.Depot(ctx, b.DepotSpec(name))
}

// CreateStreamsAndWorkspaces creates streams in order (parents first), then
// a workspace per user per stream concurrently. No users means DefaultUser.
func (b *Base) CreateStreamsAndWorkspaces(ctx context.Context, streams []scenario.Stream, depot string, users ...string) error {
	for _, s := range streams {
		if s.DepotName == "" {
			s.DepotName = depot
		}
		if err := b.P4.Stream(ctx, b.StreamSpec(s)); err != nil {
			return fmt.Errorf("create stream %s: %w", b.StreamPath(s.Name, s.DepotName), err)
		}
	}

	if len(users) == 0 {
		users = []string{DefaultUser}
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, user := range users {
		for _, s := range streams {
			c, err := b.P4Client(user, s.Name, depot)
			if err != nil {
				return err
			}
			g.Go(func() error {
				return c.Create(gctx, scenario.ClientSpec(c.Workspace, c.User, c.Root, c.Stream))
			})
		}
	}
	return g.Wait()
}

// Client returns the session for user on stream. An empty user means
// DefaultUser.
func (b *Base) Client(stream, user, depot string) (*workspace.Client, error) {
	if user == "" {
		user = DefaultUser
	}
	c, err := b.clients.Get(user, b.StreamPath(stream, depot))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.TestName, err)
	}
	return c, nil
}

// BranchState fetches the state of stream's node.
func (b *Base) BranchState(ctx context.Context, stream string) (*branchstate.BranchState, error) {
	return b.API.BranchState(ctx, b.Bot, strings.ToUpper(b.FullBranchName(stream)))
}

// EdgeState fetches the state of the edge source -> target.
func (b *Base) EdgeState(ctx context.Context, source, target string) (*branchstate.EdgeState, error) {
	bs, err := b.BranchState(ctx, source)
	if err != nil {
		return nil, err
	}
	return bs.Edge(b.FullBranchName(target))
}

// EnsureBlocked fails unless the node for source is blocked, or the edge
// source -> target when target is non-empty.
func (b *Base) EnsureBlocked(ctx context.Context, source, target string) error {
	if target != "" {
		name := scenario.Edge{Source: source, Target: target}.String()
		b.Log.Info("Ensuring " + name + " is blocked")
		es, err := b.EdgeState(ctx, source, target)
		if err != nil {
			return err
		}
		if !es.IsBlocked() {
			return fmt.Errorf("%s %w", name, ErrNotBlocked)
		}
		return nil
	}

	b.Log.Info("Ensuring " + source + " is blocked")
	bs, err := b.BranchState(ctx, source)
	if err != nil {
		return err
	}
	if !bs.IsBlocked() {
		return fmt.Errorf("%s %w", source, ErrNotBlocked)
	}
	return nil
}

// EnsureNotBlocked fails if the node for source is blocked or, when target
// is non-empty, the edge source -> target is.
func (b *Base) EnsureNotBlocked(ctx context.Context, source, target string) error {
	bs, err := b.BranchState(ctx, source)
	if err != nil {
		return err
	}
	if target == "" {
		b.Log.Info("Ensuring " + source + " isn't blocked")
	} else {
		b.Log.Info("Ensuring " + scenario.Edge{Source: source, Target: target}.String() + " is not blocked")
	}
	if bs.IsBlocked() {
		return fmt.Errorf("%s (node) %w", source, ErrBlocked)
	}
	if target == "" {
		return nil
	}
	es, err := bs.Edge(b.FullBranchName(target))
	if err != nil {
		return err
	}
	if es.IsBlocked() {
		return fmt.Errorf("%s %w", scenario.Edge{Source: source, Target: target}, ErrBlocked)
	}
	return nil
}

// CheckHeadRevision fails unless filename on stream is at revision
// expected. An expected revision of 0 or less means the file must not
// exist.
func (b *Base) CheckHeadRevision(ctx context.Context, stream, filename string, expected int, depot string) error {
	path := b.StreamPath(stream, depot) + "/" + filename
	b.Log.Info(fmt.Sprintf("Ensuring %s has exactly %d revisions", path, expected))

	out, err := b.P4.Fstat(ctx, path)
	if expected <= 0 {
		result := out
		if err != nil {
			result = err.Error()
		}
		if !strings.Contains(result, "no such file(s).") {
			return fmt.Errorf("expected no revision of %s. Perforce returned:\n%s", path, result)
		}
		return nil
	}
	if err != nil {
		return err
	}

	head := -1
	if recs := p4.ParseZtag(out); len(recs) > 0 {
		if n, err := strconv.Atoi(recs[0]["headRev"]); err == nil {
			head = n
		}
	}
	if head != expected {
		return fmt.Errorf("%w of %s (expected: %d, actual: %d)", ErrUnexpectedRevision, path, expected, head)
	}
	return nil
}

// RootDataClient creates the admin session on the stream holding bot
// branch maps.
func (b *Base) RootDataClient(ctx context.Context) (*workspace.Client, error) {
	return rootDataClient(ctx, b.P4, b.Env.WorkspacesRoot)
}

func rootDataClient(ctx context.Context, srv Server, root string) (*workspace.Client, error) {
	ws := scenario.DataWorkspace
	c := workspace.NewClient(srv, scenario.DataUser, ws, filepath.Join(root, ws), scenario.DataStream, scenario.DataStreamName)
	if err := c.Create(ctx, scenario.ClientSpec(c.Workspace, c.User, c.Root, c.Stream)); err != nil {
		return nil, fmt.Errorf("create branch map workspace: %w", err)
	}
	return c, nil
}

// AddTargetBranches adds branches to the bot's live branch map, flowing
// from from, and extends the graph idle checks cover. The map file must
// already be in the data workspace.
func (b *Base) AddTargetBranches(ctx context.Context, branches []scenario.BranchSpec, from string, edges []scenario.EdgeProperties) error {
	c, err := b.RootDataClient(ctx)
	if err != nil {
		return err
	}
	file := scenario.BranchMapFile(b.Bot)
	content, err := workspace.ReadFile(c, file)
	if err != nil {
		return err
	}
	bm, err := scenario.ParseBranchMap([]byte(content))
	if err != nil {
		return err
	}
	source := b.FullBranchName(from)
	if err := bm.AddTargetBranches(source, branches, edges); err != nil {
		return err
	}
	data, err := bm.Marshal()
	if err != nil {
		return err
	}
	if _, err := workspace.EditFileAndSubmit(ctx, c, file, string(data), "added branch"); err != nil {
		return fmt.Errorf("submit %s: %w", file, err)
	}

	added := scenario.NewGraph(branches)
	for _, br := range branches {
		added.Edges = append(added.Edges, scenario.Edge{Source: strings.ToUpper(source), Target: strings.ToUpper(br.Name)})
	}
	b.graph = b.graph.Merge(added)
	return nil
}

// StoreNodesAndEdges records the graph specs declare for idle checks.
func (b *Base) StoreNodesAndEdges(specs []scenario.BranchSpec) {
	b.graph = scenario.NewGraph(specs)
}

// Poller returns an idle poller over the test's graph, watermarked by the
// DefaultUser clients.
func (b *Base) Poller() *idle.Poller {
	marks := make(map[string]idle.WatermarkSource)
	for _, c := range b.clients.ForUser(DefaultUser) {
		marks[strings.ToUpper(b.FullBranchName(c.Name))] = c
	}
	return &idle.Poller{
		Source:     b.API,
		Bot:        b.Bot,
		Graph:      b.graph,
		Watermarks: marks,
		Logger:     b.Log,
	}
}

// WaitForIdle blocks until the service has caught up with every change on
// the test's streams. dump logs the reasons it is busy on the first check.
func (b *Base) WaitForIdle(ctx context.Context, dump bool) error {
	opts := b.Wait
	opts.Dump = dump
	return b.Poller().Wait(ctx, opts)
}
