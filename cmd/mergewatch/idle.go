package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/mergewatch/internal/idle"
	"github.com/steveyegge/mergewatch/internal/scenario"
)

var dumpFlag bool

var waitIdleCmd = &cobra.Command{
	Use:   "wait-idle NODE...",
	Short: "Wait until the merge service has settled on the given nodes",
	Long: `Poll the named nodes until none has a status message or a queue and every
unblocked edge between them has caught up with the last change its source
processed. Exits non-zero if the service does not settle within the
configured attempts.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		api := newAPI(settings)
		graph, err := discoverGraph(args, func(node string) ([]string, error) {
			bs, err := api.BranchState(rootCtx, settings.Bot, node)
			if err != nil {
				return nil, err
			}
			return bs.EdgeTargets(), nil
		})
		if err != nil {
			return err
		}

		p := newIdlePoller(api, graph)
		opts := waitOptions(settings)
		opts.Dump = dumpFlag
		if err := p.Wait(rootCtx, opts); err != nil {
			return err
		}
		printf("%s idle\n", strings.Join(graph.Nodes, ", "))
		return nil
	},
}

// newIdlePoller polls graph with no workspaces to read watermarks from, so
// each edge is compared against its source node's own last change.
func newIdlePoller(src idle.StateSource, graph scenario.Graph) *idle.Poller {
	return &idle.Poller{
		Source:        src,
		Bot:           settings.Bot,
		Graph:         graph,
		Logger:        logger,
		SelfWatermark: true,
	}
}

// discoverGraph builds the graph over nodes, keeping the edges that stay
// among them.
func discoverGraph(nodes []string, targets func(node string) ([]string, error)) (scenario.Graph, error) {
	var g scenario.Graph
	inGraph := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		n = strings.ToUpper(n)
		if !inGraph[n] {
			inGraph[n] = true
			g.Nodes = append(g.Nodes, n)
		}
	}
	for _, n := range g.Nodes {
		ts, err := targets(n)
		if err != nil {
			return scenario.Graph{}, fmt.Errorf("discover edges of %s: %w", n, err)
		}
		for _, t := range ts {
			t = strings.ToUpper(t)
			if inGraph[t] {
				g.Edges = append(g.Edges, scenario.Edge{Source: n, Target: t})
			}
		}
	}
	return g, nil
}

func init() {
	waitIdleCmd.Flags().BoolVar(&dumpFlag, "dump", false, "log why the service is busy on the first check")
	rootCmd.AddCommand(waitIdleCmd)
}
