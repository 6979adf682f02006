package scenario

import (
	"encoding/json"
	"strings"
)

// BranchSpec is one node definition in a bot's branch map. Only Name is
// required; every other option is left to the service default when unset.
type BranchSpec struct {
	Name string `json:"name"`

	RootPath               string   `json:"rootPath,omitempty"`
	IsDefaultBot           *bool    `json:"isDefaultBot,omitempty"`
	EmailOnBlockage        *bool    `json:"emailOnBlockage,omitempty"`
	MaxFilesPerIntegration int      `json:"maxFilesPerIntegration,omitempty"`
	Notify                 []string `json:"notify,omitempty"`
	FlowsTo                []string `json:"flowsTo,omitempty"`
	ForceFlowTo            []string `json:"forceFlowTo,omitempty"`
	DefaultFlow            []string `json:"defaultFlow,omitempty"`
	Whitelist              []string `json:"whitelist,omitempty"`
	Resolver               string   `json:"resolver,omitempty"`
	Aliases                []string `json:"aliases,omitempty"`
	BadgeProject           string   `json:"badgeProject,omitempty"`
	PathsToMonitor         []string `json:"pathsToMonitor,omitempty"`

	Disabled          bool            `json:"disabled,omitempty"`
	IntegrationMethod string          `json:"integrationMethod,omitempty"`
	ForceAll          bool            `json:"forceAll"`
	Visibility        json.RawMessage `json:"visibility,omitempty"` // string or list
	BlockAssetFlow    []string        `json:"blockAssetFlow,omitempty"`

	StreamDepot   string  `json:"streamDepot,omitempty"`
	StreamName    string  `json:"streamName,omitempty"`
	StreamSubpath string  `json:"streamSubpath,omitempty"`
	Workspace     *string `json:"workspace,omitempty"`

	WorkspaceNameOverride              string   `json:"workspaceNameOverride,omitempty"`
	AdditionalSlackChannelForBlockages string   `json:"additionalSlackChannelForBlockages,omitempty"`
	IgnoreBranchspecs                  bool     `json:"ignoreBranchspecs,omitempty"`
	LastGoodCLPath                     string   `json:"lastGoodCLPath,omitempty"`
	InitialCL                          int      `json:"initialCL,omitempty"`
	ForcePause                         bool     `json:"forcePause,omitempty"`
	DisallowSkip                       bool     `json:"disallowSkip,omitempty"`
	IncognitoMode                      bool     `json:"incognitoMode,omitempty"`
	ExcludeAuthors                     []string `json:"excludeAuthors,omitempty"`
	P4MaxRowsOverride                  int      `json:"p4MaxRowsOverride,omitempty"`
}

// EdgeProperties overrides options on the edge From -> To.
type EdgeProperties struct {
	From string `json:"from"`
	To   string `json:"to"`

	LastGoodCLPath         string   `json:"lastGoodCLPath,omitempty"`
	AdditionalSlackChannel string   `json:"additionalSlackChannel,omitempty"`
	InitialCL              int      `json:"initialCL,omitempty"`
	P4MaxRowsOverride      int      `json:"p4MaxRowsOverride,omitempty"`
	DisallowSkip           bool     `json:"disallowSkip,omitempty"`
	IncognitoMode          bool     `json:"incognitoMode,omitempty"`
	ExcludeAuthors         []string `json:"excludeAuthors,omitempty"`
}

// BranchDef declares stream as a node of this test flowing to each of to.
func (b Builder) BranchDef(stream string, to []string, forceAll bool) BranchSpec {
	flows := make([]string, len(to))
	for i, t := range to {
		flows[i] = b.FullBranchName(t)
	}
	return BranchSpec{
		Name:        b.FullBranchName(stream),
		StreamDepot: b.TestName,
		StreamName:  stream,
		FlowsTo:     flows,
		ForceAll:    forceAll,
	}
}

// ForceAllBranchDef is BranchDef with forceAll set.
func (b Builder) ForceAllBranchDef(stream string, to []string) BranchSpec {
	return b.BranchDef(stream, to, true)
}

// Edge is a directed source -> target pair of node names.
type Edge struct {
	Source string
	Target string
}

func (e Edge) String() string { return e.Source + " -> " + e.Target }

// Graph is the node and edge set a list of branch specs declares. Names are
// upper-cased to match the service's node names.
type Graph struct {
	Nodes []string
	Edges []Edge
}

// NewGraph derives the graph from specs in declaration order.
func NewGraph(specs []BranchSpec) Graph {
	var g Graph
	for _, spec := range specs {
		source := strings.ToUpper(spec.Name)
		g.Nodes = append(g.Nodes, source)
		for _, target := range spec.FlowsTo {
			g.Edges = append(g.Edges, Edge{Source: source, Target: strings.ToUpper(target)})
		}
	}
	return g
}

// Merge returns g extended with the nodes and edges of other.
func (g Graph) Merge(other Graph) Graph {
	return Graph{
		Nodes: append(append([]string(nil), g.Nodes...), other.Nodes...),
		Edges: append(append([]Edge(nil), g.Edges...), other.Edges...),
	}
}

// OutEdges returns the edges leaving node.
func (g Graph) OutEdges(node string) []Edge {
	node = strings.ToUpper(node)
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == node {
			out = append(out, e)
		}
	}
	return out
}
