package testutil

import (
	"encoding/json"
	"strings"

	"github.com/steveyegge/mergewatch/internal/branchstate"
)

// Branch describes a node for a branch-info fixture.
type Branch struct {
	Name      string
	Blocked   bool
	StatusMsg string
	Queue     []int
	LastCL    int
	Edges     map[string]Edge
	// NoEdges omits the edges object, as the service does while loading.
	NoEdges bool
}

// Edge describes one outgoing edge of a Branch fixture.
type Edge struct {
	Blocked    bool
	ConflictCL int
	LastCL     int
	// Gate is the last-good change; zero means no gate.
	Gate int
}

// JSON renders the fixture in the service's wire format.
func (b Branch) JSON() []byte {
	branch := map[string]any{
		"def":        map[string]any{"name": strings.ToUpper(b.Name)},
		"is_blocked": b.Blocked,
		"is_active":  false,
		"last_cl":    b.LastCL,
	}
	if b.StatusMsg != "" {
		branch["status_msg"] = b.StatusMsg
	}
	queue := make([]map[string]int, 0, len(b.Queue))
	for _, cl := range b.Queue {
		queue = append(queue, map[string]int{"cl": cl})
	}
	branch["queue"] = queue

	if !b.NoEdges {
		edges := make(map[string]any, len(b.Edges))
		for target, e := range b.Edges {
			edge := map[string]any{"lastCl": e.LastCL}
			if e.Blocked {
				edge["blockage"] = map[string]int{"change": e.ConflictCL}
			}
			if e.Gate > 0 {
				edge["lastGoodCL"] = e.Gate
			}
			edges[strings.ToUpper(target)] = edge
		}
		branch["edges"] = edges
	}

	data, err := json.Marshal(map[string]any{"branch": branch})
	if err != nil {
		panic(err)
	}
	return data
}

// State decodes the fixture, panicking on error. Useful for in-process
// state sources.
func (b Branch) State() *branchstate.BranchState {
	bs, err := branchstate.Decode(b.JSON())
	if err != nil {
		panic(err)
	}
	return bs
}
