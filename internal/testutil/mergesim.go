package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/steveyegge/mergewatch/internal/scenario"
)

// MergeUser is the author of changes the simulator submits.
const MergeUser = "robomerge"

// MergeSim drives a MergeService from a FakeP4 the way the real service
// would, closely enough for scenario tests: changes submitted to a source
// stream are merged into each target, a change whose files diverged on the
// target blocks the edge and is announced on the bot's channel, and the
// stomp, shelf and reconsider operations clear blocks.
//
// Merging happens lazily when a source node's state is queried. The first
// query of a node only records where its streams stand.
type MergeSim struct {
	P4  *FakeP4
	Bot string

	svc   *MergeService
	mu    sync.Mutex
	nodes map[string]*simNode
}

type simNode struct {
	stream string
	edges  map[string]*simEdge
	primed bool
}

type simEdge struct {
	target   string
	mark     int
	conflict int
	shelf    int
	shelfWS  string
}

// NewMergeSim installs the simulator's branch and operation handlers on svc.
func NewMergeSim(f *FakeP4, svc *MergeService, bot string) *MergeSim {
	s := &MergeSim{P4: f, Bot: bot, svc: svc, nodes: make(map[string]*simNode)}
	svc.SetBranchFunc(s.branch)
	svc.SetOpHandler("verifystomp", s.verifyStomp)
	svc.SetOpHandler("stompchanges", s.stomp)
	svc.SetOpHandler("create_shelf", s.createShelf)
	svc.SetOpHandler("reconsider", s.reconsider)
	return s
}

// Register adds the nodes and edges specs declare.
func (s *MergeSim) Register(specs []scenario.BranchSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, spec := range specs {
		name := strings.ToUpper(spec.Name)
		n := &simNode{
			stream: "//" + spec.StreamDepot + "/" + spec.StreamName,
			edges:  make(map[string]*simEdge),
		}
		for _, t := range spec.FlowsTo {
			target := strings.ToUpper(t)
			n.edges[target] = &simEdge{target: target}
		}
		s.nodes[name] = n
	}
}

func (s *MergeSim) branch(node string) (Branch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[node]
	if !ok {
		return Branch{}, false
	}
	latest := s.P4.Latest(n.stream)
	if !n.primed {
		for _, e := range n.edges {
			e.mark = latest
		}
		n.primed = true
	}

	out := Branch{Name: node, LastCL: latest, Edges: make(map[string]Edge, len(n.edges))}
	for _, e := range n.edges {
		s.advance(n, e)
		out.Edges[e.target] = Edge{Blocked: e.conflict != 0, ConflictCL: e.conflict, LastCL: e.mark}
	}
	return out, true
}

// advance merges every unprocessed source change into the edge's target
// until one conflicts.
func (s *MergeSim) advance(n *simNode, e *simEdge) {
	if e.shelf != 0 && !s.P4.IsPending(e.shelfWS, e.shelf) {
		e.mark, e.conflict, e.shelf, e.shelfWS = e.conflict, 0, 0, ""
	}
	if e.conflict != 0 {
		return
	}
	target, ok := s.nodes[e.target]
	if !ok {
		return
	}
	for _, c := range s.P4.ChangesSince(n.stream, e.mark) {
		if strings.Contains(c.Desc, "#robomerge null") {
			e.mark = c.Change
			continue
		}
		revs := s.P4.FileRevs(c.Change)
		for file, rev := range revs {
			if s.P4.Head(target.stream+"/"+file) != rev-1 {
				e.conflict = c.Change
				s.svc.Post(strings.ToLower(s.Bot), c.Change)
				return
			}
		}
		s.merge(target.stream, c.Change, revs)
		e.mark = c.Change
	}
}

func (s *MergeSim) merge(stream string, cl int, revs map[string]int) {
	files := make([]string, 0, len(revs))
	for f := range revs {
		files = append(files, f)
	}
	sort.Strings(files)
	s.P4.SubmitAs(stream, MergeUser, fmt.Sprintf("Merging CL %d", cl), files...)
}

// Blocked reports the change the edge source -> target is blocked on, 0 if
// it is not.
func (s *MergeSim) Blocked(source, target string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[strings.ToUpper(source)]; ok {
		if e, ok := n.edges[strings.ToUpper(target)]; ok {
			return e.conflict
		}
	}
	return 0
}

// blockedEdge resolves the node and target of an operation request.
func (s *MergeSim) blockedEdge(req OpRequest) (*simEdge, int, error) {
	n, ok := s.nodes[strings.ToUpper(req.Node)]
	if !ok {
		return nil, 0, fmt.Errorf("unknown node %s", req.Node)
	}
	target := req.Query["target"]
	if target == "" {
		target = req.Edge
	}
	e, ok := n.edges[strings.ToUpper(target)]
	if !ok {
		return nil, 0, fmt.Errorf("unknown edge %s -> %s", req.Node, target)
	}
	cl, err := strconv.Atoi(strings.Fields(req.Query["cl"] + " 0")[0])
	if err != nil {
		return nil, 0, err
	}
	return e, cl, nil
}

func (s *MergeSim) verifyStomp(req OpRequest) OpResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, cl, err := s.blockedEdge(req)
	if err != nil || e.conflict != cl {
		return OpResponse{StatusCode: http.StatusBadRequest, Body: `{"validRequest":false}`}
	}
	type file struct {
		TargetFileName string `json:"targetFileName"`
		ResolveResult  any    `json:"resolveResult"`
	}
	var files []file
	for name := range s.P4.FileRevs(cl) {
		files = append(files, file{TargetFileName: s.nodes[e.target].stream + "/" + name, ResolveResult: map[string]any{}})
	}
	body, _ := json.Marshal(map[string]any{
		"validRequest":           true,
		"nonBinaryFilesResolved": true,
		"remainingAllBinary":     true,
		"files":                  files,
	})
	return OpResponse{Body: string(body)}
}

func (s *MergeSim) stomp(req OpRequest) OpResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, cl, err := s.blockedEdge(req)
	if err != nil || e.conflict != cl {
		return OpResponse{StatusCode: http.StatusBadRequest, Body: "edge not blocked on that change"}
	}
	s.merge(s.nodes[e.target].stream, cl, s.P4.FileRevs(cl))
	e.mark, e.conflict = cl, 0
	return OpResponse{Body: "ok"}
}

func (s *MergeSim) createShelf(req OpRequest) OpResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, cl, err := s.blockedEdge(req)
	if err != nil || e.conflict != cl {
		return OpResponse{Body: "edge not blocked on that change"}
	}
	var files []string
	for name := range s.P4.FileRevs(cl) {
		files = append(files, name)
	}
	sort.Strings(files)
	e.shelfWS = req.Query["workspace"]
	e.shelf = s.P4.AddPending(e.shelfWS, fmt.Sprintf("Shelved conflict of CL %d", cl), files...)
	return OpResponse{Body: "ok"}
}

func (s *MergeSim) reconsider(req OpRequest) OpResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, cl, err := s.blockedEdge(req)
	if err != nil {
		return OpResponse{StatusCode: http.StatusBadRequest, Body: err.Error()}
	}
	s.merge(s.nodes[e.target].stream, cl, s.P4.FileRevs(cl))
	if e.conflict == cl {
		e.conflict = 0
	}
	return OpResponse{Body: "ok"}
}
