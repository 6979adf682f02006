// Package branchstate decodes the merge service's branch-info payload into
// read-only snapshots of one node and its outgoing edges.
//
// The service has emitted both snake_case and camelCase field names over
// time, so the wire structs accept either spelling and normalise them once at
// the decoding boundary. Nothing past Decode sees untyped JSON.
package branchstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNoBranch is returned when the payload has no "branch" object.
	ErrNoBranch = errors.New("no branch found")

	// ErrNoEdges is returned when the branch object has no "edges" object.
	// The service reports this while it is still loading branch definitions.
	ErrNoEdges = errors.New("no edges found")

	// ErrEdgeNotFound is returned by BranchState.Edge for unknown targets.
	ErrEdgeNotFound = errors.New("edge not found")
)

// NoGate is the LastGoodCL sentinel for edges without a last-good gate.
const NoGate = -1

// BranchState is a snapshot of one merge node.
type BranchState struct {
	name      string
	blocked   bool
	active    bool
	statusMsg string
	queue     []QueueItem
	lastCL    int
	edges     map[string]*EdgeState
}

// EdgeState is a snapshot of one directed flow relationship.
type EdgeState struct {
	target     string
	blocked    bool
	conflictCL int
	lastCL     int
	lastGoodCL int
}

// QueueItem is a pending unit of work on a node. Only the change number is
// interpreted; the raw entry is kept for diagnostics.
type QueueItem struct {
	CL  int
	Raw json.RawMessage
}

func (q QueueItem) String() string {
	if len(q.Raw) > 0 {
		return string(q.Raw)
	}
	return fmt.Sprintf("CL %d", q.CL)
}

type wireResponse struct {
	Branch *wireBranch `json:"branch"`
}

type wireBranch struct {
	Name       string                     `json:"name"`
	Def        *struct{ Name string }     `json:"def"`
	Blocked    *bool                      `json:"blocked"`
	IsBlocked  *bool                      `json:"is_blocked"`
	Blockage   json.RawMessage            `json:"blockage"`
	Active     *bool                      `json:"active"`
	IsActive   *bool                      `json:"is_active"`
	StatusMsg  string                     `json:"statusMsg"`
	StatusMsg2 string                     `json:"status_msg"`
	Queue      []json.RawMessage          `json:"queue"`
	LastCl     *int                       `json:"lastCl"`
	LastCL2    *int                       `json:"last_cl"`
	Edges      map[string]json.RawMessage `json:"edges"`
}

type wireEdge struct {
	Blocked     *bool         `json:"blocked"`
	IsBlocked   *bool         `json:"is_blocked"`
	Blockage    *wireBlockage `json:"blockage"`
	ConflictCl  *int          `json:"conflictCl"`
	LastCl      *int          `json:"lastCl"`
	LastCL2     *int          `json:"last_cl"`
	LastGoodCL  *int          `json:"lastGoodCL"`
	LastGoodCl2 *int          `json:"lastGoodCl"`
}

type wireBlockage struct {
	Change int `json:"change"`
}

type wireQueueItem struct {
	CL     *int `json:"cl"`
	Change *int `json:"change"`
}

// Decode parses a branch-info response of the form {"branch": {...}}.
// A missing branch yields ErrNoBranch, missing edges ErrNoEdges.
func Decode(data []byte) (*BranchState, error) {
	var resp wireResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode branch info: %w", err)
	}
	if resp.Branch == nil {
		return nil, ErrNoBranch
	}
	return fromWire(resp.Branch)
}

func fromWire(w *wireBranch) (*BranchState, error) {
	if w.Edges == nil {
		return nil, ErrNoEdges
	}

	name := w.Name
	if name == "" && w.Def != nil {
		name = w.Def.Name
	}

	bs := &BranchState{
		name:      strings.ToUpper(name),
		blocked:   firstBool(w.Blocked, w.IsBlocked) || isPresent(w.Blockage),
		active:    firstBool(w.Active, w.IsActive),
		statusMsg: firstNonEmpty(w.StatusMsg, w.StatusMsg2),
		lastCL:    firstInt(0, w.LastCl, w.LastCL2),
		edges:     make(map[string]*EdgeState, len(w.Edges)),
	}

	for _, raw := range w.Queue {
		var item wireQueueItem
		// Queue entries are opaque beyond the change number.
		_ = json.Unmarshal(raw, &item)
		bs.queue = append(bs.queue, QueueItem{CL: firstInt(0, item.CL, item.Change), Raw: raw})
	}

	for target, raw := range w.Edges {
		var we wireEdge
		if err := json.Unmarshal(raw, &we); err != nil {
			return nil, fmt.Errorf("decode edge %s: %w", target, err)
		}
		es := &EdgeState{
			target:     strings.ToUpper(target),
			blocked:    firstBool(we.Blocked, we.IsBlocked) || we.Blockage != nil,
			lastCL:     firstInt(0, we.LastCl, we.LastCL2),
			lastGoodCL: firstInt(NoGate, we.LastGoodCL, we.LastGoodCl2),
		}
		if we.Blockage != nil {
			es.conflictCL = we.Blockage.Change
		} else if we.ConflictCl != nil {
			es.conflictCL = *we.ConflictCl
		}
		bs.edges[es.target] = es
	}

	return bs, nil
}

// Name returns the upper-cased node name.
func (b *BranchState) Name() string { return b.name }

// IsBlocked reports whether the node itself is blocked.
func (b *BranchState) IsBlocked() bool { return b.blocked }

// IsActive reports whether the node is currently processing.
func (b *BranchState) IsActive() bool { return b.active }

// StatusMessage returns the node's free-text status. Non-empty means busy.
func (b *BranchState) StatusMessage() string { return b.statusMsg }

// Queue returns a copy of the pending work items.
func (b *BranchState) Queue() []QueueItem {
	out := make([]QueueItem, len(b.queue))
	copy(out, b.queue)
	return out
}

// LastCL returns the last change the node processed.
func (b *BranchState) LastCL() int { return b.lastCL }

// Edge returns the outgoing edge to target (case-insensitive).
func (b *BranchState) Edge(target string) (*EdgeState, error) {
	es, ok := b.edges[strings.ToUpper(target)]
	if !ok {
		return nil, fmt.Errorf("%s -> %s: %w", b.name, strings.ToUpper(target), ErrEdgeNotFound)
	}
	return es, nil
}

// EdgeTargets returns the upper-cased targets in sorted order.
func (b *BranchState) EdgeTargets() []string {
	out := make([]string, 0, len(b.edges))
	for t := range b.edges {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Target returns the upper-cased target node name.
func (e *EdgeState) Target() string { return e.target }

// IsBlocked reports whether the edge is blocked on a conflict.
func (e *EdgeState) IsBlocked() bool { return e.blocked }

// ConflictCL returns the change the edge is blocked on. ok is false when the
// edge is not blocked, in which case the number carries no meaning.
func (e *EdgeState) ConflictCL() (cl int, ok bool) {
	if !e.blocked {
		return 0, false
	}
	return e.conflictCL, true
}

// LastCL returns the last change the edge processed.
func (e *EdgeState) LastCL() int { return e.lastCL }

// LastGoodCL returns the last-good gate. ok is false when no gate is set
// (absent, zero or negative).
func (e *EdgeState) LastGoodCL() (cl int, ok bool) {
	if e.lastGoodCL <= 0 {
		return NoGate, false
	}
	return e.lastGoodCL, true
}

// Gated reports whether the edge is held at a last-good gate it has already
// reached. Such an edge is caught up even when it lags its source.
func (e *EdgeState) Gated() bool {
	gate, ok := e.LastGoodCL()
	return ok && e.lastCL >= gate
}

func firstBool(vals ...*bool) bool {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return false
}

func firstInt(dflt int, vals ...*int) int {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return dflt
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func isPresent(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null"
}
