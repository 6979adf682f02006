package scenario

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Branch-map storage: the service reads each bot's definitions from a JSON
// file in a dedicated data stream.
const (
	DataStream       = "//RoboMergeData/Main"
	DataStreamName   = "Main"
	DataUser         = "root"
	DataWorkspace    = "RoboMergeData_BranchMaps"
	branchMapFileExt = ".branchmap.json"
)

// BranchMapFile is the branch-map file name for bot.
func BranchMapFile(bot string) string {
	return strings.ToLower(bot) + branchMapFileExt
}

// BotSettings are the bot-level fields of a branch map.
type BotSettings struct {
	DefaultStreamDepot string   `json:"defaultStreamDepot"`
	IsDefaultBot       bool     `json:"isDefaultBot"`
	CheckIntervalSecs  int      `json:"checkIntervalSecs"`
	NoStreamAliases    bool     `json:"noStreamAliases"`
	ExcludeAuthors     []string `json:"excludeAuthors"`
}

// DefaultBotSettings are the settings of the functional-test bot.
func DefaultBotSettings() BotSettings {
	return BotSettings{
		DefaultStreamDepot: "depot",
		IsDefaultBot:       true,
		CheckIntervalSecs:  1,
		NoStreamAliases:    true,
		ExcludeAuthors:     []string{"buildmachine"},
	}
}

// BranchMap is a bot's branch-map document. Fields the harness does not
// interpret, at the top level and inside each branch, are carried through
// unchanged.
type BranchMap struct {
	fields   map[string]json.RawMessage
	branches []map[string]json.RawMessage
	edges    []json.RawMessage
}

// NewBranchMap starts a document from bot settings and initial branches.
func NewBranchMap(settings BotSettings, branches []BranchSpec, edges []EdgeProperties) (*BranchMap, error) {
	data, err := json.Marshal(settings)
	if err != nil {
		return nil, err
	}
	bm := &BranchMap{}
	if err := json.Unmarshal(data, &bm.fields); err != nil {
		return nil, err
	}
	if err := bm.append(branches, edges); err != nil {
		return nil, err
	}
	return bm, nil
}

// ParseBranchMap decodes an existing document.
func ParseBranchMap(data []byte) (*BranchMap, error) {
	bm := &BranchMap{}
	if err := json.Unmarshal(data, &bm.fields); err != nil {
		return nil, fmt.Errorf("parse branch map: %w", err)
	}
	if bm.fields == nil {
		return nil, fmt.Errorf("parse branch map: not an object")
	}
	if raw, ok := bm.fields["branches"]; ok {
		if err := json.Unmarshal(raw, &bm.branches); err != nil {
			return nil, fmt.Errorf("parse branch map branches: %w", err)
		}
	}
	if raw, ok := bm.fields["edges"]; ok {
		if err := json.Unmarshal(raw, &bm.edges); err != nil {
			return nil, fmt.Errorf("parse branch map edges: %w", err)
		}
	}
	return bm, nil
}

// BranchNames returns the branch names in document order.
func (bm *BranchMap) BranchNames() []string {
	names := make([]string, 0, len(bm.branches))
	for _, b := range bm.branches {
		names = append(names, stringField(b, "name"))
	}
	return names
}

// FlowsTo returns the flowsTo list of the named branch.
func (bm *BranchMap) FlowsTo(name string) []string {
	for _, b := range bm.branches {
		if stringField(b, "name") == name {
			var flows []string
			_ = json.Unmarshal(b["flowsTo"], &flows)
			return flows
		}
	}
	return nil
}

// EdgeCount returns the number of edge property entries.
func (bm *BranchMap) EdgeCount() int { return len(bm.edges) }

// AddTargetBranches appends branches to the document and adds their names
// to from's flowsTo, keeping the targets from already has.
func (bm *BranchMap) AddTargetBranches(from string, branches []BranchSpec, edges []EdgeProperties) error {
	names := make([]string, len(branches))
	for i, b := range branches {
		names[i] = b.Name
	}
	for _, b := range bm.branches {
		if stringField(b, "name") != from {
			continue
		}
		var flows []string
		if raw, ok := b["flowsTo"]; ok {
			if err := json.Unmarshal(raw, &flows); err != nil {
				return fmt.Errorf("branch %s flowsTo: %w", from, err)
			}
		}
		data, err := json.Marshal(append(flows, names...))
		if err != nil {
			return err
		}
		b["flowsTo"] = data
	}
	return bm.append(branches, edges)
}

// Marshal encodes the document.
func (bm *BranchMap) Marshal() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(bm.fields)+2)
	for k, v := range bm.fields {
		out[k] = v
	}
	branches := []byte("[]")
	if len(bm.branches) > 0 {
		var err error
		if branches, err = json.Marshal(bm.branches); err != nil {
			return nil, err
		}
	}
	out["branches"] = branches
	if len(bm.edges) > 0 {
		edges, err := json.Marshal(bm.edges)
		if err != nil {
			return nil, err
		}
		out["edges"] = edges
	}
	return json.Marshal(out)
}

func (bm *BranchMap) append(branches []BranchSpec, edges []EdgeProperties) error {
	for _, b := range branches {
		data, err := json.Marshal(b)
		if err != nil {
			return err
		}
		var m map[string]json.RawMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		bm.branches = append(bm.branches, m)
	}
	for _, e := range edges {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		bm.edges = append(bm.edges, data)
	}
	return nil
}

func stringField(m map[string]json.RawMessage, key string) string {
	var s string
	_ = json.Unmarshal(m[key], &s)
	return s
}
