package scenario

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ft = Builder{TestName: "ConfirmMerge", WorkspacesRoot: "/rm_tests"}

func TestSpecFormat(t *testing.T) {
	got := SpecFormat(Field{"A", "1"}, Field{"B", "two words"})
	assert.Equal(t, "A: 1\n\nB: two words\n", got)
	assert.Equal(t, "", SpecFormat())
}

func TestClientSpec(t *testing.T) {
	got := ClientSpec("testuser1_ConfirmMerge_Main", "testuser1", "/rm_tests/testuser1_ConfirmMerge_Main", "//ConfirmMerge/Main")
	want := "Description: Unit test workspace.\n\n" +
		"Options: noallwrite noclobber nocompress unlocked nomodtime normdir\n\n" +
		"SubmitOptions: submitunchanged\n\n" +
		"LineEnd: local\n\n" +
		"Client: testuser1_ConfirmMerge_Main\n\n" +
		"Owner: testuser1\n\n" +
		"Root: /rm_tests/testuser1_ConfirmMerge_Main\n\n" +
		"Stream: //ConfirmMerge/Main\n\n" +
		"View: \n\t//ConfirmMerge/Main/... //testuser1_ConfirmMerge_Main/...\n"
	assert.Equal(t, want, got)
}

func TestEscapeBranchName(t *testing.T) {
	tests := map[string]string{
		"Main":        "Main",
		"Dev-Pootle":  "Dev_Pootle",
		"Release 1.0": "Release_1_0",
		"a/b.c":       "a_b_c",
		"":            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, EscapeBranchName(in), in)
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, "//ConfirmMerge/Main", ft.StreamPath("Main", ""))
	assert.Equal(t, "//Other/Main", ft.StreamPath("Main", "Other"))
	assert.Equal(t, "ConfirmMergeDev_Pootle", ft.FullBranchName("Dev-Pootle"))
	assert.Equal(t, "testuser1_ConfirmMerge_Main", ft.WorkspaceName("testuser1", "Main"))

	ws, root := ft.ClientWorkspace("testuser2", "Dev", "")
	assert.Equal(t, "testuser2_ConfirmMerge_Dev", ws)
	assert.Equal(t, "/rm_tests/testuser2_ConfirmMerge_Dev", root)

	ws, _ = ft.ClientWorkspace("testuser2", "Dev", "Other")
	assert.Equal(t, "testuser2_ConfirmMerge_Other_Dev", ws)
}

func TestStreamSpecDefaults(t *testing.T) {
	got := ft.StreamSpec(Stream{Name: "Main", Type: Mainline})
	want := "Stream: //ConfirmMerge/Main\n\n" +
		"Owner: root\n\n" +
		"Name: Main\n\n" +
		"Parent: none\n\n" +
		"Type: mainline\n\n" +
		"Description: \n\tCreated by root.\n\n" +
		"Options: allsubmit unlocked notoparent nofromparent mergedown\n\n" +
		"Paths: \n\tshare ...\n\n" +
		"Ignored: \n"
	assert.Equal(t, want, got)
}

func TestStreamSpecOverrides(t *testing.T) {
	got := ft.StreamSpec(Stream{
		Name:      "Dev",
		Type:      Development,
		Owner:     "testuser1",
		Parent:    "Main",
		DepotName: "Other",
		Options:   "ownersubmit",
		Paths:     []string{"isolate Binaries/..."},
		Ignored:   []string{".vs", "*.pdb"},
	})
	assert.Contains(t, got, "Stream: //Other/Dev\n")
	assert.Contains(t, got, "Owner: testuser1\n")
	assert.Contains(t, got, "Parent: //Other/Main\n")
	assert.Contains(t, got, "Type: development\n")
	assert.Contains(t, got, "Options: ownersubmit\n")
	assert.Contains(t, got, "Paths: \n\tshare ...\n\tisolate Binaries/...\n")
	assert.Contains(t, got, "Ignored: .vs\n\t*.pdb\n")
}

func TestDepotSpec(t *testing.T) {
	want := "Depot: ConfirmMerge\n\n" +
		"Owner: root\n\n" +
		"Description: \n\tCreated by root.\n\n" +
		"Type: stream\n\n" +
		"StreamDepth: //ConfirmMerge/1\n\n" +
		"Map: ConfirmMerge/...\n"
	assert.Equal(t, want, ft.DepotSpec(""))
	assert.Contains(t, ft.DepotSpec("Shared"), "StreamDepth: //Shared/1\n")
}

func TestBranchDef(t *testing.T) {
	def := ft.BranchDef("Main", []string{"Dev-A", "Dev-B"}, false)
	assert.Equal(t, BranchSpec{
		Name:        "ConfirmMergeMain",
		StreamDepot: "ConfirmMerge",
		StreamName:  "Main",
		FlowsTo:     []string{"ConfirmMergeDev_A", "ConfirmMergeDev_B"},
	}, def)

	data, err := json.Marshal(ft.ForceAllBranchDef("Dev-A", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"ConfirmMergeDev_A","streamDepot":"ConfirmMerge","streamName":"Dev-A","forceAll":true}`, string(data))
}

func TestNewGraph(t *testing.T) {
	g := NewGraph([]BranchSpec{
		ft.BranchDef("A", []string{"B"}, false),
		ft.BranchDef("B", []string{"C"}, false),
		ft.BranchDef("C", nil, false),
	})
	assert.Equal(t, []string{"CONFIRMMERGEA", "CONFIRMMERGEB", "CONFIRMMERGEC"}, g.Nodes)
	assert.Equal(t, []Edge{
		{"CONFIRMMERGEA", "CONFIRMMERGEB"},
		{"CONFIRMMERGEB", "CONFIRMMERGEC"},
	}, g.Edges)
	assert.Equal(t, "CONFIRMMERGEA -> CONFIRMMERGEB", g.Edges[0].String())
	assert.Len(t, g.OutEdges("confirmmergeb"), 1)

	merged := g.Merge(NewGraph([]BranchSpec{ft.BranchDef("D", nil, false)}))
	assert.Len(t, merged.Nodes, 4)
	assert.Len(t, g.Nodes, 3)
}

func TestAddTargetBranchesAppendsFlows(t *testing.T) {
	doc := `{
		"defaultStreamDepot": "depot",
		"customSetting": {"keep": true},
		"branches": [
			{"name": "ConfirmMergeA", "flowsTo": ["ConfirmMergeB", "ConfirmMergeC"], "unknownOption": 42},
			{"name": "ConfirmMergeB"},
			{"name": "ConfirmMergeC"}
		]
	}`
	bm, err := ParseBranchMap([]byte(doc))
	require.NoError(t, err)

	d := ft.BranchDef("D", nil, false)
	err = bm.AddTargetBranches("ConfirmMergeA", []BranchSpec{d},
		[]EdgeProperties{{From: "ConfirmMergeA", To: "ConfirmMergeD", InitialCL: 3}})
	require.NoError(t, err)

	assert.Equal(t, []string{"ConfirmMergeB", "ConfirmMergeC", "ConfirmMergeD"}, bm.FlowsTo("ConfirmMergeA"))
	assert.Equal(t, []string{"ConfirmMergeA", "ConfirmMergeB", "ConfirmMergeC", "ConfirmMergeD"}, bm.BranchNames())
	assert.Equal(t, 1, bm.EdgeCount())

	out, err := bm.Marshal()
	require.NoError(t, err)
	var round map[string]any
	require.NoError(t, json.Unmarshal(out, &round))
	assert.Equal(t, map[string]any{"keep": true}, round["customSetting"])
	first := round["branches"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 42, first["unknownOption"])
	assert.Len(t, round["edges"], 1)
}

func TestAddTargetBranchesWithoutExistingFlows(t *testing.T) {
	bm, err := ParseBranchMap([]byte(`{"branches":[{"name":"X"}]}`))
	require.NoError(t, err)

	require.NoError(t, bm.AddTargetBranches("X", []BranchSpec{{Name: "Y"}}, nil))
	assert.Equal(t, []string{"Y"}, bm.FlowsTo("X"))
	assert.Zero(t, bm.EdgeCount())
}

func TestNewBranchMap(t *testing.T) {
	bm, err := NewBranchMap(DefaultBotSettings(), []BranchSpec{ft.BranchDef("Main", nil, false)}, nil)
	require.NoError(t, err)

	out, err := bm.Marshal()
	require.NoError(t, err)
	var round map[string]any
	require.NoError(t, json.Unmarshal(out, &round))
	assert.Equal(t, "depot", round["defaultStreamDepot"])
	assert.Equal(t, true, round["isDefaultBot"])
	assert.EqualValues(t, 1, round["checkIntervalSecs"])
	assert.Equal(t, []any{"buildmachine"}, round["excludeAuthors"])
	assert.Len(t, round["branches"], 1)
	assert.NotContains(t, round, "edges")
}

func TestParseBranchMapErrors(t *testing.T) {
	_, err := ParseBranchMap([]byte("null"))
	assert.Error(t, err)
	_, err = ParseBranchMap([]byte(`{"branches": {}}`))
	assert.ErrorContains(t, err, "branches")
}

func TestBranchMapFile(t *testing.T) {
	assert.Equal(t, "functionaltest.branchmap.json", BranchMapFile("FUNCTIONALTEST"))
}
