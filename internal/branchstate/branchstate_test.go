package branchstate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBranch = `{
  "branch": {
    "name": "ConfirmMergeMain",
    "blocked": false,
    "active": true,
    "statusMsg": "",
    "queue": [{"cl": 12}, {"change": 13, "source": "manual"}],
    "lastCl": 11,
    "edges": {
      "confirmMergeDev": {"blocked": true, "blockage": {"change": 10}, "lastCl": 9, "lastGoodCL": -1},
      "CONFIRMMERGERELEASE": {"lastCl": 11, "lastGoodCL": 8}
    }
  }
}`

func TestDecode(t *testing.T) {
	bs, err := Decode([]byte(sampleBranch))
	require.NoError(t, err)

	assert.Equal(t, "CONFIRMMERGEMAIN", bs.Name())
	assert.False(t, bs.IsBlocked())
	assert.True(t, bs.IsActive())
	assert.Empty(t, bs.StatusMessage())
	assert.Equal(t, 11, bs.LastCL())
	assert.Equal(t, []string{"CONFIRMMERGEDEV", "CONFIRMMERGERELEASE"}, bs.EdgeTargets())

	queue := bs.Queue()
	require.Len(t, queue, 2)
	assert.Equal(t, 12, queue[0].CL)
	assert.Equal(t, 13, queue[1].CL)
}

func TestDecodeSnakeCase(t *testing.T) {
	payload := `{"branch": {"def": {"name": "main"}, "is_blocked": true, "is_active": false,
		"status_msg": "integrating", "queue": [], "last_cl": 42,
		"edges": {"dev": {"is_blocked": false, "last_cl": 40}}}}`

	bs, err := Decode([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, "MAIN", bs.Name())
	assert.True(t, bs.IsBlocked())
	assert.False(t, bs.IsActive())
	assert.Equal(t, "integrating", bs.StatusMessage())
	assert.Equal(t, 42, bs.LastCL())

	edge, err := bs.Edge("Dev")
	require.NoError(t, err)
	assert.False(t, edge.IsBlocked())
	assert.Equal(t, 40, edge.LastCL())
	gate, ok := edge.LastGoodCL()
	assert.False(t, ok)
	assert.Equal(t, NoGate, gate)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"no branch", `{}`, ErrNoBranch},
		{"null branch", `{"branch": null}`, ErrNoBranch},
		{"no edges", `{"branch": {"name": "main"}}`, ErrNoEdges},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := Decode([]byte(`not json`))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoEdges))
}

func TestEdgeLookup(t *testing.T) {
	bs, err := Decode([]byte(sampleBranch))
	require.NoError(t, err)

	edge, err := bs.Edge("confirmmergedev")
	require.NoError(t, err)
	assert.True(t, edge.IsBlocked())
	cl, ok := edge.ConflictCL()
	assert.True(t, ok)
	assert.Equal(t, 10, cl)

	_, err = bs.Edge("nowhere")
	assert.ErrorIs(t, err, ErrEdgeNotFound)
	assert.Contains(t, err.Error(), "CONFIRMMERGEMAIN -> NOWHERE")
}

func TestConflictCLOnlyWhenBlocked(t *testing.T) {
	bs, err := Decode([]byte(`{"branch": {"name": "a", "edges": {"b": {"conflictCl": 7, "lastCl": 3}}}}`))
	require.NoError(t, err)

	edge, err := bs.Edge("b")
	require.NoError(t, err)
	_, ok := edge.ConflictCL()
	assert.False(t, ok)
}

func TestGated(t *testing.T) {
	tests := []struct {
		name  string
		edge  EdgeState
		gated bool
	}{
		{"no gate", EdgeState{lastCL: 5, lastGoodCL: NoGate}, false},
		{"negative gate", EdgeState{lastCL: 5, lastGoodCL: -20}, false},
		{"reached gate exactly", EdgeState{lastCL: 8, lastGoodCL: 8}, true},
		{"past gate", EdgeState{lastCL: 9, lastGoodCL: 8}, true},
		{"one short of gate", EdgeState{lastCL: 7, lastGoodCL: 8}, false},
		{"zero gate is no gate", EdgeState{lastCL: 0, lastGoodCL: 0}, false},
		{"zero gate lagging", EdgeState{lastCL: 3, lastGoodCL: 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.gated, tt.edge.Gated())
		})
	}
}

func TestQueueIsCopied(t *testing.T) {
	bs, err := Decode([]byte(sampleBranch))
	require.NoError(t, err)

	q := bs.Queue()
	q[0].CL = 999
	assert.Equal(t, 12, bs.Queue()[0].CL)
}
