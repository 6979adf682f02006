package workspace_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/mergewatch/internal/testutil"
	"github.com/steveyegge/mergewatch/internal/workspace"
)

func newClient(t *testing.T, f *testutil.FakeP4, ws, stream string) *workspace.Client {
	t.Helper()
	root := filepath.Join(t.TempDir(), ws)
	c := workspace.NewClient(f, "testuser1", ws, root, stream, filepath.Base(stream))
	spec := "Client: " + ws + "\n\nStream: " + stream + "\n"
	require.NoError(t, c.Create(context.Background(), spec))
	return c
}

func TestParseSubmitted(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    int
		wantErr bool
	}{
		{"plain", "Change 123 submitted.", 123, false},
		{"with preamble", "Submitting change 9.\nLocking 1 files ...\nedit //T/Main/a.txt#2\nChange 9 submitted.\n", 9, false},
		{"renamed", "Change 45 renamed change 67 and submitted.", 67, false},
		{"lowercase", "change 5 submitted.", 0, true},
		{"no number", "Change submitted.", 0, true},
		{"empty", "", 0, true},
		{"unrelated", "No files to submit.", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := workspace.ParseSubmitted(tt.output)
			if tt.wantErr {
				var pe *workspace.ParseError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, tt.output, pe.Output)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateMakesRoot(t *testing.T) {
	f := testutil.NewFakeP4()
	c := newClient(t, f, "testuser1_T_Main", "//T/Main")

	info, err := os.Stat(c.Root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, []string{"testuser1_T_Main"}, f.Clients())
}

func TestAddFileAndSubmit(t *testing.T) {
	f := testutil.NewFakeP4()
	c := newClient(t, f, "testuser1_T_Main", "//T/Main")
	ctx := context.Background()

	cl, err := workspace.AddFileAndSubmit(ctx, c, "dir/a.txt", "hello", false)
	require.NoError(t, err)
	assert.Equal(t, 1, cl)

	content, err := workspace.ReadFile(c, "dir/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", content)

	latest, err := c.LatestChange(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, latest)

	changes, err := c.Changes(ctx, 1, false)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "Adding file dir/a.txt", changes[0].Desc)
}

func TestEditFileAndSubmitWithCommand(t *testing.T) {
	f := testutil.NewFakeP4()
	c := newClient(t, f, "testuser1_T_Main", "//T/Main")
	ctx := context.Background()

	_, err := workspace.AddFileAndSubmit(ctx, c, "a.txt", "v1", false)
	require.NoError(t, err)
	require.NoError(t, os.Chmod(c.Path("a.txt"), 0o444))

	cl, err := workspace.EditFileAndSubmit(ctx, c, "a.txt", "v2", "deadend")
	require.NoError(t, err)
	assert.Equal(t, 2, cl)

	content, err := workspace.ReadFile(c, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "v2", content)

	changes, err := c.Changes(ctx, 1, false)
	require.NoError(t, err)
	assert.Equal(t, "Edited file 'a.txt'\n#robomerge deadend", changes[0].Desc)
}

func TestEditDescription(t *testing.T) {
	assert.Equal(t, "Edited file 'x'", workspace.EditDescription("x", ""))
	assert.Equal(t, "Edited file 'x'\n#robomerge null", workspace.EditDescription("x", "null"))
}

func TestSubmitPending(t *testing.T) {
	f := testutil.NewFakeP4()
	c := newClient(t, f, "testuser1_T_Dev", "//T/Dev")
	ctx := context.Background()

	shelf := f.AddPending(c.Workspace, "shelved merge")
	pending, err := c.Changes(ctx, 1, true)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, shelf, pending[0].Change)

	out, err := c.Submit(ctx, workspace.Pending(shelf))
	require.NoError(t, err)
	cl, err := workspace.ParseSubmitted(out)
	require.NoError(t, err)
	assert.Equal(t, shelf+1, cl)
}

func TestLatestChangeEmptyStream(t *testing.T) {
	f := testutil.NewFakeP4()
	c := newClient(t, f, "ws", "//T/Empty")

	latest, err := c.LatestChange(context.Background())
	require.NoError(t, err)
	assert.Zero(t, latest)
}

func TestTransportErrorsPassThrough(t *testing.T) {
	f := testutil.NewFakeP4()
	c := newClient(t, f, "ws", "//T/Main")
	boom := errors.New("connect to server failed")
	f.Fail("changes", boom)

	_, err := c.LatestChange(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSubmitUnparseable(t *testing.T) {
	f := testutil.NewFakeP4()
	f.SubmitOutput = func(int) string { return "Submit aborted -- fix problems then use 'p4 submit -c 1'." }
	c := newClient(t, f, "ws", "//T/Main")

	_, err := workspace.AddFileAndSubmit(context.Background(), c, "a.txt", "x", false)
	var pe *workspace.ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestSubmissionString(t *testing.T) {
	assert.Equal(t, `"msg"`, workspace.Describe("msg").String())
	assert.Equal(t, "CL 12", workspace.Pending(12).String())
}

func TestRegistry(t *testing.T) {
	f := testutil.NewFakeP4()
	r := workspace.NewRegistry()

	_, err := r.Get("testuser1", "//T/Main")
	assert.EqualError(t, err, "no clients set up")

	main := workspace.NewClient(f, "testuser1", "ws1", "/tmp/ws1", "//T/Main", "Main")
	dev := workspace.NewClient(f, "testuser1", "ws2", "/tmp/ws2", "//T/Dev", "Dev")
	other := workspace.NewClient(f, "testuser2", "ws3", "/tmp/ws3", "//T/Main", "Main")
	for _, c := range []*workspace.Client{main, dev, other} {
		_, err := r.Add(c)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, r.Len())

	got, err := r.Get("testuser1", "//T/Main")
	require.NoError(t, err)
	assert.Same(t, main, got)

	_, err = r.Get("testuser3", "//T/Main")
	assert.EqualError(t, err, "testuser3 has no clients set up in client mappings")

	_, err = r.Get("testuser2", "//T/Dev")
	assert.EqualError(t, err, "testuser2 has no client for stream //T/Dev")

	dup := workspace.NewClient(f, "testuser1", "ws4", "/tmp/ws4", "//T/Main", "Main")
	_, err = r.Add(dup)
	assert.EqualError(t, err, "client list for testuser1 already contains entry for stream //T/Main")

	users := r.ForUser("testuser1")
	require.Len(t, users, 2)
	assert.Equal(t, "//T/Dev", users[0].Stream)
	assert.Equal(t, "//T/Main", users[1].Stream)
}
