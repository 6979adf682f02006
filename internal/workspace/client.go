// Package workspace binds a Perforce user, client workspace and stream into a
// session the functional tests drive. It adds path joining and argument
// binding over the transport and nothing else: transport errors come back
// unchanged.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/steveyegge/mergewatch/internal/p4"
)

// Transport is the subset of p4.Perforce a session needs.
type Transport interface {
	Client(ctx context.Context, user, spec string) error
	Add(ctx context.Context, user, client, path string, binary bool) error
	Edit(ctx context.Context, user, client, path string) error
	Delete(ctx context.Context, user, client, path string) error
	Submit(ctx context.Context, user, client, description string) (string, error)
	SubmitChange(ctx context.Context, user, client string, cl int) (string, error)
	Sync(ctx context.Context, user, client string) error
	Resolve(ctx context.Context, user, client string, cl int, clobber bool) error
	Changes(ctx context.Context, client, stream string, limit int, pending bool) ([]p4.Change, error)
	Print(ctx context.Context, client, path string) (string, error)
	Unshelve(ctx context.Context, user, client string, cl int) error
	DeleteShelved(ctx context.Context, user, client string, cl int) error
}

var _ Transport = (*p4.Perforce)(nil)

// Client is one user's workspace on one stream.
type Client struct {
	User      string
	Workspace string
	Root      string
	Stream    string // depot path, e.g. //ConfirmMerge/Main
	Name      string // stream name, e.g. Main

	p4 Transport
}

// NewClient creates a session. Nothing is provisioned until Create.
func NewClient(t Transport, user, workspace, root, stream, name string) *Client {
	return &Client{User: user, Workspace: workspace, Root: root, Stream: stream, Name: name, p4: t}
}

// Path joins a workspace-relative file name onto the client root.
func (c *Client) Path(file string) string {
	return filepath.Join(c.Root, file)
}

// Create makes the workspace root directory and registers the client spec.
func (c *Client) Create(ctx context.Context, spec string) error {
	if err := os.MkdirAll(c.Root, 0o755); err != nil {
		return fmt.Errorf("create workspace root %s: %w", c.Root, err)
	}
	return c.p4.Client(ctx, c.User, spec)
}

// Add opens file for add.
func (c *Client) Add(ctx context.Context, file string, binary bool) error {
	return c.p4.Add(ctx, c.User, c.Workspace, c.Path(file), binary)
}

// Edit opens file for edit.
func (c *Client) Edit(ctx context.Context, file string) error {
	return c.p4.Edit(ctx, c.User, c.Workspace, c.Path(file))
}

// Delete opens file for delete.
func (c *Client) Delete(ctx context.Context, file string) error {
	return c.p4.Delete(ctx, c.User, c.Workspace, c.Path(file))
}

// Submission selects what Submit submits: the default changelist with a
// description, or an existing numbered pending changelist.
type Submission struct {
	description string
	pending     int
}

// Describe submits the default changelist with the given description.
func Describe(description string) Submission {
	return Submission{description: description}
}

// Pending submits an existing pending changelist.
func Pending(cl int) Submission {
	return Submission{pending: cl}
}

func (s Submission) String() string {
	if s.pending > 0 {
		return fmt.Sprintf("CL %d", s.pending)
	}
	return fmt.Sprintf("%q", s.description)
}

// Submit submits and returns the server's confirmation text.
func (c *Client) Submit(ctx context.Context, s Submission) (string, error) {
	if s.pending > 0 {
		return c.p4.SubmitChange(ctx, c.User, c.Workspace, s.pending)
	}
	return c.p4.Submit(ctx, c.User, c.Workspace, s.description)
}

// Sync brings the workspace to head.
func (c *Client) Sync(ctx context.Context) error {
	return c.p4.Sync(ctx, c.User, c.Workspace)
}

// Resolve resolves changelist cl.
func (c *Client) Resolve(ctx context.Context, cl int, clobber bool) error {
	return c.p4.Resolve(ctx, c.User, c.Workspace, cl, clobber)
}

// Changes lists the most recent changes on the stream, or pending changes in
// this workspace.
func (c *Client) Changes(ctx context.Context, limit int, pending bool) ([]p4.Change, error) {
	return c.p4.Changes(ctx, c.Workspace, c.Stream, limit, pending)
}

// LatestChange returns the newest submitted change on the stream, 0 when the
// stream has none.
func (c *Client) LatestChange(ctx context.Context) (int, error) {
	changes, err := c.Changes(ctx, 1, false)
	if err != nil {
		return 0, err
	}
	if len(changes) == 0 {
		return 0, nil
	}
	return changes[0].Change, nil
}

// Print returns the head contents of file.
func (c *Client) Print(ctx context.Context, file string) (string, error) {
	return c.p4.Print(ctx, c.Workspace, c.Path(file))
}

// Unshelve unshelves changelist cl into this workspace.
func (c *Client) Unshelve(ctx context.Context, cl int) error {
	return c.p4.Unshelve(ctx, c.User, c.Workspace, cl)
}

// DeleteShelved discards the shelved files of changelist cl.
func (c *Client) DeleteShelved(ctx context.Context, cl int) error {
	return c.p4.DeleteShelved(ctx, c.User, c.Workspace, cl)
}
