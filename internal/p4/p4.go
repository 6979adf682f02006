// Package p4 drives a Perforce server through the p4 command line.
//
// Every operation maps onto a single p4 invocation. Failures carry the
// command name and the server's stderr; nothing is retried or reinterpreted
// here.
package p4

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// AdminUser owns depots and streams created by the harness.
const AdminUser = "root"

// Change is one entry of `p4 changes`.
type Change struct {
	Change int
	Client string
	User   string
	Status string
	Desc   string
}

// CommandError is returned when p4 exits non-zero.
type CommandError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("p4 %s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("p4 %s: %v: %s", e.Command, e.Err, msg)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Perforce issues p4 commands against one server.
type Perforce struct {
	runner Runner
	port   string
}

// New creates a Perforce handle. port may be empty to use P4PORT from the
// environment.
func New(runner Runner, port string) *Perforce {
	return &Perforce{runner: runner, port: port}
}

// Port returns the configured server address.
func (p *Perforce) Port() string { return p.port }

func (p *Perforce) run(ctx context.Context, user, client, stdin string, args ...string) (string, error) {
	full := make([]string, 0, len(args)+6)
	if p.port != "" {
		full = append(full, "-p", p.port)
	}
	if user != "" {
		full = append(full, "-u", user)
	}
	if client != "" {
		full = append(full, "-c", client)
	}
	full = append(full, args...)

	stdout, stderr, err := p.runner.Run(ctx, stdin, full...)
	if err != nil {
		return stdout, &CommandError{Command: commandName(args), Stderr: stderr, Err: err}
	}
	return stdout, nil
}

func commandName(args []string) string {
	for _, a := range args {
		if !strings.HasPrefix(a, "-") {
			return a
		}
	}
	return strings.Join(args, " ")
}

// Client creates or updates a client workspace from spec text.
func (p *Perforce) Client(ctx context.Context, user, spec string) error {
	_, err := p.run(ctx, user, "", spec, "client", "-i")
	return err
}

// Stream creates or updates a stream from spec text.
func (p *Perforce) Stream(ctx context.Context, spec string) error {
	_, err := p.run(ctx, AdminUser, "", spec, "stream", "-i")
	return err
}

// Depot creates or updates a depot from spec text.
func (p *Perforce) Depot(ctx context.Context, spec string) error {
	_, err := p.run(ctx, AdminUser, "", spec, "depot", "-i")
	return err
}

// Add opens a local file for add.
func (p *Perforce) Add(ctx context.Context, user, client, path string, binary bool) error {
	args := []string{"add"}
	if binary {
		args = append(args, "-t", "binary")
	}
	_, err := p.run(ctx, user, client, "", append(args, path)...)
	return err
}

// Edit opens a local file for edit.
func (p *Perforce) Edit(ctx context.Context, user, client, path string) error {
	_, err := p.run(ctx, user, client, "", "edit", path)
	return err
}

// Delete opens a local file for delete.
func (p *Perforce) Delete(ctx context.Context, user, client, path string) error {
	_, err := p.run(ctx, user, client, "", "delete", path)
	return err
}

// Submit submits the default changelist and returns the server's
// confirmation text.
func (p *Perforce) Submit(ctx context.Context, user, client, description string) (string, error) {
	return p.run(ctx, user, client, "", "submit", "-d", description)
}

// SubmitChange submits a numbered pending changelist.
func (p *Perforce) SubmitChange(ctx context.Context, user, client string, cl int) (string, error) {
	return p.run(ctx, user, client, "", "submit", "-c", strconv.Itoa(cl))
}

// Sync brings the workspace to head.
func (p *Perforce) Sync(ctx context.Context, user, client string) error {
	_, err := p.run(ctx, user, client, "", "sync")
	return err
}

// Resolve resolves files in changelist cl. clobber accepts theirs,
// otherwise a safe merge is attempted.
func (p *Perforce) Resolve(ctx context.Context, user, client string, cl int, clobber bool) error {
	mode := "-am"
	if clobber {
		mode = "-at"
	}
	_, err := p.run(ctx, user, client, "", "resolve", mode, "-c", strconv.Itoa(cl))
	return err
}

// Changes lists the most recent changes. Submitted changes are filtered to
// the stream; pending changes to the client workspace.
func (p *Perforce) Changes(ctx context.Context, client, stream string, limit int, pending bool) ([]Change, error) {
	args := []string{"-ztag", "changes", "-l", "-m", strconv.Itoa(limit)}
	if pending {
		args = append(args, "-s", "pending", "-c", client)
	} else {
		args = append(args, "-s", "submitted", stream+"/...")
	}

	out, err := p.run(ctx, "", "", "", args...)
	if err != nil {
		return nil, err
	}

	var changes []Change
	for _, rec := range ParseZtag(out) {
		num, err := strconv.Atoi(rec["change"])
		if err != nil {
			return nil, fmt.Errorf("p4 changes: bad change number %q", rec["change"])
		}
		changes = append(changes, Change{
			Change: num,
			Client: rec["client"],
			User:   rec["user"],
			Status: rec["status"],
			Desc:   rec["desc"],
		})
	}
	return changes, nil
}

// Print returns the head contents of a file.
func (p *Perforce) Print(ctx context.Context, client, path string) (string, error) {
	return p.run(ctx, "", client, "", "print", "-q", path)
}

// Unshelve unshelves changelist cl into the workspace's default changelist.
func (p *Perforce) Unshelve(ctx context.Context, user, client string, cl int) error {
	_, err := p.run(ctx, user, client, "", "unshelve", "-s", strconv.Itoa(cl))
	return err
}

// DeleteShelved discards the shelved files of changelist cl.
func (p *Perforce) DeleteShelved(ctx context.Context, user, client string, cl int) error {
	_, err := p.run(ctx, user, client, "", "shelve", "-d", "-c", strconv.Itoa(cl))
	return err
}

// Fstat returns the head revision line of a depot file
// ("... headRev N"). Missing files surface as an error whose text contains
// "no such file(s).".
func (p *Perforce) Fstat(ctx context.Context, depotPath string) (string, error) {
	out, err := p.run(ctx, "", "", "", "fstat", "-T", "headRev", depotPath)
	if err == nil && strings.TrimSpace(out) == "" {
		return "", &CommandError{Command: "fstat", Stderr: depotPath + " - no such file(s).", Err: errNoOutput}
	}
	return out, err
}

var errNoOutput = errors.New("no output")
