// Package testutil provides in-process stand-ins for the Perforce server and
// the merge service so harness packages can be tested without either.
package testutil

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/steveyegge/mergewatch/internal/p4"
)

// FakeP4 is an in-memory Perforce. Client specs register workspace→stream
// bindings; submits allocate increasing change numbers per server.
type FakeP4 struct {
	mu sync.Mutex

	nextCL    int
	streams   map[string]string      // client -> stream path
	submitted map[string][]p4.Change // stream path -> newest first
	pending   map[string][]p4.Change // client -> newest first
	opened    map[string][]string    // client -> opened paths
	heads     map[string]int         // depot file -> head revision
	files     map[int]map[string]int // change -> stream-relative file -> revision
	shelved   map[int][]string       // pending change -> files
	specs     map[string][]string    // "client"/"stream"/"depot" -> specs
	failures  map[string]error       // command -> error to return

	// SubmitOutput, when set, formats the confirmation for change n.
	SubmitOutput func(n int) string

	Calls []string
}

// NewFakeP4 returns an empty server whose first change is 1.
func NewFakeP4() *FakeP4 {
	return &FakeP4{
		nextCL:    1,
		streams:   make(map[string]string),
		submitted: make(map[string][]p4.Change),
		pending:   make(map[string][]p4.Change),
		opened:    make(map[string][]string),
		heads:     make(map[string]int),
		files:     make(map[int]map[string]int),
		shelved:   make(map[int][]string),
		specs:     make(map[string][]string),
		failures:  make(map[string]error),
	}
}

// Fail makes every later call of command return err.
func (f *FakeP4) Fail(command string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[command] = err
}

func (f *FakeP4) record(command, detail string) error {
	f.Calls = append(f.Calls, strings.TrimSpace(command+" "+detail))
	return f.failures[command]
}

// Specs returns the spec texts received for kind ("client", "stream", "depot").
func (f *FakeP4) Specs(kind string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.specs[kind]...)
}

func specField(spec, field string) string {
	for _, line := range strings.Split(spec, "\n") {
		if v, ok := strings.CutPrefix(line, field+": "); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (f *FakeP4) Client(_ context.Context, user, spec string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("client", user); err != nil {
		return err
	}
	f.specs["client"] = append(f.specs["client"], spec)
	f.streams[specField(spec, "Client")] = specField(spec, "Stream")
	return nil
}

func (f *FakeP4) Stream(_ context.Context, spec string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("stream", ""); err != nil {
		return err
	}
	f.specs["stream"] = append(f.specs["stream"], spec)
	return nil
}

func (f *FakeP4) Depot(_ context.Context, spec string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("depot", ""); err != nil {
		return err
	}
	f.specs["depot"] = append(f.specs["depot"], spec)
	return nil
}

func (f *FakeP4) open(command, client, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(command, client+" "+path); err != nil {
		return err
	}
	f.opened[client] = append(f.opened[client], path)
	return nil
}

func (f *FakeP4) Add(_ context.Context, _, client, path string, _ bool) error {
	return f.open("add", client, path)
}

func (f *FakeP4) Edit(_ context.Context, _, client, path string) error {
	return f.open("edit", client, path)
}

func (f *FakeP4) Delete(_ context.Context, _, client, path string) error {
	return f.open("delete", client, path)
}

func (f *FakeP4) Submit(_ context.Context, user, client, description string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("submit", client); err != nil {
		return "", err
	}
	if len(f.opened[client]) == 0 {
		return "", &p4.CommandError{Command: "submit", Stderr: "No files to submit.", Err: fmt.Errorf("exit status 1")}
	}
	rel := make([]string, len(f.opened[client]))
	for i, path := range f.opened[client] {
		rel[i] = f.relPathLocked(client, path)
	}
	n := f.commitLocked(f.streams[client], client, user, description, rel)
	f.opened[client] = nil
	return f.confirmLocked(n), nil
}

func (f *FakeP4) SubmitChange(_ context.Context, user, client string, cl int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("submit", fmt.Sprintf("%s -c %d", client, cl)); err != nil {
		return "", err
	}
	kept := f.pending[client][:0]
	found := false
	for _, c := range f.pending[client] {
		if c.Change == cl {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	f.pending[client] = kept
	if !found {
		return "", &p4.CommandError{Command: "submit", Stderr: fmt.Sprintf("Change %d unknown.", cl), Err: fmt.Errorf("exit status 1")}
	}
	n := f.commitLocked(f.streams[client], client, user, fmt.Sprintf("pending %d", cl), f.shelved[cl])
	delete(f.shelved, cl)
	return fmt.Sprintf("Change %d renamed change %d and submitted.", cl, n), nil
}

func (f *FakeP4) commitLocked(stream, client, user, desc string, files []string) int {
	n := f.nextCL
	f.nextCL++
	change := p4.Change{Change: n, Client: client, User: user, Status: "submitted", Desc: desc}
	f.submitted[stream] = append([]p4.Change{change}, f.submitted[stream]...)
	revs := make(map[string]int, len(files))
	for _, file := range files {
		f.heads[stream+"/"+file]++
		revs[file] = f.heads[stream+"/"+file]
	}
	f.files[n] = revs
	return n
}

func (f *FakeP4) confirmLocked(n int) string {
	if f.SubmitOutput != nil {
		return f.SubmitOutput(n)
	}
	return fmt.Sprintf("Submitting change %d.\nChange %d submitted.\n", n, n)
}

// relPathLocked maps a local path to its stream-relative name using the
// client's workspace directory name as the root marker.
func (f *FakeP4) relPathLocked(client, path string) string {
	_, rel, ok := strings.Cut(path, "/"+client+"/")
	if !ok {
		return path
	}
	return rel
}

func (f *FakeP4) Sync(_ context.Context, _, client string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("sync", client)
}

func (f *FakeP4) Resolve(_ context.Context, _, client string, cl int, clobber bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("resolve", fmt.Sprintf("%s %d %t", client, cl, clobber))
}

func (f *FakeP4) Changes(_ context.Context, client, stream string, limit int, pending bool) ([]p4.Change, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("changes", client+" "+stream); err != nil {
		return nil, err
	}
	src := f.submitted[stream]
	if pending {
		src = f.pending[client]
	}
	if limit > 0 && len(src) > limit {
		src = src[:limit]
	}
	return append([]p4.Change(nil), src...), nil
}

func (f *FakeP4) Print(_ context.Context, client, path string) (string, error) {
	f.mu.Lock()
	err := f.record("print", client+" "+path)
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &p4.CommandError{Command: "print", Stderr: path + " - no such file(s).", Err: err}
	}
	return string(data), nil
}

func (f *FakeP4) Unshelve(_ context.Context, _, client string, cl int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("unshelve", fmt.Sprintf("%s %d", client, cl))
}

func (f *FakeP4) DeleteShelved(_ context.Context, _, client string, cl int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("shelve", fmt.Sprintf("%s -d %d", client, cl))
}

func (f *FakeP4) Fstat(_ context.Context, depotPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("fstat", depotPath); err != nil {
		return "", err
	}
	rev, ok := f.heads[depotPath]
	if !ok {
		return "", &p4.CommandError{Command: "fstat", Stderr: depotPath + " - no such file(s).", Err: fmt.Errorf("exit status 1")}
	}
	return fmt.Sprintf("... headRev %d\n", rev), nil
}

// SubmitAs records a change on stream as if another party (e.g. the merge
// service) submitted it. It returns the new change number.
func (f *FakeP4) SubmitAs(stream, user, desc string, files ...string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commitLocked(stream, "", user, desc, files)
}

// AddPending creates a pending (shelved) change in client touching files and
// returns it. Submitting it bumps those files on the client's stream.
func (f *FakeP4) AddPending(client, desc string, files ...string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.nextCL
	f.nextCL++
	f.pending[client] = append([]p4.Change{{Change: n, Client: client, Status: "pending", Desc: desc}}, f.pending[client]...)
	f.shelved[n] = files
	return n
}

// IsPending reports whether cl is still a pending change in client.
func (f *FakeP4) IsPending(client string, cl int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.pending[client] {
		if c.Change == cl {
			return true
		}
	}
	return false
}

// ChangesSince returns the changes submitted to stream after change after,
// oldest first.
func (f *FakeP4) ChangesSince(stream string, after int) []p4.Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []p4.Change
	for _, c := range slices.Backward(f.submitted[stream]) {
		if c.Change > after {
			out = append(out, c)
		}
	}
	return out
}

// FileRevs returns the stream-relative files change cl touched and the
// revision each reached.
func (f *FakeP4) FileRevs(cl int) map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.files[cl])
}

// Head returns the head revision of a depot file, 0 if it does not exist.
func (f *FakeP4) Head(depotPath string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heads[depotPath]
}

// Latest returns the newest submitted change on stream, 0 if none.
func (f *FakeP4) Latest(stream string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c := f.submitted[stream]; len(c) > 0 {
		return c[0].Change
	}
	return 0
}

// Clients returns registered client names in sorted order.
func (f *FakeP4) Clients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.streams))
	for c := range f.streams {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
