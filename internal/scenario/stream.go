package scenario

import (
	"path/filepath"
	"regexp"
	"strings"
)

// StreamType is the Perforce stream type.
type StreamType string

const (
	Mainline    StreamType = "mainline"
	Development StreamType = "development"
	Release     StreamType = "release"
)

// Stream declares one test stream. Empty fields take the defaults below.
type Stream struct {
	Name      string
	Type      StreamType
	Owner     string
	Parent    string // stream name, not path
	DepotName string
	Options   string
	Paths     []string
	Ignored   []string
}

// Stream spec defaults.
const (
	DefaultStreamOwner   = "root"
	DefaultStreamParent  = "none"
	DefaultStreamOptions = "allsubmit unlocked notoparent nofromparent mergedown"
	defaultStreamPath    = "\n\tshare ..."
	createdByRoot        = "\n\tCreated by root."
)

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

// EscapeBranchName replaces every non-alphanumeric character with '_'.
func EscapeBranchName(stream string) string {
	return nonAlnum.ReplaceAllString(stream, "_")
}

// Builder derives names and specs for one test. Depot, workspace and branch
// names are all prefixed by the test name so tests can share a server.
type Builder struct {
	TestName string
	// WorkspacesRoot is the local directory workspace roots are created under.
	WorkspacesRoot string
}

// StreamPath returns //depot/name; an empty depot means the test's own depot.
func (b Builder) StreamPath(name, depot string) string {
	if depot == "" {
		depot = b.TestName
	}
	return "//" + depot + "/" + name
}

// FullBranchName is the merge-service node name for stream.
func (b Builder) FullBranchName(stream string) string {
	return b.TestName + EscapeBranchName(stream)
}

// WorkspaceName returns user_test_name.
func (b Builder) WorkspaceName(user, name string) string {
	return strings.Join([]string{user, b.TestName, name}, "_")
}

// ClientWorkspace returns the workspace name and local root for user on
// stream. A non-empty depot is included in the name.
func (b Builder) ClientWorkspace(user, stream, depot string) (workspace, root string) {
	parts := []string{user, b.TestName}
	if depot != "" {
		parts = append(parts, depot)
	}
	workspace = strings.Join(append(parts, stream), "_")
	return workspace, filepath.Join(b.WorkspacesRoot, workspace)
}

// StreamSpec renders the stream spec for s.
func (b Builder) StreamSpec(s Stream) string {
	owner := s.Owner
	if owner == "" {
		owner = DefaultStreamOwner
	}
	parent := DefaultStreamParent
	if s.Parent != "" {
		parent = b.StreamPath(s.Parent, s.DepotName)
	}
	options := s.Options
	if options == "" {
		options = DefaultStreamOptions
	}
	ignored := s.Ignored
	if len(ignored) == 0 {
		ignored = []string{""}
	}

	return SpecFormat(
		Field{"Stream", b.StreamPath(s.Name, s.DepotName)},
		Field{"Owner", owner},
		Field{"Name", s.Name},
		Field{"Parent", parent},
		Field{"Type", string(s.Type)},
		Field{"Description", createdByRoot},
		Field{"Options", options},
		Field{"Paths", strings.Join(append([]string{defaultStreamPath}, s.Paths...), "\n\t")},
		Field{"Ignored", strings.Join(ignored, "\n\t")},
	)
}

// DepotSpec renders a stream depot spec; an empty name means the test's own depot.
func (b Builder) DepotSpec(name string) string {
	if name == "" {
		name = b.TestName
	}
	return SpecFormat(
		Field{"Depot", name},
		Field{"Owner", "root"},
		Field{"Description", createdByRoot},
		Field{"Type", "stream"},
		Field{"StreamDepth", "//" + name + "/1"},
		Field{"Map", name + "/..."},
	)
}
