package suite

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/mergewatch/internal/functest"
)

// Manifest selects which tests a run includes.
//
//	bot: FUNCTIONALTEST
//	tests: [SimpleMerge, StompBinary]
//	skip: [StompBinary]
type Manifest struct {
	Bot   string   `yaml:"bot"`
	Tests []string `yaml:"tests"`
	Skip  []string `yaml:"skip"`
}

// ParseManifest decodes a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// LoadManifest reads and decodes the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// Select returns the names the manifest picks, in manifest order. No tests
// means every known test. Unknown names are an error.
func (m *Manifest) Select() ([]string, error) {
	names := Names()
	if m != nil && len(m.Tests) > 0 {
		names = m.Tests
	}
	var out []string
	for _, n := range names {
		if _, ok := registry[n]; !ok {
			return nil, fmt.Errorf("unknown test %q", n)
		}
		if m != nil && slices.Contains(m.Skip, n) {
			continue
		}
		out = append(out, n)
	}
	for _, n := range skipList(m) {
		if _, ok := registry[n]; !ok {
			return nil, fmt.Errorf("unknown test %q in skip list", n)
		}
	}
	return out, nil
}

func skipList(m *Manifest) []string {
	if m == nil {
		return nil
	}
	return m.Skip
}

// Build constructs the selected tests against env.
func Build(names []string, env functest.Env) ([]functest.Test, error) {
	tests := make([]functest.Test, 0, len(names))
	for _, n := range names {
		t, err := New(n, env)
		if err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	return tests, nil
}
