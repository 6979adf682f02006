package workspace

import (
	"fmt"
	"sort"
)

// Registry maps (user, stream path) to the session for that pair.
//
// Not safe for concurrent use: it is populated during scenario setup and
// only read afterwards, apart from explicit additions.
type Registry struct {
	byUser map[string]map[string]*Client
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byUser: make(map[string]map[string]*Client)}
}

// Add registers c under (c.User, c.Stream). A second client for the same
// pair is an error.
func (r *Registry) Add(c *Client) (*Client, error) {
	streams := r.byUser[c.User]
	if streams == nil {
		streams = make(map[string]*Client)
		r.byUser[c.User] = streams
	}
	if _, exists := streams[c.Stream]; exists {
		return nil, fmt.Errorf("client list for %s already contains entry for stream %s", c.User, c.Stream)
	}
	streams[c.Stream] = c
	return c, nil
}

// Get returns the client for user on streamPath.
func (r *Registry) Get(user, streamPath string) (*Client, error) {
	if len(r.byUser) == 0 {
		return nil, fmt.Errorf("no clients set up")
	}
	streams, ok := r.byUser[user]
	if !ok {
		return nil, fmt.Errorf("%s has no clients set up in client mappings", user)
	}
	c, ok := streams[streamPath]
	if !ok {
		return nil, fmt.Errorf("%s has no client for stream %s", user, streamPath)
	}
	return c, nil
}

// ForUser returns the user's clients ordered by stream path.
func (r *Registry) ForUser(user string) []*Client {
	streams := r.byUser[user]
	paths := make([]string, 0, len(streams))
	for p := range streams {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]*Client, 0, len(paths))
	for _, p := range paths {
		out = append(out, streams[p])
	}
	return out
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	n := 0
	for _, streams := range r.byUser {
		n += len(streams)
	}
	return n
}
