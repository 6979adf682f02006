package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// RecordedRequest stores information about a request made to the mock service.
type RecordedRequest struct {
	Method string
	Path   string
	Query  map[string]string
}

// OpRequest is the decoded form of an operation call.
type OpRequest struct {
	Bot   string
	Node  string
	Edge  string
	Op    string
	Query map[string]string
}

// OpResponse is a configured operation reply.
type OpResponse struct {
	StatusCode int
	Body       string
}

// MergeService is an httptest stand-in for the merge service and its
// notification sink. Branch payloads, operation replies and posted
// notifications are configured per test; every request is recorded.
type MergeService struct {
	Server *httptest.Server
	mu     sync.RWMutex

	requests []RecordedRequest
	branches map[string][]byte // upper-cased node -> body
	branchFn func(node string) (Branch, bool)
	ops      map[string]func(OpRequest) OpResponse
	posted   map[string][]int
	failing  bool
}

// NewMergeService starts the mock service. Callers must Close it.
func NewMergeService() *MergeService {
	m := &MergeService{
		branches: make(map[string][]byte),
		ops:      make(map[string]func(OpRequest) OpResponse),
		posted:   make(map[string][]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/bot/{bot}/branch/{branch}", m.handleBranch)
	mux.HandleFunc("POST /api/op/bot/{bot}/node/{node}/op/{op}", m.handleOp)
	mux.HandleFunc("POST /api/op/bot/{bot}/node/{node}/edge/{edge}/op/{op}", m.handleOp)
	mux.HandleFunc("GET /posted/{channel}", m.handlePosted)

	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		m.mu.Lock()
		m.requests = append(m.requests, RecordedRequest{Method: r.Method, Path: r.URL.Path, Query: flatten(r)})
		failing := m.failing
		m.mu.Unlock()

		if failing {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, "Internal server error")
			return
		}
		mux.ServeHTTP(w, r)
	}))
	return m
}

// URL returns the mock service URL.
func (m *MergeService) URL() string {
	return m.Server.URL
}

// Close shuts down the mock service.
func (m *MergeService) Close() {
	m.Server.Close()
}

// SetBranch configures the branch-info response for node.
func (m *MergeService) SetBranch(node string, b Branch) {
	m.SetBranchJSON(node, b.JSON())
}

// SetBranchJSON configures a raw branch-info body for node.
func (m *MergeService) SetBranchJSON(node string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.branches[strings.ToUpper(node)] = body
}

// SetBranchFunc computes branch-info responses on demand. It takes
// precedence over SetBranch; a false result falls through to the fixed
// payloads.
func (m *MergeService) SetBranchFunc(fn func(node string) (Branch, bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.branchFn = fn
}

// SetOp configures a fixed reply for op.
func (m *MergeService) SetOp(op string, statusCode int, body string) {
	m.SetOpHandler(op, func(OpRequest) OpResponse {
		return OpResponse{StatusCode: statusCode, Body: body}
	})
}

// SetOpHandler configures a reply computed from the request.
func (m *MergeService) SetOpHandler(op string, h func(OpRequest) OpResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op] = h
}

// Post records a notification for cl on channel.
func (m *MergeService) Post(channel string, cl int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posted[channel] = append(m.posted[channel], cl)
}

// SetServerError enables/disables 500 responses for every request.
func (m *MergeService) SetServerError(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = enabled
}

// GetRequests returns all recorded requests.
func (m *MergeService) GetRequests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]RecordedRequest, len(m.requests))
	copy(result, m.requests)
	return result
}

// CountRequests returns how many recorded requests had a path containing substr.
func (m *MergeService) CountRequests(substr string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.requests {
		if strings.Contains(r.Path, substr) {
			n++
		}
	}
	return n
}

func (m *MergeService) handleBranch(w http.ResponseWriter, r *http.Request) {
	node := strings.ToUpper(r.PathValue("branch"))
	m.mu.RLock()
	fn := m.branchFn
	body, ok := m.branches[node]
	m.mu.RUnlock()
	if fn != nil {
		if b, found := fn(node); found {
			body, ok = b.JSON(), true
		}
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "Resource Not Found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (m *MergeService) handleOp(w http.ResponseWriter, r *http.Request) {
	req := OpRequest{
		Bot:   r.PathValue("bot"),
		Node:  r.PathValue("node"),
		Edge:  r.PathValue("edge"),
		Op:    r.PathValue("op"),
		Query: flatten(r),
	}
	m.mu.RLock()
	h, ok := m.ops[req.Op]
	m.mu.RUnlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "unknown op "+req.Op)
		return
	}
	resp := h(req)
	if resp.StatusCode == 0 {
		resp.StatusCode = http.StatusOK
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}

func (m *MergeService) handlePosted(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	cls := append([]int{}, m.posted[r.PathValue("channel")]...)
	m.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cls)
}

func flatten(r *http.Request) map[string]string {
	out := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
