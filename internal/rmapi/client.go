// Package rmapi is an HTTP client for the merge service's bot API: branch
// state queries and the node/edge operation endpoints.
package rmapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/steveyegge/mergewatch/internal/branchstate"
)

// API is the set of service calls the harness makes.
type API interface {
	BranchState(ctx context.Context, bot, node string) (*branchstate.BranchState, error)
	VerifyStomp(ctx context.Context, bot, node, target string, cl int) (*StompVerification, error)
	PerformStomp(ctx context.Context, bot, node, target string, cl int) (*OpResult, error)
	Reconsider(ctx context.Context, bot, node string, cl int, target, command string) error
	CreateShelf(ctx context.Context, bot, node, target, workspace string, cl int) error
}

var _ API = (*Client)(nil)

// Client talks to one merge service instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the default HTTP request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a client for the service at baseURL (e.g. "http://robomerge:8877").
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the service root the client was created with.
func (c *Client) BaseURL() string { return c.baseURL }

// BranchState fetches and decodes the state of node on bot. The node name is
// upper-cased and escaped as a single path segment.
func (c *Client) BranchState(ctx context.Context, bot, node string) (*branchstate.BranchState, error) {
	branch := url.PathEscape(strings.ToUpper(node))
	path := ExpandTemplate(BranchInfoTemplate, Vars{Bot: bot, Branch: branch})
	res, err := c.do(ctx, http.MethodGet, "branch info", path, nil, http.StatusOK)
	if err == nil {
		var bs *branchstate.BranchState
		if bs, err = branchstate.Decode([]byte(res.Body)); err == nil {
			return bs, nil
		}
	}
	return nil, fmt.Errorf("couldn't query branch info for %s/%s: %w", bot, node, err)
}

// VerifyStomp asks whether stomping cl from node into target would be
// accepted. Both 200 and 400 carry a verification body.
func (c *Client) VerifyStomp(ctx context.Context, bot, node, target string, cl int) (*StompVerification, error) {
	path := ExpandTemplate(OperationTemplate, Vars{Bot: bot, Node: node, Op: OpVerifyStomp})
	res, err := c.do(ctx, http.MethodPost, OpVerifyStomp, path, stompQuery(cl, target), http.StatusOK, http.StatusBadRequest)
	if err != nil {
		return nil, err
	}
	var v StompVerification
	if err := json.Unmarshal([]byte(res.Body), &v); err != nil {
		return nil, fmt.Errorf("rmapi: %s: decode: %w", OpVerifyStomp, err)
	}
	return &v, nil
}

// PerformStomp requests the stomp. 200, 400 and 500 are all returned to the
// caller for interpretation.
func (c *Client) PerformStomp(ctx context.Context, bot, node, target string, cl int) (*OpResult, error) {
	path := ExpandTemplate(OperationTemplate, Vars{Bot: bot, Node: node, Op: OpStomp})
	return c.do(ctx, http.MethodPost, OpStomp, path, stompQuery(cl, target),
		http.StatusOK, http.StatusBadRequest, http.StatusInternalServerError)
}

// Reconsider asks the service to re-run cl on node, or only on the edge to
// target when target is non-empty. A non-empty command overrides the
// change's own merge directive.
func (c *Client) Reconsider(ctx context.Context, bot, node string, cl int, target, command string) error {
	tmpl, vars := OperationTemplate, Vars{Bot: bot, Node: node, Op: OpReconsider}
	if target != "" {
		tmpl, vars.Edge = EdgeOperationTemplate, target
	}
	clParam := strconv.Itoa(cl)
	if command != "" {
		clParam += " " + command
	}
	_, err := c.do(ctx, http.MethodPost, OpReconsider, ExpandTemplate(tmpl, vars), url.Values{"cl": {clParam}}, http.StatusOK)
	return err
}

// CreateShelf asks the service to shelve the conflicted merge of cl into
// target's workspace. The service answers "ok" on success.
func (c *Client) CreateShelf(ctx context.Context, bot, node, target, workspace string, cl int) error {
	path := ExpandTemplate(OperationTemplate, Vars{Bot: bot, Node: node, Op: OpCreateShelf})
	q := stompQuery(cl, target)
	q.Set("workspace", workspace)
	res, err := c.do(ctx, http.MethodPost, OpCreateShelf, path, q, http.StatusOK)
	if err != nil {
		return err
	}
	if res.Body != "ok" {
		return fmt.Errorf("unexpected response from %s: %s", OpCreateShelf, res.Body)
	}
	return nil
}

func stompQuery(cl int, target string) url.Values {
	return url.Values{"cl": {strconv.Itoa(cl)}, "target": {target}}
}

func (c *Client) do(ctx context.Context, method, op, path string, query url.Values, accept ...int) (*OpResult, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rmapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rmapi: %s %s: read: %w", method, path, err)
	}
	if !slices.Contains(accept, resp.StatusCode) {
		return nil, &APIError{Op: op, URL: u, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return &OpResult{StatusCode: resp.StatusCode, Body: string(body)}, nil
}
