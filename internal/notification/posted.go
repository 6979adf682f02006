// Package notification reads back the messages the merge service posted to
// its chat sink. In the functional-test environment the sink is a dummy
// service that records, per channel, the change numbers it was told about.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"
)

// ErrNotPosted is returned by ExpectPosted when a channel lacks the change.
var ErrNotPosted = errors.New("no message posted")

// Client queries the notification sink.
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

// NewClient creates a client for the sink at baseURL (e.g. "http://robomerge:8811").
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// DefaultChannel is the channel a bot posts blockages to.
func DefaultChannel(bot string) string {
	return strings.ToLower(bot)
}

// Posted returns the change numbers posted to channel.
func (c *Client) Posted(ctx context.Context, channel string) ([]int, error) {
	url := c.baseURL + "/posted/" + channel
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("notification request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("notification sink returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var cls []int
	if err := json.NewDecoder(resp.Body).Decode(&cls); err != nil {
		return nil, fmt.Errorf("failed to parse posted list for %s: %w", channel, err)
	}
	return cls, nil
}

// WasPosted reports whether cl was posted to channel.
func (c *Client) WasPosted(ctx context.Context, channel string, cl int) (bool, error) {
	cls, err := c.Posted(ctx, channel)
	if err != nil {
		return false, err
	}
	return slices.Contains(cls, cl), nil
}

// ExpectPosted checks each channel in order and fails on the first one that
// has no message for cl.
func (c *Client) ExpectPosted(ctx context.Context, cl int, channels ...string) error {
	for _, ch := range channels {
		ok, err := c.WasPosted(ctx, ch, cl)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w to %s for CL#%d", ErrNotPosted, ch, cl)
		}
	}
	return nil
}
