// Package meteora is a thin client for the Meteora DLMM pools index API.
package meteora

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/becomeliminal/dlmm-scout/core"
)

// DefaultBaseURL is the public DLMM API host.
const DefaultBaseURL = "https://dlmm-api.meteora.ag"

const groupsPath = "/pair/all_by_groups"

// Client fetches pool groups from the DLMM API. It does not retry; callers
// decide what a failed search term means.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for baseURL. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the pool groups matching searchTerm. Any transport failure or
// non-2xx status is returned as a *core.GatewayError.
func (c *Client) Fetch(ctx context.Context, searchTerm string) (*core.PoolGroupResponse, error) {
	op := fmt.Sprintf("fetch pools %q", searchTerm)

	endpoint := c.baseURL + groupsPath + "?" + url.Values{"search_term": {searchTerm}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &core.GatewayError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &core.GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &core.GatewayError{Op: op, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.GatewayError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	var result core.PoolGroupResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &core.GatewayError{Op: op, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	return &result, nil
}
