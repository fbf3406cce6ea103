// Package planclient calls a running tileplan server.
package planclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/fxnlabs/tileplan/internal/planerr"
	"github.com/fxnlabs/tileplan/internal/planner"
)

// Client sends plan requests to a server at baseURL.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a Client. A nil client uses http.DefaultClient.
func New(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{baseURL: baseURL, client: client}
}

// Plan asks the server for a launch. Server-side planning errors come back
// as planerr errors of the same kind, so callers can still fall back on
// Unavailable.
func (c *Client) Plan(ctx context.Context, req planner.Request) (*planner.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/plan", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var remote struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if json.Unmarshal(data, &remote) != nil || remote.Error == "" {
			return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(data))
		}
		switch remote.Kind {
		case planerr.KindUnavailable.String():
			return nil, planerr.Unavailable("planclient.plan", "%s", remote.Error)
		case planerr.KindInvalidConfig.String():
			return nil, planerr.InvalidConfig("planclient.plan", "%s", remote.Error)
		}
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, remote.Error)
	}

	var res planner.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &res, nil
}
