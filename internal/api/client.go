package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/banshee-data/pet-feeder/internal/httputil"
)

// Client queries a running feeder's status server.
type Client struct {
	base string
	http httputil.HTTPClient
}

// NewClient returns a Client for the server listening on addr, e.g.
// "localhost:8081". A nil hc uses http.DefaultClient.
func NewClient(addr string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	base := strings.TrimSuffix(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{base: base, http: hc}
}

// Status fetches GET /api/status.
func (c *Client) Status() (Status, error) {
	var st Status
	resp, err := c.http.Get(c.base + "/api/status")
	if err != nil {
		return st, fmt.Errorf("failed to query status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return st, fmt.Errorf("status request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("failed to decode status: %w", err)
	}
	return st, nil
}
