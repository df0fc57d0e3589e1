// Package mcstatus watches a Minecraft server and mirrors its state into a
// Discord thread: the thread name carries the up/down badge and player count,
// a pinned-style detail message lists who is online.
package mcstatus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultAPIBase = "https://api.mcstatus.io/v2"

// Player is one online player.
type Player struct {
	UUID string `json:"uuid"`
	Name string `json:"name_clean"`
}

// Players is the player section of a status response.
type Players struct {
	Online int      `json:"online"`
	Max    int      `json:"max"`
	List   []Player `json:"list"`
}

// ServerStatus is the subset of the status API the watcher uses.
type ServerStatus struct {
	Online  bool    `json:"online"`
	Host    string  `json:"host"`
	Players Players `json:"players"`
}

// Client queries the public mcstatus.io API for a fixed host.
type Client struct {
	host    string
	baseURL string
	http    *http.Client
}

func NewClient(host string) *Client {
	return &Client{
		host:    host,
		baseURL: defaultAPIBase,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
}

// Status fetches the current server status.
func (c *Client) Status(ctx context.Context) (*ServerStatus, error) {
	url := fmt.Sprintf("%s/status/java/%s", c.baseURL, c.host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query server status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query server status: status %d", resp.StatusCode)
	}

	var status ServerStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode server status: %w", err)
	}
	return &status, nil
}
