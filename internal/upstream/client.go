// Package upstream holds the CRM backend clients: the REST client used for
// pending-item polling and mutations, and the socket consuming live events.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultRequestTimeout = 15 * time.Second

// HTTPError carries the status and body summary of a failed backend call.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream: http %d: %s", e.StatusCode, e.Message)
}

// Credentials identify the agent against the CRM backend. An empty token is
// sent as-is; the backend rejects it and the failure surfaces generically.
type Credentials struct {
	Token       string
	ExecutiveID string
}

// ClientConfig configures the REST client.
type ClientConfig struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Client is the REST client for the call-center executive endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      Credentials
}

// NewClient constructs a REST client for the given backend and credentials.
func NewClient(cfg ClientConfig, creds Credentials) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		creds:      creds,
	}
}

// ExecutiveID returns the agent identifier the client acts for.
func (c *Client) ExecutiveID() string {
	return c.creds.ExecutiveID
}

// NewRequestCount returns the number of requests waiting for any agent. The
// background task polls this to raise an OS-level nudge.
func (c *Client) NewRequestCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/callexe/newrequests", nil, &out)
	return out.Count, err
}

// PendingItems fetches the full pending-item backlog for the agent, keyed by
// category.
func (c *Client) PendingItems(ctx context.Context) (map[string][]map[string]interface{}, error) {
	var out struct {
		PendingItems map[string][]map[string]interface{} `json:"pendingItems"`
	}
	path := fmt.Sprintf("/callexe/%s/pending-items", url.PathEscape(c.creds.ExecutiveID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.PendingItems, nil
}

// PendingItemsFor fetches the backlog scoped to one category's API type.
func (c *Client) PendingItemsFor(ctx context.Context, apiType string) (map[string][]map[string]interface{}, error) {
	var out struct {
		PendingItems map[string][]map[string]interface{} `json:"pendingItems"`
	}
	path := fmt.Sprintf("/callexe/%s/pending-items/%s",
		url.PathEscape(c.creds.ExecutiveID), url.PathEscape(apiType))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.PendingItems, nil
}

// presenceBody is shared by the login/logout time updates.
type presenceBody struct {
	Status               bool            `json:"status"`
	NotificationSettings map[string]bool `json:"notificationSettings"`
}

// UpdateLoginTime marks the agent active upstream with its current settings.
func (c *Client) UpdateLoginTime(ctx context.Context, settings map[string]bool) error {
	path := fmt.Sprintf("/callexe/%s/update-login-time", url.PathEscape(c.creds.ExecutiveID))
	return c.doJSON(ctx, http.MethodPatch, path, presenceBody{Status: true, NotificationSettings: settings}, nil)
}

// UpdateLogoutTime marks the agent inactive; settings are zeroed upstream.
func (c *Client) UpdateLogoutTime(ctx context.Context, settings map[string]bool) error {
	path := fmt.Sprintf("/callexe/%s/update-logout-time", url.PathEscape(c.creds.ExecutiveID))
	return c.doJSON(ctx, http.MethodPatch, path, presenceBody{Status: false, NotificationSettings: settings}, nil)
}

// UpdateNotificationSettings persists the per-category toggles upstream.
func (c *Client) UpdateNotificationSettings(ctx context.Context, settings map[string]bool) error {
	path := fmt.Sprintf("/callexe/%s/notification-settings", url.PathEscape(c.creds.ExecutiveID))
	body := struct {
		NotificationSettings map[string]bool `json:"notificationSettings"`
	}{NotificationSettings: settings}
	return c.doJSON(ctx, http.MethodPatch, path, body, nil)
}

// Accept claims an item for this agent.
func (c *Client) Accept(ctx context.Context, apiType, itemID string) error {
	return c.resolve(ctx, apiType, itemID, "accept")
}

// Reject declines an item on behalf of this agent.
func (c *Client) Reject(ctx context.Context, apiType, itemID string) error {
	return c.resolve(ctx, apiType, itemID, "reject")
}

func (c *Client) resolve(ctx context.Context, apiType, itemID, action string) error {
	path := fmt.Sprintf("/callexe/%s/%s/%s",
		url.PathEscape(apiType), url.PathEscape(itemID), action)
	body := struct {
		ExecutiveID string `json:"executiveId"`
	}{ExecutiveID: c.creds.ExecutiveID}
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("upstream: encode body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("token", c.creds.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		summary, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(summary)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("upstream: decode response: %w", err)
	}
	return nil
}
