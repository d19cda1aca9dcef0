// Package gateway manages remote-desktop broker records: per-session gateway
// users and the RDP connections binding them to lab VMs.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultTimeout = 20 * time.Second

// Connection is a broker connection record for one lab VM.
type Connection struct {
	ID       string `json:"identifier"`
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	Hostname string `json:"hostname"`
}

// Client talks to the remote-desktop broker's admin REST API. Admin tokens are
// short-lived; the client re-authenticates on demand.
type Client struct {
	BaseURL    string
	Username   string
	Password   string
	HTTPClient *http.Client

	mu    sync.Mutex
	token string
}

// NewClient returns a broker client authenticating with the given admin credentials.
func NewClient(baseURL, username, password string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Username:   username,
		Password:   password,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// EnsureUser creates the gateway user if absent. An existing user is success.
func (c *Client) EnsureUser(ctx context.Context, username, password string) error {
	body := map[string]string{"username": username, "password": password}
	resp, err := c.do(ctx, http.MethodPost, "/api/users", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusConflict {
		return nil
	}
	b, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("gateway: create user failed status=%d body=%s", resp.StatusCode, string(b))
}

// DeleteUser removes the gateway user and its connections. Not found is success.
func (c *Client) DeleteUser(ctx context.Context, username string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/users/"+url.PathEscape(username), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		return nil
	}
	b, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("gateway: delete user failed status=%d body=%s", resp.StatusCode, string(b))
}

// SyncConnection creates or updates the RDP connection for vmName pointing at
// address and grants it to username. Passing an existing connection id updates
// that record instead of creating a duplicate. Returns the connection id.
func (c *Client) SyncConnection(ctx context.Context, username, vmName, address, existingID string) (string, error) {
	body := map[string]string{
		"name":     vmName,
		"protocol": "rdp",
		"hostname": address,
		"username": username,
	}
	method, path := http.MethodPost, "/api/connections"
	if existingID != "" {
		method, path = http.MethodPut, "/api/connections/"+url.PathEscape(existingID)
	}
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gateway: sync connection failed status=%d body=%s", resp.StatusCode, string(b))
	}
	var conn Connection
	if err := json.NewDecoder(resp.Body).Decode(&conn); err != nil {
		return "", err
	}
	if conn.ID == "" {
		conn.ID = existingID
	}
	return conn.ID, nil
}

// ConsoleURL builds the browser URL for a connection id.
func (c *Client) ConsoleURL(connectionID string) string {
	return c.BaseURL + "/#/client/" + url.PathEscape(connectionID)
}

// do sends an authenticated request, re-authenticating once on 401.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		return c.send(ctx, method, path, body)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	token, err := c.authToken(ctx)
	if err != nil {
		return nil, err
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = strings.NewReader(string(raw))
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Guacamole-Token", token)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	form := url.Values{"username": {c.Username}, "password": {c.Password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/tokens",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway: authenticate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gateway: authenticate failed status=%d body=%s", resp.StatusCode, string(b))
	}
	var out struct {
		AuthToken string `json:"authToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.AuthToken == "" {
		return "", fmt.Errorf("gateway: empty auth token")
	}
	c.token = out.AuthToken
	return c.token, nil
}
