// Package resources manages resource containers, the deletable grouping
// boundary everything else in a lab session lives inside.
package resources

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

const defaultTimeout = 30 * time.Second

// Container is a provider resource container record.
type Container struct {
	Name     string            `json:"name"`
	Location string            `json:"location"`
	Tags     map[string]string `json:"tags"`
	State    string            `json:"provisioningState"`
}

// Client talks to the cloud provider's resource container API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient returns a resource container client for the given API base URL and bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// CreateContainer creates the named container in location with tags. Creating
// an existing container is an update in the provider's model, so relaunch
// against a preserved container succeeds.
func (c *Client) CreateContainer(ctx context.Context, name, location string, tags map[string]string) error {
	body := map[string]interface{}{
		"location": location,
		"tags":     tags,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.containerURL(name), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("resources: create container: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return nil
	}
	b, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("resources: create container failed status=%d body=%s", resp.StatusCode, string(b))
}

// GetContainer returns the container, or nil when the provider reports not found.
func (c *Client) GetContainer(ctx context.Context, name string) (*Container, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.containerURL(name), nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resources: get container: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("resources: get container failed status=%d body=%s", resp.StatusCode, string(b))
	}
	var out Container
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteContainer removes the container and everything in it. Not found is success.
func (c *Client) DeleteContainer(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.containerURL(name), nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("resources: delete container: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusOK ||
		resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	b, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("resources: delete container failed status=%d body=%s", resp.StatusCode, string(b))
}

func (c *Client) containerURL(name string) string {
	return c.BaseURL + "/resources/containers/" + url.PathEscape(name)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)
}
