// Package identity provisions and removes directory principals for lab users.
package identity

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

const defaultTimeout = 15 * time.Second

// DirectoryUser is a principal record returned by the directory service.
type DirectoryUser struct {
	ID            string    `json:"id"`
	PrincipalName string    `json:"userPrincipalName"`
	DisplayName   string    `json:"displayName"`
	CreatedAt     time.Time `json:"createdDateTime"`
}

// Client talks to the cloud provider's directory API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient returns a directory client for the given API base URL and bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// CreateUser creates a directory principal and returns its object id.
func (c *Client) CreateUser(ctx context.Context, principalName, displayName, password string) (string, error) {
	body := map[string]interface{}{
		"userPrincipalName": principalName,
		"displayName":       displayName,
		"password":          password,
		"accountEnabled":    true,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/directory/users", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	c.setHeaders(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("directory: create user: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("directory: create user failed status=%d body=%s", resp.StatusCode, string(b))
	}
	var u DirectoryUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return "", err
	}
	return u.ID, nil
}

// GetUser returns the principal, or nil when the directory reports not found.
func (c *Client) GetUser(ctx context.Context, principalName string) (*DirectoryUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.BaseURL+"/directory/users/"+url.PathEscape(principalName), nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: get user: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("directory: get user failed status=%d body=%s", resp.StatusCode, string(b))
	}
	var u DirectoryUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteUser removes the principal. Not found is success: the identity is gone either way.
func (c *Client) DeleteUser(ctx context.Context, principalName string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.BaseURL+"/directory/users/"+url.PathEscape(principalName), nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("directory: delete user: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		return nil
	}
	b, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("directory: delete user failed status=%d body=%s", resp.StatusCode, string(b))
}

// ListUsersByPrefix returns principals whose name starts with prefix.
func (c *Client) ListUsersByPrefix(ctx context.Context, prefix string) ([]DirectoryUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.BaseURL+"/directory/users?prefix="+url.QueryEscape(prefix), nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: list users: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("directory: list users failed status=%d body=%s", resp.StatusCode, string(b))
	}
	var out struct {
		Value []DirectoryUser `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)
}
