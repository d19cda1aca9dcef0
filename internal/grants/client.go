// Package grants assigns and revokes container-scoped roles for lab principals.
package grants

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

// RoleAssignment is a role binding at a container scope.
type RoleAssignment struct {
	Name        string `json:"name"`
	PrincipalID string `json:"principalId"`
	RoleID      string `json:"roleDefinitionId"`
	Scope       string `json:"scope"`
}

// Client talks to the cloud provider's authorization API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient returns an authorization client for the given API base URL and bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// PutAssignment creates the role assignment under the given name. The provider
// treats PUT to an existing name with identical content as a no-op, which is
// what makes deterministic names idempotent.
func (c *Client) PutAssignment(ctx context.Context, a RoleAssignment) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.BaseURL+"/authorization/roleAssignments/"+url.PathEscape(a.Name), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("grants: put assignment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusConflict {
		return nil
	}
	b, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("grants: put assignment failed status=%d body=%s", resp.StatusCode, string(b))
}

// ListAssignments returns all role assignments at the given scope.
func (c *Client) ListAssignments(ctx context.Context, scope string) ([]RoleAssignment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.BaseURL+"/authorization/roleAssignments?scope="+url.QueryEscape(scope), nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grants: list assignments: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("grants: list assignments failed status=%d body=%s", resp.StatusCode, string(b))
	}
	var out struct {
		Value []RoleAssignment `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

// DeleteAssignment removes the named assignment. Not found is success.
func (c *Client) DeleteAssignment(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.BaseURL+"/authorization/roleAssignments/"+url.PathEscape(name), nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("grants: delete assignment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		return nil
	}
	b, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("grants: delete assignment failed status=%d body=%s", resp.StatusCode, string(b))
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)
}
