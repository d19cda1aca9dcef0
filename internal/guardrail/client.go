// Package guardrail attaches and detaches policy initiative assignments on
// resource containers.
package guardrail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// ErrAssignmentNotFound is returned by DeletePolicyAssignment when the
// provider reports the assignment absent. Callers decide whether that is
// success (detach) or worth logging.
var ErrAssignmentNotFound = errors.New("policy assignment not found")

// Client talks to the cloud provider's policy API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient returns a policy client for the given API base URL and bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// PutPolicyAssignment creates or replaces the named assignment at scope,
// referencing the initiative (policy set) id.
func (c *Client) PutPolicyAssignment(ctx context.Context, scope, name, initiativeID string) error {
	body := map[string]string{
		"scope":           scope,
		"policySetId":     initiativeID,
		"displayName":     name,
		"enforcementMode": "Default",
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.assignmentURL(scope, name), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("guardrail: put assignment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return nil
	}
	b, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("guardrail: put assignment failed status=%d body=%s", resp.StatusCode, string(b))
}

// DeletePolicyAssignment removes the named assignment at scope. Returns
// ErrAssignmentNotFound on 404 so callers can treat absence as already-removed.
func (c *Client) DeletePolicyAssignment(ctx context.Context, scope, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.assignmentURL(scope, name), nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("guardrail: delete assignment: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrAssignmentNotFound
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
		return nil
	default:
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("guardrail: delete assignment failed status=%d body=%s", resp.StatusCode, string(b))
	}
}

func (c *Client) assignmentURL(scope, name string) string {
	return c.BaseURL + "/policy/assignments/" + url.PathEscape(name) + "?scope=" + url.QueryEscape(scope)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)
}
