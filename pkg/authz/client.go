package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/basinhq/basin/pkg/auth"
)

// Client talks to the authorization oracle over its JSON HTTP API. All
// fine-grained decisions are delegated; the client adds nothing but
// transport. Wrap it in CachedAuthorizer for production use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an oracle client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type checkRequest struct {
	UserID       string       `json:"user_id"`
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   string       `json:"resource_id"`
	Scope        auth.Scope   `json:"scope"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

// HasPermission implements Authorizer. Admin callers are allowed without a
// round trip, matching the oracle's own admin rule.
func (c *Client) HasPermission(ctx context.Context, caller auth.Caller, check PermissionCheck) (bool, error) {
	if caller.IsAdmin {
		return true, nil
	}

	var resp checkResponse
	err := c.post(ctx, "/v1/check", checkRequest{
		UserID:       caller.UserID(),
		ResourceType: check.ResourceType,
		ResourceID:   check.ResourceID,
		Scope:        check.Scope,
	}, &resp)
	if err != nil {
		return false, err
	}
	return resp.Allowed, nil
}

type batchCheckRequest struct {
	UserID string            `json:"user_id"`
	Checks []PermissionCheck `json:"checks"`
}

type batchCheckResponse struct {
	Results []PermissionResult `json:"results"`
}

// HasPermissions implements Authorizer with one round trip for the batch.
func (c *Client) HasPermissions(ctx context.Context, caller auth.Caller, checks []PermissionCheck) ([]PermissionResult, error) {
	if caller.IsAdmin {
		results := make([]PermissionResult, len(checks))
		for i, check := range checks {
			results[i] = PermissionResult{Check: check, Allowed: true}
		}
		return results, nil
	}

	var resp batchCheckResponse
	err := c.post(ctx, "/v1/check_batch", batchCheckRequest{
		UserID: caller.UserID(),
		Checks: checks,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

type resourcesResponse struct {
	IDs []string `json:"ids"`
}

// ResourcesWithPermission implements Authorizer.
func (c *Client) ResourcesWithPermission(ctx context.Context, _ auth.Caller, userID string, resourceType ResourceType, scope auth.Scope) ([]string, error) {
	query := url.Values{}
	query.Set("user_id", userID)
	query.Set("resource_type", string(resourceType))
	query.Set("scope", string(scope))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/resources?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build oracle request: %w", err)
	}

	var resp resourcesResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

func (c *Client) post(ctx context.Context, path string, body, dest interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode oracle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode oracle response: %w", err)
	}
	return nil
}
