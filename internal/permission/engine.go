// Package permission talks to the relationship-based authorization service
// ("does subject have relation to object") and layers the short-TTL result
// cache in front of it. The engine is the source of truth; the cache is an
// optimization and never the sole determinant of a denial.
package permission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Relationship objects and relations the auth core itself depends on.
const (
	SuperAdminObject   = "superadmin:global"
	SuperAdminRelation = "can_manage_all"
)

// ErrEngineUnavailable wraps transport failures against the engine.
var ErrEngineUnavailable = errors.New("permission engine unavailable")

// Engine answers relationship queries and maintains the relations the auth
// core writes (baseline profile relations, superadmin grants).
type Engine interface {
	Check(ctx context.Context, userID, relation, object string) (bool, error)
	AssignSuperAdmin(ctx context.Context, userID string) error
	CreateProfileRelations(ctx context.Context, userID, profileID string) error
}

// Client is the HTTP adapter for the relationship service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a Client for the engine at baseURL. token, when set, is
// sent as a bearer credential.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

type checkRequest struct {
	UserID   string `json:"userId"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

type writeRequest struct {
	UserID    string `json:"userId"`
	ProfileID string `json:"profileId,omitempty"`
}

// Check asks the engine whether userID has relation on object.
func (c *Client) Check(ctx context.Context, userID, relation, object string) (bool, error) {
	var resp checkResponse
	err := c.post(ctx, "/check", checkRequest{UserID: userID, Relation: relation, Object: object}, &resp)
	if err != nil {
		return false, err
	}
	return resp.Allowed, nil
}

// AssignSuperAdmin writes the global superadmin relation for userID.
func (c *Client) AssignSuperAdmin(ctx context.Context, userID string) error {
	return c.post(ctx, "/relations/superadmin", writeRequest{UserID: userID}, nil)
}

// CreateProfileRelations establishes the baseline owner relations a fresh
// registration needs.
func (c *Client) CreateProfileRelations(ctx context.Context, userID, profileID string) error {
	return c.post(ctx, "/relations/profile", writeRequest{UserID: userID, ProfileID: profileID}, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrEngineUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("permission engine rejected %s: status %d", path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
	}
	return nil
}

// disabledEngine is the explicit "no permission engine configured" state.
// Every check is a deny; relation writes are silently dropped.
type disabledEngine struct{}

// Disabled returns the engine-off configuration. A missing integration is a
// configuration state producing explicit denies, never a silently-absent
// method call.
func Disabled() Engine {
	return disabledEngine{}
}

func (disabledEngine) Check(context.Context, string, string, string) (bool, error) {
	return false, nil
}

func (disabledEngine) AssignSuperAdmin(context.Context, string) error { return nil }

func (disabledEngine) CreateProfileRelations(context.Context, string, string) error { return nil }
