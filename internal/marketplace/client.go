// Package marketplace is the thin HTTP client downstream collaborators
// use against the marketplace REST API. Callers obtain the bearer token
// through the session gate; this package never touches the token store.
package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sellerdesk/seller-front/internal/ioutil"
)

const maxErrorBodyBytes = 4096

// Client talks to the marketplace REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a marketplace client with a finite request timeout
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Profile is the authenticated seller account
type Profile struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
	Email    string `json:"email,omitempty"`
	SiteID   string `json:"site_id,omitempty"`
}

// Me fetches the seller profile for the given access token
func (c *Client) Me(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch seller profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := ioutil.ReadLimited(resp.Body, maxErrorBodyBytes)
		return nil, fmt.Errorf("failed to fetch seller profile: status %d: %s", resp.StatusCode, body)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode seller profile: %w", err)
	}
	return &profile, nil
}

// RevokeGrant removes the application grant for the seller account.
// Callers treat failures as best-effort: the local session is already
// cleared by the time this is invoked.
func (c *Client) RevokeGrant(ctx context.Context, accessToken, userID, clientID string) error {
	if userID == "" {
		return fmt.Errorf("cannot revoke grant without a user id")
	}

	target := fmt.Sprintf("%s/users/%s/applications/%s",
		c.baseURL, url.PathEscape(userID), url.PathEscape(clientID))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build revoke request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to revoke grant: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body := ioutil.ReadLimited(resp.Body, maxErrorBodyBytes)
		return fmt.Errorf("failed to revoke grant: status %d: %s", resp.StatusCode, body)
	}
	return nil
}
