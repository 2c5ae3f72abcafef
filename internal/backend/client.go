// Package backend contains the typed HTTP client for the CryptoPilot
// system-of-record API. The session sync call pushes a verified external
// identity to the backend and receives back the canonical session.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/cryptopilot-dev/cryptopilot/internal/idp"
)

var (
	// ErrSyncRejected means the backend refused an otherwise-valid
	// external identity (or direct credentials).
	ErrSyncRejected = errors.New("backend rejected session sync")

	// ErrUnavailable covers network errors and 5xx responses from the
	// backend.
	ErrUnavailable = errors.New("backend unavailable")
)

// Session is the canonical application session returned by the backend.
// The backend owns this record; clients hold a read-only copy.
type Session struct {
	UserID           string `json:"user_id"`
	Username         string `json:"username"`
	DisplayName      string `json:"display_name"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	EmailVerified    bool   `json:"email_verified"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
	Token            string `json:"token,omitempty"`
}

// Client represents an HTTP client for the CryptoPilot API
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu     sync.Mutex
	bearer string
}

// New creates a new API client. Cookies are kept across requests so the
// backend's HTTP-only session cookie works alongside the bearer token.
func New(baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
	}
}

// SetHTTPClient sets a custom HTTP client
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

// SetBearer sets the bearer token sent on authenticated requests
func (c *Client) SetBearer(token string) {
	c.mu.Lock()
	c.bearer = token
	c.mu.Unlock()
}

// Bearer returns the current bearer token
func (c *Client) Bearer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bearer
}

// LoginRequest represents the direct login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest represents the direct registration request body
type RegisterRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// FirebaseSyncRequest pushes a Firebase identity to the backend
type FirebaseSyncRequest struct {
	IDToken     string `json:"idToken"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// SupabaseSyncRequest pushes a Supabase identity to the backend. The
// access token travels in the Authorization header.
type SupabaseSyncRequest struct {
	User SupabaseSyncUser `json:"user"`
}

// SupabaseSyncUser mirrors the subset of the GoTrue user record the
// backend consumes
type SupabaseSyncUser struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
}

// Sync pushes a verified external identity to the backend and returns
// the canonical session. Syncing the same identity twice yields the same
// session (upsert semantics). Local identities bypass the external IdPs
// entirely and perform the direct login.
func (c *Client) Sync(ctx context.Context, identity *idp.Identity) (*Session, error) {
	switch identity.Provider {
	case idp.ProviderFirebase:
		return c.FirebaseSync(ctx, identity.IDToken, identity.Email, identity.DisplayName)
	case idp.ProviderSupabase:
		return c.SupabaseSync(ctx, identity)
	case idp.ProviderLocal:
		creds, ok := identity.LocalCredentials()
		if !ok {
			return nil, fmt.Errorf("%w: local identity missing credentials", ErrSyncRejected)
		}
		return c.Login(ctx, creds.Identifier, creds.Secret)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrSyncRejected, identity.Provider)
	}
}

// Login authenticates directly against the backend credential store
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	var session Session
	err := c.do(ctx, http.MethodPost, "/api/auth/login", LoginRequest{
		Username: username,
		Password: password,
	}, "", &session)
	if err != nil {
		return nil, err
	}
	c.adopt(&session)
	return &session, nil
}

// Register creates an account directly in the backend
func (c *Client) Register(ctx context.Context, username, password, displayName, email string) (*Session, error) {
	var session Session
	err := c.do(ctx, http.MethodPost, "/api/auth/register", RegisterRequest{
		Username:    username,
		Password:    password,
		DisplayName: displayName,
		Email:       email,
	}, "", &session)
	if err != nil {
		return nil, err
	}
	c.adopt(&session)
	return &session, nil
}

// FirebaseSync reconciles a Firebase identity with the backend
func (c *Client) FirebaseSync(ctx context.Context, idToken, email, displayName string) (*Session, error) {
	// firebase-sync wraps the session in a {user: ...} envelope
	var resp struct {
		User  Session `json:"user"`
		Token string  `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/firebase-sync", FirebaseSyncRequest{
		IDToken:     idToken,
		Email:       email,
		DisplayName: displayName,
	}, "", &resp)
	if err != nil {
		return nil, err
	}
	session := resp.User
	if session.Token == "" {
		session.Token = resp.Token
	}
	c.adopt(&session)
	return &session, nil
}

// SupabaseSync reconciles a Supabase identity with the backend. The
// provider access token is presented as the bearer.
func (c *Client) SupabaseSync(ctx context.Context, identity *idp.Identity) (*Session, error) {
	var session Session
	err := c.do(ctx, http.MethodPost, "/api/auth/supabase-sync", SupabaseSyncRequest{
		User: SupabaseSyncUser{
			ID:               identity.ExternalID,
			Email:            identity.Email,
			EmailConfirmedAt: identity.VerifiedAt,
		},
	}, identity.IDToken, &session)
	if err != nil {
		return nil, err
	}
	c.adopt(&session)
	return &session, nil
}

// Me returns the current session, relying on the cookie or bearer
func (c *Client) Me(ctx context.Context) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, "", &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Logout clears the backend session
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, "", nil)
	c.SetBearer("")
	return err
}

// adopt stores the session's bearer token for subsequent requests
func (c *Client) adopt(session *Session) {
	if session.Token != "" {
		c.SetBearer(session.Token)
	}
}

// do sends one JSON request and decodes the response. overrideBearer, if
// set, replaces the stored bearer for this request only (used by the
// supabase sync, which authenticates with the provider token).
func (c *Client) do(ctx context.Context, method, path string, body any, overrideBearer string, out any) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	bearer := overrideBearer
	if bearer == "" {
		bearer = c.Bearer()
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: %s", ErrSyncRejected, parseError(resp))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// parseError extracts a human-readable message from an error response:
// JSON error/message field, then raw text, then a generic status line
func parseError(resp *http.Response) string {
	raw, _ := io.ReadAll(resp.Body)

	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if envelope.Error != "" {
			return envelope.Error
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}

	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return fmt.Sprintf("request failed with status %d", resp.StatusCode)
}
