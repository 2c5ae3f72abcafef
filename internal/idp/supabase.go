package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Supabase is the secondary identity provider adapter, speaking the
// GoTrue REST API of a Supabase project.
type Supabase struct {
	projectURL string
	anonKey    string
	httpClient *http.Client
	logger     zerolog.Logger

	mu          sync.Mutex
	accessToken string
}

// NewSupabase creates a Supabase adapter for the given project URL
// (e.g. https://xyz.supabase.co)
func NewSupabase(projectURL, anonKey string, logger zerolog.Logger) *Supabase {
	return &Supabase{
		projectURL: strings.TrimRight(projectURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{},
		logger:     logger.With().Str("provider", ProviderSupabase).Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client
func (s *Supabase) SetHTTPClient(httpClient *http.Client) {
	s.httpClient = httpClient
}

// Name returns the provider identifier
func (s *Supabase) Name() string { return ProviderSupabase }

type supabaseUser struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	Phone            string         `json:"phone"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at"`
	LastSignInAt     *time.Time     `json:"last_sign_in_at"`
	CreatedAt        *time.Time     `json:"created_at"`
	UpdatedAt        *time.Time     `json:"updated_at"`
	UserMetadata     map[string]any `json:"user_metadata"`
}

type supabaseAuthResponse struct {
	AccessToken string        `json:"access_token"`
	User        *supabaseUser `json:"user"`
}

// gotrueError covers the error shapes GoTrue uses across versions:
// {"error":..., "error_description":...} and {"msg":..., "code":...}
type gotrueError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	ErrorCode        string `json:"error_code"`
}

func (e *gotrueError) message() string {
	for _, m := range []string{e.ErrorDescription, e.Msg, e.Error, e.ErrorCode} {
		if m != "" {
			return m
		}
	}
	return ""
}

// Authenticate signs in via the password grant
func (s *Supabase) Authenticate(ctx context.Context, creds Credentials) (*Identity, error) {
	body := map[string]any{
		"email":    creds.Identifier,
		"password": creds.Secret,
	}

	var resp supabaseAuthResponse
	if err := s.post(ctx, "/auth/v1/token?grant_type=password", body, &resp, false); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, fmt.Errorf("%w: response missing user", ErrProviderUnavailable)
	}

	s.storeToken(resp.AccessToken)
	return s.identity(&resp), nil
}

// Register creates an account via /auth/v1/signup
func (s *Supabase) Register(ctx context.Context, creds Credentials, profile Profile) (*Identity, error) {
	body := map[string]any{
		"email":    creds.Identifier,
		"password": creds.Secret,
	}
	if profile.DisplayName != "" {
		body["data"] = map[string]any{"display_name": profile.DisplayName}
	}

	var resp supabaseAuthResponse
	if err := s.post(ctx, "/auth/v1/signup", body, &resp, true); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, fmt.Errorf("%w: response missing user", ErrProviderUnavailable)
	}

	s.storeToken(resp.AccessToken)

	ident := s.identity(&resp)
	if ident.DisplayName == "" {
		ident.DisplayName = profile.DisplayName
	}
	return ident, nil
}

// BeginOAuth builds the GoTrue authorize URL for the Google provider.
// GoTrue performs the redirect itself, so initiation is URL construction
// plus a reachability check against the auth settings endpoint.
func (s *Supabase) BeginOAuth(ctx context.Context, redirectURL string) (string, error) {
	// Confirm the project is reachable before handing out a URL
	settingsURL := s.projectURL + "/auth/v1/settings"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, settingsURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", s.anonKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: settings returned status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	q := url.Values{}
	q.Set("provider", "google")
	if redirectURL != "" {
		q.Set("redirect_to", redirectURL)
	}
	return s.projectURL + "/auth/v1/authorize?" + q.Encode(), nil
}

// SignOut revokes the current session via /auth/v1/logout, best-effort
func (s *Supabase) SignOut(ctx context.Context) error {
	s.mu.Lock()
	token := s.accessToken
	s.accessToken = ""
	s.mu.Unlock()

	if token == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.projectURL+"/auth/v1/logout", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("apikey", s.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Supabase logout failed")
		return nil
	}
	resp.Body.Close()
	return nil
}

// LastToken returns the most recent access token, if any
func (s *Supabase) LastToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

func (s *Supabase) storeToken(token string) {
	s.mu.Lock()
	s.accessToken = token
	s.mu.Unlock()
}

func (s *Supabase) identity(resp *supabaseAuthResponse) *Identity {
	var displayName string
	if v, ok := resp.User.UserMetadata["display_name"].(string); ok {
		displayName = v
	}
	return &Identity{
		Provider:    ProviderSupabase,
		ExternalID:  resp.User.ID,
		Email:       resp.User.Email,
		DisplayName: displayName,
		IDToken:     resp.AccessToken,
		VerifiedAt:  resp.User.EmailConfirmedAt,
	}
}

func (s *Supabase) post(ctx context.Context, path string, body, out any, registration bool) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.projectURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.anonKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		var envelope gotrueError
		_ = json.Unmarshal(raw, &envelope)

		rejected := ErrAuthRejected
		if registration {
			rejected = ErrRegistrationRejected
		}
		msg := envelope.message()
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s", ErrProviderUnavailable, msg)
		}
		return fmt.Errorf("%w: %s", rejected, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrProviderUnavailable, err)
	}
	return nil
}
