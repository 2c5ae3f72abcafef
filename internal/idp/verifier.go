package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Verifier checks provider-issued tokens server-side. The sync endpoints
// use it to confirm that a presented identity really was authenticated
// by the claimed provider before upserting the user row.
type Verifier interface {
	// VerifyFirebaseToken resolves a Firebase ID token to the identity it
	// was issued for
	VerifyFirebaseToken(ctx context.Context, idToken string) (*Identity, error)

	// VerifySupabaseToken resolves a Supabase access token to the
	// identity it was issued for
	VerifySupabaseToken(ctx context.Context, accessToken string) (*Identity, error)
}

// HTTPVerifier verifies tokens by calling back to the issuing provider
type HTTPVerifier struct {
	firebaseAPIKey  string
	firebaseBaseURL string
	supabaseURL     string
	supabaseAnonKey string
	httpClient      *http.Client
}

// NewHTTPVerifier creates a verifier that calls the Identity Toolkit
// accounts:lookup and GoTrue /auth/v1/user endpoints
func NewHTTPVerifier(firebaseAPIKey, firebaseBaseURL, supabaseURL, supabaseAnonKey string) *HTTPVerifier {
	if firebaseBaseURL == "" {
		firebaseBaseURL = "https://identitytoolkit.googleapis.com/v1"
	}
	return &HTTPVerifier{
		firebaseAPIKey:  firebaseAPIKey,
		firebaseBaseURL: strings.TrimRight(firebaseBaseURL, "/"),
		supabaseURL:     strings.TrimRight(supabaseURL, "/"),
		supabaseAnonKey: supabaseAnonKey,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
	}
}

// SetHTTPClient sets a custom HTTP client
func (v *HTTPVerifier) SetHTTPClient(httpClient *http.Client) {
	v.httpClient = httpClient
}

// VerifyFirebaseToken resolves an ID token via accounts:lookup
func (v *HTTPVerifier) VerifyFirebaseToken(ctx context.Context, idToken string) (*Identity, error) {
	if v.firebaseAPIKey == "" {
		return nil, fmt.Errorf("%w: firebase verification not configured", ErrProviderUnavailable)
	}

	body, err := json.Marshal(map[string]string{"idToken": idToken})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/accounts:lookup?key=%s", v.firebaseBaseURL, v.firebaseAPIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: lookup returned status %d", ErrAuthRejected, resp.StatusCode)
	}

	var lookup struct {
		Users []struct {
			LocalID       string `json:"localId"`
			Email         string `json:"email"`
			DisplayName   string `json:"displayName"`
			EmailVerified bool   `json:"emailVerified"`
		} `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&lookup); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrProviderUnavailable, err)
	}
	if len(lookup.Users) == 0 {
		return nil, fmt.Errorf("%w: token resolves to no user", ErrAuthRejected)
	}

	u := lookup.Users[0]
	ident := &Identity{
		Provider:    ProviderFirebase,
		ExternalID:  u.LocalID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		IDToken:     idToken,
	}
	if u.EmailVerified {
		now := time.Now().UTC()
		ident.VerifiedAt = &now
	}
	return ident, nil
}

// VerifySupabaseToken resolves an access token via /auth/v1/user
func (v *HTTPVerifier) VerifySupabaseToken(ctx context.Context, accessToken string) (*Identity, error) {
	if v.supabaseURL == "" {
		return nil, fmt.Errorf("%w: supabase verification not configured", ErrProviderUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.supabaseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", v.supabaseAnonKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: user lookup returned status %d", ErrAuthRejected, resp.StatusCode)
	}

	var u supabaseUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrProviderUnavailable, err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("%w: token resolves to no user", ErrAuthRejected)
	}

	var displayName string
	if v, ok := u.UserMetadata["display_name"].(string); ok {
		displayName = v
	}
	return &Identity{
		Provider:    ProviderSupabase,
		ExternalID:  u.ID,
		Email:       u.Email,
		DisplayName: displayName,
		IDToken:     accessToken,
		VerifiedAt:  u.EmailConfirmedAt,
	}, nil
}
