package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Firebase is the primary identity provider adapter. It talks to the
// Google Identity Toolkit REST API directly; no SDK state beyond the
// most recent ID token is kept.
type Firebase struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger

	mu        sync.Mutex
	lastToken string
}

// NewFirebase creates a Firebase adapter. baseURL defaults to the public
// Identity Toolkit endpoint and is overridable for tests.
func NewFirebase(apiKey, baseURL string, logger zerolog.Logger) *Firebase {
	if baseURL == "" {
		baseURL = "https://identitytoolkit.googleapis.com/v1"
	}
	return &Firebase{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     logger.With().Str("provider", ProviderFirebase).Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client
func (f *Firebase) SetHTTPClient(httpClient *http.Client) {
	f.httpClient = httpClient
}

// Name returns the provider identifier
func (f *Firebase) Name() string { return ProviderFirebase }

// identityToolkitError is the error envelope returned by the Identity
// Toolkit API: {"error": {"message": "EMAIL_NOT_FOUND", ...}}
type identityToolkitError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type firebaseAuthResponse struct {
	IDToken     string `json:"idToken"`
	LocalID     string `json:"localId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// Authenticate signs in with email and password via
// accounts:signInWithPassword
func (f *Firebase) Authenticate(ctx context.Context, creds Credentials) (*Identity, error) {
	body := map[string]any{
		"email":             creds.Identifier,
		"password":          creds.Secret,
		"returnSecureToken": true,
	}

	var resp firebaseAuthResponse
	if err := f.post(ctx, "accounts:signInWithPassword", body, &resp, false); err != nil {
		return nil, err
	}

	f.storeToken(resp.IDToken)
	return f.identity(&resp, creds.Identifier), nil
}

// Register creates an account via accounts:signUp and sets the display
// name via accounts:update when one is given
func (f *Firebase) Register(ctx context.Context, creds Credentials, profile Profile) (*Identity, error) {
	body := map[string]any{
		"email":             creds.Identifier,
		"password":          creds.Secret,
		"returnSecureToken": true,
	}

	var resp firebaseAuthResponse
	if err := f.post(ctx, "accounts:signUp", body, &resp, true); err != nil {
		return nil, err
	}

	f.storeToken(resp.IDToken)

	if profile.DisplayName != "" {
		update := map[string]any{
			"idToken":     resp.IDToken,
			"displayName": profile.DisplayName,
		}
		var updated firebaseAuthResponse
		if err := f.post(ctx, "accounts:update", update, &updated, true); err != nil {
			// Account exists; a failed profile update is not fatal
			f.logger.Warn().Err(err).Msg("Failed to set display name after sign-up")
		} else {
			resp.DisplayName = updated.DisplayName
		}
	}

	return f.identity(&resp, creds.Identifier), nil
}

// BeginOAuth requests a Google authorization URL via accounts:createAuthUri
func (f *Firebase) BeginOAuth(ctx context.Context, redirectURL string) (string, error) {
	body := map[string]any{
		"providerId":   "google.com",
		"continueUri":  redirectURL,
		"authFlowType": "CODE_FLOW",
	}

	var resp struct {
		AuthURI string `json:"authUri"`
	}
	if err := f.post(ctx, "accounts:createAuthUri", body, &resp, false); err != nil {
		return "", err
	}
	if resp.AuthURI == "" {
		return "", fmt.Errorf("%w: empty auth uri", ErrProviderUnavailable)
	}
	return resp.AuthURI, nil
}

// SignOut drops the cached ID token. Identity Toolkit sessions are
// stateless so there is nothing to revoke remotely; this never fails.
func (f *Firebase) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.lastToken = ""
	f.mu.Unlock()
	return nil
}

// LastToken returns the most recent ID token, if any
func (f *Firebase) LastToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastToken
}

func (f *Firebase) storeToken(token string) {
	f.mu.Lock()
	f.lastToken = token
	f.mu.Unlock()
}

func (f *Firebase) identity(resp *firebaseAuthResponse, fallbackEmail string) *Identity {
	email := resp.Email
	if email == "" {
		email = fallbackEmail
	}
	return &Identity{
		Provider:    ProviderFirebase,
		ExternalID:  resp.LocalID,
		Email:       email,
		DisplayName: resp.DisplayName,
		IDToken:     resp.IDToken,
	}
}

// post sends one Identity Toolkit request and maps the error envelope
// onto the adapter taxonomy
func (f *Firebase) post(ctx context.Context, endpoint string, body, out any, registration bool) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s?key=%s", f.baseURL, endpoint, f.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		var envelope identityToolkitError
		_ = json.Unmarshal(raw, &envelope)
		return f.mapError(envelope.Error.Message, resp.StatusCode, registration)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrProviderUnavailable, err)
	}
	return nil
}

func (f *Firebase) mapError(message string, status int, registration bool) error {
	rejected := ErrAuthRejected
	if registration {
		rejected = ErrRegistrationRejected
	}

	switch {
	case message == "":
		return fmt.Errorf("%w: status %d", ErrProviderUnavailable, status)
	case strings.HasPrefix(message, "EMAIL_NOT_FOUND"),
		strings.HasPrefix(message, "INVALID_PASSWORD"),
		strings.HasPrefix(message, "INVALID_LOGIN_CREDENTIALS"),
		strings.HasPrefix(message, "USER_DISABLED"):
		return fmt.Errorf("%w: %s", ErrAuthRejected, message)
	case strings.HasPrefix(message, "EMAIL_EXISTS"),
		strings.HasPrefix(message, "WEAK_PASSWORD"),
		strings.HasPrefix(message, "INVALID_EMAIL"):
		return fmt.Errorf("%w: %s", rejected, message)
	case strings.HasPrefix(message, "TOO_MANY_ATTEMPTS_TRY_LATER"):
		return fmt.Errorf("%w: %s", ErrProviderUnavailable, message)
	default:
		return fmt.Errorf("%w: %s", rejected, message)
	}
}
