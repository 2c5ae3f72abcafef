package idp

import (
	"context"
	"fmt"
)

// Local is the last-resort credential pass-through adapter. It performs
// no verification of its own: the credentials are handed to the backend
// sync step, which performs the direct login against the system of
// record. This guarantees the user can still sign in when both external
// providers are degraded.
type Local struct{}

// NewLocal creates the local credential adapter
func NewLocal() *Local { return &Local{} }

// Name returns the provider identifier
func (l *Local) Name() string { return ProviderLocal }

// Authenticate wraps the credentials into an identity without
// validating them; validity is decided by the backend during sync
func (l *Local) Authenticate(ctx context.Context, creds Credentials) (*Identity, error) {
	if creds.Identifier == "" || creds.Secret == "" {
		return nil, fmt.Errorf("%w: empty credentials", ErrAuthRejected)
	}
	return &Identity{
		Provider:    ProviderLocal,
		Email:       creds.Identifier,
		credentials: &creds,
	}, nil
}

// Register wraps the credentials for direct backend registration
func (l *Local) Register(ctx context.Context, creds Credentials, profile Profile) (*Identity, error) {
	if creds.Identifier == "" || creds.Secret == "" {
		return nil, fmt.Errorf("%w: empty credentials", ErrRegistrationRejected)
	}
	return &Identity{
		Provider:    ProviderLocal,
		Email:       creds.Identifier,
		DisplayName: profile.DisplayName,
		credentials: &creds,
	}, nil
}

// BeginOAuth is not supported for the local store
func (l *Local) BeginOAuth(ctx context.Context, redirectURL string) (string, error) {
	return "", ErrOAuthUnsupported
}

// SignOut is a no-op; local session state lives in the backend
func (l *Local) SignOut(ctx context.Context) error { return nil }
