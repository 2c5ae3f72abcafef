// Package idp contains the identity provider adapters. Each adapter wraps
// one external authentication mechanism behind a uniform capability
// interface and maps provider-specific failures onto a shared error
// taxonomy, so the session reconciler can iterate providers generically.
package idp

import (
	"context"
	"errors"
	"time"
)

// Provider identifiers
const (
	ProviderFirebase = "firebase"
	ProviderSupabase = "supabase"
	ProviderLocal    = "local"
)

// Error taxonomy shared by all adapters. Adapters must return one of
// these (wrapped) for any failure; callers fall through on all of them.
var (
	// ErrAuthRejected means the provider understood the credentials and
	// refused them.
	ErrAuthRejected = errors.New("authentication rejected by provider")

	// ErrRegistrationRejected means the provider refused to create the
	// account (e.g. duplicate email).
	ErrRegistrationRejected = errors.New("registration rejected by provider")

	// ErrProviderUnavailable covers network errors, timeouts, and 5xx
	// responses unrelated to credential validity.
	ErrProviderUnavailable = errors.New("identity provider unavailable")

	// ErrOAuthUnsupported means the adapter has no OAuth initiation path.
	ErrOAuthUnsupported = errors.New("oauth sign-in not supported by provider")
)

// Credentials are the ephemeral username/password pair supplied by the
// user. They are passed by value and never persisted.
type Credentials struct {
	Identifier string // username or email
	Secret     string
}

// Profile carries optional registration metadata
type Profile struct {
	DisplayName string
}

// Identity is a normalized external identity returned by an adapter.
// It contains facts only; no auth decisions are made here.
type Identity struct {
	Provider    string     // ProviderFirebase, ProviderSupabase, ProviderLocal
	ExternalID  string     // provider-scoped unique user identifier
	Email       string     // email as asserted by the provider
	DisplayName string     // optional
	IDToken     string     // provider-issued bearer/ID token, when available
	VerifiedAt  *time.Time // when the provider asserts email ownership

	// credentials is set only by the local adapter so the backend sync
	// step can perform the direct login. Never serialized.
	credentials *Credentials
}

// LocalCredentials returns the raw credentials carried by a local
// identity, or false for external identities.
func (i *Identity) LocalCredentials() (Credentials, bool) {
	if i.credentials == nil {
		return Credentials{}, false
	}
	return *i.credentials, true
}

// Provider is the uniform contract every identity provider adapter
// implements. Implementations map their own error shapes onto the
// package error taxonomy and must honor context cancellation on every
// network call.
type Provider interface {
	// Name returns the provider identifier (e.g. "firebase")
	Name() string

	// Authenticate verifies the credentials against the provider and
	// returns a normalized identity
	Authenticate(ctx context.Context, creds Credentials) (*Identity, error)

	// Register creates a new account at the provider
	Register(ctx context.Context, creds Credentials, profile Profile) (*Identity, error)

	// BeginOAuth initiates the provider's Google OAuth flow and returns
	// the authorization URL the user must visit. Session establishment is
	// observed out-of-band.
	BeginOAuth(ctx context.Context, redirectURL string) (string, error)

	// SignOut invalidates the provider-side session, best-effort.
	// Implementations log failures instead of propagating them.
	SignOut(ctx context.Context) error
}
