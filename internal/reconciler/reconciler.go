// Package reconciler implements the account session reconciler: it
// establishes one authoritative backend session for a user across the
// configured identity providers, in priority order, with fallback and
// best-effort synchronization.
package reconciler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cryptopilot-dev/cryptopilot/internal/backend"
	"github.com/cryptopilot-dev/cryptopilot/internal/idp"
)

var (
	// ErrAllProvidersExhausted is terminal: every provider path failed.
	// Individual provider failures are never surfaced to the caller.
	ErrAllProvidersExhausted = errors.New("authentication failed")

	// ErrRegistrationFailed is terminal for registration: no provider
	// produced a synced account and the direct path failed too.
	ErrRegistrationFailed = errors.New("registration failed")

	// ErrReconciliationInFlight rejects overlapping reconciliation calls.
	ErrReconciliationInFlight = errors.New("another reconciliation is in flight")

	// ErrNoOAuthPending is returned by AwaitOAuth when no initiation
	// preceded it.
	ErrNoOAuthPending = errors.New("no oauth sign-in in progress")
)

// DefaultProviderTimeout bounds each provider attempt so one hanging
// provider cannot block fallback to the next
const DefaultProviderTimeout = 10 * time.Second

// Backend is the slice of the API client the reconciler needs
type Backend interface {
	Sync(ctx context.Context, identity *idp.Identity) (*backend.Session, error)
	Register(ctx context.Context, username, password, displayName, email string) (*backend.Session, error)
	Logout(ctx context.Context) error
}

// SessionSink receives the canonical session on success and is cleared
// on sign-out
type SessionSink interface {
	Set(session *backend.Session) error
	Clear() error
}

// Attempt records one provider attempt for observability. The trail is
// scoped to a single reconciliation call and discarded after logging.
type Attempt struct {
	Provider string
	Phase    string // authenticate, sync, initiate
	Outcome  string // success, auth_failure, sync_failure, unavailable
	At       time.Time
}

// OAuthCompletion is delivered by the redirect/popup callback once the
// provider finishes its out-of-band flow
type OAuthCompletion struct {
	Identity *idp.Identity
	Err      error
}

// Reconciler coordinates the identity provider adapters and the backend
// session sync. Providers are attempted strictly in the order given;
// the local pass-through adapter is expected to come last.
type Reconciler struct {
	providers []idp.Provider
	backend   Backend
	sink      SessionSink
	logger    zerolog.Logger
	timeout   time.Duration

	inFlight atomic.Bool
	oauthCh  chan OAuthCompletion
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithProviderTimeout overrides the per-provider attempt timeout
func WithProviderTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithSessionSink attaches a session store updated on success/sign-out
func WithSessionSink(sink SessionSink) Option {
	return func(r *Reconciler) { r.sink = sink }
}

// New creates a reconciler over the given providers, in priority order
func New(providers []idp.Provider, be Backend, logger zerolog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		providers: providers,
		backend:   be,
		logger:    logger.With().Str("component", "reconciler").Logger(),
		timeout:   DefaultProviderTimeout,
		oauthCh:   make(chan OAuthCompletion, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Login establishes a canonical session. Providers are attempted
// strictly in priority order, each with two phases (authenticate, then
// backend sync); the first fully-synced provider wins and later
// providers are not attempted. A provider that authenticates but fails
// to sync counts as failed. Non-terminal failures are logged and
// swallowed; only exhaustion of all providers surfaces an error.
func (r *Reconciler) Login(ctx context.Context, creds idp.Credentials) (*backend.Session, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return nil, ErrReconciliationInFlight
	}
	defer r.inFlight.Store(false)

	var trail []Attempt
	defer func() { r.logTrail("login", trail) }()

	for _, provider := range r.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		session, attempts := r.attempt(ctx, provider, creds)
		trail = append(trail, attempts...)
		if session != nil {
			if r.sink != nil {
				if err := r.sink.Set(session); err != nil {
					r.logger.Warn().Err(err).Msg("Failed to persist session")
				}
			}
			return session, nil
		}
	}

	return nil, ErrAllProvidersExhausted
}

// attempt runs authenticate+sync for one provider under the attempt
// timeout. A nil session means the provider failed (recoverably).
func (r *Reconciler) attempt(ctx context.Context, provider idp.Provider, creds idp.Credentials) (*backend.Session, []Attempt) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var trail []Attempt

	identity, err := provider.Authenticate(attemptCtx, creds)
	if err != nil {
		trail = append(trail, record(provider, "authenticate", outcomeFor(err)))
		r.logger.Debug().Err(err).Str("provider", provider.Name()).Msg("Provider authentication failed")
		return nil, trail
	}
	trail = append(trail, record(provider, "authenticate", "success"))

	session, err := r.backend.Sync(attemptCtx, identity)
	if err != nil {
		trail = append(trail, record(provider, "sync", "sync_failure"))
		r.logger.Debug().Err(err).Str("provider", provider.Name()).Msg("Backend sync failed")
		return nil, trail
	}
	trail = append(trail, record(provider, "sync", "success"))

	return session, trail
}

// Register creates the account. Unlike login, registration does not
// short-circuit across the external providers: it attempts every
// non-local provider so the user exists in each backend they might
// later authenticate against, and falls back to direct backend
// registration only if no provider produced a synced account.
func (r *Reconciler) Register(ctx context.Context, creds idp.Credentials, profile idp.Profile) (*backend.Session, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return nil, ErrReconciliationInFlight
	}
	defer r.inFlight.Store(false)

	var trail []Attempt
	defer func() { r.logTrail("register", trail) }()

	var session *backend.Session

	for _, provider := range r.providers {
		if provider.Name() == idp.ProviderLocal {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)

		identity, err := provider.Register(attemptCtx, creds, profile)
		if err != nil {
			trail = append(trail, record(provider, "register", outcomeFor(err)))
			r.logger.Debug().Err(err).Str("provider", provider.Name()).Msg("Provider registration failed")
			cancel()
			continue
		}
		trail = append(trail, record(provider, "register", "success"))

		synced, err := r.backend.Sync(attemptCtx, identity)
		cancel()
		if err != nil {
			trail = append(trail, record(provider, "sync", "sync_failure"))
			r.logger.Debug().Err(err).Str("provider", provider.Name()).Msg("Backend sync failed after registration")
			continue
		}
		trail = append(trail, record(provider, "sync", "success"))

		// Highest-priority synced provider decides the returned session,
		// but remaining providers are still attempted.
		if session == nil {
			session = synced
		}
	}

	if session == nil {
		directCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		displayName := profile.DisplayName
		if displayName == "" {
			displayName = creds.Identifier
		}
		direct, err := r.backend.Register(directCtx, creds.Identifier, creds.Secret, displayName, creds.Identifier)
		if err != nil {
			trail = append(trail, Attempt{Provider: idp.ProviderLocal, Phase: "register", Outcome: "sync_failure", At: time.Now().UTC()})
			return nil, ErrRegistrationFailed
		}
		trail = append(trail, Attempt{Provider: idp.ProviderLocal, Phase: "register", Outcome: "success", At: time.Now().UTC()})
		session = direct
	}

	if r.sink != nil {
		if err := r.sink.Set(session); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to persist session")
		}
	}
	return session, nil
}

// LoginWithOAuth initiates the Google OAuth flow on the first provider
// that accepts it (strictly in priority order). The returned URL must be
// visited by the user; the boolean reports initiation success only —
// session establishment is observed via AwaitOAuth.
func (r *Reconciler) LoginWithOAuth(ctx context.Context, redirectURL string) (string, bool, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return "", false, ErrReconciliationInFlight
	}
	defer r.inFlight.Store(false)

	var trail []Attempt
	defer func() { r.logTrail("oauth", trail) }()

	for _, provider := range r.providers {
		if provider.Name() == idp.ProviderLocal {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", false, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		authURL, err := provider.BeginOAuth(attemptCtx, redirectURL)
		cancel()
		if err != nil {
			trail = append(trail, record(provider, "initiate", outcomeFor(err)))
			r.logger.Debug().Err(err).Str("provider", provider.Name()).Msg("OAuth initiation failed")
			continue
		}
		trail = append(trail, record(provider, "initiate", "success"))
		return authURL, true, nil
	}

	return "", false, ErrAllProvidersExhausted
}

// NotifyOAuth delivers the out-of-band completion of a previously
// initiated OAuth flow. Non-blocking; a second completion before the
// first is consumed replaces it.
func (r *Reconciler) NotifyOAuth(completion OAuthCompletion) {
	select {
	case r.oauthCh <- completion:
	default:
		// Drain the stale completion and deliver the fresh one
		select {
		case <-r.oauthCh:
		default:
		}
		r.oauthCh <- completion
	}
}

// AwaitOAuth blocks until the OAuth callback delivers an identity (or
// the context expires), then performs the backend sync and returns the
// canonical session.
func (r *Reconciler) AwaitOAuth(ctx context.Context) (*backend.Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case completion := <-r.oauthCh:
		if completion.Err != nil {
			return nil, completion.Err
		}
		if completion.Identity == nil {
			return nil, ErrNoOAuthPending
		}

		session, err := r.backend.Sync(ctx, completion.Identity)
		if err != nil {
			return nil, err
		}
		if r.sink != nil {
			if err := r.sink.Set(session); err != nil {
				r.logger.Warn().Err(err).Msg("Failed to persist session")
			}
		}
		return session, nil
	}
}

// Logout fans out unconditionally to the backend and every provider.
// Session state is split across providers, so every path is attempted
// regardless of failures in any of them; sign-out always presents as
// successful to the caller.
func (r *Reconciler) Logout(ctx context.Context) error {
	if err := r.backend.Logout(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Backend logout failed")
	}

	for _, provider := range r.providers {
		signOutCtx, cancel := context.WithTimeout(ctx, r.timeout)
		if err := provider.SignOut(signOutCtx); err != nil {
			r.logger.Warn().Err(err).Str("provider", provider.Name()).Msg("Provider sign-out failed")
		}
		cancel()
	}

	if r.sink != nil {
		if err := r.sink.Clear(); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to clear session store")
		}
	}
	return nil
}

func record(provider idp.Provider, phase, outcome string) Attempt {
	return Attempt{
		Provider: provider.Name(),
		Phase:    phase,
		Outcome:  outcome,
		At:       time.Now().UTC(),
	}
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, idp.ErrAuthRejected), errors.Is(err, idp.ErrRegistrationRejected):
		return "auth_failure"
	case errors.Is(err, idp.ErrProviderUnavailable), errors.Is(err, idp.ErrOAuthUnsupported),
		errors.Is(err, context.DeadlineExceeded):
		return "unavailable"
	default:
		return "unavailable"
	}
}

func (r *Reconciler) logTrail(operation string, trail []Attempt) {
	arr := zerolog.Arr()
	for _, a := range trail {
		arr.Dict(zerolog.Dict().
			Str("provider", a.Provider).
			Str("phase", a.Phase).
			Str("outcome", a.Outcome).
			Time("at", a.At))
	}
	r.logger.Info().Str("operation", operation).Array("attempts", arr).Msg("Reconciliation finished")
}
