package commands

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/cryptopilot-dev/cryptopilot/internal/backend"
	"github.com/cryptopilot-dev/cryptopilot/internal/cli/client"
	"github.com/cryptopilot-dev/cryptopilot/internal/cli/config"
	"github.com/cryptopilot-dev/cryptopilot/internal/cli/serverselect"
	"github.com/cryptopilot-dev/cryptopilot/internal/idp"
	"github.com/cryptopilot-dev/cryptopilot/internal/reconciler"
	"github.com/cryptopilot-dev/cryptopilot/internal/session"
)

// getSelectedServer loads the config and returns the selected server.
// This is common logic used by most commands.
func getSelectedServer() (*config.Config, *config.Server, error) {
	cfg, err := config.LoadFromCurrentDir()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w\nRun 'cryptopilot init' to create a configuration file", err)
	}

	server, err := serverselect.ResolveServer(cfg, "")
	if err != nil {
		return nil, nil, err
	}

	if server.URL == "" {
		return nil, nil, fmt.Errorf("server URL is empty. Please edit cryptopilot.json and add a valid URL")
	}

	return cfg, server, nil
}

// cliLogger builds the zerolog logger used by the reconciler and the
// provider adapters. Quiet by default; CRYPTOPILOT_DEBUG=1 shows the
// per-provider attempt trail.
func cliLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if os.Getenv("CRYPTOPILOT_DEBUG") != "" {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

// buildReconciler wires the provider adapters, the backend client and
// the keychain-backed session store for one server. Provider order is
// fixed: Firebase, then Supabase, then the local pass-through.
func buildReconciler(cfg *config.Config, server *config.Server) (*reconciler.Reconciler, *session.Store, *backend.Client) {
	logger := cliLogger()
	serverURL := config.NormalizeURL(server.URL)

	store := session.NewStore(serverURL, session.KeyringStore{})
	be := backend.New(serverURL)

	var providers []idp.Provider
	if cfg.Firebase.APIKey != "" {
		providers = append(providers, idp.NewFirebase(cfg.Firebase.APIKey, cfg.Firebase.BaseURL, logger))
	}
	if cfg.Supabase.ProjectURL != "" {
		providers = append(providers, idp.NewSupabase(cfg.Supabase.ProjectURL, cfg.Supabase.AnonKey, logger))
	}
	providers = append(providers, idp.NewLocal())

	opts := []reconciler.Option{reconciler.WithSessionSink(store)}
	if cfg.ProviderTimeoutSeconds > 0 {
		opts = append(opts, reconciler.WithProviderTimeout(time.Duration(cfg.ProviderTimeoutSeconds)*time.Second))
	}

	return reconciler.New(providers, be, logger, opts...), store, be
}

// newAPIClient builds the authenticated dashboard client for the
// selected server
func newAPIClient(server *config.Server) *client.Client {
	return client.New(config.NormalizeURL(server.URL), session.KeyringStore{})
}

// readPassword prompts for a password without echoing. Fails in
// non-interactive mode so CI scripts use flags or env vars instead.
func readPassword(prompt string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("password is required in non-interactive mode (use a flag or environment variable)")
	}
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()
	return string(bytePassword), nil
}

// printSession prints the signed-in session summary
func printSession(session *backend.Session) {
	fmt.Printf("  User: %s (%s)\n", session.DisplayName, session.Email)
	if session.Role == "admin" {
		fmt.Println("  Role: Admin")
	}
	if !session.EmailVerified {
		fmt.Println("  Note: email not verified yet")
	}
}
