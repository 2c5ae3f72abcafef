package commands

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cryptopilot-dev/cryptopilot/internal/idp"
	"github.com/cryptopilot-dev/cryptopilot/internal/reconciler"
)

// NewGoogleCmd creates the google sign-in command
func NewGoogleCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "google",
		Short: "Sign in with Google",
		Long: `Sign in with Google via the configured identity providers.

A browser window opens for the Google consent screen; the CLI runs a
local callback listener and completes the session once the provider
redirects back.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGoogle(timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "How long to wait for the browser flow to complete")

	return cmd
}

func runGoogle(timeout time.Duration) error {
	cfg, server, err := getSelectedServer()
	if err != nil {
		return err
	}

	rec, _, _ := buildReconciler(cfg, server)

	// Local callback listener on an ephemeral port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to start callback listener: %w", err)
	}
	defer listener.Close()

	redirectURL := fmt.Sprintf("http://%s/callback", listener.Addr().String())

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		token := query.Get("access_token")
		providerName := idp.ProviderSupabase
		if token == "" {
			token = query.Get("id_token")
			providerName = idp.ProviderFirebase
		}

		if token == "" {
			http.Error(w, "Sign-in failed: no token in callback", http.StatusBadRequest)
			rec.NotifyOAuth(reconciler.OAuthCompletion{Err: fmt.Errorf("callback carried no token")})
			return
		}
		if p := query.Get("provider"); p != "" {
			providerName = p
		}

		// The token is all that matters; the server verifies it and
		// resolves the identity before creating the session
		rec.NotifyOAuth(reconciler.OAuthCompletion{Identity: &idp.Identity{
			Provider: providerName,
			IDToken:  token,
		}})

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><h2>Signed in</h2><p>You can close this window and return to the terminal.</p></body></html>")
	})

	callbackServer := &http.Server{Handler: mux}
	go callbackServer.Serve(listener)
	defer callbackServer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	authURL, ok, err := rec.LoginWithOAuth(ctx, redirectURL)
	if err != nil || !ok {
		return fmt.Errorf("could not start Google sign-in: %w", err)
	}

	fmt.Println("Opening browser for Google sign-in...")
	if browserErr := openBrowser(authURL); browserErr != nil {
		fmt.Printf("⚠ Could not open browser automatically.\nPlease visit:\n  %s\n", authURL)
	}

	fmt.Println("Waiting for sign-in to complete...")
	session, err := rec.AwaitOAuth(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("timed out waiting for Google sign-in")
		}
		return fmt.Errorf("google sign-in failed: %w", err)
	}

	fmt.Println("✓ Login successful!")
	printSession(session)

	return nil
}
