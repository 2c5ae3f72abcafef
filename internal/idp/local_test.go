package idp

import (
	"context"
	"errors"
	"testing"
)

func TestLocalAuthenticate_PassesCredentialsThrough(t *testing.T) {
	l := NewLocal()

	identity, err := l.Authenticate(context.Background(), Credentials{
		Identifier: "alice",
		Secret:     "hunter22",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if identity.Provider != ProviderLocal {
		t.Errorf("provider = %q", identity.Provider)
	}

	creds, ok := identity.LocalCredentials()
	if !ok {
		t.Fatal("expected credentials to be carried on the identity")
	}
	if creds.Identifier != "alice" || creds.Secret != "hunter22" {
		t.Errorf("credentials = %+v", creds)
	}
}

func TestLocalAuthenticate_EmptyCredentials(t *testing.T) {
	l := NewLocal()

	_, err := l.Authenticate(context.Background(), Credentials{})
	if !errors.Is(err, ErrAuthRejected) {
		t.Fatalf("err = %v, want ErrAuthRejected", err)
	}
}

func TestLocalRegister_CarriesProfile(t *testing.T) {
	l := NewLocal()

	identity, err := l.Register(context.Background(),
		Credentials{Identifier: "alice", Secret: "hunter22"},
		Profile{DisplayName: "Alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.DisplayName != "Alice" {
		t.Errorf("display name = %q", identity.DisplayName)
	}
}

func TestLocalBeginOAuth_Unsupported(t *testing.T) {
	l := NewLocal()

	_, err := l.BeginOAuth(context.Background(), "http://127.0.0.1:9999/callback")
	if !errors.Is(err, ErrOAuthUnsupported) {
		t.Fatalf("err = %v, want ErrOAuthUnsupported", err)
	}
}

func TestExternalIdentityHasNoLocalCredentials(t *testing.T) {
	identity := &Identity{Provider: ProviderFirebase, ExternalID: "fb-uid"}
	if _, ok := identity.LocalCredentials(); ok {
		t.Error("external identity must not carry credentials")
	}
}
