package idp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func supabaseServer(t *testing.T, handler http.HandlerFunc) *Supabase {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewSupabase(srv.URL, "anon-key", zerolog.Nop())
}

func TestSupabaseAuthenticate_Success(t *testing.T) {
	confirmedAt := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	s := supabaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("grant_type = %q", r.URL.Query().Get("grant_type"))
		}
		if r.Header.Get("apikey") != "anon-key" {
			t.Errorf("apikey = %q", r.Header.Get("apikey"))
		}

		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "sb-access-token",
			"user": map[string]any{
				"id":                 "sb-uid",
				"email":              "alice@example.com",
				"email_confirmed_at": confirmedAt,
				"user_metadata":      map[string]any{"display_name": "Alice"},
			},
		})
	})

	identity, err := s.Authenticate(context.Background(), Credentials{
		Identifier: "alice@example.com",
		Secret:     "hunter22",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if identity.Provider != ProviderSupabase {
		t.Errorf("provider = %q", identity.Provider)
	}
	if identity.ExternalID != "sb-uid" || identity.IDToken != "sb-access-token" {
		t.Errorf("identity = %+v", identity)
	}
	if identity.DisplayName != "Alice" {
		t.Errorf("display name = %q", identity.DisplayName)
	}
	if identity.VerifiedAt == nil || !identity.VerifiedAt.Equal(confirmedAt) {
		t.Errorf("verifiedAt = %v", identity.VerifiedAt)
	}
}

func TestSupabaseAuthenticate_ErrorShapes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{
			name:   "legacy error_description",
			status: http.StatusBadRequest,
			body:   `{"error": "invalid_grant", "error_description": "Invalid login credentials"}`,
			want:   ErrAuthRejected,
		},
		{
			name:   "modern msg field",
			status: http.StatusBadRequest,
			body:   `{"msg": "Invalid login credentials", "error_code": "invalid_credentials"}`,
			want:   ErrAuthRejected,
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"msg": "Rate limit exceeded"}`,
			want:   ErrProviderUnavailable,
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			body:   ``,
			want:   ErrProviderUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := supabaseServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := s.Authenticate(context.Background(), Credentials{Identifier: "a@b.c", Secret: "x"})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSupabaseRegister_DuplicateEmail(t *testing.T) {
	s := supabaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{"msg": "User already registered"})
	})

	_, err := s.Register(context.Background(), Credentials{Identifier: "a@b.c", Secret: "x"}, Profile{})
	if !errors.Is(err, ErrRegistrationRejected) {
		t.Fatalf("err = %v, want ErrRegistrationRejected", err)
	}
}

func TestSupabaseRegister_SendsDisplayNameMetadata(t *testing.T) {
	s := supabaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)

		data, _ := body["data"].(map[string]any)
		if data["display_name"] != "Alice" {
			t.Errorf("metadata = %v", body["data"])
		}

		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "sb-access-token",
			"user":         map[string]any{"id": "sb-uid", "email": "alice@example.com"},
		})
	})

	identity, err := s.Register(context.Background(),
		Credentials{Identifier: "alice@example.com", Secret: "hunter22"},
		Profile{DisplayName: "Alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Metadata did not come back; the profile fills the gap
	if identity.DisplayName != "Alice" {
		t.Errorf("display name = %q", identity.DisplayName)
	}
}

func TestSupabaseBeginOAuth_BuildsAuthorizeURL(t *testing.T) {
	s := supabaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/settings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	})

	got, err := s.BeginOAuth(context.Background(), "http://127.0.0.1:9999/callback")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed, err := url.Parse(got)
	if err != nil {
		t.Fatalf("invalid url: %v", err)
	}
	if !strings.HasSuffix(parsed.Path, "/auth/v1/authorize") {
		t.Errorf("path = %q", parsed.Path)
	}
	if parsed.Query().Get("provider") != "google" {
		t.Errorf("provider = %q", parsed.Query().Get("provider"))
	}
	if parsed.Query().Get("redirect_to") != "http://127.0.0.1:9999/callback" {
		t.Errorf("redirect_to = %q", parsed.Query().Get("redirect_to"))
	}
}

func TestSupabaseBeginOAuth_UnreachableProject(t *testing.T) {
	s := supabaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := s.BeginOAuth(context.Background(), "")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestSupabaseSignOut_RevokesSession(t *testing.T) {
	var sawLogout bool
	s := supabaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "sb-access-token",
				"user":         map[string]any{"id": "sb-uid"},
			})
		case "/auth/v1/logout":
			sawLogout = true
			if got := r.Header.Get("Authorization"); got != "Bearer sb-access-token" {
				t.Errorf("Authorization = %q", got)
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	})

	if _, err := s.Authenticate(context.Background(), Credentials{Identifier: "a@b.c", Secret: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SignOut(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sawLogout {
		t.Error("expected logout call")
	}
	if s.LastToken() != "" {
		t.Error("access token should be cleared")
	}
}

func TestSupabaseSignOut_NoSessionIsNoop(t *testing.T) {
	s := supabaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without a session")
	})

	if err := s.SignOut(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
