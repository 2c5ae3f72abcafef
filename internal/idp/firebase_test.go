package idp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func firebaseServer(t *testing.T, handler http.HandlerFunc) (*Firebase, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewFirebase("test-api-key", srv.URL, zerolog.Nop()), srv
}

func toolkitError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message, "code": status},
	})
}

func TestFirebaseAuthenticate_Success(t *testing.T) {
	f, _ := firebaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts:signInWithPassword" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-api-key" {
			t.Errorf("key = %q", r.URL.Query().Get("key"))
		}

		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "alice@example.com" {
			t.Errorf("email = %v", body["email"])
		}

		json.NewEncoder(w).Encode(map[string]any{
			"idToken":     "fb-id-token",
			"localId":     "fb-uid",
			"email":       "alice@example.com",
			"displayName": "Alice",
		})
	})

	identity, err := f.Authenticate(context.Background(), Credentials{
		Identifier: "alice@example.com",
		Secret:     "hunter22",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if identity.Provider != ProviderFirebase {
		t.Errorf("provider = %q", identity.Provider)
	}
	if identity.ExternalID != "fb-uid" || identity.IDToken != "fb-id-token" {
		t.Errorf("identity = %+v", identity)
	}
	if f.LastToken() != "fb-id-token" {
		t.Error("id token was not cached")
	}
}

func TestFirebaseAuthenticate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    error
	}{
		{"email not found", http.StatusBadRequest, "EMAIL_NOT_FOUND", ErrAuthRejected},
		{"invalid password", http.StatusBadRequest, "INVALID_PASSWORD", ErrAuthRejected},
		{"new-style invalid credentials", http.StatusBadRequest, "INVALID_LOGIN_CREDENTIALS", ErrAuthRejected},
		{"disabled account", http.StatusBadRequest, "USER_DISABLED", ErrAuthRejected},
		{"rate limited", http.StatusBadRequest, "TOO_MANY_ATTEMPTS_TRY_LATER", ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := firebaseServer(t, func(w http.ResponseWriter, r *http.Request) {
				toolkitError(w, tt.status, tt.message)
			})

			_, err := f.Authenticate(context.Background(), Credentials{Identifier: "a@b.c", Secret: "x"})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFirebaseAuthenticate_ServerErrorIsUnavailable(t *testing.T) {
	f, _ := firebaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := f.Authenticate(context.Background(), Credentials{Identifier: "a@b.c", Secret: "x"})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestFirebaseRegister_DuplicateEmail(t *testing.T) {
	f, _ := firebaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		toolkitError(w, http.StatusBadRequest, "EMAIL_EXISTS")
	})

	_, err := f.Register(context.Background(), Credentials{Identifier: "a@b.c", Secret: "x"}, Profile{})
	if !errors.Is(err, ErrRegistrationRejected) {
		t.Fatalf("err = %v, want ErrRegistrationRejected", err)
	}
}

func TestFirebaseRegister_SetsDisplayName(t *testing.T) {
	var sawUpdate bool
	f, _ := firebaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/accounts:signUp":
			json.NewEncoder(w).Encode(map[string]any{
				"idToken": "fb-id-token",
				"localId": "fb-uid",
				"email":   "alice@example.com",
			})
		case "/accounts:update":
			sawUpdate = true
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["displayName"] != "Alice" {
				t.Errorf("displayName = %v", body["displayName"])
			}
			json.NewEncoder(w).Encode(map[string]any{"displayName": "Alice"})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	})

	identity, err := f.Register(context.Background(),
		Credentials{Identifier: "alice@example.com", Secret: "hunter22"},
		Profile{DisplayName: "Alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sawUpdate {
		t.Error("expected accounts:update call for display name")
	}
	if identity.DisplayName != "Alice" {
		t.Errorf("display name = %q", identity.DisplayName)
	}
}

func TestFirebaseBeginOAuth(t *testing.T) {
	f, _ := firebaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts:createAuthUri" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["providerId"] != "google.com" {
			t.Errorf("providerId = %v", body["providerId"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"authUri": "https://accounts.google.com/o/oauth2/auth?state=abc",
		})
	})

	url, err := f.BeginOAuth(context.Background(), "http://127.0.0.1:9999/callback")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://accounts.google.com/o/oauth2/auth?state=abc" {
		t.Errorf("url = %q", url)
	}
}

func TestFirebaseSignOut_DropsToken(t *testing.T) {
	f, _ := firebaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"idToken": "fb-id-token", "localId": "u"})
	})

	if _, err := f.Authenticate(context.Background(), Credentials{Identifier: "a@b.c", Secret: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.SignOut(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.LastToken() != "" {
		t.Error("cached token should be dropped on sign-out")
	}
}
