package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cryptopilot-dev/cryptopilot/internal/idp"
)

func sessionJSON() map[string]any {
	return map[string]any{
		"user_id":            "01HQZX",
		"username":           "alice",
		"display_name":       "Alice",
		"email":              "alice@example.com",
		"role":               "user",
		"email_verified":     true,
		"two_factor_enabled": false,
		"token":              "jwt-token",
	}
}

func TestLogin_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %q", r.Method)
		}

		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Username != "alice" || req.Password != "hunter22" {
			t.Errorf("unexpected credentials: %+v", req)
		}

		json.NewEncoder(w).Encode(sessionJSON())
	}))
	defer srv.Close()

	client := New(srv.URL)
	session, err := client.Login(context.Background(), "alice", "hunter22")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Username != "alice" || session.Token != "jwt-token" {
		t.Errorf("session = %+v", session)
	}
	// Token is adopted for subsequent requests
	if client.Bearer() != "jwt-token" {
		t.Errorf("bearer = %q, want adopted token", client.Bearer())
	}
}

func TestLogin_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
	}))
	defer srv.Close()

	_, err := New(srv.URL).Login(context.Background(), "alice", "wrong")
	if !errors.Is(err, ErrSyncRejected) {
		t.Fatalf("err = %v, want ErrSyncRejected", err)
	}
}

func TestLogin_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Login(context.Background(), "alice", "hunter22")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestLogin_NetworkError(t *testing.T) {
	// Closed server to force a connection error
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := New(srv.URL).Login(context.Background(), "alice", "hunter22")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestFirebaseSync_UnwrapsUserEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/firebase-sync" {
			t.Errorf("path = %q", r.URL.Path)
		}

		var req FirebaseSyncRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.IDToken != "firebase-id-token" {
			t.Errorf("idToken = %q", req.IDToken)
		}

		user := sessionJSON()
		delete(user, "token")
		json.NewEncoder(w).Encode(map[string]any{
			"user":  user,
			"token": "envelope-token",
		})
	}))
	defer srv.Close()

	client := New(srv.URL)
	session, err := client.FirebaseSync(context.Background(), "firebase-id-token", "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Token != "envelope-token" {
		t.Errorf("token = %q, want token lifted from envelope", session.Token)
	}
	if session.Username != "alice" {
		t.Errorf("username = %q", session.Username)
	}
}

func TestSupabaseSync_SendsProviderTokenAsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer supabase-access-token" {
			t.Errorf("Authorization = %q, want provider access token", got)
		}

		var req SupabaseSyncRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.User.ID != "sb-uid" || req.User.Email != "alice@example.com" {
			t.Errorf("user = %+v", req.User)
		}

		json.NewEncoder(w).Encode(sessionJSON())
	}))
	defer srv.Close()

	verifiedAt := time.Now().UTC()
	identity := &idp.Identity{
		Provider:   idp.ProviderSupabase,
		ExternalID: "sb-uid",
		Email:      "alice@example.com",
		IDToken:    "supabase-access-token",
		VerifiedAt: &verifiedAt,
	}

	session, err := New(srv.URL).SupabaseSync(context.Background(), identity)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Token != "jwt-token" {
		t.Errorf("token = %q", session.Token)
	}
}

func TestSync_RoutesByProvider(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.URL.Path == "/api/auth/firebase-sync" {
			json.NewEncoder(w).Encode(map[string]any{"user": sessionJSON()})
			return
		}
		json.NewEncoder(w).Encode(sessionJSON())
	}))
	defer srv.Close()

	client := New(srv.URL)

	tests := []struct {
		name     string
		identity *idp.Identity
		wantPath string
	}{
		{
			name:     "firebase",
			identity: &idp.Identity{Provider: idp.ProviderFirebase, IDToken: "t"},
			wantPath: "/api/auth/firebase-sync",
		},
		{
			name:     "supabase",
			identity: &idp.Identity{Provider: idp.ProviderSupabase, ExternalID: "sb", IDToken: "t"},
			wantPath: "/api/auth/supabase-sync",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := client.Sync(context.Background(), tt.identity); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gotPath != tt.wantPath {
				t.Errorf("path = %q, want %q", gotPath, tt.wantPath)
			}
		})
	}
}

func TestSync_UnknownProviderRejected(t *testing.T) {
	client := New("http://127.0.0.1:1")
	_, err := client.Sync(context.Background(), &idp.Identity{Provider: "okta"})
	if !errors.Is(err, ErrSyncRejected) {
		t.Fatalf("err = %v, want ErrSyncRejected", err)
	}
}

func TestSync_LocalIdentityWithoutCredentialsRejected(t *testing.T) {
	client := New("http://127.0.0.1:1")
	_, err := client.Sync(context.Background(), &idp.Identity{Provider: idp.ProviderLocal})
	if !errors.Is(err, ErrSyncRejected) {
		t.Fatalf("err = %v, want ErrSyncRejected", err)
	}
}

func TestLogout_ClearsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(srv.URL)
	client.SetBearer("jwt-token")

	if err := client.Logout(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Bearer() != "" {
		t.Error("bearer token should be cleared on logout")
	}
}

func TestMe_SendsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer jwt-token" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(sessionJSON())
	}))
	defer srv.Close()

	client := New(srv.URL)
	client.SetBearer("jwt-token")

	session, err := client.Me(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.UserID != "01HQZX" {
		t.Errorf("user_id = %q", session.UserID)
	}
}

func TestParseError_FallbackChain(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected string
	}{
		{
			name:     "json error field",
			status:   http.StatusBadRequest,
			body:     `{"error": "bad symbol"}`,
			expected: "bad symbol",
		},
		{
			name:     "json message field",
			status:   http.StatusBadRequest,
			body:     `{"message": "try again"}`,
			expected: "try again",
		},
		{
			name:     "raw text body",
			status:   http.StatusBadRequest,
			body:     "plain failure",
			expected: "plain failure",
		},
		{
			name:     "empty body",
			status:   http.StatusTeapot,
			body:     "",
			expected: "request failed with status 418",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL).Me(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrSyncRejected) {
				t.Fatalf("err = %v, want ErrSyncRejected", err)
			}
			if want := "backend rejected session sync: " + tt.expected; err.Error() != want {
				t.Errorf("err = %q, want %q", err.Error(), want)
			}
		})
	}
}
