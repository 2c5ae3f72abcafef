package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

func TestJWTRoundTrip(t *testing.T) {
	InitializeJWT("test-secret")

	token, err := GenerateToken("user-1", "alice@example.com", "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "alice@example.com" || claims.Role != "admin" {
		t.Errorf("claims = %+v", claims)
	}

	exp := claims.ExpiresAt.Time
	if until := time.Until(exp); until < 23*time.Hour || until > 25*time.Hour {
		t.Errorf("expiry %v, want roughly 24h out", until)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	InitializeJWT("secret-a")
	token, err := GenerateToken("user-1", "a@b.c", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	InitializeJWT("secret-b")
	if _, err := ValidateToken(token); err == nil {
		t.Error("token signed with a different secret must not validate")
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	InitializeJWT("test-secret")
	if _, err := ValidateToken("not.a.jwt"); err == nil {
		t.Error("expected error for malformed token")
	}
}

func TestGenerateToken_UninitializedSecret(t *testing.T) {
	InitializeJWT("")
	defer InitializeJWT("test-secret")

	if _, err := GenerateToken("user-1", "a@b.c", "user"); err == nil {
		t.Error("expected error when the secret is not initialized")
	}
}

func TestPasswordHashAndVerify(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash == "hunter22" {
		t.Fatal("hash must not equal the plaintext")
	}

	if err := VerifyPassword("hunter22", hash); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := VerifyPassword("wrong", hash); err == nil {
		t.Error("wrong password accepted")
	}
}

func TestGenerateAPIKey(t *testing.T) {
	key, prefix, hash, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(key, "cp_") {
		t.Errorf("key = %q, want cp_ prefix", key)
	}
	if !strings.HasPrefix(key, prefix) {
		t.Errorf("prefix %q is not a prefix of the key", prefix)
	}
	if len(prefix) != 8 {
		t.Errorf("prefix length = %d, want 8", len(prefix))
	}
	if hash != HashAPIKey(key) {
		t.Error("returned hash does not match the key")
	}

	if !VerifyAPIKey(key, hash) {
		t.Error("generated key failed verification")
	}
	if VerifyAPIKey("cp_0000000000", hash) {
		t.Error("wrong key passed verification")
	}
}

func TestGenerateAPIKey_Unique(t *testing.T) {
	k1, _, _, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	k2, _, _, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	if k1 == k2 {
		t.Error("two generated keys are identical")
	}
}

func TestTOTP(t *testing.T) {
	setup, err := GenerateTOTPSecret("alice@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if setup.Secret == "" {
		t.Fatal("empty secret")
	}
	if !strings.HasPrefix(setup.URL, "otpauth://totp/CryptoPilot:") {
		t.Errorf("url = %q", setup.URL)
	}

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !VerifyTOTPCode(code, setup.Secret) {
		t.Error("valid code rejected")
	}
	if VerifyTOTPCode("000000", setup.Secret) && code != "000000" {
		t.Error("invalid code accepted")
	}
}

func TestSessionData_IsAdmin(t *testing.T) {
	admin := &SessionData{Role: "admin"}
	if !admin.IsAdmin() {
		t.Error("admin role should report IsAdmin")
	}

	user := &SessionData{Role: "user"}
	if user.IsAdmin() {
		t.Error("user role should not report IsAdmin")
	}
}
