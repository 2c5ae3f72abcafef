package auth

import (
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpIssuer = "CryptoPilot"

// TOTPSetup holds the generated secret and the otpauth:// URL the user
// scans into their authenticator app
type TOTPSetup struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

// GenerateTOTPSecret creates a new TOTP secret for the given account
func GenerateTOTPSecret(account string) (*TOTPSetup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: account,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	return &TOTPSetup{
		Secret: key.Secret(),
		URL:    key.URL(),
	}, nil
}

// VerifyTOTPCode checks a 6-digit code against the stored secret
func VerifyTOTPCode(code, secret string) bool {
	return totp.Validate(code, secret)
}
