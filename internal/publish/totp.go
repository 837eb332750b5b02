package publish

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// TOTP returns the RFC 6238 code for a base32 secret at time t.
// An empty secret yields an empty code.
func TOTP(secret string, t time.Time) (string, error) {
	secret = strings.ReplaceAll(strings.TrimSpace(secret), " ", "")
	if secret == "" {
		return "", nil
	}
	code, err := totp.GenerateCode(secret, t)
	if err != nil {
		return "", fmt.Errorf("generate 2fa code: %w", err)
	}
	return code, nil
}
