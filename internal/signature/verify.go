package signature

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// VerifyBraid verifies the X-Braid-Signature header: a hex-encoded
// HMAC-SHA256 over the raw request body, keyed by the bot token.
// A header that is not valid hex fails verification rather than
// erroring; the caller only needs the yes/no.
func VerifyBraid(header string, secret, body []byte) bool {
	received, err := hex.DecodeString(strings.TrimSpace(header))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	// Constant-time comparison to prevent timing attacks
	return hmac.Equal(received, expected)
}

// VerifyGitHub verifies the X-Hub-Signature header, which GitHub sends
// as "sha1=<hex>" keyed by the webhook secret. Only the hex portion
// after the "=" participates in the comparison.
func VerifyGitHub(header string, secret, body []byte) bool {
	_, hexMAC, found := strings.Cut(strings.TrimSpace(header), "=")
	if !found {
		return false
	}

	received, err := hex.DecodeString(hexMAC)
	if err != nil {
		return false
	}

	mac := hmac.New(sha1.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	return hmac.Equal(received, expected)
}

// ValidateHeader checks that a signature header is present at all.
// Presence and validity are distinct failures: a missing header is a
// 401, a present-but-wrong one is a 403.
func ValidateHeader(name, value string) error {
	if value == "" {
		return fmt.Errorf("missing %s header", name)
	}
	return nil
}
