package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// Signature computes the HMAC-SHA256 digest of body keyed by secret,
// rendered as lowercase hex. This is the value senders put in the
// signature header.
func Signature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifySignature verifies a header-supplied HMAC-SHA256 signature against
// the raw request body.
//
// The digest is always computed over the exact bytes received, before any
// parsing. Comparison is constant-time (crypto/subtle). An absent or empty
// header value is a mismatch, never a crash.
//
// Supported header formats:
//   - "<hex>" (plain lowercase hex, the native wire format)
//   - "sha256=<hex>" (GitHub style)
//
// All errors are generic to prevent information leakage.
func verifySignature(body []byte, signature, secret string) error {
	if secret == "" {
		return fmt.Errorf("signature verification failed")
	}

	if signature == "" {
		return fmt.Errorf("signature verification failed")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	supplied, err := parseSignature(signature)
	if err != nil {
		return fmt.Errorf("signature verification failed")
	}

	if subtle.ConstantTimeCompare(expected, supplied) != 1 {
		return fmt.Errorf("signature verification failed")
	}

	return nil
}

// parseSignature decodes the signature header into raw digest bytes.
func parseSignature(signature string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(signature, "sha256="); ok {
		return hex.DecodeString(rest)
	}
	return hex.DecodeString(signature)
}
