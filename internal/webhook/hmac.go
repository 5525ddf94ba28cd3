package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"hash"
	"strings"
)

// Verify reports whether the request body was signed with secret.
//
// sig256 is the value of the SHA-256 signature header ("sha256=<hex>") and is
// preferred when present. sig1 is the legacy SHA-1 header ("sha1=<hex>") and is
// only consulted when sig256 is blank. Header values are trimmed before
// comparison. An empty secret or no signature at all fails closed.
//
// The comparison uses crypto/subtle; only a length mismatch returns early.
func Verify(body []byte, sig256, sig1, secret string) bool {
	if secret == "" {
		return false
	}

	if s := strings.TrimSpace(sig256); s != "" {
		return constantTimeEqual(Sign256(body, secret), s)
	}
	if s := strings.TrimSpace(sig1); s != "" {
		return constantTimeEqual(Sign1(body, secret), s)
	}
	return false
}

// Sign256 returns the "sha256=<hex>" signature for body.
func Sign256(body []byte, secret string) string {
	return "sha256=" + computeHMAC(sha256.New, body, secret)
}

// Sign1 returns the legacy "sha1=<hex>" signature for body.
func Sign1(body []byte, secret string) string {
	return "sha1=" + computeHMAC(sha1.New, body, secret)
}

func computeHMAC(h func() hash.Hash, body []byte, secret string) string {
	mac := hmac.New(h, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func constantTimeEqual(expected, actual string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}
