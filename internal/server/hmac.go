package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// verifySignature checks the constant-time HMAC-SHA256 of body against
// the hex-encoded signature carried in the webhook header. There is no
// third-party wrapper for this in the pack's dependency set; it is a
// five-line primitive the standard library is the idiomatic home for.
func verifySignature(secret []byte, body []byte, signatureHeader string) bool {
	if signatureHeader == "" || len(secret) == 0 {
		return false
	}
	want, err := hex.DecodeString(signatureHeader)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	got := mac.Sum(nil)
	return hmac.Equal(want, got)
}
