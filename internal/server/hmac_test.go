package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignatureAcceptsCorrectMAC(t *testing.T) {
	secret := []byte("shh")
	body := []byte(`{"type":"AgentSessionEvent"}`)
	assert.True(t, verifySignature(secret, body, sign(secret, body)))
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	body := []byte(`{"type":"AgentSessionEvent"}`)
	assert.False(t, verifySignature([]byte("shh"), body, sign([]byte("other"), body)))
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	secret := []byte("shh")
	signature := sign(secret, []byte(`{"a":1}`))
	assert.False(t, verifySignature(secret, []byte(`{"a":2}`), signature))
}

func TestVerifySignatureRejectsEmptyOrMalformedHeader(t *testing.T) {
	secret := []byte("shh")
	body := []byte(`{}`)
	assert.False(t, verifySignature(secret, body, ""))
	assert.False(t, verifySignature(secret, body, "not-hex!!"))
}

func TestVerifySignatureRejectsEmptySecret(t *testing.T) {
	body := []byte(`{}`)
	assert.False(t, verifySignature(nil, body, sign([]byte("x"), body)))
}
