package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	signaturePrefix = "sha256="
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Sign returns the header value for payload: "sha256=" followed by the hex HMAC-SHA256.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against payload. An empty secret disables the check.
func Verify(secret string, payload []byte, signature string) error {
	if secret == "" {
		return nil
	}
	if !strings.HasPrefix(signature, signaturePrefix) {
		return ErrInvalidSignature
	}

	expected := Sign(secret, payload)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}
