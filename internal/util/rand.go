package util

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// RandomString generates a secure random string from n random bytes.
func RandomString(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("random string length must be positive")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RandomPassword returns a throwaway password for accounts that only ever sign in through SSO.
func RandomPassword() (string, error) {
	return RandomString(24)
}
