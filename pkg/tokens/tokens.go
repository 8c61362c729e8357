// Package tokens generates rotating session token secrets and the digests
// under which they are stored.
package tokens

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// SecretBytes is the amount of entropy in a generated secret.
const SecretBytes = 32

// NewSecret returns a URL-safe, unpadded secret carrying SecretBytes of
// entropy.
func NewSecret() (string, error) {
	buf := make([]byte, SecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Digest maps a secret to the value persisted in storage. Lookups hash the
// presented secret and compare digests, so the raw secret never reaches the
// database.
func Digest(secret string) string {
	sum := blake2b.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// WellFormed reports whether s looks like a secret produced by NewSecret.
func WellFormed(s string) bool {
	if len(s) != base64.RawURLEncoding.EncodedLen(SecretBytes) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil
}
