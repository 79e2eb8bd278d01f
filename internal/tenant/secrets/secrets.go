// Package secrets generates and verifies invitation secrets. Secrets are
// handed to the invitee once and persisted only as bcrypt hashes.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	dErrors "veritrail/pkg/domain-errors"
)

// ErrMismatch is returned by Verify when the presented secret does not match
// the stored hash. Callers decide how to surface it; the package never says
// more than "no match".
var ErrMismatch = errors.New("secret mismatch")

const secretBytes = 32

// Generate creates a random invitation secret, URL-safe for inclusion in an
// invitation link.
func Generate() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invitation secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash produces the bcrypt hash stored with the invitation. The plaintext
// secret is never persisted.
func Hash(secret string) (string, error) {
	if secret == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "secret cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "secret is too long")
		}
		return "", fmt.Errorf("hash invitation secret: %w", err)
	}
	return string(hashed), nil
}

// Verify checks a presented secret against the stored hash.
func Verify(secret, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrMismatch
	default:
		return fmt.Errorf("verify invitation secret: %w", err)
	}
}
