package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// pkceVerifierBytes is the amount of entropy in a PKCE verifier.
const pkceVerifierBytes = 32

// PKCEChallenge is the per-attempt Proof Key for Code Exchange pair. It is
// created at the start of a login attempt, consumed once by the token exchange
// and never persisted.
type PKCEChallenge struct {
	// Verifier is 32 random bytes, base64url encoded without padding.
	Verifier string
	// Challenge is base64url(sha256(Verifier)) without padding.
	Challenge string
}

// NewPKCEChallenge generates a PKCE pair using crypto/rand.
func NewPKCEChallenge() (*PKCEChallenge, error) {
	return newPKCEChallenge(rand.Reader)
}

func newPKCEChallenge(r io.Reader) (*PKCEChallenge, error) {
	buf := make([]byte, pkceVerifierBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(buf)
	return &PKCEChallenge{
		Verifier:  verifier,
		Challenge: codeChallenge(verifier),
	}, nil
}

// codeChallenge derives the S256 challenge for a verifier.
func codeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// stateBytes is the amount of entropy in an authorization request state.
const stateBytes = 16

// newState returns a random, URL-safe authorization request state.
func newState(r io.Reader) (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
