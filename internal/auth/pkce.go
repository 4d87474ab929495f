package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// verifierBytes is the entropy of a PKCE code verifier. 32 bytes encode to
// 43 base64url characters, the minimum length RFC 7636 allows.
const verifierBytes = 32

// ChallengeMethod is the only PKCE method we use.
const ChallengeMethod = "S256"

// PKCE is a code verifier and the challenge derived from it.
//
// The challenge travels in the authorization redirect; the verifier stays
// with us (in a short-lived cookie) until the callback sends it to the token
// endpoint. The provider hashes the verifier and compares, so an intercepted
// authorization code is useless without the verifier.
type PKCE struct {
	Verifier  string
	Challenge string
}

// NewPKCE generates a fresh verifier/challenge pair.
func NewPKCE() (*PKCE, error) {
	verifier, err := GenerateVerifier()
	if err != nil {
		return nil, err
	}
	return &PKCE{
		Verifier:  verifier,
		Challenge: DeriveChallenge(verifier),
	}, nil
}

// GenerateVerifier returns 32 random bytes from crypto/rand, base64url-encoded
// without padding. A failing entropy source is returned as an error; there is
// no weaker fallback.
func GenerateVerifier() (string, error) {
	return RandomToken(verifierBytes)
}

// DeriveChallenge computes the S256 challenge: base64url(sha256(verifier))
// without padding.
func DeriveChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// RandomToken returns n random bytes encoded as unpadded base64url. It backs
// both the PKCE verifier and the CSRF state.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: reading random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
