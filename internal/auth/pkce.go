package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrRandomnessUnavailable is returned when the secure random source cannot be read.
var ErrRandomnessUnavailable = errors.New("secure randomness unavailable")

// artifactBytes is the entropy of every state and code verifier before encoding.
const artifactBytes = 32

// randReader is the entropy source for states and verifiers.
var randReader io.Reader = rand.Reader

// NewState generates an unguessable, URL-safe state value for a single authorization attempt.
func NewState() (string, error) {
	return randomToken()
}

// NewPKCEPair generates a code verifier and its S256 code challenge.
func NewPKCEPair() (verifier, challenge string, err error) {
	verifier, err = randomToken()
	if err != nil {
		return "", "", err
	}
	return verifier, ChallengeS256(verifier), nil
}

// ChallengeS256 derives the PKCE code challenge for a verifier: base64url(SHA-256(verifier)) without padding.
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func randomToken() (string, error) {
	b := make([]byte, artifactBytes)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRandomnessUnavailable, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
