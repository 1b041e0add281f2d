package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrSecretMismatch is returned by SecretMatcher.Match when the candidate does not match.
var ErrSecretMismatch = errors.New("secret mismatch")

// Hasher hashes and verifies secrets using bcrypt. Callers must not log or persist plaintext.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost, clamped to bcrypt's valid range.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	cost = max(bcrypt.MinCost, min(cost, bcrypt.MaxCost))
	return &Hasher{Cost: cost}
}

// Hash produces a bcrypt hash of secret.
func (h *Hasher) Hash(secret []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(secret, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare verifies secret against hash in constant time. Returns nil on match.
func (h *Hasher) Compare(hash string, secret []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), secret)
}

// SecretMatcher holds the bcrypt hash of a configured secret (e.g. the bootstrap admin national ID)
// so the plaintext is not retained after startup.
type SecretMatcher struct {
	hasher *Hasher
	hash   string
}

// NewSecretMatcher hashes secret once with h.
func NewSecretMatcher(h *Hasher, secret string) (*SecretMatcher, error) {
	if secret == "" {
		return nil, errors.New("secret must not be empty")
	}
	hash, err := h.Hash([]byte(secret))
	if err != nil {
		return nil, err
	}
	return &SecretMatcher{hasher: h, hash: hash}, nil
}

// Match returns nil when candidate equals the configured secret, ErrSecretMismatch otherwise.
func (m *SecretMatcher) Match(candidate string) error {
	if err := m.hasher.Compare(m.hash, []byte(candidate)); err != nil {
		return ErrSecretMismatch
	}
	return nil
}
