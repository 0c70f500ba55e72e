// Package credential hashes and verifies user secrets.
package credential

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxSecretBytes is the longest secret bcrypt accepts.
const MaxSecretBytes = 72

// ErrSecretTooLong is returned by Hash for secrets over MaxSecretBytes bytes.
var ErrSecretTooLong = errors.New("secret exceeds 72 bytes")

// BcryptStore is a one-way credential store backed by bcrypt.
type BcryptStore struct {
	cost int
}

// NewBcryptStore returns a store hashing with the given work factor.
// Costs outside bcrypt's accepted range fall back to bcrypt.DefaultCost.
func NewBcryptStore(cost int) *BcryptStore {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptStore{cost: cost}
}

// Cost returns the work factor used for new hashes.
func (s *BcryptStore) Cost() int {
	return s.cost
}

// Hash returns the bcrypt hash of secret. The limit is in bytes, so a
// multibyte secret can exceed it with fewer than 72 characters.
func (s *BcryptStore) Hash(secret string) (string, error) {
	if len(secret) > MaxSecretBytes {
		return "", ErrSecretTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrSecretTooLong
		}
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether secret matches hash. A mismatch is not an error;
// only a malformed hash is.
func (s *BcryptStore) Verify(secret, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("verify secret: %w", err)
	}
}
