// Package hasher guards secret-kind field values. Plaintexts are
// hashed before they enter a client mapping bound for storage, so a
// committed document never carries a recoverable secret; checks run
// against the stored hash only.
package hasher

import (
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/albmarin/umongo/ports"
)

// Bcrypt hashes secrets with bcrypt. The zero cost selects bcrypt's
// default; out-of-range costs are clamped to it too.
type Bcrypt struct {
	cost int
}

func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

func (h *Bcrypt) Hash(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
}

// Compare reports whether plaintext is the secret behind hash. A
// malformed hash compares as a mismatch, never as an error: stored
// values that predate hashing must not authenticate.
func (h *Bcrypt) Compare(hash []byte, plaintext string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(plaintext)) == nil
}

// fakePrefix marks values produced by the Fake hasher. Keeping the
// marker distinct from the plaintext lets tests assert that a secret
// was transformed before it reached the store.
const fakePrefix = "hashed$"

// Fake is a transparent hasher for tests. It tags the plaintext
// instead of digesting it, so fixtures stay readable while the
// hash-before-store contract still holds.
type Fake struct{}

func (Fake) Hash(plaintext string) ([]byte, error) {
	return []byte(fakePrefix + plaintext), nil
}

func (Fake) Compare(hash []byte, plaintext string) bool {
	h := string(hash)
	return strings.HasPrefix(h, fakePrefix) && h[len(fakePrefix):] == plaintext
}

var (
	_ ports.Hasher = (*Bcrypt)(nil)
	_ ports.Hasher = Fake{}
)
