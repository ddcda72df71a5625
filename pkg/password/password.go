// Package password hashes local account passwords.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// SaltBytes is the number of random bytes in a generated salt
const SaltBytes = 16

// Hasher derives a deterministic hash from a password and salt
type Hasher interface {
	Hash(password, salt string) string
}

// Params configures argon2id
type Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	KeyLength   uint32
}

// DefaultParams are the argon2id parameters used for local accounts
var DefaultParams = Params{
	Memory:      64 * 1024,
	Time:        1,
	Parallelism: 4,
	KeyLength:   32,
}

// Argon2Hasher hashes with argon2id and encodes the key as hex
type Argon2Hasher struct {
	params Params
}

// NewArgon2Hasher returns a hasher with the given parameters
func NewArgon2Hasher(params Params) *Argon2Hasher {
	return &Argon2Hasher{params: params}
}

// Hash returns hex(argon2id(password, salt))
func (h *Argon2Hasher) Hash(password, salt string) string {
	key := argon2.IDKey(
		[]byte(password),
		[]byte(salt),
		h.params.Time,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)
	return hex.EncodeToString(key)
}

// NewSalt returns SaltBytes random bytes, base64 encoded
func NewSalt() (string, error) {
	salt := make([]byte, SaltBytes)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}

// Equal compares two encoded hashes in constant time
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
