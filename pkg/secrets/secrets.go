// Package secrets decrypts the enc* values of the portal configuration.
//
// Ciphertexts are base64(nonce || AES-256-GCM sealed box). The key is derived
// from a master passphrase with argon2id, so operators only hold the
// passphrase and the ciphertexts can live in version-controlled config.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// ErrDecrypt is returned when a ciphertext cannot be decoded or authenticated
var ErrDecrypt = errors.New("secrets: decryption failed")

// Decrypter turns an encrypted configuration value into plaintext
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// AESDecrypter implements Decrypter with AES-256-GCM
type AESDecrypter struct {
	aead cipher.AEAD
}

// DeriveKey derives a 32-byte AES key from the passphrase
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

// NewAESDecrypter derives a key from passphrase and salt and prepares the cipher
func NewAESDecrypter(passphrase, salt string) (*AESDecrypter, error) {
	if passphrase == "" {
		return nil, errors.New("secrets: empty passphrase")
	}

	block, err := aes.NewCipher(DeriveKey([]byte(passphrase), []byte(salt)))
	if err != nil {
		return nil, fmt.Errorf("secrets: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: create gcm: %w", err)
	}
	return &AESDecrypter{aead: aead}, nil
}

// Decrypt opens a value produced by Encrypt
func (d *AESDecrypter) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrDecrypt, err)
	}

	nonceSize := d.aead.NonceSize()
	if len(raw) < nonceSize+d.aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}

	plaintext, err := d.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plaintext), nil
}

// Encrypt seals plaintext with a fresh random nonce. Used by the -encrypt
// flag of the server binary to produce config values.
func (d *AESDecrypter) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, d.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secrets: generate nonce: %w", err)
	}

	sealed := d.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}
