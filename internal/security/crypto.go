// Package security seals wallet keys at rest. Keys are encrypted with
// XChaCha20-Poly1305 under a key derived from an operator passphrase with
// Argon2id. The salt lives next to the database in tideHome/keys/.
package security

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/tide-labs/tide/internal/domain"
)

// Argon2id parameters.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	saltLen      = 16
)

// Sealer encrypts and decrypts wallet key material.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the sealing key from passphrase and salt.
func NewSealer(passphrase, salt []byte) (*Sealer, error) {
	if len(passphrase) == 0 {
		return nil, domain.ErrKeystoreLocked
	}
	if len(salt) < saltLen {
		return nil, fmt.Errorf("keystore salt must be at least %d bytes", saltLen)
	}
	key := argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init xchacha20-poly1305: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// OpenKeystore loads (or creates) the salt under tideHome and reads the
// passphrase from the environment variable envVar.
func OpenKeystore(tideHome, envVar string) (*Sealer, error) {
	pass := os.Getenv(envVar)
	if pass == "" {
		return nil, fmt.Errorf("%w: set %s", domain.ErrKeystoreLocked, envVar)
	}
	salt, err := LoadOrCreateSalt(tideHome)
	if err != nil {
		return nil, err
	}
	return NewSealer([]byte(pass), salt)
}

// LoadOrCreateSalt reads tideHome/keys/keystore.salt, generating it on
// first run.
func LoadOrCreateSalt(tideHome string) ([]byte, error) {
	keyDir := filepath.Join(tideHome, "keys")
	saltPath := filepath.Join(keyDir, "keystore.salt")

	if raw, err := os.ReadFile(saltPath); err == nil {
		salt, err := hex.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("decode keystore salt: %w", err)
		}
		return salt, nil
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate keystore salt: %w", err)
	}
	if err := os.MkdirAll(keyDir, 0700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(saltPath, []byte(hex.EncodeToString(salt)), 0600); err != nil {
		return nil, fmt.Errorf("write keystore salt: %w", err)
	}
	return salt, nil
}

// Seal encrypts plain. Output is nonce || ciphertext.
func (s *Sealer) Seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n+s.aead.Overhead() {
		return nil, fmt.Errorf("%w: sealed value too short", domain.ErrKeyCorrupted)
	}
	plain, err := s.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrKeyCorrupted, err)
	}
	return plain, nil
}
