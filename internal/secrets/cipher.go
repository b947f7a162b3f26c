package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/rendis/blockrun/pkg/schema"
)

// VaultConfig configures the AES key derivation.
// Provide either MasterKey (raw 32 bytes) or Passphrase + Salt.
type VaultConfig struct {
	MasterKey  []byte // raw 32-byte key (takes priority)
	Passphrase string // derive key via PBKDF2
	Salt       []byte // salt for PBKDF2 (required with Passphrase)
	Iterations int    // PBKDF2 iterations (default 100_000)
}

// Cipher encrypts credential payloads with AES-256-GCM. The nonce is kept
// apart from the ciphertext and stored as the record's IV.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from the configured key material.
func NewCipher(cfg VaultConfig) (*Cipher, error) {
	key, err := deriveKey(cfg)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

func deriveKey(cfg VaultConfig) ([]byte, error) {
	if len(cfg.MasterKey) > 0 {
		if len(cfg.MasterKey) != 32 {
			return nil, schema.NewErrorf(schema.ErrCodeVault,
				"master key must be 32 bytes, got %d", len(cfg.MasterKey))
		}
		return cfg.MasterKey, nil
	}
	if cfg.Passphrase == "" {
		return nil, schema.NewError(schema.ErrCodeVault, "either master_key or passphrase is required")
	}
	if len(cfg.Salt) == 0 {
		return nil, schema.NewError(schema.ErrCodeVault, "salt is required with passphrase")
	}
	iterations := cfg.Iterations
	if iterations <= 0 {
		iterations = 100_000
	}
	return pbkdf2.Key(sha256.New, cfg.Passphrase, cfg.Salt, iterations, 32)
}

// Encrypt seals plaintext under a fresh random IV.
func (c *Cipher) Encrypt(plaintext []byte) (data, iv string, err error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", "", fmt.Errorf("generate iv: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), base64.StdEncoding.EncodeToString(nonce), nil
}

// Decrypt opens data sealed by Encrypt with the matching IV.
func (c *Cipher) Decrypt(data, iv string) ([]byte, error) {
	nonce, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeVault, "iv is not valid base64").WithCause(err)
	}
	if len(nonce) != c.aead.NonceSize() {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "iv must be %d bytes, got %d", c.aead.NonceSize(), len(nonce))
	}
	ct, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeVault, "data is not valid base64").WithCause(err)
	}
	plaintext, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "decrypt failed: %s", err.Error())
	}
	return plaintext, nil
}
