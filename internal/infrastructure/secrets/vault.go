// Package secrets encrypts agency credentials before they reach storage.
//
// A Vault derives a 256-bit key from the deployment's master secret
// (SHA-256) and seals values with AES-256-GCM. The persisted form is
// URL-safe base64 of nonce || ciphertext || tag. There is exactly one
// master secret per deployment; changing it makes every stored blob
// unreadable, which Decrypt reports as ErrDecryptionFailure.
package secrets

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrVaultUninitialized means a nil or zero Vault was used. It is a
	// programming error: the server must not serve requests without a vault.
	ErrVaultUninitialized = errors.New("secrets: vault is not initialized")
	// ErrEmptyMasterSecret is returned by NewVault for an empty master secret
	ErrEmptyMasterSecret = errors.New("secrets: master secret is empty")
	// ErrDecryptionFailure means a non-empty blob could not be authenticated
	// or decoded (wrong master secret, corruption). It is never "not configured".
	ErrDecryptionFailure = errors.New("secrets: decryption failed")
)

// Strict so that a blob has exactly one accepted spelling
var encoding = base64.URLEncoding.Strict()

// Vault encrypts and decrypts small strings and configuration documents.
// It is immutable after construction and safe for concurrent use.
type Vault struct {
	aead cipher.AEAD
}

// NewVault derives the vault key from masterSecret
func NewVault(masterSecret string) (*Vault, error) {
	if masterSecret == "" {
		return nil, ErrEmptyMasterSecret
	}
	key := sha256.Sum256([]byte(masterSecret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("secrets: aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: gcm: %w", err)
	}
	return &Vault{aead: aead}, nil
}

func (v *Vault) ready() error {
	if v == nil || v.aead == nil {
		return ErrVaultUninitialized
	}
	return nil
}

// Encrypt seals plaintext. An empty plaintext yields an empty blob.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if err := v.ready(); err != nil {
		return "", err
	}
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secrets: generate nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return encoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. An empty blob yields an empty string.
func (v *Vault) Decrypt(blob string) (string, error) {
	if err := v.ready(); err != nil {
		return "", err
	}
	if blob == "" {
		return "", nil
	}
	raw, err := encoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: malformed encoding", ErrDecryptionFailure)
	}
	nonceSize := v.aead.NonceSize()
	if len(raw) < nonceSize+v.aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailure)
	}
	plaintext, err := v.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryptionFailure)
	}
	return string(plaintext), nil
}

// EncryptConfig serialises cfg to JSON and seals it. A nil or empty map
// yields an empty blob.
func (v *Vault) EncryptConfig(cfg map[string]any) (string, error) {
	if err := v.ready(); err != nil {
		return "", err
	}
	if len(cfg) == 0 {
		return "", nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("secrets: encode config: %w", err)
	}
	return v.Encrypt(string(data))
}

// DecryptConfig opens a blob produced by EncryptConfig. An empty blob
// yields an empty map. Integral numbers come back as int64, other numbers
// as float64.
func (v *Vault) DecryptConfig(blob string) (map[string]any, error) {
	plaintext, err := v.Decrypt(blob)
	if err != nil {
		return nil, err
	}
	cfg := map[string]any{}
	if plaintext == "" {
		return cfg, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(plaintext)))
	dec.UseNumber()
	if err := dec.Decode(&cfg); err != nil || cfg == nil || dec.More() {
		return nil, fmt.Errorf("%w: config is not a JSON object", ErrDecryptionFailure)
	}
	for k, val := range cfg {
		cfg[k] = normalizeNumber(val)
	}
	return cfg, nil
}

func normalizeNumber(val any) any {
	switch n := val.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil && !math.IsInf(f, 0) {
			return f
		}
		return n.String()
	case map[string]any:
		for k, inner := range n {
			n[k] = normalizeNumber(inner)
		}
		return n
	case []any:
		for i, inner := range n {
			n[i] = normalizeNumber(inner)
		}
		return n
	}
	return val
}
