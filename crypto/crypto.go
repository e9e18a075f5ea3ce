// Package crypto seals stored match payloads at rest. Scouting notes often
// carry opinions about other teams, so deployments can keep them encrypted in
// the database with AES-256-GCM. Every ciphertext is bound to its row through
// additional authenticated data, so a payload copied onto another row fails to
// open.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Payload encryption versions stored alongside each row.
const (
	VersionPlaintext = 0
	VersionAESGCM    = 1
)

// ErrOpen is returned when a ciphertext fails authentication.
var ErrOpen = errors.New("decryption failed: authentication or integrity check failed")

// Encryptor seals and opens payloads. Implementations must be AEAD.
type Encryptor interface {
	// Seal encrypts plaintext bound to aad.
	Seal(plaintext, aad []byte) ([]byte, error)
	// Open reverses Seal. aad must match the value used when sealing.
	Open(ciphertext, aad []byte) ([]byte, error)
	// KeyID identifies the key without revealing it.
	KeyID() string
}

// AESEncryptor implements Encryptor using AES-256-GCM.
type AESEncryptor struct {
	aead  cipher.AEAD
	keyID string
}

// NewAESEncryptor creates an encryptor from a base64-encoded 32-byte key.
// Generate one with:
//
//	openssl rand -base64 32
func NewAESEncryptor(base64Key string) (*AESEncryptor, error) {
	if base64Key == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}

	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: base64 decode failed: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key: must be 32 bytes (256 bits), got %d bytes", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	sum := sha256.Sum256(key)
	return &AESEncryptor{aead: aead, keyID: hex.EncodeToString(sum[:8])}, nil
}

// Seal returns nonce || ciphertext || tag. The 12-byte nonce is random per
// call.
func (e *AESEncryptor) Seal(plaintext, aad []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("plaintext is empty")
	}
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open authenticates and decrypts a value produced by Seal.
func (e *AESEncryptor) Open(ciphertext, aad []byte) ([]byte, error) {
	nonceSize := e.aead.NonceSize()
	if len(ciphertext) < nonceSize+e.aead.Overhead() {
		return nil, fmt.Errorf("ciphertext too short: expected at least %d bytes, got %d", nonceSize+e.aead.Overhead(), len(ciphertext))
	}
	plaintext, err := e.aead.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], aad)
	if err != nil {
		// details are withheld on purpose
		return nil, ErrOpen
	}
	return plaintext, nil
}

// KeyID returns a short fingerprint of the key for the encryption_key_id
// column.
func (e *AESEncryptor) KeyID() string { return e.keyID }

// SealString seals plaintext and returns base64 suitable for text columns.
// Empty input stays empty.
func SealString(enc Encryptor, plaintext, aad string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	ciphertext, err := enc.Seal([]byte(plaintext), []byte(aad))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// OpenString reverses SealString.
func OpenString(enc Encryptor, sealed, aad string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("base64 decode failed: %w", err)
	}
	plaintext, err := enc.Open(ciphertext, []byte(aad))
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
