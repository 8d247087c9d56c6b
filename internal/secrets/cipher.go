package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher encrypts and decrypts credential secrets with a process-wide key.
type Cipher struct {
	key []byte
}

// NewCipher builds a cipher from a hex-encoded 32-byte key.
//
// An empty key generates an ephemeral one and logs a warning; callers in
// production must pass a persistent key (config.LoadEncryptionKey enforces
// that before this point is reached).
func NewCipher(hexKey string) (*Cipher, error) {
	if hexKey == "" {
		key := make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("secrets: generate ephemeral key: %w", err)
		}
		log.Warn("secrets: no encryption key configured, using an ephemeral key; encrypted credentials will not survive a restart")
		return &Cipher{key: key}, nil
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("secrets: decode key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("secrets: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Cipher{key: key}, nil
}

// EncryptString seals a plaintext secret into a base64 envelope.
func (c *Cipher) EncryptString(plaintext string) (string, error) {
	if c == nil || len(c.key) == 0 {
		return "", fmt.Errorf("secrets: cipher not initialized")
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("secrets: new aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, errRand := rand.Read(nonce); errRand != nil {
		return "", fmt.Errorf("secrets: nonce: %w", errRand)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString opens a base64 envelope produced by EncryptString.
func (c *Cipher) DecryptString(envelope string) (string, error) {
	if c == nil || len(c.key) == 0 {
		return "", fmt.Errorf("secrets: cipher not initialized")
	}
	sealed, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return "", fmt.Errorf("secrets: decode envelope: %w", err)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("secrets: new aead: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return "", fmt.Errorf("secrets: envelope too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("secrets: decrypt: %w", err)
	}
	return string(plaintext), nil
}
