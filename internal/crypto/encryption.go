package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrDecryption is returned for any ciphertext that fails authentication:
// tampering, truncation, bad encoding or the wrong key.
var ErrDecryption = errors.New("decryption failed")

// FieldCipher encrypts individual personal-data fields with AES-256-GCM.
// Each call uses a fresh random nonce, so equal plaintexts give different ciphertexts.
type FieldCipher struct {
	aead cipher.AEAD
}

// NewFieldCipher creates a cipher bound to a subkey of the master key.
func NewFieldCipher(master Key) (*FieldCipher, error) {
	subkey, err := DeriveSubkey(master, infoFieldCipher)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(subkey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &FieldCipher{aead: gcm}, nil
}

// Encrypt returns base64 text of nonce || ciphertext || tag.
// Empty input encrypts to the empty string.
func (c *FieldCipher) Encrypt(plaintext []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. It never returns partial plaintext.
func (c *FieldCipher) Decrypt(ciphertextB64 string) ([]byte, error) {
	if ciphertextB64 == "" {
		return nil, nil
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid encoding", ErrDecryption)
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}

	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecryption)
	}

	return plaintext, nil
}

// EncryptString is a convenience method for encrypting strings
func (c *FieldCipher) EncryptString(plaintext string) (string, error) {
	return c.Encrypt([]byte(plaintext))
}

// DecryptString is a convenience method for decrypting to strings
func (c *FieldCipher) DecryptString(ciphertext string) (string, error) {
	plaintext, err := c.Decrypt(ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
