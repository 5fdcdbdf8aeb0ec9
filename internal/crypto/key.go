package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the master key length in bytes (AES-256).
const KeySize = 32

// HKDF info labels. Changing one makes existing data under that purpose unreadable.
const (
	infoFieldCipher = "talentscout-pii-field-v1"
	infoEmailLookup = "talentscout-email-lookup-v1"
	infoTokenSigner = "talentscout-candidate-token-v1"
)

// Key is the process-wide master key. It is never printed.
type Key []byte

func (k Key) String() string { return "[REDACTED]" }

// GoString keeps %#v from leaking the material.
func (k Key) GoString() string { return "crypto.Key([REDACTED])" }

// ParseKey accepts a 64-character hex string or a base64 (standard or
// URL-safe, padded or raw) encoding of exactly 32 bytes.
func ParseKey(material string) (Key, error) {
	material = strings.TrimSpace(material)
	if material == "" {
		return nil, errors.New("key material is empty")
	}

	if len(material) == hex.EncodedLen(KeySize) {
		if raw, err := hex.DecodeString(material); err == nil {
			return Key(raw), nil
		}
	}

	for _, enc := range []*base64.Encoding{
		base64.URLEncoding,
		base64.StdEncoding,
		base64.RawURLEncoding,
		base64.RawStdEncoding,
	} {
		raw, err := enc.DecodeString(material)
		if err != nil {
			continue
		}
		if len(raw) != KeySize {
			return nil, fmt.Errorf("key must be %d bytes, got %d bytes", KeySize, len(raw))
		}
		return Key(raw), nil
	}

	return nil, errors.New("key must be 64 hex characters or base64 of 32 bytes")
}

// GenerateKey returns a fresh random master key.
func GenerateKey() (Key, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return Key(key), nil
}

// GenerateMasterKey generates a new random master key in hex (for setup).
func GenerateMasterKey() (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// DeriveSubkey derives a purpose-bound 32-byte key from the master key using HKDF.
func DeriveSubkey(master Key, info string) ([]byte, error) {
	if len(master) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d bytes", KeySize, len(master))
	}
	if info == "" {
		return nil, errors.New("info label is required for key derivation")
	}

	reader := hkdf.New(sha256.New, master, nil, []byte(info))
	subkey := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, subkey); err != nil {
		return nil, fmt.Errorf("failed to derive subkey: %w", err)
	}
	return subkey, nil
}

// TokenSigningKey derives the HMAC key for candidate access tokens.
func TokenSigningKey(master Key) ([]byte, error) {
	return DeriveSubkey(master, infoTokenSigner)
}
