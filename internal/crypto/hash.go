package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// LookupHasher computes the keyed one-way hash stored next to the encrypted
// email so records can be found by equality without decrypting.
type LookupHasher struct {
	key []byte
}

// NewLookupHasher derives the lookup key from the master key.
func NewLookupHasher(master Key) (*LookupHasher, error) {
	subkey, err := DeriveSubkey(master, infoEmailLookup)
	if err != nil {
		return nil, err
	}
	return &LookupHasher{key: subkey}, nil
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Hash returns the hex HMAC-SHA256 of the normalized email, or "" for an empty one.
func (h *LookupHasher) Hash(email string) string {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return ""
	}
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(normalized))
	return hex.EncodeToString(mac.Sum(nil))
}
