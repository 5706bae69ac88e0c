package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
)

const (
	apiKeySecretBytes = 32
	apiKeyRedaction   = "********"
)

// GeneratedKey is the one-time result of minting an API key. FullSecret is
// shown to the caller exactly once and is unrecoverable afterwards; only
// StoredHash and Prefix are persisted.
type GeneratedKey struct {
	FullSecret string
	StoredHash string
	Prefix     string
}

// KeyMaker mints and verifies API-key secrets. The secret layout is
// <tag>_<lookup-id>_<random-secret>: the first two segments form the public
// lookup prefix stored in the clear for indexed lookup, the whole string is
// hashed for storage. The lookup id is a ULID and the random segment is hex,
// so neither can contain an underscore and the three-segment format stays
// parseable.
type KeyMaker struct {
	hasher *Hasher
}

// NewKeyMaker creates a new instance of the KeyMaker.
func NewKeyMaker(hasher *Hasher) *KeyMaker {
	return &KeyMaker{hasher: hasher}
}

// Generate mints a fresh key under the given prefix tag.
func (m *KeyMaker) Generate(prefixTag string) (*GeneratedKey, error) {
	if err := validatePrefixTag(prefixTag); err != nil {
		return nil, err
	}

	buf := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}

	lookupID := ulid.Make().String()
	prefix := prefixTag + "_" + lookupID
	fullSecret := prefix + "_" + hex.EncodeToString(buf)

	storedHash, err := m.hasher.Hash(fullSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to hash key secret: %w", err)
	}

	return &GeneratedKey{
		FullSecret: fullSecret,
		StoredHash: storedHash,
		Prefix:     prefix,
	}, nil
}

// Verify checks a presented secret against a stored hash. Liveness (expiry,
// revocation) is enforced at the lookup layer, not here.
func (m *KeyMaker) Verify(presentedSecret, storedHash string) bool {
	return m.hasher.Verify(presentedSecret, storedHash)
}

// ExtractPrefix derives the lookup prefix from a presented secret. Fails
// closed: any deviation from exactly three non-empty underscore-delimited
// segments returns "".
func ExtractPrefix(secret string) string {
	parts := strings.Split(secret, "_")
	if len(parts) != 3 {
		return ""
	}
	for _, p := range parts {
		if p == "" {
			return ""
		}
	}
	return parts[0] + "_" + parts[1]
}

// MaskSecret renders a secret for display as "<prefix>_<redaction>". An
// unparseable secret masks to the bare redaction so nothing leaks.
func MaskSecret(secret string) string {
	prefix := ExtractPrefix(secret)
	if prefix == "" {
		return apiKeyRedaction
	}
	return prefix + "_" + apiKeyRedaction
}

// MaskedSecret is the display form of a stored key, rebuilt from the
// persisted prefix because the full secret is gone after creation.
func (k *ApiKey) MaskedSecret() string {
	if k.Prefix == "" {
		return apiKeyRedaction
	}
	return k.Prefix + "_" + apiKeyRedaction
}

func validatePrefixTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("prefix tag cannot be empty")
	}
	for _, r := range tag {
		if r == '_' {
			return fmt.Errorf("prefix tag cannot contain underscores")
		}
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return fmt.Errorf("prefix tag must be lowercase alphanumeric")
		}
	}
	return nil
}
