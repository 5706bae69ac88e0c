package auth

import (
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultBCryptCost provides good security/performance balance for 2024
	DefaultBCryptCost = 12

	// MinPasswordLength is the floor enforced by the strength policy
	MinPasswordLength = 8
)

// Hasher wraps bcrypt with a configurable work factor. Used for passwords
// and API-key secrets, never for tokens (those are signed, not hashed).
type Hasher struct {
	cost int
}

// NewHasher clamps the cost into bcrypt's supported range; zero means the
// default. Salting is handled by bcrypt itself.
func NewHasher(cost int) *Hasher {
	if cost == 0 {
		cost = DefaultBCryptCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// Hash creates a salted one-way digest of the secret. Empty input is
// rejected rather than silently hashed.
func (h *Hasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("cannot hash empty secret")
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// Verify checks if the provided secret matches the digest
func (h *Hasher) Verify(secret, digest string) bool {
	if secret == "" || digest == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret))
	return err == nil
}

// Password strength rules. Violations are reported all at once so callers
// can show the complete list instead of one failure at a time.
const (
	RuleMinLength = "password must be at least 8 characters"
	RuleLowercase = "password must contain a lowercase letter"
	RuleUppercase = "password must contain an uppercase letter"
	RuleDigit     = "password must contain a digit"
	RuleSymbol    = "password must contain a symbol"
)

// ValidatePasswordStrength returns the full list of violated rules, empty
// when the password is acceptable.
func ValidatePasswordStrength(password string) []string {
	var violations []string

	if len(password) < MinPasswordLength {
		violations = append(violations, RuleMinLength)
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}

	if !hasLower {
		violations = append(violations, RuleLowercase)
	}
	if !hasUpper {
		violations = append(violations, RuleUppercase)
	}
	if !hasDigit {
		violations = append(violations, RuleDigit)
	}
	if !hasSymbol {
		violations = append(violations, RuleSymbol)
	}

	return violations
}
