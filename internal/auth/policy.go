package auth

import (
	"crypto/rand"
	"math/big"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// Password policy parameters. HistoryDepth counts superseded hashes consulted
// for reuse checks in addition to the current hash.
const (
	MinPasswordLength = 8
	HistoryDepth      = 5
	MaxPasswordAge    = 90 * 24 * time.Hour

	passwordSymbols = "!@#$%^&*()-_=+[]{};:,.?"
	generatedLength = 12

	lowerChars = "abcdefghijklmnopqrstuvwxyz"
	upperChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars = "0123456789"
)

// ValidateComplexity checks the candidate against the portal password rule:
// at least 8 characters with one uppercase, one lowercase, one digit and one
// symbol from the fixed set.
func ValidateComplexity(candidate string) error {
	if len(candidate) < MinPasswordLength {
		return ErrPasswordTooWeak
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case containsRune(passwordSymbols, r):
			hasSymbol = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSymbol {
		return ErrPasswordTooWeak
	}
	return nil
}

// CheckReuse compares the candidate against the current hash and the most
// recent history entries. Comparison is always hash-based; any match fails
// with the same error regardless of which entry matched.
func CheckReuse(candidate, currentHash string, history []PasswordHistoryEntry) error {
	if currentHash != "" && bcrypt.CompareHashAndPassword([]byte(currentHash), []byte(candidate)) == nil {
		return ErrPasswordReused
	}
	limit := len(history)
	if limit > HistoryDepth {
		limit = HistoryDepth
	}
	for _, entry := range history[:limit] {
		if bcrypt.CompareHashAndPassword([]byte(entry.PasswordHash), []byte(candidate)) == nil {
			return ErrPasswordReused
		}
	}
	return nil
}

// IsStale reports whether the password age exceeds the mandatory rotation
// threshold. Staleness flags the account for a change at the next login; it
// never blocks the login itself.
func IsStale(lastChangedAt, now time.Time) bool {
	if lastChangedAt.IsZero() {
		return false
	}
	return now.Sub(lastChangedAt) > MaxPasswordAge
}

// GenerateCompliant produces a random secret that satisfies
// ValidateComplexity by construction: one character is reserved per required
// class, the remainder is drawn from the full alphabet, and the result is
// shuffled. Uses crypto/rand throughout.
func GenerateCompliant() (string, error) {
	alphabet := lowerChars + upperChars + digitChars + passwordSymbols
	out := make([]byte, 0, generatedLength)

	for _, class := range []string{lowerChars, upperChars, digitChars, passwordSymbols} {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < generatedLength {
		c, err := randomChar(alphabet)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	if err := shuffle(out); err != nil {
		return "", err
	}
	return string(out), nil
}

func randomChar(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[n.Int64()], nil
}

func shuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return err
		}
		j := n.Int64()
		b[i], b[j] = b[j], b[i]
	}
	return nil
}

func containsRune(set string, r rune) bool {
	for _, s := range set {
		if s == r {
			return true
		}
	}
	return false
}
