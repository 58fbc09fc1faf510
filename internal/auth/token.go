package auth

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer            = "callsign-portal"
	secretEnvVariable = "PORTAL_AUTH_SECRET"

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Default token lifetimes. Access tokens stay short so revoked or suspended
// accounts converge within the hour; refresh tokens carry the 7-day session.
const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	errMissingSecret = errors.New("auth secret is not configured")

	secretMu sync.Mutex
	secret   cachedSecret
)

type cachedSecret struct {
	value []byte
	err   error
	ready bool
}

// ErrInvalidToken indicates the token failed verification. Malformed input,
// signature mismatch and expiry all collapse to this one value so callers
// cannot distinguish which check failed.
var ErrInvalidToken = errors.New("auth: invalid token")

// AccessClaims are the verified contents of an access token.
type AccessClaims struct {
	Email          string `json:"email"`
	Role           string `json:"role"`
	Status         string `json:"status"`
	OrganizationID string `json:"org,omitempty"`
	TokenType      string `json:"token_type"`
	jwt.RegisteredClaims
}

// Identity rebuilds the claim snapshot carried by the token.
func (c *AccessClaims) Identity() Identity {
	return Identity{
		SubjectID:      c.Subject,
		Email:          c.Email,
		Role:           c.Role,
		Status:         c.Status,
		OrganizationID: c.OrganizationID,
	}
}

// RefreshClaims are the verified contents of a refresh token. Only the
// subject travels in it; everything else is re-fetched at rotation time.
type RefreshClaims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// IssueAccessToken signs an access token for the identity using HS256.
func IssueAccessToken(identity Identity, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(identity.SubjectID) == "" {
		return "", time.Time{}, errors.New("subject is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be greater than zero")
	}
	secretBytes, err := loadSecret()
	if err != nil {
		return "", time.Time{}, err
	}

	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := AccessClaims{
		Email:          identity.Email,
		Role:           identity.Role,
		Status:         identity.Status,
		OrganizationID: identity.OrganizationID,
		TokenType:      tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   identity.SubjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secretBytes)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueRefreshToken signs a refresh token carrying only the subject. The jti
// is returned so the issuer can persist a single-use record for it.
func IssueRefreshToken(subjectID string, ttl time.Duration) (token, jti string, expiresAt time.Time, err error) {
	if strings.TrimSpace(subjectID) == "" {
		return "", "", time.Time{}, errors.New("subject is required")
	}
	if ttl <= 0 {
		return "", "", time.Time{}, errors.New("ttl must be greater than zero")
	}
	secretBytes, err := loadSecret()
	if err != nil {
		return "", "", time.Time{}, err
	}

	now := time.Now().UTC()
	expiresAt = now.Add(ttl)
	jti = uuid.NewString()
	claims := RefreshClaims{
		TokenType: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secretBytes)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, jti, expiresAt, nil
}

// VerifyAccessToken checks signature, expiry and token type.
func VerifyAccessToken(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := verify(token, claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, ErrInvalidToken
	}
	if err := validateRegistered(&claims.RegisteredClaims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefreshToken checks signature, expiry and token type. It does not
// consume the token; rotation bookkeeping belongs to the Service.
func VerifyRefreshToken(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := verify(token, claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != tokenTypeRefresh {
		return nil, ErrInvalidToken
	}
	if err := validateRegistered(&claims.RegisteredClaims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func verify(token string, claims jwt.Claims) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}
	secretBytes, err := loadSecret()
	if err != nil {
		return err
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secretBytes, nil
	})
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}

func validateRegistered(claims *jwt.RegisteredClaims) error {
	if claims.Issuer != issuer {
		return ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return ErrInvalidToken
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return ErrInvalidToken
	}
	now := time.Now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return ErrInvalidToken
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return ErrInvalidToken
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return ErrInvalidToken
	}
	return nil
}

// EnsureSecret reports whether the signing secret is available. The server
// must refuse to start without it.
func EnsureSecret() error {
	_, err := loadSecret()
	return err
}

func loadSecret() ([]byte, error) {
	secretMu.Lock()
	defer secretMu.Unlock()
	if secret.ready {
		return secret.value, secret.err
	}
	raw := strings.TrimSpace(os.Getenv(secretEnvVariable))
	if raw == "" {
		secret.err = errMissingSecret
		secret.ready = true
		return nil, secret.err
	}
	secret.value = []byte(raw)
	secret.err = nil
	secret.ready = true
	return secret.value, nil
}

// ResetSecretForTests clears the cached secret value. Only intended for test use.
func ResetSecretForTests() {
	secretMu.Lock()
	defer secretMu.Unlock()
	secret = cachedSecret{}
}
