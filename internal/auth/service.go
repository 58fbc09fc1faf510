package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/soulmatelibrary-ux/callsingkatc-sub001/internal/ids"
)

// Service is the server-side authority for session issuance, refresh token
// rotation and password lifecycle.
type Service struct {
	store  Store
	mailer Mailer
	now    func() time.Time

	accessTTL  time.Duration
	refreshTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithMailer configures the out-of-band delivery collaborator.
func WithMailer(m Mailer) ServiceOption {
	return func(s *Service) error {
		if m != nil {
			s.mailer = m
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	svc := &Service{
		store:      store,
		mailer:     NopMailer{},
		now:        time.Now,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Authenticate verifies credentials and issues a fresh token pair.
//
// Unknown email and wrong password return the identical error so responses
// cannot be used to enumerate accounts. Suspension is only revealed after
// the password matched.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Status == StatusSuspended {
		return nil, ErrSuspended
	}

	now := s.now().UTC()
	if IsStale(user.PasswordChangedAt, now) && !user.MustChangePassword {
		if err := s.store.Users(ctx).SetMustChange(ctx, user.ID, true); err != nil {
			return nil, err
		}
		user.MustChangePassword = true
	}
	if err := s.store.Users(ctx).RecordLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}

	session, err := s.mint(ctx, user)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, user.ID, "auth.login", "user", user.ID, nil)
	return session, nil
}

// Rotate exchanges a valid refresh token for a new token pair. The presented
// token's jti record is consumed first, so each refresh token survives
// exactly one successful exchange; a replay or a lost race fails with
// ErrInvalidToken. The account is re-fetched so role and status changes take
// effect at rotation time.
func (s *Service) Rotate(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	record, err := s.store.RefreshTokens(ctx).Consume(ctx, claims.ID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if record.UserID != claims.Subject || !hashMatches(record.TokenHash, refreshToken) {
		return nil, ErrInvalidToken
	}
	if s.now().UTC().After(record.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	user, err := s.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if user.Status == StatusSuspended {
		return nil, ErrSuspended
	}
	return s.mint(ctx, user)
}

// Logout invalidates the presented refresh token, if any. A missing or
// malformed token is not an error; the cookie is cleared either way.
func (s *Service) Logout(ctx context.Context, refreshToken string) {
	claims, err := VerifyRefreshToken(refreshToken)
	if err != nil {
		return
	}
	_, _ = s.store.RefreshTokens(ctx).Consume(ctx, claims.ID)
}

// IdentityFromRefresh verifies a refresh token without consuming it and
// returns the account's current identity. Used by the /auth/me cookie
// fallback, which must not rotate the token.
func (s *Service) IdentityFromRefresh(ctx context.Context, refreshToken string) (Identity, error) {
	claims, err := VerifyRefreshToken(refreshToken)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	user, err := s.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, err
	}
	return user.Identity(), nil
}

// ChangePassword applies the self-service password change after verifying
// the current password and the layered policy: confirmation, complexity,
// reuse against the current hash plus recent history.
func (s *Service) ChangePassword(ctx context.Context, userID, current, candidate, confirm string) error {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrInvalidCredentials
	}
	if candidate != confirm {
		return ErrPasswordMismatch
	}
	if err := ValidateComplexity(candidate); err != nil {
		return err
	}
	history, err := s.store.PasswordHistory(ctx).Recent(ctx, user.ID, HistoryDepth)
	if err != nil {
		return err
	}
	if err := CheckReuse(candidate, user.PasswordHash, history); err != nil {
		return err
	}
	if err := s.replacePassword(ctx, user, candidate, false, false); err != nil {
		return err
	}
	// Outstanding sessions were issued against the old credential.
	if err := s.store.RefreshTokens(ctx).RevokeByUser(ctx, user.ID); err != nil {
		return err
	}
	s.audit(ctx, user.ID, "auth.password.changed", "user", user.ID, nil)
	return nil
}

// ForgotPassword issues a temporary compliant password and mails it out of
// band. Unknown or suspended accounts are silently ignored so the endpoint
// stays enumeration-safe.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if user.Status == StatusSuspended {
		return nil
	}
	temp, err := GenerateCompliant()
	if err != nil {
		return err
	}
	if err := s.replacePassword(ctx, user, temp, true, true); err != nil {
		return err
	}
	if err := s.store.RefreshTokens(ctx).RevokeByUser(ctx, user.ID); err != nil {
		return err
	}
	s.audit(ctx, user.ID, "auth.password.recovery", "user", user.ID, nil)
	return s.mailer.SendTemporaryPassword(ctx, user.Email, temp)
}

// ResetPassword is the admin-issued reset. The generated secret is returned
// exactly once to the caller and is never logged or persisted in plaintext.
func (s *Service) ResetPassword(ctx context.Context, userID string) (string, error) {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return "", err
	}
	temp, err := GenerateCompliant()
	if err != nil {
		return "", err
	}
	if err := s.replacePassword(ctx, user, temp, true, true); err != nil {
		return "", err
	}
	if err := s.store.RefreshTokens(ctx).RevokeByUser(ctx, user.ID); err != nil {
		return "", err
	}
	s.audit(ctx, user.ID, "auth.password.reset", "user", user.ID, nil)
	return temp, nil
}

// UpdateUser applies a typed partial update over the admin-editable fields.
func (s *Service) UpdateUser(ctx context.Context, userID string, update UserUpdate) (*User, error) {
	if update.Status != nil && *update.Status != StatusActive && *update.Status != StatusSuspended {
		return nil, ErrInvalidInput
	}
	if update.Role != nil && *update.Role != RoleAdmin && *update.Role != RoleUser {
		return nil, ErrInvalidInput
	}
	user, err := s.store.Users(ctx).Update(ctx, userID, update)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, userID, "auth.user.updated", "user", userID, nil)
	return user, nil
}

// FindUser loads an account by id.
func (s *Service) FindUser(ctx context.Context, userID string) (*User, error) {
	return s.store.Users(ctx).Find(ctx, userID)
}

func (s *Service) mint(ctx context.Context, user *User) (*Session, error) {
	accessToken, accessExp, err := IssueAccessToken(user.Identity(), s.accessTTL)
	if err != nil {
		return nil, err
	}
	refreshToken, jti, refreshExp, err := IssueRefreshToken(user.ID, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	rec := &RefreshTokenRecord{
		ID:        jti,
		UserID:    user.ID,
		TokenHash: hashToken(refreshToken),
		ExpiresAt: refreshExp,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.RefreshTokens(ctx).Create(ctx, rec); err != nil {
		return nil, err
	}
	return &Session{
		Identity:            user.Identity(),
		AccessToken:         accessToken,
		AccessExpiresAt:     accessExp,
		RefreshToken:        refreshToken,
		RefreshExpiresAt:    refreshExp,
		ForceChangePassword: user.IsDefaultPassword || user.MustChangePassword,
	}, nil
}

// replacePassword swaps the stored hash and appends the superseded hash to
// the history so it stays visible to future reuse checks.
func (s *Service) replacePassword(ctx context.Context, user *User, plaintext string, isDefault, mustChange bool) error {
	hash, err := HashPassword(plaintext)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	if user.PasswordHash != "" {
		entry := &PasswordHistoryEntry{
			UserID:       user.ID,
			PasswordHash: user.PasswordHash,
			ChangedAt:    now,
		}
		if err := s.store.PasswordHistory(ctx).Append(ctx, entry); err != nil {
			return err
		}
	}
	if err := s.store.Users(ctx).UpdatePassword(ctx, user.ID, hash, isDefault, mustChange, now); err != nil {
		return err
	}
	user.PasswordHash = hash
	user.IsDefaultPassword = isDefault
	user.MustChangePassword = mustChange
	user.PasswordChangedAt = now
	return nil
}

func (s *Service) audit(ctx context.Context, actorID, action, resourceType, resourceID string, metadata map[string]string) {
	entry := &AuditEntry{
		ID:           ids.New(),
		OccurredAt:   s.now().UTC(),
		ActorUserID:  actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
	}
	// Audit failures must not fail the underlying operation.
	_ = s.store.Audit(ctx).Append(ctx, entry)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func hashMatches(expected, token string) bool {
	actual := hashToken(token)
	if len(expected) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}
