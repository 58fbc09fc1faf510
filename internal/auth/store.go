package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	PasswordHistory(ctx context.Context) PasswordHistoryStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
	Audit(ctx context.Context) AuditStore
}

// UserStore manages portal accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	// FindByEmail matches case-insensitively.
	FindByEmail(ctx context.Context, email string) (*User, error)
	ListByOrg(ctx context.Context, orgID string) ([]*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string, isDefault, mustChange bool, changedAt time.Time) error
	SetMustChange(ctx context.Context, userID string, mustChange bool) error
	RecordLogin(ctx context.Context, userID string, at time.Time) error
	Update(ctx context.Context, userID string, update UserUpdate) (*User, error)
}

// PasswordHistoryStore keeps superseded password hashes. Append-only.
type PasswordHistoryStore interface {
	Append(ctx context.Context, entry *PasswordHistoryEntry) error
	// Recent returns up to n entries, newest first.
	Recent(ctx context.Context, userID string, n int) ([]PasswordHistoryEntry, error)
}

// RefreshTokenStore manages single-use refresh token records.
type RefreshTokenStore interface {
	Create(ctx context.Context, rec *RefreshTokenRecord) error
	// Consume atomically removes and returns the record. A second Consume
	// with the same id fails with ErrNotFound; this is the single-use
	// guarantee concurrent rotations race on.
	Consume(ctx context.Context, id string) (*RefreshTokenRecord, error)
	RevokeByUser(ctx context.Context, userID string) error
	PurgeExpired(ctx context.Context, before time.Time) error
}

// AuditStore appends immutable entries.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
}
