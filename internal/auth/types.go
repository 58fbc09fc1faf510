package auth

import "time"

// Roles and account statuses recognized by the portal.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Identity is the claim snapshot embedded in every issued access token.
// It is immutable once issued; a stale value (role changed server-side) is
// only corrected on the next issuance or rotation.
type Identity struct {
	SubjectID      string `json:"subjectId"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	Status         string `json:"accountStatus"`
	OrganizationID string `json:"organizationId,omitempty"`
}

func (id Identity) IsAdmin() bool     { return id.Role == RoleAdmin }
func (id Identity) IsSuspended() bool { return id.Status == StatusSuspended }

// User is an airline or regulator operator account.
type User struct {
	ID                 string
	OrganizationID     string
	Email              string
	Role               string
	Status             string
	PasswordHash       string
	IsDefaultPassword  bool
	MustChangePassword bool
	PasswordChangedAt  time.Time
	LastLoginAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Identity returns the claim snapshot for the user's current state.
func (u *User) Identity() Identity {
	return Identity{
		SubjectID:      u.ID,
		Email:          u.Email,
		Role:           u.Role,
		Status:         u.Status,
		OrganizationID: u.OrganizationID,
	}
}

// PasswordHistoryEntry is an append-only record of a superseded password hash.
// Entries are never deleted except by account deletion.
type PasswordHistoryEntry struct {
	UserID       string
	PasswordHash string
	ChangedAt    time.Time
}

// RefreshTokenRecord tracks an outstanding refresh token by its jti.
// Consuming the record on rotation is what makes each token single-use.
type RefreshTokenRecord struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// UserUpdate is a typed partial update over the admin-editable fields.
// Nil fields are left untouched.
type UserUpdate struct {
	Status         *string
	Role           *string
	OrganizationID *string
}

// Session is the product of a successful authentication or rotation.
type Session struct {
	Identity            Identity
	AccessToken         string
	AccessExpiresAt     time.Time
	RefreshToken        string
	RefreshExpiresAt    time.Time
	ForceChangePassword bool
}

// AuditEntry is an append-only log of security-relevant actions.
type AuditEntry struct {
	ID           string
	OccurredAt   time.Time
	ActorUserID  string
	Action       string
	ResourceType string
	ResourceID   string
	Metadata     map[string]string
	RequestID    string
}
