package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/soulmatelibrary-ux/callsingkatc-sub001/internal/ids"
)

var _ Store = (*MemStore)(nil)

// MemStore implements Store in memory. Used by tests and local development;
// the mutex gives it the same single-consume guarantee the SQL store gets
// from delete-returning.
type MemStore struct {
	mu      sync.Mutex
	users   map[string]*User
	history map[string][]PasswordHistoryEntry
	tokens  map[string]*RefreshTokenRecord
	audits  []AuditEntry
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:   make(map[string]*User),
		history: make(map[string][]PasswordHistoryEntry),
		tokens:  make(map[string]*RefreshTokenRecord),
	}
}

func (m *MemStore) Users(context.Context) UserStore                     { return (*memUsers)(m) }
func (m *MemStore) PasswordHistory(context.Context) PasswordHistoryStore { return (*memHistory)(m) }
func (m *MemStore) RefreshTokens(context.Context) RefreshTokenStore     { return (*memTokens)(m) }
func (m *MemStore) Audit(context.Context) AuditStore                    { return (*memAudit)(m) }

// AuditEntries returns a copy of everything appended so far.
func (m *MemStore) AuditEntries() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AuditEntry, len(m.audits))
	copy(out, m.audits)
	return out
}

type memUsers MemStore

func (m *memUsers) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrAlreadyExists
		}
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) Find(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) ListByOrg(_ context.Context, orgID string) ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*User
	for _, u := range m.users {
		if u.OrganizationID == orgID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, userID, passwordHash string, isDefault, mustChange bool, changedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.IsDefaultPassword = isDefault
	u.MustChangePassword = mustChange
	u.PasswordChangedAt = changedAt
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memUsers) SetMustChange(_ context.Context, userID string, mustChange bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.MustChangePassword = mustChange
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memUsers) RecordLogin(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	t := at
	u.LastLoginAt = &t
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memUsers) Update(_ context.Context, userID string, update UserUpdate) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	if update.Status != nil {
		u.Status = *update.Status
	}
	if update.Role != nil {
		u.Role = *update.Role
	}
	if update.OrganizationID != nil {
		u.OrganizationID = *update.OrganizationID
	}
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	return &cp, nil
}

type memHistory MemStore

func (m *memHistory) Append(_ context.Context, entry *PasswordHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[entry.UserID] = append(m.history[entry.UserID], *entry)
	return nil
}

func (m *memHistory) Recent(_ context.Context, userID string, n int) ([]PasswordHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.history[userID]
	out := make([]PasswordHistoryEntry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool { return out[i].ChangedAt.After(out[j].ChangedAt) })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

type memTokens MemStore

func (m *memTokens) Create(_ context.Context, rec *RefreshTokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[rec.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *rec
	m.tokens[rec.ID] = &cp
	return nil
}

func (m *memTokens) Consume(_ context.Context, id string) (*RefreshTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.tokens, id)
	cp := *rec
	return &cp, nil
}

func (m *memTokens) RevokeByUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.tokens {
		if rec.UserID == userID {
			delete(m.tokens, id)
		}
	}
	return nil
}

func (m *memTokens) PurgeExpired(_ context.Context, before time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.tokens {
		if rec.ExpiresAt.Before(before) {
			delete(m.tokens, id)
		}
	}
	return nil
}

type memAudit MemStore

func (m *memAudit) Append(_ context.Context, entry *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, *entry)
	return nil
}
