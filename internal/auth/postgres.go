package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/soulmatelibrary-ux/callsingkatc-sub001/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. Row-level consistency of the
// backing tables serializes concurrent password changes on one account; no
// in-process locks are held.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// OpenDB opens a pgx-backed pool with tuned defaults.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

func (s *PGStore) Users(context.Context) UserStore { return &userStore{db: s.db} }
func (s *PGStore) PasswordHistory(context.Context) PasswordHistoryStore {
	return &passwordHistoryStore{db: s.db}
}
func (s *PGStore) RefreshTokens(context.Context) RefreshTokenStore {
	return &refreshTokenStore{db: s.db}
}
func (s *PGStore) Audit(context.Context) AuditStore { return &auditStore{db: s.db} }

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

const userColumns = `id, organization_id, email, role, status, password_hash,
	is_default_password, must_change_password, password_changed_at, last_login_at,
	created_at, updated_at`

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, organization_id, email, role, status, password_hash,
		 is_default_password, must_change_password, password_changed_at)
		 values($1,$2,lower($3),$4,$5,$6,$7,$8,$9)`,
		u.ID, u.OrganizationID, u.Email, u.Role, u.Status, u.PasswordHash,
		u.IsDefaultPassword, u.MustChangePassword, u.PasswordChangedAt,
	)
	return err
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where lower(email)=lower($1)`, email)
	return scanUser(row)
}

func (s *userStore) ListByOrg(ctx context.Context, orgID string) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users where organization_id=$1 order by created_at`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *userStore) UpdatePassword(ctx context.Context, userID, passwordHash string, isDefault, mustChange bool, changedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, is_default_password=$3,
		 must_change_password=$4, password_changed_at=$5, updated_at=now()
		 where id=$1`,
		userID, passwordHash, isDefault, mustChange, changedAt,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *userStore) SetMustChange(ctx context.Context, userID string, mustChange bool) error {
	res, err := s.db.ExecContext(ctx,
		`update users set must_change_password=$2, updated_at=now() where id=$1`,
		userID, mustChange,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *userStore) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set last_login_at=$2, updated_at=now() where id=$1`,
		userID, at,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *userStore) Update(ctx context.Context, userID string, update UserUpdate) (*User, error) {
	sets := []string{"updated_at=now()"}
	args := []any{userID}
	if update.Status != nil {
		args = append(args, *update.Status)
		sets = append(sets, fmt.Sprintf("status=$%d", len(args)))
	}
	if update.Role != nil {
		args = append(args, *update.Role)
		sets = append(sets, fmt.Sprintf("role=$%d", len(args)))
	}
	if update.OrganizationID != nil {
		args = append(args, *update.OrganizationID)
		sets = append(sets, fmt.Sprintf("organization_id=$%d", len(args)))
	}
	row := s.db.QueryRowContext(ctx,
		`update users set `+strings.Join(sets, ", ")+` where id=$1 returning `+userColumns,
		args...,
	)
	return scanUser(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u         User
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.OrganizationID, &u.Email, &u.Role, &u.Status,
		&u.PasswordHash, &u.IsDefaultPassword, &u.MustChangePassword,
		&u.PasswordChangedAt, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Password history store ----------------------------------------------------
type passwordHistoryStore struct{ db *sql.DB }

func (s *passwordHistoryStore) Append(ctx context.Context, entry *PasswordHistoryEntry) error {
	_, err := s.db.ExecContext(ctx,
		`insert into password_history(user_id, password_hash, changed_at) values($1,$2,$3)`,
		entry.UserID, entry.PasswordHash, entry.ChangedAt,
	)
	return err
}

func (s *passwordHistoryStore) Recent(ctx context.Context, userID string, n int) ([]PasswordHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`select user_id, password_hash, changed_at from password_history
		 where user_id=$1 order by changed_at desc limit $2`, userID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []PasswordHistoryEntry
	for rows.Next() {
		var e PasswordHistoryEntry
		if err := rows.Scan(&e.UserID, &e.PasswordHash, &e.ChangedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Refresh token store --------------------------------------------------------
type refreshTokenStore struct{ db *sql.DB }

func (s *refreshTokenStore) Create(ctx context.Context, rec *RefreshTokenRecord) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token_hash, expires_at, created_at)
		 values($1,$2,$3,$4,$5)`,
		rec.ID, rec.UserID, rec.TokenHash, rec.ExpiresAt, rec.CreatedAt,
	)
	return err
}

// Consume relies on delete-returning for atomicity: two concurrent rotations
// with the same jti race on the row and exactly one gets it back.
func (s *refreshTokenStore) Consume(ctx context.Context, id string) (*RefreshTokenRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`delete from refresh_tokens where id=$1
		 returning id, user_id, token_hash, expires_at, created_at`, id)
	var rec RefreshTokenRecord
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.ExpiresAt, &rec.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *refreshTokenStore) RevokeByUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `delete from refresh_tokens where user_id=$1`, userID)
	return err
}

func (s *refreshTokenStore) PurgeExpired(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx, `delete from refresh_tokens where expires_at < $1`, before)
	return err
}

// Audit store ----------------------------------------------------------------
type auditStore struct{ db *sql.DB }

func (s *auditStore) Append(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	meta, _ := json.Marshal(entry.Metadata)
	_, err := s.db.ExecContext(ctx,
		`insert into audit_log(id, occurred_at, actor_user_id, action, resource_type, resource_id, metadata, request_id)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.ID, entry.OccurredAt, entry.ActorUserID, entry.Action,
		entry.ResourceType, entry.ResourceID, meta, entry.RequestID,
	)
	return err
}
