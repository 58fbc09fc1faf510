package auth

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "organization_id", "email", "role", "status", "password_hash",
		"is_default_password", "must_change_password", "password_changed_at",
		"last_login_at", "created_at", "updated_at",
	})
}

func TestPGFindByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)select .+ from users where lower\(email\)=lower\(\$1\)`).
		WithArgs("pilot@airline.example").
		WillReturnRows(userRows().AddRow(
			"user-1", "org-1", "pilot@airline.example", RoleUser, StatusActive,
			"$2a$10$hash", false, false, now, nil, now, now,
		))

	store := NewPGStore(db)
	u, err := store.Users(context.Background()).FindByEmail(context.Background(), "pilot@airline.example")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if u.ID != "user-1" || u.Role != RoleUser {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.LastLoginAt != nil {
		t.Fatal("null last_login_at must map to nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGFindByEmailNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`(?s)select .+ from users where lower\(email\)=lower\(\$1\)`).
		WithArgs("nobody@airline.example").
		WillReturnRows(userRows())

	store := NewPGStore(db)
	_, err = store.Users(context.Background()).FindByEmail(context.Background(), "nobody@airline.example")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGConsumeDeleteReturning(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`delete from refresh_tokens where id=\$1`).
		WithArgs("jti-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "created_at"}).
			AddRow("jti-1", "user-1", "deadbeef", now.Add(time.Hour), now))

	store := NewPGStore(db)
	rec, err := store.RefreshTokens(context.Background()).Consume(context.Background(), "jti-1")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if rec.UserID != "user-1" || rec.TokenHash != "deadbeef" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGConsumeMissingRowIsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`delete from refresh_tokens where id=\$1`).
		WithArgs("jti-replayed").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "created_at"}))

	store := NewPGStore(db)
	_, err = store.RefreshTokens(context.Background()).Consume(context.Background(), "jti-replayed")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGUpdatePassword(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	changedAt := time.Now().UTC()
	mock.ExpectExec(`update users set password_hash=\$2`).
		WithArgs("user-1", "$2a$10$newhash", true, true, changedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPGStore(db)
	if err := store.Users(context.Background()).UpdatePassword(context.Background(), "user-1", "$2a$10$newhash", true, true, changedAt); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGUpdatePasswordMissingUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	changedAt := time.Now().UTC()
	mock.ExpectExec(`update users set password_hash=\$2`).
		WithArgs("missing", "$2a$10$newhash", false, false, changedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPGStore(db)
	err = store.Users(context.Background()).UpdatePassword(context.Background(), "missing", "$2a$10$newhash", false, false, changedAt)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGUpdateBuildsPartialSet(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`update users set updated_at=now(), status=$2 where id=$1 returning`)).
		WithArgs("user-1", StatusSuspended).
		WillReturnRows(userRows().AddRow(
			"user-1", "org-1", "pilot@airline.example", RoleUser, StatusSuspended,
			"$2a$10$hash", false, false, now, now, now, now,
		))

	store := NewPGStore(db)
	suspended := StatusSuspended
	u, err := store.Users(context.Background()).Update(context.Background(), "user-1", UserUpdate{Status: &suspended})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if u.Status != StatusSuspended {
		t.Fatalf("status = %q, want suspended", u.Status)
	}
	if u.LastLoginAt == nil {
		t.Fatal("last_login_at not scanned")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGRecentHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`select user_id, password_hash, changed_at from password_history`).
		WithArgs("user-1", HistoryDepth).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "password_hash", "changed_at"}).
			AddRow("user-1", "hash-new", now).
			AddRow("user-1", "hash-old", now.Add(-time.Hour)))

	store := NewPGStore(db)
	entries, err := store.PasswordHistory(context.Background()).Recent(context.Background(), "user-1", HistoryDepth)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 || entries[0].PasswordHash != "hash-new" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
