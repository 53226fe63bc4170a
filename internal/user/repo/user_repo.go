package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-ilearn-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-ilearn-go/pkg/database"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("user already exists")
)

// UserRepo provides data access for the users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
  uid TEXT PRIMARY KEY,
  password_hash TEXT NOT NULL,
  role INTEGER NOT NULL DEFAULT 0 CHECK (role >= 0),
  chi_name TEXT NOT NULL DEFAULT '',
  eng_name TEXT NOT NULL DEFAULT '',
  email TEXT NOT NULL DEFAULT '',
  form INTEGER NOT NULL DEFAULT 0,
  class TEXT NOT NULL DEFAULT '',
  class_no INTEGER NOT NULL DEFAULT 0,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// FindCredential returns the stored hash and role for uid, or ErrNotFound.
func (r *UserRepo) FindCredential(ctx context.Context, uid string) (*entity.Credential, error) {
	q := r.db.Rebind(`SELECT uid, password_hash, role FROM users WHERE uid = ?`)
	var c entity.Credential
	if err := r.db.GetContext(ctx, &c, q, uid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return &c, nil
}

// InsertIdentity creates the row in a single conditional statement, so two
// concurrent registrations for one uid yield exactly one row.
func (r *UserRepo) InsertIdentity(ctx context.Context, u *entity.Identity) error {
	q := r.db.Rebind(`INSERT INTO users (uid, password_hash, role, chi_name, eng_name, email, form, class, class_no)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (uid) DO NOTHING
		RETURNING uid`)
	var uid string
	err := r.db.QueryRowxContext(ctx, q,
		u.UID, u.PasswordHash, u.Role, u.ChiName, u.EngName, u.Email, u.Form, u.Class, u.ClassNo,
	).Scan(&uid)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows), database.IsUniqueViolation(err):
		return ErrDuplicate
	default:
		return fmt.Errorf("insert identity: %w", err)
	}
}

// UpdatePasswordHash replaces the stored hash, used when parameters change.
func (r *UserRepo) UpdatePasswordHash(ctx context.Context, uid, hash string) error {
	q := r.db.Rebind(`UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE uid = ?`)
	res, err := r.db.ExecContext(ctx, q, hash, uid)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetProfile returns the public projection for uid, or ErrNotFound.
func (r *UserRepo) GetProfile(ctx context.Context, uid string) (*entity.Profile, error) {
	q := r.db.Rebind(`SELECT uid, chi_name, eng_name, email, form, class, class_no, role FROM users WHERE uid = ?`)
	var p entity.Profile
	if err := r.db.GetContext(ctx, &p, q, uid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}
