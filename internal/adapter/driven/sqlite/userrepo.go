package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.UserStore = (*UserRepo)(nil)

// UserRepo is the SQLite implementation of the UserStore port interface.
type UserRepo struct {
	db *DB
}

// NewUserRepo creates a new UserRepo backed by the given DB.
func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, email, name, password_hash, status, access_role_id, azure_object_id,
	developer_id, last_login_at, created_at, updated_at`

// Create inserts a new account. E-mails are unique regardless of case.
func (r *UserRepo) Create(ctx context.Context, u model.User) (model.User, error) {
	const query = `
		INSERT INTO users (
			email, name, password_hash, status, access_role_id, azure_object_id,
			developer_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC().Truncate(time.Second)
	u.Email = strings.TrimSpace(u.Email)

	result, err := r.db.Writer.ExecContext(ctx, query,
		u.Email, u.Name, u.PasswordHash, string(u.Status), nullInt64(u.AccessRoleID),
		u.AzureObjectID, nullInt64(u.DeveloperID), formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, fmt.Errorf("create user %s: %w", u.Email, driven.ErrAlreadyExists)
		}
		return model.User{}, fmt.Errorf("create user %s: %w", u.Email, err)
	}

	if u.ID, err = result.LastInsertId(); err != nil {
		return model.User{}, fmt.Errorf("last insert id: %w", err)
	}
	u.CreatedAt = now
	u.UpdatedAt = now

	return u, nil
}

// Update replaces every mutable field of an account.
func (r *UserRepo) Update(ctx context.Context, u model.User) error {
	const query = `
		UPDATE users SET
			email = ?, name = ?, password_hash = ?, status = ?, access_role_id = ?,
			azure_object_id = ?, developer_id = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Writer.ExecContext(ctx, query,
		strings.TrimSpace(u.Email), u.Name, u.PasswordHash, string(u.Status), nullInt64(u.AccessRoleID),
		u.AzureObjectID, nullInt64(u.DeveloperID), formatTime(time.Now()), u.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update user %d: %w", u.ID, driven.ErrAlreadyExists)
		}
		return fmt.Errorf("update user %d: %w", u.ID, err)
	}

	if err := checkAffected(result, driven.ErrNotFound); err != nil {
		return fmt.Errorf("update user %d: %w", u.ID, err)
	}
	return nil
}

// Delete removes an account and, through the foreign key, its tokens.
func (r *UserRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Writer.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}

	if err := checkAffected(result, driven.ErrNotFound); err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	return nil
}

// GetByID retrieves an account. Returns nil, nil if it does not exist.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getOne(ctx, `id = ?`, id)
}

// GetByEmail retrieves an account by e-mail, ignoring case.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, `email = ?`, strings.TrimSpace(email))
}

// GetByAzureObjectID retrieves an account linked to an Azure AD object.
func (r *UserRepo) GetByAzureObjectID(ctx context.Context, objectID string) (*model.User, error) {
	if objectID == "" {
		return nil, nil
	}
	return r.getOne(ctx, `azure_object_id = ?`, objectID)
}

func (r *UserRepo) getOne(ctx context.Context, where string, arg any) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where

	u, err := scanUser(r.db.Reader.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// List returns all accounts ordered by e-mail.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.Reader.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// TouchLastLogin records a successful sign-in.
func (r *UserRepo) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	result, err := r.db.Writer.ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("touch last login of user %d: %w", id, err)
	}

	if err := checkAffected(result, driven.ErrNotFound); err != nil {
		return fmt.Errorf("touch last login of user %d: %w", id, err)
	}
	return nil
}

func scanUser(s scanner) (*model.User, error) {
	var u model.User
	var status string
	var roleID, developerID sql.NullInt64
	var lastLogin sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(
		&u.ID, &u.Email, &u.Name, &u.PasswordHash, &status, &roleID, &u.AzureObjectID,
		&developerID, &lastLogin, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Status = model.UserStatus(status)
	u.AccessRoleID = int64Ptr(roleID)
	u.DeveloperID = int64Ptr(developerID)

	if u.LastLoginAt, err = parseNullTime(lastLogin); err != nil {
		return nil, fmt.Errorf("parse last_login_at: %w", err)
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &u, nil
}
