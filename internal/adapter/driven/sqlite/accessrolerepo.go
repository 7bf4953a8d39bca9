package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AccessRoleStore = (*AccessRoleRepo)(nil)

// AccessRoleRepo is the SQLite implementation of the AccessRoleStore port
// interface. Permissions are stored as a JSON array.
type AccessRoleRepo struct {
	db *DB
}

// NewAccessRoleRepo creates a new AccessRoleRepo backed by the given DB.
func NewAccessRoleRepo(db *DB) *AccessRoleRepo {
	return &AccessRoleRepo{db: db}
}

// Create inserts an access role.
func (r *AccessRoleRepo) Create(ctx context.Context, role model.AccessRole) (model.AccessRole, error) {
	perms, err := marshalPermissions(role.Permissions)
	if err != nil {
		return model.AccessRole{}, err
	}

	now := time.Now().UTC().Truncate(time.Second)
	const query = `INSERT INTO access_roles (name, description, permissions, created_at) VALUES (?, ?, ?, ?)`

	result, err := r.db.Writer.ExecContext(ctx, query, role.Name, role.Description, perms, formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return model.AccessRole{}, fmt.Errorf("create access role %q: %w", role.Name, driven.ErrAlreadyExists)
		}
		return model.AccessRole{}, fmt.Errorf("create access role %q: %w", role.Name, err)
	}

	if role.ID, err = result.LastInsertId(); err != nil {
		return model.AccessRole{}, fmt.Errorf("last insert id: %w", err)
	}
	role.CreatedAt = now

	return role, nil
}

// Update replaces the name, description and permission set of a role.
func (r *AccessRoleRepo) Update(ctx context.Context, role model.AccessRole) error {
	perms, err := marshalPermissions(role.Permissions)
	if err != nil {
		return err
	}

	const query = `UPDATE access_roles SET name = ?, description = ?, permissions = ? WHERE id = ?`
	result, err := r.db.Writer.ExecContext(ctx, query, role.Name, role.Description, perms, role.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update access role %d: %w", role.ID, driven.ErrAlreadyExists)
		}
		return fmt.Errorf("update access role %d: %w", role.ID, err)
	}

	if err := checkAffected(result, driven.ErrNotFound); err != nil {
		return fmt.Errorf("update access role %d: %w", role.ID, err)
	}
	return nil
}

// Delete removes a role. Users holding it are left without a role.
func (r *AccessRoleRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Writer.ExecContext(ctx, `DELETE FROM access_roles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete access role %d: %w", id, err)
	}

	if err := checkAffected(result, driven.ErrNotFound); err != nil {
		return fmt.Errorf("delete access role %d: %w", id, err)
	}
	return nil
}

// GetByID retrieves a role. Returns nil, nil if it does not exist.
func (r *AccessRoleRepo) GetByID(ctx context.Context, id int64) (*model.AccessRole, error) {
	return r.getOne(ctx, `id = ?`, id)
}

// GetByName retrieves a role by its unique name.
func (r *AccessRoleRepo) GetByName(ctx context.Context, name string) (*model.AccessRole, error) {
	return r.getOne(ctx, `name = ?`, name)
}

func (r *AccessRoleRepo) getOne(ctx context.Context, where string, arg any) (*model.AccessRole, error) {
	query := `SELECT id, name, description, permissions, created_at FROM access_roles WHERE ` + where

	role, err := scanAccessRole(r.db.Reader.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get access role: %w", err)
	}
	return role, nil
}

// List returns all roles ordered by name.
func (r *AccessRoleRepo) List(ctx context.Context) ([]model.AccessRole, error) {
	const query = `SELECT id, name, description, permissions, created_at FROM access_roles ORDER BY name`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list access roles: %w", err)
	}
	defer rows.Close()

	roles := []model.AccessRole{}
	for rows.Next() {
		role, err := scanAccessRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access role: %w", err)
		}
		roles = append(roles, *role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access roles: %w", err)
	}

	return roles, nil
}

func marshalPermissions(perms []model.Permission) (string, error) {
	if perms == nil {
		perms = []model.Permission{}
	}
	data, err := json.Marshal(perms)
	if err != nil {
		return "", fmt.Errorf("marshal permissions: %w", err)
	}
	return string(data), nil
}

func scanAccessRole(s scanner) (*model.AccessRole, error) {
	var role model.AccessRole
	var perms, createdAt string

	if err := s.Scan(&role.ID, &role.Name, &role.Description, &perms, &createdAt); err != nil {
		return nil, err
	}

	role.Permissions = []model.Permission{}
	if err := json.Unmarshal([]byte(perms), &role.Permissions); err != nil {
		return nil, fmt.Errorf("unmarshal permissions: %w", err)
	}

	var err error
	if role.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &role, nil
}
