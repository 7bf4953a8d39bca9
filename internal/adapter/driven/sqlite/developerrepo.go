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
var _ driven.DeveloperStore = (*DeveloperRepo)(nil)

// DeveloperRepo is the SQLite implementation of the DeveloperStore port interface.
type DeveloperRepo struct {
	db *DB
}

// NewDeveloperRepo creates a new DeveloperRepo backed by the given DB.
func NewDeveloperRepo(db *DB) *DeveloperRepo {
	return &DeveloperRepo{db: db}
}

const developerColumns = `id, login, display_name, email, remote_id, team_id, role_id, stack_id,
	is_active, created_at, updated_at`

// FindOrCreate resolves an upstream identity to a developer ID with a single
// upsert on the unique login, so concurrent sync workers never race into a
// duplicate insert. Existing display names are refreshed; e-mail and remote
// ID are only filled in when previously empty.
func (r *DeveloperRepo) FindOrCreate(ctx context.Context, identity model.RemoteIdentity) (int64, error) {
	const query = `
		INSERT INTO developers (login, display_name, email, remote_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(login) DO UPDATE SET
			display_name = CASE WHEN ? <> '' THEN excluded.display_name ELSE developers.display_name END,
			email = CASE WHEN developers.email = '' THEN excluded.email ELSE developers.email END,
			remote_id = CASE WHEN developers.remote_id = '' THEN excluded.remote_id ELSE developers.remote_id END
		RETURNING id
	`

	login := identity.Key()
	if login == "" {
		return 0, fmt.Errorf("find or create developer: identity has no login or email")
	}

	givenName := strings.TrimSpace(identity.DisplayName)
	displayName := givenName
	if displayName == "" {
		displayName = login
	}

	now := formatTime(time.Now())
	var id int64
	err := r.db.Writer.QueryRowContext(ctx, query,
		login, displayName, strings.ToLower(strings.TrimSpace(identity.Email)), identity.RemoteID, now, now,
		givenName,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("find or create developer %s: %w", login, err)
	}

	return id, nil
}

// Create inserts a developer created by an administrator.
func (r *DeveloperRepo) Create(ctx context.Context, dev model.Developer) (model.Developer, error) {
	const query = `
		INSERT INTO developers (login, display_name, email, remote_id, team_id, role_id, stack_id, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC().Truncate(time.Second)
	dev.Login = strings.ToLower(strings.TrimSpace(dev.Login))

	result, err := r.db.Writer.ExecContext(ctx, query,
		dev.Login, dev.DisplayName, dev.Email, dev.RemoteID,
		nullInt64(dev.TeamID), nullInt64(dev.RoleID), nullInt64(dev.StackID),
		boolToInt(dev.IsActive), formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Developer{}, fmt.Errorf("create developer %s: %w", dev.Login, driven.ErrAlreadyExists)
		}
		return model.Developer{}, fmt.Errorf("create developer %s: %w", dev.Login, err)
	}

	if dev.ID, err = result.LastInsertId(); err != nil {
		return model.Developer{}, fmt.Errorf("last insert id: %w", err)
	}
	dev.CreatedAt = now
	dev.UpdatedAt = now

	return dev, nil
}

// Update replaces the mutable fields of a developer, including its team,
// role and stack assignment.
func (r *DeveloperRepo) Update(ctx context.Context, dev model.Developer) error {
	const query = `
		UPDATE developers SET
			display_name = ?, email = ?, team_id = ?, role_id = ?, stack_id = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Writer.ExecContext(ctx, query,
		dev.DisplayName, dev.Email, nullInt64(dev.TeamID), nullInt64(dev.RoleID), nullInt64(dev.StackID),
		boolToInt(dev.IsActive), formatTime(time.Now()), dev.ID,
	)
	if err != nil {
		return fmt.Errorf("update developer %d: %w", dev.ID, err)
	}

	if err := checkAffected(result, driven.ErrNotFound); err != nil {
		return fmt.Errorf("update developer %d: %w", dev.ID, err)
	}
	return nil
}

// Delete removes a developer. Authored rows keep existing with a null author.
func (r *DeveloperRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Writer.ExecContext(ctx, `DELETE FROM developers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete developer %d: %w", id, err)
	}

	if err := checkAffected(result, driven.ErrNotFound); err != nil {
		return fmt.Errorf("delete developer %d: %w", id, err)
	}
	return nil
}

// GetByID retrieves a developer. Returns nil, nil if it does not exist.
func (r *DeveloperRepo) GetByID(ctx context.Context, id int64) (*model.Developer, error) {
	query := `SELECT ` + developerColumns + ` FROM developers WHERE id = ?`

	dev, err := scanDeveloper(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get developer %d: %w", id, err)
	}
	return dev, nil
}

// FindByEmailOrRemoteID matches a developer by e-mail (case-insensitive) or
// upstream ID. Returns nil, nil when nothing matches.
func (r *DeveloperRepo) FindByEmailOrRemoteID(ctx context.Context, email, remoteID string) (*model.Developer, error) {
	query := `SELECT ` + developerColumns + `
		FROM developers
		WHERE (? <> '' AND (lower(email) = ? OR login = ?)) OR (? <> '' AND remote_id = ?)
		ORDER BY id
		LIMIT 1`

	email = strings.ToLower(strings.TrimSpace(email))
	dev, err := scanDeveloper(r.db.Reader.QueryRowContext(ctx, query, email, email, email, remoteID, remoteID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find developer by email or remote id: %w", err)
	}
	return dev, nil
}

// List returns developers matching the filter ordered by display name.
func (r *DeveloperRepo) List(ctx context.Context, filter model.DeveloperFilter) ([]model.Developer, error) {
	var where []string
	var args []any

	if filter.TeamID != nil {
		where = append(where, "team_id = ?")
		args = append(args, *filter.TeamID)
	}
	if filter.RoleID != nil {
		where = append(where, "role_id = ?")
		args = append(args, *filter.RoleID)
	}
	if filter.StackID != nil {
		where = append(where, "stack_id = ?")
		args = append(args, *filter.StackID)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		where = append(where, "(display_name LIKE ? OR login LIKE ?)")
		like := "%" + s + "%"
		args = append(args, like, like)
	}

	query := `SELECT ` + developerColumns + ` FROM developers`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY display_name, id`

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list developers: %w", err)
	}
	defer rows.Close()

	devs := []model.Developer{}
	for rows.Next() {
		dev, err := scanDeveloper(rows)
		if err != nil {
			return nil, fmt.Errorf("scan developer: %w", err)
		}
		devs = append(devs, *dev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate developers: %w", err)
	}

	return devs, nil
}

func scanDeveloper(s scanner) (*model.Developer, error) {
	var dev model.Developer
	var team, role, stack sql.NullInt64
	var isActive int
	var createdAt, updatedAt string

	err := s.Scan(
		&dev.ID, &dev.Login, &dev.DisplayName, &dev.Email, &dev.RemoteID,
		&team, &role, &stack, &isActive, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	dev.TeamID = int64Ptr(team)
	dev.RoleID = int64Ptr(role)
	dev.StackID = int64Ptr(stack)
	dev.IsActive = isActive != 0

	if dev.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if dev.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &dev, nil
}
