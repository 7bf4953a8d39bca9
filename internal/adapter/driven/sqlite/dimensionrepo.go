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
var _ driven.DimensionStore = (*DimensionRepo)(nil)

// DimensionRepo is the SQLite implementation of the DimensionStore port
// interface. Teams, roles and stacks share one shape and live in separate tables.
type DimensionRepo struct {
	db *DB
}

// NewDimensionRepo creates a new DimensionRepo backed by the given DB.
func NewDimensionRepo(db *DB) *DimensionRepo {
	return &DimensionRepo{db: db}
}

// dimensionTable maps a kind to its table. Only these fixed names are ever
// interpolated into SQL.
func dimensionTable(kind model.DimensionKind) (string, error) {
	switch kind {
	case model.DimensionTeam:
		return "teams", nil
	case model.DimensionRole:
		return "roles", nil
	case model.DimensionStack:
		return "stacks", nil
	}
	return "", fmt.Errorf("unknown dimension kind %q", kind)
}

// Create inserts a dimension row.
func (r *DimensionRepo) Create(ctx context.Context, d model.Dimension) (model.Dimension, error) {
	table, err := dimensionTable(d.Kind)
	if err != nil {
		return model.Dimension{}, err
	}

	now := time.Now().UTC().Truncate(time.Second)
	query := `INSERT INTO ` + table + ` (name, description, created_at) VALUES (?, ?, ?)`

	result, err := r.db.Writer.ExecContext(ctx, query, strings.TrimSpace(d.Name), d.Description, formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return model.Dimension{}, fmt.Errorf("create %s %q: %w", d.Kind, d.Name, driven.ErrAlreadyExists)
		}
		return model.Dimension{}, fmt.Errorf("create %s %q: %w", d.Kind, d.Name, err)
	}

	if d.ID, err = result.LastInsertId(); err != nil {
		return model.Dimension{}, fmt.Errorf("last insert id: %w", err)
	}
	d.Name = strings.TrimSpace(d.Name)
	d.CreatedAt = now

	return d, nil
}

// Update renames or re-describes a dimension row.
func (r *DimensionRepo) Update(ctx context.Context, d model.Dimension) error {
	table, err := dimensionTable(d.Kind)
	if err != nil {
		return err
	}

	query := `UPDATE ` + table + ` SET name = ?, description = ? WHERE id = ?`
	result, err := r.db.Writer.ExecContext(ctx, query, strings.TrimSpace(d.Name), d.Description, d.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update %s %d: %w", d.Kind, d.ID, driven.ErrAlreadyExists)
		}
		return fmt.Errorf("update %s %d: %w", d.Kind, d.ID, err)
	}

	if err := checkAffected(result, driven.ErrNotFound); err != nil {
		return fmt.Errorf("update %s %d: %w", d.Kind, d.ID, err)
	}
	return nil
}

// Delete removes a dimension row. Developers assigned to it become unassigned.
func (r *DimensionRepo) Delete(ctx context.Context, kind model.DimensionKind, id int64) error {
	table, err := dimensionTable(kind)
	if err != nil {
		return err
	}

	result, err := r.db.Writer.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", kind, id, err)
	}

	if err := checkAffected(result, driven.ErrNotFound); err != nil {
		return fmt.Errorf("delete %s %d: %w", kind, id, err)
	}
	return nil
}

// Get retrieves a dimension row. Returns nil, nil if it does not exist.
func (r *DimensionRepo) Get(ctx context.Context, kind model.DimensionKind, id int64) (*model.Dimension, error) {
	table, err := dimensionTable(kind)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, name, description, created_at FROM ` + table + ` WHERE id = ?`
	d, err := scanDimension(r.db.Reader.QueryRowContext(ctx, query, id), kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %d: %w", kind, id, err)
	}
	return d, nil
}

// List returns all rows of a kind ordered by name.
func (r *DimensionRepo) List(ctx context.Context, kind model.DimensionKind) ([]model.Dimension, error) {
	table, err := dimensionTable(kind)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Reader.QueryContext(ctx, `SELECT id, name, description, created_at FROM `+table+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	out := []model.Dimension{}
	for rows.Next() {
		d, err := scanDimension(rows, kind)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		out = append(out, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}

	return out, nil
}

func scanDimension(s scanner, kind model.DimensionKind) (*model.Dimension, error) {
	d := model.Dimension{Kind: kind}
	var createdAt string

	if err := s.Scan(&d.ID, &d.Name, &d.Description, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &d, nil
}
