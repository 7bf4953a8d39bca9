package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
	"github.com/ericfisherdev/devpulse/internal/secret"
)

// Compile-time interface satisfaction check.
var _ driven.ConfigStore = (*ConfigRepo)(nil)

// ConfigRepo is the SQLite implementation of the ConfigStore port interface.
// Values are sealed with the box before write and opened after read.
type ConfigRepo struct {
	db  *DB
	box *secret.Box // nil when encryption is disabled.
}

// NewConfigRepo creates a new ConfigRepo. A nil box disables configuration
// storage; every operation except Delete returns ErrEncryptionKeyNotSet.
func NewConfigRepo(db *DB, box *secret.Box) *ConfigRepo {
	return &ConfigRepo{db: db, box: box}
}

// Set stores or replaces the value for key.
func (r *ConfigRepo) Set(ctx context.Context, key, plaintext string) error {
	if r.box == nil {
		return driven.ErrEncryptionKeyNotSet
	}

	encrypted, err := r.box.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("encrypt config %q: %w", key, err)
	}

	const query = `
		INSERT INTO system_config (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := r.db.Writer.ExecContext(ctx, query, key, encrypted); err != nil {
		return fmt.Errorf("set config %q: %w", key, err)
	}
	return nil
}

// Get returns the plaintext value for key, or ("", nil) if it is unset.
func (r *ConfigRepo) Get(ctx context.Context, key string) (string, error) {
	if r.box == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	var encrypted string
	err := r.db.Reader.QueryRowContext(ctx, `SELECT value FROM system_config WHERE key = ?`, key).Scan(&encrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get config %q: %w", key, err)
	}

	plaintext, err := r.box.Decrypt(encrypted)
	if err != nil {
		return "", fmt.Errorf("decrypt config %q: %w", key, err)
	}
	return plaintext, nil
}

// List returns all stored entries with decrypted values.
func (r *ConfigRepo) List(ctx context.Context) ([]model.ConfigEntry, error) {
	if r.box == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	rows, err := r.db.Reader.QueryContext(ctx, `SELECT key, value, updated_at FROM system_config ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list config: %w", err)
	}
	defer rows.Close()

	entries := []model.ConfigEntry{}
	for rows.Next() {
		var entry model.ConfigEntry
		var encrypted, updatedAt string
		if err := rows.Scan(&entry.Key, &encrypted, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan config: %w", err)
		}

		if entry.Value, err = r.box.Decrypt(encrypted); err != nil {
			return nil, fmt.Errorf("decrypt config %q: %w", entry.Key, err)
		}
		if entry.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at for config %q: %w", entry.Key, err)
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate config: %w", err)
	}

	return entries, nil
}

// Delete removes the value for key.
func (r *ConfigRepo) Delete(ctx context.Context, key string) error {
	if _, err := r.db.Writer.ExecContext(ctx, `DELETE FROM system_config WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete config %q: %w", key, err)
	}
	return nil
}
