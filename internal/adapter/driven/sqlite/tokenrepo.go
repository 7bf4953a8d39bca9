package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TokenStore = (*TokenRepo)(nil)

// TokenRepo is the SQLite implementation of the TokenStore port interface.
type TokenRepo struct {
	db *DB
}

// NewTokenRepo creates a new TokenRepo backed by the given DB.
func NewTokenRepo(db *DB) *TokenRepo {
	return &TokenRepo{db: db}
}

// Create persists an issued token record.
func (r *TokenRepo) Create(ctx context.Context, t model.AuthToken) error {
	const query = `
		INSERT INTO auth_tokens (id, user_id, access_expires_at, refresh_expires_at, revoked, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		t.ID, t.UserID, formatTime(t.AccessExpiresAt), formatTime(t.RefreshExpiresAt),
		boolToInt(t.Revoked), formatTime(createdAt),
	)
	if err != nil {
		return fmt.Errorf("create token for user %d: %w", t.UserID, err)
	}
	return nil
}

// Get retrieves a token record. Returns nil, nil if it does not exist.
func (r *TokenRepo) Get(ctx context.Context, id string) (*model.AuthToken, error) {
	const query = `
		SELECT id, user_id, access_expires_at, refresh_expires_at, revoked, created_at
		FROM auth_tokens WHERE id = ?
	`

	var t model.AuthToken
	var revoked int
	var accessExp, refreshExp, createdAt string

	err := r.db.Reader.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.UserID, &accessExp, &refreshExp, &revoked, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	t.Revoked = revoked != 0
	if t.AccessExpiresAt, err = parseTime(accessExp); err != nil {
		return nil, fmt.Errorf("parse access_expires_at: %w", err)
	}
	if t.RefreshExpiresAt, err = parseTime(refreshExp); err != nil {
		return nil, fmt.Errorf("parse refresh_expires_at: %w", err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &t, nil
}

// Revoke marks one token record as revoked. Revoking an unknown token is a no-op.
func (r *TokenRepo) Revoke(ctx context.Context, id string) error {
	if _, err := r.db.Writer.ExecContext(ctx, `UPDATE auth_tokens SET revoked = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every token issued to a user.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID int64) error {
	const query = `UPDATE auth_tokens SET revoked = 1 WHERE user_id = ? AND revoked = 0`
	if _, err := r.db.Writer.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("revoke tokens of user %d: %w", userID, err)
	}
	return nil
}

// DeleteExpired removes records whose refresh token expired before now.
func (r *TokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Writer.ExecContext(ctx, `DELETE FROM auth_tokens WHERE refresh_expires_at < ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return result.RowsAffected()
}
