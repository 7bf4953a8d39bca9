package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
	"github.com/ericfisherdev/devpulse/internal/secret"
)

// Compile-time interface satisfaction check.
var _ driven.RepoStore = (*RepoRepo)(nil)

// RepoRepo is the SQLite implementation of the RepoStore port interface.
// Per-repository access tokens are encrypted before write and decrypted after read.
type RepoRepo struct {
	db  *DB
	box *secret.Box // nil disables per-repository tokens.
}

// NewRepoRepo creates a new RepoRepo backed by the given DB.
func NewRepoRepo(db *DB, box *secret.Box) *RepoRepo {
	return &RepoRepo{db: db, box: box}
}

const repoColumns = `id, provider, organization, project, name, remote_id, default_branch, url,
	encrypted_access_token, is_active, last_sync_at, created_at, updated_at`

// Create inserts a new repository and returns it with its assigned ID.
func (r *RepoRepo) Create(ctx context.Context, repo model.Repository) (model.Repository, error) {
	const query = `
		INSERT INTO repositories (
			provider, organization, project, name, remote_id, default_branch, url,
			encrypted_access_token, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	token, err := r.sealToken(repo.AccessToken)
	if err != nil {
		return model.Repository{}, err
	}

	now := time.Now().UTC().Truncate(time.Second)
	result, err := r.db.Writer.ExecContext(ctx, query,
		string(repo.Provider), repo.Organization, repo.Project, repo.Name, repo.RemoteID,
		repo.DefaultBranch, repo.URL, token, boolToInt(repo.IsActive),
		formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Repository{}, fmt.Errorf("create repository %s: %w", repo.FullName(), driven.ErrRepoAlreadyExists)
		}
		return model.Repository{}, fmt.Errorf("create repository %s: %w", repo.FullName(), err)
	}

	repo.ID, err = result.LastInsertId()
	if err != nil {
		return model.Repository{}, fmt.Errorf("last insert id: %w", err)
	}
	repo.CreatedAt = now
	repo.UpdatedAt = now
	repo.LastSyncAt = nil

	return repo, nil
}

// Update replaces the mutable fields of a repository. The sync watermark is
// not touched; use UpdateLastSyncAt.
func (r *RepoRepo) Update(ctx context.Context, repo model.Repository) error {
	const query = `
		UPDATE repositories SET
			provider = ?, organization = ?, project = ?, name = ?, remote_id = ?,
			default_branch = ?, url = ?, encrypted_access_token = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`

	token, err := r.sealToken(repo.AccessToken)
	if err != nil {
		return err
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		string(repo.Provider), repo.Organization, repo.Project, repo.Name, repo.RemoteID,
		repo.DefaultBranch, repo.URL, token, boolToInt(repo.IsActive),
		formatTime(time.Now()), repo.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update repository %d: %w", repo.ID, driven.ErrRepoAlreadyExists)
		}
		return fmt.Errorf("update repository %d: %w", repo.ID, err)
	}

	if err := checkAffected(result, driven.ErrRepoNotFound); err != nil {
		return fmt.Errorf("update repository %d: %w", repo.ID, err)
	}
	return nil
}

// Delete removes a repository. Due to foreign key cascade, all mirrored pull
// requests, commits and sync jobs of the repository are also deleted.
func (r *RepoRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM repositories WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete repository %d: %w", id, err)
	}

	if err := checkAffected(result, driven.ErrRepoNotFound); err != nil {
		return fmt.Errorf("delete repository %d: %w", id, err)
	}
	return nil
}

// GetByID retrieves a repository. Returns nil, nil if it does not exist.
func (r *RepoRepo) GetByID(ctx context.Context, id int64) (*model.Repository, error) {
	query := `SELECT ` + repoColumns + ` FROM repositories WHERE id = ?`

	repo, err := r.scanRepository(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %d: %w", id, err)
	}

	return repo, nil
}

// ListAll returns all repositories ordered by organization, project and name.
func (r *RepoRepo) ListAll(ctx context.Context) ([]model.Repository, error) {
	query := `SELECT ` + repoColumns + ` FROM repositories ORDER BY organization, project, name`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	repos := []model.Repository{}
	for rows.Next() {
		repo, err := r.scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, *repo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}

	return repos, nil
}

// UpdateLastSyncAt advances the incremental sync watermark.
func (r *RepoRepo) UpdateLastSyncAt(ctx context.Context, id int64, at time.Time) error {
	const query = `UPDATE repositories SET last_sync_at = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("update last sync of repository %d: %w", id, err)
	}

	if err := checkAffected(result, driven.ErrRepoNotFound); err != nil {
		return fmt.Errorf("update last sync of repository %d: %w", id, err)
	}
	return nil
}

func (r *RepoRepo) sealToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	if r.box == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}
	sealed, err := r.box.Encrypt(token)
	if err != nil {
		return "", fmt.Errorf("encrypt access token: %w", err)
	}
	return sealed, nil
}

func (r *RepoRepo) scanRepository(s scanner) (*model.Repository, error) {
	var repo model.Repository
	var provider, sealed, createdAt, updatedAt string
	var isActive int
	var lastSyncAt sql.NullString

	err := s.Scan(
		&repo.ID, &provider, &repo.Organization, &repo.Project, &repo.Name, &repo.RemoteID,
		&repo.DefaultBranch, &repo.URL, &sealed, &isActive, &lastSyncAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	repo.Provider = model.Provider(provider)
	repo.IsActive = isActive != 0

	if sealed != "" && r.box != nil {
		repo.AccessToken, err = r.box.Decrypt(sealed)
		if err != nil {
			return nil, fmt.Errorf("decrypt access token: %w", err)
		}
	}

	if repo.LastSyncAt, err = parseNullTime(lastSyncAt); err != nil {
		return nil, fmt.Errorf("parse last_sync_at: %w", err)
	}
	if repo.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if repo.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &repo, nil
}
