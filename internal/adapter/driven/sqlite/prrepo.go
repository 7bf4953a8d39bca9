package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PRStore = (*PRRepo)(nil)

// PRRepo is the SQLite implementation of the PRStore port interface.
type PRRepo struct {
	db *DB
}

// NewPRRepo creates a new PRRepo backed by the given DB.
func NewPRRepo(db *DB) *PRRepo {
	return &PRRepo{db: db}
}

const prColumns = `id, repository_id, external_id, number, title, description, status, is_draft,
	source_branch, target_branch, url, created_by_id, created_at, closed_at, cycle_time_days,
	files_changed, lines_added, lines_deleted, synced_at`

// Upsert inserts or updates a pull request keyed by external_id and returns
// its row ID. The file-change counters keep their stored values on update.
func (r *PRRepo) Upsert(ctx context.Context, pr model.PullRequest) (int64, error) {
	const query = `
		INSERT INTO pull_requests (
			repository_id, external_id, number, title, description, status, is_draft,
			source_branch, target_branch, url, created_by_id, created_at, closed_at,
			cycle_time_days, synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			status = excluded.status,
			is_draft = excluded.is_draft,
			source_branch = excluded.source_branch,
			target_branch = excluded.target_branch,
			url = excluded.url,
			created_by_id = excluded.created_by_id,
			closed_at = excluded.closed_at,
			cycle_time_days = excluded.cycle_time_days,
			synced_at = excluded.synced_at
		RETURNING id
	`

	var id int64
	err := r.db.Writer.QueryRowContext(ctx, query,
		pr.RepositoryID, pr.ExternalID, pr.Number, pr.Title, pr.Description, string(pr.Status),
		boolToInt(pr.IsDraft), pr.SourceBranch, pr.TargetBranch, pr.URL, nullInt64(pr.CreatedByID),
		formatTime(pr.CreatedAt), formatNullTime(pr.ClosedAt), nullFloat64(pr.CycleTimeDays),
		formatTime(pr.SyncedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert pull request %s: %w", pr.ExternalID, err)
	}

	return id, nil
}

// UpdateFileStats overwrites the aggregated file-change counters.
func (r *PRRepo) UpdateFileStats(ctx context.Context, prID int64, stats model.FileStats) error {
	const query = `
		UPDATE pull_requests
		SET files_changed = ?, lines_added = ?, lines_deleted = ?
		WHERE id = ?
	`

	result, err := r.db.Writer.ExecContext(ctx, query, stats.FilesChanged, stats.LinesAdded, stats.LinesDeleted, prID)
	if err != nil {
		return fmt.Errorf("update file stats of pull request %d: %w", prID, err)
	}

	if err := checkAffected(result, driven.ErrNotFound); err != nil {
		return fmt.Errorf("update file stats of pull request %d: %w", prID, err)
	}
	return nil
}

// GetByID retrieves a single pull request. Returns nil, nil if it does not exist.
func (r *PRRepo) GetByID(ctx context.Context, id int64) (*model.PullRequest, error) {
	query := `SELECT ` + prColumns + ` FROM pull_requests WHERE id = ?`

	pr, err := scanPR(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pull request %d: %w", id, err)
	}

	return pr, nil
}

// ListByRepository returns one page of a repository's pull requests, newest
// first, together with the total count.
func (r *PRRepo) ListByRepository(ctx context.Context, repoID int64, page model.Page) ([]model.PullRequest, int, error) {
	page = page.Normalize()

	total, err := r.CountByRepository(ctx, repoID)
	if err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + prColumns + `
		FROM pull_requests
		WHERE repository_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`

	rows, err := r.db.Reader.QueryContext(ctx, query, repoID, page.Size, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("query pull requests: %w", err)
	}
	defer rows.Close()

	prs := []model.PullRequest{}
	for rows.Next() {
		pr, err := scanPR(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan pull request: %w", err)
		}
		prs = append(prs, *pr)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate pull requests: %w", err)
	}

	return prs, total, nil
}

// CountByRepository returns the number of pull requests stored for a repository.
func (r *PRRepo) CountByRepository(ctx context.Context, repoID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM pull_requests WHERE repository_id = ?`

	var n int
	if err := r.db.Reader.QueryRowContext(ctx, query, repoID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pull requests of repository %d: %w", repoID, err)
	}
	return n, nil
}

// ListActiveNumbers returns the numbers of the repository's pull requests
// stored as active, lowest first.
func (r *PRRepo) ListActiveNumbers(ctx context.Context, repoID int64) ([]int, error) {
	const query = `
		SELECT number FROM pull_requests
		WHERE repository_id = ? AND status = ?
		ORDER BY number`

	rows, err := r.db.Reader.QueryContext(ctx, query, repoID, string(model.PRStatusActive))
	if err != nil {
		return nil, fmt.Errorf("query active pull requests of repository %d: %w", repoID, err)
	}
	defer rows.Close()

	numbers := []int{}
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan pull request number: %w", err)
		}
		numbers = append(numbers, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active pull requests: %w", err)
	}
	return numbers, nil
}

func scanPR(s scanner) (*model.PullRequest, error) {
	var pr model.PullRequest
	var status string
	var isDraft int
	var createdBy sql.NullInt64
	var createdAt, syncedAt string
	var closedAt sql.NullString
	var cycleTime sql.NullFloat64

	err := s.Scan(
		&pr.ID, &pr.RepositoryID, &pr.ExternalID, &pr.Number, &pr.Title, &pr.Description,
		&status, &isDraft, &pr.SourceBranch, &pr.TargetBranch, &pr.URL, &createdBy,
		&createdAt, &closedAt, &cycleTime, &pr.FilesChanged, &pr.LinesAdded, &pr.LinesDeleted,
		&syncedAt,
	)
	if err != nil {
		return nil, err
	}

	pr.Status = model.PRStatus(status)
	pr.IsDraft = isDraft != 0
	pr.CreatedByID = int64Ptr(createdBy)
	pr.CycleTimeDays = float64Ptr(cycleTime)

	if pr.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if pr.ClosedAt, err = parseNullTime(closedAt); err != nil {
		return nil, fmt.Errorf("parse closed_at: %w", err)
	}
	if pr.SyncedAt, err = parseTime(syncedAt); err != nil {
		return nil, fmt.Errorf("parse synced_at: %w", err)
	}

	return &pr, nil
}
