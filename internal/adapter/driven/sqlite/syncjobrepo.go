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
var _ driven.SyncJobStore = (*SyncJobRepo)(nil)

// SyncJobRepo is the SQLite implementation of the SyncJobStore port interface.
type SyncJobRepo struct {
	db *DB
}

// NewSyncJobRepo creates a new SyncJobRepo backed by the given DB.
func NewSyncJobRepo(db *DB) *SyncJobRepo {
	return &SyncJobRepo{db: db}
}

const syncJobColumns = `id, repository_id, status, sync_type, started_at, completed_at, error_message,
	pull_requests_synced, commits_synced, reviews_synced, comments_synced, items_failed, created_at`

// activeStatuses is the WHERE fragment matching non-terminal jobs.
const activeStatuses = `status IN ('pending', 'running')`

// Create inserts a pending job.
func (r *SyncJobRepo) Create(ctx context.Context, repoID int64, syncType model.SyncType) (model.SyncJob, error) {
	const query = `
		INSERT INTO sync_jobs (repository_id, status, sync_type, created_at)
		VALUES (?, ?, ?, ?)
	`

	now := time.Now().UTC().Truncate(time.Second)
	result, err := r.db.Writer.ExecContext(ctx, query, repoID, string(model.SyncStatusPending), string(syncType), formatTime(now))
	if err != nil {
		return model.SyncJob{}, fmt.Errorf("create sync job for repository %d: %w", repoID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return model.SyncJob{}, fmt.Errorf("last insert id: %w", err)
	}

	return model.SyncJob{
		ID:           id,
		RepositoryID: repoID,
		Status:       model.SyncStatusPending,
		SyncType:     syncType,
		CreatedAt:    now,
	}, nil
}

// MarkRunning moves a pending job to running.
func (r *SyncJobRepo) MarkRunning(ctx context.Context, id int64, startedAt time.Time) (bool, error) {
	const query = `
		UPDATE sync_jobs SET status = ?, started_at = ?
		WHERE id = ? AND status = 'pending'
	`

	return r.transition(ctx, id, "mark sync job running", query, string(model.SyncStatusRunning), formatTime(startedAt), id)
}

// Complete records the final counters of a job that is still active.
func (r *SyncJobRepo) Complete(ctx context.Context, id int64, res model.SyncResult, completedAt time.Time) (bool, error) {
	query := `
		UPDATE sync_jobs SET
			status = ?, completed_at = ?,
			pull_requests_synced = ?, commits_synced = ?, reviews_synced = ?,
			comments_synced = ?, items_failed = ?
		WHERE id = ? AND ` + activeStatuses

	return r.transition(ctx, id, "complete sync job", query,
		string(model.SyncStatusCompleted), formatTime(completedAt),
		res.PullRequests, res.Commits, res.Reviews, res.Comments, res.Failed, id,
	)
}

// Fail records an error on a job that is still active.
func (r *SyncJobRepo) Fail(ctx context.Context, id int64, message string, completedAt time.Time) (bool, error) {
	query := `
		UPDATE sync_jobs SET status = ?, completed_at = ?, error_message = ?
		WHERE id = ? AND ` + activeStatuses

	return r.transition(ctx, id, "fail sync job", query, string(model.SyncStatusFailed), formatTime(completedAt), message, id)
}

func (r *SyncJobRepo) transition(ctx context.Context, id int64, op, query string, args ...any) (bool, error) {
	result, err := r.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s %d: %w", op, id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s %d: check rows affected: %w", op, id, err)
	}
	return n > 0, nil
}

// FailActiveForRepository fails all pending or running jobs of one repository.
func (r *SyncJobRepo) FailActiveForRepository(ctx context.Context, repoID int64, message string, at time.Time) (int64, error) {
	query := `
		UPDATE sync_jobs SET status = ?, completed_at = ?, error_message = ?
		WHERE repository_id = ? AND ` + activeStatuses

	result, err := r.db.Writer.ExecContext(ctx, query, string(model.SyncStatusFailed), formatTime(at), message, repoID)
	if err != nil {
		return 0, fmt.Errorf("fail active sync jobs of repository %d: %w", repoID, err)
	}
	return result.RowsAffected()
}

// FailAllActive fails every pending or running job.
func (r *SyncJobRepo) FailAllActive(ctx context.Context, message string, at time.Time) (int64, error) {
	query := `
		UPDATE sync_jobs SET status = ?, completed_at = ?, error_message = ?
		WHERE ` + activeStatuses

	result, err := r.db.Writer.ExecContext(ctx, query, string(model.SyncStatusFailed), formatTime(at), message)
	if err != nil {
		return 0, fmt.Errorf("fail active sync jobs: %w", err)
	}
	return result.RowsAffected()
}

// GetByID retrieves a job. Returns nil, nil if it does not exist.
func (r *SyncJobRepo) GetByID(ctx context.Context, id int64) (*model.SyncJob, error) {
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs WHERE id = ?`

	job, err := scanSyncJob(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync job %d: %w", id, err)
	}
	return job, nil
}

// LatestForRepository returns the most recently created job of a repository.
func (r *SyncJobRepo) LatestForRepository(ctx context.Context, repoID int64) (*model.SyncJob, error) {
	query := `SELECT ` + syncJobColumns + `
		FROM sync_jobs WHERE repository_id = ?
		ORDER BY id DESC LIMIT 1`

	job, err := scanSyncJob(r.db.Reader.QueryRowContext(ctx, query, repoID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest sync job of repository %d: %w", repoID, err)
	}
	return job, nil
}

// ListByRepository returns one page of a repository's jobs, newest first.
func (r *SyncJobRepo) ListByRepository(ctx context.Context, repoID int64, page model.Page) ([]model.SyncJob, int, error) {
	return r.list(ctx, `repository_id = ?`, []any{repoID}, page)
}

// List returns one page of jobs, optionally restricted to a status.
func (r *SyncJobRepo) List(ctx context.Context, status model.SyncStatus, page model.Page) ([]model.SyncJob, int, error) {
	if status == "" {
		return r.list(ctx, "", nil, page)
	}
	return r.list(ctx, `status = ?`, []any{string(status)}, page)
}

func (r *SyncJobRepo) list(ctx context.Context, where string, args []any, page model.Page) ([]model.SyncJob, int, error) {
	page = page.Normalize()

	clause := ""
	if where != "" {
		clause = ` WHERE ` + where
	}

	var total int
	if err := r.db.Reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_jobs`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sync jobs: %w", err)
	}

	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs` + clause + ` ORDER BY id DESC LIMIT ? OFFSET ?`
	rows, err := r.db.Reader.QueryContext(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("query sync jobs: %w", err)
	}
	defer rows.Close()

	jobs := []model.SyncJob{}
	for rows.Next() {
		job, err := scanSyncJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan sync job: %w", err)
		}
		jobs = append(jobs, *job)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate sync jobs: %w", err)
	}

	return jobs, total, nil
}

func scanSyncJob(s scanner) (*model.SyncJob, error) {
	var job model.SyncJob
	var status, syncType, createdAt string
	var startedAt, completedAt sql.NullString

	err := s.Scan(
		&job.ID, &job.RepositoryID, &status, &syncType, &startedAt, &completedAt, &job.ErrorMessage,
		&job.PullRequestsSynced, &job.CommitsSynced, &job.ReviewsSynced, &job.CommentsSynced,
		&job.ItemsFailed, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = model.SyncStatus(status)
	job.SyncType = model.SyncType(syncType)

	if job.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if job.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &job, nil
}
