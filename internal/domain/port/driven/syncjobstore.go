package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
)

// SyncJobStore defines the driven port for sync job persistence.
//
// Every transition method only matches non-terminal rows and reports whether
// a row was changed, so a job that was already completed or failed is never
// modified again.
type SyncJobStore interface {
	Create(ctx context.Context, repoID int64, syncType model.SyncType) (model.SyncJob, error)
	MarkRunning(ctx context.Context, id int64, startedAt time.Time) (bool, error)
	Complete(ctx context.Context, id int64, result model.SyncResult, completedAt time.Time) (bool, error)
	Fail(ctx context.Context, id int64, message string, completedAt time.Time) (bool, error)

	// FailActiveForRepository fails every pending or running job of a repository
	// and returns the number of jobs changed.
	FailActiveForRepository(ctx context.Context, repoID int64, message string, at time.Time) (int64, error)

	// FailAllActive fails every pending or running job.
	FailAllActive(ctx context.Context, message string, at time.Time) (int64, error)

	// GetByID returns nil, nil when the job does not exist.
	GetByID(ctx context.Context, id int64) (*model.SyncJob, error)

	// LatestForRepository returns nil, nil when the repository has no jobs.
	LatestForRepository(ctx context.Context, repoID int64) (*model.SyncJob, error)

	ListByRepository(ctx context.Context, repoID int64, page model.Page) ([]model.SyncJob, int, error)

	// List returns jobs newest first; an empty status returns all.
	List(ctx context.Context, status model.SyncStatus, page model.Page) ([]model.SyncJob, int, error)
}
