package driven

import (
	"context"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
)

// PRStore defines the driven port for pull request persistence.
// Upsert is keyed by ExternalID and never modifies the file-change counters,
// which are owned by UpdateFileStats.
type PRStore interface {
	Upsert(ctx context.Context, pr model.PullRequest) (int64, error)
	UpdateFileStats(ctx context.Context, prID int64, stats model.FileStats) error
	GetByID(ctx context.Context, id int64) (*model.PullRequest, error)
	ListByRepository(ctx context.Context, repoID int64, page model.Page) ([]model.PullRequest, int, error)
	CountByRepository(ctx context.Context, repoID int64) (int, error)
	// ListActiveNumbers returns the numbers of a repository's pull requests
	// whose stored status is still active.
	ListActiveNumbers(ctx context.Context, repoID int64) ([]int, error)
}

// CommitStore defines the driven port for commit persistence, keyed by hash.
type CommitStore interface {
	Upsert(ctx context.Context, commit model.Commit) error
	CountByRepository(ctx context.Context, repoID int64) (int, error)
}
