package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
)

// Sentinel errors returned by store implementations.
var (
	// ErrRepoNotFound indicates the requested repository does not exist.
	ErrRepoNotFound = errors.New("repository not found")

	// ErrRepoAlreadyExists indicates the upstream repository is already registered.
	ErrRepoAlreadyExists = errors.New("repository already exists")

	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a row with the same unique key exists.
	ErrAlreadyExists = errors.New("already exists")
)

// RepoStore defines the driven port for repository persistence.
// Create returns ErrRepoAlreadyExists on a duplicate upstream identity.
// Update and Delete return ErrRepoNotFound if the repository does not exist.
// GetByID returns nil, nil when the repository does not exist.
type RepoStore interface {
	Create(ctx context.Context, repo model.Repository) (model.Repository, error)
	Update(ctx context.Context, repo model.Repository) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*model.Repository, error)
	ListAll(ctx context.Context) ([]model.Repository, error)
	UpdateLastSyncAt(ctx context.Context, id int64, at time.Time) error
}
