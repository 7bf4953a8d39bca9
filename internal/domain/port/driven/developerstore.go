package driven

import (
	"context"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
)

// DeveloperStore defines the driven port for developer persistence.
type DeveloperStore interface {
	// FindOrCreate returns the ID of the developer matching identity.Key(),
	// creating it in a single statement when absent. Concurrent callers with
	// the same identity always receive the same ID.
	FindOrCreate(ctx context.Context, identity model.RemoteIdentity) (int64, error)

	Create(ctx context.Context, dev model.Developer) (model.Developer, error)
	Update(ctx context.Context, dev model.Developer) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*model.Developer, error)
	List(ctx context.Context, filter model.DeveloperFilter) ([]model.Developer, error)

	// FindByEmailOrRemoteID returns nil, nil when nothing matches.
	FindByEmailOrRemoteID(ctx context.Context, email, remoteID string) (*model.Developer, error)
}

// DimensionStore defines the driven port for teams, roles and stacks.
// Create and Update return ErrAlreadyExists on a duplicate name; Update and
// Delete return ErrNotFound for unknown IDs. Get returns nil, nil when absent.
type DimensionStore interface {
	Create(ctx context.Context, d model.Dimension) (model.Dimension, error)
	Update(ctx context.Context, d model.Dimension) error
	Delete(ctx context.Context, kind model.DimensionKind, id int64) error
	Get(ctx context.Context, kind model.DimensionKind, id int64) (*model.Dimension, error)
	List(ctx context.Context, kind model.DimensionKind) ([]model.Dimension, error)
}
