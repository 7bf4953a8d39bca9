package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
)

// UserStore defines the driven port for dashboard accounts.
// Lookups return nil, nil when the user does not exist.
// Create returns ErrAlreadyExists for a duplicate e-mail.
type UserStore interface {
	Create(ctx context.Context, user model.User) (model.User, error)
	Update(ctx context.Context, user model.User) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByAzureObjectID(ctx context.Context, objectID string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
}

// AccessRoleStore defines the driven port for access roles and their
// permission sets. Lookups return nil, nil when the role does not exist.
type AccessRoleStore interface {
	Create(ctx context.Context, role model.AccessRole) (model.AccessRole, error)
	Update(ctx context.Context, role model.AccessRole) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*model.AccessRole, error)
	GetByName(ctx context.Context, name string) (*model.AccessRole, error)
	List(ctx context.Context) ([]model.AccessRole, error)
}

// TokenStore defines the driven port for issued token records.
// Get returns nil, nil when the token does not exist.
type TokenStore interface {
	Create(ctx context.Context, token model.AuthToken) error
	Get(ctx context.Context, id string) (*model.AuthToken, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID int64) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
