package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by stores that encrypt values when they
// were constructed without an encryption key.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set DEVPULSE_ENCRYPTION_KEY")

// ConfigStore defines the driven port for encrypted system configuration.
// The adapter is responsible for encryption; this interface operates on
// plaintext values at the domain boundary.
type ConfigStore interface {
	// Set stores or replaces the value for key.
	Set(ctx context.Context, key, plaintext string) error

	// Get returns ("", nil) if the key has no value.
	Get(ctx context.Context, key string) (string, error)

	// List returns all entries with decrypted values.
	List(ctx context.Context) ([]model.ConfigEntry, error)

	// Delete removes the value for key.
	Delete(ctx context.Context, key string) error
}
