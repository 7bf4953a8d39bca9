package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Locker = (*Locker)(nil)

// Locker implements TTL locks as Badger entries whose value is the lease
// token of the current holder. Expired entries are invisible to reads, so an
// abandoned lock frees itself once its TTL passes.
type Locker struct {
	db *badger.DB
}

// NewLocker creates a Locker on the given store.
func NewLocker(s *Store) *Locker {
	return &Locker{db: s.db}
}

// Acquire takes key for ttl and returns the lease token. It returns
// driven.ErrLockHeld when the key is already taken, including when a
// concurrent transaction won the race.
func (l *Locker) Acquire(_ context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()

	err := l.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return driven.ErrLockHeld
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.SetEntry(badger.NewEntry([]byte(key), []byte(token)).WithTTL(ttl))
	})
	if errors.Is(err, driven.ErrLockHeld) || errors.Is(err, badger.ErrConflict) {
		return "", driven.ErrLockHeld
	}
	if err != nil {
		return "", fmt.Errorf("acquire lock %s: %w", key, err)
	}

	return token, nil
}

// Release deletes key whoever holds it.
func (l *Locker) Release(_ context.Context, key string) error {
	err := l.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

// ReleaseIfHeld deletes key only while its value is still token.
func (l *Locker) ReleaseIfHeld(_ context.Context, key, token string) (bool, error) {
	released := false

	err := l.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		var holder string
		if err := item.Value(func(val []byte) error {
			holder = string(val)
			return nil
		}); err != nil {
			return err
		}
		if holder != token {
			return nil
		}

		released = true
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return false, fmt.Errorf("release lock %s: %w", key, err)
	}

	return released, nil
}

// IsHeld reports whether key is currently taken.
func (l *Locker) IsHeld(_ context.Context, key string) (bool, error) {
	held := false

	err := l.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		held = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("check lock %s: %w", key, err)
	}

	return held, nil
}
