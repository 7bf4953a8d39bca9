package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Cache = (*Cache)(nil)

// Cache stores JSON-encoded values with a TTL.
type Cache struct {
	db *badger.DB
}

// NewCache creates a Cache on the given store.
func NewCache(s *Store) *Cache {
	return &Cache{db: s.db}
}

// Get decodes the value stored under key into dest. It reports false when
// the key is missing or expired.
func (c *Cache) Get(_ context.Context, key string, dest any) (bool, error) {
	found := false

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dest)
		})
	})
	if err != nil {
		return false, fmt.Errorf("get cache %s: %w", key, err)
	}

	return found, nil
}

// Set stores value under key for ttl.
func (c *Cache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache %s: %w", key, err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), data).WithTTL(ttl))
	})
	if err != nil {
		return fmt.Errorf("set cache %s: %w", key, err)
	}
	return nil
}
