// Package kv implements the lock and cache ports on top of BadgerDB.
package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// gcDiscardRatio is the fraction of stale data a value log file must hold
// before Badger rewrites it.
const gcDiscardRatio = 0.5

// Store wraps a Badger database shared by the locker and the cache.
type Store struct {
	db *badger.DB
}

// Open opens the Badger database at path. An empty path opens an in-memory
// database, which is what tests and single-run commands use.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC rewrites value log files until no more space can be reclaimed.
func (s *Store) RunGC() error {
	for {
		err := s.db.RunValueLogGC(gcDiscardRatio)
		switch {
		case err == nil:
			continue
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrGCInMemoryMode):
			return nil
		default:
			return fmt.Errorf("run value log gc: %w", err)
		}
	}
}

// GCService periodically garbage-collects the value log. It implements
// suture.Service.
type GCService struct {
	store    *Store
	interval time.Duration
}

// NewGCService creates a GCService running every interval.
func NewGCService(store *Store, interval time.Duration) *GCService {
	return &GCService{store: store, interval: interval}
}

// Serve runs until ctx is cancelled.
func (g *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := g.store.RunGC(); err != nil {
				slog.Warn("badger gc failed", "error", err)
			}
		}
	}
}

// String returns the service name for supervisor logs.
func (g *GCService) String() string {
	return "badger-gc"
}
