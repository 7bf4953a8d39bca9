package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

// SyncStarter starts a repository sync.
type SyncStarter interface {
	StartSync(ctx context.Context, repoID int64, syncType model.SyncType) (model.SyncJob, error)
}

// SyncScheduler periodically starts incremental syncs for every active
// repository. It implements suture.Service.
type SyncScheduler struct {
	repoStore driven.RepoStore
	syncs     SyncStarter
	interval  time.Duration
}

// NewSyncScheduler creates a SyncScheduler ticking every interval.
func NewSyncScheduler(repoStore driven.RepoStore, syncs SyncStarter, interval time.Duration) *SyncScheduler {
	return &SyncScheduler{
		repoStore: repoStore,
		syncs:     syncs,
		interval:  interval,
	}
}

// Serve runs until ctx is canceled. The first round starts after one
// interval so that a restart does not immediately hit the upstream.
func (s *SyncScheduler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				slog.Error("scheduled sync round failed", "error", err)
			}
		}
	}
}

// String returns the service name for supervisor logs.
func (s *SyncScheduler) String() string {
	return "sync-scheduler"
}

// tick starts an incremental sync for each active repository. Repositories
// that are already syncing are skipped.
func (s *SyncScheduler) tick(ctx context.Context) error {
	start := time.Now()

	repos, err := s.repoStore.ListAll(ctx)
	if err != nil {
		return err
	}

	var started, skipped, failed int
	for _, repo := range repos {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !repo.IsActive {
			continue
		}

		_, err := s.syncs.StartSync(ctx, repo.ID, model.SyncTypeIncremental)
		switch {
		case err == nil:
			started++
		case errors.Is(err, ErrSyncInProgress):
			skipped++
		default:
			slog.Error("scheduled sync failed to start", "repo", repo.FullName(), "error", err)
			failed++
		}
	}

	slog.Info("scheduled sync round complete",
		"repos", len(repos),
		"started", started,
		"skipped", skipped,
		"errors", failed,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}
