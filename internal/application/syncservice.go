package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
	"github.com/ericfisherdev/devpulse/internal/metrics"
)

const (
	// DefaultSyncLockTTL bounds how long a crashed holder can block a repository.
	DefaultSyncLockTTL = time.Hour

	cancelledMessage   = "Sync cancelled by user"
	interruptedMessage = "interrupted by service restart"

	// finalizeTimeout bounds the bookkeeping after a run, which must happen
	// even when the run context is already done.
	finalizeTimeout = 30 * time.Second
)

// Pipeline runs one sync of a repository.
type Pipeline interface {
	Run(ctx context.Context, client driven.GitClient, repo model.Repository, syncType model.SyncType) (model.SyncResult, error)
}

// RepositoryClients resolves the remote client for a repository.
type RepositoryClients interface {
	ForRepository(ctx context.Context, repo model.Repository) (driven.GitClient, error)
}

// SyncConfig holds the lock and run-time bounds of the SyncService.
type SyncConfig struct {
	LockTTL            time.Duration
	FullTimeout        time.Duration
	IncrementalTimeout time.Duration
}

// DefaultSyncConfig returns the production lock TTL and run timeouts.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		LockTTL:            DefaultSyncLockTTL,
		FullTimeout:        30 * time.Minute,
		IncrementalTimeout: 15 * time.Minute,
	}
}

// SyncLockKey returns the lock key guarding syncs of a repository.
func SyncLockKey(repoID int64) string {
	return fmt.Sprintf("sync:lock:%d", repoID)
}

// activeRun is a sync executing in this process.
type activeRun struct {
	jobID  int64
	cancel context.CancelFunc
}

// SyncService starts, tracks and cancels repository syncs. A repository can
// have at most one sync in flight, enforced through a TTL lock so that the
// guarantee also holds across processes sharing the lock store.
type SyncService struct {
	repoStore driven.RepoStore
	jobStore  driven.SyncJobStore
	locker    driven.Locker
	clients   RepositoryClients
	pipeline  Pipeline
	lockTTL   time.Duration

	timeouts map[model.SyncType]time.Duration

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	// transitions orders lock acquisition in StartSync against CancelSync.
	transitions sync.Mutex

	mu   sync.Mutex
	runs map[int64]activeRun
}

// NewSyncService creates a SyncService with all required dependencies. Zero
// fields of cfg take their DefaultSyncConfig values.
func NewSyncService(
	repoStore driven.RepoStore,
	jobStore driven.SyncJobStore,
	locker driven.Locker,
	clients RepositoryClients,
	pipeline Pipeline,
	cfg SyncConfig,
) *SyncService {
	def := DefaultSyncConfig()
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.FullTimeout <= 0 {
		cfg.FullTimeout = def.FullTimeout
	}
	if cfg.IncrementalTimeout <= 0 {
		cfg.IncrementalTimeout = def.IncrementalTimeout
	}

	ctx, stop := context.WithCancel(context.Background())

	return &SyncService{
		repoStore: repoStore,
		jobStore:  jobStore,
		locker:    locker,
		clients:   clients,
		pipeline:  pipeline,
		lockTTL:   cfg.LockTTL,
		timeouts: map[model.SyncType]time.Duration{
			model.SyncTypeFull:        cfg.FullTimeout,
			model.SyncTypeIncremental: cfg.IncrementalTimeout,
		},
		baseCtx: ctx,
		stop:    stop,
		runs:    make(map[int64]activeRun),
	}
}

// StartSync locks the repository, records a pending job and runs the
// pipeline in the background. It returns the job as soon as it is recorded.
func (s *SyncService) StartSync(ctx context.Context, repoID int64, syncType model.SyncType) (model.SyncJob, error) {
	if !syncType.Valid() {
		return model.SyncJob{}, fmt.Errorf("%q: %w", syncType, ErrInvalidSyncType)
	}

	repo, err := s.repoStore.GetByID(ctx, repoID)
	if err != nil {
		return model.SyncJob{}, fmt.Errorf("load repository %d: %w", repoID, err)
	}
	if repo == nil {
		return model.SyncJob{}, driven.ErrRepoNotFound
	}

	s.transitions.Lock()
	defer s.transitions.Unlock()

	lockKey := SyncLockKey(repoID)
	lease, err := s.locker.Acquire(ctx, lockKey, s.lockTTL)
	if errors.Is(err, driven.ErrLockHeld) {
		return model.SyncJob{}, ErrSyncInProgress
	}
	if err != nil {
		return model.SyncJob{}, fmt.Errorf("acquire sync lock: %w", err)
	}

	job, err := s.jobStore.Create(ctx, repoID, syncType)
	if err != nil {
		s.releaseLease(lockKey, lease)
		return model.SyncJob{}, fmt.Errorf("create sync job: %w", err)
	}

	runCtx, cancel := context.WithCancel(s.baseCtx)

	s.mu.Lock()
	s.runs[repoID] = activeRun{jobID: job.ID, cancel: cancel}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(runCtx, cancel, *repo, job, lease)
	}()

	slog.Info("sync started", "repo", repo.FullName(), "job_id", job.ID, "sync_type", syncType)
	return job, nil
}

// run executes one job to a terminal state. The lease is released and the
// run deregistered no matter how the pipeline ends, panics included.
func (s *SyncService) run(ctx context.Context, cancel context.CancelFunc, repo model.Repository, job model.SyncJob, lease string) {
	lockKey := SyncLockKey(repo.ID)
	startedAt := time.Now().UTC()

	metrics.SyncsInFlight.Inc()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sync panicked", "repo", repo.FullName(), "job_id", job.ID, "panic", r)
			s.fail(job, fmt.Sprintf("sync panicked: %v", r), startedAt)
		}

		cancel()
		s.deregister(repo.ID, job.ID)
		s.releaseLease(lockKey, lease)
		metrics.SyncsInFlight.Dec()
	}()

	running, err := s.jobStore.MarkRunning(ctx, job.ID, startedAt)
	if err != nil {
		s.fail(job, fmt.Sprintf("mark running: %v", err), startedAt)
		return
	}
	if !running {
		slog.Info("sync job no longer pending, skipping run", "repo", repo.FullName(), "job_id", job.ID)
		return
	}

	timeout := s.timeouts[job.SyncType]
	runCtx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	result, err := s.execute(runCtx, repo, job.SyncType)
	metrics.RecordSyncItems(result.PullRequests, result.Commits, result.Reviews, result.Comments, result.Failed)

	if err != nil {
		msg := err.Error()
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			msg = fmt.Sprintf("sync timed out after %s", timeout)
		case s.baseCtx.Err() != nil:
			msg = interruptedMessage
		case errors.Is(ctx.Err(), context.Canceled):
			msg = cancelledMessage
		}
		slog.Error("sync failed", "repo", repo.FullName(), "job_id", job.ID, "error", err)
		s.fail(job, msg, startedAt)
		return
	}

	fctx, fcancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer fcancel()

	completed, err := s.jobStore.Complete(fctx, job.ID, result, time.Now().UTC())
	if err != nil {
		slog.Error("recording sync completion failed", "job_id", job.ID, "error", err)
		return
	}
	if !completed {
		// Cancelled while finishing: the job is already terminal.
		slog.Info("sync finished after cancellation", "repo", repo.FullName(), "job_id", job.ID)
		return
	}

	if err := s.repoStore.UpdateLastSyncAt(fctx, repo.ID, startedAt); err != nil {
		slog.Error("advancing sync watermark failed", "repo", repo.FullName(), "error", err)
	}

	metrics.RecordSyncRun(string(job.SyncType), string(model.SyncStatusCompleted), time.Since(startedAt))
	slog.Info("sync completed",
		"repo", repo.FullName(),
		"job_id", job.ID,
		"pull_requests", result.PullRequests,
		"commits", result.Commits,
		"reviews", result.Reviews,
		"comments", result.Comments,
		"failed", result.Failed,
		"duration", time.Since(startedAt).Round(time.Millisecond),
	)
}

func (s *SyncService) execute(ctx context.Context, repo model.Repository, syncType model.SyncType) (model.SyncResult, error) {
	client, err := s.clients.ForRepository(ctx, repo)
	if err != nil {
		return model.SyncResult{}, err
	}
	return s.pipeline.Run(ctx, client, repo, syncType)
}

func (s *SyncService) fail(job model.SyncJob, message string, startedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if _, err := s.jobStore.Fail(ctx, job.ID, message, time.Now().UTC()); err != nil {
		slog.Error("recording sync failure failed", "job_id", job.ID, "error", err)
	}
	metrics.RecordSyncRun(string(job.SyncType), string(model.SyncStatusFailed), time.Since(startedAt))
}

func (s *SyncService) releaseLease(key, lease string) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	released, err := s.locker.ReleaseIfHeld(ctx, key, lease)
	if err != nil {
		slog.Error("releasing sync lock failed", "key", key, "error", err)
		return
	}
	if !released {
		slog.Debug("sync lock no longer held by this run", "key", key)
	}
}

func (s *SyncService) deregister(repoID, jobID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[repoID]; ok && r.jobID == jobID {
		delete(s.runs, repoID)
	}
}

// CancelSync fails every pending or running job of the repository, stops a
// run in this process at its next suspension point and then frees the
// repository lock. Rows the run already wrote stay in place. A StartSync
// arriving meanwhile waits and sees a free lock afterwards.
func (s *SyncService) CancelSync(ctx context.Context, repoID int64) (int64, error) {
	repo, err := s.repoStore.GetByID(ctx, repoID)
	if err != nil {
		return 0, fmt.Errorf("load repository %d: %w", repoID, err)
	}
	if repo == nil {
		return 0, driven.ErrRepoNotFound
	}

	s.transitions.Lock()
	defer s.transitions.Unlock()

	n, err := s.jobStore.FailActiveForRepository(ctx, repoID, cancelledMessage, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("fail active jobs: %w", err)
	}

	s.mu.Lock()
	if r, ok := s.runs[repoID]; ok {
		r.cancel()
	}
	s.mu.Unlock()

	if err := s.locker.Release(ctx, SyncLockKey(repoID)); err != nil {
		return 0, fmt.Errorf("release sync lock: %w", err)
	}

	slog.Info("sync cancelled", "repo", repo.FullName(), "jobs", n)
	return n, nil
}

// GetSyncStatus reports the latest job, lock state and watermark of a repository.
func (s *SyncService) GetSyncStatus(ctx context.Context, repoID int64) (model.SyncState, error) {
	repo, err := s.repoStore.GetByID(ctx, repoID)
	if err != nil {
		return model.SyncState{}, fmt.Errorf("load repository %d: %w", repoID, err)
	}
	if repo == nil {
		return model.SyncState{}, driven.ErrRepoNotFound
	}

	locked, err := s.locker.IsHeld(ctx, SyncLockKey(repoID))
	if err != nil {
		return model.SyncState{}, fmt.Errorf("check sync lock: %w", err)
	}

	latest, err := s.jobStore.LatestForRepository(ctx, repoID)
	if err != nil {
		return model.SyncState{}, fmt.Errorf("load latest job: %w", err)
	}

	return model.SyncState{
		RepositoryID: repoID,
		IsLocked:     locked,
		LastSyncAt:   repo.LastSyncAt,
		LatestJob:    latest,
	}, nil
}

// GetSyncHistory returns the jobs of a repository, newest first, and the total count.
func (s *SyncService) GetSyncHistory(ctx context.Context, repoID int64, page model.Page) ([]model.SyncJob, int, error) {
	repo, err := s.repoStore.GetByID(ctx, repoID)
	if err != nil {
		return nil, 0, fmt.Errorf("load repository %d: %w", repoID, err)
	}
	if repo == nil {
		return nil, 0, driven.ErrRepoNotFound
	}

	jobs, total, err := s.jobStore.ListByRepository(ctx, repoID, page.Normalize())
	if err != nil {
		return nil, 0, fmt.Errorf("list sync history: %w", err)
	}
	return jobs, total, nil
}

// GetAllJobs returns jobs across repositories, optionally filtered by status.
func (s *SyncService) GetAllJobs(ctx context.Context, status model.SyncStatus, page model.Page) ([]model.SyncJob, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("status %q: %w", status, ErrValidation)
	}

	jobs, total, err := s.jobStore.List(ctx, status, page.Normalize())
	if err != nil {
		return nil, 0, fmt.Errorf("list sync jobs: %w", err)
	}
	return jobs, total, nil
}

// GetJob returns a single job.
func (s *SyncService) GetJob(ctx context.Context, jobID int64) (model.SyncJob, error) {
	job, err := s.jobStore.GetByID(ctx, jobID)
	if err != nil {
		return model.SyncJob{}, fmt.Errorf("load sync job %d: %w", jobID, err)
	}
	if job == nil {
		return model.SyncJob{}, ErrJobNotFound
	}
	return *job, nil
}

// RecoverInterruptedJobs fails jobs a previous process left pending or
// running. It must run before the service accepts new syncs.
func (s *SyncService) RecoverInterruptedJobs(ctx context.Context) (int64, error) {
	n, err := s.jobStore.FailAllActive(ctx, interruptedMessage, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("recover interrupted jobs: %w", err)
	}
	if n > 0 {
		slog.Warn("failed jobs interrupted by restart", "count", n)
	}
	return n, nil
}

// Shutdown cancels in-flight runs and waits until each has recorded its
// terminal state, or until ctx ends.
func (s *SyncService) Shutdown(ctx context.Context) error {
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

