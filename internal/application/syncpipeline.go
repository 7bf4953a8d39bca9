package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

// errMalformedPR marks a pull request that lacks fields required to store it.
var errMalformedPR = errors.New("pull request is missing title or creator")

// PipelineLimits bounds the work of one pipeline run.
type PipelineLimits struct {
	PageSize        int
	MaxPullRequests int
	MaxCommits      int
	MaxDetailed     int // Pull requests eligible for the review/comment/file stage.
	WaveSize        int
}

// DefaultPipelineLimits returns the production limits.
func DefaultPipelineLimits() PipelineLimits {
	return PipelineLimits{
		PageSize:        100,
		MaxPullRequests: 5000,
		MaxCommits:      5000,
		MaxDetailed:     500,
		WaveSize:        10,
	}
}

// SyncPipeline mirrors one repository's pull requests, commits, reviews and
// comments into the local store. Every write is an idempotent upsert, so a
// run can be repeated or interrupted without leaving duplicates behind.
type SyncPipeline struct {
	prStore        driven.PRStore
	commitStore    driven.CommitStore
	reviewStore    driven.ReviewStore
	developerStore driven.DeveloperStore
	limits         PipelineLimits
}

// NewSyncPipeline creates a SyncPipeline with all required dependencies.
func NewSyncPipeline(
	prStore driven.PRStore,
	commitStore driven.CommitStore,
	reviewStore driven.ReviewStore,
	developerStore driven.DeveloperStore,
	limits PipelineLimits,
) *SyncPipeline {
	return &SyncPipeline{
		prStore:        prStore,
		commitStore:    commitStore,
		reviewStore:    reviewStore,
		developerStore: developerStore,
		limits:         limits,
	}
}

// syncedPR is a pull request stored by the current run.
type syncedPR struct {
	id           int64
	number       int
	lastActivity time.Time
}

// tally accumulates counters from concurrent workers.
type tally struct {
	mu  sync.Mutex
	res model.SyncResult
}

func (t *tally) add(fn func(r *model.SyncResult)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.res)
}

// Run executes the pipeline for repo. An incremental run without a previous
// watermark behaves like a full run. An incremental run also re-fetches the
// stored active pull requests the listing did not return, so ones closed
// since the watermark get their final status. A listing failure aborts the
// run; a failure on a single item is logged, counted and skipped.
func (p *SyncPipeline) Run(ctx context.Context, client driven.GitClient, repo model.Repository, syncType model.SyncType) (model.SyncResult, error) {
	var since *time.Time
	if syncType == model.SyncTypeIncremental && repo.LastSyncAt != nil {
		t := *repo.LastSyncAt
		since = &t
	}

	ref := driven.RefFor(repo)
	t := &tally{}

	synced, err := p.syncPullRequests(ctx, client, ref, repo, since, t)
	if err != nil {
		return t.res, fmt.Errorf("sync pull requests: %w", err)
	}

	if since != nil {
		closed, err := p.refreshActive(ctx, client, ref, repo, synced, t)
		if err != nil {
			return t.res, fmt.Errorf("refresh active pull requests: %w", err)
		}
		synced = append(synced, closed...)
	}

	if err := p.syncCommits(ctx, client, ref, repo, since, t); err != nil {
		return t.res, fmt.Errorf("sync commits: %w", err)
	}

	if err := p.syncDetails(ctx, client, ref, synced, t); err != nil {
		return t.res, fmt.Errorf("sync pull request details: %w", err)
	}

	return t.res, nil
}

func (p *SyncPipeline) syncPullRequests(
	ctx context.Context,
	client driven.GitClient,
	ref driven.RepoRef,
	repo model.Repository,
	since *time.Time,
	t *tally,
) ([]syncedPR, error) {
	var (
		mu     sync.Mutex
		synced []syncedPR
	)

	fetched := 0
	for skip := 0; fetched < p.limits.MaxPullRequests; skip += p.limits.PageSize {
		page, err := client.ListPullRequests(ctx, ref, driven.PageQuery{Since: since, Skip: skip, Top: p.limits.PageSize})
		if err != nil {
			return nil, err
		}

		exhausted := len(page) < p.limits.PageSize
		if remaining := p.limits.MaxPullRequests - fetched; len(page) > remaining {
			page = page[:remaining]
		}
		fetched += len(page)

		err = runWaves(ctx, page, p.limits.WaveSize, func(ctx context.Context, pr model.PullRequest) {
			id, err := p.upsertPullRequest(ctx, repo, pr)
			if err != nil {
				slog.Warn("skipping pull request", "repo", repo.FullName(), "number", pr.Number, "error", err)
				t.add(func(r *model.SyncResult) { r.Failed++ })
				return
			}

			t.add(func(r *model.SyncResult) { r.PullRequests++ })
			mu.Lock()
			synced = append(synced, syncedPR{id: id, number: pr.Number, lastActivity: pr.LastActivity()})
			mu.Unlock()
		})
		if err != nil {
			return nil, err
		}

		if exhausted {
			break
		}
	}

	slog.Debug("pull requests synced", "repo", repo.FullName(), "fetched", fetched, "stored", len(synced))
	return synced, nil
}

// refreshActive fetches each stored active pull request missing from this
// run's listing and stores it again. Those no longer active are returned for
// the detail stage.
func (p *SyncPipeline) refreshActive(
	ctx context.Context,
	client driven.GitClient,
	ref driven.RepoRef,
	repo model.Repository,
	listed []syncedPR,
	t *tally,
) ([]syncedPR, error) {
	numbers, err := p.prStore.ListActiveNumbers(ctx, repo.ID)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(listed))
	for _, pr := range listed {
		seen[pr.number] = true
	}
	var stale []int
	for _, n := range numbers {
		if !seen[n] {
			stale = append(stale, n)
		}
	}
	if len(stale) > p.limits.MaxPullRequests {
		stale = stale[:p.limits.MaxPullRequests]
	}

	var (
		mu     sync.Mutex
		closed []syncedPR
	)
	err = runWaves(ctx, stale, p.limits.WaveSize, func(ctx context.Context, number int) {
		pr, err := client.GetPullRequest(ctx, ref, number)
		if err != nil {
			slog.Warn("refreshing pull request failed", "repo", repo.FullName(), "number", number, "error", err)
			t.add(func(r *model.SyncResult) { r.Failed++ })
			return
		}

		id, err := p.upsertPullRequest(ctx, repo, pr)
		if err != nil {
			slog.Warn("skipping pull request", "repo", repo.FullName(), "number", number, "error", err)
			t.add(func(r *model.SyncResult) { r.Failed++ })
			return
		}

		t.add(func(r *model.SyncResult) { r.PullRequests++ })
		if pr.Status != model.PRStatusActive {
			mu.Lock()
			closed = append(closed, syncedPR{id: id, number: pr.Number, lastActivity: pr.LastActivity()})
			mu.Unlock()
		}
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("active pull requests refreshed", "repo", repo.FullName(), "checked", len(stale), "closed", len(closed))
	return closed, nil
}

func (p *SyncPipeline) upsertPullRequest(ctx context.Context, repo model.Repository, pr model.PullRequest) (int64, error) {
	if pr.Title == "" || pr.CreatedBy.IsZero() {
		return 0, errMalformedPR
	}

	creatorID, err := p.developerStore.FindOrCreate(ctx, pr.CreatedBy)
	if err != nil {
		return 0, fmt.Errorf("resolve creator: %w", err)
	}

	if pr.Status == model.PRStatusUnknown {
		slog.Warn("unrecognised pull request status", "repo", repo.FullName(), "number", pr.Number)
	}

	pr.RepositoryID = repo.ID
	pr.CreatedByID = &creatorID
	pr.CycleTimeDays = model.CycleTimeDays(pr.CreatedAt, pr.ClosedAt)
	pr.SyncedAt = time.Now().UTC()

	id, err := p.prStore.Upsert(ctx, pr)
	if err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}
	return id, nil
}

func (p *SyncPipeline) syncCommits(
	ctx context.Context,
	client driven.GitClient,
	ref driven.RepoRef,
	repo model.Repository,
	since *time.Time,
	t *tally,
) error {
	fetched := 0
	for skip := 0; fetched < p.limits.MaxCommits; skip += p.limits.PageSize {
		page, err := client.ListCommits(ctx, ref, driven.PageQuery{Since: since, Skip: skip, Top: p.limits.PageSize})
		if err != nil {
			return err
		}

		exhausted := len(page) < p.limits.PageSize
		if remaining := p.limits.MaxCommits - fetched; len(page) > remaining {
			page = page[:remaining]
		}
		fetched += len(page)

		err = runWaves(ctx, page, p.limits.WaveSize, func(ctx context.Context, c model.Commit) {
			if err := p.upsertCommit(ctx, repo, c); err != nil {
				slog.Warn("skipping commit", "repo", repo.FullName(), "hash", c.Hash, "error", err)
				t.add(func(r *model.SyncResult) { r.Failed++ })
				return
			}
			t.add(func(r *model.SyncResult) { r.Commits++ })
		})
		if err != nil {
			return err
		}

		if exhausted {
			break
		}
	}
	return nil
}

func (p *SyncPipeline) upsertCommit(ctx context.Context, repo model.Repository, c model.Commit) error {
	if c.Hash == "" {
		return errors.New("commit has no hash")
	}

	c.RepositoryID = repo.ID
	if !c.Author.IsZero() {
		authorID, err := p.developerStore.FindOrCreate(ctx, c.Author)
		if err != nil {
			return fmt.Errorf("resolve author: %w", err)
		}
		c.AuthorID = &authorID
	}

	return p.commitStore.Upsert(ctx, c)
}

// syncDetails fetches reviews, comments and file changes for the most
// recently active pull requests of this run.
func (p *SyncPipeline) syncDetails(ctx context.Context, client driven.GitClient, ref driven.RepoRef, synced []syncedPR, t *tally) error {
	sort.SliceStable(synced, func(i, j int) bool {
		return synced[i].lastActivity.After(synced[j].lastActivity)
	})
	if len(synced) > p.limits.MaxDetailed {
		synced = synced[:p.limits.MaxDetailed]
	}

	return runWaves(ctx, synced, p.limits.WaveSize, func(ctx context.Context, pr syncedPR) {
		p.syncReviews(ctx, client, ref, pr, t)
		p.syncComments(ctx, client, ref, pr, t)
		p.syncFileChanges(ctx, client, ref, pr, t)
	})
}

func (p *SyncPipeline) syncReviews(ctx context.Context, client driven.GitClient, ref driven.RepoRef, pr syncedPR, t *tally) {
	reviews, err := client.ListPullRequestReviews(ctx, ref, pr.number)
	if err != nil {
		slog.Warn("fetching reviews failed", "repo", ref.Name, "number", pr.number, "error", err)
		t.add(func(r *model.SyncResult) { r.Failed++ })
		return
	}

	for _, review := range reviews {
		review.PullRequestID = pr.id
		if !review.Reviewer.IsZero() {
			id, err := p.developerStore.FindOrCreate(ctx, review.Reviewer)
			if err != nil {
				slog.Warn("resolving reviewer failed", "review", review.ExternalID, "error", err)
				t.add(func(r *model.SyncResult) { r.Failed++ })
				continue
			}
			review.ReviewerID = &id
		}

		if err := p.reviewStore.UpsertReview(ctx, review); err != nil {
			slog.Warn("storing review failed", "review", review.ExternalID, "error", err)
			t.add(func(r *model.SyncResult) { r.Failed++ })
			continue
		}
		t.add(func(r *model.SyncResult) { r.Reviews++ })
	}
}

func (p *SyncPipeline) syncComments(ctx context.Context, client driven.GitClient, ref driven.RepoRef, pr syncedPR, t *tally) {
	comments, err := client.ListPullRequestComments(ctx, ref, pr.number)
	if err != nil {
		slog.Warn("fetching comments failed", "repo", ref.Name, "number", pr.number, "error", err)
		t.add(func(r *model.SyncResult) { r.Failed++ })
		return
	}

	for _, c := range comments {
		if c.CommentType == "system" {
			continue
		}

		c.PullRequestID = pr.id
		if !c.Author.IsZero() {
			id, err := p.developerStore.FindOrCreate(ctx, c.Author)
			if err != nil {
				slog.Warn("resolving comment author failed", "comment", c.ExternalID, "error", err)
				t.add(func(r *model.SyncResult) { r.Failed++ })
				continue
			}
			c.AuthorID = &id
		}

		if err := p.reviewStore.UpsertComment(ctx, c); err != nil {
			slog.Warn("storing comment failed", "comment", c.ExternalID, "error", err)
			t.add(func(r *model.SyncResult) { r.Failed++ })
			continue
		}
		t.add(func(r *model.SyncResult) { r.Comments++ })
	}
}

func (p *SyncPipeline) syncFileChanges(ctx context.Context, client driven.GitClient, ref driven.RepoRef, pr syncedPR, t *tally) {
	changes, err := client.ListPullRequestFileChanges(ctx, ref, pr.number)
	if err != nil {
		slog.Warn("fetching file changes failed", "repo", ref.Name, "number", pr.number, "error", err)
		t.add(func(r *model.SyncResult) { r.Failed++ })
		return
	}

	if err := p.prStore.UpdateFileStats(ctx, pr.id, model.AggregateFileChanges(changes)); err != nil {
		slog.Warn("storing file stats failed", "repo", ref.Name, "number", pr.number, "error", err)
		t.add(func(r *model.SyncResult) { r.Failed++ })
	}
}

// runWaves calls fn for every item, at most size at a time, waiting for each
// wave to finish before starting the next. fn handles its own failures. It
// returns the context error if ctx ends between waves.
func runWaves[T any](ctx context.Context, items []T, size int, fn func(context.Context, T)) error {
	if size < 1 {
		size = 1
	}

	for start := 0; start < len(items); start += size {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(start+size, len(items))
		var g errgroup.Group
		for _, item := range items[start:end] {
			g.Go(func() error {
				fn(ctx, item)
				return nil
			})
		}
		_ = g.Wait()
	}

	return ctx.Err()
}
