package model

import "time"

// SyncJob records one execution of the sync pipeline for a repository.
type SyncJob struct {
	ID                 int64
	RepositoryID       int64
	Status             SyncStatus
	SyncType           SyncType
	StartedAt          *time.Time
	CompletedAt        *time.Time
	ErrorMessage       string
	PullRequestsSynced int
	CommitsSynced      int
	ReviewsSynced      int
	CommentsSynced     int
	ItemsFailed        int
	CreatedAt          time.Time
}

// SyncResult holds the counters produced by a pipeline run.
type SyncResult struct {
	PullRequests int
	Commits      int
	Reviews      int
	Comments     int
	Failed       int
}

// SyncState summarizes the sync situation of one repository.
type SyncState struct {
	RepositoryID int64
	IsLocked     bool
	LastSyncAt   *time.Time
	LatestJob    *SyncJob
}

// Page selects a 1-based page of results.
type Page struct {
	Number int
	Size   int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset returns the row offset of the page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}
