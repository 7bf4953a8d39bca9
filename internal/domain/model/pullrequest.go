package model

import (
	"math"
	"time"
)

// PullRequest is a pull request mirrored from the upstream service.
type PullRequest struct {
	ID            int64
	RepositoryID  int64
	ExternalID    string
	Number        int
	Title         string
	Description   string
	Status        PRStatus
	IsDraft       bool
	SourceBranch  string
	TargetBranch  string
	URL           string
	CreatedByID   *int64
	CreatedAt     time.Time
	ClosedAt      *time.Time
	CycleTimeDays *float64
	FilesChanged  int
	LinesAdded    int
	LinesDeleted  int
	SyncedAt      time.Time

	// Transient, resolved to CreatedByID before storing.
	CreatedBy RemoteIdentity
}

// LastActivity returns the most recent known timestamp of the pull request.
func (pr PullRequest) LastActivity() time.Time {
	if pr.ClosedAt != nil && pr.ClosedAt.After(pr.CreatedAt) {
		return *pr.ClosedAt
	}
	return pr.CreatedAt
}

// CycleTimeDays returns nil when closedAt is nil, otherwise the elapsed
// days between creation and close rounded to two decimals. Clock skew that
// would produce a negative value is clamped to zero.
func CycleTimeDays(createdAt time.Time, closedAt *time.Time) *float64 {
	if closedAt == nil {
		return nil
	}

	days := closedAt.Sub(createdAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	days = math.Round(days*100) / 100
	return &days
}

// FileChange is a single changed file reported for a pull request.
type FileChange struct {
	Path      string
	Additions int
	Deletions int
}

// FileStats are the aggregated file-change counters stored on a pull request.
type FileStats struct {
	FilesChanged int
	LinesAdded   int
	LinesDeleted int
}

// AggregateFileChanges deduplicates changes by path, keeping the first entry
// for each path, and sums the remaining additions and deletions.
func AggregateFileChanges(changes []FileChange) FileStats {
	seen := make(map[string]struct{}, len(changes))
	var stats FileStats

	for _, c := range changes {
		if c.Path == "" {
			continue
		}
		if _, dup := seen[c.Path]; dup {
			continue
		}
		seen[c.Path] = struct{}{}

		stats.FilesChanged++
		stats.LinesAdded += c.Additions
		stats.LinesDeleted += c.Deletions
	}

	return stats
}
