package model

import "time"

// Repository is an upstream repository mirrored into the local store.
type Repository struct {
	ID            int64
	Provider      Provider
	Organization  string // Azure organization or GitHub owner.
	Project       string // Azure project; empty for GitHub.
	Name          string
	RemoteID      string
	DefaultBranch string
	URL           string
	AccessToken   string // Plaintext in memory, encrypted at rest. Empty means use the system PAT.
	IsActive      bool
	LastSyncAt    *time.Time // Incremental watermark; only advanced by a completed sync.
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FullName returns a human readable identifier for logging.
func (r Repository) FullName() string {
	if r.Project == "" {
		return r.Organization + "/" + r.Name
	}
	return r.Organization + "/" + r.Project + "/" + r.Name
}

// RemoteProject is a project listed by the upstream service.
type RemoteProject struct {
	ID          string
	Name        string
	Description string
}

// RemoteRepository is a repository listed by the upstream service.
type RemoteRepository struct {
	ID            string
	Name          string
	Project       string
	DefaultBranch string
	URL           string
}
