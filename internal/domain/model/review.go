package model

import "time"

// Review is a reviewer's vote on a pull request.
type Review struct {
	ID            int64
	ExternalID    string
	PullRequestID int64
	ReviewerID    *int64
	Vote          int
	State         ReviewState
	IsRequired    bool
	SubmittedAt   *time.Time

	// Transient, resolved to ReviewerID before storing.
	Reviewer RemoteIdentity
}

// Comment is a discussion comment on a pull request.
type Comment struct {
	ID            int64
	ExternalID    string
	PullRequestID int64
	AuthorID      *int64
	ThreadID      string
	Content       string
	CommentType   string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Transient, resolved to AuthorID before storing.
	Author RemoteIdentity
}

// Commit is a commit on a mirrored repository.
type Commit struct {
	ID             int64
	RepositoryID   int64
	Hash           string
	Message        string
	AuthorID       *int64
	AuthoredAt     time.Time
	URL            string
	ChangesAdded   int
	ChangesEdited  int
	ChangesDeleted int

	// Transient, resolved to AuthorID before storing.
	Author RemoteIdentity
}
