package model

// Provider identifies the upstream source-control service a repository is
// mirrored from.
type Provider string

const (
	ProviderAzureDevOps Provider = "azure_devops"
	ProviderGitHub      Provider = "github"
)

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	return p == ProviderAzureDevOps || p == ProviderGitHub
}

// PRStatus represents the local state of a pull request.
type PRStatus string

const (
	PRStatusActive    PRStatus = "active"
	PRStatusClosed    PRStatus = "closed"
	PRStatusCompleted PRStatus = "completed"
	PRStatusUnknown   PRStatus = "unknown" // Upstream reported a status we do not recognise.
)

// AllPRStatuses lists every status in display order.
var AllPRStatuses = []PRStatus{PRStatusActive, PRStatusCompleted, PRStatusClosed, PRStatusUnknown}

// ReviewState represents the outcome of a reviewer's vote.
type ReviewState string

const (
	ReviewStateApproved                ReviewState = "approved"
	ReviewStateApprovedWithSuggestions ReviewState = "approved_with_suggestions"
	ReviewStateNoVote                  ReviewState = "no_vote"
	ReviewStateWaitingForAuthor        ReviewState = "waiting_for_author"
	ReviewStateRejected                ReviewState = "rejected"
)

// AllReviewStates lists every review state in display order.
var AllReviewStates = []ReviewState{
	ReviewStateApproved,
	ReviewStateApprovedWithSuggestions,
	ReviewStateNoVote,
	ReviewStateWaitingForAuthor,
	ReviewStateRejected,
}

// ReviewStateFromVote maps an Azure DevOps reviewer vote to a ReviewState.
// Azure votes are 10, 5, 0, -5 and -10.
func ReviewStateFromVote(vote int) ReviewState {
	switch {
	case vote >= 10:
		return ReviewStateApproved
	case vote > 0:
		return ReviewStateApprovedWithSuggestions
	case vote == 0:
		return ReviewStateNoVote
	case vote > -10:
		return ReviewStateWaitingForAuthor
	default:
		return ReviewStateRejected
	}
}

// SyncStatus is the lifecycle state of a sync job.
type SyncStatus string

const (
	SyncStatusPending   SyncStatus = "pending"
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// Valid reports whether s is a known sync status.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusPending, SyncStatusRunning, SyncStatusCompleted, SyncStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s SyncStatus) IsTerminal() bool {
	return s == SyncStatusCompleted || s == SyncStatusFailed
}

// SyncType selects between a full re-sync and an incremental one.
type SyncType string

const (
	SyncTypeFull        SyncType = "full"
	SyncTypeIncremental SyncType = "incremental"
)

// Valid reports whether t is a known sync type.
func (t SyncType) Valid() bool {
	return t == SyncTypeFull || t == SyncTypeIncremental
}

// UserStatus is the account state of a dashboard user.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusPending  UserStatus = "pending"
	UserStatusDisabled UserStatus = "disabled"
)

// Valid reports whether s is a known user status.
func (s UserStatus) Valid() bool {
	return s == UserStatusActive || s == UserStatusPending || s == UserStatusDisabled
}

// DimensionKind names one of the developer classification tables.
type DimensionKind string

const (
	DimensionTeam  DimensionKind = "team"
	DimensionRole  DimensionKind = "role"
	DimensionStack DimensionKind = "stack"
)

// Valid reports whether k is a known dimension.
func (k DimensionKind) Valid() bool {
	return k == DimensionTeam || k == DimensionRole || k == DimensionStack
}
