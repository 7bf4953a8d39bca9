package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
)

// RepoRef addresses a repository on the upstream service.
type RepoRef struct {
	Organization string
	Project      string
	RepositoryID string
	Name         string
}

// RefFor builds the upstream reference of a stored repository.
func RefFor(repo model.Repository) RepoRef {
	return RepoRef{
		Organization: repo.Organization,
		Project:      repo.Project,
		RepositoryID: repo.RemoteID,
		Name:         repo.Name,
	}
}

// PageQuery selects one page of a listing. Since, when set, restricts the
// listing to items at or after that time: commits by author date, pull
// requests by the latest activity the provider can filter on.
type PageQuery struct {
	Since *time.Time
	Skip  int
	Top   int
}

// GitClient defines the driven port for reading from an upstream
// source-control service. All methods are read-only.
type GitClient interface {
	// ValidateConnection performs a cheap authenticated call to check that
	// the credentials work.
	ValidateConnection(ctx context.Context) error

	ListProjects(ctx context.Context) ([]model.RemoteProject, error)
	ListRepositories(ctx context.Context, project string) ([]model.RemoteRepository, error)

	// ListPullRequests returns one page of pull requests. A page shorter than
	// q.Top means the listing is exhausted.
	ListPullRequests(ctx context.Context, ref RepoRef, q PageQuery) ([]model.PullRequest, error)

	// GetPullRequest fetches a single pull request by number.
	GetPullRequest(ctx context.Context, ref RepoRef, number int) (model.PullRequest, error)

	ListPullRequestReviews(ctx context.Context, ref RepoRef, number int) ([]model.Review, error)
	ListPullRequestComments(ctx context.Context, ref RepoRef, number int) ([]model.Comment, error)
	ListPullRequestFileChanges(ctx context.Context, ref RepoRef, number int) ([]model.FileChange, error)

	// ListCommits returns one page of commits, same contract as ListPullRequests.
	ListCommits(ctx context.Context, ref RepoRef, q PageQuery) ([]model.Commit, error)
}

// IdentityProvider resolves a federated access token into a user identity.
type IdentityProvider interface {
	Profile(ctx context.Context, accessToken string) (*model.ExternalIdentity, error)
}
