// Package github implements the GitClient port using the go-github library.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
	"github.com/ericfisherdev/devpulse/internal/metrics"
)

const (
	provider = "github"
	maxPage  = 100

	defaultInitialInterval = 300 * time.Millisecond
	backoffMultiplier      = 1.5
	maxRetries             = 2
)

// Compile-time interface satisfaction check.
var _ driven.GitClient = (*Client)(nil)

// Client implements the driven.GitClient port using the go-github library.
// Projects map onto GitHub organizations; RepoRef.Organization is the owner.
type Client struct {
	gh *gh.Client
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. retry with exponential backoff on 429, 5xx and transport errors
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. httpcache (ETag-based conditional request caching)
//  4. go-github (GitHub REST API client with PAT auth)
//
// A non-empty baseURL targets a GitHub Enterprise Server instance.
func NewClient(baseURL, token string) (*Client, error) {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	cacheTransport.Transport = &metricsTransport{base: http.DefaultTransport}
	c := newClient(github_ratelimit.NewClient(cacheTransport), token)

	if baseURL != "" {
		client, err := c.gh.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing enterprise URL: %w", err)
		}
		c.gh = client
	}

	return c, nil
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
// The retry policy still wraps the given client's transport.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, token string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	c := newClient(httpClient, token)
	c.gh.BaseURL = u
	return c, nil
}

func newClient(httpClient *http.Client, token string) *Client {
	retrying := *httpClient
	retrying.Transport = &retryTransport{base: httpClient.Transport, initialInterval: defaultInitialInterval}
	return &Client{gh: gh.NewClient(&retrying).WithAuthToken(token)}
}

// retryTransport repeats body-less requests that fail with 429, a 5xx status
// or a transport error. When the retries run out the last response is
// returned as is, so go-github still builds its ErrorResponse from it.
type retryTransport struct {
	base            http.RoundTripper
	initialInterval time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if req.Body != nil && req.Body != http.NoBody {
		return base.RoundTrip(req)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = t.initialInterval
	policy.Multiplier = backoffMultiplier
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	var resp *http.Response
	op := func() error {
		var err error
		resp, err = base.RoundTrip(req)
		if err != nil {
			if req.Context().Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			resp = nil
		}
		metrics.RecordUpstreamRetry(provider)
		slog.Debug("retrying github request", "method", req.Method, "path", req.URL.Path, "wait", wait, "error", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), req.Context())
	err := backoff.RetryNotify(op, b, notify)
	if resp != nil {
		return resp, nil
	}
	return nil, err
}

// metricsTransport counts upstream responses by status code.
type metricsTransport struct {
	base http.RoundTripper
}

func (t *metricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		metrics.RecordUpstreamRequest(provider, 0)
		return nil, err
	}
	metrics.RecordUpstreamRequest(provider, resp.StatusCode)
	return resp, nil
}

// ValidateConnection fetches the authenticated user.
func (c *Client) ValidateConnection(ctx context.Context) error {
	user, resp, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return fmt.Errorf("fetching authenticated user: %w", err)
	}
	logRateLimit(resp, "user", 0, 1)
	slog.Debug("github connection validated", "login", user.GetLogin())
	return nil
}

// ListProjects returns the authenticated user's own account followed by the
// organizations they belong to.
func (c *Client) ListProjects(ctx context.Context) ([]model.RemoteProject, error) {
	user, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("fetching authenticated user: %w", err)
	}

	projects := []model.RemoteProject{{
		ID:   strconv.FormatInt(user.GetID(), 10),
		Name: user.GetLogin(),
	}}

	opts := &gh.ListOptions{PerPage: maxPage}
	for {
		orgs, resp, err := c.gh.Organizations.List(ctx, "", opts)
		if err != nil {
			return nil, fmt.Errorf("listing organizations (page %d): %w", opts.Page, err)
		}

		for _, o := range orgs {
			projects = append(projects, model.RemoteProject{
				ID:          strconv.FormatInt(o.GetID(), 10),
				Name:        o.GetLogin(),
				Description: o.GetDescription(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return projects, nil
}

// ListRepositories returns the repositories of an organization, falling back
// to a user account when no organization has that name.
func (c *Client) ListRepositories(ctx context.Context, owner string) ([]model.RemoteRepository, error) {
	repos, err := c.listOrgRepositories(ctx, owner)
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
		repos, err = c.listUserRepositories(ctx, owner)
	}
	if err != nil {
		return nil, fmt.Errorf("listing repositories for %s: %w", owner, err)
	}

	result := make([]model.RemoteRepository, 0, len(repos))
	for _, r := range repos {
		result = append(result, model.RemoteRepository{
			ID:            strconv.FormatInt(r.GetID(), 10),
			Name:          r.GetName(),
			Project:       r.GetOwner().GetLogin(),
			DefaultBranch: r.GetDefaultBranch(),
			URL:           r.GetHTMLURL(),
		})
	}
	return result, nil
}

func (c *Client) listOrgRepositories(ctx context.Context, org string) ([]*gh.Repository, error) {
	opts := &gh.RepositoryListByOrgOptions{ListOptions: gh.ListOptions{PerPage: maxPage}}
	var all []*gh.Repository

	for {
		repos, resp, err := c.gh.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, repos...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

func (c *Client) listUserRepositories(ctx context.Context, user string) ([]*gh.Repository, error) {
	opts := &gh.RepositoryListByUserOptions{ListOptions: gh.ListOptions{PerPage: maxPage}}
	var all []*gh.Repository

	for {
		repos, resp, err := c.gh.Repositories.ListByUser(ctx, user, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, repos...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// pageOptions converts a skip/top window into a GitHub page. Skip is
// expected to be a multiple of top.
func pageOptions(q driven.PageQuery) gh.ListOptions {
	top := q.Top
	if top <= 0 || top > maxPage {
		top = maxPage
	}
	return gh.ListOptions{PerPage: top, Page: q.Skip/top + 1}
}

// ListPullRequests returns one page of pull requests in every state, most
// recently updated first. When q.Since is set the page is cut at the first
// pull request not updated since then, which ends the listing.
func (c *Client) ListPullRequests(ctx context.Context, ref driven.RepoRef, q driven.PageQuery) ([]model.PullRequest, error) {
	opts := &gh.PullRequestListOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: pageOptions(q),
	}

	prs, resp, err := c.gh.PullRequests.List(ctx, ref.Organization, ref.Name, opts)
	if err != nil {
		return nil, fmt.Errorf("listing pull requests for %s/%s (page %d): %w", ref.Organization, ref.Name, opts.Page, err)
	}
	logRateLimit(resp, ref.Organization+"/"+ref.Name, opts.Page, len(prs))

	result := make([]model.PullRequest, 0, len(prs))
	for _, pr := range prs {
		if q.Since != nil && pr.GetUpdatedAt().Before(*q.Since) {
			break
		}
		result = append(result, mapPullRequest(pr))
	}
	return result, nil
}

// GetPullRequest fetches one pull request by number.
func (c *Client) GetPullRequest(ctx context.Context, ref driven.RepoRef, number int) (model.PullRequest, error) {
	pr, _, err := c.gh.PullRequests.Get(ctx, ref.Organization, ref.Name, number)
	if err != nil {
		return model.PullRequest{}, fmt.Errorf("getting pull request %s/%s#%d: %w", ref.Organization, ref.Name, number, err)
	}
	return mapPullRequest(pr), nil
}

// ListPullRequestReviews returns every submitted review of a pull request.
func (c *Client) ListPullRequestReviews(ctx context.Context, ref driven.RepoRef, number int) ([]model.Review, error) {
	opts := &gh.ListOptions{PerPage: maxPage}
	var all []model.Review

	for {
		reviews, resp, err := c.gh.PullRequests.ListReviews(ctx, ref.Organization, ref.Name, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing reviews for %s/%s#%d (page %d): %w", ref.Organization, ref.Name, number, opts.Page, err)
		}

		for _, r := range reviews {
			all = append(all, mapReview(r))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if all == nil {
		all = []model.Review{}
	}
	return all, nil
}

// ListPullRequestComments returns the conversation comments followed by the
// inline review comments of a pull request.
func (c *Client) ListPullRequestComments(ctx context.Context, ref driven.RepoRef, number int) ([]model.Comment, error) {
	var all []model.Comment

	issueOpts := &gh.IssueListCommentsOptions{ListOptions: gh.ListOptions{PerPage: maxPage}}
	for {
		comments, resp, err := c.gh.Issues.ListComments(ctx, ref.Organization, ref.Name, number, issueOpts)
		if err != nil {
			return nil, fmt.Errorf("listing issue comments for %s/%s#%d (page %d): %w", ref.Organization, ref.Name, number, issueOpts.Page, err)
		}

		for _, cm := range comments {
			all = append(all, mapIssueComment(cm))
		}

		if resp.NextPage == 0 {
			break
		}
		issueOpts.Page = resp.NextPage
	}

	reviewOpts := &gh.PullRequestListCommentsOptions{ListOptions: gh.ListOptions{PerPage: maxPage}}
	for {
		comments, resp, err := c.gh.PullRequests.ListComments(ctx, ref.Organization, ref.Name, number, reviewOpts)
		if err != nil {
			return nil, fmt.Errorf("listing review comments for %s/%s#%d (page %d): %w", ref.Organization, ref.Name, number, reviewOpts.Page, err)
		}

		for _, cm := range comments {
			all = append(all, mapReviewComment(cm))
		}

		if resp.NextPage == 0 {
			break
		}
		reviewOpts.Page = resp.NextPage
	}

	if all == nil {
		all = []model.Comment{}
	}
	return all, nil
}

// ListPullRequestFileChanges returns per-file line counts of a pull request.
func (c *Client) ListPullRequestFileChanges(ctx context.Context, ref driven.RepoRef, number int) ([]model.FileChange, error) {
	opts := &gh.ListOptions{PerPage: maxPage}
	var all []model.FileChange

	for {
		files, resp, err := c.gh.PullRequests.ListFiles(ctx, ref.Organization, ref.Name, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing files for %s/%s#%d (page %d): %w", ref.Organization, ref.Name, number, opts.Page, err)
		}

		for _, f := range files {
			all = append(all, model.FileChange{
				Path:      f.GetFilename(),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if all == nil {
		all = []model.FileChange{}
	}
	return all, nil
}

// ListCommits returns one page of commits on the default branch.
func (c *Client) ListCommits(ctx context.Context, ref driven.RepoRef, q driven.PageQuery) ([]model.Commit, error) {
	opts := &gh.CommitsListOptions{ListOptions: pageOptions(q)}
	if q.Since != nil {
		opts.Since = *q.Since
	}

	commits, resp, err := c.gh.Repositories.ListCommits(ctx, ref.Organization, ref.Name, opts)
	if err != nil {
		return nil, fmt.Errorf("listing commits for %s/%s (page %d): %w", ref.Organization, ref.Name, opts.Page, err)
	}
	logRateLimit(resp, ref.Organization+"/"+ref.Name+"/commits", opts.Page, len(commits))

	result := make([]model.Commit, 0, len(commits))
	for _, rc := range commits {
		result = append(result, mapCommit(rc))
	}
	return result, nil
}

// mapPullRequest converts a go-github PullRequest to a domain model PullRequest.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapPullRequest(pr *gh.PullRequest) model.PullRequest {
	status := model.PRStatusActive
	var closedAt *time.Time

	switch {
	case !pr.GetMergedAt().IsZero():
		status = model.PRStatusCompleted
		t := pr.GetMergedAt().UTC()
		closedAt = &t
	case pr.GetState() == "closed":
		status = model.PRStatusClosed
		if !pr.GetClosedAt().IsZero() {
			t := pr.GetClosedAt().UTC()
			closedAt = &t
		}
	case pr.GetState() != "open":
		status = model.PRStatusUnknown
	}

	createdAt := pr.GetCreatedAt().UTC()

	return model.PullRequest{
		ExternalID:    "gh-" + strconv.FormatInt(pr.GetID(), 10),
		Number:        pr.GetNumber(),
		Title:         pr.GetTitle(),
		Description:   pr.GetBody(),
		Status:        status,
		IsDraft:       pr.GetDraft(),
		SourceBranch:  pr.GetHead().GetRef(),
		TargetBranch:  pr.GetBase().GetRef(),
		URL:           pr.GetHTMLURL(),
		CreatedAt:     createdAt,
		ClosedAt:      closedAt,
		CycleTimeDays: model.CycleTimeDays(createdAt, closedAt),
		CreatedBy:     mapUser(pr.GetUser()),
	}
}

// mapReview converts a go-github PullRequestReview to a domain model Review,
// translating the review state onto the Azure-style vote scale.
func mapReview(r *gh.PullRequestReview) model.Review {
	vote := 0
	switch strings.ToUpper(r.GetState()) {
	case "APPROVED":
		vote = 10
	case "CHANGES_REQUESTED":
		vote = -5
	}

	review := model.Review{
		ExternalID: "gh-" + strconv.FormatInt(r.GetID(), 10),
		Vote:       vote,
		State:      model.ReviewStateFromVote(vote),
		Reviewer:   mapUser(r.GetUser()),
	}
	if submitted := r.GetSubmittedAt(); !submitted.IsZero() {
		t := submitted.UTC()
		review.SubmittedAt = &t
	}
	return review
}

// mapIssueComment converts a go-github IssueComment to a domain model Comment.
func mapIssueComment(c *gh.IssueComment) model.Comment {
	return model.Comment{
		ExternalID:  "gh-issue-" + strconv.FormatInt(c.GetID(), 10),
		ThreadID:    "conversation",
		Content:     c.GetBody(),
		CommentType: "text",
		CreatedAt:   c.GetCreatedAt().UTC(),
		UpdatedAt:   c.GetUpdatedAt().UTC(),
		Author:      mapUser(c.GetUser()),
	}
}

// mapReviewComment converts an inline PullRequestComment to a domain model
// Comment. Replies share the thread of the comment they answer.
func mapReviewComment(c *gh.PullRequestComment) model.Comment {
	thread := c.GetID()
	if c.InReplyTo != nil {
		thread = c.GetInReplyTo()
	}

	return model.Comment{
		ExternalID:  "gh-review-" + strconv.FormatInt(c.GetID(), 10),
		ThreadID:    strconv.FormatInt(thread, 10),
		Content:     c.GetBody(),
		CommentType: "codeChange",
		CreatedAt:   c.GetCreatedAt().UTC(),
		UpdatedAt:   c.GetUpdatedAt().UTC(),
		Author:      mapUser(c.GetUser()),
	}
}

// mapCommit converts a go-github RepositoryCommit. The list endpoint carries
// no per-commit stats, so the change counters stay zero.
func mapCommit(rc *gh.RepositoryCommit) model.Commit {
	author := rc.GetCommit().GetAuthor()
	email := strings.ToLower(strings.TrimSpace(author.GetEmail()))

	identity := model.RemoteIdentity{
		Login:       email,
		DisplayName: author.GetName(),
		Email:       email,
	}
	if u := rc.GetAuthor(); u != nil && u.GetLogin() != "" {
		identity.RemoteID = strconv.FormatInt(u.GetID(), 10)
		identity.Login = strings.ToLower(u.GetLogin())
	}

	return model.Commit{
		Hash:       rc.GetSHA(),
		Message:    rc.GetCommit().GetMessage(),
		AuthoredAt: author.GetDate().UTC(),
		URL:        rc.GetHTMLURL(),
		Author:     identity,
	}
}

func mapUser(u *gh.User) model.RemoteIdentity {
	if u == nil {
		return model.RemoteIdentity{}
	}
	name := u.GetName()
	if name == "" {
		name = u.GetLogin()
	}
	return model.RemoteIdentity{
		RemoteID:    strconv.FormatInt(u.GetID(), 10),
		Login:       strings.ToLower(u.GetLogin()),
		DisplayName: name,
		Email:       strings.ToLower(u.GetEmail()),
	}
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 && resp.Rate.Limit > 0 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}
