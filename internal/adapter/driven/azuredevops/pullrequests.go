package azuredevops

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

// fileDiffBatch bounds the number of paths sent in one filediffs request.
const fileDiffBatch = 50

// ListPullRequests returns one page of pull requests in every status. When
// q.Since is set only pull requests created at or after it are returned;
// the list endpoint has no update time to filter on, so pull requests closed
// later are picked up through GetPullRequest.
func (c *Client) ListPullRequests(ctx context.Context, ref driven.RepoRef, q driven.PageQuery) ([]model.PullRequest, error) {
	query := url.Values{}
	query.Set("searchCriteria.status", "all")
	query.Set("$top", strconv.Itoa(topOrDefault(q.Top)))
	query.Set("$skip", strconv.Itoa(q.Skip))
	if q.Since != nil {
		query.Set("searchCriteria.minTime", q.Since.UTC().Format(time.RFC3339))
	}

	var resp listResponse[pullRequest]
	if err := c.get(ctx, c.repoURL(ref, "pullrequests"), query, &resp); err != nil {
		return nil, fmt.Errorf("list pull requests for %s (skip %d): %w", ref.Name, q.Skip, err)
	}

	prs := make([]model.PullRequest, 0, len(resp.Value))
	for _, pr := range resp.Value {
		if q.Since != nil && pr.CreationDate.Before(*q.Since) {
			continue
		}
		prs = append(prs, mapPullRequest(pr))
	}
	return prs, nil
}

// GetPullRequest fetches one pull request by ID.
func (c *Client) GetPullRequest(ctx context.Context, ref driven.RepoRef, number int) (model.PullRequest, error) {
	var pr pullRequest
	if err := c.get(ctx, c.repoURL(ref, "pullrequests", strconv.Itoa(number)), nil, &pr); err != nil {
		return model.PullRequest{}, fmt.Errorf("get pull request %s!%d: %w", ref.Name, number, err)
	}
	return mapPullRequest(pr), nil
}

// ListPullRequestReviews returns the reviewer votes recorded on a pull request.
func (c *Client) ListPullRequestReviews(ctx context.Context, ref driven.RepoRef, number int) ([]model.Review, error) {
	var pr pullRequest
	if err := c.get(ctx, c.repoURL(ref, "pullrequests", strconv.Itoa(number)), nil, &pr); err != nil {
		return nil, fmt.Errorf("get reviewers for %s!%d: %w", ref.Name, number, err)
	}

	reviews := make([]model.Review, 0, len(pr.Reviewers))
	for _, r := range pr.Reviewers {
		reviews = append(reviews, model.Review{
			ExternalID: fmt.Sprintf("%d-%s", number, r.ID),
			Vote:       r.Vote,
			State:      model.ReviewStateFromVote(r.Vote),
			IsRequired: r.IsRequired,
			Reviewer:   r.toRemote(),
		})
	}
	return reviews, nil
}

// ListPullRequestComments returns the human comments of every thread.
// System-generated and deleted comments are skipped.
func (c *Client) ListPullRequestComments(ctx context.Context, ref driven.RepoRef, number int) ([]model.Comment, error) {
	var resp listResponse[commentThread]
	if err := c.get(ctx, c.repoURL(ref, "pullRequests", strconv.Itoa(number), "threads"), nil, &resp); err != nil {
		return nil, fmt.Errorf("list threads for %s!%d: %w", ref.Name, number, err)
	}

	var comments []model.Comment
	for _, thread := range resp.Value {
		threadID := strconv.Itoa(thread.ID)
		for _, cm := range thread.Comments {
			if cm.IsDeleted || strings.EqualFold(cm.CommentType, "system") {
				continue
			}

			mapped := model.Comment{
				ExternalID:  fmt.Sprintf("%d-%d-%d", number, thread.ID, cm.ID),
				ThreadID:    threadID,
				Content:     cm.Content,
				CommentType: cm.CommentType,
				CreatedAt:   cm.PublishedDate.UTC(),
				UpdatedAt:   cm.LastUpdatedDate.UTC(),
			}
			if cm.Author != nil {
				mapped.Author = cm.Author.toRemote()
			}
			if mapped.UpdatedAt.IsZero() {
				mapped.UpdatedAt = mapped.CreatedAt
			}
			comments = append(comments, mapped)
		}
	}

	if comments == nil {
		comments = []model.Comment{}
	}
	return comments, nil
}

// ListPullRequestFileChanges returns per-file line counts of the latest
// iteration, diffed against the merge base.
func (c *Client) ListPullRequestFileChanges(ctx context.Context, ref driven.RepoRef, number int) ([]model.FileChange, error) {
	prPath := []string{"pullRequests", strconv.Itoa(number)}

	var iterations listResponse[iteration]
	if err := c.get(ctx, c.repoURL(ref, append(prPath, "iterations")...), nil, &iterations); err != nil {
		return nil, fmt.Errorf("list iterations for %s!%d: %w", ref.Name, number, err)
	}
	if len(iterations.Value) == 0 {
		return []model.FileChange{}, nil
	}

	latest := iterations.Value[len(iterations.Value)-1]
	entries, err := c.iterationChanges(ctx, ref, prPath, latest.ID)
	if err != nil {
		return nil, fmt.Errorf("list changes for %s!%d: %w", ref.Name, number, err)
	}

	base := latest.CommonRefCommit
	if base == nil {
		base = latest.TargetRefCommit
	}
	if base == nil || latest.SourceRefCommit == nil {
		return changesWithoutCounts(entries), nil
	}

	changes := make([]model.FileChange, 0, len(entries))
	for start := 0; start < len(entries); start += fileDiffBatch {
		end := min(start+fileDiffBatch, len(entries))

		req := fileDiffsRequest{
			BaseVersionCommit:   base.CommitID,
			TargetVersionCommit: latest.SourceRefCommit.CommitID,
		}
		for _, e := range entries[start:end] {
			req.FileDiffParams = append(req.FileDiffParams, fileDiffParam{Path: e.Item.Path, OriginalPath: e.OriginalPath})
		}

		var diffs listResponse[fileDiff]
		if err := c.post(ctx, c.repoURL(ref, "filediffs"), req, &diffs); err != nil {
			return nil, fmt.Errorf("diff files for %s!%d: %w", ref.Name, number, err)
		}

		for _, d := range diffs.Value {
			changes = append(changes, countLines(d))
		}
	}

	return changes, nil
}

// iterationChanges walks the paginated change list of one iteration and
// keeps file entries only.
func (c *Client) iterationChanges(ctx context.Context, ref driven.RepoRef, prPath []string, iterationID int) ([]changeEntry, error) {
	target := c.repoURL(ref, append(prPath, "iterations", strconv.Itoa(iterationID), "changes")...)

	var entries []changeEntry
	skip := 0
	for {
		query := url.Values{}
		query.Set("$top", strconv.Itoa(pageSize))
		query.Set("$skip", strconv.Itoa(skip))

		var page iterationChanges
		if err := c.get(ctx, target, query, &page); err != nil {
			return nil, err
		}

		for _, e := range page.ChangeEntries {
			if e.Item.IsFolder || e.Item.Path == "" {
				continue
			}
			if e.Item.GitObjectType != "" && e.Item.GitObjectType != "blob" {
				continue
			}
			entries = append(entries, e)
		}

		if page.NextSkip <= skip || len(page.ChangeEntries) == 0 {
			break
		}
		skip = page.NextSkip
	}
	return entries, nil
}

func changesWithoutCounts(entries []changeEntry) []model.FileChange {
	changes := make([]model.FileChange, 0, len(entries))
	for _, e := range entries {
		changes = append(changes, model.FileChange{Path: e.Item.Path})
	}
	return changes
}

func countLines(d fileDiff) model.FileChange {
	fc := model.FileChange{Path: d.Path}
	for _, b := range d.LineDiffBlocks {
		switch b.ChangeType {
		case lineChangeAdd:
			fc.Additions += b.ModifiedLinesCount
		case lineChangeDelete:
			fc.Deletions += b.OriginalLinesCount
		case lineChangeEdit:
			fc.Additions += b.ModifiedLinesCount
			fc.Deletions += b.OriginalLinesCount
		}
	}
	return fc
}

// ListCommits returns one page of commits on the default branch.
func (c *Client) ListCommits(ctx context.Context, ref driven.RepoRef, q driven.PageQuery) ([]model.Commit, error) {
	query := url.Values{}
	query.Set("searchCriteria.$top", strconv.Itoa(topOrDefault(q.Top)))
	query.Set("searchCriteria.$skip", strconv.Itoa(q.Skip))
	if q.Since != nil {
		query.Set("searchCriteria.fromDate", q.Since.UTC().Format(time.RFC3339))
	}

	var resp listResponse[gitCommit]
	if err := c.get(ctx, c.repoURL(ref, "commits"), query, &resp); err != nil {
		return nil, fmt.Errorf("list commits for %s (skip %d): %w", ref.Name, q.Skip, err)
	}

	commits := make([]model.Commit, 0, len(resp.Value))
	for _, gc := range resp.Value {
		email := strings.ToLower(strings.TrimSpace(gc.Author.Email))
		commits = append(commits, model.Commit{
			Hash:           gc.CommitID,
			Message:        gc.Comment,
			AuthoredAt:     gc.Author.Date.UTC(),
			URL:            gc.RemoteURL,
			ChangesAdded:   gc.ChangeCounts.Add,
			ChangesEdited:  gc.ChangeCounts.Edit,
			ChangesDeleted: gc.ChangeCounts.Delete,
			Author: model.RemoteIdentity{
				Login:       email,
				DisplayName: gc.Author.Name,
				Email:       email,
			},
		})
	}
	return commits, nil
}

func mapPullRequest(pr pullRequest) model.PullRequest {
	m := model.PullRequest{
		ExternalID:   strconv.Itoa(pr.PullRequestID),
		Number:       pr.PullRequestID,
		Title:        pr.Title,
		Description:  pr.Description,
		Status:       mapStatus(pr.Status),
		IsDraft:      pr.IsDraft,
		SourceBranch: trimRef(pr.SourceRefName),
		TargetBranch: trimRef(pr.TargetRefName),
		CreatedAt:    pr.CreationDate.UTC(),
	}

	if pr.Repository.WebURL != "" {
		m.URL = fmt.Sprintf("%s/pullrequest/%d", pr.Repository.WebURL, pr.PullRequestID)
	}
	if pr.CreatedBy != nil {
		m.CreatedBy = pr.CreatedBy.toRemote()
	}
	// Azure reports a zero closedDate on open pull requests.
	if pr.ClosedDate != nil && !pr.ClosedDate.IsZero() {
		closed := pr.ClosedDate.UTC()
		m.ClosedAt = &closed
	}
	m.CycleTimeDays = model.CycleTimeDays(m.CreatedAt, m.ClosedAt)

	return m
}

func topOrDefault(top int) int {
	if top <= 0 {
		return pageSize
	}
	return top
}
