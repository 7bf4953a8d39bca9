package github_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ghAdapter "github.com/ericfisherdev/devpulse/internal/adapter/driven/github"
	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

var testRef = driven.RepoRef{Organization: "owner", Name: "repo"}

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler) *ghAdapter.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := ghAdapter.NewClientWithHTTPClient(server.Client(), server.URL+"/", "test-token")
	require.NoError(t, err)

	return client
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestValidateConnection(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		writeJSON(w, map[string]any{"id": 1, "login": "alice"})
	}))

	require.NoError(t, client.ValidateConnection(context.Background()))
}

func TestValidateConnection_Unauthorized(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]any{"message": "Bad credentials"})
	}))

	assert.Error(t, client.ValidateConnection(context.Background()))
}

func TestListProjects_UserAndOrganizations(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": 1, "login": "alice"})
	})
	mux.HandleFunc("/user/orgs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{{"id": 9, "login": "acme", "description": "Acme Corp"}})
	})

	client := newTestClient(t, mux)

	projects, err := client.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.RemoteProject{
		{ID: "1", Name: "alice"},
		{ID: "9", Name: "acme", Description: "Acme Corp"},
	}, projects)
}

func TestListRepositories_FallsBackToUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/alice/repos", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]any{"message": "Not Found"})
	})
	mux.HandleFunc("/users/alice/repos", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{{
			"id":             5,
			"name":           "dotfiles",
			"default_branch": "main",
			"html_url":       "https://github.com/alice/dotfiles",
			"owner":          map[string]any{"login": "alice"},
		}})
	})

	client := newTestClient(t, mux)

	repos, err := client.ListRepositories(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "5", repos[0].ID)
	assert.Equal(t, "alice", repos[0].Project)
	assert.Equal(t, "main", repos[0].DefaultBranch)
}

func TestListPullRequests_MapsStatusAndPage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo/pulls", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "all", q.Get("state"))
		assert.Equal(t, "3", q.Get("page"))
		assert.Equal(t, "100", q.Get("per_page"))

		writeJSON(w, []map[string]any{
			{
				"id": 1001, "number": 42, "title": "Add feature X", "state": "closed",
				"user":       map[string]any{"id": 7, "login": "Alice"},
				"head":       map[string]any{"ref": "feature-x"},
				"base":       map[string]any{"ref": "main"},
				"html_url":   "https://github.com/owner/repo/pull/42",
				"created_at": "2026-01-01T00:00:00Z",
				"closed_at":  "2026-01-02T00:00:00Z",
				"merged_at":  "2026-01-02T00:00:00Z",
			},
			{
				"id": 1002, "number": 43, "title": "Abandoned", "state": "closed",
				"user":       map[string]any{"id": 8, "login": "bob"},
				"created_at": "2026-01-01T00:00:00Z",
				"closed_at":  "2026-01-01T12:00:00Z",
			},
			{
				"id": 1003, "number": 44, "title": "WIP", "state": "open", "draft": true,
				"user":       map[string]any{"id": 8, "login": "bob"},
				"created_at": "2026-01-01T00:00:00Z",
			},
		})
	}))

	prs, err := client.ListPullRequests(context.Background(), testRef, driven.PageQuery{Skip: 200, Top: 100})
	require.NoError(t, err)
	require.Len(t, prs, 3)

	assert.Equal(t, "gh-1001", prs[0].ExternalID)
	assert.Equal(t, 42, prs[0].Number)
	assert.Equal(t, model.PRStatusCompleted, prs[0].Status)
	assert.Equal(t, "alice", prs[0].CreatedBy.Login)
	assert.Equal(t, "feature-x", prs[0].SourceBranch)
	require.NotNil(t, prs[0].CycleTimeDays)
	assert.InDelta(t, 1.0, *prs[0].CycleTimeDays, 0.001)

	assert.Equal(t, model.PRStatusClosed, prs[1].Status)
	require.NotNil(t, prs[1].CycleTimeDays)
	assert.InDelta(t, 0.5, *prs[1].CycleTimeDays, 0.001)

	assert.Equal(t, model.PRStatusActive, prs[2].Status)
	assert.True(t, prs[2].IsDraft)
	assert.Nil(t, prs[2].ClosedAt)
}

func TestListPullRequests_StopsAtSince(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "updated", r.URL.Query().Get("sort"))
		assert.Equal(t, "desc", r.URL.Query().Get("direction"))

		writeJSON(w, []map[string]any{
			{"id": 1, "number": 3, "title": "new", "state": "open", "created_at": "2026-02-10T00:00:00Z", "updated_at": "2026-02-10T00:00:00Z"},
			{
				"id": 2, "number": 1, "title": "opened earlier, merged since", "state": "closed",
				"created_at": "2026-01-01T00:00:00Z", "updated_at": "2026-02-10T00:00:00Z",
				"closed_at": "2026-02-10T00:00:00Z", "merged_at": "2026-02-10T00:00:00Z",
			},
			{"id": 3, "number": 2, "title": "untouched", "state": "open", "created_at": "2026-01-05T00:00:00Z", "updated_at": "2026-01-20T00:00:00Z"},
		})
	}))

	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	prs, err := client.ListPullRequests(context.Background(), testRef, driven.PageQuery{Since: &since, Top: 100})
	require.NoError(t, err)
	require.Len(t, prs, 2)

	merged := prs[1]
	assert.Equal(t, 1, merged.Number)
	assert.Equal(t, model.PRStatusCompleted, merged.Status)
	require.NotNil(t, merged.CycleTimeDays)
	assert.InDelta(t, 40.0, *merged.CycleTimeDays, 0.001)
}

func TestGetPullRequest(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo/pulls/42", r.URL.Path)
		writeJSON(w, map[string]any{
			"id": 1001, "number": 42, "title": "Add feature X", "state": "closed",
			"user":       map[string]any{"id": 7, "login": "alice"},
			"created_at": "2026-01-01T00:00:00Z",
			"closed_at":  "2026-01-03T00:00:00Z",
		})
	}))

	pr, err := client.GetPullRequest(context.Background(), testRef, 42)
	require.NoError(t, err)
	assert.Equal(t, "gh-1001", pr.ExternalID)
	assert.Equal(t, model.PRStatusClosed, pr.Status)
	require.NotNil(t, pr.ClosedAt)
}

func TestListPullRequestReviews_MapsStates(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo/pulls/42/reviews", r.URL.Path)
		writeJSON(w, []map[string]any{
			{"id": 1, "state": "APPROVED", "user": map[string]any{"id": 2, "login": "bob"}, "submitted_at": "2026-01-02T00:00:00Z"},
			{"id": 2, "state": "CHANGES_REQUESTED", "user": map[string]any{"id": 3, "login": "carol"}},
			{"id": 3, "state": "COMMENTED", "user": map[string]any{"id": 3, "login": "carol"}},
		})
	}))

	reviews, err := client.ListPullRequestReviews(context.Background(), testRef, 42)
	require.NoError(t, err)
	require.Len(t, reviews, 3)

	assert.Equal(t, "gh-1", reviews[0].ExternalID)
	assert.Equal(t, model.ReviewStateApproved, reviews[0].State)
	require.NotNil(t, reviews[0].SubmittedAt)
	assert.Equal(t, model.ReviewStateWaitingForAuthor, reviews[1].State)
	assert.Equal(t, model.ReviewStateNoVote, reviews[2].State)
}

func TestListPullRequestComments_MergesBothKinds(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/owner/repo/issues/42/comments", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"id": 10, "body": "LGTM", "user": map[string]any{"id": 2, "login": "bob"}, "created_at": "2026-01-02T00:00:00Z"},
		})
	})
	mux.HandleFunc("/repos/owner/repo/pulls/42/comments", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{"id": 20, "body": "nit", "user": map[string]any{"id": 2, "login": "bob"}, "created_at": "2026-01-02T00:00:00Z"},
			{"id": 21, "body": "fixed", "in_reply_to_id": 20, "user": map[string]any{"id": 7, "login": "alice"}, "created_at": "2026-01-02T01:00:00Z"},
		})
	})

	client := newTestClient(t, mux)

	comments, err := client.ListPullRequestComments(context.Background(), testRef, 42)
	require.NoError(t, err)
	require.Len(t, comments, 3)

	assert.Equal(t, "gh-issue-10", comments[0].ExternalID)
	assert.Equal(t, "gh-review-20", comments[1].ExternalID)
	assert.Equal(t, "20", comments[1].ThreadID)
	assert.Equal(t, "20", comments[2].ThreadID)
	assert.Equal(t, "alice", comments[2].Author.Login)
}

func TestListPullRequestFileChanges_Paginates(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "" {
			w.Header().Set("Link", fmt.Sprintf(`<%s?page=2>; rel="next"`, "http://"+r.Host+r.URL.Path))
			writeJSON(w, []map[string]any{{"filename": "a.go", "additions": 3, "deletions": 1}})
			return
		}
		writeJSON(w, []map[string]any{{"filename": "b.go", "additions": 5}})
	}))

	changes, err := client.ListPullRequestFileChanges(context.Background(), testRef, 42)
	require.NoError(t, err)
	assert.Equal(t, []model.FileChange{
		{Path: "a.go", Additions: 3, Deletions: 1},
		{Path: "b.go", Additions: 5},
	}, changes)
}

func TestListCommits_PrefersAccountLogin(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo/commits", r.URL.Path)
		assert.Equal(t, "2026-01-01T00:00:00Z", r.URL.Query().Get("since"))

		writeJSON(w, []map[string]any{
			{
				"sha":    "abc",
				"commit": map[string]any{"message": "fix", "author": map[string]any{"name": "Alice", "email": "Alice@Example.com", "date": "2026-01-03T00:00:00Z"}},
				"author": map[string]any{"id": 7, "login": "Alice"},
			},
			{
				"sha":    "def",
				"commit": map[string]any{"message": "docs", "author": map[string]any{"name": "Ghost", "email": "ghost@example.com", "date": "2026-01-04T00:00:00Z"}},
			},
		})
	}))

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	commits, err := client.ListCommits(context.Background(), testRef, driven.PageQuery{Since: &since, Top: 100})
	require.NoError(t, err)
	require.Len(t, commits, 2)

	assert.Equal(t, "alice", commits[0].Author.Login)
	assert.Equal(t, "alice@example.com", commits[0].Author.Email)
	assert.Equal(t, "ghost@example.com", commits[1].Author.Login)
}

func TestListCommits_LeavesFileCountersZero(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{{
			"sha":    "abc",
			"commit": map[string]any{"message": "fix", "author": map[string]any{"name": "Alice", "email": "alice@example.com", "date": "2026-01-03T00:00:00Z"}},
			"stats":  map[string]any{"additions": 120, "deletions": 40, "total": 160},
		}})
	}))

	commits, err := client.ListCommits(context.Background(), testRef, driven.PageQuery{Top: 100})
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Zero(t, commits[0].ChangesAdded)
	assert.Zero(t, commits[0].ChangesEdited)
	assert.Zero(t, commits[0].ChangesDeleted)
}

func TestClient_RetriesServerErrorThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, []map[string]any{{
			"sha":    "abc",
			"commit": map[string]any{"message": "fix", "author": map[string]any{"name": "Alice", "email": "alice@example.com", "date": "2026-01-03T00:00:00Z"}},
		}})
	}))

	start := time.Now()
	commits, err := client.ListCommits(context.Background(), testRef, driven.PageQuery{Top: 100})
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, int32(3), calls.Load())
	// 300ms then 450ms.
	assert.GreaterOrEqual(t, elapsed, 750*time.Millisecond)
}

func TestClient_GivesUpAfterTwoRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := client.ListCommits(context.Background(), testRef, driven.PageQuery{Top: 100})
	require.Error(t, err)

	var ghErr *gh.ErrorResponse
	require.ErrorAs(t, err, &ghErr)
	assert.Equal(t, http.StatusServiceUnavailable, ghErr.Response.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]any{"message": "Bad credentials"})
	}))

	require.Error(t, client.ValidateConnection(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
}
