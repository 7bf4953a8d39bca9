package azuredevops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

var testRef = driven.RepoRef{Organization: "contoso", Project: "Platform", RepositoryID: "repo-guid", Name: "api"}

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClientWithHTTPClient(server.Client(), server.URL, "contoso", "secret-pat")
	client.initialInterval = time.Millisecond
	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestClient_SendsAuthAndAPIVersion(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Empty(t, user)
		assert.Equal(t, "secret-pat", pass)
		assert.Equal(t, "7.0", r.URL.Query().Get("api-version"))
		assert.Equal(t, "/contoso/_apis/projects", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("$top"))

		writeJSON(t, w, map[string]any{"count": 1, "value": []map[string]any{{"id": "p1", "name": "Platform"}}})
	}))

	require.NoError(t, client.ValidateConnection(context.Background()))
}

func TestClient_RetriesRateLimitThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(t, w, map[string]any{"count": 1, "value": []map[string]any{{"id": "p1", "name": "Platform"}}})
	}))
	client.initialInterval = defaultInitialInterval

	start := time.Now()
	projects, err := client.ListProjects(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, int32(3), calls.Load())
	// 300ms then 450ms.
	assert.GreaterOrEqual(t, elapsed, 750*time.Millisecond)
}

func TestClient_GivesUpAfterTwoRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	err := client.ValidateConnection(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
	}))

	_, err := client.ListRepositories(context.Background(), "Missing")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RetryHonoursCancellation(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	client.initialInterval = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := client.ValidateConnection(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestListProjects_Paginates(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		skip, _ := strconv.Atoi(r.URL.Query().Get("$skip"))
		n := pageSize
		if skip > 0 {
			n = 3
		}
		value := make([]map[string]any, 0, n)
		for i := range n {
			value = append(value, map[string]any{"id": fmt.Sprintf("p%d", skip+i), "name": fmt.Sprintf("Project %d", skip+i)})
		}
		writeJSON(t, w, map[string]any{"count": n, "value": value})
	}))

	projects, err := client.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Len(t, projects, pageSize+3)
	assert.Equal(t, "p102", projects[len(projects)-1].ID)
}

func TestListRepositories(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contoso/Platform/_apis/git/repositories", r.URL.Path)
		writeJSON(t, w, map[string]any{"value": []map[string]any{{
			"id":            "repo-guid",
			"name":          "api",
			"defaultBranch": "refs/heads/main",
			"webUrl":        "https://dev.azure.com/contoso/Platform/_git/api",
			"project":       map[string]any{"name": "Platform"},
		}}})
	}))

	repos, err := client.ListRepositories(context.Background(), "Platform")
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, model.RemoteRepository{
		ID:            "repo-guid",
		Name:          "api",
		Project:       "Platform",
		DefaultBranch: "main",
		URL:           "https://dev.azure.com/contoso/Platform/_git/api",
	}, repos[0])
}

func TestListPullRequests_MapsFields(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contoso/Platform/_apis/git/repositories/repo-guid/pullrequests", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "all", q.Get("searchCriteria.status"))
		assert.Equal(t, "100", q.Get("$top"))
		assert.Equal(t, "200", q.Get("$skip"))
		assert.Equal(t, "2024-03-01T00:00:00Z", q.Get("searchCriteria.minTime"))

		writeJSON(t, w, map[string]any{"value": []map[string]any{
			{
				"pullRequestId": 7,
				"title":         "Add caching",
				"status":        "completed",
				"sourceRefName": "refs/heads/feature/cache",
				"targetRefName": "refs/heads/main",
				"createdBy":     map[string]any{"id": "u1", "displayName": "Alice", "uniqueName": "Alice@Contoso.com"},
				"creationDate":  "2024-03-01T00:00:00Z",
				"closedDate":    "2024-03-03T12:00:00Z",
				"repository":    map[string]any{"webUrl": "https://dev.azure.com/contoso/Platform/_git/api"},
			},
			{"pullRequestId": 8, "title": "Draft", "status": "abandoned", "creationDate": "2024-03-02T00:00:00Z"},
			{"pullRequestId": 9, "title": "Odd", "status": "notSet", "creationDate": "2024-03-02T00:00:00Z"},
		}})
	}))

	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	prs, err := client.ListPullRequests(context.Background(), testRef, driven.PageQuery{Since: &since, Skip: 200, Top: 100})
	require.NoError(t, err)
	require.Len(t, prs, 3)

	pr := prs[0]
	assert.Equal(t, "7", pr.ExternalID)
	assert.Equal(t, 7, pr.Number)
	assert.Equal(t, model.PRStatusCompleted, pr.Status)
	assert.Equal(t, "feature/cache", pr.SourceBranch)
	assert.Equal(t, "main", pr.TargetBranch)
	assert.Equal(t, "https://dev.azure.com/contoso/Platform/_git/api/pullrequest/7", pr.URL)
	assert.Equal(t, "alice@contoso.com", pr.CreatedBy.Login)
	assert.Equal(t, "alice@contoso.com", pr.CreatedBy.Email)
	require.NotNil(t, pr.CycleTimeDays)
	assert.InDelta(t, 2.5, *pr.CycleTimeDays, 0.001)

	assert.Equal(t, model.PRStatusClosed, prs[1].Status)
	assert.True(t, prs[1].CreatedBy.IsZero())
	assert.Nil(t, prs[1].ClosedAt)
	assert.Nil(t, prs[1].CycleTimeDays)

	assert.Equal(t, model.PRStatusUnknown, prs[2].Status)
}

func TestListPullRequests_DropsPullRequestsCreatedBeforeSince(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"value": []map[string]any{
			{"pullRequestId": 12, "title": "new", "status": "active", "creationDate": "2026-02-05T00:00:00Z"},
			{"pullRequestId": 11, "title": "old", "status": "active", "creationDate": "2026-01-05T00:00:00Z"},
		}})
	}))

	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	prs, err := client.ListPullRequests(context.Background(), testRef, driven.PageQuery{Since: &since, Top: 100})
	require.NoError(t, err)
	require.Len(t, prs, 1)
	assert.Equal(t, 12, prs[0].Number)
}

func TestGetPullRequest(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contoso/Platform/_apis/git/repositories/repo-guid/pullrequests/7", r.URL.Path)
		writeJSON(t, w, map[string]any{
			"pullRequestId": 7,
			"title":         "Add caching",
			"status":        "completed",
			"createdBy":     map[string]any{"id": "u1", "displayName": "Alice", "uniqueName": "alice@contoso.com"},
			"creationDate":  "2026-01-01T00:00:00Z",
			"closedDate":    "2026-02-10T00:00:00Z",
		})
	}))

	pr, err := client.GetPullRequest(context.Background(), testRef, 7)
	require.NoError(t, err)
	assert.Equal(t, "7", pr.ExternalID)
	assert.Equal(t, model.PRStatusCompleted, pr.Status)
	require.NotNil(t, pr.CycleTimeDays)
	assert.InDelta(t, 40.0, *pr.CycleTimeDays, 0.001)
}

func TestListPullRequestReviews(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contoso/Platform/_apis/git/repositories/repo-guid/pullrequests/7", r.URL.Path)
		writeJSON(t, w, map[string]any{
			"pullRequestId": 7,
			"reviewers": []map[string]any{
				{"id": "r1", "displayName": "Bob", "uniqueName": "bob@contoso.com", "vote": 10, "isRequired": true},
				{"id": "r2", "displayName": "Carol", "uniqueName": "carol@contoso.com", "vote": -5},
			},
		})
	}))

	reviews, err := client.ListPullRequestReviews(context.Background(), testRef, 7)
	require.NoError(t, err)
	require.Len(t, reviews, 2)

	assert.Equal(t, "7-r1", reviews[0].ExternalID)
	assert.Equal(t, model.ReviewStateApproved, reviews[0].State)
	assert.True(t, reviews[0].IsRequired)
	assert.Equal(t, "bob@contoso.com", reviews[0].Reviewer.Login)
	assert.Equal(t, model.ReviewStateWaitingForAuthor, reviews[1].State)
}

func TestListPullRequestComments_SkipsSystemAndDeleted(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contoso/Platform/_apis/git/repositories/repo-guid/pullRequests/7/threads", r.URL.Path)
		writeJSON(t, w, map[string]any{"value": []map[string]any{
			{"id": 1, "comments": []map[string]any{
				{"id": 1, "commentType": "system", "content": "Alice voted 10", "publishedDate": "2024-03-01T10:00:00Z"},
			}},
			{"id": 2, "comments": []map[string]any{
				{
					"id": 1, "commentType": "text", "content": "Looks good",
					"author":          map[string]any{"id": "r1", "displayName": "Bob", "uniqueName": "bob@contoso.com"},
					"publishedDate":   "2024-03-01T11:00:00Z",
					"lastUpdatedDate": "2024-03-01T11:30:00Z",
				},
				{"id": 2, "commentType": "text", "content": "oops", "isDeleted": true, "publishedDate": "2024-03-01T11:05:00Z"},
			}},
		}})
	}))

	comments, err := client.ListPullRequestComments(context.Background(), testRef, 7)
	require.NoError(t, err)
	require.Len(t, comments, 1)

	c := comments[0]
	assert.Equal(t, "7-2-1", c.ExternalID)
	assert.Equal(t, "2", c.ThreadID)
	assert.Equal(t, "Looks good", c.Content)
	assert.Equal(t, "bob@contoso.com", c.Author.Login)
	assert.Equal(t, time.Date(2024, 3, 1, 11, 30, 0, 0, time.UTC), c.UpdatedAt)
}

func TestListPullRequestFileChanges(t *testing.T) {
	mux := http.NewServeMux()
	base := "/contoso/Platform/_apis/git/repositories/repo-guid"

	mux.HandleFunc(base+"/pullRequests/7/iterations", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"value": []map[string]any{
			{"id": 1, "sourceRefCommit": map[string]any{"commitId": "old"}},
			{
				"id":              2,
				"sourceRefCommit": map[string]any{"commitId": "head"},
				"commonRefCommit": map[string]any{"commitId": "base"},
			},
		}})
	})
	mux.HandleFunc(base+"/pullRequests/7/iterations/2/changes", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"changeEntries": []map[string]any{
			{"changeType": "edit", "item": map[string]any{"path": "/src/a.go", "gitObjectType": "blob"}},
			{"changeType": "add", "item": map[string]any{"path": "/src", "gitObjectType": "tree", "isFolder": true}},
			{"changeType": "add", "item": map[string]any{"path": "/src/b.go", "gitObjectType": "blob"}},
		}})
	})
	mux.HandleFunc(base+"/filediffs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var req fileDiffsRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "base", req.BaseVersionCommit)
		assert.Equal(t, "head", req.TargetVersionCommit)
		assert.Len(t, req.FileDiffParams, 2)

		writeJSON(t, w, map[string]any{"value": []map[string]any{
			{"path": "/src/a.go", "lineDiffBlocks": []map[string]any{
				{"changeType": lineChangeEdit, "modifiedLinesCount": 3, "originalLinesCount": 2},
				{"changeType": lineChangeDelete, "originalLinesCount": 4},
			}},
			{"path": "/src/b.go", "lineDiffBlocks": []map[string]any{
				{"changeType": lineChangeAdd, "modifiedLinesCount": 20},
			}},
		}})
	})

	client := newTestClient(t, mux)

	changes, err := client.ListPullRequestFileChanges(context.Background(), testRef, 7)
	require.NoError(t, err)
	assert.Equal(t, []model.FileChange{
		{Path: "/src/a.go", Additions: 3, Deletions: 6},
		{Path: "/src/b.go", Additions: 20},
	}, changes)
}

func TestListPullRequestFileChanges_NoIterations(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"value": []any{}})
	}))

	changes, err := client.ListPullRequestFileChanges(context.Background(), testRef, 7)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestListCommits(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contoso/Platform/_apis/git/repositories/repo-guid/commits", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "50", q.Get("searchCriteria.$top"))
		assert.Equal(t, "50", q.Get("searchCriteria.$skip"))
		assert.Empty(t, q.Get("searchCriteria.fromDate"))

		writeJSON(t, w, map[string]any{"value": []map[string]any{{
			"commitId":     "abc123",
			"comment":      "Fix bug",
			"author":       map[string]any{"name": "Alice", "email": "Alice@Contoso.com", "date": "2024-03-05T08:00:00Z"},
			"changeCounts": map[string]any{"Add": 1, "Edit": 2, "Delete": 3},
			"remoteUrl":    "https://dev.azure.com/contoso/Platform/_git/api/commit/abc123",
		}}})
	}))

	commits, err := client.ListCommits(context.Background(), testRef, driven.PageQuery{Skip: 50, Top: 50})
	require.NoError(t, err)
	require.Len(t, commits, 1)

	c := commits[0]
	assert.Equal(t, "abc123", c.Hash)
	assert.Equal(t, "alice@contoso.com", c.Author.Login)
	assert.Equal(t, "Alice", c.Author.DisplayName)
	assert.Equal(t, 1, c.ChangesAdded)
	assert.Equal(t, 2, c.ChangesEdited)
	assert.Equal(t, 3, c.ChangesDeleted)
	assert.Equal(t, time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC), c.AuthoredAt)
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		in   string
		want model.PRStatus
	}{
		{"active", model.PRStatusActive},
		{"Completed", model.PRStatusCompleted},
		{"abandoned", model.PRStatusClosed},
		{"notSet", model.PRStatusUnknown},
		{"", model.PRStatusUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, mapStatus(tt.in))
		})
	}
}
