package httphandler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/ericfisherdev/devpulse/internal/application"
	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

// Error codes carried in the error body.
const (
	codeValidation    = "VALIDATION_ERROR"
	codeNotFound      = "NOT_FOUND"
	codeConflict      = "CONFLICT"
	codeSyncRunning   = "SYNC_IN_PROGRESS"
	codeUnauthorized  = "UNAUTHORIZED"
	codeForbidden     = "FORBIDDEN"
	codeInactive      = "ACCOUNT_INACTIVE"
	codePending       = "ACCOUNT_PENDING"
	codeRateLimited   = "RATE_LIMITED"
	codeNotConfigured = "UPSTREAM_NOT_CONFIGURED"
	codeUpstream      = "UPSTREAM_ERROR"
	codeInternal      = "INTERNAL_ERROR"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"INTERNAL_ERROR","message":"internal server error"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a coded JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeServiceError maps a service or store error to its HTTP status and
// code. Unexpected errors are logged and answered with a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, application.ErrValidation), errors.Is(err, application.ErrInvalidSyncType):
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
	case errors.Is(err, driven.ErrRepoNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "repository not found")
	case errors.Is(err, application.ErrJobNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "sync job not found")
	case errors.Is(err, driven.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "resource not found")
	case errors.Is(err, application.ErrSyncInProgress):
		writeError(w, http.StatusConflict, codeSyncRunning, "sync already in progress for this repository")
	case errors.Is(err, driven.ErrRepoAlreadyExists), errors.Is(err, driven.ErrAlreadyExists):
		writeError(w, http.StatusConflict, codeConflict, "resource already exists")
	case application.IsAuthError(err):
		writeError(w, http.StatusUnauthorized, codeUnauthorized, err.Error())
	case errors.Is(err, application.ErrAccountPending):
		writeError(w, http.StatusForbidden, codePending, "account is pending approval")
	case errors.Is(err, application.ErrAccountInactive):
		writeError(w, http.StatusForbidden, codeInactive, "account is not active")
	case errors.Is(err, application.ErrUpstreamNotConfigured):
		writeError(w, http.StatusBadRequest, codeNotConfigured, "upstream credentials are not configured")
	case errors.Is(err, application.ErrUpstream):
		logger.Warn("upstream request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, codeUpstream, "upstream request failed")
	default:
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}

// PagedResponse wraps one page of a listing.
type PagedResponse[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func newPaged[T any](items []T, total int, page model.Page) PagedResponse[T] {
	if items == nil {
		items = []T{}
	}
	return PagedResponse[T]{Items: items, Total: total, Page: page.Number, PageSize: page.Size}
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// UserResponse is the JSON representation of a dashboard account. The
// password hash is never exposed.
type UserResponse struct {
	ID           int64   `json:"id"`
	Email        string  `json:"email"`
	Name         string  `json:"name"`
	Status       string  `json:"status"`
	AccessRoleID *int64  `json:"access_role_id"`
	DeveloperID  *int64  `json:"developer_id"`
	Federated    bool    `json:"federated"`
	LastLoginAt  *string `json:"last_login_at"`
	CreatedAt    string  `json:"created_at"`
}

// MeResponse describes the authenticated caller.
type MeResponse struct {
	User        UserResponse `json:"user"`
	Role        string       `json:"role"`
	Permissions []string     `json:"permissions"`
}

// AccessRoleResponse is the JSON representation of an access role.
type AccessRoleResponse struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
	CreatedAt   string   `json:"created_at"`
}

// SyncJobResponse is the JSON representation of a sync job.
type SyncJobResponse struct {
	ID                 int64   `json:"id"`
	RepositoryID       int64   `json:"repository_id"`
	Status             string  `json:"status"`
	SyncType           string  `json:"sync_type"`
	StartedAt          *string `json:"started_at"`
	CompletedAt        *string `json:"completed_at"`
	ErrorMessage       string  `json:"error_message,omitempty"`
	PullRequestsSynced int     `json:"pull_requests_synced"`
	CommitsSynced      int     `json:"commits_synced"`
	ReviewsSynced      int     `json:"reviews_synced"`
	CommentsSynced     int     `json:"comments_synced"`
	ItemsFailed        int     `json:"items_failed"`
	CreatedAt          string  `json:"created_at"`
}

// SyncStatusResponse summarizes the sync situation of one repository.
type SyncStatusResponse struct {
	RepositoryID int64            `json:"repository_id"`
	IsLocked     bool             `json:"is_locked"`
	LastSyncAt   *string          `json:"last_sync_at"`
	LatestJob    *SyncJobResponse `json:"latest_job"`
}

// CancelResponse reports how many jobs a cancellation failed.
type CancelResponse struct {
	Cancelled int64 `json:"cancelled"`
}

// RepoResponse is the JSON representation of a mirrored repository. The
// access token is reported only as present or absent.
type RepoResponse struct {
	ID             int64   `json:"id"`
	Provider       string  `json:"provider"`
	Organization   string  `json:"organization"`
	Project        string  `json:"project"`
	Name           string  `json:"name"`
	FullName       string  `json:"full_name"`
	RemoteID       string  `json:"remote_id"`
	DefaultBranch  string  `json:"default_branch"`
	URL            string  `json:"url"`
	HasAccessToken bool    `json:"has_access_token"`
	IsActive       bool    `json:"is_active"`
	LastSyncAt     *string `json:"last_sync_at"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// PRResponse is the JSON representation of a pull request.
type PRResponse struct {
	ID            int64    `json:"id"`
	RepositoryID  int64    `json:"repository_id"`
	Number        int      `json:"number"`
	Title         string   `json:"title"`
	Status        string   `json:"status"`
	IsDraft       bool     `json:"is_draft"`
	SourceBranch  string   `json:"source_branch"`
	TargetBranch  string   `json:"target_branch"`
	URL           string   `json:"url"`
	CreatedByID   *int64   `json:"created_by_id"`
	CreatedAt     string   `json:"created_at"`
	ClosedAt      *string  `json:"closed_at"`
	CycleTimeDays *float64 `json:"cycle_time_days"`
	FilesChanged  int      `json:"files_changed"`
	LinesAdded    int      `json:"lines_added"`
	LinesDeleted  int      `json:"lines_deleted"`
}

// PRDetailResponse adds the description, reviews and comments of a single
// pull request.
type PRDetailResponse struct {
	PRResponse
	Description     string            `json:"description"`
	DescriptionHTML string            `json:"description_html"`
	Reviews         []ReviewResponse  `json:"reviews"`
	Comments        []CommentResponse `json:"comments"`
}

// ReviewResponse is the JSON representation of a single review.
type ReviewResponse struct {
	ID          int64   `json:"id"`
	ReviewerID  *int64  `json:"reviewer_id"`
	Vote        int     `json:"vote"`
	State       string  `json:"state"`
	IsRequired  bool    `json:"is_required"`
	SubmittedAt *string `json:"submitted_at"`
}

// CommentResponse is the JSON representation of a pull request comment.
type CommentResponse struct {
	ID          int64  `json:"id"`
	AuthorID    *int64 `json:"author_id"`
	ThreadID    string `json:"thread_id"`
	Content     string `json:"content"`
	ContentHTML string `json:"content_html"`
	CommentType string `json:"comment_type"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// DimensionResponse is the JSON representation of a team, role or stack.
type DimensionResponse struct {
	ID          int64  `json:"id"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

// DeveloperResponse is the JSON representation of a tracked developer.
type DeveloperResponse struct {
	ID          int64  `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	RemoteID    string `json:"remote_id"`
	TeamID      *int64 `json:"team_id"`
	RoleID      *int64 `json:"role_id"`
	StackID     *int64 `json:"stack_id"`
	IsActive    bool   `json:"is_active"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// RemoteProjectResponse is a project listed by Azure DevOps.
type RemoteProjectResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RemoteRepositoryResponse is a repository listed by Azure DevOps.
type RemoteRepositoryResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Project       string `json:"project"`
	DefaultBranch string `json:"default_branch"`
	URL           string `json:"url"`
}

// ConnectionTestResponse reports the outcome of a credential test.
type ConnectionTestResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func toUserResponse(u model.User) UserResponse {
	return UserResponse{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Status:       string(u.Status),
		AccessRoleID: u.AccessRoleID,
		DeveloperID:  u.DeveloperID,
		Federated:    u.AzureObjectID != "",
		LastLoginAt:  formatTimePtr(u.LastLoginAt),
		CreatedAt:    formatTime(u.CreatedAt),
	}
}

func permissionStrings(perms []model.Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, string(p))
	}
	return out
}

func toAccessRoleResponse(r model.AccessRole) AccessRoleResponse {
	return AccessRoleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Permissions: permissionStrings(r.Permissions),
		CreatedAt:   formatTime(r.CreatedAt),
	}
}

func toSyncJobResponse(j model.SyncJob) SyncJobResponse {
	return SyncJobResponse{
		ID:                 j.ID,
		RepositoryID:       j.RepositoryID,
		Status:             string(j.Status),
		SyncType:           string(j.SyncType),
		StartedAt:          formatTimePtr(j.StartedAt),
		CompletedAt:        formatTimePtr(j.CompletedAt),
		ErrorMessage:       j.ErrorMessage,
		PullRequestsSynced: j.PullRequestsSynced,
		CommitsSynced:      j.CommitsSynced,
		ReviewsSynced:      j.ReviewsSynced,
		CommentsSynced:     j.CommentsSynced,
		ItemsFailed:        j.ItemsFailed,
		CreatedAt:          formatTime(j.CreatedAt),
	}
}

func toSyncStatusResponse(s model.SyncState) SyncStatusResponse {
	resp := SyncStatusResponse{
		RepositoryID: s.RepositoryID,
		IsLocked:     s.IsLocked,
		LastSyncAt:   formatTimePtr(s.LastSyncAt),
	}
	if s.LatestJob != nil {
		job := toSyncJobResponse(*s.LatestJob)
		resp.LatestJob = &job
	}
	return resp
}

func toRepoResponse(repo model.Repository) RepoResponse {
	return RepoResponse{
		ID:             repo.ID,
		Provider:       string(repo.Provider),
		Organization:   repo.Organization,
		Project:        repo.Project,
		Name:           repo.Name,
		FullName:       repo.FullName(),
		RemoteID:       repo.RemoteID,
		DefaultBranch:  repo.DefaultBranch,
		URL:            repo.URL,
		HasAccessToken: repo.AccessToken != "",
		IsActive:       repo.IsActive,
		LastSyncAt:     formatTimePtr(repo.LastSyncAt),
		CreatedAt:      formatTime(repo.CreatedAt),
		UpdatedAt:      formatTime(repo.UpdatedAt),
	}
}

func toPRResponse(pr model.PullRequest) PRResponse {
	return PRResponse{
		ID:            pr.ID,
		RepositoryID:  pr.RepositoryID,
		Number:        pr.Number,
		Title:         pr.Title,
		Status:        string(pr.Status),
		IsDraft:       pr.IsDraft,
		SourceBranch:  pr.SourceBranch,
		TargetBranch:  pr.TargetBranch,
		URL:           pr.URL,
		CreatedByID:   pr.CreatedByID,
		CreatedAt:     formatTime(pr.CreatedAt),
		ClosedAt:      formatTimePtr(pr.ClosedAt),
		CycleTimeDays: pr.CycleTimeDays,
		FilesChanged:  pr.FilesChanged,
		LinesAdded:    pr.LinesAdded,
		LinesDeleted:  pr.LinesDeleted,
	}
}

func toReviewResponse(r model.Review) ReviewResponse {
	return ReviewResponse{
		ID:          r.ID,
		ReviewerID:  r.ReviewerID,
		Vote:        r.Vote,
		State:       string(r.State),
		IsRequired:  r.IsRequired,
		SubmittedAt: formatTimePtr(r.SubmittedAt),
	}
}

func toCommentResponse(c model.Comment) CommentResponse {
	return CommentResponse{
		ID:          c.ID,
		AuthorID:    c.AuthorID,
		ThreadID:    c.ThreadID,
		Content:     c.Content,
		ContentHTML: RenderMarkdown(c.Content),
		CommentType: c.CommentType,
		CreatedAt:   formatTime(c.CreatedAt),
		UpdatedAt:   formatTime(c.UpdatedAt),
	}
}

func toDimensionResponse(d model.Dimension) DimensionResponse {
	return DimensionResponse{
		ID:          d.ID,
		Kind:        string(d.Kind),
		Name:        d.Name,
		Description: d.Description,
		CreatedAt:   formatTime(d.CreatedAt),
	}
}

func toDeveloperResponse(d model.Developer) DeveloperResponse {
	return DeveloperResponse{
		ID:          d.ID,
		Login:       d.Login,
		DisplayName: d.DisplayName,
		Email:       d.Email,
		RemoteID:    d.RemoteID,
		TeamID:      d.TeamID,
		RoleID:      d.RoleID,
		StackID:     d.StackID,
		IsActive:    d.IsActive,
		CreatedAt:   formatTime(d.CreatedAt),
		UpdatedAt:   formatTime(d.UpdatedAt),
	}
}

// mapSlice converts every element of in with fn and never returns nil, so
// empty listings encode as [] rather than null.
func mapSlice[T, U any](in []T, fn func(T) U) []U {
	out := make([]U, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
