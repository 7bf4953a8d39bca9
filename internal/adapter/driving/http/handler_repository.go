package httphandler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

// CreateRepoRequest is the JSON body for registering a repository.
type CreateRepoRequest struct {
	Provider      string `json:"provider" validate:"required,oneof=azure_devops github"`
	Organization  string `json:"organization" validate:"required,max=200"`
	Project       string `json:"project" validate:"required_if=Provider azure_devops,max=200"`
	Name          string `json:"name" validate:"required,max=200"`
	RemoteID      string `json:"remote_id" validate:"max=200"`
	DefaultBranch string `json:"default_branch" validate:"max=200"`
	URL           string `json:"url" validate:"omitempty,url"`
	AccessToken   string `json:"access_token"`
	IsActive      *bool  `json:"is_active"`
}

// UpdateRepoRequest is the JSON body for editing a repository. Omitted
// fields are left unchanged; an empty access_token clears the override.
type UpdateRepoRequest struct {
	Project       *string `json:"project" validate:"omitempty,max=200"`
	Name          *string `json:"name" validate:"omitempty,min=1,max=200"`
	RemoteID      *string `json:"remote_id" validate:"omitempty,max=200"`
	DefaultBranch *string `json:"default_branch" validate:"omitempty,max=200"`
	URL           *string `json:"url" validate:"omitempty,url"`
	AccessToken   *string `json:"access_token"`
	IsActive      *bool   `json:"is_active"`
}

func (h *Handler) repositoryRoutes(r chi.Router) {
	read := requirePermission(model.PermKPIsRead)
	write := requirePermission(model.PermRepositoriesWrite)

	r.With(read).Get("/", h.ListRepos)
	r.With(write).Post("/", h.CreateRepo)
	r.With(read).Get("/{id}", h.GetRepo)
	r.With(write).Put("/{id}", h.UpdateRepo)
	r.With(write).Delete("/{id}", h.DeleteRepo)
	r.With(read).Get("/{id}/pull-requests", h.ListRepoPullRequests)
}

// ListRepos returns all registered repositories.
func (h *Handler) ListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := h.repos.ListAll(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, mapSlice(repos, toRepoResponse))
}

// CreateRepo registers a repository for syncing.
func (h *Handler) CreateRepo(w http.ResponseWriter, r *http.Request) {
	var req CreateRepoRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	repo := model.Repository{
		Provider:      model.Provider(req.Provider),
		Organization:  strings.TrimSpace(req.Organization),
		Project:       strings.TrimSpace(req.Project),
		Name:          strings.TrimSpace(req.Name),
		RemoteID:      strings.TrimSpace(req.RemoteID),
		DefaultBranch: req.DefaultBranch,
		URL:           req.URL,
		AccessToken:   req.AccessToken,
		IsActive:      req.IsActive == nil || *req.IsActive,
	}
	if repo.RemoteID == "" {
		repo.RemoteID = repo.Name
	}

	created, err := h.repos.Create(r.Context(), repo)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("repository registered", "repo", created.FullName(), "id", created.ID)
	writeJSON(w, http.StatusCreated, toRepoResponse(created))
}

// GetRepo returns a single repository.
func (h *Handler) GetRepo(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.loadRepo(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, toRepoResponse(*repo))
}

// UpdateRepo edits a repository.
func (h *Handler) UpdateRepo(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.loadRepo(w, r)
	if !ok {
		return
	}
	var req UpdateRepoRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if req.Project != nil {
		repo.Project = strings.TrimSpace(*req.Project)
	}
	if req.Name != nil {
		repo.Name = strings.TrimSpace(*req.Name)
	}
	if req.RemoteID != nil {
		repo.RemoteID = strings.TrimSpace(*req.RemoteID)
	}
	if req.DefaultBranch != nil {
		repo.DefaultBranch = *req.DefaultBranch
	}
	if req.URL != nil {
		repo.URL = *req.URL
	}
	if req.AccessToken != nil {
		repo.AccessToken = *req.AccessToken
	}
	if req.IsActive != nil {
		repo.IsActive = *req.IsActive
	}
	if repo.Provider == model.ProviderAzureDevOps && repo.Project == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "project is required")
		return
	}

	if err := h.repos.Update(r.Context(), *repo); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	updated, ok := h.loadRepo(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toRepoResponse(*updated))
}

// DeleteRepo removes a repository and everything mirrored from it.
func (h *Handler) DeleteRepo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.repos.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("repository removed", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// ListRepoPullRequests returns one page of a repository's pull requests.
func (h *Handler) ListRepoPullRequests(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.loadRepo(w, r)
	if !ok {
		return
	}
	page := pageFromQuery(r)

	prs, total, err := h.prs.ListByRepository(r.Context(), repo.ID, page)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newPaged(mapSlice(prs, toPRResponse), total, page))
}

// GetPullRequest returns a pull request with its reviews, comments and
// rendered description.
func (h *Handler) GetPullRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	pr, err := h.prs.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if pr == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "pull request not found")
		return
	}

	reviews, err := h.reviews.GetReviewsByPR(r.Context(), pr.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	comments, err := h.reviews.GetCommentsByPR(r.Context(), pr.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, PRDetailResponse{
		PRResponse:      toPRResponse(*pr),
		Description:     pr.Description,
		DescriptionHTML: RenderMarkdown(pr.Description),
		Reviews:         mapSlice(reviews, toReviewResponse),
		Comments:        mapSlice(comments, toCommentResponse),
	})
}

// loadRepo resolves the {id} parameter to a repository, writing 400 or 404
// when it cannot.
func (h *Handler) loadRepo(w http.ResponseWriter, r *http.Request) (*model.Repository, bool) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return nil, false
	}

	repo, err := h.repos.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return nil, false
	}
	if repo == nil {
		writeServiceError(w, r, h.logger, driven.ErrRepoNotFound)
		return nil, false
	}
	return repo, true
}
