package httphandler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ericfisherdev/devpulse/internal/application"
	"github.com/ericfisherdev/devpulse/internal/domain/model"
)

// AzureConfigRequest is the JSON body for storing the Azure DevOps
// credentials. An empty pat keeps the stored one.
type AzureConfigRequest struct {
	Organization string `json:"organization" validate:"required,max=200"`
	PAT          string `json:"pat"`
}

// AzureTestRequest carries credentials to test. Empty fields fall back to
// the stored configuration.
type AzureTestRequest struct {
	Organization string `json:"organization" validate:"max=200"`
	PAT          string `json:"pat"`
}

// GitHubConfigRequest is the JSON body for storing the GitHub token. An
// empty token removes it.
type GitHubConfigRequest struct {
	Token string `json:"token"`
}

func (h *Handler) configRoutes(r chi.Router) {
	r.Use(requirePermission(model.PermConfigManage))

	r.Get("/azure", h.GetAzureConfig)
	r.Put("/azure", h.UpdateAzureConfig)
	r.Post("/azure/test", h.TestAzureConfig)
	r.Get("/azure/projects", h.ListAzureProjects)
	r.Get("/azure/projects/{project}/repositories", h.ListAzureRepositories)
	r.Put("/github", h.UpdateGitHubConfig)
}

// GetAzureConfig returns the stored organization and a masked PAT.
func (h *Handler) GetAzureConfig(w http.ResponseWriter, r *http.Request) {
	settings, err := h.config.Azure(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// UpdateAzureConfig stores the Azure DevOps organization and PAT.
func (h *Handler) UpdateAzureConfig(w http.ResponseWriter, r *http.Request) {
	var req AzureConfigRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	settings, err := h.config.SetAzure(r.Context(), req.Organization, req.PAT)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("azure devops configuration updated", "organization", settings.Organization)
	writeJSON(w, http.StatusOK, settings)
}

// TestAzureConfig checks credentials against Azure DevOps without storing
// them. A rejected connection is a normal outcome reported in the body.
func (h *Handler) TestAzureConfig(w http.ResponseWriter, r *http.Request) {
	var req AzureTestRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	err := h.config.TestAzure(r.Context(), req.Organization, req.PAT)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ConnectionTestResponse{Success: true, Message: "connection successful"})
	case errors.Is(err, application.ErrUpstream):
		writeJSON(w, http.StatusOK, ConnectionTestResponse{Success: false, Message: err.Error()})
	default:
		writeServiceError(w, r, h.logger, err)
	}
}

// ListAzureProjects lists the projects visible to the stored credentials.
func (h *Handler) ListAzureProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.config.AzureProjects(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, mapSlice(projects, func(p model.RemoteProject) RemoteProjectResponse {
		return RemoteProjectResponse{ID: p.ID, Name: p.Name, Description: p.Description}
	}))
}

// ListAzureRepositories lists the repositories of an Azure DevOps project.
func (h *Handler) ListAzureRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := h.config.AzureRepositories(r.Context(), chi.URLParam(r, "project"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, mapSlice(repos, func(rr model.RemoteRepository) RemoteRepositoryResponse {
		return RemoteRepositoryResponse{
			ID:            rr.ID,
			Name:          rr.Name,
			Project:       rr.Project,
			DefaultBranch: rr.DefaultBranch,
			URL:           rr.URL,
		}
	}))
}

// UpdateGitHubConfig stores or removes the system GitHub token.
func (h *Handler) UpdateGitHubConfig(w http.ResponseWriter, r *http.Request) {
	var req GitHubConfigRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.config.SetGitHubToken(r.Context(), req.Token); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
