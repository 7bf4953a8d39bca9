package httphandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
)

// StartSyncRequest is the JSON body for starting a sync.
type StartSyncRequest struct {
	SyncType string `json:"syncType" validate:"required,oneof=full incremental"`
}

func (h *Handler) syncRoutes(r chi.Router) {
	read := requirePermission(model.PermSyncRead)
	write := requirePermission(model.PermSyncWrite)

	r.With(read).Get("/", h.ListSyncJobs)
	r.With(read).Get("/jobs/{jobId}", h.GetSyncJob)
	r.With(write).Post("/{repositoryId}", h.StartSync)
	r.With(write).Delete("/{repositoryId}", h.CancelSync)
	r.With(read).Get("/{repositoryId}/status", h.GetSyncStatus)
	r.With(read).Get("/{repositoryId}/history", h.GetSyncHistory)
}

// StartSync launches a sync of a repository and returns the pending job.
func (h *Handler) StartSync(w http.ResponseWriter, r *http.Request) {
	repoID, ok := pathID(w, r, "repositoryId")
	if !ok {
		return
	}
	var req StartSyncRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	job, err := h.syncs.StartSync(r.Context(), repoID, model.SyncType(req.SyncType))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSyncJobResponse(job))
}

// CancelSync releases the repository lock and fails its active jobs.
func (h *Handler) CancelSync(w http.ResponseWriter, r *http.Request) {
	repoID, ok := pathID(w, r, "repositoryId")
	if !ok {
		return
	}

	n, err := h.syncs.CancelSync(r.Context(), repoID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, CancelResponse{Cancelled: n})
}

// GetSyncStatus reports the lock state, watermark and latest job of a repository.
func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	repoID, ok := pathID(w, r, "repositoryId")
	if !ok {
		return
	}

	state, err := h.syncs.GetSyncStatus(r.Context(), repoID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toSyncStatusResponse(state))
}

// GetSyncHistory returns one page of a repository's jobs, newest first.
func (h *Handler) GetSyncHistory(w http.ResponseWriter, r *http.Request) {
	repoID, ok := pathID(w, r, "repositoryId")
	if !ok {
		return
	}
	page := pageFromQuery(r)

	jobs, total, err := h.syncs.GetSyncHistory(r.Context(), repoID, page)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newPaged(mapSlice(jobs, toSyncJobResponse), total, page))
}

// ListSyncJobs returns one page of jobs across repositories, optionally
// filtered by status.
func (h *Handler) ListSyncJobs(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	status := model.SyncStatus(r.URL.Query().Get("status"))

	jobs, total, err := h.syncs.GetAllJobs(r.Context(), status, page)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newPaged(mapSlice(jobs, toSyncJobResponse), total, page))
}

// GetSyncJob returns a single job.
func (h *Handler) GetSyncJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathID(w, r, "jobId")
	if !ok {
		return
	}

	job, err := h.syncs.GetJob(r.Context(), jobID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toSyncJobResponse(job))
}
