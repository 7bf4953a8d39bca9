package httphandler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
)

// DimensionRequest is the JSON body for creating or editing a team, role or stack.
type DimensionRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// DeveloperRequest is the JSON body for creating or editing a developer.
type DeveloperRequest struct {
	Login       string `json:"login" validate:"required,max=200"`
	DisplayName string `json:"display_name" validate:"max=200"`
	Email       string `json:"email" validate:"omitempty,email"`
	RemoteID    string `json:"remote_id" validate:"max=200"`
	TeamID      *int64 `json:"team_id" validate:"omitempty,gt=0"`
	RoleID      *int64 `json:"role_id" validate:"omitempty,gt=0"`
	StackID     *int64 `json:"stack_id" validate:"omitempty,gt=0"`
	IsActive    *bool  `json:"is_active"`
}

func (h *Handler) dimensionRoutes(kind model.DimensionKind) func(chi.Router) {
	return func(r chi.Router) {
		read := requirePermission(model.PermKPIsRead)
		write := requirePermission(model.PermDimensionsWrite)

		r.With(read).Get("/", h.listDimensions(kind))
		r.With(write).Post("/", h.createDimension(kind))
		r.With(read).Get("/{id}", h.getDimension(kind))
		r.With(write).Put("/{id}", h.updateDimension(kind))
		r.With(write).Delete("/{id}", h.deleteDimension(kind))
	}
}

func (h *Handler) listDimensions(kind model.DimensionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dims, err := h.dimensions.List(r.Context(), kind)
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, mapSlice(dims, toDimensionResponse))
	}
}

func (h *Handler) createDimension(kind model.DimensionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DimensionRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		created, err := h.dimensions.Create(r.Context(), model.Dimension{
			Kind:        kind,
			Name:        strings.TrimSpace(req.Name),
			Description: req.Description,
		})
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, toDimensionResponse(created))
	}
}

func (h *Handler) getDimension(kind model.DimensionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		d, err := h.dimensions.Get(r.Context(), kind, id)
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		if d == nil {
			writeError(w, http.StatusNotFound, codeNotFound, string(kind)+" not found")
			return
		}
		writeJSON(w, http.StatusOK, toDimensionResponse(*d))
	}
}

func (h *Handler) updateDimension(kind model.DimensionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req DimensionRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		d := model.Dimension{ID: id, Kind: kind, Name: strings.TrimSpace(req.Name), Description: req.Description}
		if err := h.dimensions.Update(r.Context(), d); err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}

		h.getDimension(kind)(w, r)
	}
}

func (h *Handler) deleteDimension(kind model.DimensionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		if err := h.dimensions.Delete(r.Context(), kind, id); err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) developerRoutes(r chi.Router) {
	read := requirePermission(model.PermKPIsRead)
	write := requirePermission(model.PermDevelopersWrite)

	r.With(read).Get("/", h.ListDevelopers)
	r.With(write).Post("/", h.CreateDeveloper)
	r.With(read).Get("/{id}", h.GetDeveloper)
	r.With(write).Put("/{id}", h.UpdateDeveloper)
	r.With(write).Delete("/{id}", h.DeleteDeveloper)
}

// ListDevelopers returns developers, optionally filtered by team_id,
// role_id, stack_id and a search term.
func (h *Handler) ListDevelopers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.DeveloperFilter{Search: strings.TrimSpace(q.Get("search"))}

	for name, dst := range map[string]**int64{
		"team_id":  &filter.TeamID,
		"role_id":  &filter.RoleID,
		"stack_id": &filter.StackID,
	} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, codeValidation, name+" must be a positive integer")
			return
		}
		*dst = &id
	}

	devs, err := h.developers.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(devs, toDeveloperResponse))
}

// CreateDeveloper adds a developer by hand. Developers are normally created
// by sync.
func (h *Handler) CreateDeveloper(w http.ResponseWriter, r *http.Request) {
	var req DeveloperRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if msg := h.checkAssignments(r, req); msg != "" {
		writeError(w, http.StatusBadRequest, codeValidation, msg)
		return
	}

	var dev model.Developer
	applyDeveloperRequest(&dev, req)
	if req.IsActive == nil {
		dev.IsActive = true
	}

	created, err := h.developers.Create(r.Context(), dev)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDeveloperResponse(created))
}

// GetDeveloper returns a single developer.
func (h *Handler) GetDeveloper(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.loadDeveloper(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toDeveloperResponse(*dev))
}

// UpdateDeveloper replaces the editable fields of a developer, including
// the team, role and stack classification.
func (h *Handler) UpdateDeveloper(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.loadDeveloper(w, r)
	if !ok {
		return
	}
	var req DeveloperRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if msg := h.checkAssignments(r, req); msg != "" {
		writeError(w, http.StatusBadRequest, codeValidation, msg)
		return
	}

	applyDeveloperRequest(dev, req)
	if err := h.developers.Update(r.Context(), *dev); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.GetDeveloper(w, r)
}

// DeleteDeveloper removes a developer. Mirrored activity keeps its rows
// with the author cleared.
func (h *Handler) DeleteDeveloper(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.developers.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) loadDeveloper(w http.ResponseWriter, r *http.Request) (*model.Developer, bool) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return nil, false
	}

	dev, err := h.developers.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return nil, false
	}
	if dev == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "developer not found")
		return nil, false
	}
	return dev, true
}

// checkAssignments verifies that referenced dimensions exist and returns a
// client message for the first that does not.
func (h *Handler) checkAssignments(r *http.Request, req DeveloperRequest) string {
	refs := []struct {
		kind model.DimensionKind
		id   *int64
	}{
		{model.DimensionTeam, req.TeamID},
		{model.DimensionRole, req.RoleID},
		{model.DimensionStack, req.StackID},
	}
	for _, ref := range refs {
		if ref.id == nil {
			continue
		}
		d, err := h.dimensions.Get(r.Context(), ref.kind, *ref.id)
		if err != nil {
			h.logger.Error("check developer assignment", "kind", ref.kind, "id", *ref.id, "error", err)
			return "could not verify " + string(ref.kind)
		}
		if d == nil {
			return fmt.Sprintf("%s %d does not exist", ref.kind, *ref.id)
		}
	}
	return ""
}

func applyDeveloperRequest(dev *model.Developer, req DeveloperRequest) {
	dev.Login = strings.TrimSpace(req.Login)
	dev.DisplayName = strings.TrimSpace(req.DisplayName)
	dev.Email = strings.ToLower(strings.TrimSpace(req.Email))
	dev.RemoteID = strings.TrimSpace(req.RemoteID)
	dev.TeamID = req.TeamID
	dev.RoleID = req.RoleID
	dev.StackID = req.StackID
	if req.IsActive != nil {
		dev.IsActive = *req.IsActive
	}
}
