package httphandler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ericfisherdev/devpulse/internal/application"
	"github.com/ericfisherdev/devpulse/internal/domain/model"
)

// CreateUserRequest is the JSON body for creating a password account.
type CreateUserRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Name         string `json:"name" validate:"max=200"`
	Password     string `json:"password" validate:"required,min=8"`
	AccessRoleID *int64 `json:"access_role_id" validate:"omitempty,gt=0"`
	Active       bool   `json:"active"`
}

// UpdateUserRequest is the JSON body for editing an account. Omitted
// fields are left unchanged.
type UpdateUserRequest struct {
	Name         *string `json:"name" validate:"omitempty,max=200"`
	AccessRoleID *int64  `json:"access_role_id" validate:"omitempty,gt=0"`
	Password     *string `json:"password" validate:"omitempty,min=8"`
}

// ActivateUserRequest optionally assigns a role while activating.
type ActivateUserRequest struct {
	AccessRoleID *int64 `json:"access_role_id" validate:"omitempty,gt=0"`
}

// LinkDeveloperRequest links an account to a developer; null unlinks.
type LinkDeveloperRequest struct {
	DeveloperID *int64 `json:"developer_id" validate:"omitempty,gt=0"`
}

// AccessRoleRequest is the JSON body for creating or editing an access role.
type AccessRoleRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Description string   `json:"description" validate:"max=500"`
	Permissions []string `json:"permissions" validate:"dive,required"`
}

func (h *Handler) userRoutes(r chi.Router) {
	r.Use(requirePermission(model.PermUsersManage))

	r.Get("/", h.ListUsers)
	r.Post("/", h.CreateUser)
	r.Get("/{id}", h.GetUser)
	r.Put("/{id}", h.UpdateUser)
	r.Delete("/{id}", h.DeleteUser)
	r.Post("/{id}/activate", h.ActivateUser)
	r.Post("/{id}/disable", h.DisableUser)
	r.Put("/{id}/developer", h.LinkUserDeveloper)
}

// ListUsers returns every account.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(users, toUserResponse))
}

// CreateUser adds a password account.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.users.Create(r.Context(), application.NewUser{
		Email:        req.Email,
		Name:         req.Name,
		Password:     req.Password,
		AccessRoleID: req.AccessRoleID,
		Active:       req.Active,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// GetUser returns a single account.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// UpdateUser edits the name, role or password of an account.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateUserRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.users.Update(r.Context(), id, application.UserUpdate{
		Name:         req.Name,
		AccessRoleID: req.AccessRoleID,
		Password:     req.Password,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// DeleteUser removes an account. Callers cannot delete themselves.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if principal, _ := principalFrom(r.Context()); principal.User.ID == id {
		writeError(w, http.StatusBadRequest, codeValidation, "cannot delete your own account")
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActivateUser approves a pending or disabled account. The body is optional.
func (h *Handler) ActivateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ActivateUserRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	user, err := h.users.Activate(r.Context(), id, req.AccessRoleID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// DisableUser blocks an account and ends its sessions.
func (h *Handler) DisableUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if principal, _ := principalFrom(r.Context()); principal.User.ID == id {
		writeError(w, http.StatusBadRequest, codeValidation, "cannot disable your own account")
		return
	}

	user, err := h.users.Disable(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// LinkUserDeveloper links or unlinks the developer of an account.
func (h *Handler) LinkUserDeveloper(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req LinkDeveloperRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.users.LinkDeveloper(r.Context(), id, req.DeveloperID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) accessRoleRoutes(r chi.Router) {
	r.Use(requirePermission(model.PermUsersManage))

	r.Get("/", h.ListAccessRoles)
	r.Post("/", h.CreateAccessRole)
	r.Get("/permissions", h.ListPermissions)
	r.Get("/{id}", h.GetAccessRole)
	r.Put("/{id}", h.UpdateAccessRole)
	r.Delete("/{id}", h.DeleteAccessRole)
}

// ListAccessRoles returns every access role.
func (h *Handler) ListAccessRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.users.ListRoles(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(roles, toAccessRoleResponse))
}

// ListPermissions returns the permission catalogue.
func (h *Handler) ListPermissions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, permissionStrings(model.AllPermissions))
}

// CreateAccessRole adds an access role.
func (h *Handler) CreateAccessRole(w http.ResponseWriter, r *http.Request) {
	var req AccessRoleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	role, err := h.users.CreateRole(r.Context(), req.toModel(0))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccessRoleResponse(role))
}

// GetAccessRole returns a single access role.
func (h *Handler) GetAccessRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	role, err := h.users.GetRole(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccessRoleResponse(role))
}

// UpdateAccessRole replaces the name, description and permissions of a role.
func (h *Handler) UpdateAccessRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req AccessRoleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	role, err := h.users.UpdateRole(r.Context(), req.toModel(id))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccessRoleResponse(role))
}

// DeleteAccessRole removes an access role.
func (h *Handler) DeleteAccessRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.users.DeleteRole(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (req AccessRoleRequest) toModel(id int64) model.AccessRole {
	perms := make([]model.Permission, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		perms = append(perms, model.Permission(strings.TrimSpace(p)))
	}
	return model.AccessRole{ID: id, Name: req.Name, Description: req.Description, Permissions: perms}
}
