package httphandler

import (
	"errors"
	"net/http"

	"github.com/ericfisherdev/devpulse/internal/application"
)

// LoginRequest is the JSON body for the password login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AzureLoginRequest carries a Microsoft identity platform access token.
type AzureLoginRequest struct {
	AccessToken string `json:"access_token" validate:"required"`
}

// RefreshRequest is the JSON body for the token refresh endpoint.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ChangePasswordRequest is the JSON body for the password change endpoint.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// LoginResponse is an issued token pair plus the signed-in account.
type LoginResponse struct {
	application.TokenPair
	User UserResponse `json:"user"`
}

// Login exchanges an email and password for a token pair.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	pair, user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{TokenPair: pair, User: toUserResponse(user)})
}

// LoginWithAzure exchanges an Azure AD access token for a token pair. New
// accounts are provisioned as pending and receive 403 ACCOUNT_PENDING.
func (h *Handler) LoginWithAzure(w http.ResponseWriter, r *http.Request) {
	var req AzureLoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	pair, user, err := h.auth.LoginWithAzure(r.Context(), req.AccessToken)
	if err != nil {
		if errors.Is(err, application.ErrAccountPending) && user.ID != 0 {
			h.logger.Info("azure account awaiting approval", "user_id", user.ID)
		}
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{TokenPair: pair, User: toUserResponse(user)})
}

// Refresh rotates a refresh token into a new token pair.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// Logout revokes the session behind the presented access token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	if err := h.auth.Logout(r.Context(), principal.TokenID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated account with its role and permissions.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	writeJSON(w, http.StatusOK, MeResponse{
		User:        toUserResponse(principal.User),
		Role:        principal.RoleName,
		Permissions: permissionStrings(principal.Permissions),
	})
}

// ChangePassword replaces the caller's password and ends every session.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	principal, _ := principalFrom(r.Context())

	err := h.auth.ChangePassword(r.Context(), principal.User.ID, req.CurrentPassword, req.NewPassword)
	if errors.Is(err, application.ErrInvalidCredentials) {
		writeError(w, http.StatusBadRequest, codeValidation, "current password is incorrect")
		return
	}
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
