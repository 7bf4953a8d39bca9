package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

// NewUser is the input for creating a password account.
type NewUser struct {
	Email        string
	Name         string
	Password     string
	AccessRoleID *int64
	Active       bool
}

// UserUpdate carries the editable fields of an account. Nil fields are left
// unchanged.
type UserUpdate struct {
	Name         *string
	AccessRoleID *int64
	Password     *string
}

// UserService manages dashboard accounts and access roles.
type UserService struct {
	userStore      driven.UserStore
	roleStore      driven.AccessRoleStore
	developerStore driven.DeveloperStore
	tokens         *AuthService
}

// NewUserService creates a UserService. tokens is used to revoke sessions
// when an account is disabled or its password is reset.
func NewUserService(
	userStore driven.UserStore,
	roleStore driven.AccessRoleStore,
	developerStore driven.DeveloperStore,
	tokens *AuthService,
) *UserService {
	return &UserService{
		userStore:      userStore,
		roleStore:      roleStore,
		developerStore: developerStore,
		tokens:         tokens,
	}
}

// List returns every account.
func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	users, err := s.userStore.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Get returns an account or driven.ErrNotFound.
func (s *UserService) Get(ctx context.Context, id int64) (model.User, error) {
	user, err := s.userStore.GetByID(ctx, id)
	if err != nil {
		return model.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	if user == nil {
		return model.User{}, fmt.Errorf("user %d: %w", id, driven.ErrNotFound)
	}
	return *user, nil
}

// Create adds a password account. Accounts are created pending unless
// Active is set.
func (s *UserService) Create(ctx context.Context, in NewUser) (model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return model.User{}, fmt.Errorf("email %q: %w", in.Email, ErrValidation)
	}
	if err := s.checkRole(ctx, in.AccessRoleID); err != nil {
		return model.User{}, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return model.User{}, err
	}

	user := model.User{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Status:       model.UserStatusPending,
		AccessRoleID: in.AccessRoleID,
	}
	if in.Active {
		user.Status = model.UserStatusActive
	}

	if dev, err := s.developerStore.FindByEmailOrRemoteID(ctx, email, ""); err == nil && dev != nil {
		user.DeveloperID = &dev.ID
	}

	created, err := s.userStore.Create(ctx, user)
	if err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// Update changes the name, role or password of an account. A password
// change revokes every session of the account.
func (s *UserService) Update(ctx context.Context, id int64, in UserUpdate) (model.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return model.User{}, err
	}

	if in.Name != nil {
		user.Name = strings.TrimSpace(*in.Name)
	}
	if in.AccessRoleID != nil {
		if err := s.checkRole(ctx, in.AccessRoleID); err != nil {
			return model.User{}, err
		}
		user.AccessRoleID = in.AccessRoleID
	}
	if in.Password != nil {
		hash, err := HashPassword(*in.Password)
		if err != nil {
			return model.User{}, err
		}
		user.PasswordHash = hash
	}

	if err := s.userStore.Update(ctx, user); err != nil {
		return model.User{}, fmt.Errorf("update user %d: %w", id, err)
	}

	if in.Password != nil {
		if err := s.tokens.RevokeUserTokens(ctx, id); err != nil {
			return model.User{}, err
		}
	}
	return user, nil
}

// Activate marks an account active, optionally assigning a role.
func (s *UserService) Activate(ctx context.Context, id int64, roleID *int64) (model.User, error) {
	return s.setStatus(ctx, id, model.UserStatusActive, roleID)
}

// Disable marks an account disabled and revokes all of its sessions.
func (s *UserService) Disable(ctx context.Context, id int64) (model.User, error) {
	user, err := s.setStatus(ctx, id, model.UserStatusDisabled, nil)
	if err != nil {
		return model.User{}, err
	}
	if err := s.tokens.RevokeUserTokens(ctx, id); err != nil {
		return model.User{}, err
	}
	return user, nil
}

func (s *UserService) setStatus(ctx context.Context, id int64, status model.UserStatus, roleID *int64) (model.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	if roleID != nil {
		if err := s.checkRole(ctx, roleID); err != nil {
			return model.User{}, err
		}
		user.AccessRoleID = roleID
	}

	user.Status = status
	if err := s.userStore.Update(ctx, user); err != nil {
		return model.User{}, fmt.Errorf("update user %d: %w", id, err)
	}

	slog.Info("user status changed", "user_id", id, "status", status)
	return user, nil
}

// Delete removes an account and its sessions.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	if err := s.tokens.RevokeUserTokens(ctx, id); err != nil {
		return err
	}
	if err := s.userStore.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	return nil
}

// LinkDeveloper associates an account with a tracked developer. A nil
// developerID removes the link.
func (s *UserService) LinkDeveloper(ctx context.Context, id int64, developerID *int64) (model.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return model.User{}, err
	}

	if developerID != nil {
		dev, err := s.developerStore.GetByID(ctx, *developerID)
		if err != nil {
			return model.User{}, fmt.Errorf("get developer %d: %w", *developerID, err)
		}
		if dev == nil {
			return model.User{}, fmt.Errorf("developer %d: %w", *developerID, driven.ErrNotFound)
		}
	}

	user.DeveloperID = developerID
	if err := s.userStore.Update(ctx, user); err != nil {
		return model.User{}, fmt.Errorf("update user %d: %w", id, err)
	}
	return user, nil
}

// EnsureAdmin creates an active account holding the admin role, or resets
// the password of an existing one and activates it.
func (s *UserService) EnsureAdmin(ctx context.Context, email, name, password string) (model.User, error) {
	role, err := s.roleStore.GetByName(ctx, "admin")
	if err != nil {
		return model.User{}, fmt.Errorf("get admin role: %w", err)
	}
	if role == nil {
		return model.User{}, fmt.Errorf("admin role: %w", driven.ErrNotFound)
	}

	existing, err := s.userStore.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	if existing == nil {
		return s.Create(ctx, NewUser{Email: email, Name: name, Password: password, AccessRoleID: &role.ID, Active: true})
	}

	if _, err := s.Update(ctx, existing.ID, UserUpdate{Password: &password, AccessRoleID: &role.ID}); err != nil {
		return model.User{}, err
	}
	return s.setStatus(ctx, existing.ID, model.UserStatusActive, nil)
}

func (s *UserService) checkRole(ctx context.Context, roleID *int64) error {
	if roleID == nil {
		return nil
	}
	role, err := s.roleStore.GetByID(ctx, *roleID)
	if err != nil {
		return fmt.Errorf("get access role %d: %w", *roleID, err)
	}
	if role == nil {
		return fmt.Errorf("access role %d does not exist: %w", *roleID, ErrValidation)
	}
	return nil
}

// ListRoles returns every access role.
func (s *UserService) ListRoles(ctx context.Context) ([]model.AccessRole, error) {
	roles, err := s.roleStore.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list access roles: %w", err)
	}
	return roles, nil
}

// GetRole returns an access role or driven.ErrNotFound.
func (s *UserService) GetRole(ctx context.Context, id int64) (model.AccessRole, error) {
	role, err := s.roleStore.GetByID(ctx, id)
	if err != nil {
		return model.AccessRole{}, fmt.Errorf("get access role %d: %w", id, err)
	}
	if role == nil {
		return model.AccessRole{}, fmt.Errorf("access role %d: %w", id, driven.ErrNotFound)
	}
	return *role, nil
}

// CreateRole adds an access role after validating its permissions.
func (s *UserService) CreateRole(ctx context.Context, role model.AccessRole) (model.AccessRole, error) {
	if err := validateRole(&role); err != nil {
		return model.AccessRole{}, err
	}
	created, err := s.roleStore.Create(ctx, role)
	if err != nil {
		return model.AccessRole{}, fmt.Errorf("create access role: %w", err)
	}
	return created, nil
}

// UpdateRole replaces the name, description and permissions of a role.
func (s *UserService) UpdateRole(ctx context.Context, role model.AccessRole) (model.AccessRole, error) {
	if err := validateRole(&role); err != nil {
		return model.AccessRole{}, err
	}
	if err := s.roleStore.Update(ctx, role); err != nil {
		return model.AccessRole{}, fmt.Errorf("update access role %d: %w", role.ID, err)
	}
	return s.GetRole(ctx, role.ID)
}

// DeleteRole removes a role. Users holding it keep their account but lose
// every permission.
func (s *UserService) DeleteRole(ctx context.Context, id int64) error {
	if err := s.roleStore.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete access role %d: %w", id, err)
	}
	return nil
}

// validateRole trims the name and rejects unknown or duplicated permissions.
func validateRole(role *model.AccessRole) error {
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return fmt.Errorf("role name is required: %w", ErrValidation)
	}

	seen := make(map[model.Permission]bool, len(role.Permissions))
	perms := make([]model.Permission, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		if !p.Valid() {
			return fmt.Errorf("unknown permission %q: %w", p, ErrValidation)
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		perms = append(perms, p)
	}
	role.Permissions = perms
	return nil
}
