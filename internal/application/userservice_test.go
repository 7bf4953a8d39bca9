package application_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/devpulse/internal/application"
	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

func newUserFixture(t *testing.T, users ...model.User) (*authFixture, *application.UserService) {
	t.Helper()
	f := newAuthFixture(t, testAuthConfig(), users...)
	return f, application.NewUserService(f.users, f.roles, f.devs, f.svc)
}

func TestUserService_CreateValidates(t *testing.T) {
	_, svc := newUserFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, application.NewUser{Email: "not-an-email", Password: testPassword})
	assert.ErrorIs(t, err, application.ErrValidation)

	_, err = svc.Create(ctx, application.NewUser{Email: "a@example.com", Password: "short"})
	assert.ErrorIs(t, err, application.ErrValidation)

	_, err = svc.Create(ctx, application.NewUser{Email: "a@example.com", Password: testPassword, AccessRoleID: int64Ptr(42)})
	assert.ErrorIs(t, err, application.ErrValidation)
}

func TestUserService_CreateLinksDeveloperAndNormalizesEmail(t *testing.T) {
	f, svc := newUserFixture(t)
	ctx := context.Background()
	_, err := f.devs.Create(ctx, model.Developer{Login: "carol", Email: "carol@example.com"})
	require.NoError(t, err)

	user, err := svc.Create(ctx, application.NewUser{Email: "  Carol@Example.com ", Name: "Carol", Password: testPassword, AccessRoleID: int64Ptr(2)})

	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", user.Email)
	assert.Equal(t, model.UserStatusPending, user.Status)
	require.NotNil(t, user.DeveloperID)

	_, err = svc.Create(ctx, application.NewUser{Email: "carol@example.com", Password: testPassword})
	assert.ErrorIs(t, err, driven.ErrAlreadyExists)
}

func TestUserService_ActivateAndDisable(t *testing.T) {
	pending := activeUser(t)
	pending.Status = model.UserStatusPending
	f, svc := newUserFixture(t, pending)
	ctx := context.Background()

	user, err := svc.Activate(ctx, 1, int64Ptr(1))
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusActive, user.Status)
	assert.Equal(t, int64(1), *user.AccessRoleID)

	pair, _, err := f.svc.Login(ctx, "alice@example.com", testPassword)
	require.NoError(t, err)

	user, err = svc.Disable(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusDisabled, user.Status)
	assert.Zero(t, f.tokens.activeCount())

	_, err = f.svc.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, application.ErrTokenInvalid)

	_, err = svc.Activate(ctx, 99, nil)
	assert.ErrorIs(t, err, driven.ErrNotFound)
}

func TestUserService_UpdatePasswordRevokesSessions(t *testing.T) {
	f, svc := newUserFixture(t, activeUser(t))
	ctx := context.Background()

	_, _, err := f.svc.Login(ctx, "alice@example.com", testPassword)
	require.NoError(t, err)

	name := "Alice Liddell"
	password := "reset by an admin"
	user, err := svc.Update(ctx, 1, application.UserUpdate{Name: &name, Password: &password})

	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", user.Name)
	assert.Zero(t, f.tokens.activeCount())

	_, _, err = f.svc.Login(ctx, "alice@example.com", password)
	assert.NoError(t, err)
}

func TestUserService_LinkDeveloper(t *testing.T) {
	f, svc := newUserFixture(t, activeUser(t))
	ctx := context.Background()
	dev, err := f.devs.Create(ctx, model.Developer{Login: "alice"})
	require.NoError(t, err)

	user, err := svc.LinkDeveloper(ctx, 1, &dev.ID)
	require.NoError(t, err)
	assert.Equal(t, dev.ID, *user.DeveloperID)

	_, err = svc.LinkDeveloper(ctx, 1, int64Ptr(404))
	assert.ErrorIs(t, err, driven.ErrNotFound)

	user, err = svc.LinkDeveloper(ctx, 1, nil)
	require.NoError(t, err)
	assert.Nil(t, user.DeveloperID)
}

func TestUserService_EnsureAdmin(t *testing.T) {
	f, svc := newUserFixture(t)
	ctx := context.Background()

	admin, err := svc.EnsureAdmin(ctx, "root@example.com", "Root", testPassword)
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusActive, admin.Status)
	assert.Equal(t, int64(1), *admin.AccessRoleID)

	again, err := svc.EnsureAdmin(ctx, "root@example.com", "Root", "a different password")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, again.ID)

	_, _, err = f.svc.Login(ctx, "root@example.com", "a different password")
	assert.NoError(t, err)
}

func TestUserService_Roles(t *testing.T) {
	_, svc := newUserFixture(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, model.AccessRole{Name: "auditor", Permissions: []model.Permission{"kpis:write"}})
	assert.ErrorIs(t, err, application.ErrValidation)

	_, err = svc.CreateRole(ctx, model.AccessRole{Name: "  "})
	assert.ErrorIs(t, err, application.ErrValidation)

	role, err := svc.CreateRole(ctx, model.AccessRole{
		Name:        " auditor ",
		Permissions: []model.Permission{model.PermKPIsRead, model.PermSyncRead, model.PermKPIsRead},
	})
	require.NoError(t, err)
	assert.Equal(t, "auditor", role.Name)
	assert.Equal(t, []model.Permission{model.PermKPIsRead, model.PermSyncRead}, role.Permissions)

	_, err = svc.CreateRole(ctx, model.AccessRole{Name: "auditor"})
	assert.ErrorIs(t, err, driven.ErrAlreadyExists)

	role.Permissions = append(role.Permissions, model.PermConfigManage)
	updated, err := svc.UpdateRole(ctx, role)
	require.NoError(t, err)
	assert.True(t, updated.Has(model.PermConfigManage))

	require.NoError(t, svc.DeleteRole(ctx, role.ID))
	_, err = svc.GetRole(ctx, role.ID)
	assert.ErrorIs(t, err, driven.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteRole(ctx, role.ID), driven.ErrNotFound)
}
