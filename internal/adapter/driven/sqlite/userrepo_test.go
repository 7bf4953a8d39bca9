package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

func TestAccessRoleRepo_SeededRoles(t *testing.T) {
	db := setupTestDB(t)
	roles := NewAccessRoleRepo(db)
	ctx := context.Background()

	admin, err := roles.GetByName(ctx, "admin")
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.ElementsMatch(t, model.AllPermissions, admin.Permissions)

	viewer, err := roles.GetByName(ctx, "viewer")
	require.NoError(t, err)
	require.NotNil(t, viewer)
	assert.True(t, viewer.Has(model.PermKPIsRead))
	assert.False(t, viewer.Has(model.PermSyncWrite))
}

func TestAccessRoleRepo_CRUD(t *testing.T) {
	db := setupTestDB(t)
	roles := NewAccessRoleRepo(db)
	ctx := context.Background()

	role, err := roles.Create(ctx, model.AccessRole{Name: "auditor", Permissions: []model.Permission{model.PermSyncRead}})
	require.NoError(t, err)
	assert.NotZero(t, role.ID)

	_, err = roles.Create(ctx, model.AccessRole{Name: "auditor"})
	assert.ErrorIs(t, err, driven.ErrAlreadyExists)

	role.Permissions = []model.Permission{model.PermSyncRead, model.PermKPIsRead}
	require.NoError(t, roles.Update(ctx, role))

	got, err := roles.GetByID(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, role.Permissions, got.Permissions)

	all, err := roles.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	require.NoError(t, roles.Delete(ctx, role.ID))
	got, err = roles.GetByID(ctx, role.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUserRepo_CRUD(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepo(db)
	ctx := context.Background()

	viewer, err := NewAccessRoleRepo(db).GetByName(ctx, "viewer")
	require.NoError(t, err)

	u, err := users.Create(ctx, model.User{
		Email:        "Grace@Contoso.com",
		Name:         "Grace",
		PasswordHash: "hash",
		Status:       model.UserStatusActive,
		AccessRoleID: &viewer.ID,
	})
	require.NoError(t, err)

	_, err = users.Create(ctx, model.User{Email: "grace@contoso.com", Status: model.UserStatusPending})
	assert.ErrorIs(t, err, driven.ErrAlreadyExists, "e-mails are unique regardless of case")

	byEmail, err := users.GetByEmail(ctx, "GRACE@contoso.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, u.ID, byEmail.ID)
	require.NotNil(t, byEmail.AccessRoleID)
	assert.Equal(t, viewer.ID, *byEmail.AccessRoleID)

	u.Status = model.UserStatusDisabled
	u.AzureObjectID = "oid-1"
	require.NoError(t, users.Update(ctx, u))

	byOID, err := users.GetByAzureObjectID(ctx, "oid-1")
	require.NoError(t, err)
	require.NotNil(t, byOID)
	assert.Equal(t, model.UserStatusDisabled, byOID.Status)

	none, err := users.GetByAzureObjectID(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, none)

	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, users.TouchLastLogin(ctx, u.ID, at))
	got, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
	assert.True(t, at.Equal(*got.LastLoginAt))

	list, err := users.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, users.Delete(ctx, u.ID))
	assert.ErrorIs(t, users.Delete(ctx, u.ID), driven.ErrNotFound)
}

func TestTokenRepo_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepo(db)
	tokens := NewTokenRepo(db)
	ctx := context.Background()

	u, err := users.Create(ctx, model.User{Email: "heidi@contoso.com", Status: model.UserStatusActive})
	require.NoError(t, err)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	fresh := model.AuthToken{ID: "tok-1", UserID: u.ID, AccessExpiresAt: now.Add(15 * time.Minute), RefreshExpiresAt: now.Add(24 * time.Hour)}
	stale := model.AuthToken{ID: "tok-2", UserID: u.ID, AccessExpiresAt: now.Add(-2 * time.Hour), RefreshExpiresAt: now.Add(-time.Hour)}
	require.NoError(t, tokens.Create(ctx, fresh))
	require.NoError(t, tokens.Create(ctx, stale))

	got, err := tokens.Get(ctx, "tok-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Revoked)
	assert.True(t, fresh.RefreshExpiresAt.Equal(got.RefreshExpiresAt))

	require.NoError(t, tokens.Revoke(ctx, "tok-1"))
	got, err = tokens.Get(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, got.Revoked)

	n, err := tokens.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	missing, err := tokens.Get(ctx, "tok-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTokenRepo_RevokeAllForUser(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepo(db)
	tokens := NewTokenRepo(db)
	ctx := context.Background()

	u, err := users.Create(ctx, model.User{Email: "ivan@contoso.com", Status: model.UserStatusActive})
	require.NoError(t, err)

	exp := time.Now().Add(time.Hour)
	for _, id := range []string{"a", "b"} {
		require.NoError(t, tokens.Create(ctx, model.AuthToken{ID: id, UserID: u.ID, AccessExpiresAt: exp, RefreshExpiresAt: exp}))
	}

	require.NoError(t, tokens.RevokeAllForUser(ctx, u.ID))

	for _, id := range []string{"a", "b"} {
		got, err := tokens.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.Revoked, id)
	}
}

func TestConfigRepo_SetGetList(t *testing.T) {
	db := setupTestDB(t)
	cfg := NewConfigRepo(db, testBox(t))
	ctx := context.Background()

	empty, err := cfg.Get(ctx, model.ConfigAzurePAT)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, cfg.Set(ctx, model.ConfigAzurePAT, "first"))
	require.NoError(t, cfg.Set(ctx, model.ConfigAzurePAT, "second"))
	require.NoError(t, cfg.Set(ctx, model.ConfigAzureOrganization, "contoso"))

	pat, err := cfg.Get(ctx, model.ConfigAzurePAT)
	require.NoError(t, err)
	assert.Equal(t, "second", pat)

	var stored string
	require.NoError(t, db.Reader.QueryRowContext(ctx, `SELECT value FROM system_config WHERE key = ?`, model.ConfigAzurePAT).Scan(&stored))
	assert.NotEqual(t, "second", stored, "values are encrypted at rest")

	entries, err := cfg.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.ConfigAzureOrganization, entries[0].Key)
	assert.Equal(t, "contoso", entries[0].Value)

	require.NoError(t, cfg.Delete(ctx, model.ConfigAzurePAT))
	pat, err = cfg.Get(ctx, model.ConfigAzurePAT)
	require.NoError(t, err)
	assert.Empty(t, pat)
}

func TestConfigRepo_NoKey(t *testing.T) {
	db := setupTestDB(t)
	cfg := NewConfigRepo(db, nil)
	ctx := context.Background()

	assert.ErrorIs(t, cfg.Set(ctx, "k", "v"), driven.ErrEncryptionKeyNotSet)
	_, err := cfg.Get(ctx, "k")
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)
	_, err = cfg.List(ctx)
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)
}
