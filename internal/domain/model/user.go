package model

import (
	"slices"
	"time"
)

// Permission names a capability granted by an access role.
type Permission string

const (
	PermKPIsRead          Permission = "kpis:read"
	PermSyncRead          Permission = "sync:read"
	PermSyncWrite         Permission = "sync:write"
	PermRepositoriesWrite Permission = "repositories:write"
	PermDimensionsWrite   Permission = "dimensions:write"
	PermDevelopersWrite   Permission = "developers:write"
	PermUsersManage       Permission = "users:manage"
	PermConfigManage      Permission = "config:manage"
)

// AllPermissions is the fixed permission catalogue.
var AllPermissions = []Permission{
	PermKPIsRead,
	PermSyncRead,
	PermSyncWrite,
	PermRepositoriesWrite,
	PermDimensionsWrite,
	PermDevelopersWrite,
	PermUsersManage,
	PermConfigManage,
}

// Valid reports whether p is part of the catalogue.
func (p Permission) Valid() bool {
	return slices.Contains(AllPermissions, p)
}

// AccessRole groups permissions that can be assigned to users.
type AccessRole struct {
	ID          int64
	Name        string
	Description string
	Permissions []Permission
	CreatedAt   time.Time
}

// Has reports whether the role grants p.
func (r AccessRole) Has(p Permission) bool {
	return slices.Contains(r.Permissions, p)
}

// User is a dashboard account.
type User struct {
	ID            int64
	Email         string
	Name          string
	PasswordHash  string // Empty for federated accounts.
	Status        UserStatus
	AccessRoleID  *int64
	AzureObjectID string
	DeveloperID   *int64
	LastLoginAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AuthToken is the persisted record behind an issued access/refresh pair.
type AuthToken struct {
	ID               string
	UserID           int64
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	Revoked          bool
	CreatedAt        time.Time
}

// ExternalIdentity is a federated identity resolved from an identity provider.
type ExternalIdentity struct {
	ObjectID    string
	Email       string
	DisplayName string
}

// ConfigEntry is a decrypted system configuration value.
type ConfigEntry struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// System configuration keys.
const (
	ConfigAzureOrganization = "azure.organization"
	ConfigAzurePAT          = "azure.pat"
	ConfigGitHubToken       = "github.token"
)
