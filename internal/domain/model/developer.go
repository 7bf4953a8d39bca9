package model

import (
	"strings"
	"time"
)

// RemoteIdentity is a person as reported by the upstream service.
type RemoteIdentity struct {
	RemoteID    string
	Login       string
	DisplayName string
	Email       string
}

// Key returns the normalized login used to match the identity to a local
// developer. It falls back to the e-mail address when no login is known.
func (i RemoteIdentity) Key() string {
	if k := strings.ToLower(strings.TrimSpace(i.Login)); k != "" {
		return k
	}
	return strings.ToLower(strings.TrimSpace(i.Email))
}

// IsZero reports whether the identity carries nothing usable for matching.
func (i RemoteIdentity) IsZero() bool {
	return i.Key() == ""
}

// Developer is a person whose activity is tracked. Developers are created on
// demand during sync and classified later by an administrator.
type Developer struct {
	ID          int64
	Login       string
	DisplayName string
	Email       string
	RemoteID    string
	TeamID      *int64
	RoleID      *int64
	StackID     *int64
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DeveloperFilter narrows developer listings.
type DeveloperFilter struct {
	TeamID  *int64
	RoleID  *int64
	StackID *int64
	Search  string
}

// Dimension is a team, role or stack used to classify developers.
type Dimension struct {
	ID          int64
	Kind        DimensionKind
	Name        string
	Description string
	CreatedAt   time.Time
}
