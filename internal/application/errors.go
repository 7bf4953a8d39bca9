// Package application contains use-case orchestration services.
package application

import "errors"

// Use-case level sentinel errors. Store-level sentinels live in the driven
// port package.
var (
	ErrSyncInProgress        = errors.New("sync already in progress")
	ErrInvalidSyncType       = errors.New("invalid sync type")
	ErrJobNotFound           = errors.New("sync job not found")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrAccountInactive       = errors.New("account is not active")
	ErrAccountPending        = errors.New("account is pending approval")
	ErrTokenInvalid          = errors.New("token is invalid or expired")
	ErrValidation            = errors.New("validation failed")
	ErrUpstreamNotConfigured = errors.New("upstream credentials not configured")
	ErrUpstream              = errors.New("upstream request failed")
)
