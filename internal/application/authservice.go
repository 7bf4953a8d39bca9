package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
	"github.com/ericfisherdev/devpulse/internal/metrics"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	bcryptCost = 12

	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 8
)

// dummyHash is compared against when the e-mail is unknown so that both
// paths pay for one bcrypt comparison.
var dummyHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("devpulse-dummy-password"), bcryptCost)
	if err != nil {
		panic(fmt.Sprintf("generate dummy hash: %v", err))
	}
	return hash
})

// AuthConfig holds token issuance settings.
type AuthConfig struct {
	Secret           []byte
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	MinLoginDuration time.Duration
}

// DefaultAuthConfig returns the production token lifetimes for secret.
func DefaultAuthConfig(secret string) AuthConfig {
	return AuthConfig{
		Secret:           []byte(secret),
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       7 * 24 * time.Hour,
		MinLoginDuration: 300 * time.Millisecond,
	}
}

// TokenPair is an issued access/refresh pair sharing one token record.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Principal is an authenticated user with the permissions of their role.
type Principal struct {
	User        model.User
	RoleName    string
	Permissions []model.Permission
	TokenID     string
}

// Has reports whether the principal holds p.
func (p Principal) Has(perm model.Permission) bool {
	return slices.Contains(p.Permissions, perm)
}

// tokenClaims are the JWT claims of both token types.
type tokenClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// AuthService issues, verifies and revokes tokens for password and Azure AD
// logins.
type AuthService struct {
	userStore      driven.UserStore
	roleStore      driven.AccessRoleStore
	tokenStore     driven.TokenStore
	developerStore driven.DeveloperStore
	identity       driven.IdentityProvider
	cfg            AuthConfig
	now            func() time.Time
}

// NewAuthService creates an AuthService with all required dependencies.
// identity may be nil, which disables Azure AD login.
func NewAuthService(
	userStore driven.UserStore,
	roleStore driven.AccessRoleStore,
	tokenStore driven.TokenStore,
	developerStore driven.DeveloperStore,
	identity driven.IdentityProvider,
	cfg AuthConfig,
) *AuthService {
	return &AuthService{
		userStore:      userStore,
		roleStore:      roleStore,
		tokenStore:     tokenStore,
		developerStore: developerStore,
		identity:       identity,
		cfg:            cfg,
		now:            time.Now,
	}
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters: %w", MinPasswordLength, ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Login checks an e-mail and password and issues a token pair. Every call
// takes at least MinLoginDuration, whatever the outcome.
func (s *AuthService) Login(ctx context.Context, email, password string) (TokenPair, model.User, error) {
	start := time.Now()
	defer s.padLoginDuration(ctx, start)

	pair, user, err := s.login(ctx, email, password)
	metrics.RecordLogin("password", err == nil)
	return pair, user, err
}

func (s *AuthService) login(ctx context.Context, email, password string) (TokenPair, model.User, error) {
	user, err := s.userStore.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return TokenPair{}, model.User{}, fmt.Errorf("load user: %w", err)
	}

	hash := dummyHash()
	if user != nil && user.PasswordHash != "" {
		hash = []byte(user.PasswordHash)
	}
	match := bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil

	if user == nil || user.PasswordHash == "" || !match {
		return TokenPair{}, model.User{}, ErrInvalidCredentials
	}
	if user.Status != model.UserStatusActive {
		return TokenPair{}, model.User{}, ErrAccountInactive
	}

	pair, err := s.issue(ctx, user.ID)
	if err != nil {
		return TokenPair{}, model.User{}, err
	}
	s.touchLogin(ctx, user.ID)
	return pair, *user, nil
}

func (s *AuthService) padLoginDuration(ctx context.Context, start time.Time) {
	remaining := s.cfg.MinLoginDuration - time.Since(start)
	if remaining <= 0 {
		return
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// LoginWithAzure resolves an Azure AD access token into a user. Unknown
// identities are provisioned as pending accounts, linked to a matching
// developer when one exists, and receive no tokens until an administrator
// activates them.
func (s *AuthService) LoginWithAzure(ctx context.Context, azureToken string) (TokenPair, model.User, error) {
	pair, user, err := s.loginWithAzure(ctx, azureToken)
	metrics.RecordLogin("azure_ad", err == nil)
	return pair, user, err
}

func (s *AuthService) loginWithAzure(ctx context.Context, azureToken string) (TokenPair, model.User, error) {
	if s.identity == nil {
		return TokenPair{}, model.User{}, fmt.Errorf("azure ad login: %w", ErrUpstreamNotConfigured)
	}

	profile, err := s.identity.Profile(ctx, azureToken)
	if err != nil {
		return TokenPair{}, model.User{}, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	user, err := s.userStore.GetByAzureObjectID(ctx, profile.ObjectID)
	if err != nil {
		return TokenPair{}, model.User{}, fmt.Errorf("load user: %w", err)
	}

	if user == nil {
		user, err = s.userStore.GetByEmail(ctx, profile.Email)
		if err != nil {
			return TokenPair{}, model.User{}, fmt.Errorf("load user: %w", err)
		}
		if user != nil {
			user.AzureObjectID = profile.ObjectID
			if err := s.userStore.Update(ctx, *user); err != nil {
				return TokenPair{}, model.User{}, fmt.Errorf("link azure identity: %w", err)
			}
		}
	}

	if user == nil {
		created, err := s.provision(ctx, profile)
		if err != nil {
			return TokenPair{}, model.User{}, err
		}
		return TokenPair{}, created, ErrAccountPending
	}

	switch user.Status {
	case model.UserStatusPending:
		return TokenPair{}, *user, ErrAccountPending
	case model.UserStatusActive:
	default:
		return TokenPair{}, model.User{}, ErrAccountInactive
	}

	pair, err := s.issue(ctx, user.ID)
	if err != nil {
		return TokenPair{}, model.User{}, err
	}
	s.touchLogin(ctx, user.ID)
	return pair, *user, nil
}

func (s *AuthService) provision(ctx context.Context, profile *model.ExternalIdentity) (model.User, error) {
	user := model.User{
		Email:         profile.Email,
		Name:          profile.DisplayName,
		Status:        model.UserStatusPending,
		AzureObjectID: profile.ObjectID,
	}

	if role, err := s.roleStore.GetByName(ctx, "viewer"); err == nil && role != nil {
		user.AccessRoleID = &role.ID
	}

	dev, err := s.developerStore.FindByEmailOrRemoteID(ctx, profile.Email, profile.ObjectID)
	if err != nil {
		slog.Warn("developer lookup for new user failed", "email", profile.Email, "error", err)
	} else if dev != nil {
		user.DeveloperID = &dev.ID
	}

	created, err := s.userStore.Create(ctx, user)
	if err != nil {
		return model.User{}, fmt.Errorf("provision user: %w", err)
	}

	slog.Info("provisioned pending user from azure ad", "email", created.Email, "linked_developer", created.DeveloperID != nil)
	return created, nil
}

func (s *AuthService) touchLogin(ctx context.Context, userID int64) {
	if err := s.userStore.TouchLastLogin(ctx, userID, s.now().UTC()); err != nil {
		slog.Warn("recording last login failed", "user_id", userID, "error", err)
	}
}

// issue persists a token record and signs the access and refresh tokens
// that reference it.
func (s *AuthService) issue(ctx context.Context, userID int64) (TokenPair, error) {
	now := s.now().UTC()
	record := model.AuthToken{
		ID:               uuid.NewString(),
		UserID:           userID,
		AccessExpiresAt:  now.Add(s.cfg.AccessTTL),
		RefreshExpiresAt: now.Add(s.cfg.RefreshTTL),
		CreatedAt:        now,
	}

	if err := s.tokenStore.Create(ctx, record); err != nil {
		return TokenPair{}, fmt.Errorf("store token: %w", err)
	}

	access, err := s.sign(record, tokenTypeAccess, now, record.AccessExpiresAt)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(record, tokenTypeRefresh, now, record.RefreshExpiresAt)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		AccessExpiresAt:  record.AccessExpiresAt,
		RefreshExpiresAt: record.RefreshExpiresAt,
	}, nil
}

func (s *AuthService) sign(record model.AuthToken, typ string, issuedAt, expiresAt time.Time) (string, error) {
	claims := tokenClaims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        record.ID,
			Subject:   strconv.FormatInt(record.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

// parse verifies signature, expiry and token type.
func (s *AuthService) parse(raw, typ string) (*tokenClaims, int64, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, 0, ErrTokenInvalid
	}
	if claims.Type != typ || claims.ID == "" {
		return nil, 0, ErrTokenInvalid
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, 0, ErrTokenInvalid
	}
	return claims, userID, nil
}

// verifyRecord loads the token record and user behind verified claims and
// checks that both are still usable.
func (s *AuthService) verifyRecord(ctx context.Context, claims *tokenClaims, userID int64, expiry func(model.AuthToken) time.Time) (*model.User, error) {
	record, err := s.tokenStore.Get(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if record == nil || record.Revoked || record.UserID != userID || !s.now().Before(expiry(*record)) {
		return nil, ErrTokenInvalid
	}

	user, err := s.userStore.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil || user.Status != model.UserStatusActive {
		return nil, ErrTokenInvalid
	}
	return user, nil
}

// Authenticate verifies an access token and returns its principal.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	claims, userID, err := s.parse(accessToken, tokenTypeAccess)
	if err != nil {
		return Principal{}, err
	}

	user, err := s.verifyRecord(ctx, claims, userID, func(t model.AuthToken) time.Time { return t.AccessExpiresAt })
	if err != nil {
		return Principal{}, err
	}

	principal := Principal{User: *user, TokenID: claims.ID, Permissions: []model.Permission{}}
	if user.AccessRoleID != nil {
		role, err := s.roleStore.GetByID(ctx, *user.AccessRoleID)
		if err != nil {
			return Principal{}, fmt.Errorf("load role: %w", err)
		}
		if role != nil {
			principal.RoleName = role.Name
			principal.Permissions = role.Permissions
		}
	}
	return principal, nil
}

// Refresh rotates a refresh token: the old record is revoked and a new pair
// is issued.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, userID, err := s.parse(refreshToken, tokenTypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}

	if _, err := s.verifyRecord(ctx, claims, userID, func(t model.AuthToken) time.Time { return t.RefreshExpiresAt }); err != nil {
		return TokenPair{}, err
	}

	if err := s.tokenStore.Revoke(ctx, claims.ID); err != nil {
		return TokenPair{}, fmt.Errorf("revoke old token: %w", err)
	}
	return s.issue(ctx, userID)
}

// Logout revokes the token record behind a session.
func (s *AuthService) Logout(ctx context.Context, tokenID string) error {
	if err := s.tokenStore.Revoke(ctx, tokenID); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// RevokeUserTokens revokes every session of a user.
func (s *AuthService) RevokeUserTokens(ctx context.Context, userID int64) error {
	if err := s.tokenStore.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke tokens of user %d: %w", userID, err)
	}
	return nil
}

// ChangePassword replaces a user's password after checking the current one,
// then revokes all of their sessions.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	user, err := s.userStore.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return driven.ErrNotFound
	}
	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if err := s.userStore.Update(ctx, *user); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return s.RevokeUserTokens(ctx, userID)
}

// PurgeExpiredTokens deletes token records whose refresh window has passed.
func (s *AuthService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.tokenStore.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	return n, nil
}

// IsAuthError reports whether err is one of the authentication failures that
// map to 401.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrTokenInvalid)
}
