// Package azuread resolves Azure AD access tokens into identities through
// Microsoft Graph.
package azuread

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
	"github.com/ericfisherdev/devpulse/internal/metrics"
)

// DefaultGraphURL is the Microsoft Graph v1.0 endpoint.
const DefaultGraphURL = "https://graph.microsoft.com/v1.0"

// ErrInvalidToken is returned when Graph rejects the access token.
var ErrInvalidToken = errors.New("azure ad token rejected")

// Compile-time interface satisfaction check.
var _ driven.IdentityProvider = (*GraphProvider)(nil)

// GraphProvider implements driven.IdentityProvider by calling Graph /me with
// the caller's access token.
type GraphProvider struct {
	baseURL string
	http    *http.Client
}

// NewGraphProvider creates a GraphProvider. A nil httpClient uses
// http.DefaultClient.
func NewGraphProvider(baseURL string, httpClient *http.Client) *GraphProvider {
	if baseURL == "" {
		baseURL = DefaultGraphURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GraphProvider{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type meResponse struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// Profile returns the identity behind accessToken.
func (p *GraphProvider) Profile(ctx context.Context, accessToken string) (*model.ExternalIdentity, error) {
	if accessToken == "" {
		return nil, ErrInvalidToken
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.http)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/me", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		metrics.RecordUpstreamRequest("graph", 0)
		return nil, fmt.Errorf("fetch graph profile: %w", err)
	}
	defer resp.Body.Close()

	metrics.RecordUpstreamRequest("graph", resp.StatusCode)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrInvalidToken
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("graph API error %d: %s", resp.StatusCode, string(body))
	}

	var me meResponse
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return nil, fmt.Errorf("decode graph profile: %w", err)
	}

	email := me.Mail
	if email == "" {
		email = me.UserPrincipalName
	}
	if me.ID == "" || email == "" {
		return nil, fmt.Errorf("graph profile missing id or email: %w", ErrInvalidToken)
	}

	return &model.ExternalIdentity{
		ObjectID:    me.ID,
		Email:       strings.ToLower(strings.TrimSpace(email)),
		DisplayName: me.DisplayName,
	}, nil
}
