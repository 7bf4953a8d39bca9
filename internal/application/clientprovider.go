package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

// ClientFactory builds a remote client for a provider, organization and token.
type ClientFactory func(provider model.Provider, organization, token string) (driven.GitClient, error)

// ClientProvider resolves the remote client used for a repository. Clients
// built from the system credentials are cached until Reset, so a credential
// update takes effect without restarting the application.
type ClientProvider struct {
	config  driven.ConfigStore
	factory ClientFactory

	mu      sync.RWMutex
	clients map[string]driven.GitClient
}

// NewClientProvider creates a ClientProvider reading system credentials
// from config.
func NewClientProvider(config driven.ConfigStore, factory ClientFactory) *ClientProvider {
	return &ClientProvider{
		config:  config,
		factory: factory,
		clients: make(map[string]driven.GitClient),
	}
}

// ForRepository returns a client for repo. A repository with its own access
// token gets a dedicated client; otherwise the system client of its provider
// is used.
func (p *ClientProvider) ForRepository(ctx context.Context, repo model.Repository) (driven.GitClient, error) {
	if repo.AccessToken != "" {
		client, err := p.factory(repo.Provider, repo.Organization, repo.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("build client for %s: %w", repo.FullName(), err)
		}
		return client, nil
	}
	return p.System(ctx, repo.Provider, repo.Organization)
}

// System returns the cached client built from the stored system credentials.
// An empty organization uses the configured Azure organization.
func (p *ClientProvider) System(ctx context.Context, provider model.Provider, organization string) (driven.GitClient, error) {
	org, token, err := p.systemCredentials(ctx, provider, organization)
	if err != nil {
		return nil, err
	}

	key := string(provider) + "|" + org

	p.mu.RLock()
	client, ok := p.clients[key]
	p.mu.RUnlock()
	if ok {
		return client, nil
	}

	client, err = p.factory(provider, org, token)
	if err != nil {
		return nil, fmt.Errorf("build %s client: %w", provider, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.clients[key]; ok {
		return existing, nil
	}
	p.clients[key] = client
	return client, nil
}

// Build returns an uncached client for explicit credentials.
func (p *ClientProvider) Build(provider model.Provider, organization, token string) (driven.GitClient, error) {
	return p.factory(provider, organization, token)
}

// Reset drops every cached client. The next caller builds a fresh one from
// the current credentials.
func (p *ClientProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients = make(map[string]driven.GitClient)
}

func (p *ClientProvider) systemCredentials(ctx context.Context, provider model.Provider, organization string) (string, string, error) {
	switch provider {
	case model.ProviderAzureDevOps:
		token, err := p.config.Get(ctx, model.ConfigAzurePAT)
		if err != nil {
			return "", "", fmt.Errorf("read azure credentials: %w", err)
		}
		if organization == "" {
			if organization, err = p.config.Get(ctx, model.ConfigAzureOrganization); err != nil {
				return "", "", fmt.Errorf("read azure organization: %w", err)
			}
		}
		if token == "" || organization == "" {
			return "", "", fmt.Errorf("azure devops: %w", ErrUpstreamNotConfigured)
		}
		return organization, token, nil

	case model.ProviderGitHub:
		token, err := p.config.Get(ctx, model.ConfigGitHubToken)
		if err != nil {
			return "", "", fmt.Errorf("read github credentials: %w", err)
		}
		if token == "" {
			return "", "", fmt.Errorf("github: %w", ErrUpstreamNotConfigured)
		}
		return organization, token, nil

	default:
		return "", "", fmt.Errorf("unknown provider %q: %w", provider, ErrValidation)
	}
}
