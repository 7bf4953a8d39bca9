package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
	"github.com/ericfisherdev/devpulse/internal/secret"
)

// AzureSettings is the stored Azure DevOps connection. The PAT is masked
// when read back.
type AzureSettings struct {
	Organization string `json:"organization"`
	PAT          string `json:"pat"`
	Configured   bool   `json:"configured"`
}

// ConfigService manages upstream credentials and browses the upstream
// catalogue with them.
type ConfigService struct {
	store   driven.ConfigStore
	clients *ClientProvider
}

// NewConfigService creates a ConfigService.
func NewConfigService(store driven.ConfigStore, clients *ClientProvider) *ConfigService {
	return &ConfigService{store: store, clients: clients}
}

// Azure returns the stored Azure DevOps settings with the PAT masked.
func (s *ConfigService) Azure(ctx context.Context) (AzureSettings, error) {
	org, err := s.store.Get(ctx, model.ConfigAzureOrganization)
	if err != nil {
		return AzureSettings{}, fmt.Errorf("get azure organization: %w", err)
	}
	pat, err := s.store.Get(ctx, model.ConfigAzurePAT)
	if err != nil {
		return AzureSettings{}, fmt.Errorf("get azure pat: %w", err)
	}

	return AzureSettings{
		Organization: org,
		PAT:          secret.Mask(pat),
		Configured:   org != "" && pat != "",
	}, nil
}

// SetAzure stores the Azure DevOps organization and PAT. An empty PAT keeps
// the stored one, so a client can resubmit the masked form unchanged.
// Cached upstream clients are dropped.
func (s *ConfigService) SetAzure(ctx context.Context, organization, pat string) (AzureSettings, error) {
	organization = strings.TrimSpace(organization)
	pat = strings.TrimSpace(pat)
	if organization == "" {
		return AzureSettings{}, fmt.Errorf("organization is required: %w", ErrValidation)
	}

	if err := s.store.Set(ctx, model.ConfigAzureOrganization, organization); err != nil {
		return AzureSettings{}, fmt.Errorf("set azure organization: %w", err)
	}
	if pat != "" {
		if err := s.store.Set(ctx, model.ConfigAzurePAT, pat); err != nil {
			return AzureSettings{}, fmt.Errorf("set azure pat: %w", err)
		}
	}

	s.clients.Reset()
	return s.Azure(ctx)
}

// SetGitHubToken stores the system GitHub token. An empty token removes it.
func (s *ConfigService) SetGitHubToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)

	var err error
	if token == "" {
		err = s.store.Delete(ctx, model.ConfigGitHubToken)
	} else {
		err = s.store.Set(ctx, model.ConfigGitHubToken, token)
	}
	if err != nil {
		return fmt.Errorf("set github token: %w", err)
	}

	s.clients.Reset()
	return nil
}

// TestAzure checks the supplied credentials, or the stored ones when
// organization is empty, without storing anything.
func (s *ConfigService) TestAzure(ctx context.Context, organization, pat string) error {
	client, err := s.azureClient(ctx, organization, pat)
	if err != nil {
		return err
	}
	if err := client.ValidateConnection(ctx); err != nil {
		return fmt.Errorf("%w: validate azure devops connection: %w", ErrUpstream, err)
	}
	return nil
}

// AzureProjects lists the projects visible to the stored credentials.
func (s *ConfigService) AzureProjects(ctx context.Context) ([]model.RemoteProject, error) {
	client, err := s.azureClient(ctx, "", "")
	if err != nil {
		return nil, err
	}
	projects, err := client.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list azure projects: %w", ErrUpstream, err)
	}
	return projects, nil
}

// AzureRepositories lists the repositories of a project.
func (s *ConfigService) AzureRepositories(ctx context.Context, project string) ([]model.RemoteRepository, error) {
	if strings.TrimSpace(project) == "" {
		return nil, fmt.Errorf("project is required: %w", ErrValidation)
	}

	client, err := s.azureClient(ctx, "", "")
	if err != nil {
		return nil, err
	}
	repos, err := client.ListRepositories(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("%w: list azure repositories of %s: %w", ErrUpstream, project, err)
	}
	return repos, nil
}

func (s *ConfigService) azureClient(ctx context.Context, organization, pat string) (driven.GitClient, error) {
	organization = strings.TrimSpace(organization)
	if organization == "" {
		return s.clients.System(ctx, model.ProviderAzureDevOps, "")
	}

	if pat == "" {
		stored, err := s.store.Get(ctx, model.ConfigAzurePAT)
		if err != nil {
			return nil, fmt.Errorf("get azure pat: %w", err)
		}
		pat = stored
	}
	if pat == "" {
		return nil, fmt.Errorf("azure devops pat: %w", ErrUpstreamNotConfigured)
	}
	return s.clients.Build(model.ProviderAzureDevOps, organization, pat)
}
