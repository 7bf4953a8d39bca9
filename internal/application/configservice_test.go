package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/devpulse/internal/application"
	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

// recordingFactory builds mock clients and records the credentials used.
type recordingFactory struct {
	client *mockGitClient
	calls  []string
}

func (r *recordingFactory) build(provider model.Provider, org, token string) (driven.GitClient, error) {
	r.calls = append(r.calls, string(provider)+"|"+org+"|"+token)
	return r.client, nil
}

func TestConfigService_AzureMasksPAT(t *testing.T) {
	store := newMockConfigStore(map[string]string{
		model.ConfigAzureOrganization: "acme",
		model.ConfigAzurePAT:          "abcdefghijklmnop",
	})
	factory := &recordingFactory{client: &mockGitClient{}}
	svc := application.NewConfigService(store, application.NewClientProvider(store, factory.build))

	settings, err := svc.Azure(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "acme", settings.Organization)
	assert.True(t, settings.Configured)
	assert.NotContains(t, settings.PAT, "abcdefghijklmnop")
	assert.NotEmpty(t, settings.PAT)
}

func TestConfigService_SetAzureResetsClients(t *testing.T) {
	store := newMockConfigStore(nil)
	factory := &recordingFactory{client: &mockGitClient{}}
	clients := application.NewClientProvider(store, factory.build)
	svc := application.NewConfigService(store, clients)
	ctx := context.Background()

	_, err := svc.SetAzure(ctx, "", "pat")
	assert.ErrorIs(t, err, application.ErrValidation)

	_, err = svc.SetAzure(ctx, "acme", "first-pat")
	require.NoError(t, err)
	_, err = clients.System(ctx, model.ProviderAzureDevOps, "")
	require.NoError(t, err)

	settings, err := svc.SetAzure(ctx, "acme", "")
	require.NoError(t, err)
	assert.True(t, settings.Configured, "empty PAT keeps the stored one")

	_, err = svc.SetAzure(ctx, "acme", "second-pat")
	require.NoError(t, err)
	_, err = clients.System(ctx, model.ProviderAzureDevOps, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"azure_devops|acme|first-pat", "azure_devops|acme|second-pat"}, factory.calls)
}

func TestConfigService_TestAzure(t *testing.T) {
	store := newMockConfigStore(map[string]string{model.ConfigAzurePAT: "stored-pat"})
	client := &mockGitClient{}
	factory := &recordingFactory{client: client}
	svc := application.NewConfigService(store, application.NewClientProvider(store, factory.build))
	ctx := context.Background()

	require.NoError(t, svc.TestAzure(ctx, "acme", ""))
	assert.Equal(t, []string{"azure_devops|acme|stored-pat"}, factory.calls, "falls back to the stored PAT")

	client.validate = func(context.Context) error { return errors.New("401 Unauthorized") }
	err := svc.TestAzure(ctx, "acme", "typed-pat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	_, stillStored := store.values[model.ConfigAzureOrganization]
	assert.False(t, stillStored, "testing never stores credentials")
}

func TestConfigService_BrowseRequiresConfiguration(t *testing.T) {
	store := newMockConfigStore(nil)
	factory := &recordingFactory{client: &mockGitClient{}}
	svc := application.NewConfigService(store, application.NewClientProvider(store, factory.build))
	ctx := context.Background()

	_, err := svc.AzureProjects(ctx)
	assert.ErrorIs(t, err, application.ErrUpstreamNotConfigured)

	_, err = svc.SetAzure(ctx, "acme", "pat")
	require.NoError(t, err)

	projects, err := svc.AzureProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 1)

	repos, err := svc.AzureRepositories(ctx, "Platform")
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "Platform", repos[0].Project)

	_, err = svc.AzureRepositories(ctx, " ")
	assert.ErrorIs(t, err, application.ErrValidation)
}

func TestConfigService_SetGitHubToken(t *testing.T) {
	store := newMockConfigStore(nil)
	factory := &recordingFactory{client: &mockGitClient{}}
	svc := application.NewConfigService(store, application.NewClientProvider(store, factory.build))
	ctx := context.Background()

	require.NoError(t, svc.SetGitHubToken(ctx, "ghp_abc"))
	assert.Equal(t, "ghp_abc", store.values[model.ConfigGitHubToken])

	require.NoError(t, svc.SetGitHubToken(ctx, ""))
	_, ok := store.values[model.ConfigGitHubToken]
	assert.False(t, ok)
}
