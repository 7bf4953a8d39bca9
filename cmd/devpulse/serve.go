package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/devpulse/internal/adapter/driven/azuread"
	"github.com/ericfisherdev/devpulse/internal/adapter/driven/azuredevops"
	githubadapter "github.com/ericfisherdev/devpulse/internal/adapter/driven/github"
	"github.com/ericfisherdev/devpulse/internal/adapter/driven/kv"
	sqliteadapter "github.com/ericfisherdev/devpulse/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/devpulse/internal/adapter/driving/http"
	"github.com/ericfisherdev/devpulse/internal/application"
	"github.com/ericfisherdev/devpulse/internal/config"
	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
	"github.com/ericfisherdev/devpulse/internal/secret"
	"github.com/ericfisherdev/devpulse/internal/supervisor"
)

const (
	kvGCInterval      = 5 * time.Minute
	tokenPurgeEvery   = time.Hour
	httpDrainTimeout  = 10 * time.Second
	syncDrainTimeout  = 30 * time.Second
	identityTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
}

func runServe(parent context.Context, flags *globalFlags) error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := loadConfig(flags, os.Stderr)
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"kv_in_memory", cfg.InMemoryKV(),
		"sync_interval", cfg.SyncInterval,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database and run migrations on the writer connection.
	db, err := openDatabase(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer closeDatabase(db)
	slog.Info("database ready", "path", cfg.DBPath)

	// 4. Open the lock and cache store.
	store, err := kv.Open(cfg.KVPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("error closing kv store", "error", closeErr)
		}
	}()

	box, err := secret.NewBox(cfg.EncryptionBytes)
	if err != nil {
		return fmt.Errorf("encryption key: %w", err)
	}

	// 5. Wire adapters.
	repoStore := sqliteadapter.NewRepoRepo(db, box)
	prStore := sqliteadapter.NewPRRepo(db)
	commitStore := sqliteadapter.NewCommitRepo(db)
	reviewStore := sqliteadapter.NewReviewRepo(db)
	developerStore := sqliteadapter.NewDeveloperRepo(db)
	dimensionStore := sqliteadapter.NewDimensionRepo(db)
	jobStore := sqliteadapter.NewSyncJobRepo(db)
	configStore := sqliteadapter.NewConfigRepo(db, box)
	userStore := sqliteadapter.NewUserRepo(db)
	roleStore := sqliteadapter.NewAccessRoleRepo(db)
	tokenStore := sqliteadapter.NewTokenRepo(db)

	clients := application.NewClientProvider(configStore, remoteClientFactory(cfg))
	identity := azuread.NewGraphProvider(cfg.GraphAPIURL, &http.Client{Timeout: identityTimeout})

	// 6. Create services.
	authCfg := application.DefaultAuthConfig(cfg.JWTSecret)
	authCfg.AccessTTL = cfg.JWTAccessTTL
	authCfg.RefreshTTL = cfg.JWTRefreshTTL
	auth := application.NewAuthService(userStore, roleStore, tokenStore, developerStore, identity, authCfg)

	pipeline := application.NewSyncPipeline(prStore, commitStore, reviewStore, developerStore, application.DefaultPipelineLimits())
	syncCfg := application.DefaultSyncConfig()
	syncCfg.LockTTL = cfg.SyncLockTTL
	syncs := application.NewSyncService(repoStore, jobStore, kv.NewLocker(store), clients, pipeline, syncCfg)

	// 7. Jobs left pending or running by a previous process can never finish.
	if _, err := syncs.RecoverInterruptedJobs(ctx); err != nil {
		return err
	}

	// 8. Create HTTP handler and router.
	handler := httphandler.NewHandler(httphandler.Deps{
		Auth:       auth,
		Users:      application.NewUserService(userStore, roleStore, developerStore, auth),
		Syncs:      syncs,
		KPIs:       application.NewKPIService(sqliteadapter.NewKPIRepo(db), dimensionStore, kv.NewCache(store), cfg.KPICacheTTL),
		Config:     application.NewConfigService(configStore, clients),
		Repos:      repoStore,
		PRs:        prStore,
		Reviews:    reviewStore,
		Developers: developerStore,
		Dimensions: dimensionStore,
		DB:         db,
	}, slog.Default())

	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		CORSOrigins:   cfg.CORSOrigins,
		RateLimit:     cfg.RateLimit,
		AuthRateLimit: cfg.AuthRateLimit,
	}, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 9. Build the supervisor tree.
	tree := supervisor.NewTree(slog.Default(), supervisor.DefaultTreeConfig())
	tree.AddAPIService(supervisor.NewHTTPServerService(srv, httpDrainTimeout))
	tree.AddBackgroundService(kv.NewGCService(store, kvGCInterval))
	tree.AddBackgroundService(supervisor.NewPeriodicService("token-purge", tokenPurgeEvery, func(ctx context.Context) error {
		n, err := auth.PurgeExpiredTokens(ctx)
		if err == nil && n > 0 {
			slog.Info("purged expired tokens", "count", n)
		}
		return err
	}))
	if cfg.SyncInterval > 0 {
		tree.AddBackgroundService(application.NewSyncScheduler(repoStore, syncs, cfg.SyncInterval))
	}

	slog.Info("devpulse started", "listen_addr", cfg.ListenAddr)

	// 10. Run until a shutdown signal arrives.
	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		slog.Error("supervisor stopped unexpectedly", "error", err)
	}
	slog.Info("shutting down")

	// 11. Let running syncs record their terminal state before the stores close.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), syncDrainTimeout)
	defer cancel()
	if err := syncs.Shutdown(shutdownCtx); err != nil {
		slog.Error("sync shutdown incomplete", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// remoteClientFactory builds upstream clients against the configured API
// base URLs.
func remoteClientFactory(cfg *config.Config) application.ClientFactory {
	return func(provider model.Provider, organization, token string) (driven.GitClient, error) {
		switch provider {
		case model.ProviderAzureDevOps:
			return azuredevops.NewClient(cfg.AzureAPIURL, organization, token), nil
		case model.ProviderGitHub:
			client, err := githubadapter.NewClient(cfg.GitHubAPIURL, token)
			if err != nil {
				return nil, err
			}
			return client, nil
		default:
			return nil, fmt.Errorf("provider %q: %w", provider, application.ErrValidation)
		}
	}
}
