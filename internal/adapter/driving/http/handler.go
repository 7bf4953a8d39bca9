// Package httphandler is the HTTP driving adapter that serves the REST API.
package httphandler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/devpulse/internal/application"
	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps groups the services and stores the handlers call.
type Deps struct {
	Auth       *application.AuthService
	Users      *application.UserService
	Syncs      *application.SyncService
	KPIs       *application.KPIService
	Config     *application.ConfigService
	Repos      driven.RepoStore
	PRs        driven.PRStore
	Reviews    driven.ReviewStore
	Developers driven.DeveloperStore
	Dimensions driven.DimensionStore
	DB         Pinger
}

// RouterConfig holds the cross-cutting HTTP settings.
type RouterConfig struct {
	CORSOrigins []string
	// RateLimit is the per-IP request budget per minute for the whole API.
	RateLimit int
	// AuthRateLimit is the stricter per-IP budget per minute for the
	// credential endpoints.
	AuthRateLimit int
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	auth       *application.AuthService
	users      *application.UserService
	syncs      *application.SyncService
	kpis       *application.KPIService
	config     *application.ConfigService
	repos      driven.RepoStore
	prs        driven.PRStore
	reviews    driven.ReviewStore
	developers driven.DeveloperStore
	dimensions driven.DimensionStore
	db         Pinger
	logger     *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(deps Deps, logger *slog.Logger) *Handler {
	return &Handler{
		auth:       deps.Auth,
		users:      deps.Users,
		syncs:      deps.Syncs,
		kpis:       deps.KPIs,
		config:     deps.Config,
		repos:      deps.Repos,
		prs:        deps.PRs,
		reviews:    deps.Reviews,
		developers: deps.Developers,
		dimensions: deps.Dimensions,
		db:         deps.DB,
		logger:     logger,
	}
}

// NewRouter creates an http.Handler with all routes registered and wrapped
// with logging, recovery, CORS and rate limiting middleware.
func NewRouter(h *Handler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Logging outermost so recovered panics are still logged as 500s.
	r.Use(loggingMiddleware(logger))
	r.Use(recoveryMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeValidation, "method not allowed")
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limitPerMinute(cfg.RateLimit))

		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(limitPerMinute(cfg.AuthRateLimit))
			r.Post("/auth/login", h.Login)
			r.Post("/auth/azure", h.LoginWithAzure)
			r.Post("/auth/refresh", h.Refresh)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware)

			r.Post("/auth/logout", h.Logout)
			r.Get("/auth/me", h.Me)
			r.Put("/auth/password", h.ChangePassword)

			r.Route("/sync", h.syncRoutes)
			r.Route("/repositories", h.repositoryRoutes)
			r.With(requirePermission(model.PermKPIsRead)).Get("/pull-requests/{id}", h.GetPullRequest)

			r.Route("/teams", h.dimensionRoutes(model.DimensionTeam))
			r.Route("/roles", h.dimensionRoutes(model.DimensionRole))
			r.Route("/stacks", h.dimensionRoutes(model.DimensionStack))
			r.Route("/developers", h.developerRoutes)

			r.Route("/users", h.userRoutes)
			r.Route("/access-roles", h.accessRoleRoutes)
			r.Route("/config", h.configRoutes)
			r.Route("/kpis", h.kpiRoutes)
		})
	})

	return r
}

// limitPerMinute returns a per-IP limiter, or a pass-through when
// requests is not positive.
func limitPerMinute(requests int) func(http.Handler) http.Handler {
	if requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(requests, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimited),
	)
}

// Health reports service liveness and database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC().Format(time.RFC3339)

	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Time: now})
			return
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Time: now})
}
