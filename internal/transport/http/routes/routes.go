package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stackpilot/teamgate/internal/core/port"
	"github.com/stackpilot/teamgate/internal/infra/config"
	"github.com/stackpilot/teamgate/internal/infra/telemetry"
	"github.com/stackpilot/teamgate/internal/transport/http/cookie"
	"github.com/stackpilot/teamgate/internal/transport/http/handlers"
	"github.com/stackpilot/teamgate/internal/transport/http/middleware"
	"github.com/stackpilot/teamgate/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Sessions  *usecase.SessionService
	CSRF      *usecase.CSRFService
	Directory port.DirectoryService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Metrics     *telemetry.Metrics
	RateLimiter *middleware.RateLimiter
	CookieStore *cookie.Store
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		authHandler := handlers.NewAuthHandler(deps.Services.Directory, deps.Services.Sessions, deps.CookieStore)
		authGroup := api.Group("/auth")
		authHandler.RegisterRoutes(authGroup, buildRateLimit(deps, "auth_callback_ip", authLimit)...)

		authenticated := api.Group("")
		authenticated.Use(middleware.RequireSession(deps.Services.Sessions, deps.CookieStore))
		authenticated.Use(middleware.TouchActivity(deps.Services.Sessions, deps.CookieStore))

		csrfHandler := handlers.NewCSRFHandler(deps.Services.CSRF, deps.CookieStore)
		csrfRoute := append(buildRateLimit(deps, "csrf_issue_ip", csrfLimit), csrfHandler.Issue)
		authenticated.GET("/csrf", csrfRoute...)

		// Safe methods pass straight through the guard; only mutating
		// verbs need the double-submit token.
		guarded := authenticated.Group("")
		guarded.Use(buildRateLimit(deps, "session_ip", sessionLimit)...)
		guarded.Use(middleware.CSRFGuard(deps.Services.CSRF, deps.CookieStore, deps.Logger))

		sessionHandler := handlers.NewSessionHandler(deps.Services.Sessions, deps.Services.Directory, deps.CookieStore)
		sessionHandler.RegisterRoutes(guarded)

		organizationHandler := handlers.NewOrganizationHandler(deps.Services.Directory, deps.Services.Sessions, deps.CookieStore)
		organizationHandler.RegisterRoutes(guarded)
	}

	return r
}

type limitSelector func(config.RateLimitSettings) int

func authLimit(s config.RateLimitSettings) int    { return s.AuthMaxAttempts }
func sessionLimit(s config.RateLimitSettings) int { return s.SessionMaxAttempts }
func csrfLimit(s config.RateLimitSettings) int    { return s.CSRFMaxAttempts }

func buildRateLimit(deps Dependencies, name string, selector limitSelector) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := selector(deps.Config.RateLimit)
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
