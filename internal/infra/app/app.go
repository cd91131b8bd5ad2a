package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/stackpilot/teamgate/internal/core/port"
	"github.com/stackpilot/teamgate/internal/infra/config"
	"github.com/stackpilot/teamgate/internal/infra/database"
	"github.com/stackpilot/teamgate/internal/infra/directory"
	kafkainfra "github.com/stackpilot/teamgate/internal/infra/kafka"
	"github.com/stackpilot/teamgate/internal/infra/logger"
	redisinfra "github.com/stackpilot/teamgate/internal/infra/redis"
	"github.com/stackpilot/teamgate/internal/infra/security"
	"github.com/stackpilot/teamgate/internal/infra/telemetry"
	postgresrepo "github.com/stackpilot/teamgate/internal/repository/postgres"
	redisrepo "github.com/stackpilot/teamgate/internal/repository/redis"
	"github.com/stackpilot/teamgate/internal/transport/http/cookie"
	"github.com/stackpilot/teamgate/internal/transport/http/middleware"
	"github.com/stackpilot/teamgate/internal/transport/http/routes"
	"github.com/stackpilot/teamgate/internal/usecase"
)

// Application bundles the wired service graph and its long-lived resources.
type Application struct {
	cfg     *config.AppConfig
	engine  *gin.Engine
	logger  *zap.Logger
	pool    *pgxpool.Pool
	redis   *redisinfra.Client
	tracing *telemetry.TracerProvider
}

// New constructs the full application from configuration: infrastructure
// clients first, then repositories, services and the HTTP router.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tracing, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	sessionCodec, err := security.NewSessionCodec(cfg.Session.Secret, cfg.Session.Issuer)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init session codec: %w", err)
	}
	csrfCodec, err := security.NewCSRFCodec(cfg.Session.Secret)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init csrf codec: %w", err)
	}

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	directoryClient := directory.NewClient(cfg.Directory, log)
	provisionLocker := redisrepo.NewProvisionLockRepository(redisClient.Client(), cfg.Redis.ProvisionLockPrefix)
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), cfg.Redis.RateLimitPrefix)
	auditStore := postgresrepo.NewAuditRepository(pool)

	organizationService := usecase.NewOrganizationService(directoryClient, provisionLocker, eventPublisher, log)

	policy := usecase.SessionPolicy{
		StandardTTL:           cfg.Session.StandardTTL,
		RememberMeTTL:         cfg.Session.RememberMeTTL,
		StandardIdleCeiling:   cfg.Session.StandardIdleCeiling,
		RememberMeIdleCeiling: cfg.Session.RememberMeIdleCeiling,
	}
	metrics := telemetry.NewMetrics()

	sessionService := usecase.NewSessionService(sessionCodec, organizationService, policy, log).
		WithEventPublisher(eventPublisher).
		WithAuditStore(auditStore).
		WithMetrics(metrics)

	csrfService := usecase.NewCSRFService(csrfCodec, sessionService, cfg.CSRF.TTL, log).
		WithMetrics(metrics).
		WithAuditStore(auditStore)

	cookieStore := cookie.NewStore(cookie.Config{
		Name:             cfg.Cookie.Name,
		Domain:           cfg.Cookie.Domain,
		Path:             cfg.Cookie.Path,
		Secure:           cfg.App.IsProduction(),
		RememberMeMaxAge: cfg.Session.RememberMeTTL,
		StandardMaxAge:   cfg.Session.StandardTTL,
	})

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Metrics:     metrics,
		RateLimiter: middleware.NewRateLimiter(rateLimitStore, log).WithMetrics(metrics),
		CookieStore: cookieStore,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Sessions:  sessionService,
			CSRF:      csrfService,
			Directory: directoryClient,
		},
	})

	return &Application{
		cfg:     cfg,
		engine:  engine,
		logger:  log,
		pool:    pool,
		redis:   redisClient,
		tracing: tracing,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.tracing != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = a.tracing.Shutdown(shutdownCtx)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting teamgate API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
