package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/AlibekovAA/session-guard/internal/audit"
	authhttp "github.com/AlibekovAA/session-guard/internal/auth/http"
	"github.com/AlibekovAA/session-guard/internal/auth/ratelimit"
	authrepo "github.com/AlibekovAA/session-guard/internal/auth/repository"
	"github.com/AlibekovAA/session-guard/internal/auth/service"
	"github.com/AlibekovAA/session-guard/internal/common/clock"
	"github.com/AlibekovAA/session-guard/internal/common/config"
	"github.com/AlibekovAA/session-guard/internal/common/constants"
	commoncrypto "github.com/AlibekovAA/session-guard/internal/common/crypto"
	"github.com/AlibekovAA/session-guard/internal/common/db"
	commonhttp "github.com/AlibekovAA/session-guard/internal/common/http"
	"github.com/AlibekovAA/session-guard/internal/common/logger"
	"github.com/AlibekovAA/session-guard/internal/common/resilience"
)

type App struct {
	Log   *logger.Logger
	Pool  *pgxpool.Pool
	Redis *redis.Client
	Store authrepo.TokenStore
}

type AuthApp struct {
	App
	Config     config.AuthConfig
	Sessions   *service.SessionService
	Handler    http.Handler
	Limiter    ratelimit.Limiter
	AuditQueue *audit.Dispatcher
	AuditHub   *audit.StreamHub
}

// NewAuthApp loads configuration and builds the service graph. The caller
// owns the returned app and must call Close.
func NewAuthApp(ctx context.Context) (*AuthApp, error) {
	log, err := initializeLogger("auth")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.LoadAuthConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	app, err := initializeApp(ctx, log, cfg)
	if err != nil {
		return nil, err
	}

	clk := clock.NewRealClock()

	limiter, err := initializeLimiter(ctx, app, cfg, clk)
	if err != nil {
		app.close()
		return nil, err
	}

	fileSink, err := audit.NewFileLogrusSink(cfg.AuditLogDir)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to initialize audit log: %w", err)
	}
	hub := audit.NewStreamHub(log)
	queue := audit.NewDispatcher(audit.Config{
		BufferSize: cfg.AuditBufferSize,
		DropIfFull: true,
	}, audit.MultiSink{fileSink, audit.MetricsSink{}, hub})

	hasher, err := commoncrypto.NewBlake2bHasher(cfg.TokenHashPepper)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to initialize token hasher: %w", err)
	}
	secrets := commoncrypto.NewRandomSecretGenerator()
	ids := commoncrypto.NewUUIDGenerator()

	registry := service.NewFamilyRegistry(app.Store, secrets, hasher, ids, cfg.RefreshTokenTTL, cfg.MaxActiveFamilies, clk, queue, log)
	revocation := service.NewRevocationService(app.Store, hasher, clk, queue, log)
	engine := service.NewRotationEngine(service.RotationEngineDeps{
		Store:      app.Store,
		Limiter:    limiter,
		Revocation: revocation,
		Secrets:    secrets,
		Hasher:     hasher,
		IDs:        ids,
		Clock:      clk,
		Audit:      queue,
		Log:        log,
	}, cfg.RefreshTokenTTL, service.RaceLossPolicy(cfg.RaceLossPolicy))
	issuer := service.NewTokenIssuer(cfg.JWTSecret, ids, cfg.AccessTokenTTL, clk)
	sessions := service.NewSessionService(registry, engine, revocation, issuer, hasher, log)

	health := map[string]commonhttp.HealthCheck{"store": app.Store.Ping}
	if app.Redis != nil {
		health["redis"] = func(ctx context.Context) error { return app.Redis.Ping(ctx).Err() }
	}

	router := authhttp.NewRouter(sessions, hub, health, authhttp.Config{
		RequestTimeout: cfg.RequestTimeout,
		JWTSecret:      cfg.JWTSecret,
		InternalAPIKey: cfg.InternalAPIKey,
		CookieSecure:   cfg.CookieSecure,
	}, log)

	return &AuthApp{
		App:        *app,
		Config:     cfg,
		Sessions:   sessions,
		Handler:    router,
		Limiter:    limiter,
		AuditQueue: queue,
		AuditHub:   hub,
	}, nil
}

// Close flushes pending audit events and releases connections.
func (a *AuthApp) Close() {
	a.AuditHub.Close()
	a.AuditQueue.Close()
	a.App.close()
}

func initializeApp(ctx context.Context, log *logger.Logger, cfg config.AuthConfig) (*App, error) {
	app := &App{Log: log}

	breaker := resilience.CircuitBreakerConfig{
		Threshold:  cfg.CircuitBreakerThreshold,
		Timeout:    cfg.CircuitBreakerTimeout,
		ResetAfter: cfg.CircuitBreakerReset,
		Name:       "token_store",
		Logger:     log,
	}

	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		log.Warn("using in-memory token store, sessions will not survive a restart")
		app.Store = authrepo.NewMemoryTokenStore()
	default:
		pool, err := db.NewPool(ctx, log, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database pool: %w", err)
		}
		app.Pool = pool
		app.Store = authrepo.NewResilientTokenStore(authrepo.NewPgTokenStore(pool, log), breaker)
	}

	return app, nil
}

func initializeLimiter(ctx context.Context, app *App, cfg config.AuthConfig, clk clock.Clock) (ratelimit.Limiter, error) {
	if cfg.RateLimitBackend != config.RateLimitBackendRedis {
		limiter := ratelimit.NewMemoryLimiter(cfg.RotationRateLimit, cfg.RotationRateWindow, clk)
		limiter.Start(ctx)
		return limiter, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, constants.DBPoolConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	app.Redis = client
	app.Log.Infof("rotation rate limiter: redis backend at %s", opts.Addr)
	return ratelimit.NewRedisLimiter(client, cfg.RotationRateLimit, cfg.RotationRateWindow, clk), nil
}

func (a *App) close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Warnf("failed to close redis client: %v", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}

func initializeLogger(serviceName string) (*logger.Logger, error) {
	return logger.New(os.Getenv("LOG_DIR"), serviceName, os.Getenv("LOG_LEVEL"))
}
