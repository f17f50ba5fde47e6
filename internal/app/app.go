package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/searchgate/server/internal/module/auth"
	"github.com/searchgate/server/internal/module/gateway"
	"github.com/searchgate/server/internal/module/instance"
	"github.com/searchgate/server/internal/module/ledger"
	"github.com/searchgate/server/internal/module/payment"
	"github.com/searchgate/server/internal/module/search"
	"github.com/searchgate/server/internal/module/usage"
	"github.com/searchgate/server/internal/ratelimit"
	sharedcache "github.com/searchgate/server/internal/shared/cache"
	"github.com/searchgate/server/internal/shared/config"
	"github.com/searchgate/server/internal/shared/database"
	"github.com/searchgate/server/internal/shared/logger"
	"github.com/searchgate/server/internal/shared/metrics"
	"github.com/searchgate/server/internal/shared/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App wires the gateway together: shared infrastructure, module services,
// HTTP handlers, and the background loops.
type App struct {
	config  *config.Config
	db      *gorm.DB
	redis   redis.UniversalClient
	router  *gin.Engine
	logger  *zap.Logger
	metrics *metrics.Metrics

	// Modules
	registry       *instance.Registry
	healthMonitor  *instance.HealthMonitor
	ledgerService  *ledger.Service
	usageRecorder  *usage.Recorder
	gatewayService *gateway.Service

	// Handlers
	gatewayHandler *gateway.Handler
	paymentHandler *payment.Handler
	webhookHandler *payment.WebhookHandler
	authMiddleware gin.HandlerFunc

	sweepCancel context.CancelFunc
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	zapLog, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	app := &App{
		config:  cfg,
		logger:  zapLog,
		metrics: metrics.New("searchgate", nil),
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	app.db = db

	if err := app.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	// Redis is optional. Without it the registry loses its snapshot mirror
	// and the rate limiter must use the memory backend.
	if cfg.Redis.Address != "" {
		redisClient, err := sharedcache.NewRedisClient(&cfg.Redis)
		if err != nil {
			zapLog.Warn("redis unavailable, continuing without it", zap.Error(err))
		} else {
			app.redis = redisClient
		}
	}

	if err := app.initModules(); err != nil {
		return nil, fmt.Errorf("init modules: %w", err)
	}
	app.router = app.setupRouter()

	if err := app.startBackground(); err != nil {
		return nil, fmt.Errorf("start background tasks: %w", err)
	}

	return app, nil
}

func (a *App) migrate() error {
	return a.db.AutoMigrate(
		&ledger.CreditBalance{},
		&usage.Record{},
		&instance.SearchInstance{},
		&payment.CreditPurchase{},
		&auth.ApiCredential{},
	)
}

func (a *App) initModules() error {
	cfg := a.config

	a.ledgerService = ledger.NewService(ledger.NewRepository(a.db), a.logger)
	a.usageRecorder = usage.NewRecorder(usage.NewRepository(a.db), a.logger)

	instanceRepo := instance.NewRepository(a.db)
	if err := a.seedDefaultInstances(instanceRepo); err != nil {
		return fmt.Errorf("seed default instances: %w", err)
	}
	a.registry = instance.NewRegistry(instanceRepo, a.redis, instance.RegistryConfig{
		DefaultURLs:     cfg.Search.DefaultInstances,
		RefreshInterval: cfg.Search.RegistryRefreshInterval,
		SnapshotTTL:     cfg.Search.HealthSnapshotTTL,
	}, a.logger)

	probeClient := &http.Client{Timeout: cfg.Search.AttemptTimeout}
	a.healthMonitor = instance.NewHealthMonitor(
		a.registry,
		instanceRepo,
		instance.NewHTTPProber(probeClient),
		a.metrics,
		instance.HealthMonitorConfig{CheckInterval: cfg.Search.HealthCheckInterval},
		a.logger,
	)

	proxy := search.NewProxy(
		a.registry,
		&http.Client{},
		a.metrics,
		search.ProxyConfig{
			AttemptTimeout: cfg.Search.AttemptTimeout,
			MaxAttempts:    cfg.Search.MaxAttempts,
		},
		a.logger,
	)

	limiter, err := a.buildLimiter()
	if err != nil {
		return err
	}

	a.gatewayService = gateway.NewService(proxy, a.ledgerService, limiter, a.usageRecorder, a.metrics, a.logger)
	a.gatewayHandler = gateway.NewHandler(a.gatewayService, a.ledgerService, a.usageRecorder, a.logger)

	authRepo := auth.NewRepository(a.db)
	resolver := auth.NewResolver(authRepo, auth.NewJWTManager(&auth.JWTConfig{
		Secret:      cfg.Auth.JWTSecret,
		TokenExpiry: 24 * time.Hour,
		Issuer:      "searchgate",
	}), a.logger)
	a.authMiddleware = auth.Middleware(resolver)

	paymentService := payment.NewService(
		payment.NewRepository(a.db),
		a.ledgerService,
		credentialAccounts{repo: authRepo},
		a.metrics,
		a.logger,
	)
	a.paymentHandler = payment.NewHandler(paymentService, cfg.Payment.StripeAPIKey, a.logger)
	a.webhookHandler = payment.NewWebhookHandler(paymentService, cfg.Payment.StripeWebhookSecret, a.logger)

	return nil
}

// seedDefaultInstances registers the configured default upstreams so the
// health monitor tracks them from the first boot. Rows that already exist
// keep their health fields; activity and priority follow the config order.
func (a *App) seedDefaultInstances(repo instance.Repository) error {
	ctx := context.Background()
	for i, url := range a.config.Search.DefaultInstances {
		inst := &instance.SearchInstance{
			URL:          url,
			IsActive:     true,
			HealthStatus: instance.HealthStatusUnknown,
			Priority:     i,
		}
		if err := repo.Upsert(ctx, inst); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) buildLimiter() (ratelimit.Limiter, error) {
	cfg := a.config.RateLimit
	switch cfg.Backend {
	case "", "memory":
		return ratelimit.NewMemoryLimiter(cfg.Limit, cfg.Window), nil
	case "redis":
		if a.redis == nil {
			return nil, fmt.Errorf("rate limit backend is redis but redis is unavailable")
		}
		return ratelimit.NewRedisLimiter(a.redis, cfg.Limit, cfg.Window), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
	}
}

// credentialAccounts treats any account holding at least one API credential
// as known. Payments for accounts that never registered are rejected.
type credentialAccounts struct {
	repo auth.Repository
}

func (v credentialAccounts) Exists(ctx context.Context, accountID string) (bool, error) {
	creds, err := v.repo.ListByAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	return len(creds) > 0, nil
}

func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Metrics(a.metrics))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	a.gatewayHandler.RegisterPublicRoutes(v1)

	webhooks := v1.Group("/webhooks")
	a.webhookHandler.RegisterRoutes(webhooks)

	authed := v1.Group("")
	authed.Use(a.authMiddleware)
	a.gatewayHandler.RegisterRoutes(authed)
	a.paymentHandler.RegisterRoutes(authed)

	return r
}

func (a *App) startBackground() error {
	ctx := context.Background()
	if err := a.registry.Start(ctx); err != nil {
		// A cold database at boot is tolerable. The refresh loop retries
		// and the static defaults cover candidate selection until then.
		a.logger.Warn("instance registry started without initial snapshot", zap.Error(err))
	}
	a.healthMonitor.Start()

	sweepCtx, cancel := context.WithCancel(ctx)
	a.sweepCancel = cancel
	go a.usageRecorder.RunRetentionSweep(sweepCtx, a.config.Usage.RetentionPeriod, a.config.Usage.SweepInterval)

	return nil
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop shuts down background loops and closes shared resources.
func (a *App) Stop() {
	if a.sweepCancel != nil {
		a.sweepCancel()
	}
	a.healthMonitor.Stop()
	a.registry.Stop()

	if a.redis != nil {
		if err := sharedcache.Close(a.redis); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
