package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/cacchoeira/FinanceProject/pkg/accounts"
	"github.com/cacchoeira/FinanceProject/pkg/api"
	"github.com/cacchoeira/FinanceProject/pkg/auth"
	"github.com/cacchoeira/FinanceProject/pkg/billing"
	"github.com/cacchoeira/FinanceProject/pkg/config"
	"github.com/cacchoeira/FinanceProject/pkg/entitlements"
	"github.com/cacchoeira/FinanceProject/pkg/middleware"
	"github.com/cacchoeira/FinanceProject/pkg/observability"
	"github.com/cacchoeira/FinanceProject/pkg/rbac"
	"github.com/cacchoeira/FinanceProject/pkg/storage/migrations"
	"github.com/cacchoeira/FinanceProject/pkg/storage/postgres"
)

var version = "dev"

var envFile = flag.String("env-file", ".env", "Optional dotenv file loaded before reading the environment")

func main() {
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("finance api exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	shutdown.Register("otel", providers.Shutdown)

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	db, err := postgres.Open(ctx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	shutdown.Register("database", func(context.Context) error { return db.Close() })
	logger.Info("Connected to PostgreSQL")

	if cfg.Database.AutoMigrate {
		if err := migrations.Run(db); err != nil {
			return err
		}
		logger.Info("Database migrations applied")
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = postgres.NewRedisClient(ctx, postgres.RedisConfig{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return err
		}
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
		logger.Info("Connected to Redis")
	}

	verifier, err := newVerifier(ctx, cfg.Identity)
	if err != nil {
		return err
	}

	rateLimits := newRateLimits(cfg, redisClient, metrics)

	roleStore := rbac.NewStore(db)
	accountStore := accounts.NewPostgresStore(db)
	resolver := accounts.NewResolver(roleStore, accountStore)

	gateway := billing.NewStripeGateway(billing.StripeConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Timeout:       cfg.Stripe.RequestTimeout,
	}, logger, metrics)
	billingService := billing.NewService(resolver, accountStore, gateway, metrics)

	catalog, err := loadCatalog(cfg.Billing.PlanCatalogFile)
	if err != nil {
		return err
	}
	entitlementService := entitlements.NewService(resolver, catalog, entitlements.NewPostgresUsage(db))

	server := api.NewServer(api.Dependencies{
		Logger:       logger,
		Metrics:      metrics,
		Verifier:     verifier,
		RateLimits:   rateLimits,
		Roles:        roleStore,
		Billing:      billingService,
		Entitlements: entitlementService,
		Plans:        catalog,
		CORSOrigins:  cfg.Server.CORSOrigins,
	})

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     log.New(logger.Writer(observability.WarnLevel), "", 0),
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           api.NewHealthRouter(observability.NewHealthChecker(db, redisClient, version), registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	shutdown.RegisterServer(apiServer)
	shutdown.RegisterServer(healthServer)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Billing.ReconcileSchedule != "" {
		reconciler := billing.NewReconciler(accountStore, gateway, cfg.Billing.ReconcileBatchSize, logger, metrics)
		if err := reconciler.Start(cfg.Billing.ReconcileSchedule); err != nil {
			return err
		}
		shutdown.Register("reconciler", reconciler.Stop)
	}

	if cfg.Billing.PlanCatalogFile != "" && cfg.Billing.WatchPlanCatalog {
		g.Go(func() error {
			if err := catalog.Watch(gctx, cfg.Billing.PlanCatalogFile, logger); err != nil {
				logger.WithError(err).Warn("plan catalog watcher stopped")
			}
			return nil
		})
	}

	if metrics != nil {
		g.Go(func() error {
			recordPoolStats(gctx, db, metrics)
			return nil
		})
	}

	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("Starting finance API server")
		return serve(apiServer)
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Starting health server")
		return serve(healthServer)
	})
	g.Go(func() error {
		return shutdown.Wait(gctx)
	})

	return g.Wait()
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server %s failed: %w", srv.Addr, err)
	}
	return nil
}

func newVerifier(ctx context.Context, cfg config.IdentityConfig) (auth.Verifier, error) {
	switch cfg.Mode {
	case "oidc_idtoken", "oidc_userinfo":
		verifier, err := auth.NewOIDCVerifier(ctx, auth.OIDCConfig{
			IssuerURL: cfg.Issuer,
			ClientID:  cfg.ClientID,
			Mode:      auth.OIDCMode(cfg.Mode),
			Timeout:   cfg.RequestTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OIDC verifier: %w", err)
		}
		return verifier, nil
	default:
		return auth.NewUserEndpointVerifier(cfg.BaseURL, cfg.AnonKey, cfg.RequestTimeout), nil
	}
}

func newRateLimits(cfg *config.Config, redisClient *redis.Client, metrics *observability.Metrics) *middleware.RateLimitMiddleware {
	general := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.GeneralLimit,
		WindowDuration:    cfg.RateLimit.GeneralWindow,
		MaxKeys:           cfg.RateLimit.MaxKeys,
	}
	authBudget := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.AuthLimit,
		WindowDuration:    cfg.RateLimit.AuthWindow,
		MaxKeys:           cfg.RateLimit.MaxKeys,
	}

	if cfg.RateLimit.Backend == "redis" && redisClient != nil {
		return middleware.NewRateLimitMiddleware(map[middleware.Policy]middleware.Limiter{
			middleware.PolicyGeneral: middleware.NewDistributedRateLimiter(redisClient, general, "finance:ratelimit"),
			middleware.PolicyAuth:    middleware.NewDistributedRateLimiter(redisClient, authBudget, "finance:ratelimit"),
		}, metrics, cfg.Server.TrustProxyHeaders)
	}
	return middleware.NewInMemoryRateLimitMiddleware(general, authBudget, metrics, cfg.Server.TrustProxyHeaders)
}

func loadCatalog(path string) (*entitlements.Catalog, error) {
	plans := entitlements.DefaultPlans()
	if path != "" {
		loaded, err := entitlements.LoadFile(path)
		if err != nil {
			return nil, err
		}
		plans = loaded
	}
	return entitlements.NewCatalog(plans)
}

func recordPoolStats(ctx context.Context, db *sql.DB, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.RecordDBStats(db)
		}
	}
}
