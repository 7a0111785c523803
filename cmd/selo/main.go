package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/selo-amazonia-go/internal/config"
	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/handler"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/cache"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/client"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/memstore"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/observability"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/payment"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/postgres"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/resilience"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/storage"
	"github.com/boddenberg/selo-amazonia-go/internal/port"
	"github.com/boddenberg/selo-amazonia-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("use_postgres", cfg.DatabaseURL != ""),
		zap.Bool("use_redis", cfg.RedisAddr != ""),
		zap.String("storage_driver", cfg.StorageDriver),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("registry_timeout", cfg.RegistryTimeout),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
		zap.Duration("jwt_refresh_ttl", cfg.JWTRefreshTTL),
	)

	ctx := context.Background()

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "selo-amazonia")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Store ---
	var store port.Store
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Connect(ctx, postgres.Config{URL: cfg.DatabaseURL}, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pg.Close()
		store = pg
		logger.Info("using PostgreSQL store")
	} else {
		store = memstore.New()
		logger.Warn("DATABASE_URL not set, using in-memory store (data is lost on restart)")
	}

	// --- Cache ---
	var catalogCache port.CatalogCache
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisCatalog(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL,
		}, metrics, logger)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rc.Close()
		catalogCache = rc
		logger.Info("using Redis catalog cache", zap.String("addr", cfg.RedisAddr))
	} else {
		mc := cache.NewMemoryCatalog(cfg.CacheTTL, metrics)
		defer mc.Close()
		catalogCache = mc
	}
	registryCache := cache.New[*domain.RegistryCompany](cfg.CacheTTL)
	defer registryCache.Close()

	// --- Document storage ---
	files, err := storage.NewDriver(&storage.Config{
		Driver:             cfg.StorageDriver,
		UploadsPath:        cfg.UploadsPath,
		PublicBaseURL:      cfg.PublicBaseURL,
		AWSRegion:          cfg.AWSRegion,
		AWSBucket:          cfg.AWSBucket,
		AWSAccessKeyID:     cfg.AWSAccessKey,
		AWSSecretAccessKey: cfg.AWSSecretKey,
		AWSEndpoint:        cfg.AWSEndpoint,
	})
	if err != nil {
		logger.Fatal("failed to init document storage", zap.Error(err))
	}

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	registryClient := client.NewRegistryClient(
		httpClient,
		cfg.RegistryAPIURL,
		cfg.RegistryTimeout,
		resilience.NewCircuitBreaker("registry"),
		resilienceCfg,
		registryCache,
		metrics,
		logger,
	)

	gateway := payment.NewStripeGateway(payment.StripeConfig{
		BaseURL:   cfg.StripeAPIURL,
		SecretKey: cfg.StripeSecretKey,
		Timeout:   cfg.HTTPTimeout,
	}, resilience.NewCircuitBreaker("stripe"), resilienceCfg, metrics, logger)
	if cfg.StripeSecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY not set, checkout sessions will be rejected by the gateway")
	}
	verifier := payment.NewWebhookVerifier(cfg.StripeWebhookSecret, payment.DefaultTolerance)

	// --- Services ---
	authSvc := service.NewAuthService(store, cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL, logger)
	docSvc := service.NewDocumentService(files, cfg.MaxUploadBytes, logger)

	services := handler.Services{
		Auth:           authSvc,
		Catalog:        service.NewCatalogService(store, docSvc, catalogCache, metrics, logger),
		Producers:      service.NewProducerService(store, docSvc, logger),
		Certifications: service.NewCertificationService(store, docSvc, catalogCache, metrics, logger),
		Cart:           service.NewCartService(store, metrics, logger),
		Orders:         service.NewOrderService(store, logger),
		Companies:      service.NewCompanyService(store, registryClient, docSvc, logger),
		Payments: service.NewPaymentService(store, gateway, verifier, service.PaymentURLs{
			Success: cfg.CheckoutSuccessURL,
			Cancel:  cfg.CheckoutCancelURL,
		}, metrics, logger),
		Dashboard: service.NewDashboardService(store, metrics),
		Store:     store,
	}

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if err := authSvc.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			logger.Fatal("failed to bootstrap admin", zap.Error(err))
		}
	}

	// --- Router ---
	router := handler.NewRouter(services, handler.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
