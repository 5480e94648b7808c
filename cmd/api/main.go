package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"github.com/angelmondragon/tastecert-backend/api/controllers"
	"github.com/angelmondragon/tastecert-backend/api/routes"
	"github.com/angelmondragon/tastecert-backend/internal/auth"
	"github.com/angelmondragon/tastecert-backend/internal/categories"
	"github.com/angelmondragon/tastecert-backend/internal/certificates"
	"github.com/angelmondragon/tastecert-backend/internal/evaluations"
	"github.com/angelmondragon/tastecert-backend/internal/notifications"
	"github.com/angelmondragon/tastecert-backend/internal/products"
	"github.com/angelmondragon/tastecert-backend/internal/qrcodes"
	"github.com/angelmondragon/tastecert-backend/internal/users"
	"github.com/angelmondragon/tastecert-backend/pkg/auth/session"
	"github.com/angelmondragon/tastecert-backend/pkg/clock"
	"github.com/angelmondragon/tastecert-backend/pkg/config"
	"github.com/angelmondragon/tastecert-backend/pkg/db"
	"github.com/angelmondragon/tastecert-backend/pkg/logger"
	"github.com/angelmondragon/tastecert-backend/pkg/metrics"
	"github.com/angelmondragon/tastecert-backend/pkg/migrate"
	"github.com/angelmondragon/tastecert-backend/pkg/observability"
	"github.com/angelmondragon/tastecert-backend/pkg/outbox"
	"github.com/angelmondragon/tastecert-backend/pkg/redis"
	"github.com/angelmondragon/tastecert-backend/pkg/storage"
	"github.com/angelmondragon/tastecert-backend/pkg/storage/drivers"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Release:     cfg.App.Release,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	flushSentry, err := observability.InitSentry(cfg.Sentry.DSN, cfg.App.Env, cfg.App.Release)
	if err != nil {
		logg.Error(context.Background(), "failed to init sentry", err)
		os.Exit(1)
	}
	defer flushSentry()

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	store, err := drivers.Open(context.Background(), cfg.Storage, cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to open asset store", err)
		os.Exit(1)
	}

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := metrics.NewHTTPMetrics(registry)
	domainMetrics := metrics.NewDomainMetrics(registry)

	params, err := buildServices(cfg, logg, dbClient, redisClient, sessionManager, store, domainMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to build services", err)
		os.Exit(1)
	}
	params.Config = cfg
	params.Logger = logg
	params.Redis = redisClient
	params.Sessions = sessionManager
	params.Metrics = httpMetrics
	params.Gatherer = registry
	params.Readiness = []controllers.Dependency{
		{Name: "database", Pinger: dbClient},
		{Name: "redis", Pinger: redisClient},
		{Name: "storage", Pinger: store},
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"addr":    addr,
		"release": cfg.App.Release,
		"storage": cfg.Storage.Driver,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(*params),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shut down gracefully")
	}
}

func buildServices(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	sessionManager *session.Manager,
	store storage.Store,
	domainMetrics *metrics.DomainMetrics,
) (*routes.Params, error) {
	gdb := dbClient.DB()
	clk := clock.NewRealClock()
	emitter := outbox.NewService(outbox.NewRepository(gdb), logg)
	userRepo := users.NewRepository(gdb)

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		return nil, err
	}
	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		TxRunner: dbClient,
		UserRepoFactory: func(tx *gorm.DB) auth.RegisterUserRepository {
			return users.NewRepository(tx)
		},
		PasswordConfig:    cfg.Password,
		AdminRegistration: cfg.FeatureFlags.AdminRegistration,
	})
	if err != nil {
		return nil, err
	}
	userService, err := users.NewService(userRepo, cfg.Password, sessionManager)
	if err != nil {
		return nil, err
	}
	categoryService, err := categories.NewService(categories.NewRepository(gdb))
	if err != nil {
		return nil, err
	}
	productService, err := products.NewService(products.ServiceParams{
		DB:           dbClient,
		Repo:         products.NewRepository(gdb),
		Outbox:       emitter,
		Store:        store,
		APIBaseURL:   cfg.App.APIBaseURL,
		ImageMaxEdge: cfg.Storage.ImageMaxEdge,
		MaxImageSize: cfg.Storage.MaxUploadBytes(),
		Logger:       logg,
	})
	if err != nil {
		return nil, err
	}
	evaluationService, err := evaluations.NewService(dbClient, evaluations.NewRepository(gdb), emitter)
	if err != nil {
		return nil, err
	}
	certificateService, err := certificates.NewService(certificates.ServiceParams{
		DB:            dbClient,
		Repo:          certificates.NewRepository(gdb),
		Allocator:     certificates.NewAllocator(clk),
		Outbox:        emitter,
		Store:         store,
		Cache:         redisClient,
		Metrics:       domainMetrics,
		Logger:        logg,
		APIBaseURL:    cfg.App.APIBaseURL,
		PublicBaseURL: cfg.App.PublicBaseURL,
		IssuerName:    cfg.Certificate.IssuerName,
		CacheTTL:      cfg.Certificate.VerificationCacheTTL,
		Clock:         clk,
	})
	if err != nil {
		return nil, err
	}
	renderOpts, err := qrcodes.OptionsFromConfig(cfg.QR)
	if err != nil {
		return nil, err
	}
	qrService, err := qrcodes.NewService(qrcodes.ServiceParams{
		Repo:          qrcodes.NewRepository(gdb),
		Store:         store,
		Render:        renderOpts,
		APIBaseURL:    cfg.App.APIBaseURL,
		PublicBaseURL: cfg.App.PublicBaseURL,
		Metrics:       domainMetrics,
		Logger:        logg,
		Clock:         clk,
	})
	if err != nil {
		return nil, err
	}
	notificationService, err := notifications.NewService(notifications.NewRepository(gdb))
	if err != nil {
		return nil, err
	}

	return &routes.Params{
		Auth:          authService,
		Register:      registerService,
		Users:         userService,
		Categories:    categoryService,
		Products:      productService,
		Evaluations:   evaluationService,
		Certificates:  certificateService,
		QRCodes:       qrService,
		Notifications: notificationService,
	}, nil
}
