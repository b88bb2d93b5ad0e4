package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/order-platform/pkg/auth"
	"github.com/vasiliy-maslov/order-platform/pkg/config"
	"github.com/vasiliy-maslov/order-platform/pkg/db"
	"github.com/vasiliy-maslov/order-platform/pkg/httpx"
	"github.com/vasiliy-maslov/order-platform/pkg/logger"
	"github.com/vasiliy-maslov/order-platform/pkg/metrics"
	"github.com/vasiliy-maslov/order-platform/pkg/telemetry"
	userHttp "github.com/vasiliy-maslov/order-platform/user-service/internal/handler/http"
	"github.com/vasiliy-maslov/order-platform/user-service/internal/user"
)

const serviceName = "user-service"

func main() {
	cfg, err := config.NewConfig(serviceName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init(serviceName, cfg.App.Env, cfg.App.LogLevel)
	log.Info().Msg("starting user-service")

	ctx := context.Background()

	shutdownTracer, err := telemetry.SetupTracer(ctx, serviceName, cfg.App.Env, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token issuer")
	}

	var userRepository user.Repository
	closeStore := func() {}
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		pool, err := db.NewPool(ctx, cfg.Postgres)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		if err := db.MigratePool(pool, user.Migrations, cfg.Postgres.DBName); err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
		userRepository = user.NewPostgresRepository(pool)
		closeStore = pool.Close
	default:
		userRepository = user.NewMemoryRepository()
	}

	userSvc, err := user.NewService(userRepository, issuer, cfg.Auth.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create user service")
	}

	if cfg.Auth.AdminEmail != "" {
		if err := userSvc.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			log.Fatal().Err(err).Msg("failed to bootstrap admin account")
		}
	}

	serverMetrics := metrics.NewServerMetrics(serviceName)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(logger.Middleware()...)
	router.Use(middleware.Recoverer)
	router.Use(serverMetrics.Middleware)

	router.Get("/health", httpx.Health(serviceName))
	router.Handle("/metrics", serverMetrics.Handler())
	userHttp.NewAuthHandler(userSvc).RegisterRoutes(router)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("port", cfg.App.Port).Msg("could not listen")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracer shutdown failed")
	}
	closeStore()

	log.Info().Msg("user-service stopped gracefully")
}
