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

	"github.com/vasiliy-maslov/order-platform/catalog-service/internal/catalog"
	productHttp "github.com/vasiliy-maslov/order-platform/catalog-service/internal/handler/http"
	"github.com/vasiliy-maslov/order-platform/pkg/auth"
	"github.com/vasiliy-maslov/order-platform/pkg/config"
	"github.com/vasiliy-maslov/order-platform/pkg/db"
	"github.com/vasiliy-maslov/order-platform/pkg/httpx"
	"github.com/vasiliy-maslov/order-platform/pkg/logger"
	"github.com/vasiliy-maslov/order-platform/pkg/metrics"
	"github.com/vasiliy-maslov/order-platform/pkg/telemetry"
)

const serviceName = "catalog-service"

func main() {
	cfg, err := config.NewConfig(serviceName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init(serviceName, cfg.App.Env, cfg.App.LogLevel)
	log.Info().Msg("starting catalog-service")

	ctx := context.Background()

	shutdownTracer, err := telemetry.SetupTracer(ctx, serviceName, cfg.App.Env, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token verifier")
	}

	var productRepository catalog.Repository
	closeStore := func() {}
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		conn, err := db.Connect(cfg.Postgres)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		if err := db.MigrateSQL(conn.DB, catalog.Migrations, cfg.Postgres.DBName); err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
		productRepository = catalog.NewPostgresRepository(conn)
		closeStore = func() {
			if err := conn.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close database connection")
			}
		}
	default:
		productRepository = catalog.NewMemoryRepository()
	}

	productSvc := catalog.NewService(productRepository)
	serverMetrics := metrics.NewServerMetrics(serviceName)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(logger.Middleware()...)
	router.Use(middleware.Recoverer)
	router.Use(serverMetrics.Middleware)

	router.Get("/health", httpx.Health(serviceName))
	router.Handle("/metrics", serverMetrics.Handler())
	productHttp.NewProductHandler(productSvc, issuer).RegisterRoutes(router)

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

	log.Info().Msg("catalog-service stopped gracefully")
}
