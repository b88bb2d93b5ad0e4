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

	"github.com/vasiliy-maslov/order-platform/order-service/internal/catalog"
	"github.com/vasiliy-maslov/order-platform/order-service/internal/events"
	orderHttp "github.com/vasiliy-maslov/order-platform/order-service/internal/handler/http"
	"github.com/vasiliy-maslov/order-platform/order-service/internal/idempotency"
	"github.com/vasiliy-maslov/order-platform/order-service/internal/order"
	"github.com/vasiliy-maslov/order-platform/pkg/auth"
	"github.com/vasiliy-maslov/order-platform/pkg/config"
	"github.com/vasiliy-maslov/order-platform/pkg/httpx"
	"github.com/vasiliy-maslov/order-platform/pkg/logger"
	"github.com/vasiliy-maslov/order-platform/pkg/metrics"
	"github.com/vasiliy-maslov/order-platform/pkg/telemetry"
)

const serviceName = "order-service"

func main() {
	cfg, err := config.NewConfig(serviceName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init(serviceName, cfg.App.Env, cfg.App.LogLevel)
	log.Info().Msg("starting order-service")

	ctx := context.Background()

	shutdownTracer, err := telemetry.SetupTracer(ctx, serviceName, cfg.App.Env, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token verifier")
	}

	catalogClient := catalog.NewHTTPClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout)

	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("publishing order events to kafka")
	}

	var guard idempotency.Guard
	closeGuard := func() error { return nil }
	if cfg.Redis.Addr != "" {
		redisClient := idempotency.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("failed to connect to redis")
		}
		guard = idempotency.NewRedisGuard(redisClient, serviceName, idempotency.DefaultPendingTTL, idempotency.DefaultTTL)
		closeGuard = redisClient.Close
	} else {
		guard = idempotency.NewMemoryGuard(idempotency.DefaultPendingTTL, idempotency.DefaultTTL)
	}

	serverMetrics := metrics.NewServerMetrics(serviceName)
	outcomes := serverMetrics.NewCounterVec("orders_created_total", "Order creation attempts by outcome.", "outcome")

	orderSvc := order.NewService(order.NewMemoryStore(), catalogClient,
		order.WithPublisher(publisher),
		order.WithOutcomeCounter(outcomes),
	)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(logger.Middleware()...)
	router.Use(middleware.Recoverer)
	router.Use(serverMetrics.Middleware)

	router.Get("/health", httpx.Health(serviceName))
	router.Handle("/metrics", serverMetrics.Handler())
	orderHttp.NewOrderHandler(orderSvc, issuer, guard).RegisterRoutes(router)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Str("catalog", cfg.Catalog.BaseURL).Msg("starting HTTP server")
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
	if err := publisher.Close(); err != nil {
		log.Error().Err(err).Msg("event publisher close failed")
	}
	if err := closeGuard(); err != nil {
		log.Error().Err(err).Msg("redis close failed")
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracer shutdown failed")
	}

	log.Info().Msg("order-service stopped gracefully")
}
