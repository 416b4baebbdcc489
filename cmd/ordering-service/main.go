package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/digital-menu/ordering-service/internal/breaker"
	"github.com/digital-menu/ordering-service/internal/catalog"
	"github.com/digital-menu/ordering-service/internal/config"
	"github.com/digital-menu/ordering-service/internal/db"
	"github.com/digital-menu/ordering-service/internal/event"
	"github.com/digital-menu/ordering-service/internal/handler"
	"github.com/digital-menu/ordering-service/internal/order"
	"github.com/digital-menu/ordering-service/internal/product"
	"github.com/digital-menu/ordering-service/internal/transport"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().Msg("starting ordering-service")

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	pg, err := db.New(cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pg.Close()

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, product list cache disabled")
			rdb = nil
		}
	}

	// Validation sits on the order-creation path and needs a tight
	// timeout; the bulk sync pulls up to SyncLimit records and gets a
	// more generous one.
	catalogClient := catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.ValidateTimeout)
	syncClient := catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.SyncTimeout)
	catalogBreaker := breaker.New("catalog", cfg.Catalog.BreakerMaxFailures, cfg.Catalog.BreakerResetTimeout)
	productValidator := catalog.NewValidator(catalogClient, catalogBreaker)

	productRepository := product.NewRepository(pg.Pool)
	productCache := product.NewCache(rdb)
	productSyncer := product.NewSyncer(syncClient, productRepository, productCache, cfg.Catalog.SyncLimit)

	publisher := newPublisher(cfg)
	if closer, ok := publisher.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	orderRepository := order.NewRepository(pg.Pool)
	orderService := order.NewService(
		orderRepository,
		productRepository,
		productValidator,
		publisher,
		order.AvailabilityPolicy(cfg.Orders.AvailabilityPolicy),
	)

	orderHandler := handler.NewOrderHandler(orderService)
	productHandler := handler.NewProductHandler(productRepository, productCache, productSyncer)
	healthHandler := handler.NewHealthHandler(cfg.App.ServiceName, pg, catalogClient)

	router := transport.NewRouter(orderHandler, productHandler, healthHandler)

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
			log.Fatal().Err(err).Msg("HTTP server failed")
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

	log.Info().Msg("ordering-service stopped gracefully")
}

// newPublisher picks the event sink: Kafka when brokers are configured,
// the webhook sink when an event service URL is set, otherwise a no-op.
func newPublisher(cfg *config.Config) event.Publisher {
	if len(cfg.Events.KafkaBrokers) > 0 {
		log.Info().Strs("brokers", cfg.Events.KafkaBrokers).Str("topic", cfg.Events.KafkaTopic).Msg("publishing events to kafka")
		return event.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, cfg.App.ServiceName)
	}
	if cfg.Events.WebhookURL != "" {
		log.Info().Str("url", cfg.Events.WebhookURL).Msg("publishing events via webhook")
		return event.NewWebhookPublisher(cfg.Events.WebhookURL, cfg.App.ServiceName, cfg.Events.PublishTimeout)
	}
	log.Info().Msg("no event sink configured, events disabled")
	return event.NopPublisher{}
}
