package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/prompt-shirt/internal/config"
	"github.com/vasiliy-maslov/prompt-shirt/internal/db"
	"github.com/vasiliy-maslov/prompt-shirt/internal/fulfillment"
	orderHandler "github.com/vasiliy-maslov/prompt-shirt/internal/handler/http"
	"github.com/vasiliy-maslov/prompt-shirt/internal/metrics"
	"github.com/vasiliy-maslov/prompt-shirt/internal/mockup"
	"github.com/vasiliy-maslov/prompt-shirt/internal/moderation"
	"github.com/vasiliy-maslov/prompt-shirt/internal/order"
	"github.com/vasiliy-maslov/prompt-shirt/internal/payment"
)

func main() {
	log.Logger = log.With().Str("service", "order-service").Logger()
	log.Info().Msg("Order service starting...")

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg.App)

	prices, err := priceTable(cfg.Pricing)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid pricing configuration")
	}

	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("Failed to open order store")
	}
	defer closeStore()

	if cfg.Stripe.SecretKey == "" || cfg.Stripe.WebhookSecret == "" {
		log.Warn().Msg("Stripe keys are not fully configured; checkout and webhooks will fail")
	}
	gateway := payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)

	fulfiller := order.Fulfiller(fulfillment.NewLogFulfiller())
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := fulfillment.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close kafka publisher")
			}
		}()
		fulfiller = fulfillment.NewChain(fulfillment.NewLogFulfiller(), publisher)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Publishing print requests to kafka")
	}

	reg := metrics.NewRegistry()
	filter := moderation.Default()

	checkoutService := order.NewCheckoutService(gateway, store, filter, reg, order.CheckoutConfig{
		BaseURL:     cfg.App.BaseURL,
		ProductName: cfg.Pricing.ProductName,
		Prices:      prices,
		Timeout:     cfg.Stripe.GatewayTimeout,
	})
	webhookProcessor := order.NewWebhookProcessor(gateway, store, fulfiller, reg)
	orderService := order.NewService(store)
	generator := mockup.NewPlaceholderGenerator(cfg.Layout.MaxWidth, cfg.Layout.MaxLines)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(reg.Instrument)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	router.Method(http.MethodGet, "/metrics", reg.Handler())

	orderHandler.NewOrderHandler(checkoutService, webhookProcessor, orderService).RegisterRoutes(router)
	orderHandler.NewMockupHandler(generator, filter).RegisterRoutes(router)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Str("store", cfg.Store.Driver).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
		return
	}
	log.Info().Msg("Server stopped")
}

func setupLogger(cfg config.AppConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", "order-service").Logger()
}

// openStore returns the configured order store and a func releasing it.
func openStore(ctx context.Context, cfg *config.Config) (order.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		if err := db.Migrate(cfg.Postgres); err != nil {
			return nil, nil, err
		}
		pg, err := db.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		return order.NewPostgresStore(pg.Pool), pg.Close, nil
	case config.StorePebble:
		ps, err := order.NewPebbleStore(cfg.Store.PebbleDir)
		if err != nil {
			return nil, nil, err
		}
		return ps, func() {
			if err := ps.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close pebble store")
			}
		}, nil
	default:
		log.Warn().Msg("Using in-memory order store; orders are lost on restart")
		return order.NewMemoryStore(), func() {}, nil
	}
}

func priceTable(cfg config.PricingConfig) (order.PriceTable, error) {
	table := order.PriceTable{
		BaseCents:      cfg.BaseCents,
		Currency:       strings.ToLower(cfg.Currency),
		SizeSurcharge:  make(map[order.ShirtSize]int64, len(cfg.SizeSurcharge)),
		ColorSurcharge: make(map[order.ShirtColor]int64, len(cfg.ColorSurcharge)),
	}
	for size, cents := range cfg.SizeSurcharge {
		table.SizeSurcharge[order.ShirtSize(strings.ToUpper(size))] = cents
	}
	for color, cents := range cfg.ColorSurcharge {
		table.ColorSurcharge[order.ShirtColor(strings.ToLower(color))] = cents
	}
	return table, table.Validate()
}
