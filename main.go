// main.go
package main

import (
	"context"
	"log"
	"time"

	"stay-booking/cmd"
	"stay-booking/internal/data/repository"
	"stay-booking/internal/wire"
	"stay-booking/pkg/cache"
	"stay-booking/pkg/database"
	"stay-booking/pkg/gateway"
	"stay-booking/pkg/mq"
	"stay-booking/pkg/obs"
	"stay-booking/pkg/realtime"
	"stay-booking/pkg/utils"

	"go.uber.org/zap"
)

func main() {
	// Load config
	config, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := utils.InitLogger(config.App.LogPath, config.App.Name, config.App.Debug)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("app", config.App.Name),
		zap.String("port", config.App.Port),
		zap.Bool("debug", config.App.Debug),
	)

	shutdownTracer, err := obs.InitTracer(config.App.Name, config.Tracing)
	if err != nil {
		logger.Fatal("Failed to init tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logger.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}()

	// Connect to database
	db, err := database.InitDB(config.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connected successfully")

	rdb, err := cache.NewRedisClient(config.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	var events mqPublisher = mq.NopPublisher{}
	if config.Events.URL != "" {
		publisher, err := mq.NewPublisher(config.Events.URL, config.Events.Exchange)
		if err != nil {
			logger.Fatal("Failed to connect to broker", zap.Error(err))
		}
		events = publisher
		logger.Info("Publishing events", zap.String("exchange", config.Events.Exchange))
	} else {
		logger.Warn("RABBIT_URL not set, settlement events are dropped")
	}
	defer events.Close()

	gw := gateway.NewClient(gateway.Config{
		BaseURL:          config.Gateway.BaseURL,
		APIKey:           config.Gateway.APIKey,
		HMACSecret:       config.Gateway.HMACSecret,
		IntegrationID:    config.Gateway.IntegrationID,
		IframeID:         config.Gateway.IframeID,
		Currency:         config.Gateway.Currency,
		Timeout:          config.Gateway.Timeout,
		TokenTTL:         config.Gateway.TokenTTL,
		PaymentKeyExpiry: config.Gateway.PaymentKeyExpiry,
	}, logger)

	// Initialize all repositories
	repos := repository.NewRepository(db, logger)

	// Wire all dependencies
	app := wire.Wiring(repos, wire.Infra{
		Gateway:     gw,
		Idempotency: cache.NewIdempotencyStore(rdb, config.Booking.IdempotencyTTL, logger),
		Locker:      cache.NewLocker(rdb, logger),
		Cache:       cache.NewJSONCache(rdb),
		Events:      events,
		Hub:         realtime.NewHub(),
	}, config, logger)

	// Start server
	logger.Info("Starting HTTP server", zap.String("port", config.App.Port))

	if err := cmd.APIServer(app.Router, config.App.Port, logger); err != nil {
		logger.Error("Server error", zap.Error(err))
	}
}

type mqPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
	Close() error
}
