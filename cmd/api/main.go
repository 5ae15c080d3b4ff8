package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/freelance-marketplace/contract-workflow/internal/config"
	"github.com/freelance-marketplace/contract-workflow/internal/db"
	"github.com/freelance-marketplace/contract-workflow/internal/events"
	apphttp "github.com/freelance-marketplace/contract-workflow/internal/http"
	"github.com/freelance-marketplace/contract-workflow/internal/http/handlers"
	"github.com/freelance-marketplace/contract-workflow/internal/repositories"
	"github.com/freelance-marketplace/contract-workflow/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns: cfg.PostgresMaxConns,
		MinConns: cfg.PostgresMinConns,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	store := repositories.NewPGStore(pool, repositories.RetryPolicy{
		MaxAttempts: cfg.TxMaxAttempts,
		BaseDelay:   cfg.TxBaseDelay,
		MaxDelay:    cfg.TxMaxDelay,
	}, log)

	// Events
	publisher, subscriber, closeBus, err := newEventBus(cfg, rdb, log)
	if err != nil {
		log.Fatal("failed to set up event bus", zap.Error(err))
	}
	defer closeBus()

	// Services
	workflow := services.NewWorkflowService(store, publisher, log)
	query := services.NewQueryService(store, log)
	users := services.NewUserService(store.Users(), log)

	wsHub := handlers.NewWSHub(cfg.JWTSecret, subscriber, log)
	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to start ws hub", zap.Error(err))
	}

	app := fiber.New(fiber.Config{ErrorHandler: apphttp.ErrorHandler})

	apphttp.SetupRouter(app, cfg, log, rdb, apphttp.Handlers{
		Contract:       handlers.NewContractHandler(workflow, query, log),
		Milestone:      handlers.NewMilestoneHandler(workflow, query, log),
		PaymentRequest: handlers.NewPaymentRequestHandler(workflow, query, log),
		User:           handlers.NewUserHandler(users, log),
		Meta:           handlers.NewMetaHandler(),
		WS:             wsHub,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr), zap.String("events_backend", cfg.EventsBackend))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

// newEventBus picks the broker named by EVENTS_BACKEND. The websocket hub
// always gets its own exclusive queue so every API replica sees every event.
func newEventBus(cfg *config.Config, rdb *redis.Client, log *zap.Logger) (events.Publisher, events.Subscriber, func(), error) {
	if cfg.EventsBackend != "amqp" {
		return events.NewRedisPublisher(rdb, log), events.NewRedisSubscriber(rdb, log), func() {}, nil
	}

	pub, err := events.NewAMQPPublisher(cfg.AMQPURL, log)
	if err != nil {
		return nil, nil, nil, err
	}
	sub, err := events.NewAMQPSubscriber(cfg.AMQPURL, "", log)
	if err != nil {
		pub.Close()
		return nil, nil, nil, err
	}
	return pub, sub, func() {
		sub.Close()
		pub.Close()
	}, nil
}
