package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freelance-marketplace/contract-workflow/internal/config"
	"github.com/freelance-marketplace/contract-workflow/internal/db"
	"github.com/freelance-marketplace/contract-workflow/internal/events"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Notify bridge: subscribes to contract workflow events and POSTs each one
// to the notification webhook, addressed to the contract's parties.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}
	cfg.Validate(log)
	if cfg.NotifyWebhookURL == "" {
		log.Fatal("NOTIFY_WEBHOOK_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subscriber, closeSub, err := newSubscriber(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to set up subscriber", zap.Error(err))
	}
	defer closeSub()

	fwd := &forwarder{
		url:    cfg.NotifyWebhookURL,
		client: &http.Client{Timeout: cfg.NotifyTimeout},
		log:    log,
	}
	if err := subscriber.Subscribe(ctx, events.Stream, fwd.forward); err != nil {
		log.Fatal("failed to subscribe", zap.Error(err))
	}

	// Health endpoint for the orchestrator
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	go func() {
		if err := app.Listen(fmt.Sprintf(":%s", cfg.BridgePort)); err != nil {
			log.Error("health server error", zap.Error(err))
		}
	}()

	log.Info("notify-bridge started", zap.String("backend", cfg.EventsBackend))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down notify-bridge")
	cancel()
	_ = app.Shutdown()
}

func newSubscriber(ctx context.Context, cfg *config.Config, log *zap.Logger) (events.Subscriber, func(), error) {
	if cfg.EventsBackend == "amqp" {
		// Durable shared queue: replicas compete and nothing is lost while the bridge is down.
		sub, err := events.NewAMQPSubscriber(cfg.AMQPURL, cfg.AMQPQueue, log)
		if err != nil {
			return nil, nil, err
		}
		sub.SetRetry(cfg.AMQPMaxRedeliveries, cfg.AMQPRetryDelay)
		return sub, sub.Close, nil
	}

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		return nil, nil, err
	}
	return events.NewRedisSubscriber(rdb, log), func() { _ = rdb.Close() }, nil
}

type notification struct {
	Type       string         `json:"type"`
	Recipients []string       `json:"recipients"`
	Payload    map[string]any `json:"payload"`
	SentAt     time.Time      `json:"sent_at"`
}

type forwarder struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

// forward posts one event. Errors are returned so the AMQP subscriber can
// redeliver; an event without parties has no one to notify and succeeds.
func (f *forwarder) forward(event events.Event) error {
	recipients := event.Recipients()
	if len(recipients) == 0 {
		return nil
	}

	body, err := json.Marshal(notification{
		Type:       event.Type,
		Recipients: recipients,
		Payload:    event.Payload,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		// Retrying cannot fix an encoding failure.
		f.log.Warn("failed to encode notification", zap.String("type", event.Type), zap.Error(err))
		return nil
	}

	resp, err := f.client.Post(f.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post %s notification: %w", event.Type, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("notification webhook returned %d for %s", resp.StatusCode, event.Type)
	}
	f.log.Info("notification forwarded", zap.String("type", event.Type), zap.Strings("recipients", recipients))
	return nil
}
