package http

import (
	"time"

	"github.com/freelance-marketplace/contract-workflow/internal/config"
	"github.com/freelance-marketplace/contract-workflow/internal/http/handlers"
	"github.com/freelance-marketplace/contract-workflow/internal/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Handlers struct {
	Contract       *handlers.ContractHandler
	Milestone      *handlers.MilestoneHandler
	PaymentRequest *handlers.PaymentRequestHandler
	User           *handlers.UserHandler
	Meta           *handlers.MetaHandler
	WS             *handlers.WSHub
}

// SetupRouter mounts every route. A nil rdb disables rate limiting and
// idempotency replay, which is how the handler tests run.
func SetupRouter(app *fiber.App, cfg *config.Config, log *zap.Logger, rdb *redis.Client, h Handlers) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, Idempotency-Key",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1")

	api.Get("/meta/statuses", h.Meta.GetStatuses)

	// Identity provider sync
	internal := api.Group("/internal", middleware.InternalTokenMiddleware(cfg.InternalToken))
	internal.Post("/users", h.User.SyncUser)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg.JWTSecret, log))
	if rdb != nil {
		protected.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute))
		protected.Use(middleware.IdempotencyMiddleware(middleware.NewRedisIdempotencyStore(rdb), cfg.IdempotencyTTL, log))
	}

	protected.Get("/me", h.User.GetMe)

	// Contracts
	protected.Post("/contracts", h.Contract.CreateContract)
	protected.Get("/contracts", h.Contract.ListContracts)
	protected.Get("/contracts/:id", h.Contract.GetContract)
	protected.Get("/contracts/:id/overview", h.Contract.GetOverview)
	protected.Get("/contracts/:id/history", h.Contract.GetHistory)
	protected.Get("/contracts/:id/actions", h.Contract.GetActions)
	protected.Post("/contracts/:id/accept", h.Contract.AcceptContract)
	protected.Post("/contracts/:id/reject", h.Contract.RejectContract)
	protected.Post("/contracts/:id/cancel", h.Contract.CancelContract)
	protected.Post("/contracts/:id/complete", h.Contract.CompleteContract)

	// Milestones
	protected.Get("/contracts/:id/milestones", h.Milestone.ListMilestones)
	protected.Post("/contracts/:id/milestones", h.Milestone.CreateMilestone)
	protected.Put("/contracts/:id/milestones/:mid", h.Milestone.UpdateMilestone)
	protected.Put("/contracts/:id/milestones/:mid/status", h.Milestone.TransitionStatus)
	protected.Delete("/contracts/:id/milestones/:mid", h.Milestone.DeleteMilestone)
	protected.Post("/contracts/:id/milestones/:mid/payment-requests", h.Milestone.RequestPayment)

	// Payment requests
	protected.Get("/payment-requests", h.PaymentRequest.ListPaymentRequests)
	protected.Get("/payment-requests/:id", h.PaymentRequest.GetPaymentRequest)
	protected.Post("/payment-requests/:id/approve", h.PaymentRequest.Approve)
	protected.Post("/payment-requests/:id/reject", h.PaymentRequest.Reject)
	protected.Post("/payment-requests/:id/process", h.PaymentRequest.Process)
	protected.Get("/payment-requests/:id/payments", h.PaymentRequest.ListPayments)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(h.WS.HandleWS))
}
