package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/members-only/backend/internal/config"
	"github.com/members-only/backend/internal/http/handlers"
	"github.com/members-only/backend/internal/middleware"
	"github.com/members-only/backend/internal/rbac"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	hookHandler *handlers.HookHandler,
	frameHandler *handlers.FrameHandler,
	txHandler *handlers.TxHandler,
	adminHandler *handlers.AdminHandler,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	metaHandler := handlers.NewMetaHandler()
	app.Get("/health", metaHandler.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// Neynar webhooks
	verify := middleware.WebhookSignatureMiddleware(cfg.NeynarWebhookSecret, log)
	api.Post("/hook-setup", verify, hookHandler.Setup)
	api.Post("/hook-validate", verify, hookHandler.Validate)

	// Rate-limited public endpoints
	api.Use(middleware.RateLimitMiddleware(rdb, "api", 120, time.Minute))

	// Frames: GET renders the first screen, POST advances on a click.
	api.Get("/setup/:channelId", frameHandler.Setup)
	api.Post("/setup/:channelId", frameHandler.Setup)
	api.Get("/purchase/:channelId", frameHandler.Purchase)
	api.Post("/purchase/:channelId", frameHandler.Purchase)

	api.Post("/tx-purchase/:network/:lock/:price", txHandler.Purchase)
	api.Post("/tx-renew/:network/:lock/:price/:tokenId", txHandler.Renew)
	api.Post("/tx-approve/:network/:lock/:price", txHandler.Approve)
	api.Post("/tx-referrer-fee/:network/:lock", txHandler.ReferrerFee)

	v1 := api.Group("/v1")
	v1.Get("/meta/networks", metaHandler.GetNetworks)

	// Admin
	admin := v1.Group("", middleware.AuthMiddleware(cfg, log), middleware.AdminMiddleware(cfg))
	admin.Get("/channels/:channelId/rules", middleware.RequirePermission(rbac.PermReadRules), adminHandler.GetRules)
	admin.Get("/channels/:channelId/audit", middleware.RequirePermission(rbac.PermReadAudit), adminHandler.GetAudit)
	admin.Get("/channels/:channelId/members/:address", middleware.RequirePermission(rbac.PermProbeMember), adminHandler.ProbeMember)
}
