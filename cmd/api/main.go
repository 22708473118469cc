package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/members-only/backend/internal/config"
	"github.com/members-only/backend/internal/db"
	"github.com/members-only/backend/internal/events"
	apphttp "github.com/members-only/backend/internal/http"
	"github.com/members-only/backend/internal/http/dto"
	"github.com/members-only/backend/internal/http/handlers"
	"github.com/members-only/backend/internal/membership"
	"github.com/members-only/backend/internal/neynar"
	"github.com/members-only/backend/internal/repositories"
	"github.com/members-only/backend/internal/services"
	"github.com/members-only/backend/internal/unlock"
	"github.com/members-only/backend/internal/wizard"
	"github.com/members-only/backend/migrations"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Chains
	chain, err := unlock.Dial(ctx, cfg.RPCURLs, cfg.RPCRequestsPerSecond, log)
	if err != nil {
		log.Fatal("failed to dial rpc endpoints", zap.Error(err))
	}
	chainReader := unlock.NewCachedReader(chain, unlock.NewRedisKV(rdb), cfg.ContractsCacheTTL, log)

	// Repositories
	ruleRepo := repositories.NewRuleRepo(pool, cfg.AccessRulesLimit)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)

	// Services
	neynarClient := neynar.NewClient(cfg.NeynarAPIURL, cfg.NeynarAPIKey, log)
	evaluator := membership.NewEvaluator(chain, log, membership.WithParallelism(cfg.MembershipParallelism))
	ruleActivity := services.NewRuleActivity(auditRepo, publisher, log)
	castService := services.NewCastService(neynarClient, ruleRepo, evaluator, auditRepo, services.CastSettings{
		SignerUUID:  cfg.SignerUUID,
		SetupPhrase: cfg.SetupPhrase,
		BaseURL:     cfg.BaseURL,
	}, log)

	referrer := common.HexToAddress(cfg.MOAddress)
	deps := wizard.Deps{
		Rules:     ruleRepo,
		Chain:     chainReader,
		Social:    neynarClient,
		Evaluator: evaluator,
		Recorder:  ruleActivity,
	}
	settings := wizard.Settings{
		RulesLimit:        cfg.AccessRulesLimit,
		Referrer:          referrer,
		MinReferralFeeBPS: cfg.MinReferralFeeBPS,
		BaseURL:           cfg.BaseURL,
	}
	setupWizard := wizard.NewSetup(deps, settings, log.Named("setup"))
	purchaseWizard := wizard.NewPurchase(deps, settings, log.Named("purchase"))

	// Handlers
	hookHandler := handlers.NewHookHandler(castService, log)
	frameHandler := handlers.NewFrameHandler(setupWizard, purchaseWizard, cfg.BaseURL, cfg.FrameAssetsURL, log)
	txHandler := handlers.NewTxHandler(chainReader, neynarClient, unlock.NewTxBuilder(referrer, cfg.MinReferralFeeBPS), log)
	adminHandler := handlers.NewAdminHandler(ruleRepo, auditRepo, evaluator, log)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			if code == fiber.StatusInternalServerError {
				log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
				return c.Status(code).JSON(dto.ErrorResponse{Error: "internal error"})
			}
			return c.Status(code).JSON(dto.ErrorResponse{Error: err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, hookHandler, frameHandler, txHandler, adminHandler)

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
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
