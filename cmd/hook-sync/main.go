package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/members-only/backend/internal/config"
	"github.com/members-only/backend/internal/db"
	"github.com/members-only/backend/internal/events"
	"github.com/members-only/backend/internal/neynar"
	"github.com/members-only/backend/internal/repositories"
	"github.com/members-only/backend/internal/services"
	"go.uber.org/zap"
)

// hook-sync keeps the cast.created webhook filtered to the channels that have
// rules. It resyncs on every rule event and once an hour as a backstop.

const resyncInterval = time.Hour

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if cfg.NeynarAPIKey == "" || cfg.NeynarWebhookID == "" {
		log.Fatal("NEYNAR_API_KEY and NEYNAR_WEBHOOK_ID are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	ruleRepo := repositories.NewRuleRepo(pool, cfg.AccessRulesLimit)
	neynarClient := neynar.NewClient(cfg.NeynarAPIURL, cfg.NeynarAPIKey, log)
	hookSync := services.NewHookSync(ruleRepo, neynarClient, cfg.NeynarWebhookID, log)

	if changed, err := hookSync.Sync(ctx); err != nil {
		log.Error("initial hook sync failed", zap.Error(err))
	} else {
		log.Info("initial hook sync done", zap.Bool("updated", changed))
	}

	subscriber := events.NewRedisSubscriber(rdb, log)
	if err := subscriber.Subscribe(ctx, events.StreamRules, hookSync.HandleEvent); err != nil {
		log.Fatal("failed to subscribe to rule events", zap.Error(err))
	}

	log.Info("hook-sync started", zap.String("webhook_id", cfg.NeynarWebhookID))

	ticker := time.NewTicker(resyncInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if _, err := hookSync.Sync(ctx); err != nil {
				log.Error("periodic hook sync failed", zap.Error(err))
			}
		case <-sigCh:
			log.Info("shutting down hook-sync")
			cancel()
			return
		}
	}
}
