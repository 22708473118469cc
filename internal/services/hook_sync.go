package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/members-only/backend/internal/events"
	"github.com/members-only/backend/internal/neynar"
	"go.uber.org/zap"
)

type GatedChannels interface {
	ChannelsWithRules(ctx context.Context) ([]string, error)
}

type WebhookAdmin interface {
	GetChannel(ctx context.Context, channelID string) (*neynar.Channel, error)
	LookupWebhook(ctx context.Context, webhookID string) (*neynar.Webhook, error)
	UpdateWebhook(ctx context.Context, hook *neynar.Webhook) error
}

// HookSync keeps the cast.created webhook subscribed to exactly the channels that have rules.
type HookSync struct {
	channels  GatedChannels
	neynar    WebhookAdmin
	webhookID string
	log       *zap.Logger
}

func NewHookSync(channels GatedChannels, neynar WebhookAdmin, webhookID string, log *zap.Logger) *HookSync {
	return &HookSync{channels: channels, neynar: neynar, webhookID: webhookID, log: log}
}

// Sync recomputes the root_parent_urls filter and updates the webhook when it changed.
// It reports whether an update was sent. A failed channel lookup aborts the sync;
// only channels Neynar reports as missing are dropped.
func (h *HookSync) Sync(ctx context.Context) (bool, error) {
	ids, err := h.channels.ChannelsWithRules(ctx)
	if err != nil {
		return false, fmt.Errorf("list gated channels: %w", err)
	}

	urls := make([]string, 0, len(ids))
	for _, id := range ids {
		ch, err := h.neynar.GetChannel(ctx, id)
		if errors.Is(err, neynar.ErrNotFound) {
			h.log.Warn("hook-sync: gated channel no longer exists", zap.String("channel_id", id))
			continue
		}
		if err != nil {
			return false, fmt.Errorf("lookup channel %s: %w", id, err)
		}
		u := ch.ParentURL
		if u == "" {
			u = ch.URL
		}
		if u != "" {
			urls = append(urls, u)
		}
	}
	sort.Strings(urls)
	if len(urls) == 0 {
		// An empty root_parent_urls filter subscribes to every cast on the network.
		h.log.Warn("hook-sync: no gated channels resolved, keeping current subscription")
		return false, nil
	}

	hook, err := h.neynar.LookupWebhook(ctx, h.webhookID)
	if err != nil {
		return false, fmt.Errorf("lookup webhook %s: %w", h.webhookID, err)
	}

	current := append([]string(nil), hook.RootParentURLs()...)
	sort.Strings(current)
	if equalStrings(current, urls) {
		h.log.Debug("hook-sync: subscription up to date", zap.Int("channels", len(urls)))
		return false, nil
	}

	if hook.Subscription.Filters.CastCreated == nil {
		hook.Subscription.Filters.CastCreated = &neynar.CastCreatedFilter{}
	}
	hook.Subscription.Filters.CastCreated.RootParentURLs = urls
	if err := h.neynar.UpdateWebhook(ctx, hook); err != nil {
		return false, err
	}
	return true, nil
}

// HandleEvent resyncs on rule changes.
func (h *HookSync) HandleEvent(ctx context.Context, event events.Event) {
	if event.Type != events.EventRuleAdded && event.Type != events.EventRuleRemoved {
		return
	}
	h.log.Info("hook-sync: rule change", zap.String("type", event.Type), zap.String("channel_id", event.ChannelID))
	if _, err := h.Sync(ctx); err != nil {
		h.log.Error("hook-sync failed", zap.Error(err))
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
