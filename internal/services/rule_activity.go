package services

import (
	"context"

	"github.com/members-only/backend/internal/events"
	"github.com/members-only/backend/internal/models"
	"go.uber.org/zap"
)

// RuleActivity audits rule changes and announces them on events:rules.
type RuleActivity struct {
	audit     AuditLogger
	publisher events.Publisher
	log       *zap.Logger
}

func NewRuleActivity(audit AuditLogger, publisher events.Publisher, log *zap.Logger) *RuleActivity {
	return &RuleActivity{audit: audit, publisher: publisher, log: log}
}

func (a *RuleActivity) RuleAdded(ctx context.Context, rule *models.ChannelAccessRule, actorFID int64) {
	a.emit(ctx, models.AuditRuleAdded, events.EventRuleAdded, rule.ChannelID, rule.Network, rule.ContractAddress, actorFID)
}

func (a *RuleActivity) RuleRemoved(ctx context.Context, channelID, network, contractAddress string, actorFID int64) {
	a.emit(ctx, models.AuditRuleRemoved, events.EventRuleRemoved, channelID, network, contractAddress, actorFID)
}

func (a *RuleActivity) emit(ctx context.Context, action, eventType, channelID, network, contract string, actorFID int64) {
	meta := map[string]any{"network": network, "contract_address": contract}

	if a.audit != nil {
		err := a.audit.Log(ctx, models.AuditLog{
			ChannelID:  channelID,
			ActorFID:   &actorFID,
			ActorType:  "lead",
			Action:     action,
			EntityType: "rule",
			EntityID:   contract,
			Meta:       meta,
		})
		if err != nil {
			a.log.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
		}
	}

	if a.publisher != nil {
		err := a.publisher.Publish(ctx, events.StreamRules, events.Event{Type: eventType, ChannelID: channelID, Payload: meta})
		if err != nil {
			a.log.Warn("rule event publish failed", zap.String("type", eventType), zap.Error(err))
		}
	}
}
