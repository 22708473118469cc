package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions
const (
	AuditRuleAdded     = "rule_added"
	AuditRuleRemoved   = "rule_removed"
	AuditCastLiked     = "cast_liked"
	AuditCastReplied   = "cast_replied"
	AuditSetupLinkSent = "setup_link_sent"
)

type AuditLog struct {
	ID         uuid.UUID `json:"id"`
	ChannelID  string    `json:"channel_id"`
	ActorFID   *int64    `json:"actor_fid,omitempty"`
	ActorType  string    `json:"actor_type"` // lead/user/bot
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"` // rule/cast
	EntityID   string    `json:"entity_id"`
	Meta       any       `json:"meta,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
