package events

import "context"

// StreamRules carries rule changes made through the setup wizard.
const StreamRules = "events:rules"

const (
	EventRuleAdded   = "rule_added"
	EventRuleRemoved = "rule_removed"
)

type Event struct {
	Type      string         `json:"type"`
	ChannelID string         `json:"channel_id"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(context.Context, Event)) error
}
