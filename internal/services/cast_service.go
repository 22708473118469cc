package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/members-only/backend/internal/metrics"
	"github.com/members-only/backend/internal/models"
	"github.com/members-only/backend/internal/neynar"
	"go.uber.org/zap"
)

type Social interface {
	GetChannelByParentURL(ctx context.Context, parentURL string) (*neynar.Channel, error)
	GetVerifiedAddresses(ctx context.Context, fid int64) ([]string, error)
	PublishCast(ctx context.Context, signerUUID, text string, opts neynar.CastOptions) (*neynar.PublishedCast, error)
	PublishReaction(ctx context.Context, signerUUID, kind, targetHash string) error
}

type RuleLister interface {
	List(ctx context.Context, channelID string) ([]models.ChannelAccessRule, error)
}

type MembershipChecker interface {
	IsAnyMembershipValid(ctx context.Context, addresses []string, rules []models.ChannelAccessRule) (bool, error)
}

type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

// Cast is the part of a cast.created webhook the dispatcher needs.
type Cast struct {
	Hash          string
	Text          string
	AuthorFID     int64
	RootParentURL string
}

type Outcome string

const (
	OutcomeLiked         Outcome = "liked"
	OutcomeReplied       Outcome = "replied_purchase"
	OutcomeSetupLinkSent Outcome = "setup_link_sent"
	OutcomeIgnored       Outcome = "ignored"
)

type Result struct {
	Outcome   Outcome `json:"outcome"`
	ChannelID string  `json:"channel_id,omitempty"`
	Message   string  `json:"message,omitempty"`
	ReplyHash string  `json:"reply_hash,omitempty"`
}

type CastSettings struct {
	SignerUUID  string
	SetupPhrase string
	BaseURL     string
}

// CastService reacts to casts posted in gated channels.
type CastService struct {
	social   Social
	rules    RuleLister
	checker  MembershipChecker
	audit    AuditLogger
	settings CastSettings
	log      *zap.Logger
}

func NewCastService(social Social, rules RuleLister, checker MembershipChecker, audit AuditLogger, settings CastSettings, log *zap.Logger) *CastService {
	return &CastService{
		social:   social,
		rules:    rules,
		checker:  checker,
		audit:    audit,
		settings: settings,
		log:      log,
	}
}

func ignored(channelID, msg string) *Result {
	metrics.WebhookOutcomesTotal.WithLabelValues(string(OutcomeIgnored)).Inc()
	return &Result{Outcome: OutcomeIgnored, ChannelID: channelID, Message: msg}
}

func (s *CastService) resolveChannel(ctx context.Context, cast Cast) (*neynar.Channel, error) {
	if cast.RootParentURL == "" {
		return nil, nil
	}
	ch, err := s.social.GetChannelByParentURL(ctx, cast.RootParentURL)
	if errors.Is(err, neynar.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve channel: %w", err)
	}
	return ch, nil
}

func (s *CastService) isSetupRequest(cast Cast, ch *neynar.Channel) bool {
	return strings.EqualFold(strings.TrimSpace(cast.Text), strings.TrimSpace(s.settings.SetupPhrase)) &&
		ch.Lead.FID != 0 && cast.AuthorFID == ch.Lead.FID
}

// OnSetupCast only answers the lead's setup phrase with a link to the setup frame.
func (s *CastService) OnSetupCast(ctx context.Context, cast Cast) (*Result, error) {
	ch, err := s.resolveChannel(ctx, cast)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return ignored("", "cast is not in a known channel"), nil
	}
	if !s.isSetupRequest(cast, ch) {
		return ignored(ch.ID, "not a setup request"), nil
	}
	return s.sendSetupLink(ctx, cast, ch)
}

// OnCastCreated handles the setup phrase, then gates everything else on membership:
// members get a like, non-members a reply linking the purchase frame.
// Each side effect is attempted once.
func (s *CastService) OnCastCreated(ctx context.Context, cast Cast) (*Result, error) {
	ch, err := s.resolveChannel(ctx, cast)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return ignored("", "cast is not in a known channel"), nil
	}
	if s.isSetupRequest(cast, ch) {
		return s.sendSetupLink(ctx, cast, ch)
	}

	rules, err := s.rules.List(ctx, ch.ID)
	if err != nil {
		return nil, fmt.Errorf("list rules for %s: %w", ch.ID, err)
	}
	if len(rules) == 0 {
		return ignored(ch.ID, "channel has no membership rules"), nil
	}

	addresses, err := s.social.GetVerifiedAddresses(ctx, cast.AuthorFID)
	if err != nil && !errors.Is(err, neynar.ErrNotFound) {
		return nil, fmt.Errorf("verified addresses of fid %d: %w", cast.AuthorFID, err)
	}

	valid, err := s.checker.IsAnyMembershipValid(ctx, addresses, rules)
	if err != nil {
		return nil, fmt.Errorf("evaluate membership: %w", err)
	}

	author := cast.AuthorFID
	if valid {
		if err := s.social.PublishReaction(ctx, s.settings.SignerUUID, neynar.ReactionLike, cast.Hash); err != nil {
			return nil, err
		}
		s.record(ctx, ch.ID, &author, models.AuditCastLiked, cast.Hash, nil)
		metrics.WebhookOutcomesTotal.WithLabelValues(string(OutcomeLiked)).Inc()
		return &Result{Outcome: OutcomeLiked, ChannelID: ch.ID}, nil
	}

	reply, err := s.social.PublishCast(ctx, s.settings.SignerUUID,
		fmt.Sprintf("Casting in /%s is for members. Get a membership to join the conversation.", ch.ID),
		neynar.CastOptions{ReplyTo: cast.Hash, EmbedURL: s.PurchaseURL(ch.ID)},
	)
	if err != nil {
		return nil, err
	}
	s.record(ctx, ch.ID, &author, models.AuditCastReplied, cast.Hash, map[string]any{"reply_hash": reply.Hash})
	metrics.WebhookOutcomesTotal.WithLabelValues(string(OutcomeReplied)).Inc()
	return &Result{Outcome: OutcomeReplied, ChannelID: ch.ID, ReplyHash: reply.Hash}, nil
}

func (s *CastService) sendSetupLink(ctx context.Context, cast Cast, ch *neynar.Channel) (*Result, error) {
	reply, err := s.social.PublishCast(ctx, s.settings.SignerUUID,
		fmt.Sprintf("Manage who can cast in /%s.", ch.ID),
		neynar.CastOptions{ReplyTo: cast.Hash, EmbedURL: s.SetupURL(ch.ID)},
	)
	if err != nil {
		return nil, err
	}
	lead := ch.Lead.FID
	s.record(ctx, ch.ID, &lead, models.AuditSetupLinkSent, cast.Hash, map[string]any{"reply_hash": reply.Hash})
	metrics.WebhookOutcomesTotal.WithLabelValues(string(OutcomeSetupLinkSent)).Inc()
	return &Result{Outcome: OutcomeSetupLinkSent, ChannelID: ch.ID, ReplyHash: reply.Hash}, nil
}

func (s *CastService) SetupURL(channelID string) string {
	return fmt.Sprintf("%s/api/setup/%s", s.settings.BaseURL, channelID)
}

func (s *CastService) PurchaseURL(channelID string) string {
	return fmt.Sprintf("%s/api/purchase/%s", s.settings.BaseURL, channelID)
}

func (s *CastService) record(ctx context.Context, channelID string, actor *int64, action, castHash string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Log(ctx, models.AuditLog{
		ChannelID:  channelID,
		ActorFID:   actor,
		ActorType:  "bot",
		Action:     action,
		EntityType: "cast",
		EntityID:   castHash,
		Meta:       meta,
	})
	if err != nil {
		s.log.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}
