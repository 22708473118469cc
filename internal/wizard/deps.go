package wizard

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/members-only/backend/internal/membership"
	"github.com/members-only/backend/internal/models"
	"github.com/members-only/backend/internal/neynar"
	"github.com/members-only/backend/internal/unlock"
)

type RuleStore interface {
	List(ctx context.Context, channelID string) ([]models.ChannelAccessRule, error)
	Count(ctx context.Context, channelID string) (int, error)
	Exists(ctx context.Context, channelID, contractAddress string) (bool, error)
	Insert(ctx context.Context, rule *models.ChannelAccessRule) error
	Delete(ctx context.Context, channelID, contractAddress string) error
}

type ChainReader interface {
	// Network fails with unlock.ErrUnsupportedNetwork when no RPC endpoint is configured.
	Network(name string) (unlock.Network, error)
	DeployedContracts(ctx context.Context, network string, owner common.Address) ([]common.Address, error)
	ReferrerFee(ctx context.Context, network string, lock, referrer common.Address) (*big.Int, error)
	Allowance(ctx context.Context, network string, token, owner, spender common.Address) (*big.Int, error)
	LockInfo(ctx context.Context, network string, lock common.Address) (*unlock.LockInfo, error)
}

type SocialGraph interface {
	GetChannel(ctx context.Context, channelID string) (*neynar.Channel, error)
	ValidateFrameAction(ctx context.Context, messageBytesHex string) (*neynar.FrameValidation, error)
}

type Evaluator interface {
	IsAnyMembershipValid(ctx context.Context, addresses []string, rules []models.ChannelAccessRule) (bool, error)
	CountTotalKeys(ctx context.Context, addresses []string, rule models.ChannelAccessRule) (int64, error)
	FindFirstOwnedToken(ctx context.Context, addresses []string, totalKeysHint int64, rule models.ChannelAccessRule) (*membership.OwnedToken, error)
}

// RuleRecorder is told about rule changes after they are persisted.
type RuleRecorder interface {
	RuleAdded(ctx context.Context, rule *models.ChannelAccessRule, actorFID int64)
	RuleRemoved(ctx context.Context, channelID, network, contractAddress string, actorFID int64)
}

type Deps struct {
	Rules     RuleStore
	Chain     ChainReader
	Social    SocialGraph
	Evaluator Evaluator
	// Recorder may be nil.
	Recorder RuleRecorder
}

type Settings struct {
	// RulesLimit caps the rules a channel may hold.
	RulesLimit int
	// Referrer is the address whose referral fee the setup flow checks.
	Referrer          common.Address
	MinReferralFeeBPS int64
	// BaseURL prefixes tx button targets, e.g. https://bot.example.
	BaseURL string
}

// Request is one Frame interaction.
type Request struct {
	ChannelID string
	// Value is the clicked button value; empty for the first GET.
	Value string
	// MessageHex is the signed frame action; empty for GET.
	MessageHex string
}

// interactor is who clicked, as attested by signature validation.
type interactor struct {
	FID       int64
	Addresses []string
}

func (d Deps) interactor(ctx context.Context, req Request) (*interactor, error) {
	if req.MessageHex == "" {
		return nil, nil
	}
	v, err := d.Social.ValidateFrameAction(ctx, req.MessageHex)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, nil
	}
	return &interactor{FID: v.Action.Interactor.FID, Addresses: v.InteractorAddresses()}, nil
}
