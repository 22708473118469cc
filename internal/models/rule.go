package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Supported networks
const (
	NetworkEthereum = "ethereum"
	NetworkBase     = "base"
	NetworkOptimism = "optimism"
	NetworkArbitrum = "arbitrum"
)

// AllNetworks lists every network a rule may reference.
var AllNetworks = []string{NetworkBase, NetworkOptimism, NetworkArbitrum, NetworkEthereum}

// SetupNetworks are the networks offered by the setup wizard.
var SetupNetworks = []string{NetworkBase, NetworkOptimism, NetworkArbitrum}

func IsValidNetwork(n string) bool {
	for _, v := range AllNetworks {
		if v == n {
			return true
		}
	}
	return false
}

// Rule operators and behaviours
const (
	OperatorAnd = "AND"
	OperatorOr  = "OR"

	BehaviorAllow = "ALLOW"
	BehaviorDeny  = "DENY"
)

// ChannelAccessRule gates casting in a channel behind a key of the given lock.
type ChannelAccessRule struct {
	ID              uuid.UUID `json:"id"`
	ChannelID       string    `json:"channel_id"`
	Network         string    `json:"network"`
	ContractAddress string    `json:"contract_address"`
	// Operator is stored but not consulted: rules are OR-combined.
	Operator     string    `json:"operator"`
	RuleBehavior string    `json:"rule_behavior"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewAllowRule builds the only kind of rule the setup wizard produces.
func NewAllowRule(channelID, network, contractAddress string) *ChannelAccessRule {
	return &ChannelAccessRule{
		ChannelID:       channelID,
		Network:         network,
		ContractAddress: NormalizeAddress(contractAddress),
		Operator:        OperatorAnd,
		RuleBehavior:    BehaviorAllow,
	}
}

// NormalizeAddress lower-cases an EVM address so lookups are case-insensitive.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ShortAddress renders 0x1234…abcd for screens.
func ShortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
