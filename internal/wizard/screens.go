package wizard

import (
	"math/big"
	"strings"

	"github.com/members-only/backend/internal/frame"
)

// Static images, resolved against FRAME_ASSETS_URL at render time.
const (
	imageSetup    = "setup.png"
	imagePurchase = "purchase.png"
	imageSuccess  = "success.png"
	imageError    = "error.png"
	imageDenied   = "denied.png"
)

const (
	titleSetup    = "Members only: setup"
	titlePurchase = "Members only"
)

// Screen names used as metric labels and in logs.
const (
	screenInitial       = "initial"
	screenNetworkChoice = "network_choice"
	screenContractPage  = "contract_page"
	screenNoContracts   = "no_contracts"
	screenReferralFee   = "referral_fee"
	screenRuleWritten   = "rule_written"
	screenDuplicate     = "rule_duplicate"
	screenWriteError    = "rule_write_error"
	screenLimitReached  = "rule_limit"
	screenRulePage      = "rule_page"
	screenNoRules       = "no_rules"
	screenRuleDeleted   = "rule_deleted"
	screenDeleteError   = "delete_error"
	screenNotAuthorized = "not_authorized"
	screenNoAddresses   = "no_addresses"
	screenError         = "error"
	screenVerifyIntro   = "verify_intro"
	screenAlreadyValid  = "already_valid"
	screenNeedsApproval = "needs_allowance"
	screenReadyToBuy    = "ready_to_buy"
	screenReadyToRenew  = "ready_to_renew"
)

// NotAuthorizedText is the fixed message shown to non-leads in the setup flow.
const NotAuthorizedText = "Only the channel lead can manage membership rules."

func notAuthorizedScreen() *frame.Screen {
	return &frame.Screen{Title: titleSetup, Text: NotAuthorizedText, Image: imageDenied}
}

func errorScreen(title, retryValue string) *frame.Screen {
	return &frame.Screen{
		Title:   title,
		Text:    "Something went wrong. Please try again.",
		Image:   imageError,
		Intents: []frame.Intent{frame.Button("try again", retryValue)},
	}
}

func noAddressesScreen(title, retryValue string) *frame.Screen {
	return &frame.Screen{
		Title:   title,
		Text:    "No verified Ethereum address found. Verify a wallet on your Farcaster profile and try again.",
		Image:   imageError,
		Intents: []frame.Intent{frame.Button("try again", retryValue)},
	}
}

// pager returns prev/next buttons around item, omitting those without an adjacent index.
func pager(page, total int, valueFor func(int) string, middle ...frame.Intent) []frame.Intent {
	var intents []frame.Intent
	if page > 0 {
		intents = append(intents, frame.Button("prev", valueFor(page-1)))
	}
	intents = append(intents, middle...)
	if page+1 < total {
		intents = append(intents, frame.Button("next", valueFor(page+1)))
	}
	return intents
}

// formatUnits renders amount with the token's decimals, trimming trailing zeros.
func formatUnits(amount *big.Int, decimals uint8, symbol string) string {
	if amount == nil {
		return "? " + symbol
	}
	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(amount, base, new(big.Int))
	s := whole.String()
	if frac.Sign() != 0 {
		f := frac.String()
		f = strings.Repeat("0", int(decimals)-len(f)) + f
		s += "." + strings.TrimRight(f, "0")
	}
	return s + " " + symbol
}
