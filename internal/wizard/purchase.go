package wizard

import (
	"context"
	"fmt"
	"math/big"

	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/common"
	"github.com/members-only/backend/internal/frame"
	"github.com/members-only/backend/internal/metrics"
	"github.com/members-only/backend/internal/models"
	"go.uber.org/zap"
)

// Purchase lets a member verify their key or buy/renew one.
type Purchase struct {
	deps     Deps
	settings Settings
	log      *zap.Logger
}

func NewPurchase(deps Deps, settings Settings, log *zap.Logger) *Purchase {
	return &Purchase{deps: deps, settings: settings, log: log}
}

func (p *Purchase) screen(name string, sc *frame.Screen) *frame.Screen {
	metrics.WizardStepsTotal.WithLabelValues("purchase", name).Inc()
	return sc
}

// Step handles one click of the purchase flow. A returned error is a
// configuration problem; every other failure is expressed as a screen.
func (p *Purchase) Step(ctx context.Context, req Request) (*frame.Screen, error) {
	action, err := ParseAction(req.Value)
	if err != nil {
		p.log.Debug("purchase: unknown action", zap.String("value", req.Value))
		action = Action{Step: StepInitial}
	}

	switch action.Step {
	case StepVerify:
		return p.verify(ctx, req, action.Page)
	case StepTxCallback:
		return p.verify(ctx, req, 0)
	}
	return p.initial(req.ChannelID), nil
}

func (p *Purchase) initial(channelID string) *frame.Screen {
	return p.screen(screenVerifyIntro, &frame.Screen{
		Title:   titlePurchase,
		Text:    fmt.Sprintf("Casting in /%s is for members. Check your membership to continue.", channelID),
		Image:   imagePurchase,
		Intents: []frame.Intent{frame.Button("verify", string(StepVerify))},
	})
}

func (p *Purchase) txTarget(kind string, parts ...string) string {
	target := p.settings.BaseURL + "/api/tx-" + kind
	for _, s := range parts {
		target += "/" + s
	}
	return target
}

func (p *Purchase) verify(ctx context.Context, req Request, page int) (*frame.Screen, error) {
	retry := verifyPage(page)

	who, err := p.deps.interactor(ctx, req)
	if err != nil {
		p.log.Warn("purchase: frame validation failed", zap.String("channel_id", req.ChannelID), zap.Error(err))
	}
	if who == nil || len(who.Addresses) == 0 {
		return p.screen(screenNoAddresses, noAddressesScreen(titlePurchase, retry)), nil
	}

	rules, err := p.deps.Rules.List(ctx, req.ChannelID)
	if err != nil {
		p.log.Error("purchase: list rules", zap.String("channel_id", req.ChannelID), zap.Error(err))
		return p.screen(screenError, errorScreen(titlePurchase, retry)), nil
	}
	if len(rules) == 0 {
		return p.screen(screenNoRules, &frame.Screen{
			Title: titlePurchase,
			Text:  fmt.Sprintf("/%s has no membership requirements.", req.ChannelID),
			Image: imagePurchase,
		}), nil
	}

	valid, err := p.deps.Evaluator.IsAnyMembershipValid(ctx, who.Addresses, rules)
	if err != nil {
		return nil, err
	}
	if valid {
		return p.screen(screenAlreadyValid, &frame.Screen{
			Title:   titlePurchase,
			Text:    "You hold a valid membership. Happy casting!",
			Image:   imageSuccess,
			Intents: []frame.Intent{frame.Button("complete", string(StepComplete))},
		}), nil
	}

	if page >= len(rules) {
		page = 0
	}
	rule := rules[page]
	lock := common.HexToAddress(rule.ContractAddress)

	total, err := p.deps.Evaluator.CountTotalKeys(ctx, who.Addresses, rule)
	if err != nil {
		return nil, err
	}

	info, err := p.deps.Chain.LockInfo(ctx, rule.Network, lock)
	if err != nil {
		p.log.Error("purchase: lock info", zap.String("network", rule.Network), zap.String("lock", rule.ContractAddress), zap.Error(err))
		return p.screen(screenError, errorScreen(titlePurchase, retry)), nil
	}

	payer := who.Addresses[0]
	var renewTokenID *big.Int
	renewText := ""
	if total > 0 {
		token, err := p.deps.Evaluator.FindFirstOwnedToken(ctx, who.Addresses, total, rule)
		if err != nil {
			return nil, err
		}
		if token != nil {
			renewTokenID = token.TokenID
			payer = token.Owner
			if !token.ExpiresAt.IsZero() {
				renewText = fmt.Sprintf(" Your key expired %s.", humanize.Time(token.ExpiresAt))
			}
		}
	}

	price := info.KeyPrice
	priceText := formatUnits(price, info.Decimals, info.Symbol)
	lockName := info.Name
	if lockName == "" {
		lockName = models.ShortAddress(rule.ContractAddress)
	}
	others := func(middle ...frame.Intent) []frame.Intent {
		return pager(page, len(rules), verifyPage, middle...)
	}

	if !info.IsNative() {
		allowance, err := p.deps.Chain.Allowance(ctx, rule.Network, info.TokenAddress, common.HexToAddress(payer), lock)
		if err != nil {
			p.log.Warn("purchase: allowance read failed", zap.String("payer", payer), zap.Error(err))
			allowance = big.NewInt(0)
		}
		if allowance.Cmp(price) < 0 {
			return p.screen(screenNeedsApproval, &frame.Screen{
				Title: titlePurchase,
				Text:  fmt.Sprintf("Approve %s for %s, then check again.%s", priceText, lockName, renewText),
				Image: imagePurchase,
				Intents: others(
					frame.TxButton("approve", p.txTarget("approve", rule.Network, rule.ContractAddress, price.String())),
					frame.Button("check again", retry),
				),
			}), nil
		}
	}

	if renewTokenID != nil {
		return p.screen(screenReadyToRenew, &frame.Screen{
			Title: titlePurchase,
			Text:  fmt.Sprintf("Renew your %s membership for %s.%s", lockName, priceText, renewText),
			Image: imagePurchase,
			Intents: others(frame.TxButton("renew",
				p.txTarget("renew", rule.Network, rule.ContractAddress, price.String(), renewTokenID.String()))),
		}), nil
	}

	return p.screen(screenReadyToBuy, &frame.Screen{
		Title: titlePurchase,
		Text:  fmt.Sprintf("Get a %s membership for %s.", lockName, priceText),
		Image: imagePurchase,
		Intents: others(frame.TxButton("buy",
			p.txTarget("purchase", rule.Network, rule.ContractAddress, price.String()))),
	}), nil
}
