package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/members-only/backend/internal/frame"
	"github.com/members-only/backend/internal/metrics"
	"github.com/members-only/backend/internal/models"
	"github.com/members-only/backend/internal/rbac"
	"github.com/members-only/backend/internal/repositories"
	"github.com/members-only/backend/internal/unlock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Setup lets a channel lead add and remove access rules.
type Setup struct {
	deps     Deps
	settings Settings
	log      *zap.Logger
}

func NewSetup(deps Deps, settings Settings, log *zap.Logger) *Setup {
	return &Setup{deps: deps, settings: settings, log: log}
}

func (s *Setup) screen(name string, sc *frame.Screen) *frame.Screen {
	metrics.WizardStepsTotal.WithLabelValues("setup", name).Inc()
	return sc
}

// Step handles one click of the setup flow. A returned error is a
// configuration problem; every other failure is expressed as a screen.
func (s *Setup) Step(ctx context.Context, req Request) (*frame.Screen, error) {
	action, err := ParseAction(req.Value)
	if err != nil {
		s.log.Debug("setup: unknown action", zap.String("value", req.Value))
		action = Action{Step: StepInitial}
	}

	if action.Step == StepInitial || action.Step == StepDone {
		return s.initial(ctx, req.ChannelID), nil
	}

	who, ok := s.authorize(ctx, req)
	if !ok {
		return s.screen(screenNotAuthorized, notAuthorizedScreen()), nil
	}

	switch action.Step {
	case StepAdd:
		return s.networkChoice(), nil
	case StepNetwork:
		return s.contractPage(ctx, who, action.Network, 0)
	case StepContract:
		return s.contractPage(ctx, who, action.Network, action.Page)
	case StepConfirm:
		return s.confirm(ctx, req, who, action)
	case StepPersist:
		return s.persist(ctx, req, who, action)
	case StepRemove:
		return s.rulePage(ctx, req.ChannelID, 0), nil
	case StepRules:
		return s.rulePage(ctx, req.ChannelID, action.Page), nil
	case StepDelete:
		return s.remove(ctx, req, who, action), nil
	}
	return s.initial(ctx, req.ChannelID), nil
}

// authorize validates the frame signature and checks the interactor is the channel lead.
func (s *Setup) authorize(ctx context.Context, req Request) (*interactor, bool) {
	who, err := s.deps.interactor(ctx, req)
	if err != nil {
		s.log.Warn("setup: frame validation failed", zap.String("channel_id", req.ChannelID), zap.Error(err))
		return nil, false
	}
	if who == nil {
		return nil, false
	}
	ch, err := s.deps.Social.GetChannel(ctx, req.ChannelID)
	if err != nil {
		s.log.Warn("setup: channel lookup failed", zap.String("channel_id", req.ChannelID), zap.Error(err))
		return nil, false
	}
	if !rbac.HasPermission(rbac.RoleFor(who.FID, ch.Lead.FID, nil), rbac.PermManageRules) {
		s.log.Info("setup: non-lead interaction",
			zap.String("channel_id", req.ChannelID),
			zap.Int64("fid", who.FID),
			zap.Int64("lead_fid", ch.Lead.FID),
		)
		return nil, false
	}
	return who, true
}

func (s *Setup) initial(ctx context.Context, channelID string) *frame.Screen {
	count, err := s.deps.Rules.Count(ctx, channelID)
	if err != nil {
		s.log.Error("setup: count rules", zap.String("channel_id", channelID), zap.Error(err))
		return s.screen(screenError, errorScreen(titleSetup, string(StepDone)))
	}

	var intents []frame.Intent
	switch {
	case count == 0:
		intents = []frame.Intent{frame.Button("add", string(StepAdd))}
	case count >= s.settings.RulesLimit:
		intents = []frame.Intent{frame.Button("remove", string(StepRemove))}
	default:
		intents = []frame.Intent{frame.Button("add", string(StepAdd)), frame.Button("remove", string(StepRemove))}
	}

	return s.screen(screenInitial, &frame.Screen{
		Title:   titleSetup,
		Text:    fmt.Sprintf("/%s has %d of %d membership rules.", channelID, count, s.settings.RulesLimit),
		Image:   imageSetup,
		Intents: intents,
	})
}

// readableNetworks is the subset of SetupNetworks the chain reader has an RPC endpoint for.
func (s *Setup) readableNetworks() []string {
	var out []string
	for _, n := range models.SetupNetworks {
		if _, err := s.deps.Chain.Network(n); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func (s *Setup) networkChoice() *frame.Screen {
	networks := s.readableNetworks()
	text := "Which network is your lock deployed on?"
	if len(networks) == 0 {
		text = "No networks are available right now."
	}

	intents := make([]frame.Intent, 0, len(networks)+1)
	for _, n := range networks {
		intents = append(intents, frame.Button(n, networkAction(n)))
	}
	intents = append(intents, frame.Button("back", string(StepDone)))
	return s.screen(screenNetworkChoice, &frame.Screen{
		Title:   titleSetup,
		Text:    text,
		Image:   imageSetup,
		Intents: intents,
	})
}

// candidates lists the locks deployed by any of the lead's addresses, de-duplicated.
func (s *Setup) candidates(ctx context.Context, network string, addresses []string) ([]string, error) {
	var (
		mu    sync.Mutex
		found = make([][]common.Address, len(addresses))
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, addr := range addresses {
		i, addr := i, addr
		g.Go(func() error {
			locks, err := s.deps.Chain.DeployedContracts(gctx, network, common.HexToAddress(addr))
			if err != nil {
				if errors.Is(err, unlock.ErrUnsupportedNetwork) {
					return err
				}
				s.log.Warn("setup: list deployed contracts", zap.String("network", network), zap.String("address", addr), zap.Error(err))
				return nil
			}
			mu.Lock()
			found[i] = locks
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []string
	for _, locks := range found {
		for _, l := range locks {
			a := strings.ToLower(l.Hex())
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (s *Setup) contractPage(ctx context.Context, who *interactor, network string, page int) (*frame.Screen, error) {
	if len(who.Addresses) == 0 {
		return s.screen(screenNoAddresses, noAddressesScreen(titleSetup, string(StepAdd))), nil
	}
	if _, err := s.deps.Chain.Network(network); err != nil {
		s.log.Warn("setup: network not readable", zap.String("network", network), zap.Error(err))
		return s.networkChoice(), nil
	}

	locks, err := s.candidates(ctx, network, who.Addresses)
	if err != nil {
		return nil, err
	}
	if page >= len(locks) {
		return s.screen(screenNoContracts, &frame.Screen{
			Title:   titleSetup,
			Text:    fmt.Sprintf("No locks deployed by your verified addresses on %s.", network),
			Image:   imageError,
			Intents: []frame.Intent{frame.Button("back", string(StepAdd))},
		}), nil
	}

	lock := locks[page]
	label := models.ShortAddress(lock)
	if info, err := s.deps.Chain.LockInfo(ctx, network, common.HexToAddress(lock)); err == nil && info.Name != "" {
		label = fmt.Sprintf("%s (%s)", info.Name, label)
	}

	intents := pager(page, len(locks), func(p int) string { return contractPage(network, p) },
		frame.Button("confirm", confirmAction(network, lock)))
	intents = append(intents, frame.Button("back", string(StepAdd)))
	if len(intents) > frame.MaxIntents {
		intents = intents[:frame.MaxIntents]
	}

	return s.screen(screenContractPage, &frame.Screen{
		Title:   titleSetup,
		Text:    fmt.Sprintf("Lock %d of %d on %s: %s", page+1, len(locks), network, label),
		Image:   imageSetup,
		Intents: intents,
	}), nil
}

func (s *Setup) duplicateScreen(address string) *frame.Screen {
	return s.screen(screenDuplicate, &frame.Screen{
		Title:   titleSetup,
		Text:    fmt.Sprintf("A rule for %s already exists in this channel.", models.ShortAddress(address)),
		Image:   imageError,
		Intents: []frame.Intent{frame.Button("done", string(StepDone))},
	})
}

func (s *Setup) confirm(ctx context.Context, req Request, who *interactor, a Action) (*frame.Screen, error) {
	exists, err := s.deps.Rules.Exists(ctx, req.ChannelID, a.Address)
	if err != nil {
		s.log.Error("setup: duplicate check", zap.String("channel_id", req.ChannelID), zap.Error(err))
		return s.screen(screenWriteError, errorScreen(titleSetup, req.Value)), nil
	}
	if exists {
		return s.duplicateScreen(a.Address), nil
	}

	fee, err := s.deps.Chain.ReferrerFee(ctx, a.Network, common.HexToAddress(a.Address), s.settings.Referrer)
	if errors.Is(err, unlock.ErrUnsupportedNetwork) {
		return nil, err
	}
	if err != nil || fee.Int64() < s.settings.MinReferralFeeBPS {
		if err != nil {
			s.log.Warn("setup: referrer fee read failed", zap.String("lock", a.Address), zap.Error(err))
		}
		return s.screen(screenReferralFee, &frame.Screen{
			Title: titleSetup,
			Text: fmt.Sprintf("Set a referral fee of at least %s%% for %s, then continue.",
				bpsPercent(s.settings.MinReferralFeeBPS), models.ShortAddress(a.Address)),
			Image: imageSetup,
			Intents: []frame.Intent{
				frame.TxButton("set fee", fmt.Sprintf("%s/api/tx-referrer-fee/%s/%s", s.settings.BaseURL, a.Network, a.Address)),
				frame.Button("continue", persistAction(a.Network, a.Address)),
				frame.Button("back", contractPage(a.Network, 0)),
			},
		}), nil
	}

	return s.persist(ctx, req, who, a)
}

func bpsPercent(bps int64) string {
	if bps%100 == 0 {
		return fmt.Sprintf("%d", bps/100)
	}
	return fmt.Sprintf("%.2f", float64(bps)/100)
}

func (s *Setup) persist(ctx context.Context, req Request, who *interactor, a Action) (*frame.Screen, error) {
	exists, err := s.deps.Rules.Exists(ctx, req.ChannelID, a.Address)
	if err != nil {
		s.log.Error("setup: duplicate check", zap.String("channel_id", req.ChannelID), zap.Error(err))
		return s.screen(screenWriteError, errorScreen(titleSetup, req.Value)), nil
	}
	if exists {
		return s.duplicateScreen(a.Address), nil
	}

	count, err := s.deps.Rules.Count(ctx, req.ChannelID)
	if err != nil {
		s.log.Error("setup: count rules", zap.String("channel_id", req.ChannelID), zap.Error(err))
		return s.screen(screenWriteError, errorScreen(titleSetup, req.Value)), nil
	}
	if count >= s.settings.RulesLimit {
		return s.screen(screenLimitReached, &frame.Screen{
			Title:   titleSetup,
			Text:    fmt.Sprintf("This channel already has %d rules. Remove one first.", count),
			Image:   imageError,
			Intents: []frame.Intent{frame.Button("remove", string(StepRemove))},
		}), nil
	}

	rule := models.NewAllowRule(req.ChannelID, a.Network, a.Address)
	if err := s.deps.Rules.Insert(ctx, rule); err != nil {
		if errors.Is(err, repositories.ErrRuleExists) {
			return s.duplicateScreen(a.Address), nil
		}
		s.log.Error("setup: insert rule", zap.String("channel_id", req.ChannelID), zap.String("contract", a.Address), zap.Error(err))
		return s.screen(screenWriteError, &frame.Screen{
			Title:   titleSetup,
			Text:    "Could not save the rule.",
			Image:   imageError,
			Intents: []frame.Intent{frame.Button("try again", req.Value), frame.Button("cancel", string(StepDone))},
		}), nil
	}

	if s.deps.Recorder != nil {
		s.deps.Recorder.RuleAdded(ctx, rule, who.FID)
	}
	return s.screen(screenRuleWritten, &frame.Screen{
		Title:   titleSetup,
		Text:    fmt.Sprintf("Casting in /%s now requires a key of %s on %s.", req.ChannelID, models.ShortAddress(a.Address), a.Network),
		Image:   imageSuccess,
		Intents: []frame.Intent{frame.Button("done", string(StepDone))},
	}), nil
}

func (s *Setup) rulePage(ctx context.Context, channelID string, page int) *frame.Screen {
	rules, err := s.deps.Rules.List(ctx, channelID)
	if err != nil {
		s.log.Error("setup: list rules", zap.String("channel_id", channelID), zap.Error(err))
		return s.screen(screenError, errorScreen(titleSetup, rulesPage(page)))
	}
	if page >= len(rules) {
		return s.screen(screenNoRules, &frame.Screen{
			Title:   titleSetup,
			Text:    "There are no rules to remove.",
			Image:   imageSetup,
			Intents: []frame.Intent{frame.Button("back", string(StepDone))},
		})
	}

	r := rules[page]
	intents := pager(page, len(rules), rulesPage, frame.Button("delete", deleteAction(r.Network, r.ContractAddress)))
	intents = append(intents, frame.Button("back", string(StepDone)))
	return s.screen(screenRulePage, &frame.Screen{
		Title:   titleSetup,
		Text:    fmt.Sprintf("Rule %d of %d: %s on %s", page+1, len(rules), models.ShortAddress(r.ContractAddress), r.Network),
		Image:   imageSetup,
		Intents: intents,
	})
}

func (s *Setup) remove(ctx context.Context, req Request, who *interactor, a Action) *frame.Screen {
	if err := s.deps.Rules.Delete(ctx, req.ChannelID, a.Address); err != nil {
		s.log.Error("setup: delete rule", zap.String("channel_id", req.ChannelID), zap.String("contract", a.Address), zap.Error(err))
		return s.screen(screenDeleteError, &frame.Screen{
			Title:   titleSetup,
			Text:    "Could not remove the rule.",
			Image:   imageError,
			Intents: []frame.Intent{frame.Button("try again", req.Value), frame.Button("cancel", string(StepDone))},
		})
	}

	if s.deps.Recorder != nil {
		s.deps.Recorder.RuleRemoved(ctx, req.ChannelID, a.Network, a.Address, who.FID)
	}
	return s.screen(screenRuleDeleted, &frame.Screen{
		Title:   titleSetup,
		Text:    fmt.Sprintf("Removed the rule for %s on %s.", models.ShortAddress(a.Address), a.Network),
		Image:   imageSuccess,
		Intents: []frame.Intent{frame.Button("done", string(StepDone))},
	})
}
