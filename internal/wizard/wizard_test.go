package wizard

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/members-only/backend/internal/frame"
	"github.com/members-only/backend/internal/membership"
	"github.com/members-only/backend/internal/models"
	"github.com/members-only/backend/internal/neynar"
	"github.com/members-only/backend/internal/unlock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	channelID = "base-builders"
	leadFID   = 42
	userAddrA = "0xaaaa000000000000000000000000000000000001"
	userAddrB = "0xbbbb000000000000000000000000000000000002"
	lockAddr  = "0x10c0000000000000000000000000000000000001"
	lockAddr2 = "0x20c0000000000000000000000000000000000002"
	tokenAddr = "0x70c0000000000000000000000000000000000007"
	baseURL   = "https://bot.example"
)

type memRules struct {
	rules       []models.ChannelAccessRule
	insertCalls int
	insertErr   error
	deleteErr   error
	countErr    error
}

func (m *memRules) List(_ context.Context, ch string) ([]models.ChannelAccessRule, error) {
	var out []models.ChannelAccessRule
	for _, r := range m.rules {
		if r.ChannelID == ch {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRules) Count(ctx context.Context, ch string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	l, _ := m.List(ctx, ch)
	return len(l), nil
}

func (m *memRules) Exists(ctx context.Context, ch, addr string) (bool, error) {
	l, _ := m.List(ctx, ch)
	for _, r := range l {
		if r.ContractAddress == models.NormalizeAddress(addr) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRules) Insert(_ context.Context, r *models.ChannelAccessRule) error {
	m.insertCalls++
	if m.insertErr != nil {
		return m.insertErr
	}
	m.rules = append(m.rules, *r)
	return nil
}

func (m *memRules) Delete(_ context.Context, ch, addr string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	kept := m.rules[:0]
	for _, r := range m.rules {
		if !(r.ChannelID == ch && r.ContractAddress == addr) {
			kept = append(kept, r)
		}
	}
	m.rules = kept
	return nil
}

type stubChain struct {
	deployed  map[string][]common.Address
	fee       *big.Int
	feeErr    error
	allowance *big.Int
	info      unlock.LockInfo
	offline   map[string]bool
}

func (c *stubChain) Network(name string) (unlock.Network, error) {
	if c.offline[name] {
		return unlock.Network{}, fmt.Errorf("%w: %q", unlock.ErrUnsupportedNetwork, name)
	}
	return unlock.LookupNetwork(name)
}

func (c *stubChain) DeployedContracts(_ context.Context, _ string, owner common.Address) ([]common.Address, error) {
	return c.deployed[strings.ToLower(owner.Hex())], nil
}

func (c *stubChain) ReferrerFee(context.Context, string, common.Address, common.Address) (*big.Int, error) {
	return c.fee, c.feeErr
}

func (c *stubChain) Allowance(context.Context, string, common.Address, common.Address, common.Address) (*big.Int, error) {
	return c.allowance, nil
}

func (c *stubChain) LockInfo(context.Context, string, common.Address) (*unlock.LockInfo, error) {
	info := c.info
	return &info, nil
}

type stubSocial struct {
	fid       int64
	addresses []string
	valid     bool
}

func (s *stubSocial) GetChannel(_ context.Context, id string) (*neynar.Channel, error) {
	return &neynar.Channel{ID: id, Lead: neynar.Lead{FID: leadFID}}, nil
}

func (s *stubSocial) ValidateFrameAction(context.Context, string) (*neynar.FrameValidation, error) {
	v := &neynar.FrameValidation{Valid: s.valid}
	v.Action.Interactor.FID = s.fid
	v.Action.Interactor.VerifiedAddresses.EthAddresses = s.addresses
	return v, nil
}

type stubEvaluator struct {
	valid bool
	total int64
	token *membership.OwnedToken
}

func (e *stubEvaluator) IsAnyMembershipValid(context.Context, []string, []models.ChannelAccessRule) (bool, error) {
	return e.valid, nil
}

func (e *stubEvaluator) CountTotalKeys(context.Context, []string, models.ChannelAccessRule) (int64, error) {
	return e.total, nil
}

func (e *stubEvaluator) FindFirstOwnedToken(context.Context, []string, int64, models.ChannelAccessRule) (*membership.OwnedToken, error) {
	return e.token, nil
}

type recorded struct {
	added, removed int
}

func (r *recorded) RuleAdded(context.Context, *models.ChannelAccessRule, int64) { r.added++ }

func (r *recorded) RuleRemoved(context.Context, string, string, string, int64) { r.removed++ }

type fixture struct {
	rules    *memRules
	chain    *stubChain
	social   *stubSocial
	eval     *stubEvaluator
	recorder *recorded
}

func newFixture() *fixture {
	return &fixture{
		rules: &memRules{},
		chain: &stubChain{
			deployed: map[string][]common.Address{},
			fee:      big.NewInt(500),
			info:     unlock.LockInfo{Name: "Builders", KeyPrice: big.NewInt(1_000_000_000_000_000), Symbol: "ETH", Decimals: 18},
		},
		social:   &stubSocial{fid: leadFID, addresses: []string{userAddrA}, valid: true},
		eval:     &stubEvaluator{},
		recorder: &recorded{},
	}
}

func (f *fixture) deps() Deps {
	return Deps{Rules: f.rules, Chain: f.chain, Social: f.social, Evaluator: f.eval, Recorder: f.recorder}
}

var settings = Settings{RulesLimit: 3, MinReferralFeeBPS: 500, BaseURL: baseURL}

func (f *fixture) setup() *Setup { return NewSetup(f.deps(), settings, zap.NewNop()) }

func (f *fixture) purchase() *Purchase { return NewPurchase(f.deps(), settings, zap.NewNop()) }

func click(value string) Request {
	return Request{ChannelID: channelID, Value: value, MessageHex: "signed"}
}

func labels(s *frame.Screen) []string {
	var out []string
	for _, in := range s.Intents {
		out = append(out, in.Label)
	}
	return out
}

func TestSetupInitialOffersByRuleCount(t *testing.T) {
	tests := []struct {
		name  string
		count int
		want  []string
	}{
		{"no rules", 0, []string{"add"}},
		{"some rules", 2, []string{"add", "remove"}},
		{"at limit", 3, []string{"remove"}},
		{"above limit", 4, []string{"remove"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			for i := 0; i < tt.count; i++ {
				f.rules.rules = append(f.rules.rules, *models.NewAllowRule(channelID, "base", common.BigToAddress(big.NewInt(int64(i+1))).Hex()))
			}
			sc, err := f.setup().Step(context.Background(), Request{ChannelID: channelID})
			require.NoError(t, err)
			assert.Equal(t, tt.want, labels(sc))
		})
	}
}

func TestSetupScenarioEmptyChannel(t *testing.T) {
	f := newFixture()
	sc, err := f.setup().Step(context.Background(), Request{ChannelID: channelID})
	require.NoError(t, err)
	require.Len(t, sc.Intents, 1)
	assert.Equal(t, frame.Button("add", "add"), sc.Intents[0])
}

func TestSetupRejectsNonLead(t *testing.T) {
	for _, value := range []string{"add", "net-base", "confirm-base-" + lockAddr, "delete-base-" + lockAddr, "remove"} {
		t.Run(value, func(t *testing.T) {
			f := newFixture()
			f.social.fid = 7
			sc, err := f.setup().Step(context.Background(), click(value))
			require.NoError(t, err)
			assert.Equal(t, NotAuthorizedText, sc.Text)
			assert.Empty(t, sc.Intents)
			assert.Zero(t, f.rules.insertCalls)
		})
	}
}

func TestSetupRejectsInvalidSignature(t *testing.T) {
	f := newFixture()
	f.social.valid = false
	sc, err := f.setup().Step(context.Background(), click("add"))
	require.NoError(t, err)
	assert.Equal(t, NotAuthorizedText, sc.Text)
}

func TestSetupNetworkChoice(t *testing.T) {
	f := newFixture()
	sc, err := f.setup().Step(context.Background(), click("add"))
	require.NoError(t, err)
	assert.Equal(t, []string{"net-base", "net-optimism", "net-arbitrum", "done"}, sc.Values())
}

func TestSetupNetworkChoiceSkipsUnconfiguredNetworks(t *testing.T) {
	f := newFixture()
	f.chain.offline = map[string]bool{"optimism": true}

	sc, err := f.setup().Step(context.Background(), click("add"))
	require.NoError(t, err)
	assert.Equal(t, []string{"net-base", "net-arbitrum", "done"}, sc.Values())

	sc, err = f.setup().Step(context.Background(), click("net-optimism"))
	require.NoError(t, err, "a stale button for an unconfigured network returns to the network list")
	assert.Equal(t, []string{"net-base", "net-arbitrum", "done"}, sc.Values())
}

func TestSetupNetworkChoiceWithoutAnyRPC(t *testing.T) {
	f := newFixture()
	f.chain.offline = map[string]bool{"base": true, "optimism": true, "arbitrum": true}

	sc, err := f.setup().Step(context.Background(), click("add"))
	require.NoError(t, err)
	assert.Equal(t, []string{"done"}, sc.Values())
}

func TestSetupContractPagination(t *testing.T) {
	f := newFixture()
	f.social.addresses = []string{userAddrA, userAddrB}
	l1, l2, l3 := common.HexToAddress(lockAddr), common.HexToAddress(lockAddr2), common.HexToAddress(tokenAddr)
	f.chain.deployed[userAddrA] = []common.Address{l1, l2}
	f.chain.deployed[userAddrB] = []common.Address{l2, l3}

	s := f.setup()
	ctx := context.Background()

	first, err := s.Step(ctx, click("net-base"))
	require.NoError(t, err)
	assert.Equal(t, []string{"confirm-base-" + lockAddr, "contract-base-1", "add"}, first.Values())
	assert.Contains(t, first.Text, "1 of 3")

	middle, err := s.Step(ctx, click("contract-base-1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"contract-base-0", "confirm-base-" + lockAddr2, "contract-base-2", "add"}, middle.Values())

	last, err := s.Step(ctx, click("contract-base-2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"contract-base-1", "confirm-base-" + tokenAddr, "add"}, last.Values())
}

func TestSetupNoContracts(t *testing.T) {
	f := newFixture()
	sc, err := f.setup().Step(context.Background(), click("net-optimism"))
	require.NoError(t, err)
	assert.Equal(t, []string{"add"}, sc.Values())
	assert.Contains(t, sc.Text, "No locks")
}

func TestSetupConfirmDuplicateNeverInserts(t *testing.T) {
	f := newFixture()
	f.rules.rules = []models.ChannelAccessRule{*models.NewAllowRule(channelID, "base", lockAddr)}

	for _, value := range []string{"confirm-base-" + lockAddr, "persist-base-0x" + strings.ToUpper(lockAddr[2:])} {
		sc, err := f.setup().Step(context.Background(), click(value))
		require.NoError(t, err)
		assert.Contains(t, sc.Text, "already exists")
	}
	assert.Zero(t, f.rules.insertCalls)
}

func TestSetupConfirmInsertsWhenFeeHighEnough(t *testing.T) {
	f := newFixture()
	sc, err := f.setup().Step(context.Background(), click("confirm-base-"+lockAddr))
	require.NoError(t, err)
	assert.Equal(t, []string{"done"}, sc.Values())
	require.Len(t, f.rules.rules, 1)
	assert.Equal(t, lockAddr, f.rules.rules[0].ContractAddress)
	assert.Equal(t, models.OperatorAnd, f.rules.rules[0].Operator)
	assert.Equal(t, models.BehaviorAllow, f.rules.rules[0].RuleBehavior)
	assert.Equal(t, 1, f.recorder.added)
}

func TestSetupConfirmLowFeeDivertsToFeeScreen(t *testing.T) {
	tests := []struct {
		name   string
		fee    *big.Int
		feeErr error
	}{
		{"below threshold", big.NewInt(100), nil},
		{"read failure", nil, errors.New("reverted")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.chain.fee, f.chain.feeErr = tt.fee, tt.feeErr

			sc, err := f.setup().Step(context.Background(), click("confirm-base-"+lockAddr))
			require.NoError(t, err)
			assert.Zero(t, f.rules.insertCalls)

			tx, ok := sc.Find("set fee")
			require.True(t, ok)
			assert.Equal(t, frame.ActionTx, tx.Action)
			assert.Equal(t, baseURL+"/api/tx-referrer-fee/base/"+lockAddr, tx.Target)

			cont, ok := sc.Find("continue")
			require.True(t, ok)
			assert.Equal(t, "persist-base-"+lockAddr, cont.Value)

			next, err := f.setup().Step(context.Background(), click(cont.Value))
			require.NoError(t, err)
			assert.Equal(t, []string{"done"}, next.Values())
			assert.Equal(t, 1, f.rules.insertCalls)
		})
	}
}

func TestSetupInsertErrorOffersRetry(t *testing.T) {
	f := newFixture()
	f.rules.insertErr = errors.New("connection reset")
	value := "persist-base-" + lockAddr

	sc, err := f.setup().Step(context.Background(), click(value))
	require.NoError(t, err)
	retry, ok := sc.Find("try again")
	require.True(t, ok)
	assert.Equal(t, value, retry.Value)
	assert.Zero(t, f.recorder.added)
}

func TestSetupPersistRespectsLimit(t *testing.T) {
	f := newFixture()
	for i := 0; i < settings.RulesLimit; i++ {
		f.rules.rules = append(f.rules.rules, *models.NewAllowRule(channelID, "base", common.BigToAddress(big.NewInt(int64(i+1))).Hex()))
	}
	sc, err := f.setup().Step(context.Background(), click("persist-base-"+lockAddr))
	require.NoError(t, err)
	assert.Equal(t, []string{"remove"}, sc.Values())
	assert.Zero(t, f.rules.insertCalls)
}

func TestSetupRemoveFlow(t *testing.T) {
	f := newFixture()
	f.rules.rules = []models.ChannelAccessRule{
		*models.NewAllowRule(channelID, "base", lockAddr),
		*models.NewAllowRule(channelID, "optimism", lockAddr2),
	}
	s := f.setup()
	ctx := context.Background()

	first, err := s.Step(ctx, click("remove"))
	require.NoError(t, err)
	assert.Equal(t, []string{"delete-base-" + lockAddr, "rules-1", "done"}, first.Values())

	second, err := s.Step(ctx, click("rules-1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"rules-0", "delete-optimism-" + lockAddr2, "done"}, second.Values())

	deleted, err := s.Step(ctx, click("delete-optimism-"+lockAddr2))
	require.NoError(t, err)
	assert.Equal(t, []string{"done"}, deleted.Values())
	assert.Len(t, f.rules.rules, 1)
	assert.Equal(t, 1, f.recorder.removed)
}

func TestSetupDeleteErrorOffersRetry(t *testing.T) {
	f := newFixture()
	f.rules.deleteErr = errors.New("timeout")
	value := "delete-base-" + lockAddr

	sc, err := f.setup().Step(context.Background(), click(value))
	require.NoError(t, err)
	retry, ok := sc.Find("try again")
	require.True(t, ok)
	assert.Equal(t, value, retry.Value)
}

func TestPurchaseInitial(t *testing.T) {
	f := newFixture()
	for _, v := range []string{"", "complete", "garbage"} {
		sc, err := f.purchase().Step(context.Background(), Request{ChannelID: channelID, Value: v})
		require.NoError(t, err)
		assert.Equal(t, []string{"verify"}, sc.Values())
	}
}

func TestPurchaseAlreadyValid(t *testing.T) {
	f := newFixture()
	f.rules.rules = []models.ChannelAccessRule{*models.NewAllowRule(channelID, "base", lockAddr)}
	f.eval.valid = true

	sc, err := f.purchase().Step(context.Background(), click("verify"))
	require.NoError(t, err)
	require.Len(t, sc.Intents, 1)
	assert.Equal(t, frame.Button("complete", "complete"), sc.Intents[0])
}

// Both addresses lack a key and have never bought one on the base lock.
func TestPurchaseScenarioOffersBuy(t *testing.T) {
	f := newFixture()
	f.social.addresses = []string{userAddrA, userAddrB}
	f.rules.rules = []models.ChannelAccessRule{*models.NewAllowRule(channelID, "base", lockAddr)}

	sc, err := f.purchase().Step(context.Background(), click("verify"))
	require.NoError(t, err)
	buy, ok := sc.Find("buy")
	require.True(t, ok)
	assert.Equal(t, frame.ActionTx, buy.Action)
	assert.True(t, strings.HasPrefix(buy.Target, baseURL+"/api/tx-purchase/base/"+lockAddr+"/"), buy.Target)
	assert.Contains(t, sc.Text, "0.001 ETH")
}

func TestPurchaseOffersRenewWithFoundToken(t *testing.T) {
	f := newFixture()
	f.rules.rules = []models.ChannelAccessRule{*models.NewAllowRule(channelID, "base", lockAddr)}
	f.eval.total = 2
	f.eval.token = &membership.OwnedToken{TokenID: big.NewInt(77), Owner: userAddrA, ExpiresAt: time.Now().Add(-48 * time.Hour)}

	sc, err := f.purchase().Step(context.Background(), click("verify"))
	require.NoError(t, err)
	renew, ok := sc.Find("renew")
	require.True(t, ok)
	assert.Equal(t, baseURL+"/api/tx-renew/base/"+lockAddr+"/1000000000000000/77", renew.Target)
	_, hasBuy := sc.Find("buy")
	assert.False(t, hasBuy)
}

func TestPurchaseAllowanceGate(t *testing.T) {
	for _, total := range []int64{0, 3} {
		f := newFixture()
		f.rules.rules = []models.ChannelAccessRule{*models.NewAllowRule(channelID, "base", lockAddr)}
		f.chain.info = unlock.LockInfo{KeyPrice: big.NewInt(5_000_000), TokenAddress: common.HexToAddress(tokenAddr), Symbol: "USDC", Decimals: 6}
		f.chain.allowance = big.NewInt(4_999_999)
		f.eval.total = total
		f.eval.token = &membership.OwnedToken{TokenID: big.NewInt(1), Owner: userAddrA}

		sc, err := f.purchase().Step(context.Background(), click("verify"))
		require.NoError(t, err)
		approve, ok := sc.Find("approve")
		require.True(t, ok)
		assert.Equal(t, baseURL+"/api/tx-approve/base/"+lockAddr+"/5000000", approve.Target)
		_, hasBuy := sc.Find("buy")
		_, hasRenew := sc.Find("renew")
		assert.False(t, hasBuy)
		assert.False(t, hasRenew)
		assert.Contains(t, sc.Text, "5 USDC")
	}
}

func TestPurchaseSufficientAllowanceBuys(t *testing.T) {
	f := newFixture()
	f.rules.rules = []models.ChannelAccessRule{*models.NewAllowRule(channelID, "base", lockAddr)}
	f.chain.info = unlock.LockInfo{KeyPrice: big.NewInt(5_000_000), TokenAddress: common.HexToAddress(tokenAddr), Symbol: "USDC", Decimals: 6}
	f.chain.allowance = big.NewInt(5_000_000)

	sc, err := f.purchase().Step(context.Background(), click("verify"))
	require.NoError(t, err)
	_, ok := sc.Find("buy")
	assert.True(t, ok)
}

func TestPurchaseRulePagination(t *testing.T) {
	f := newFixture()
	f.rules.rules = []models.ChannelAccessRule{
		*models.NewAllowRule(channelID, "base", lockAddr),
		*models.NewAllowRule(channelID, "optimism", lockAddr2),
	}

	sc, err := f.purchase().Step(context.Background(), click("verify-1"))
	require.NoError(t, err)
	buy, ok := sc.Find("buy")
	require.True(t, ok)
	assert.Contains(t, buy.Target, "/tx-purchase/optimism/"+lockAddr2+"/")
	assert.Equal(t, []string{"verify"}, sc.Values())
}

func TestPurchaseTxCallbackReturnsToVerify(t *testing.T) {
	f := newFixture()
	f.rules.rules = []models.ChannelAccessRule{*models.NewAllowRule(channelID, "base", lockAddr)}
	f.eval.valid = true

	sc, err := f.purchase().Step(context.Background(), click("_t"))
	require.NoError(t, err)
	assert.Equal(t, []string{"complete"}, sc.Values())
}

func TestPurchaseEmptyStates(t *testing.T) {
	t.Run("invalid signature", func(t *testing.T) {
		f := newFixture()
		f.social.valid = false
		f.rules.rules = []models.ChannelAccessRule{*models.NewAllowRule(channelID, "base", lockAddr)}
		sc, err := f.purchase().Step(context.Background(), click("verify"))
		require.NoError(t, err)
		assert.Contains(t, sc.Text, "No verified")
	})

	t.Run("no rules", func(t *testing.T) {
		f := newFixture()
		sc, err := f.purchase().Step(context.Background(), click("verify"))
		require.NoError(t, err)
		assert.Empty(t, sc.Intents)
		assert.Contains(t, sc.Text, "no membership requirements")
	})
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		amount   *big.Int
		decimals uint8
		want     string
	}{
		{big.NewInt(0), 18, "0 ETH"},
		{big.NewInt(1_000_000_000_000_000), 18, "0.001 ETH"},
		{big.NewInt(2_500_000), 6, "2.5 ETH"},
		{big.NewInt(7), 0, "7 ETH"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatUnits(tt.amount, tt.decimals, "ETH"))
		})
	}
}
