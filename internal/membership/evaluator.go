// Package membership decides whether a set of addresses holds a valid key
// for any of a channel's access rules.
package membership

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/members-only/backend/internal/metrics"
	"github.com/members-only/backend/internal/models"
	"github.com/members-only/backend/internal/unlock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// KeyReader is the chain access the evaluator needs. *unlock.Client implements it.
type KeyReader interface {
	HasValidKey(ctx context.Context, network string, lock, owner common.Address) (bool, error)
	TotalKeys(ctx context.Context, network string, lock, owner common.Address) (*big.Int, error)
	TokenOfOwnerByIndex(ctx context.Context, network string, lock, owner common.Address, index *big.Int) (*big.Int, error)
	KeyExpirationTimestampFor(ctx context.Context, network string, lock common.Address, tokenID *big.Int) (*big.Int, error)
}

const DefaultParallelism = 4

type Option func(*Evaluator)

// WithParallelism bounds concurrent chain reads per evaluation. 1 makes the
// evaluation strictly sequential in address-then-rule order.
func WithParallelism(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithClock overrides the time source used to judge key expiration.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

type Evaluator struct {
	keys        KeyReader
	parallelism int
	now         func() time.Time
	log         *zap.Logger
}

func NewEvaluator(keys KeyReader, log *zap.Logger, opts ...Option) *Evaluator {
	e := &Evaluator{keys: keys, parallelism: DefaultParallelism, now: time.Now, log: log}
	for _, o := range opts {
		o(e)
	}
	return e
}

func isFatal(err error) bool {
	return errors.Is(err, unlock.ErrUnsupportedNetwork)
}

// IsAnyMembershipValid reports whether any address holds a valid key on any
// rule's lock. No new probe starts once a valid key has been seen. A failed
// probe counts as negative; an unsupported network aborts the evaluation.
func (e *Evaluator) IsAnyMembershipValid(ctx context.Context, addresses []string, rules []models.ChannelAccessRule) (bool, error) {
	if len(addresses) == 0 || len(rules) == 0 {
		metrics.MembershipChecksTotal.WithLabelValues("invalid").Inc()
		return false, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(e.parallelism)

	var found atomic.Bool
probes:
	for _, addr := range addresses {
		for _, rule := range rules {
			if found.Load() || gctx.Err() != nil {
				break probes
			}
			addr, rule := addr, rule
			g.Go(func() error {
				if found.Load() {
					return nil
				}
				ok, err := e.keys.HasValidKey(gctx, rule.Network, common.HexToAddress(rule.ContractAddress), common.HexToAddress(addr))
				if err != nil {
					if isFatal(err) {
						return err
					}
					e.log.Debug("membership probe failed",
						zap.String("address", addr),
						zap.String("network", rule.Network),
						zap.String("contract", rule.ContractAddress),
						zap.Error(err),
					)
					return nil
				}
				if ok {
					found.Store(true)
					cancel()
				}
				return nil
			})
		}
	}

	err := g.Wait()
	switch {
	case found.Load():
		metrics.MembershipChecksTotal.WithLabelValues("valid").Inc()
		return true, nil
	case err != nil:
		metrics.MembershipChecksTotal.WithLabelValues("error").Inc()
		return false, err
	case ctx.Err() != nil:
		metrics.MembershipChecksTotal.WithLabelValues("error").Inc()
		return false, ctx.Err()
	}
	metrics.MembershipChecksTotal.WithLabelValues("invalid").Inc()
	return false, nil
}

// CountTotalKeys sums the keys each address holds on rule's lock, expired or not.
// A failed read counts as zero keys for that address.
func (e *Evaluator) CountTotalKeys(ctx context.Context, addresses []string, rule models.ChannelAccessRule) (int64, error) {
	counts := make([]int64, len(addresses))
	lock := common.HexToAddress(rule.ContractAddress)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, addr := range addresses {
		i, addr := i, addr
		g.Go(func() error {
			n, err := e.keys.TotalKeys(gctx, rule.Network, lock, common.HexToAddress(addr))
			if err != nil {
				if isFatal(err) {
					return err
				}
				e.log.Debug("total keys read failed", zap.String("address", addr), zap.Error(err))
				return nil
			}
			if n.IsInt64() {
				counts[i] = n.Int64()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// OwnedToken is a key found for renewal.
type OwnedToken struct {
	TokenID          *big.Int
	Owner            string
	IsCurrentlyValid bool
	ExpiresAt        time.Time
}

// FindFirstOwnedToken scans each address's token indices below totalKeysHint,
// in address-then-index order, and returns the first one that resolves.
// Index reads that fail or yield token id 0 are skipped.
func (e *Evaluator) FindFirstOwnedToken(ctx context.Context, addresses []string, totalKeysHint int64, rule models.ChannelAccessRule) (*OwnedToken, error) {
	lock := common.HexToAddress(rule.ContractAddress)
	for _, addr := range addresses {
		owner := common.HexToAddress(addr)
		for i := int64(0); i < totalKeysHint; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			tokenID, err := e.keys.TokenOfOwnerByIndex(ctx, rule.Network, lock, owner, big.NewInt(i))
			if err != nil {
				if isFatal(err) {
					return nil, err
				}
				continue
			}
			if tokenID == nil || tokenID.Sign() == 0 {
				continue
			}

			token := &OwnedToken{TokenID: tokenID, Owner: addr}
			exp, err := e.keys.KeyExpirationTimestampFor(ctx, rule.Network, lock, tokenID)
			if err != nil {
				if isFatal(err) {
					return nil, err
				}
				e.log.Debug("key expiration read failed", zap.String("token_id", tokenID.String()), zap.Error(err))
				return token, nil
			}
			if exp.IsInt64() {
				token.ExpiresAt = time.Unix(exp.Int64(), 0)
				token.IsCurrentlyValid = token.ExpiresAt.After(e.now())
			} else {
				// Unlock stores "never expires" as max uint256.
				token.IsCurrentlyValid = true
			}
			return token, nil
		}
	}
	return nil, nil
}

// Probe is the full membership picture of one address against one rule.
type Probe struct {
	Address     string                   `json:"address"`
	Rule        models.ChannelAccessRule `json:"rule"`
	HasValidKey bool                     `json:"has_valid_key"`
	KeyCount    int64                    `json:"key_count"`
	TokenID     string                   `json:"token_id,omitempty"`
	ExpiresAt   *time.Time               `json:"expires_at,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

// Probe reads validity, key count and first token of address on rule's lock.
func (e *Evaluator) Probe(ctx context.Context, address string, rule models.ChannelAccessRule) (*Probe, error) {
	p := &Probe{Address: models.NormalizeAddress(address), Rule: rule}
	lock := common.HexToAddress(rule.ContractAddress)

	valid, err := e.keys.HasValidKey(ctx, rule.Network, lock, common.HexToAddress(address))
	if err != nil {
		if isFatal(err) {
			return nil, err
		}
		p.Error = err.Error()
		return p, nil
	}
	p.HasValidKey = valid

	count, err := e.CountTotalKeys(ctx, []string{address}, rule)
	if err != nil {
		return nil, err
	}
	p.KeyCount = count
	if count == 0 {
		return p, nil
	}

	token, err := e.FindFirstOwnedToken(ctx, []string{address}, count, rule)
	if err != nil {
		return nil, err
	}
	if token != nil {
		p.TokenID = token.TokenID.String()
		if !token.ExpiresAt.IsZero() {
			p.ExpiresAt = &token.ExpiresAt
		}
	}
	return p, nil
}
