// Package unlock reads Unlock Protocol locks and ERC-20 tokens over EVM
// JSON-RPC and assembles the unsigned transactions Frames hand to wallets.
package unlock

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/members-only/backend/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Backend is the subset of ethclient.Client the reader needs.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

type chainConn struct {
	network Network
	backend Backend
	limiter *rate.Limiter
}

// Client is the chain reader. One backend per configured network.
type Client struct {
	chains map[string]*chainConn
	log    *zap.Logger
}

// Dial connects to every network with a non-empty RPC URL. Networks without
// a URL are reported as ErrUnsupportedNetwork at call time.
func Dial(ctx context.Context, rpcURLs map[string]string, rps float64, log *zap.Logger) (*Client, error) {
	backends := make(map[string]Backend)
	for name, url := range rpcURLs {
		if url == "" {
			continue
		}
		if _, err := LookupNetwork(name); err != nil {
			return nil, err
		}
		ec, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("dial %s rpc: %w", name, err)
		}
		backends[name] = ec
		log.Info("rpc client ready", zap.String("network", name))
	}
	return NewClient(backends, rps, log)
}

// NewClient wraps pre-built backends keyed by network name.
func NewClient(backends map[string]Backend, rps float64, log *zap.Logger) (*Client, error) {
	c := &Client{chains: make(map[string]*chainConn), log: log}
	for name, b := range backends {
		n, err := LookupNetwork(name)
		if err != nil {
			return nil, err
		}
		var lim *rate.Limiter
		if rps > 0 {
			lim = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
		}
		c.chains[n.Name] = &chainConn{network: n, backend: b, limiter: lim}
	}
	return c, nil
}

// Network returns the network definition if the client can read from it.
func (c *Client) Network(name string) (Network, error) {
	conn, err := c.conn(name)
	if err != nil {
		return Network{}, err
	}
	return conn.network, nil
}

func (c *Client) conn(name string) (*chainConn, error) {
	conn, ok := c.chains[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, name)
	}
	return conn, nil
}

// Call performs an eth_call of method on contract and returns the decoded outputs.
func (c *Client) Call(ctx context.Context, network string, contract common.Address, contractABI abi.ABI, method string, args ...any) ([]any, error) {
	conn, err := c.conn(network)
	if err != nil {
		return nil, err
	}

	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	if conn.limiter != nil {
		if err := conn.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	out, err := conn.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	metrics.ChainReadLatency.WithLabelValues(conn.network.Name).Observe(time.Since(start).Seconds())
	metrics.ChainReadsTotal.WithLabelValues(conn.network.Name, method, metrics.ReadStatus(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, contract.Hex(), err)
	}

	values, err := contractABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

func (c *Client) callBigInt(ctx context.Context, network string, contract common.Address, contractABI abi.ABI, method string, args ...any) (*big.Int, error) {
	values, err := c.Call(ctx, network, contract, contractABI, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output type %T", method, values[0])
	}
	return v, nil
}

func (c *Client) HasValidKey(ctx context.Context, network string, lock, owner common.Address) (bool, error) {
	values, err := c.Call(ctx, network, lock, PublicLockABI, "getHasValidKey", owner)
	if err != nil {
		return false, err
	}
	v, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("getHasValidKey: unexpected output type %T", values[0])
	}
	return v, nil
}

func (c *Client) TotalKeys(ctx context.Context, network string, lock, owner common.Address) (*big.Int, error) {
	return c.callBigInt(ctx, network, lock, PublicLockABI, "totalKeys", owner)
}

func (c *Client) TokenOfOwnerByIndex(ctx context.Context, network string, lock, owner common.Address, index *big.Int) (*big.Int, error) {
	return c.callBigInt(ctx, network, lock, PublicLockABI, "tokenOfOwnerByIndex", owner, index)
}

func (c *Client) KeyExpirationTimestampFor(ctx context.Context, network string, lock common.Address, tokenID *big.Int) (*big.Int, error) {
	return c.callBigInt(ctx, network, lock, PublicLockABI, "keyExpirationTimestampFor", tokenID)
}

func (c *Client) KeyPrice(ctx context.Context, network string, lock common.Address) (*big.Int, error) {
	return c.callBigInt(ctx, network, lock, PublicLockABI, "keyPrice")
}

func (c *Client) ReferrerFee(ctx context.Context, network string, lock, referrer common.Address) (*big.Int, error) {
	return c.callBigInt(ctx, network, lock, PublicLockABI, "referrerFees", referrer)
}

// TokenAddress returns the lock's payment token; the zero address means native currency.
func (c *Client) TokenAddress(ctx context.Context, network string, lock common.Address) (common.Address, error) {
	values, err := c.Call(ctx, network, lock, PublicLockABI, "tokenAddress")
	if err != nil {
		return common.Address{}, err
	}
	v, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("tokenAddress: unexpected output type %T", values[0])
	}
	return v, nil
}

func (c *Client) Name(ctx context.Context, network string, lock common.Address) (string, error) {
	values, err := c.Call(ctx, network, lock, PublicLockABI, "name")
	if err != nil {
		return "", err
	}
	v, _ := values[0].(string)
	return v, nil
}

func (c *Client) Allowance(ctx context.Context, network string, token, owner, spender common.Address) (*big.Int, error) {
	return c.callBigInt(ctx, network, token, ERC20ABI, "allowance", owner, spender)
}

func (c *Client) Symbol(ctx context.Context, network string, token common.Address) (string, error) {
	values, err := c.Call(ctx, network, token, ERC20ABI, "symbol")
	if err != nil {
		return "", err
	}
	v, _ := values[0].(string)
	return v, nil
}

func (c *Client) Decimals(ctx context.Context, network string, token common.Address) (uint8, error) {
	values, err := c.Call(ctx, network, token, ERC20ABI, "decimals")
	if err != nil {
		return 0, err
	}
	v, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected output type %T", values[0])
	}
	return v, nil
}

// DeployedContracts lists locks created by owner through the network's Unlock factory.
func (c *Client) DeployedContracts(ctx context.Context, network string, owner common.Address) ([]common.Address, error) {
	conn, err := c.conn(network)
	if err != nil {
		return nil, err
	}
	if conn.limiter != nil {
		if err := conn.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	logs, err := conn.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: big.NewInt(0),
		Addresses: []common.Address{conn.network.UnlockAddress},
		Topics:    [][]common.Hash{{NewLockTopic}, {common.BytesToHash(owner.Bytes())}},
	})
	metrics.ChainReadsTotal.WithLabelValues(conn.network.Name, "NewLock", metrics.ReadStatus(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("filter NewLock logs for %s: %w", owner.Hex(), err)
	}

	locks := make([]common.Address, 0, len(logs))
	for _, l := range logs {
		if len(l.Topics) < 3 || l.Removed {
			continue
		}
		locks = append(locks, common.BytesToAddress(l.Topics[2].Bytes()))
	}
	return locks, nil
}

// LockInfo is what the purchase screens show about a lock.
type LockInfo struct {
	Name         string
	KeyPrice     *big.Int
	TokenAddress common.Address
	Symbol       string
	Decimals     uint8
}

// IsNative reports whether keys are paid in the chain's native currency.
func (l LockInfo) IsNative() bool {
	return l.TokenAddress == (common.Address{})
}

// LockInfo reads price and payment token of a lock. Name and token metadata
// are cosmetic: failures there fall back to defaults.
func (c *Client) LockInfo(ctx context.Context, network string, lock common.Address) (*LockInfo, error) {
	price, err := c.KeyPrice(ctx, network, lock)
	if err != nil {
		return nil, err
	}
	token, err := c.TokenAddress(ctx, network, lock)
	if err != nil {
		return nil, err
	}

	info := &LockInfo{KeyPrice: price, TokenAddress: token, Symbol: "ETH", Decimals: 18}
	if name, err := c.Name(ctx, network, lock); err == nil {
		info.Name = name
	} else {
		c.log.Debug("lock name read failed", zap.String("lock", lock.Hex()), zap.Error(err))
	}
	if !info.IsNative() {
		if sym, err := c.Symbol(ctx, network, token); err == nil {
			info.Symbol = sym
		}
		if dec, err := c.Decimals(ctx, network, token); err == nil {
			info.Decimals = dec
		}
	}
	return info, nil
}
