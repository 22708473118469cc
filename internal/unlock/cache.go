package unlock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ContractLister lists locks deployed by an owner.
type ContractLister interface {
	DeployedContracts(ctx context.Context, network string, owner common.Address) ([]common.Address, error)
}

// KV is the slice of a key-value store the listing cache uses.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type redisKV struct {
	client *redis.Client
}

// NewRedisKV adapts a go-redis client to KV.
func NewRedisKV(client *redis.Client) KV {
	return &redisKV{client: client}
}

func (r *redisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *redisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// CachedLister memoizes deployed-contract listings per (network, owner).
// Cache failures fall through to the underlying lister.
type CachedLister struct {
	next ContractLister
	kv   KV
	ttl  time.Duration
	log  *zap.Logger
}

func NewCachedLister(next ContractLister, kv KV, ttl time.Duration, log *zap.Logger) *CachedLister {
	return &CachedLister{next: next, kv: kv, ttl: ttl, log: log}
}

func listingKey(network string, owner common.Address) string {
	return fmt.Sprintf("locks:%s:%s", network, owner.Hex())
}

func (c *CachedLister) DeployedContracts(ctx context.Context, network string, owner common.Address) ([]common.Address, error) {
	key := listingKey(network, owner)
	if c.ttl > 0 {
		raw, ok, err := c.kv.Get(ctx, key)
		if err != nil {
			c.log.Warn("contract cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			var cached []common.Address
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return cached, nil
			}
		}
	}

	locks, err := c.next.DeployedContracts(ctx, network, owner)
	if err != nil {
		return nil, err
	}

	if c.ttl > 0 {
		data, _ := json.Marshal(locks)
		if err := c.kv.Set(ctx, key, string(data), c.ttl); err != nil {
			c.log.Warn("contract cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return locks, nil
}

// CachedReader is a Client whose DeployedContracts goes through a CachedLister.
type CachedReader struct {
	*Client
	lister *CachedLister
}

func NewCachedReader(client *Client, kv KV, ttl time.Duration, log *zap.Logger) *CachedReader {
	return &CachedReader{Client: client, lister: NewCachedLister(client, kv, ttl, log)}
}

func (r *CachedReader) DeployedContracts(ctx context.Context, network string, owner common.Address) ([]common.Address, error) {
	return r.lister.DeployedContracts(ctx, network, owner)
}
