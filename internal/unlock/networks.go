package unlock

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnsupportedNetwork is a configuration error: the network is unknown or has no RPC endpoint.
var ErrUnsupportedNetwork = errors.New("unsupported network")

// Network describes an EVM chain the bot can read from.
type Network struct {
	Name    string
	ChainID int64
	// UnlockAddress is the Unlock factory proxy that emits NewLock for every deployed lock.
	UnlockAddress common.Address
}

// CAIP2 returns the chain identifier used by Frame transactions, e.g. "eip155:8453".
func (n Network) CAIP2() string {
	return fmt.Sprintf("eip155:%d", n.ChainID)
}

var knownNetworks = map[string]Network{
	"ethereum": {Name: "ethereum", ChainID: 1, UnlockAddress: common.HexToAddress("0xe79B93f8E22676774F2A8dAd469175ebd00029FA")},
	"base":     {Name: "base", ChainID: 8453, UnlockAddress: common.HexToAddress("0xd0b14797b9D08493392865647384974470202A78")},
	"optimism": {Name: "optimism", ChainID: 10, UnlockAddress: common.HexToAddress("0x99b1348a9129ac49c6de7F11245773dE2f51fB0c")},
	"arbitrum": {Name: "arbitrum", ChainID: 42161, UnlockAddress: common.HexToAddress("0x1FF7e338d5E582138C46044dc238543Ce555C963")},
}

// LookupNetwork resolves a network by name (case-insensitive).
func LookupNetwork(name string) (Network, error) {
	n, ok := knownNetworks[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Network{}, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, name)
	}
	return n, nil
}
