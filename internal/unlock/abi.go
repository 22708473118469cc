package unlock

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// Subset of PublicLock v14 used by the bot.
const publicLockABIJSON = `[
  {"type":"function","name":"getHasValidKey","stateMutability":"view","inputs":[{"name":"_keyOwner","type":"address"}],"outputs":[{"name":"isValid","type":"bool"}]},
  {"type":"function","name":"totalKeys","stateMutability":"view","inputs":[{"name":"_keyOwner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"tokenOfOwnerByIndex","stateMutability":"view","inputs":[{"name":"_keyOwner","type":"address"},{"name":"_index","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"keyExpirationTimestampFor","stateMutability":"view","inputs":[{"name":"_tokenId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"isValidKey","stateMutability":"view","inputs":[{"name":"_tokenId","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"keyPrice","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"tokenAddress","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"referrerFees","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"purchase","stateMutability":"payable","inputs":[{"name":"_values","type":"uint256[]"},{"name":"_recipients","type":"address[]"},{"name":"_referrers","type":"address[]"},{"name":"_keyManagers","type":"address[]"},{"name":"_data","type":"bytes[]"}],"outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"extend","stateMutability":"payable","inputs":[{"name":"_value","type":"uint256"},{"name":"_tokenId","type":"uint256"},{"name":"_referrer","type":"address"},{"name":"_data","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"setReferrerFee","stateMutability":"nonpayable","inputs":[{"name":"_referrer","type":"address"},{"name":"_feeBasisPoint","type":"uint256"}],"outputs":[]}
]`

const erc20ABIJSON = `[
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

var (
	PublicLockABI = mustParseABI(publicLockABIJSON)
	ERC20ABI      = mustParseABI(erc20ABIJSON)

	// NewLockTopic is keccak256("NewLock(address,address)") emitted by the Unlock factory.
	NewLockTopic = crypto.Keccak256Hash([]byte("NewLock(address,address)"))
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("unlock: parse abi: %v", err))
	}
	return parsed
}

// methodFragment returns the JSON ABI entry for a single method, as expected
// in the "abi" field of a Frame transaction.
func methodFragment(def, method string) (json.RawMessage, error) {
	var entries []map[string]any
	if err := json.Unmarshal([]byte(def), &entries); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e["name"] == method {
			b, err := json.Marshal([]any{e})
			if err != nil {
				return nil, err
			}
			return b, nil
		}
	}
	return nil, fmt.Errorf("method %q not in abi", method)
}
