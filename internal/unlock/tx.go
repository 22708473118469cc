package unlock

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/members-only/backend/internal/frame"
)

const sendTransaction = "eth_sendTransaction"

// TxBuilder assembles unsigned transactions for Frame tx buttons. It never signs.
type TxBuilder struct {
	referrer       common.Address
	minReferralFee *big.Int
}

// NewTxBuilder returns a builder that names referrer on purchases and renewals
// and proposes minReferralFeeBPS in referrer fee updates.
func NewTxBuilder(referrer common.Address, minReferralFeeBPS int64) *TxBuilder {
	return &TxBuilder{referrer: referrer, minReferralFee: big.NewInt(minReferralFeeBPS)}
}

func (b *TxBuilder) Referrer() common.Address { return b.referrer }

func (b *TxBuilder) MinReferralFee() *big.Int { return new(big.Int).Set(b.minReferralFee) }

func (b *TxBuilder) build(network string, to common.Address, abiDef, method string, value *big.Int, args ...any) (*frame.Transaction, error) {
	n, err := LookupNetwork(network)
	if err != nil {
		return nil, err
	}
	parsed := PublicLockABI
	if abiDef == erc20ABIJSON {
		parsed = ERC20ABI
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	fragment, err := methodFragment(abiDef, method)
	if err != nil {
		return nil, err
	}

	tx := &frame.Transaction{
		ChainID: n.CAIP2(),
		Method:  sendTransaction,
		Params: frame.TransactionParams{
			ABI:  fragment,
			To:   to.Hex(),
			Data: hexutil.Encode(data),
		},
	}
	if value != nil && value.Sign() > 0 {
		tx.Params.Value = value.String()
	}
	return tx, nil
}

// Purchase buys one key for recipient. Native-currency locks take price as tx value.
func (b *TxBuilder) Purchase(network string, lock, recipient common.Address, price *big.Int, native bool) (*frame.Transaction, error) {
	var value *big.Int
	if native {
		value = price
	}
	return b.build(network, lock, publicLockABIJSON, "purchase", value,
		[]*big.Int{price},
		[]common.Address{recipient},
		[]common.Address{b.referrer},
		[]common.Address{recipient},
		[][]byte{{}},
	)
}

// Renew extends tokenID by one key duration.
func (b *TxBuilder) Renew(network string, lock common.Address, tokenID, price *big.Int, native bool) (*frame.Transaction, error) {
	var value *big.Int
	if native {
		value = price
	}
	return b.build(network, lock, publicLockABIJSON, "extend", value, price, tokenID, b.referrer, []byte{})
}

// Approve lets lock spend amount of token on behalf of the sender.
func (b *TxBuilder) Approve(network string, token, lock common.Address, amount *big.Int) (*frame.Transaction, error) {
	return b.build(network, token, erc20ABIJSON, "approve", nil, lock, amount)
}

// SetReferrerFee sets the builder's referrer fee on lock to the configured minimum.
func (b *TxBuilder) SetReferrerFee(network string, lock common.Address) (*frame.Transaction, error) {
	return b.build(network, lock, publicLockABIJSON, "setReferrerFee", nil, b.referrer, b.MinReferralFee())
}
