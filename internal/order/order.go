package order

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	// TypeHash identifies the order layout. Changing any field changes every order hash.
	TypeHash = crypto.Keccak256Hash([]byte("Order(address sellToken,address buyToken,address receiver,uint256 sellAmount,uint256 buyAmount,uint32 validTo,bytes32 appData,uint256 feeAmount,string kind,bool partiallyFillable,string sellTokenBalance,string buyTokenBalance)"))

	// KindSell tags an order that sells an exact input amount.
	KindSell = crypto.Keccak256Hash([]byte("sell"))

	// BalanceERC20 tags balances moved with plain token transfers.
	BalanceERC20 = crypto.Keccak256Hash([]byte("erc20"))
)

// EncodedLen is the byte length of an encoded order: twelve 32-byte words.
const EncodedLen = 12 * 32

// Order is the canonical record a trader signs to authorize a swap.
type Order struct {
	SellToken         common.Address
	BuyToken          common.Address
	Receiver          common.Address
	SellAmount        *uint256.Int
	BuyAmount         *uint256.Int
	ValidTo           uint32
	AppData           common.Hash
	FeeAmount         *uint256.Int
	Kind              common.Hash
	PartiallyFillable bool
	SellTokenBalance  common.Hash
	BuyTokenBalance   common.Hash
}

// NewSellOrder builds the order the vault expects for a fill-or-kill sell of sellAmount.
func NewSellOrder(sellToken, buyToken, receiver common.Address, sellAmount, minBuyAmount *uint256.Int, validTo uint32) Order {
	return Order{
		SellToken:        sellToken,
		BuyToken:         buyToken,
		Receiver:         receiver,
		SellAmount:       valueOrZero(sellAmount),
		BuyAmount:        valueOrZero(minBuyAmount),
		ValidTo:          validTo,
		FeeAmount:        new(uint256.Int),
		Kind:             KindSell,
		SellTokenBalance: BalanceERC20,
		BuyTokenBalance:  BalanceERC20,
	}
}

var (
	orderArgs     abi.Arguments
	orderArgsOnce sync.Once
	orderArgsErr  error
)

func orderArguments() (abi.Arguments, error) {
	orderArgsOnce.Do(func() {
		spec := []string{
			"address", "address", "address",
			"uint256", "uint256", "uint32",
			"bytes32", "uint256", "bytes32",
			"bool", "bytes32", "bytes32",
		}
		args := make(abi.Arguments, 0, len(spec))
		for _, typ := range spec {
			parsed, err := abi.NewType(typ, "", nil)
			if err != nil {
				orderArgsErr = fmt.Errorf("order abi type %s: %w", typ, err)
				return
			}
			args = append(args, abi.Argument{Type: parsed})
		}
		orderArgs = args
	})
	return orderArgs, orderArgsErr
}

// Encode returns the fixed-width encoding of the order fields in wire order.
func (o Order) Encode() ([]byte, error) {
	args, err := orderArguments()
	if err != nil {
		return nil, err
	}
	data, err := args.Pack(
		o.SellToken,
		o.BuyToken,
		o.Receiver,
		valueOrZero(o.SellAmount).ToBig(),
		valueOrZero(o.BuyAmount).ToBig(),
		o.ValidTo,
		[32]byte(o.AppData),
		valueOrZero(o.FeeAmount).ToBig(),
		[32]byte(o.Kind),
		o.PartiallyFillable,
		[32]byte(o.SellTokenBalance),
		[32]byte(o.BuyTokenBalance),
	)
	if err != nil {
		return nil, fmt.Errorf("pack order: %w", err)
	}
	return data, nil
}

// Hash is keccak256(TypeHash || Encode()).
func (o Order) Hash() (common.Hash, error) {
	data, err := o.Encode()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(TypeHash.Bytes(), data), nil
}

// Digest is the order hash under the "\x19Ethereum Signed Message:\n32" prefix. This is the value that gets signed.
func (o Order) Digest() (common.Hash, error) {
	hash, err := o.Hash()
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(accounts.TextHash(hash.Bytes())), nil
}

func valueOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
