package vault

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityVault/internal/order"
)

// SwapRequest is a sell order submitted by trader together with its signature.
type SwapRequest struct {
	SellToken    common.Address
	BuyToken     common.Address
	SellAmount   *uint256.Int
	MinBuyAmount *uint256.Int
	ValidTo      uint32
	Signature    []byte
	Trader       common.Address
}

// Order returns the canonical order the trader must have signed.
func (r SwapRequest) Order() order.Order {
	return order.NewSellOrder(r.SellToken, r.BuyToken, r.Trader, r.SellAmount, r.MinBuyAmount, r.ValidTo)
}

// Quote is the priced outcome of selling SellAmount against current reserves.
type Quote struct {
	SellAmount *uint256.Int
	FeeAmount  *uint256.Int
	NetSell    *uint256.Int
	BuyAmount  *uint256.Int
}

// Quote prices a sell without authorization or state changes.
func (v *Vault) Quote(sellToken, buyToken common.Address, sellAmount *uint256.Int) (Quote, error) {
	sell, buy, err := v.pairIndex(sellToken, buyToken)
	if err != nil {
		return Quote{}, err
	}
	if sellAmount == nil || sellAmount.IsZero() {
		return Quote{}, fmt.Errorf("%w: sell amount must be positive", ErrInvalidAmount)
	}
	return v.quote(sell, buy, sellAmount)
}

func (v *Vault) quote(sell, buy int, sellAmount *uint256.Int) (Quote, error) {
	sellReserve := v.state.Reserves[sell]
	buyReserve := v.state.Reserves[buy]
	if sellReserve.IsZero() || buyReserve.IsZero() {
		return Quote{}, ErrEmptyReserve
	}

	fee, err := mulDiv(sellAmount, uint256.NewInt(uint64(v.cfg.FeeBps)), uint256.NewInt(BpsDenominator))
	if err != nil {
		return Quote{}, err
	}
	net := new(uint256.Int).Sub(sellAmount, fee)

	denominator, err := addChecked(sellReserve, net)
	if err != nil {
		return Quote{}, err
	}
	out, err := mulDiv(net, buyReserve, denominator)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		SellAmount: sellAmount.Clone(),
		FeeAmount:  fee,
		NetSell:    net,
		BuyAmount:  out,
	}, nil
}

// Swap authenticates, prices and settles a signed sell order.
func (v *Vault) Swap(req SwapRequest) (*uint256.Int, error) {
	var bought *uint256.Int
	err := v.guarded("swap", func(tx *txn) error {
		sell, buy, err := v.pairIndex(req.SellToken, req.BuyToken)
		if err != nil {
			return err
		}
		if req.SellAmount == nil || req.SellAmount.IsZero() {
			return fmt.Errorf("%w: sell amount must be positive", ErrInvalidAmount)
		}
		minBuy := valueOrZero(req.MinBuyAmount)

		if err := v.authenticate(req); err != nil {
			return err
		}

		q, err := v.quote(sell, buy, req.SellAmount)
		if err != nil {
			return err
		}
		if q.BuyAmount.Lt(minBuy) {
			return fmt.Errorf("%w: buy %s below minimum %s", ErrSlippageExceeded, q.BuyAmount.Dec(), minBuy.Dec())
		}

		growth, err := accrueFee(v.state.FeeGrowthGlobal[sell], q.FeeAmount, v.state.Reserves[sell])
		if err != nil {
			return err
		}
		sellReserve, err := addChecked(v.state.Reserves[sell], q.SellAmount)
		if err != nil {
			return err
		}
		buyReserve, err := subChecked(v.state.Reserves[buy], q.BuyAmount)
		if err != nil {
			return fmt.Errorf("buy reserve invariant: %w", err)
		}

		if err := tx.transferIn(req.SellToken, req.Trader, q.SellAmount); err != nil {
			return err
		}
		if err := tx.transferOut(req.BuyToken, req.Trader, q.BuyAmount); err != nil {
			return err
		}

		v.state.FeeGrowthGlobal[sell] = growth
		v.state.Reserves[sell] = sellReserve
		v.state.Reserves[buy] = buyReserve
		bought = q.BuyAmount

		v.logger.Debug("swap executed",
			zap.String("trader", req.Trader.Hex()),
			zap.String("sell_token", req.SellToken.Hex()),
			zap.String("sell_amount", q.SellAmount.Dec()),
			zap.String("buy_amount", q.BuyAmount.Dec()),
			zap.String("fee_amount", q.FeeAmount.Dec()),
		)
		v.emit(SwapExecuted{
			Trader:     req.Trader,
			SellToken:  req.SellToken,
			BuyToken:   req.BuyToken,
			SellAmount: q.SellAmount.Clone(),
			BuyAmount:  q.BuyAmount.Clone(),
			FeeAmount:  q.FeeAmount.Clone(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bought, nil
}

// authenticate checks the deadline and that the order signature recovers to the trader.
func (v *Vault) authenticate(req SwapRequest) error {
	now := v.cfg.Now().Unix()
	if now > int64(req.ValidTo) {
		return fmt.Errorf("%w: valid to %d, now %d", ErrOrderExpired, req.ValidTo, now)
	}
	ok, err := v.auth.Authenticate(req.Order(), req.Signature, req.Trader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAuthorization, err)
	}
	if !ok {
		return fmt.Errorf("%w: signer is not %s", ErrInvalidAuthorization, req.Trader.Hex())
	}
	return nil
}

func (v *Vault) pairIndex(sellToken, buyToken common.Address) (int, int, error) {
	switch {
	case sellToken == v.tokens[0] && buyToken == v.tokens[1]:
		return 0, 1, nil
	case sellToken == v.tokens[1] && buyToken == v.tokens[0]:
		return 1, 0, nil
	default:
		return 0, 0, fmt.Errorf("%w: %s/%s", ErrInvalidAssetPair, sellToken.Hex(), buyToken.Hex())
	}
}
