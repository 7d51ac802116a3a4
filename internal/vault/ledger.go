package vault

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Open pulls the deposit from depositor and mints a new position to it.
func (v *Vault) Open(depositor common.Address, amount0, amount1 *uint256.Int) (uint64, error) {
	var id uint64
	err := v.guarded("open position", func(tx *txn) error {
		deposit := pair{valueOrZero(amount0), valueOrZero(amount1)}
		if deposit.isZero() {
			return ErrInvalidDeposit
		}

		reserves, err := addPairChecked(v.state.Reserves, deposit)
		if err != nil {
			return err
		}

		for i, amount := range deposit {
			if amount.IsZero() {
				continue
			}
			if err := tx.transferIn(v.tokens[i], depositor, amount); err != nil {
				return err
			}
		}

		id = v.state.NextPositionID
		if err := tx.mint(depositor, id); err != nil {
			return err
		}

		v.state.Positions[id] = &position{
			amounts:     deposit,
			feesClaimed: zeroPair(),
			entryGrowth: v.state.FeeGrowthGlobal.clone(),
		}
		v.state.Reserves = reserves
		v.state.NextPositionID++

		v.logger.Debug("position opened",
			zap.Uint64("position_id", id),
			zap.String("owner", depositor.Hex()),
			zap.String("amount0", deposit[0].Dec()),
			zap.String("amount1", deposit[1].Dec()),
		)
		v.emit(PositionOpened{Owner: depositor, PositionID: id, Amount0: deposit[0].Clone(), Amount1: deposit[1].Clone()})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// CollectFees pays a position's unclaimed fees to caller and moves its
// snapshot to the current global counters.
func (v *Vault) CollectFees(caller common.Address, id uint64) (*uint256.Int, *uint256.Int, error) {
	var paid pair
	err := v.guarded("collect fees", func(tx *txn) error {
		pos, err := v.authorizedPosition(caller, id)
		if err != nil {
			return err
		}
		owner, err := v.positions.OwnerOf(id)
		if err != nil {
			return fmt.Errorf("owner of %d: %w", id, err)
		}

		s, err := v.settle(pos)
		if err != nil {
			return err
		}
		reserves, err := subPairChecked(v.state.Reserves, s.owed)
		if err != nil {
			return err
		}
		if err := tx.transferOutPair(caller, s.owed); err != nil {
			return err
		}

		s.commit(pos)
		v.state.Reserves = reserves
		paid = s.owed

		v.logger.Debug("fees collected",
			zap.Uint64("position_id", id),
			zap.String("caller", caller.Hex()),
			zap.String("amount0", paid[0].Dec()),
			zap.String("amount1", paid[1].Dec()),
		)
		v.emit(FeesCollected{Owner: owner, PositionID: id, Amount0: paid[0].Clone(), Amount1: paid[1].Clone()})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return paid[0], paid[1], nil
}

// Close settles outstanding fees, burns the position and pays principal plus
// those fees to caller. The returned amounts are the full payout.
func (v *Vault) Close(caller common.Address, id uint64) (*uint256.Int, *uint256.Int, error) {
	var payout pair
	err := v.guarded("close position", func(tx *txn) error {
		pos, err := v.authorizedPosition(caller, id)
		if err != nil {
			return err
		}
		if pos.amounts.isZero() {
			return fmt.Errorf("%w: position %d holds no principal", ErrInvalidAmount, id)
		}
		owner, err := v.positions.OwnerOf(id)
		if err != nil {
			return fmt.Errorf("owner of %d: %w", id, err)
		}

		s, err := v.settle(pos)
		if err != nil {
			return err
		}
		total, err := addPairChecked(pos.amounts, s.owed)
		if err != nil {
			return err
		}
		reserves, err := subPairChecked(v.state.Reserves, total)
		if err != nil {
			return fmt.Errorf("release position %d: %w", id, err)
		}

		if err := tx.burn(owner, id); err != nil {
			return err
		}
		if err := tx.transferOutPair(caller, total); err != nil {
			return err
		}

		delete(v.state.Positions, id)
		v.state.Reserves = reserves
		payout = total

		v.logger.Debug("position closed",
			zap.Uint64("position_id", id),
			zap.String("caller", caller.Hex()),
			zap.String("amount0", total[0].Dec()),
			zap.String("amount1", total[1].Dec()),
		)
		v.emit(FeesCollected{Owner: owner, PositionID: id, Amount0: s.owed[0].Clone(), Amount1: s.owed[1].Clone()})
		v.emit(PositionClosed{Owner: owner, PositionID: id, Amount0: total[0].Clone(), Amount1: total[1].Clone()})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return payout[0], payout[1], nil
}

// settlement is a computed but not yet applied fee collection.
type settlement struct {
	owed    pair
	claimed pair
	entry   pair
}

func (v *Vault) settle(pos *position) (settlement, error) {
	owed, err := pos.unclaimed(v.state.FeeGrowthGlobal)
	if err != nil {
		return settlement{}, err
	}
	claimed, err := addPairChecked(pos.feesClaimed, owed)
	if err != nil {
		return settlement{}, err
	}
	return settlement{owed: owed, claimed: claimed, entry: v.state.FeeGrowthGlobal.clone()}, nil
}

// commit applies claimed totals and the new snapshot together.
func (s settlement) commit(pos *position) {
	pos.feesClaimed = s.claimed
	pos.entryGrowth = s.entry
}
