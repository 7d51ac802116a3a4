package vault

import (
	"fmt"

	"github.com/holiman/uint256"
)

// accrueFee returns growth + fee*FeeGrowthScale/reserveBefore.
// reserveBefore must be read before the swap mutates reserves.
func accrueFee(growth, fee, reserveBefore *uint256.Int) (*uint256.Int, error) {
	if reserveBefore.IsZero() {
		return nil, ErrEmptyReserve
	}
	delta, err := mulDiv(fee, FeeGrowthScale, reserveBefore)
	if err != nil {
		return nil, fmt.Errorf("fee growth: %w", err)
	}
	return addChecked(growth, delta)
}

// owedFees returns amount*(growth-entry)/FeeGrowthScale. A snapshot ahead of
// the global counter cannot happen since counters only grow, but it yields zero.
func owedFees(amount, growth, entry *uint256.Int) (*uint256.Int, error) {
	if growth.Lt(entry) {
		return new(uint256.Int), nil
	}
	delta := new(uint256.Int).Sub(growth, entry)
	owed, err := mulDiv(amount, delta, FeeGrowthScale)
	if err != nil {
		return nil, fmt.Errorf("owed fees: %w", err)
	}
	return owed, nil
}

// unclaimed projects the fees a position can collect against the global counters.
func (p *position) unclaimed(global pair) (pair, error) {
	var out pair
	for i := range out {
		owed, err := owedFees(p.amounts[i], global[i], p.entryGrowth[i])
		if err != nil {
			return pair{}, err
		}
		out[i] = owed
	}
	return out, nil
}
