package vault

import (
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// BpsDenominator is the basis-point scale of the swap fee rate.
	BpsDenominator = 10_000
	// MaxFeeBps caps the swap fee rate at 1%.
	MaxFeeBps = 100
)

// FeeGrowthScale is the fixed-point scale of the fee growth counters (1e18).
var FeeGrowthScale = uint256.NewInt(1_000_000_000_000_000_000)

// pair holds one value per asset, indexed 0 and 1.
type pair [2]*uint256.Int

func zeroPair() pair {
	return pair{new(uint256.Int), new(uint256.Int)}
}

func (p pair) clone() pair {
	return pair{p[0].Clone(), p[1].Clone()}
}

func (p pair) isZero() bool {
	return p[0].IsZero() && p[1].IsZero()
}

func addChecked(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s + %s", ErrArithmeticOverflow, x.Dec(), y.Dec())
	}
	return z, nil
}

func subChecked(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, fmt.Errorf("%w: %s - %s", ErrArithmeticOverflow, x.Dec(), y.Dec())
	}
	return z, nil
}

// mulDiv computes floor(x*y/d) with a 512-bit intermediate product.
func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("%w: division by zero", ErrArithmeticOverflow)
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s / %s", ErrArithmeticOverflow, x.Dec(), y.Dec(), d.Dec())
	}
	return z, nil
}

func addPairChecked(x, y pair) (pair, error) {
	var out pair
	for i := range x {
		sum, err := addChecked(x[i], y[i])
		if err != nil {
			return pair{}, err
		}
		out[i] = sum
	}
	return out, nil
}

func subPairChecked(x, y pair) (pair, error) {
	var out pair
	for i := range x {
		diff, err := subChecked(x[i], y[i])
		if err != nil {
			return pair{}, err
		}
		out[i] = diff
	}
	return out, nil
}

func valueOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}
