package projection

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"liquidityVault/internal/model"
)

type amounts [2]*uint256.Int

func zeroAmounts() amounts {
	return amounts{new(uint256.Int), new(uint256.Int)}
}

func parseAmounts(a0, a1 string) (amounts, error) {
	v0, err := parseAmount(a0)
	if err != nil {
		return amounts{}, err
	}
	v1, err := parseAmount(a1)
	if err != nil {
		return amounts{}, err
	}
	return amounts{v0, v1}, nil
}

func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}

// add saturates at the maximum value; a read model never rejects history.
func (a amounts) add(b amounts) {
	for i := range a {
		if _, overflow := a[i].AddOverflow(a[i], b[i]); overflow {
			a[i].SetAllOne()
		}
	}
}

// sub floors at zero and reports whether it had to.
func (a amounts) sub(b amounts) bool {
	clamped := false
	for i := range a {
		if a[i].Lt(b[i]) {
			a[i].Clear()
			clamped = true
			continue
		}
		a[i].Sub(a[i], b[i])
	}
	return clamped
}

// vaultTotals is the in-memory state behind one vault row.
type vaultTotals struct {
	row      model.Vault
	reserves amounts
	volume   amounts
	fees     amounts
}

func newVaultTotals(chainID uint64, address string) *vaultTotals {
	return &vaultTotals{
		row:      model.Vault{ChainID: chainID, Address: address},
		reserves: zeroAmounts(),
		volume:   zeroAmounts(),
		fees:     zeroAmounts(),
	}
}

// tokenIndex returns 0 or 1 for a token of the vault.
func (v *vaultTotals) tokenIndex(token string) (int, error) {
	switch {
	case v.row.Token0 == "" || v.row.Token1 == "":
		return 0, fmt.Errorf("vault %s has unknown tokens", v.row.Address)
	case strings.EqualFold(token, v.row.Token0):
		return 0, nil
	case strings.EqualFold(token, v.row.Token1):
		return 1, nil
	default:
		return 0, fmt.Errorf("token %s not in vault %s", token, v.row.Address)
	}
}

func (v *vaultTotals) snapshot() model.Vault {
	row := v.row
	row.Reserve0 = v.reserves[0].Dec()
	row.Reserve1 = v.reserves[1].Dec()
	row.Volume0 = v.volume[0].Dec()
	row.Volume1 = v.volume[1].Dec()
	row.Fees0 = v.fees[0].Dec()
	row.Fees1 = v.fees[1].Dec()
	return row
}

type positionKey struct {
	vault string
	id    uint64
}

type positionTotals struct {
	row       model.Position
	principal amounts
	claimed   amounts
}

func (p *positionTotals) snapshot() model.Position {
	row := p.row
	row.Amount0 = p.principal[0].Dec()
	row.Amount1 = p.principal[1].Dec()
	row.FeesClaimed0 = p.claimed[0].Dec()
	row.FeesClaimed1 = p.claimed[1].Dec()
	return row
}
