package token

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityVault/internal/vault"
)

// MaxAllowance is never decremented by transfers.
var MaxAllowance = new(uint256.Int).SetAllOne()

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// Bank is an in-memory multi-asset ledger with ERC20 balance and allowance semantics.
type Bank struct {
	mu         sync.Mutex
	balances   map[common.Address]map[common.Address]*uint256.Int
	allowances map[common.Address]map[allowanceKey]*uint256.Int
	journal    journal
}

func NewBank() *Bank {
	return &Bank{
		balances:   make(map[common.Address]map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[allowanceKey]*uint256.Int),
	}
}

// Mint credits amount of asset to an account.
func (b *Bank) Mint(asset, to common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	next, overflow := new(uint256.Int).AddOverflow(b.balanceLocked(asset, to), amount)
	if overflow {
		return &vault.TransferError{Kind: vault.ErrTransferRejected, Asset: asset, Account: to, Amount: amount.Clone()}
	}
	b.setBalanceLocked(asset, to, next)
	return nil
}

func (b *Bank) BalanceOf(asset, account common.Address) *uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balanceLocked(asset, account).Clone()
}

// Approve sets the amount spender may move out of owner's balance.
func (b *Bank) Approve(asset, owner, spender common.Address, amount *uint256.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setAllowanceLocked(asset, allowanceKey{owner: owner, spender: spender}, amount.Clone())
}

func (b *Bank) Allowance(asset, owner, spender common.Address) *uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allowanceLocked(asset, allowanceKey{owner: owner, spender: spender}).Clone()
}

// Transfer moves amount from one account to another.
func (b *Bank) Transfer(asset, from, to common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.moveLocked(asset, from, to, amount)
}

// TransferFrom moves amount on behalf of spender, consuming allowance.
func (b *Bank) TransferFrom(asset, spender, from, to common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := allowanceKey{owner: from, spender: spender}
	allowance := b.allowanceLocked(asset, key)
	if allowance.Lt(amount) {
		return &vault.TransferError{Kind: vault.ErrInsufficientAllowance, Asset: asset, Account: from, Amount: amount.Clone()}
	}
	if err := b.moveLocked(asset, from, to, amount); err != nil {
		return err
	}
	if !allowance.Eq(MaxAllowance) {
		b.setAllowanceLocked(asset, key, new(uint256.Int).Sub(allowance, amount))
	}
	return nil
}

// Snapshot returns an id for RevertToSnapshot.
func (b *Bank) Snapshot() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.journal.snapshot()
}

// RevertToSnapshot undoes every mutation made after the snapshot was taken.
func (b *Bank) RevertToSnapshot(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.journal.revert(id)
}

// DiscardSnapshot keeps the changes made since the snapshot and releases its undo log.
func (b *Bank) DiscardSnapshot(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.journal.discard(id)
}

// Custody binds the bank to a vault account, giving the vault its AssetTransfer.
func (b *Bank) Custody(account common.Address) *Custody {
	return &Custody{bank: b, account: account}
}

func (b *Bank) moveLocked(asset, from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return &vault.TransferError{Kind: vault.ErrTransferRejected, Asset: asset, Account: to, Amount: amount.Clone()}
	}
	fromBal := b.balanceLocked(asset, from)
	if fromBal.Lt(amount) {
		return &vault.TransferError{Kind: vault.ErrInsufficientBalance, Asset: asset, Account: from, Amount: amount.Clone()}
	}
	if from == to {
		return nil
	}
	toBal, overflow := new(uint256.Int).AddOverflow(b.balanceLocked(asset, to), amount)
	if overflow {
		return &vault.TransferError{Kind: vault.ErrTransferRejected, Asset: asset, Account: to, Amount: amount.Clone()}
	}
	b.setBalanceLocked(asset, from, new(uint256.Int).Sub(fromBal, amount))
	b.setBalanceLocked(asset, to, toBal)
	return nil
}

func (b *Bank) balanceLocked(asset, account common.Address) *uint256.Int {
	if bal, ok := b.balances[asset][account]; ok {
		return bal
	}
	return new(uint256.Int)
}

func (b *Bank) setBalanceLocked(asset, account common.Address, value *uint256.Int) {
	accounts, ok := b.balances[asset]
	if !ok {
		accounts = make(map[common.Address]*uint256.Int)
		b.balances[asset] = accounts
	}
	prev, existed := accounts[account]
	b.journal.append(func() {
		if existed {
			accounts[account] = prev
		} else {
			delete(accounts, account)
		}
	})
	accounts[account] = value
}

func (b *Bank) allowanceLocked(asset common.Address, key allowanceKey) *uint256.Int {
	if allowance, ok := b.allowances[asset][key]; ok {
		return allowance
	}
	return new(uint256.Int)
}

func (b *Bank) setAllowanceLocked(asset common.Address, key allowanceKey, value *uint256.Int) {
	byKey, ok := b.allowances[asset]
	if !ok {
		byKey = make(map[allowanceKey]*uint256.Int)
		b.allowances[asset] = byKey
	}
	prev, existed := byKey[key]
	b.journal.append(func() {
		if existed {
			byKey[key] = prev
		} else {
			delete(byKey, key)
		}
	})
	byKey[key] = value
}

// Custody is the AssetTransfer view of a Bank for one vault account.
type Custody struct {
	bank    *Bank
	account common.Address
}

// TransferIn pulls amount from an account that approved the vault.
func (c *Custody) TransferIn(asset, from common.Address, amount *uint256.Int) error {
	return c.bank.TransferFrom(asset, c.account, from, c.account, amount)
}

// TransferOut pays amount from the vault's balance.
func (c *Custody) TransferOut(asset, to common.Address, amount *uint256.Int) error {
	return c.bank.Transfer(asset, c.account, to, amount)
}

func (c *Custody) Snapshot() int { return c.bank.Snapshot() }

func (c *Custody) RevertToSnapshot(id int) { c.bank.RevertToSnapshot(id) }

func (c *Custody) DiscardSnapshot(id int) { c.bank.DiscardSnapshot(id) }
