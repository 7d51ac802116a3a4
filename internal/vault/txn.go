package vault

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type collaboratorSnapshot struct {
	s  Snapshotter
	id int
}

// txn tracks the collaborator calls of one operation. Snapshotting
// collaborators are reverted as a whole; for the others every successful call
// records its compensating call.
type txn struct {
	v             *Vault
	snapshots     []collaboratorSnapshot
	assetsSnap    bool
	positionsSnap bool
	undo          []func() error
}

func (v *Vault) begin() *txn {
	tx := &txn{v: v}
	if s, ok := v.assets.(Snapshotter); ok {
		tx.snapshots = append(tx.snapshots, collaboratorSnapshot{s: s, id: s.Snapshot()})
		tx.assetsSnap = true
	}
	if s, ok := v.positions.(Snapshotter); ok {
		tx.snapshots = append(tx.snapshots, collaboratorSnapshot{s: s, id: s.Snapshot()})
		tx.positionsSnap = true
	}
	return tx
}

func (tx *txn) transferIn(asset, from common.Address, amount *uint256.Int) error {
	if err := tx.v.assets.TransferIn(asset, from, amount); err != nil {
		return fmt.Errorf("transfer in %s: %w", asset.Hex(), err)
	}
	if !tx.assetsSnap {
		refund := amount.Clone()
		tx.undo = append(tx.undo, func() error {
			if err := tx.v.assets.TransferOut(asset, from, refund); err != nil {
				return fmt.Errorf("refund %s to %s: %w", asset.Hex(), from.Hex(), err)
			}
			return nil
		})
	}
	return nil
}

// transferOut pays amount to recipient. Without snapshots the payout is
// reclaimed through TransferIn, which needs the recipient's allowance.
func (tx *txn) transferOut(asset, to common.Address, amount *uint256.Int) error {
	if err := tx.v.assets.TransferOut(asset, to, amount); err != nil {
		return fmt.Errorf("transfer out %s: %w", asset.Hex(), err)
	}
	if !tx.assetsSnap {
		reclaim := amount.Clone()
		tx.undo = append(tx.undo, func() error {
			if err := tx.v.assets.TransferIn(asset, to, reclaim); err != nil {
				return fmt.Errorf("reclaim %s from %s: %w", asset.Hex(), to.Hex(), err)
			}
			return nil
		})
	}
	return nil
}

func (tx *txn) transferOutPair(to common.Address, amounts pair) error {
	for i, amount := range amounts {
		if amount.IsZero() {
			continue
		}
		if err := tx.transferOut(tx.v.tokens[i], to, amount); err != nil {
			return err
		}
	}
	return nil
}

func (tx *txn) mint(owner common.Address, id uint64) error {
	if err := tx.v.positions.Mint(owner, id); err != nil {
		return fmt.Errorf("mint position %d: %w", id, err)
	}
	if !tx.positionsSnap {
		tx.undo = append(tx.undo, func() error { return tx.v.positions.Burn(id) })
	}
	return nil
}

// burn destroys a position token. Without snapshots the undo re-mints it to
// owner; approvals cleared by the burn stay cleared.
func (tx *txn) burn(owner common.Address, id uint64) error {
	if err := tx.v.positions.Burn(id); err != nil {
		return fmt.Errorf("burn position %d: %w", id, err)
	}
	if !tx.positionsSnap {
		tx.undo = append(tx.undo, func() error { return tx.v.positions.Mint(owner, id) })
	}
	return nil
}

func (tx *txn) rollback() error {
	var errs []error
	for i := len(tx.undo) - 1; i >= 0; i-- {
		if err := tx.undo[i](); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(tx.snapshots) - 1; i >= 0; i-- {
		tx.snapshots[i].s.RevertToSnapshot(tx.snapshots[i].id)
	}
	return errors.Join(errs...)
}

func (tx *txn) commit() {
	for i := len(tx.snapshots) - 1; i >= 0; i-- {
		tx.snapshots[i].s.DiscardSnapshot(tx.snapshots[i].id)
	}
}
