package vault

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityVault/internal/order"
)

// AssetTransfer moves assets between accounts and the vault it is bound to.
// Failures must be reported as *TransferError.
type AssetTransfer interface {
	TransferIn(asset, from common.Address, amount *uint256.Int) error
	TransferOut(asset, to common.Address, amount *uint256.Int) error
}

// AuthorizationProvider decides whether caller may act on a resource.
type AuthorizationProvider interface {
	CanAct(caller common.Address, id uint64) bool
}

// PositionToken is the ownership registry for positions.
type PositionToken interface {
	AuthorizationProvider
	Mint(owner common.Address, id uint64) error
	Burn(id uint64) error
	OwnerOf(id uint64) (common.Address, error)
}

// OrderAuthenticator verifies that an order was signed by expectedSigner.
type OrderAuthenticator interface {
	Authenticate(o order.Order, signature []byte, expectedSigner common.Address) (bool, error)
}

// Snapshotter is implemented by collaborators whose side effects can be undone.
// The vault snapshots them at the start of each mutating operation, reverts on
// failure and discards the snapshot on success. Collaborators without it are
// rolled back with compensating calls instead.
type Snapshotter interface {
	Snapshot() int
	RevertToSnapshot(id int)
	DiscardSnapshot(id int)
}

// EventSink receives notifications after an operation commits.
type EventSink interface {
	Emit(source common.Address, event Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(source common.Address, event Event)

func (f EventSinkFunc) Emit(source common.Address, event Event) {
	f(source, event)
}

type nopSink struct{}

func (nopSink) Emit(common.Address, Event) {}
