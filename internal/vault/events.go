package vault

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Event names, matching the on-chain event names.
const (
	EventPositionOpened = "PositionOpened"
	EventFeesCollected  = "FeesCollected"
	EventPositionClosed = "PositionClosed"
	EventSwapExecuted   = "SwapExecuted"
)

// Event is a structured notification emitted by a committed operation.
type Event interface {
	EventName() string
}

// PositionOpened carries the deposited principal of a new position.
type PositionOpened struct {
	Owner      common.Address
	PositionID uint64
	Amount0    *uint256.Int
	Amount1    *uint256.Int
}

func (PositionOpened) EventName() string { return EventPositionOpened }

// FeesCollected carries the fees paid out by a collection or a close.
type FeesCollected struct {
	Owner      common.Address
	PositionID uint64
	Amount0    *uint256.Int
	Amount1    *uint256.Int
}

func (FeesCollected) EventName() string { return EventFeesCollected }

// PositionClosed carries the full payout: principal plus settled fees.
type PositionClosed struct {
	Owner      common.Address
	PositionID uint64
	Amount0    *uint256.Int
	Amount1    *uint256.Int
}

func (PositionClosed) EventName() string { return EventPositionClosed }

// SwapExecuted carries the settled amounts. FeeAmount is part of SellAmount.
type SwapExecuted struct {
	Trader     common.Address
	SellToken  common.Address
	BuyToken   common.Address
	SellAmount *uint256.Int
	BuyAmount  *uint256.Int
	FeeAmount  *uint256.Int
}

func (SwapExecuted) EventName() string { return EventSwapExecuted }
