package vault

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInvalidDeposit       = errors.New("invalid deposit")
	ErrPositionNotFound     = errors.New("position not found")
	ErrUnauthorized         = errors.New("caller is not owner or approved")
	ErrInvalidAssetPair     = errors.New("invalid asset pair")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrSlippageExceeded     = errors.New("slippage exceeded")
	ErrInvalidAuthorization = errors.New("invalid authorization")
	ErrOrderExpired         = errors.New("order expired")
	ErrEmptyReserve         = errors.New("empty reserve")
	ErrArithmeticOverflow   = errors.New("arithmetic overflow")
	ErrReentrant            = errors.New("reentrant call")
	ErrInvalidFeeRate       = errors.New("invalid fee rate")
	ErrInvalidConfig        = errors.New("invalid vault config")
	ErrRollbackIncomplete   = errors.New("rollback incomplete")

	// ErrTransfer matches every TransferError.
	ErrTransfer = errors.New("transfer failed")

	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrTransferRejected      = errors.New("transfer rejected")
)

// TransferError is returned by AssetTransfer implementations.
// Kind is one of ErrInsufficientBalance, ErrInsufficientAllowance or ErrTransferRejected.
type TransferError struct {
	Kind    error
	Asset   common.Address
	Account common.Address
	Amount  *uint256.Int
}

func (e *TransferError) Error() string {
	amount := "0"
	if e.Amount != nil {
		amount = e.Amount.Dec()
	}
	return fmt.Sprintf("%v: %v (asset %s, account %s, amount %s)", ErrTransfer, e.Kind, e.Asset.Hex(), e.Account.Hex(), amount)
}

func (e *TransferError) Unwrap() []error {
	return []error{ErrTransfer, e.Kind}
}
