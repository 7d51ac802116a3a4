package vault

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Config fixes a vault's identity, asset pair and fee policy.
type Config struct {
	Address common.Address
	Token0  common.Address
	Token1  common.Address
	FeeBps  uint16

	// Now defaults to time.Now.
	Now func() time.Time
	// Events defaults to a sink that drops everything.
	Events EventSink
}

// State is the complete mutable state of one vault. It is only touched by
// Vault methods, one operation at a time.
type State struct {
	Reserves        pair
	FeeGrowthGlobal pair
	NextPositionID  uint64
	Positions       map[uint64]*position
}

type position struct {
	amounts     pair
	feesClaimed pair
	entryGrowth pair
}

// PositionView is a read-only projection of a position.
type PositionView struct {
	ID           uint64
	Owner        common.Address
	Amount0      *uint256.Int
	Amount1      *uint256.Int
	FeesClaimed0 *uint256.Int
	FeesClaimed1 *uint256.Int
	Unclaimed0   *uint256.Int
	Unclaimed1   *uint256.Int
}

// Vault custodies a token pair, tracks positions and executes authorized swaps.
type Vault struct {
	cfg       Config
	tokens    [2]common.Address
	state     *State
	assets    AssetTransfer
	positions PositionToken
	auth      OrderAuthenticator
	logger    *zap.Logger
	locked    atomic.Bool
}

// New builds an empty vault.
func New(cfg Config, assets AssetTransfer, positions PositionToken, auth OrderAuthenticator, logger *zap.Logger) (*Vault, error) {
	if cfg.Token0 == cfg.Token1 {
		return nil, fmt.Errorf("%w: identical tokens %s", ErrInvalidConfig, cfg.Token0.Hex())
	}
	if cfg.Token0 == (common.Address{}) || cfg.Token1 == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero token address", ErrInvalidConfig)
	}
	if cfg.FeeBps > MaxFeeBps {
		return nil, fmt.Errorf("%w: %d bps exceeds %d", ErrInvalidFeeRate, cfg.FeeBps, MaxFeeBps)
	}
	if assets == nil || positions == nil || auth == nil {
		return nil, fmt.Errorf("%w: missing collaborator", ErrInvalidConfig)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Events == nil {
		cfg.Events = nopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Vault{
		cfg:    cfg,
		tokens: [2]common.Address{cfg.Token0, cfg.Token1},
		state: &State{
			Reserves:        zeroPair(),
			FeeGrowthGlobal: zeroPair(),
			NextPositionID:  1,
			Positions:       make(map[uint64]*position),
		},
		assets:    assets,
		positions: positions,
		auth:      auth,
		logger:    logger.With(zap.String("vault", cfg.Address.Hex())),
	}, nil
}

// Address returns the vault's own identity.
func (v *Vault) Address() common.Address { return v.cfg.Address }

// Token0 is the first asset of the pair.
func (v *Vault) Token0() common.Address { return v.tokens[0] }

// Token1 is the second asset of the pair.
func (v *Vault) Token1() common.Address { return v.tokens[1] }

// TotalReserves returns copies of the custodied totals.
func (v *Vault) TotalReserves() (*uint256.Int, *uint256.Int) {
	return v.state.Reserves[0].Clone(), v.state.Reserves[1].Clone()
}

// CurrentFeeRate returns the swap fee in basis points.
func (v *Vault) CurrentFeeRate() uint16 { return v.cfg.FeeBps }

// FeeGrowthGlobal returns copies of the global fee growth counters.
func (v *Vault) FeeGrowthGlobal() (*uint256.Int, *uint256.Int) {
	return v.state.FeeGrowthGlobal[0].Clone(), v.state.FeeGrowthGlobal[1].Clone()
}

// NextPositionID is the identifier the next Open will assign.
func (v *Vault) NextPositionID() uint64 { return v.state.NextPositionID }

// OpenPositions returns the number of live positions.
func (v *Vault) OpenPositions() int { return len(v.state.Positions) }

// Get returns a position with its currently unclaimed fees. It never mutates state.
func (v *Vault) Get(id uint64) (PositionView, error) {
	pos, ok := v.state.Positions[id]
	if !ok {
		return PositionView{}, fmt.Errorf("%w: %d", ErrPositionNotFound, id)
	}
	unclaimed, err := pos.unclaimed(v.state.FeeGrowthGlobal)
	if err != nil {
		return PositionView{}, err
	}
	owner, err := v.positions.OwnerOf(id)
	if err != nil {
		return PositionView{}, fmt.Errorf("owner of %d: %w", id, err)
	}
	return PositionView{
		ID:           id,
		Owner:        owner,
		Amount0:      pos.amounts[0].Clone(),
		Amount1:      pos.amounts[1].Clone(),
		FeesClaimed0: pos.feesClaimed[0].Clone(),
		FeesClaimed1: pos.feesClaimed[1].Clone(),
		Unclaimed0:   unclaimed[0],
		Unclaimed1:   unclaimed[1],
	}, nil
}

// guarded runs a mutating operation under the reentrancy lock. Collaborator
// side effects are undone when fn fails.
func (v *Vault) guarded(op string, fn func(tx *txn) error) error {
	if !v.locked.CompareAndSwap(false, true) {
		v.logger.Warn("reentrant call rejected", zap.String("op", op))
		return fmt.Errorf("%s: %w", op, ErrReentrant)
	}
	defer v.locked.Store(false)

	tx := v.begin()
	if err := fn(tx); err != nil {
		if rbErr := tx.rollback(); rbErr != nil {
			v.logger.Error("rollback incomplete", zap.String("op", op), zap.Error(rbErr))
			err = errors.Join(err, fmt.Errorf("%w: %w", ErrRollbackIncomplete, rbErr))
		}
		v.logger.Warn("operation failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	tx.commit()
	return nil
}

func (v *Vault) emit(event Event) {
	v.cfg.Events.Emit(v.cfg.Address, event)
}

// authorizedPosition loads a live position and checks that caller may act on it.
func (v *Vault) authorizedPosition(caller common.Address, id uint64) (*position, error) {
	pos, ok := v.state.Positions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPositionNotFound, id)
	}
	if !v.positions.CanAct(caller, id) {
		return nil, fmt.Errorf("%w: %s on position %d", ErrUnauthorized, caller.Hex(), id)
	}
	return pos, nil
}
