package factory

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"liquidityVault/internal/vault"
)

const EventVaultCreated = "VaultCreated"

var (
	ErrIdenticalTokens = errors.New("identical tokens")
	ErrZeroAddress     = errors.New("zero token address")
	ErrVaultExists     = errors.New("vault already exists")
	ErrVaultNotFound   = errors.New("vault not found")
)

// VaultCreated is emitted with the new vault's address as its source.
type VaultCreated struct {
	Token0  common.Address
	Token1  common.Address
	VaultID uint64
}

func (VaultCreated) EventName() string { return EventVaultCreated }

// Builder constructs the vault for a prepared config. It is where callers bind
// custody, the position registry and the order authenticator.
type Builder func(cfg vault.Config) (*vault.Vault, error)

type Config struct {
	Address common.Address
	FeeBps  uint16
	Events  vault.EventSink
}

type pairKey [2]common.Address

// Factory creates at most one vault per unordered token pair.
type Factory struct {
	cfg    Config
	build  Builder
	logger *zap.Logger

	mu     sync.RWMutex
	vaults map[pairKey]*vault.Vault
	byAddr map[common.Address]*vault.Vault
	nextID uint64
}

func New(cfg Config, build Builder, logger *zap.Logger) (*Factory, error) {
	if build == nil {
		return nil, fmt.Errorf("%w: missing builder", vault.ErrInvalidConfig)
	}
	if cfg.FeeBps > vault.MaxFeeBps {
		return nil, fmt.Errorf("%w: %d bps", vault.ErrInvalidFeeRate, cfg.FeeBps)
	}
	if cfg.Events == nil {
		cfg.Events = vault.EventSinkFunc(func(common.Address, vault.Event) {})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		cfg:    cfg,
		build:  build,
		logger: logger,
		vaults: make(map[pairKey]*vault.Vault),
		byAddr: make(map[common.Address]*vault.Vault),
		nextID: 1,
	}, nil
}

// SortTokens orders a pair by address bytes.
func SortTokens(tokenA, tokenB common.Address) (common.Address, common.Address, error) {
	if tokenA == tokenB {
		return common.Address{}, common.Address{}, fmt.Errorf("%w: %s", ErrIdenticalTokens, tokenA.Hex())
	}
	if tokenA == (common.Address{}) || tokenB == (common.Address{}) {
		return common.Address{}, common.Address{}, ErrZeroAddress
	}
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		tokenA, tokenB = tokenB, tokenA
	}
	return tokenA, tokenB, nil
}

// VaultAddress derives the deterministic address of the vault for a sorted pair.
func VaultAddress(factory, token0, token1 common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256(factory.Bytes(), token0.Bytes(), token1.Bytes())[12:])
}

// Create deploys the vault for a token pair and returns it with its id.
func (f *Factory) Create(tokenA, tokenB common.Address) (*vault.Vault, uint64, error) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return nil, 0, err
	}
	key := pairKey{token0, token1}

	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.vaults[key]; ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrVaultExists, existing.Address().Hex())
	}

	addr := VaultAddress(f.cfg.Address, token0, token1)
	v, err := f.build(vault.Config{
		Address: addr,
		Token0:  token0,
		Token1:  token1,
		FeeBps:  f.cfg.FeeBps,
		Events:  f.cfg.Events,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("build vault %s: %w", addr.Hex(), err)
	}
	// A builder may pin the vault to another address.
	addr = v.Address()

	id := f.nextID
	f.nextID++
	f.vaults[key] = v
	f.byAddr[addr] = v

	f.logger.Info("vault created",
		zap.Uint64("vault_id", id),
		zap.String("vault", addr.Hex()),
		zap.String("token0", token0.Hex()),
		zap.String("token1", token1.Hex()),
	)
	f.cfg.Events.Emit(addr, VaultCreated{Token0: token0, Token1: token1, VaultID: id})
	return v, id, nil
}

// Get finds the vault for a pair in either order.
func (f *Factory) Get(tokenA, tokenB common.Address) (*vault.Vault, error) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.vaults[pairKey{token0, token1}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrVaultNotFound, token0.Hex(), token1.Hex())
	}
	return v, nil
}

func (f *Factory) ByAddress(addr common.Address) (*vault.Vault, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.byAddr[addr]
	return v, ok
}

func (f *Factory) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vaults)
}
