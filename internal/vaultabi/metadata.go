package vaultabi

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"liquidityVault/internal/model"
)

// ContractCaller is the eth_call surface needed to read vault metadata.
// *chain.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// VaultMetaCache caches vault pair metadata by vault address.
type VaultMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.VaultMeta
}

func NewVaultMetaCache() *VaultMetaCache {
	return &VaultMetaCache{data: make(map[common.Address]model.VaultMeta)}
}

func (c *VaultMetaCache) Get(address common.Address) (model.VaultMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *VaultMetaCache) Set(address common.Address, meta model.VaultMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// FetchVaultMeta reads token0 and token1 from a deployed vault.
func FetchVaultMeta(ctx context.Context, caller ContractCaller, vaultAddr common.Address) (model.VaultMeta, error) {
	if caller == nil {
		return model.VaultMeta{}, fmt.Errorf("chain client is nil")
	}
	token0, err := callAddress(ctx, caller, vaultAddr, "token0")
	if err != nil {
		return model.VaultMeta{}, err
	}
	token1, err := callAddress(ctx, caller, vaultAddr, "token1")
	if err != nil {
		return model.VaultMeta{}, err
	}
	return model.VaultMeta{Token0: token0.Hex(), Token1: token1.Hex()}, nil
}

func callAddress(ctx context.Context, caller ContractCaller, vaultAddr common.Address, method string) (common.Address, error) {
	parsed, err := VaultABI()
	if err != nil {
		return common.Address{}, fmt.Errorf("parse vault abi: %w", err)
	}
	data, err := parsed.Pack(method)
	if err != nil {
		return common.Address{}, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := caller.CallContract(ctx, ethereum.CallMsg{To: &vaultAddr, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("unexpected %s values: %d", method, len(values))
	}
	return asAddress(values[0])
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint64(value interface{}) (uint64, error) {
	n, err := asBigInt(value)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("value %s exceeds uint64", n.String())
	}
	return n.Uint64(), nil
}
