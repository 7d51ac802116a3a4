package vault_test

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"liquidityVault/internal/order"
	"liquidityVault/internal/token"
	"liquidityVault/internal/vault"
)

var (
	token0    = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	token1    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	vaultAddr = common.HexToAddress("0x000000000000000000000000000000000000f00d")
	lpA       = common.HexToAddress("0x1111111111111111111111111111111111111111")
	lpB       = common.HexToAddress("0x2222222222222222222222222222222222222222")
	stranger  = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

const nowUnix = 1_700_000_000

type harness struct {
	t         *testing.T
	bank      *token.Bank
	registry  *token.PositionRegistry
	vault     *vault.Vault
	events    []vault.Event
	traderKey *ecdsa.PrivateKey
	trader    common.Address
	now       time.Time
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	feeBps uint16
	wrap   func(*token.Custody) vault.AssetTransfer
}

func withFee(bps uint16) harnessOption {
	return func(c *harnessConfig) { c.feeBps = bps }
}

func withAssets(wrap func(*token.Custody) vault.AssetTransfer) harnessOption {
	return func(c *harnessConfig) { c.wrap = wrap }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	cfg := harnessConfig{feeBps: 30}
	for _, opt := range opts {
		opt(&cfg)
	}

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	h := &harness{
		t:         t,
		bank:      token.NewBank(),
		registry:  token.NewPositionRegistry(),
		traderKey: key,
		trader:    crypto.PubkeyToAddress(key.PublicKey),
		now:       time.Unix(nowUnix, 0),
	}

	custody := h.bank.Custody(vaultAddr)
	var assets vault.AssetTransfer = custody
	if cfg.wrap != nil {
		assets = cfg.wrap(custody)
	}

	v, err := vault.New(vault.Config{
		Address: vaultAddr,
		Token0:  token0,
		Token1:  token1,
		FeeBps:  cfg.feeBps,
		Now:     func() time.Time { return h.now },
		Events: vault.EventSinkFunc(func(_ common.Address, ev vault.Event) {
			h.events = append(h.events, ev)
		}),
	}, assets, h.registry, order.NewAuthenticator(nil), zap.NewNop())
	require.NoError(t, err)
	h.vault = v
	return h
}

// fund mints balances to account and approves the vault for all of it.
func (h *harness) fund(account common.Address, amount0, amount1 uint64) {
	h.t.Helper()
	require.NoError(h.t, h.bank.Mint(token0, account, uint256.NewInt(amount0)))
	require.NoError(h.t, h.bank.Mint(token1, account, uint256.NewInt(amount1)))
	h.bank.Approve(token0, account, vaultAddr, token.MaxAllowance)
	h.bank.Approve(token1, account, vaultAddr, token.MaxAllowance)
}

func (h *harness) open(account common.Address, amount0, amount1 uint64) uint64 {
	h.t.Helper()
	h.fund(account, amount0, amount1)
	id, err := h.vault.Open(account, uint256.NewInt(amount0), uint256.NewInt(amount1))
	require.NoError(h.t, err)
	return id
}

func (h *harness) signedSwap(sellToken, buyToken common.Address, sellAmount, minBuy uint64) vault.SwapRequest {
	h.t.Helper()
	req := vault.SwapRequest{
		SellToken:    sellToken,
		BuyToken:     buyToken,
		SellAmount:   uint256.NewInt(sellAmount),
		MinBuyAmount: uint256.NewInt(minBuy),
		ValidTo:      uint32(h.now.Unix() + 600),
		Trader:       h.trader,
	}
	sig, err := order.Sign(req.Order(), h.traderKey)
	require.NoError(h.t, err)
	req.Signature = sig
	return req
}

func (h *harness) reserves() (uint64, uint64) {
	r0, r1 := h.vault.TotalReserves()
	return r0.Uint64(), r1.Uint64()
}

// requireCustodyMatchesReserves checks that the vault holds exactly its accounted reserves.
func (h *harness) requireCustodyMatchesReserves() {
	h.t.Helper()
	r0, r1 := h.vault.TotalReserves()
	require.True(h.t, h.bank.BalanceOf(token0, vaultAddr).Eq(r0), "token0 custody %s != reserve %s", h.bank.BalanceOf(token0, vaultAddr).Dec(), r0.Dec())
	require.True(h.t, h.bank.BalanceOf(token1, vaultAddr).Eq(r1), "token1 custody %s != reserve %s", h.bank.BalanceOf(token1, vaultAddr).Dec(), r1.Dec())
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }
