package vault_test

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"liquidityVault/internal/order"
	"liquidityVault/internal/token"
	"liquidityVault/internal/vault"
)

func TestNewRejectsBadConfig(t *testing.T) {
	bank := token.NewBank()
	registry := token.NewPositionRegistry()
	auth := order.NewAuthenticator(nil)

	_, err := vault.New(vault.Config{Token0: token0, Token1: token1, FeeBps: 101}, bank.Custody(vaultAddr), registry, auth, nil)
	require.ErrorIs(t, err, vault.ErrInvalidFeeRate)

	_, err = vault.New(vault.Config{Token0: token0, Token1: token0}, bank.Custody(vaultAddr), registry, auth, nil)
	require.ErrorIs(t, err, vault.ErrInvalidConfig)

	_, err = vault.New(vault.Config{Token0: token0, Token1: token1}, nil, registry, auth, nil)
	require.ErrorIs(t, err, vault.ErrInvalidConfig)

	v, err := vault.New(vault.Config{Token0: token0, Token1: token1, FeeBps: 100}, bank.Custody(vaultAddr), registry, auth, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, uint16(100), v.CurrentFeeRate())
	require.Equal(t, uint64(1), v.NextPositionID())
}

func TestOpenAssignsSequentialIDs(t *testing.T) {
	h := newHarness(t)

	first := h.open(lpA, 1000, 1000)
	second := h.open(lpB, 500, 0)
	third := h.open(lpA, 0, 7)

	require.Equal(t, []uint64{1, 2, 3}, []uint64{first, second, third})
	r0, r1 := h.reserves()
	require.Equal(t, uint64(1500), r0)
	require.Equal(t, uint64(1007), r1)
	require.Equal(t, []uint64{1, 3}, h.registry.TokensOf(lpA))
	h.requireCustodyMatchesReserves()

	require.Len(t, h.events, 3)
	opened, ok := h.events[1].(vault.PositionOpened)
	require.True(t, ok)
	require.Equal(t, lpB, opened.Owner)
	require.Equal(t, uint64(2), opened.PositionID)
	require.Equal(t, uint64(500), opened.Amount0.Uint64())
	require.True(t, opened.Amount1.IsZero())
}

func TestOpenRejectsEmptyDeposit(t *testing.T) {
	h := newHarness(t)

	_, err := h.vault.Open(lpA, u(0), nil)
	require.ErrorIs(t, err, vault.ErrInvalidDeposit)
	require.Equal(t, uint64(1), h.vault.NextPositionID())
	require.Empty(t, h.events)
}

func TestOpenTransferFailureLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.bank.Mint(token0, lpA, u(1000)))
	require.NoError(t, h.bank.Mint(token1, lpA, u(1000)))
	// token1 is never approved, so the second pull fails after the first succeeded.
	h.bank.Approve(token0, lpA, vaultAddr, token.MaxAllowance)

	_, err := h.vault.Open(lpA, u(1000), u(1000))
	require.ErrorIs(t, err, vault.ErrTransfer)
	require.ErrorIs(t, err, vault.ErrInsufficientAllowance)

	var transferErr *vault.TransferError
	require.True(t, errors.As(err, &transferErr))
	require.Equal(t, token1, transferErr.Asset)

	require.Equal(t, uint64(1000), h.bank.BalanceOf(token0, lpA).Uint64())
	require.True(t, h.bank.BalanceOf(token0, vaultAddr).IsZero())
	require.Equal(t, uint64(1), h.vault.NextPositionID())
	require.Zero(t, h.vault.OpenPositions())
	_, err = h.registry.OwnerOf(1)
	require.ErrorIs(t, err, token.ErrTokenNotFound)
	require.Empty(t, h.events)
}

func TestOpenInsufficientBalance(t *testing.T) {
	h := newHarness(t)
	h.bank.Approve(token0, lpA, vaultAddr, token.MaxAllowance)

	_, err := h.vault.Open(lpA, u(1), nil)
	require.ErrorIs(t, err, vault.ErrInsufficientBalance)
}

func TestOpenReserveOverflow(t *testing.T) {
	h := newHarness(t)
	huge := new(uint256.Int).SetAllOne()
	require.NoError(t, h.bank.Mint(token0, lpA, huge))
	h.bank.Approve(token0, lpA, vaultAddr, token.MaxAllowance)

	_, err := h.vault.Open(lpA, huge, nil)
	require.NoError(t, err)

	_, err = h.vault.Open(lpB, u(1), nil)
	require.ErrorIs(t, err, vault.ErrArithmeticOverflow)
	require.Equal(t, uint64(2), h.vault.NextPositionID())
}

// Open (1000, 1000), sell 100 of token0 at 30 bps.
func TestSwapExactSingleScenario(t *testing.T) {
	h := newHarness(t, withFee(30))
	h.open(lpA, 1000, 1000)
	h.fund(h.trader, 100, 0)

	q, err := h.vault.Quote(token0, token1, u(100))
	require.NoError(t, err)
	require.True(t, q.FeeAmount.IsZero(), "floor(100*30/10000) = 0")
	require.Equal(t, uint64(100), q.NetSell.Uint64())
	require.Equal(t, uint64(90), q.BuyAmount.Uint64())

	bought, err := h.vault.Swap(h.signedSwap(token0, token1, 100, 90))
	require.NoError(t, err)
	require.Equal(t, uint64(90), bought.Uint64())

	r0, r1 := h.reserves()
	require.Equal(t, uint64(1100), r0)
	require.Equal(t, uint64(910), r1)

	g0, g1 := h.vault.FeeGrowthGlobal()
	require.True(t, g0.IsZero())
	require.True(t, g1.IsZero())

	require.True(t, h.bank.BalanceOf(token0, h.trader).IsZero())
	require.Equal(t, uint64(90), h.bank.BalanceOf(token1, h.trader).Uint64())
	h.requireCustodyMatchesReserves()

	swapped, ok := h.events[len(h.events)-1].(vault.SwapExecuted)
	require.True(t, ok)
	require.Equal(t, h.trader, swapped.Trader)
	require.Equal(t, token0, swapped.SellToken)
	require.Equal(t, uint64(90), swapped.BuyAmount.Uint64())
	require.True(t, swapped.FeeAmount.IsZero())
}

func TestSwapFeeGrowthIncrement(t *testing.T) {
	h := newHarness(t, withFee(100))
	h.open(lpA, 10_000, 10_000)
	h.fund(h.trader, 0, 1_000)

	bought, err := h.vault.Swap(h.signedSwap(token1, token0, 1_000, 0))
	require.NoError(t, err)
	// fee 10, net 990, floor(990*10000/10990) = 900
	require.Equal(t, uint64(900), bought.Uint64())

	g0, g1 := h.vault.FeeGrowthGlobal()
	require.True(t, g0.IsZero())
	// 10 * 1e18 / 10000, using the reserve before the swap
	require.Equal(t, "1000000000000000", g1.Dec())

	r0, r1 := h.reserves()
	require.Equal(t, uint64(9_100), r0)
	require.Equal(t, uint64(11_000), r1)
}

func TestCollectImmediatelyPaysNothing(t *testing.T) {
	h := newHarness(t)
	id := h.open(lpA, 1000, 1000)

	paid0, paid1, err := h.vault.CollectFees(lpA, id)
	require.NoError(t, err)
	require.True(t, paid0.IsZero())
	require.True(t, paid1.IsZero())

	view, err := h.vault.Get(id)
	require.NoError(t, err)
	require.True(t, view.Unclaimed0.IsZero())
	require.True(t, view.Unclaimed1.IsZero())
}

func TestCollectTwiceWithoutSwapPaysOnce(t *testing.T) {
	h := newHarness(t, withFee(100))
	id := h.open(lpA, 10_000, 10_000)
	h.fund(h.trader, 1_000, 0)
	_, err := h.vault.Swap(h.signedSwap(token0, token1, 1_000, 0))
	require.NoError(t, err)

	paid0, paid1, err := h.vault.CollectFees(lpA, id)
	require.NoError(t, err)
	require.Equal(t, uint64(10), paid0.Uint64())
	require.True(t, paid1.IsZero())
	require.Equal(t, uint64(10), h.bank.BalanceOf(token0, lpA).Uint64())

	paid0, paid1, err = h.vault.CollectFees(lpA, id)
	require.NoError(t, err)
	require.True(t, paid0.IsZero())
	require.True(t, paid1.IsZero())

	view, err := h.vault.Get(id)
	require.NoError(t, err)
	require.Equal(t, uint64(10), view.FeesClaimed0.Uint64())
	require.True(t, view.Unclaimed0.IsZero())
	h.requireCustodyMatchesReserves()
}

func TestEqualSharesAccrueEqualFees(t *testing.T) {
	h := newHarness(t, withFee(100))
	a := h.open(lpA, 10_000, 10_000)
	b := h.open(lpB, 10_000, 10_000)

	for _, id := range []uint64{a, b} {
		view, err := h.vault.Get(id)
		require.NoError(t, err)
		require.True(t, view.Unclaimed0.IsZero())
	}

	h.fund(h.trader, 1_000, 0)
	_, err := h.vault.Swap(h.signedSwap(token0, token1, 1_000, 0))
	require.NoError(t, err)

	viewA, err := h.vault.Get(a)
	require.NoError(t, err)
	viewB, err := h.vault.Get(b)
	require.NoError(t, err)
	// fee 10 over a 20000 reserve: each half earns 5
	require.Equal(t, uint64(5), viewA.Unclaimed0.Uint64())
	require.Equal(t, uint64(5), viewB.Unclaimed0.Uint64())
	require.True(t, viewA.Unclaimed1.IsZero())
	require.Equal(t, lpA, viewA.Owner)
}

func TestLateJoinerDoesNotShareEarlierFees(t *testing.T) {
	h := newHarness(t, withFee(100))
	early := h.open(lpA, 30_000, 30_000)
	h.fund(h.trader, 10_000, 0)
	_, err := h.vault.Swap(h.signedSwap(token0, token1, 3_000, 0))
	require.NoError(t, err)

	late := h.open(lpB, 11_000, 10_000)
	_, err = h.vault.Swap(h.signedSwap(token0, token1, 4_400, 0))
	require.NoError(t, err)

	viewEarly, err := h.vault.Get(early)
	require.NoError(t, err)
	viewLate, err := h.vault.Get(late)
	require.NoError(t, err)

	// First swap: fee 30 over 30000 -> growth 1e15, early earns 30.
	// Second swap: fee 44 over 44000 (33000 + 11000) -> growth 1e15 more.
	require.Equal(t, uint64(60), viewEarly.Unclaimed0.Uint64())
	require.Equal(t, uint64(11), viewLate.Unclaimed0.Uint64())
}

func TestClosePaysPrincipalAndFees(t *testing.T) {
	h := newHarness(t, withFee(100))
	a := h.open(lpA, 10_000, 10_000)
	h.open(lpB, 10_000, 10_000)
	h.fund(h.trader, 1_000, 0)
	_, err := h.vault.Swap(h.signedSwap(token0, token1, 1_000, 0))
	require.NoError(t, err)

	before, err := h.vault.Get(a)
	require.NoError(t, err)
	require.Equal(t, uint64(5), before.Unclaimed0.Uint64())

	out0, out1, err := h.vault.Close(lpA, a)
	require.NoError(t, err)
	require.Equal(t, uint64(10_005), out0.Uint64())
	require.Equal(t, uint64(10_000), out1.Uint64())
	require.Equal(t, uint64(10_005), h.bank.BalanceOf(token0, lpA).Uint64())
	require.Equal(t, uint64(10_000), h.bank.BalanceOf(token1, lpA).Uint64())

	_, err = h.vault.Get(a)
	require.ErrorIs(t, err, vault.ErrPositionNotFound)
	_, _, err = h.vault.Close(lpA, a)
	require.ErrorIs(t, err, vault.ErrPositionNotFound)
	_, err = h.registry.OwnerOf(a)
	require.ErrorIs(t, err, token.ErrTokenNotFound)

	closed, ok := h.events[len(h.events)-1].(vault.PositionClosed)
	require.True(t, ok)
	require.Equal(t, a, closed.PositionID)
	require.Equal(t, uint64(10_005), closed.Amount0.Uint64())
	collected, ok := h.events[len(h.events)-2].(vault.FeesCollected)
	require.True(t, ok)
	require.Equal(t, uint64(5), collected.Amount0.Uint64())
	h.requireCustodyMatchesReserves()
}

// Principal is returned as deposited. When swaps drained the buy side below a
// position's principal, the close is refused instead of paying out more than is held.
func TestCloseRefusesWhenReserveBelowPrincipal(t *testing.T) {
	h := newHarness(t, withFee(100))
	id := h.open(lpA, 10_000, 10_000)
	h.fund(h.trader, 1_000, 0)
	_, err := h.vault.Swap(h.signedSwap(token0, token1, 1_000, 0))
	require.NoError(t, err)

	_, _, err = h.vault.Close(lpA, id)
	require.ErrorIs(t, err, vault.ErrArithmeticOverflow)

	view, err := h.vault.Get(id)
	require.NoError(t, err)
	require.Equal(t, uint64(10), view.Unclaimed0.Uint64())
	owner, err := h.registry.OwnerOf(id)
	require.NoError(t, err)
	require.Equal(t, lpA, owner)
}

func TestAuthorizationOnPositions(t *testing.T) {
	h := newHarness(t, withFee(100))
	id := h.open(lpA, 10_000, 10_000)
	h.open(lpB, 10_000, 10_000)

	_, _, err := h.vault.CollectFees(stranger, id)
	require.ErrorIs(t, err, vault.ErrUnauthorized)
	_, _, err = h.vault.Close(stranger, id)
	require.ErrorIs(t, err, vault.ErrUnauthorized)
	_, _, err = h.vault.CollectFees(lpA, 99)
	require.ErrorIs(t, err, vault.ErrPositionNotFound)

	require.NoError(t, h.registry.Approve(lpA, stranger, id))
	h.fund(h.trader, 1_000, 0)
	_, err = h.vault.Swap(h.signedSwap(token0, token1, 1_000, 0))
	require.NoError(t, err)

	paid0, _, err := h.vault.CollectFees(stranger, id)
	require.NoError(t, err)
	require.Equal(t, uint64(5), paid0.Uint64())
	require.Equal(t, uint64(5), h.bank.BalanceOf(token0, stranger).Uint64())
}

func TestTransferredPositionFollowsOwnership(t *testing.T) {
	h := newHarness(t)
	id := h.open(lpA, 1_000, 1_000)

	require.NoError(t, h.registry.TransferFrom(lpA, lpA, lpB, id))

	_, _, err := h.vault.Close(lpA, id)
	require.ErrorIs(t, err, vault.ErrUnauthorized)

	out0, out1, err := h.vault.Close(lpB, id)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), out0.Uint64())
	require.Equal(t, uint64(1_000), out1.Uint64())
	require.Equal(t, uint64(1_000), h.bank.BalanceOf(token0, lpB).Uint64())
}

func TestSwapSlippageLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, withFee(30))
	h.open(lpA, 1000, 1000)
	h.fund(h.trader, 100, 0)
	eventsBefore := len(h.events)

	_, err := h.vault.Swap(h.signedSwap(token0, token1, 100, 91))
	require.ErrorIs(t, err, vault.ErrSlippageExceeded)

	r0, r1 := h.reserves()
	require.Equal(t, uint64(1000), r0)
	require.Equal(t, uint64(1000), r1)
	require.Equal(t, uint64(100), h.bank.BalanceOf(token0, h.trader).Uint64())
	require.Len(t, h.events, eventsBefore)
}

func TestSwapMalformedSignature(t *testing.T) {
	h := newHarness(t)
	h.open(lpA, 1000, 1000)
	h.fund(h.trader, 100, 0)

	req := h.signedSwap(token0, token1, 100, 0)
	req.Signature = req.Signature[:64]

	_, err := h.vault.Swap(req)
	require.ErrorIs(t, err, order.ErrMalformedSignature)
	require.ErrorIs(t, err, vault.ErrInvalidAuthorization)
}

func TestSwapReplayByAnotherTraderFails(t *testing.T) {
	h := newHarness(t)
	h.open(lpA, 1000, 1000)
	h.fund(h.trader, 100, 0)
	h.fund(stranger, 100, 0)

	req := h.signedSwap(token0, token1, 100, 0)
	req.Trader = stranger

	_, err := h.vault.Swap(req)
	require.ErrorIs(t, err, vault.ErrInvalidAuthorization)
	require.Equal(t, uint64(100), h.bank.BalanceOf(token0, stranger).Uint64())
}

func TestSwapTamperedTermsFail(t *testing.T) {
	h := newHarness(t)
	h.open(lpA, 1000, 1000)
	h.fund(h.trader, 200, 0)

	req := h.signedSwap(token0, token1, 100, 0)
	req.SellAmount = u(200)
	_, err := h.vault.Swap(req)
	require.ErrorIs(t, err, vault.ErrInvalidAuthorization)
}

func TestSwapExpiredOrder(t *testing.T) {
	h := newHarness(t)
	h.open(lpA, 1000, 1000)
	h.fund(h.trader, 100, 0)

	req := h.signedSwap(token0, token1, 100, 0)
	h.now = h.now.Add(601 * time.Second)

	_, err := h.vault.Swap(req)
	require.ErrorIs(t, err, vault.ErrOrderExpired)

	h.now = time.Unix(int64(req.ValidTo), 0)
	_, err = h.vault.Swap(req)
	require.NoError(t, err, "an order is valid up to and including its deadline")
}

func TestSwapPreconditions(t *testing.T) {
	h := newHarness(t)
	other := common.HexToAddress("0x00000000000000000000000000000000000000c2")

	_, err := h.vault.Swap(h.signedSwap(token0, token1, 100, 0))
	require.ErrorIs(t, err, vault.ErrEmptyReserve)

	h.open(lpA, 1000, 0)
	_, err = h.vault.Swap(h.signedSwap(token0, token1, 100, 0))
	require.ErrorIs(t, err, vault.ErrEmptyReserve)

	_, err = h.vault.Swap(h.signedSwap(token0, other, 100, 0))
	require.ErrorIs(t, err, vault.ErrInvalidAssetPair)
	_, err = h.vault.Swap(h.signedSwap(token0, token0, 100, 0))
	require.ErrorIs(t, err, vault.ErrInvalidAssetPair)
	_, err = h.vault.Swap(h.signedSwap(token0, token1, 0, 0))
	require.ErrorIs(t, err, vault.ErrInvalidAmount)
}

type failingOut struct {
	*token.Custody
}

func (f failingOut) TransferOut(asset, to common.Address, amount *uint256.Int) error {
	return &vault.TransferError{Kind: vault.ErrTransferRejected, Asset: asset, Account: to, Amount: amount}
}

func TestSwapRollsBackWhenPayoutFails(t *testing.T) {
	h := newHarness(t, withAssets(func(c *token.Custody) vault.AssetTransfer { return failingOut{c} }))
	h.open(lpA, 1000, 1000)
	h.fund(h.trader, 100, 0)

	_, err := h.vault.Swap(h.signedSwap(token0, token1, 100, 0))
	require.ErrorIs(t, err, vault.ErrTransferRejected)

	require.Equal(t, uint64(100), h.bank.BalanceOf(token0, h.trader).Uint64())
	r0, r1 := h.reserves()
	require.Equal(t, uint64(1000), r0)
	require.Equal(t, uint64(1000), r1)
	g0, _ := h.vault.FeeGrowthGlobal()
	require.True(t, g0.IsZero())
	h.requireCustodyMatchesReserves()
}

// payoutSwitch fails every TransferOut while fail is set.
type payoutSwitch struct {
	*token.Custody
	fail bool
}

func (p *payoutSwitch) TransferOut(asset, to common.Address, amount *uint256.Int) error {
	if p.fail {
		return &vault.TransferError{Kind: vault.ErrTransferRejected, Asset: asset, Account: to, Amount: amount}
	}
	return p.Custody.TransferOut(asset, to, amount)
}

// feeHarness has two equal LPs and one token0 swap of 1000 at 100 bps behind it.
func feeHarness(t *testing.T, opts ...harnessOption) (*harness, uint64) {
	h := newHarness(t, append([]harnessOption{withFee(100)}, opts...)...)
	id := h.open(lpA, 10_000, 10_000)
	h.open(lpB, 10_000, 10_000)
	h.fund(h.trader, 1_000, 0)
	_, err := h.vault.Swap(h.signedSwap(token0, token1, 1_000, 0))
	require.NoError(t, err)
	return h, id
}

func TestCollectRollsBackWhenPayoutFails(t *testing.T) {
	assets := &payoutSwitch{}
	h, id := feeHarness(t, withAssets(func(c *token.Custody) vault.AssetTransfer {
		assets.Custody = c
		return assets
	}))
	before, err := h.vault.Get(id)
	require.NoError(t, err)
	require.Equal(t, uint64(5), before.Unclaimed0.Uint64())
	r0, r1 := h.reserves()
	events := len(h.events)

	assets.fail = true
	_, _, err = h.vault.CollectFees(lpA, id)
	require.ErrorIs(t, err, vault.ErrTransferRejected)

	after, err := h.vault.Get(id)
	require.NoError(t, err)
	require.Equal(t, before, after)
	a0, a1 := h.reserves()
	require.Equal(t, r0, a0)
	require.Equal(t, r1, a1)
	require.Len(t, h.events, events)
	h.requireCustodyMatchesReserves()

	assets.fail = false
	paid0, _, err := h.vault.CollectFees(lpA, id)
	require.NoError(t, err)
	require.Equal(t, uint64(5), paid0.Uint64())
}

func TestCloseRollsBackWhenPayoutFails(t *testing.T) {
	assets := &payoutSwitch{}
	h, id := feeHarness(t, withAssets(func(c *token.Custody) vault.AssetTransfer {
		assets.Custody = c
		return assets
	}))
	before, err := h.vault.Get(id)
	require.NoError(t, err)
	r0, r1 := h.reserves()
	events := len(h.events)

	assets.fail = true
	_, _, err = h.vault.Close(lpA, id)
	require.ErrorIs(t, err, vault.ErrTransferRejected)

	after, err := h.vault.Get(id)
	require.NoError(t, err)
	require.Equal(t, before, after)
	owner, err := h.registry.OwnerOf(id)
	require.NoError(t, err)
	require.Equal(t, lpA, owner)
	a0, a1 := h.reserves()
	require.Equal(t, r0, a0)
	require.Equal(t, r1, a1)
	require.Equal(t, 2, h.vault.OpenPositions())
	require.Len(t, h.events, events)
	h.requireCustodyMatchesReserves()

	assets.fail = false
	out0, _, err := h.vault.Close(lpA, id)
	require.NoError(t, err)
	require.Equal(t, uint64(10_005), out0.Uint64())
}

// plainAssets exposes only AssetTransfer, so the vault cannot snapshot it and
// has to undo completed legs itself.
type plainAssets struct {
	custody   *token.Custody
	rejectIn  common.Address
	rejectOut common.Address
}

func (p *plainAssets) TransferIn(asset, from common.Address, amount *uint256.Int) error {
	if asset == p.rejectIn {
		return &vault.TransferError{Kind: vault.ErrTransferRejected, Asset: asset, Account: from, Amount: amount}
	}
	return p.custody.TransferIn(asset, from, amount)
}

func (p *plainAssets) TransferOut(asset, to common.Address, amount *uint256.Int) error {
	if asset == p.rejectOut {
		return &vault.TransferError{Kind: vault.ErrTransferRejected, Asset: asset, Account: to, Amount: amount}
	}
	return p.custody.TransferOut(asset, to, amount)
}

func withPlainAssets(assets *plainAssets) harnessOption {
	return withAssets(func(c *token.Custody) vault.AssetTransfer {
		assets.custody = c
		return assets
	})
}

func TestOpenRefundsFirstLegWithoutSnapshots(t *testing.T) {
	assets := &plainAssets{rejectIn: token1}
	h := newHarness(t, withPlainAssets(assets))
	h.fund(lpA, 1000, 1000)

	_, err := h.vault.Open(lpA, u(1000), u(1000))
	require.ErrorIs(t, err, vault.ErrTransferRejected)

	require.Equal(t, uint64(1000), h.bank.BalanceOf(token0, lpA).Uint64())
	require.True(t, h.bank.BalanceOf(token0, vaultAddr).IsZero())
	require.Equal(t, uint64(1), h.vault.NextPositionID())
	require.Empty(t, h.events)
	h.requireCustodyMatchesReserves()
}

func TestSwapRefundsSellWithoutSnapshots(t *testing.T) {
	assets := &plainAssets{}
	h := newHarness(t, withPlainAssets(assets))
	h.open(lpA, 1000, 1000)
	h.fund(h.trader, 100, 0)
	events := len(h.events)

	assets.rejectOut = token1
	_, err := h.vault.Swap(h.signedSwap(token0, token1, 100, 0))
	require.ErrorIs(t, err, vault.ErrTransferRejected)

	require.Equal(t, uint64(100), h.bank.BalanceOf(token0, h.trader).Uint64())
	require.True(t, h.bank.BalanceOf(token1, h.trader).IsZero())
	r0, r1 := h.reserves()
	require.Equal(t, uint64(1000), r0)
	require.Equal(t, uint64(1000), r1)
	require.Len(t, h.events, events)
	h.requireCustodyMatchesReserves()
}

func TestCollectReclaimsFirstLegWithoutSnapshots(t *testing.T) {
	assets := &plainAssets{}
	h, id := feeHarness(t, withPlainAssets(assets))
	h.fund(h.trader, 0, 1_000)
	_, err := h.vault.Swap(h.signedSwap(token1, token0, 1_000, 0))
	require.NoError(t, err)

	before, err := h.vault.Get(id)
	require.NoError(t, err)
	require.False(t, before.Unclaimed0.IsZero())
	require.False(t, before.Unclaimed1.IsZero())

	assets.rejectOut = token1
	_, _, err = h.vault.CollectFees(lpA, id)
	require.ErrorIs(t, err, vault.ErrTransferRejected)
	require.NotErrorIs(t, err, vault.ErrRollbackIncomplete)

	after, err := h.vault.Get(id)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.True(t, h.bank.BalanceOf(token0, lpA).IsZero())
	h.requireCustodyMatchesReserves()
}

func TestCollectReportsIncompleteRollback(t *testing.T) {
	assets := &plainAssets{}
	h, id := feeHarness(t, withPlainAssets(assets))
	h.fund(h.trader, 0, 1_000)
	_, err := h.vault.Swap(h.signedSwap(token1, token0, 1_000, 0))
	require.NoError(t, err)

	// Without an allowance the token0 payout cannot be pulled back.
	h.bank.Approve(token0, lpA, vaultAddr, u(0))
	assets.rejectOut = token1
	_, _, err = h.vault.CollectFees(lpA, id)
	require.ErrorIs(t, err, vault.ErrTransferRejected)
	require.ErrorIs(t, err, vault.ErrRollbackIncomplete)
	require.ErrorIs(t, err, vault.ErrInsufficientAllowance)
}

type reentrantAssets struct {
	*token.Custody
	onTransferIn func()
}

func (r *reentrantAssets) TransferIn(asset, from common.Address, amount *uint256.Int) error {
	if r.onTransferIn != nil {
		r.onTransferIn()
	}
	return r.Custody.TransferIn(asset, from, amount)
}

func TestReentrantCallsAreRejected(t *testing.T) {
	assets := &reentrantAssets{}
	h := newHarness(t, withAssets(func(c *token.Custody) vault.AssetTransfer {
		assets.Custody = c
		return assets
	}))
	first := h.open(lpA, 1000, 1000)

	var nested []error
	assets.onTransferIn = func() {
		_, _, err := h.vault.CollectFees(lpA, first)
		nested = append(nested, err)
		_, err = h.vault.Open(lpA, u(1), nil)
		nested = append(nested, err)
		_, err = h.vault.Swap(h.signedSwap(token0, token1, 1, 0))
		nested = append(nested, err)
	}

	h.fund(h.trader, 100, 0)
	_, err := h.vault.Swap(h.signedSwap(token0, token1, 100, 0))
	require.NoError(t, err)

	require.Len(t, nested, 3)
	for _, err := range nested {
		require.ErrorIs(t, err, vault.ErrReentrant)
	}

	// The lock is released afterwards.
	assets.onTransferIn = nil
	_, _, err = h.vault.CollectFees(lpA, first)
	require.NoError(t, err)
}

// Random sequences of opens, swaps, collects and closes keep fee growth
// monotonic, never shrink the reserve product on a swap, and keep custody
// equal to the accounted reserves.
func TestRandomSequenceInvariants(t *testing.T) {
	h := newHarness(t, withFee(100))
	rng := rand.New(rand.NewSource(42))
	h.fund(h.trader, 10_000_000, 10_000_000)

	open := []struct {
		id    uint64
		owner common.Address
	}{}
	owners := []common.Address{lpA, lpB, stranger}

	for i := 0; i < 3; i++ {
		id := h.open(owners[i], 100_000, 100_000)
		open = append(open, struct {
			id    uint64
			owner common.Address
		}{id, owners[i]})
	}

	prevG0, prevG1 := h.vault.FeeGrowthGlobal()
	for step := 0; step < 300; step++ {
		switch op := rng.Intn(10); {
		case op < 7:
			amount := uint64(rng.Intn(20_000) + 1)
			sell, buy := token0, token1
			if rng.Intn(2) == 1 {
				sell, buy = token1, token0
			}
			r0, r1 := h.vault.TotalReserves()
			kBefore := new(uint256.Int).Mul(r0, r1)
			_, err := h.vault.Swap(h.signedSwap(sell, buy, amount, 0))
			if err != nil {
				require.ErrorIs(t, err, vault.ErrEmptyReserve)
				continue
			}
			r0, r1 = h.vault.TotalReserves()
			kAfter := new(uint256.Int).Mul(r0, r1)
			require.False(t, kAfter.Lt(kBefore), "step %d: product decreased", step)
		case op < 9 && len(open) > 0:
			p := open[rng.Intn(len(open))]
			_, _, err := h.vault.CollectFees(p.owner, p.id)
			require.NoError(t, err)
		case len(open) > 0:
			idx := rng.Intn(len(open))
			p := open[idx]
			_, _, err := h.vault.Close(p.owner, p.id)
			if err != nil {
				require.ErrorIs(t, err, vault.ErrArithmeticOverflow)
				continue
			}
			open = append(open[:idx], open[idx+1:]...)
		}

		g0, g1 := h.vault.FeeGrowthGlobal()
		require.False(t, g0.Lt(prevG0), "step %d: growth0 decreased", step)
		require.False(t, g1.Lt(prevG1), "step %d: growth1 decreased", step)
		prevG0, prevG1 = g0, g1
		h.requireCustodyMatchesReserves()
	}
}
