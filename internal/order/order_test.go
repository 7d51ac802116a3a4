package order

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

var (
	tokenA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenB = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func TestEncodeLayout(t *testing.T) {
	receiver := common.HexToAddress("0x1111111111111111111111111111111111111111")
	o := NewSellOrder(tokenA, tokenB, receiver, uint256.NewInt(100), uint256.NewInt(90), 1700000000)

	data, err := o.Encode()
	require.NoError(t, err)
	require.Len(t, data, EncodedLen)

	word := func(i int) []byte { return data[i*32 : (i+1)*32] }
	require.Equal(t, common.LeftPadBytes(tokenA.Bytes(), 32), word(0))
	require.Equal(t, common.LeftPadBytes(tokenB.Bytes(), 32), word(1))
	require.Equal(t, common.LeftPadBytes(receiver.Bytes(), 32), word(2))
	require.Equal(t, common.LeftPadBytes([]byte{100}, 32), word(3))
	require.Equal(t, common.LeftPadBytes([]byte{90}, 32), word(4))
	require.Equal(t, common.LeftPadBytes(uint256.NewInt(1700000000).Bytes(), 32), word(5))
	require.Equal(t, make([]byte, 32), word(6))
	require.Equal(t, make([]byte, 32), word(7))
	require.Equal(t, KindSell.Bytes(), word(8))
	require.Equal(t, make([]byte, 32), word(9))
	require.Equal(t, BalanceERC20.Bytes(), word(10))
	require.Equal(t, BalanceERC20.Bytes(), word(11))
}

func TestHashChangesWithEveryEconomicField(t *testing.T) {
	base := NewSellOrder(tokenA, tokenB, tokenA, uint256.NewInt(100), uint256.NewInt(90), 10)
	baseHash, err := base.Hash()
	require.NoError(t, err)

	variants := map[string]Order{}
	v := base
	v.SellToken = tokenB
	variants["sell token"] = v
	v = base
	v.SellAmount = uint256.NewInt(101)
	variants["sell amount"] = v
	v = base
	v.BuyAmount = uint256.NewInt(91)
	variants["buy amount"] = v
	v = base
	v.ValidTo = 11
	variants["valid to"] = v
	v = base
	v.Receiver = tokenB
	variants["receiver"] = v

	for name, variant := range variants {
		h, err := variant.Hash()
		require.NoError(t, err)
		require.NotEqual(t, baseHash, h, name)
	}
}

func TestSignAndAuthenticate(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	trader := crypto.PubkeyToAddress(key.PublicKey)

	o := NewSellOrder(tokenA, tokenB, trader, uint256.NewInt(5000), uint256.NewInt(1), 1800000000)
	sig, err := Sign(o, key)
	require.NoError(t, err)
	require.Len(t, sig, SignatureLen)
	require.Contains(t, []byte{27, 28}, sig[64])

	auth := NewAuthenticator(nil)
	ok, err := auth.Authenticate(o, sig, trader)
	require.NoError(t, err)
	require.True(t, ok)

	raw := bytes.Clone(sig)
	raw[64] -= 27
	ok, err = auth.Authenticate(o, raw, trader)
	require.NoError(t, err)
	require.True(t, ok, "raw recovery id must be accepted")
}

func TestAuthenticateSignerMismatch(t *testing.T) {
	keyA, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyB, err := crypto.GenerateKey()
	require.NoError(t, err)
	traderA := crypto.PubkeyToAddress(keyA.PublicKey)
	traderB := crypto.PubkeyToAddress(keyB.PublicKey)

	o := NewSellOrder(tokenA, tokenB, traderA, uint256.NewInt(5000), uint256.NewInt(1), 1800000000)
	sig, err := Sign(o, keyA)
	require.NoError(t, err)

	ok, err := NewAuthenticator(nil).Authenticate(o, sig, traderB)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAuthenticateMalformed(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	trader := crypto.PubkeyToAddress(key.PublicKey)
	o := NewSellOrder(tokenA, tokenB, trader, uint256.NewInt(1), uint256.NewInt(0), 1)
	sig, err := Sign(o, key)
	require.NoError(t, err)

	auth := NewAuthenticator(nil)

	_, err = auth.Authenticate(o, sig[:64], trader)
	require.ErrorIs(t, err, ErrMalformedSignature)

	bad := bytes.Clone(sig)
	bad[64] = 29
	_, err = auth.Authenticate(o, bad, trader)
	require.ErrorIs(t, err, ErrMalformedSignature)

	zeroRS := make([]byte, SignatureLen)
	zeroRS[64] = 27
	_, err = auth.Authenticate(o, zeroRS, trader)
	require.ErrorIs(t, err, ErrRecoveryFailed)
}

type fixedVerifier struct {
	signer common.Address
	digest common.Hash
}

func (f *fixedVerifier) Recover(digest common.Hash, _ []byte) (common.Address, error) {
	f.digest = digest
	return f.signer, nil
}

func TestAuthenticatorUsesInjectedVerifier(t *testing.T) {
	signer := common.HexToAddress("0x4444444444444444444444444444444444444444")
	verifier := &fixedVerifier{signer: signer}
	o := NewSellOrder(tokenA, tokenB, signer, uint256.NewInt(1), nil, 1)

	ok, err := NewAuthenticator(verifier).Authenticate(o, nil, signer)
	require.NoError(t, err)
	require.True(t, ok)

	want, err := o.Digest()
	require.NoError(t, err)
	require.Equal(t, want, verifier.digest)
}
