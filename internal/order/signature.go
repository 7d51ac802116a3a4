package order

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLen is the length of an [r | s | v] signature.
const SignatureLen = 65

var (
	ErrMalformedSignature = errors.New("malformed signature")
	ErrRecoveryFailed     = errors.New("signature recovery failed")
)

// SignatureVerifier recovers the identity that signed a digest.
type SignatureVerifier interface {
	Recover(digest common.Hash, signature []byte) (common.Address, error)
}

// ECDSAVerifier recovers secp256k1 signers.
type ECDSAVerifier struct{}

// Recover accepts v in {0,1} or {27,28}.
func (ECDSAVerifier) Recover(digest common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLen {
		return common.Address{}, fmt.Errorf("%w: length %d, want %d", ErrMalformedSignature, len(signature), SignatureLen)
	}

	v := signature[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return common.Address{}, fmt.Errorf("%w: recovery id %d", ErrMalformedSignature, signature[64])
	}

	r := new(big.Int).SetBytes(signature[:32])
	s := new(big.Int).SetBytes(signature[32:64])
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return common.Address{}, fmt.Errorf("%w: invalid r, s values", ErrRecoveryFailed)
	}

	normalized := make([]byte, SignatureLen)
	copy(normalized, signature)
	normalized[64] = v

	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Authenticator checks that an order was signed by an expected identity.
type Authenticator struct {
	verifier SignatureVerifier
}

// NewAuthenticator uses ECDSAVerifier when verifier is nil.
func NewAuthenticator(verifier SignatureVerifier) *Authenticator {
	if verifier == nil {
		verifier = ECDSAVerifier{}
	}
	return &Authenticator{verifier: verifier}
}

// Authenticate reports whether signature over o recovers to expectedSigner.
// Malformed or unrecoverable signatures return an error rather than false.
func (a *Authenticator) Authenticate(o Order, signature []byte, expectedSigner common.Address) (bool, error) {
	digest, err := o.Digest()
	if err != nil {
		return false, err
	}
	signer, err := a.verifier.Recover(digest, signature)
	if err != nil {
		return false, err
	}
	return signer == expectedSigner, nil
}

// Sign produces a 65-byte signature with v in {27,28}.
func Sign(o Order, key *ecdsa.PrivateKey) ([]byte, error) {
	digest, err := o.Digest()
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("sign order: %w", err)
	}
	sig[64] += 27
	return sig, nil
}
