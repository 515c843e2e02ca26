// Package kmstest provides an in-memory signer.Provider backed by a local secp256k1 key.
//
// It produces real DER signatures, optionally in the high-s form a KMS is allowed to return, so the signing
// adapter can be exercised without a network.
package kmstest

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"sync/atomic"

	kmscommon "github.com/LampardNguyen234/evm-kms-signer/common"
	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Provider is a fake KMS holding one key version.
type Provider struct {
	// KeyID is the only key version the Provider answers for. Empty means any.
	KeyID string

	// HighS makes every signature use s > N/2, as a KMS may return.
	HighS bool

	// Tamper, if set, mutates every signature before it is DER-encoded.
	Tamper func(sig *kmscommon.KmsSignature)

	// PublicKeyDER, if set, is returned instead of the encoded public key.
	PublicKeyDER []byte

	// SignatureDER, if set, is returned instead of a real signature.
	SignatureDER []byte

	// SignErr and PublicKeyErr are returned by the respective calls when set.
	SignErr      error
	PublicKeyErr error

	mtx       sync.Mutex
	privKey   *btcec.PrivateKey
	ecdsaKey  *ecdsa.PrivateKey
	signCalls int32
	pubCalls  int32
}

// NewProvider creates a Provider for the given private key.
func NewProvider(privKey *ecdsa.PrivateKey) *Provider {
	key, _ := btcec.PrivKeyFromBytes(crypto.FromECDSA(privKey))
	return &Provider{privKey: key, ecdsaKey: privKey}
}

// NewRandomProvider creates a Provider with a freshly generated key.
func NewRandomProvider() (*Provider, error) {
	privKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewProvider(privKey), nil
}

// PrivateKey returns the key the Provider signs with.
func (p *Provider) PrivateKey() *ecdsa.PrivateKey {
	return p.ecdsaKey
}

// SignCalls returns how many times SignDigest has been called.
func (p *Provider) SignCalls() int {
	return int(atomic.LoadInt32(&p.signCalls))
}

// PublicKeyCalls returns how many times GetPublicKey has been called.
func (p *Provider) PublicKeyCalls() int {
	return int(atomic.LoadInt32(&p.pubCalls))
}

// GetPublicKey returns the DER SubjectPublicKeyInfo of the key.
func (p *Provider) GetPublicKey(_ context.Context, keyID string) ([]byte, error) {
	atomic.AddInt32(&p.pubCalls, 1)

	if err := p.checkKeyID("get public key", keyID); err != nil {
		return nil, err
	}
	if p.PublicKeyErr != nil {
		return nil, p.PublicKeyErr
	}
	if p.PublicKeyDER != nil {
		return p.PublicKeyDER, nil
	}

	return kmscommon.MarshalPublicKey(&p.ecdsaKey.PublicKey)
}

// SignDigest signs digest with RFC 6979 and returns the DER signature.
func (p *Provider) SignDigest(_ context.Context, keyID string, digest []byte) ([]byte, error) {
	atomic.AddInt32(&p.signCalls, 1)

	if err := p.checkKeyID("sign digest", keyID); err != nil {
		return nil, err
	}
	if len(digest) != kmscommon.DigestLength {
		return nil, errors.Wrapf(kmscommon.ErrInvalidDigestLength, "got %d bytes", len(digest))
	}
	if p.SignErr != nil {
		return nil, p.SignErr
	}
	if p.SignatureDER != nil {
		return p.SignatureDER, nil
	}

	if !p.HighS && p.Tamper == nil {
		return btcecdsa.Sign(p.privKey, digest).Serialize(), nil
	}

	sig, err := kmscommon.ParseDERSignature(btcecdsa.Sign(p.privKey, digest).Serialize())
	if err != nil {
		return nil, err
	}
	if p.HighS {
		sig.S = new(big.Int).Sub(kmscommon.CurveOrder, sig.S)
	}
	if p.Tamper != nil {
		p.mtx.Lock()
		p.Tamper(&sig)
		p.mtx.Unlock()
	}

	return sig.Marshal()
}

func (p *Provider) checkKeyID(op, keyID string) error {
	if p.KeyID != "" && keyID != p.KeyID {
		return &kmscommon.KMSError{Kind: kmscommon.ErrKeyNotFound, Op: op, KeyID: keyID}
	}
	return nil
}
