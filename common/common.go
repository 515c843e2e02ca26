package common

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/asn1"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
	casn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// KmsSignature represents decoded signatures returned from the KMS.
//
// A KmsSignature only consists of 2 points: R, S. In order for it to be EVM-compatible, we need to manually convert
// it to the (r || s || v) form.
type KmsSignature struct {
	R, S *big.Int
}

// Marshal encodes the signature as an ASN.1 DER SEQUENCE of two INTEGERs.
func (sig KmsSignature) Marshal() ([]byte, error) {
	return asn1.Marshal(sig)
}

// Signature is a fixed-width EVM signature: 32-byte R, 32-byte low-s S and a recovery id V in {0, 1}.
type Signature struct {
	R [32]byte
	S [32]byte
	V byte
}

// Bytes returns the 65-byte r || s || v encoding accepted by go-ethereum (crypto.Ecrecover, tx.WithSignature).
func (sig Signature) Bytes() []byte {
	ret := make([]byte, 0, SignatureLength)
	ret = append(ret, sig.R[:]...)
	ret = append(ret, sig.S[:]...)
	return append(ret, sig.V)
}

// ParseDERSignature strictly decodes a DER signature returned by the KMS.
//
// The input must be exactly one SEQUENCE holding two INTEGERs with nothing trailing, and both integers must lie
// in [1, CurveOrder-1]. encoding/asn1 tolerates extra SEQUENCE elements, so cryptobyte is used instead.
func ParseDERSignature(der []byte) (KmsSignature, error) {
	var (
		input = cryptobyte.String(der)
		inner cryptobyte.String
		r     = new(big.Int)
		s     = new(big.Int)
	)
	if !input.ReadASN1(&inner, casn1.SEQUENCE) ||
		!input.Empty() ||
		!inner.ReadASN1Integer(r) ||
		!inner.ReadASN1Integer(s) ||
		!inner.Empty() {
		return KmsSignature{}, errors.Wrapf(ErrMalformedSignature, "invalid DER encoding %x", der)
	}

	sig := KmsSignature{R: r, S: s}
	if err := sig.validate(); err != nil {
		return KmsSignature{}, err
	}

	return sig, nil
}

func (sig KmsSignature) validate() error {
	if !inScalarRange(sig.R) {
		return errors.Wrap(ErrMalformedSignature, "r out of range")
	}
	if !inScalarRange(sig.S) {
		return errors.Wrap(ErrMalformedSignature, "s out of range")
	}
	return nil
}

func inScalarRange(x *big.Int) bool {
	return x != nil && x.Sign() > 0 && x.Cmp(CurveOrder) < 0
}

// NormalizeS returns the low-s form of s, and whether s had to be flipped.
//
// For a signature to be valid, s must be less than n/2 + 1.
// https://github.com/ethereum/EIPs/blob/master/EIPS/eip-2.md
func NormalizeS(s *big.Int) (*big.Int, bool) {
	if s.Cmp(CurveOrderHalf) > 0 {
		return new(big.Int).Sub(CurveOrder, s), true
	}
	return s, false
}

// RecoverID finds the recovery id v in {0, 1} for which (r, s, v) recovers pubKey from digest.
func RecoverID(pubKey ecdsa.PublicKey, digest []byte, r, s *big.Int) (byte, error) {
	pubKeyBytes := crypto.FromECDSAPub(&pubKey)

	sig := make([]byte, SignatureLength)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:64])

	for v := byte(0); v <= 1; v++ {
		sig[64] = v
		recoveredPubKey, err := crypto.Ecrecover(digest, sig)
		if err != nil {
			continue
		}
		if bytes.Equal(recoveredPubKey, pubKeyBytes) {
			return v, nil
		}
	}

	return 0, errors.Wrapf(ErrRecoveryFailed, "signature does not match public key %x", pubKeyBytes)
}

// KmsToEVMSignature converts a KmsSignature into an EVM-compatible signature of the following form: r || s || v,
// with v either 0 or 1. The `WithSignature` function will adjust the value of v based on the Signer type (types.Signer).
// Reference: https://eips.ethereum.org/EIPS/eip-155.
//
// s is normalized before v is searched for: flipping s also flips the valid recovery id.
func KmsToEVMSignature(pubKey ecdsa.PublicKey,
	kmsSig KmsSignature,
	digestedMsg ethcommon.Hash,
) (Signature, error) {
	if err := kmsSig.validate(); err != nil {
		return Signature{}, err
	}

	s, _ := NormalizeS(kmsSig.S)

	v, err := RecoverID(pubKey, digestedMsg[:], kmsSig.R, s)
	if err != nil {
		return Signature{}, err
	}

	var sig Signature
	kmsSig.R.FillBytes(sig.R[:])
	s.FillBytes(sig.S[:])
	sig.V = v

	return sig, nil
}
