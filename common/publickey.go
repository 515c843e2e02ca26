package common

import (
	"crypto/ecdsa"
	"encoding/asn1"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// uncompressedPubKeyLength is the length of 0x04 || X || Y.
const uncompressedPubKeyLength = 65

type subjectPublicKeyInfo struct {
	Algorithm struct {
		Algorithm  asn1.ObjectIdentifier
		Parameters asn1.ObjectIdentifier
	}
	PublicKey asn1.BitString
}

// ParsePublicKey decodes a DER SubjectPublicKeyInfo returned from a KMS into a secp256k1 ecdsa.PublicKey.
//
// The key must be an id-ecPublicKey over secp256k1 carrying a 65-byte uncompressed point that lies on the curve.
func ParsePublicKey(der []byte) (*ecdsa.PublicKey, error) {
	var pubKeyInfo subjectPublicKeyInfo
	rest, err := asn1.Unmarshal(der, &pubKeyInfo)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedPublicKey, "cannot decode public key %x: %v", der, err)
	}
	if len(rest) != 0 {
		return nil, errors.Wrap(ErrMalformedPublicKey, "trailing data after public key")
	}
	if !pubKeyInfo.Algorithm.Algorithm.Equal(oidPublicKeyECDSA) {
		return nil, errors.Wrapf(ErrMalformedPublicKey, "unexpected key algorithm %v", pubKeyInfo.Algorithm.Algorithm)
	}
	if !pubKeyInfo.Algorithm.Parameters.Equal(oidNamedCurveSecp256k1) {
		return nil, errors.Wrapf(ErrMalformedPublicKey, "unexpected curve %v", pubKeyInfo.Algorithm.Parameters)
	}

	point := pubKeyInfo.PublicKey.RightAlign()
	if len(point) != uncompressedPubKeyLength || point[0] != 0x04 {
		return nil, errors.Wrapf(ErrMalformedPublicKey, "expected %d-byte uncompressed point, got %d bytes",
			uncompressedPubKeyLength, len(point))
	}

	pubKey, err := crypto.UnmarshalPubkey(point)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedPublicKey, "invalid secp256k1 public key %x: %v", point, err)
	}

	return pubKey, nil
}

// MarshalPublicKey encodes a secp256k1 public key as a DER SubjectPublicKeyInfo, the form a KMS returns it in.
func MarshalPublicKey(pubKey *ecdsa.PublicKey) ([]byte, error) {
	if pubKey == nil || pubKey.X == nil || pubKey.Y == nil {
		return nil, errors.Wrap(ErrMalformedPublicKey, "nil public key")
	}

	point := crypto.FromECDSAPub(pubKey)

	var pubKeyInfo subjectPublicKeyInfo
	pubKeyInfo.Algorithm.Algorithm = oidPublicKeyECDSA
	pubKeyInfo.Algorithm.Parameters = oidNamedCurveSecp256k1
	pubKeyInfo.PublicKey = asn1.BitString{Bytes: point, BitLength: 8 * len(point)}

	return asn1.Marshal(pubKeyInfo)
}
