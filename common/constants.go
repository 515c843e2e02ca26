package common

import (
	"encoding/asn1"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// DigestLength is the required length of a digest sent to the KMS.
	DigestLength = 32

	// SignatureLength is the length of an EVM signature (r || s || v).
	SignatureLength = 65
)

var (
	// CurveOrder is the order of the secp256k1 elliptic curve.
	CurveOrder = crypto.S256().Params().N

	// CurveOrderHalf = CurveOrder / 2.
	CurveOrderHalf = new(big.Int).Rsh(CurveOrder, 1)

	// oidPublicKeyECDSA is the id-ecPublicKey algorithm identifier (RFC 5480).
	oidPublicKeyECDSA = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}

	// oidNamedCurveSecp256k1 is the secp256k1 named curve identifier (SEC 2).
	oidNamedCurveSecp256k1 = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
)
