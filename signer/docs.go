// Package signer turns a remote KMS holding a secp256k1 key into an EVM signer.
//
// The KMS only returns DER-encoded (r, s) pairs over a digest. A Signer normalizes every signature to low-s form
// and reconstructs the recovery id locally against the public key fetched once at construction, producing the
// r || s || v signatures go-ethereum expects. The private key never leaves the KMS.
package signer
