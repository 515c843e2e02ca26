// Package gcpkms signs EVM digests, messages and transactions with an EC_SIGN_SECP256K1_SHA256 key version held by
// Google Cloud KMS.
//
// GoogleKMSClient owns the authenticated gRPC channel for one key ring and implements signer.Provider. Keys are
// addressed by KeyVersionPath, so a signer.Signer built with NewSigner never sees the private key: every digest is
// sent to the KMS, checked with CRC32C on the way in and out, and turned into an EVM signature locally.
package gcpkms
