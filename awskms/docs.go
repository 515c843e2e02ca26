// Package awskms signs EVM digests, messages and transactions with an ECC_SECG_P256K1 key held by AWS KMS.
//
// AmazonKMSClient implements signer.Provider on top of the aws-sdk-go-v2 KMS client. Digests are sent with the
// DIGEST message type, so the KMS signs keccak256 hashes without hashing them again.
package awskms
