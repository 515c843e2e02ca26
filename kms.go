package kms

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/LampardNguyen234/evm-kms-signer/awskms"
	kmscommon "github.com/LampardNguyen234/evm-kms-signer/common"
	"github.com/LampardNguyen234/evm-kms-signer/gcpkms"
	"github.com/LampardNguyen234/evm-kms-signer/signer"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
)

// KMSSigner specifies the required methods for a KMS signer
type KMSSigner interface {
	// GetAddress returns the EVM address of the current signer.
	GetAddress() common.Address

	// GetPublicKey returns the EVM public key of the current signer.
	GetPublicKey() (*ecdsa.PublicKey, error)

	// SignDigest signs a 32-byte digest and returns the canonical (r, low-s, v) signature.
	SignDigest(ctx context.Context, digest []byte) (kmscommon.Signature, error)

	// SignHash performs a signing operation for a given digested message.
	SignHash(ctx context.Context, hash common.Hash) ([]byte, error)

	// SignMessage signs an EIP-191 personal message.
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)

	// SignTypedData signs EIP-712 typed data.
	SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error)

	// SignTx signs a transaction for the current chain.
	SignTx(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)

	// GetDefaultEVMTransactor returns the default KMS-backed instance of bind.TransactOpts.
	GetDefaultEVMTransactor() *bind.TransactOpts

	// GetEVMSignerFn returns the KMS-backed bind.SignerFn instance.
	GetEVMSignerFn() bind.SignerFn

	// HasSignedTx checks if the given transaction has been signed by the KMS.
	HasSignedTx(*types.Transaction) (bool, error)

	// WithSigner assigns the given signer to the current KMSSigner.
	WithSigner(signer types.Signer)

	// WithChainID assigns the given chain id to the current KMSSigner.
	WithChainID(chainID *big.Int)

	// ChainID returns the chain id transactions are signed for.
	ChainID() *big.Int

	// Close releases the connection to the KMS.
	Close() error
}

var _ KMSSigner = (*signer.Signer)(nil)

// NewKMSSigner creates a KMSSigner for the service selected by cfg.Type, after applying cfg.LogLevel.
func NewKMSSigner(ctx context.Context, cfg Config, opts ...signer.Option) (KMSSigner, error) {
	if _, err := cfg.IsValid(); err != nil {
		return nil, err
	}

	cfg.SetupLogging()
	log.Debugw("creating KMS signer", "type", cfg.Type)

	var (
		s   *signer.Signer
		err error
	)
	switch cfg.serviceType() {
	case gcpType:
		s, err = gcpkms.NewSignerFromConfig(ctx, cfg.GcpConfig, opts...)
	case awsType:
		s, err = awskms.NewSignerFromConfig(ctx, cfg.AwsConfig, opts...)
	default:
		return nil, errors.Wrapf(kmscommon.ErrInvalidConfiguration, "KMS type `%v` not supported", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	return s, nil
}
