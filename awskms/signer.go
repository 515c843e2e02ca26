package awskms

import (
	"context"

	kmscommon "github.com/LampardNguyen234/evm-kms-signer/common"
	"github.com/LampardNguyen234/evm-kms-signer/signer"
	"github.com/pkg/errors"
)

// NewSigner creates a signer.Signer for the key keyID. The client stays owned by the caller.
func NewSigner(ctx context.Context, client *AmazonKMSClient, keyID string, chainID uint64, opts ...signer.Option) (*signer.Signer, error) {
	if client == nil {
		return nil, errors.Wrap(kmscommon.ErrInvalidConfiguration, "nil AmazonKMSClient")
	}

	return signer.New(ctx, client, keyID, chainID, opts...)
}

// NewSignerFromConfig creates a signer.Signer for the configured key using the default AWS credential chain.
//
// Example:
//
//	cfg, err := awskms.LoadConfigFromFile("config.json")
//	if err != nil {
//		panic(err)
//	}
//	s, err := awskms.NewSignerFromConfig(ctx, *cfg)
//	if err != nil {
//		panic(err)
//	}
//	sig, err := s.SignHash(ctx, crypto.Keccak256Hash([]byte("Hello World")))
func NewSignerFromConfig(ctx context.Context, cfg Config, opts ...signer.Option) (*signer.Signer, error) {
	if _, err := cfg.IsValid(); err != nil {
		return nil, err
	}

	client, err := NewAmazonKMSClientFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return NewSigner(ctx, client, cfg.KeyID, cfg.ChainID, opts...)
}

// NewSignerWithStaticCredentials is an alternative of NewSignerFromConfig but uses a StaticCredentialsConfig.
func NewSignerWithStaticCredentials(ctx context.Context, cfg StaticCredentialsConfig, opts ...signer.Option) (*signer.Signer, error) {
	client, err := NewAmazonKMSClientWithStaticCredentials(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return NewSigner(ctx, client, cfg.KeyID, cfg.ChainID, opts...)
}
