package gcpkms

import (
	"context"

	kmscommon "github.com/LampardNguyen234/evm-kms-signer/common"
	"github.com/LampardNguyen234/evm-kms-signer/signer"
	"github.com/pkg/errors"
)

// NewSigner creates a signer.Signer for version keyVersion of the key keyName in the client's key ring.
//
// The public key is fetched once here; the client stays owned by the caller.
func NewSigner(ctx context.Context,
	client *GoogleKMSClient,
	keyName string,
	keyVersion uint64,
	chainID uint64,
	opts ...signer.Option,
) (*signer.Signer, error) {
	if client == nil {
		return nil, errors.Wrap(kmscommon.ErrInvalidConfiguration, "nil GoogleKMSClient")
	}

	keyVersionPath, err := client.KeyRing().KeyVersion(keyName, keyVersion)
	if err != nil {
		return nil, err
	}

	return signer.New(ctx, client, keyVersionPath.String(), chainID, opts...)
}

// NewSignerFromConfig opens a GoogleKMSClient with the given config and creates a signer.Signer on top of it.
// Closing the returned Signer closes the client.
//
// Example:
//
//	cfg, err := gcpkms.LoadConfigFromFile("config.json")
//	if err != nil {
//		panic(err)
//	}
//	s, err := gcpkms.NewSignerFromConfig(ctx, *cfg)
//	if err != nil {
//		panic(err)
//	}
//	defer s.Close()
//	signedTx, err := s.GetDefaultEVMTransactor().Signer(s.GetAddress(), tx)
func NewSignerFromConfig(ctx context.Context, cfg Config, opts ...signer.Option) (*signer.Signer, error) {
	if _, err := cfg.IsValid(); err != nil {
		return nil, err
	}

	keyVersionPath, err := cfg.KeyVersionPath()
	if err != nil {
		return nil, err
	}

	client, err := NewGoogleKMSClient(ctx, keyVersionPath.KeyRing(), cfg.CredentialLocation)
	if err != nil {
		return nil, err
	}

	s, err := signer.New(ctx, client, keyVersionPath.String(), cfg.ChainID, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return s, nil
}
