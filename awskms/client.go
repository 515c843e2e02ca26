package awskms

import (
	"context"

	kmscommon "github.com/LampardNguyen234/evm-kms-signer/common"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/smithy-go"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
)

const (
	signingAlgorithm   = types.SigningAlgorithmSpecEcdsaSha256
	signingMessageType = types.MessageTypeDigest
)

var log = logging.Logger("awskms")

// KMSAPI is the subset of the AWS KMS API used by AmazonKMSClient. *kms.Client implements it.
type KMSAPI interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// AmazonKMSClient implements signer.Provider on top of the AWS KMS. Key IDs are key IDs, ARNs or aliases.
type AmazonKMSClient struct {
	kmsClient KMSAPI
}

// NewAmazonKMSClient creates a new AmazonKMSClient with the given KMS API client.
//
// Example:
//
//	awsCfg, err := config.LoadDefaultConfig(ctx,
//		config.WithRegion("AWS_REGION"),
//		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
//			"ACCESS_KEY_ID",
//			"SECRET_ACCESS_KEY",
//			"SESSION",
//		)),
//	)
//	if err != nil {
//		panic(err)
//	}
//	c, err := NewAmazonKMSClient(kms.NewFromConfig(awsCfg))
//	if err != nil {
//		panic(err)
//	}
func NewAmazonKMSClient(kmsClient KMSAPI) (*AmazonKMSClient, error) {
	if kmsClient == nil {
		return nil, errors.Wrap(kmscommon.ErrInvalidConfiguration, "nil KMS client")
	}

	return &AmazonKMSClient{kmsClient: kmsClient}, nil
}

// NewAmazonKMSClientFromConfig creates an AmazonKMSClient using the default AWS credential chain
// (environment, shared config, instance or task role).
func NewAmazonKMSClientFromConfig(ctx context.Context, cfg Config) (*AmazonKMSClient, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	return newAmazonKMSClient(ctx, opts...)
}

// NewAmazonKMSClientWithStaticCredentials is an alternative of NewAmazonKMSClientFromConfig but uses a
// StaticCredentialsConfig.
func NewAmazonKMSClientWithStaticCredentials(ctx context.Context, cfg StaticCredentialsConfig) (*AmazonKMSClient, error) {
	if _, err := cfg.IsValid(); err != nil {
		return nil, err
	}

	return newAmazonKMSClient(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)),
	)
}

func newAmazonKMSClient(ctx context.Context, opts ...func(*config.LoadOptions) error) (*AmazonKMSClient, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, kmscommon.WrapError(kmscommon.ErrAuthentication, "load AWS config", "", err)
	}
	log.Debugw("initialising AWS KMS client", "region", awsCfg.Region)

	return &AmazonKMSClient{kmsClient: kms.NewFromConfig(awsCfg)}, nil
}

// GetPublicKey retrieves the DER SubjectPublicKeyInfo of the given key.
func (c *AmazonKMSClient) GetPublicKey(ctx context.Context, keyID string) ([]byte, error) {
	getPubKeyOutput, err := c.kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(keyID),
	})
	if err != nil {
		return nil, wrapAPIError("get public key", keyID, err)
	}

	return getPubKeyOutput.PublicKey, nil
}

// SignDigest calls the remote AWS KMS to sign a 32-byte digest, and returns the DER-encoded signature.
//
// The message type is DIGEST, so the KMS signs the digest as-is without hashing it again.
func (c *AmazonKMSClient) SignDigest(ctx context.Context, keyID string, digest []byte) ([]byte, error) {
	if len(digest) != kmscommon.DigestLength {
		return nil, errors.Wrapf(kmscommon.ErrInvalidDigestLength, "got %d bytes", len(digest))
	}

	result, err := c.kmsClient.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(keyID),
		Message:          digest,
		SigningAlgorithm: signingAlgorithm,
		MessageType:      signingMessageType,
	})
	if err != nil {
		return nil, wrapAPIError("sign digest", keyID, err)
	}

	return result.Signature, nil
}

// wrapAPIError maps AWS KMS error codes onto the error kinds of this module.
func wrapAPIError(op, keyID string, err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return errors.Wrapf(err, "%v %v", op, keyID)
	}

	var kind error
	switch apiErr.ErrorCode() {
	case "NotFoundException":
		kind = kmscommon.ErrKeyNotFound
	case "AccessDeniedException":
		kind = kmscommon.ErrPermissionDenied
	case "UnrecognizedClientException", "InvalidSignatureException", "ExpiredTokenException":
		kind = kmscommon.ErrAuthentication
	case "DisabledException", "KMSInvalidStateException", "InvalidKeyUsageException", "InvalidArnException",
		"UnsupportedOperationException", "ValidationException":
		kind = kmscommon.ErrInvalidConfiguration
	case "KMSInternalException", "DependencyTimeoutException", "KeyUnavailableException", "ThrottlingException":
		kind = kmscommon.ErrTransient
	default:
		return errors.Wrapf(err, "%v %v", op, keyID)
	}

	return kmscommon.WrapError(kind, op, keyID, err)
}
