package gcpkms

import (
	"context"
	"encoding/pem"
	"hash/crc32"
	"os"
	"path"
	"strconv"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	kmscommon "github.com/LampardNguyen234/evm-kms-signer/common"
	"github.com/googleapis/gax-go/v2"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const secp256k1Algorithm = kmspb.CryptoKeyVersion_EC_SIGN_SECP256K1_SHA256

var log = logging.Logger("gcpkms")

// KeyManagementClient is the subset of the GCP KMS API used by GoogleKMSClient.
type KeyManagementClient interface {
	GetPublicKey(ctx context.Context, req *kmspb.GetPublicKeyRequest, opts ...gax.CallOption) (*kmspb.PublicKey, error)
	AsymmetricSign(ctx context.Context, req *kmspb.AsymmetricSignRequest, opts ...gax.CallOption) (*kmspb.AsymmetricSignResponse, error)
	ListCryptoKeyVersions(ctx context.Context, req *kmspb.ListCryptoKeyVersionsRequest, opts ...gax.CallOption) CryptoKeyVersionIterator
	Close() error
}

// CryptoKeyVersionIterator iterates over key versions. Next returns iterator.Done when exhausted.
type CryptoKeyVersionIterator interface {
	Next() (*kmspb.CryptoKeyVersion, error)
}

type grpcClient struct {
	*kms.KeyManagementClient
}

func (c grpcClient) ListCryptoKeyVersions(ctx context.Context,
	req *kmspb.ListCryptoKeyVersionsRequest,
	opts ...gax.CallOption,
) CryptoKeyVersionIterator {
	return c.KeyManagementClient.ListCryptoKeyVersions(ctx, req, opts...)
}

// GoogleKMSClient owns an authenticated channel to the GCP KMS for one key ring.
//
// It implements signer.Provider: key IDs are KeyVersionPath.String() values. It holds no per-call state and does not
// retry; it is safe for concurrent use.
type GoogleKMSClient struct {
	client  KeyManagementClient
	keyRing KeyRing
}

// NewGoogleKMSClient opens an authenticated channel to the GCP KMS for the given key ring.
//
// Credentials are read from credentialFile if not empty, then from the file named by `GOOGLE_APPLICATION_CREDENTIALS`,
// then from the platform the process runs on (metadata server, gcloud).
func NewGoogleKMSClient(ctx context.Context, keyRing KeyRing, credentialFile string, opts ...option.ClientOption) (*GoogleKMSClient, error) {
	log.Debugw("initialising Google KMS client", "keyRing", keyRing.String())

	creds, err := findCredentials(ctx, credentialFile)
	if err != nil {
		return nil, err
	}

	opts = append([]option.ClientOption{option.WithCredentials(creds)}, opts...)
	client, err := kms.NewKeyManagementClient(ctx, opts...)
	if err != nil {
		return nil, kmscommon.WrapError(kmscommon.ErrConnection, "connect", keyRing.String(), err)
	}

	return &GoogleKMSClient{client: grpcClient{client}, keyRing: keyRing}, nil
}

// NewGoogleKMSClientWithClient creates a GoogleKMSClient on top of an existing KeyManagementClient.
func NewGoogleKMSClientWithClient(client KeyManagementClient, keyRing KeyRing) (*GoogleKMSClient, error) {
	if client == nil {
		return nil, errors.Wrap(kmscommon.ErrInvalidConfiguration, "nil KeyManagementClient")
	}

	return &GoogleKMSClient{client: client, keyRing: keyRing}, nil
}

func findCredentials(ctx context.Context, credentialFile string) (*google.Credentials, error) {
	if credentialFile == "" {
		credentialFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}

	if credentialFile == "" {
		creds, err := google.FindDefaultCredentials(ctx, kms.DefaultAuthScopes()...)
		if err != nil {
			return nil, kmscommon.WrapError(kmscommon.ErrAuthentication, "find default credentials", "", err)
		}
		return creds, nil
	}

	jsb, err := os.ReadFile(credentialFile)
	if err != nil {
		return nil, kmscommon.WrapError(kmscommon.ErrAuthentication, "read credentials", credentialFile, err)
	}
	creds, err := google.CredentialsFromJSON(ctx, jsb, kms.DefaultAuthScopes()...)
	if err != nil {
		return nil, kmscommon.WrapError(kmscommon.ErrAuthentication, "parse credentials", credentialFile, err)
	}

	return creds, nil
}

// KeyRing returns the key ring the client was created for.
func (c *GoogleKMSClient) KeyRing() KeyRing {
	return c.keyRing
}

// GetPublicKey retrieves the public key of the given key version as a DER SubjectPublicKeyInfo.
func (c *GoogleKMSClient) GetPublicKey(ctx context.Context, keyID string) ([]byte, error) {
	pubKey, err := c.client.GetPublicKey(ctx, &kmspb.GetPublicKeyRequest{Name: keyID})
	if err != nil {
		return nil, wrapRPCError("get public key", keyID, err)
	}

	if pubKey.PemCrc32C != nil && int64(crc32c([]byte(pubKey.Pem))) != pubKey.PemCrc32C.Value {
		return nil, kmscommon.WrapError(kmscommon.ErrTransient, "get public key", keyID,
			errors.New("GetPublicKey: response corrupted in-transit"))
	}

	block, _ := pem.Decode([]byte(pubKey.Pem))
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, errors.Wrapf(kmscommon.ErrMalformedPublicKey, "cannot decode public key %v", pubKey.Pem)
	}

	return block.Bytes, nil
}

// SignDigest calls the remote GCP KMS to sign a 32-byte digest, and returns the DER-encoded signature.
//
// The digest is sent in the SHA-256 field as-is: the KMS does not hash it again, so any 32-byte hash (e.g. keccak256)
// can be signed.
func (c *GoogleKMSClient) SignDigest(ctx context.Context, keyID string, digest []byte) ([]byte, error) {
	if len(digest) != kmscommon.DigestLength {
		return nil, errors.Wrapf(kmscommon.ErrInvalidDigestLength, "got %d bytes", len(digest))
	}

	req := &kmspb.AsymmetricSignRequest{
		Name: keyID,
		Digest: &kmspb.Digest{
			// we send the hash to the remote KMS, not the actual data
			Digest: &kmspb.Digest_Sha256{
				Sha256: digest,
			},
		},
		DigestCrc32C: wrapperspb.Int64(int64(crc32c(digest))),
	}

	result, err := c.client.AsymmetricSign(ctx, req)
	if err != nil {
		return nil, wrapRPCError("sign digest", keyID, err)
	}

	// perform integrity verification on result
	if !result.VerifiedDigestCrc32C {
		return nil, kmscommon.WrapError(kmscommon.ErrTransient, "sign digest", keyID,
			errors.New("AsymmetricSign: request corrupted in-transit"))
	}
	if result.SignatureCrc32C == nil || int64(crc32c(result.Signature)) != result.SignatureCrc32C.Value {
		return nil, kmscommon.WrapError(kmscommon.ErrTransient, "sign digest", keyID,
			errors.New("AsymmetricSign: response corrupted in-transit"))
	}

	return result.Signature, nil
}

// ListKeyVersions returns the numbers of the enabled secp256k1 signing versions of the key keyName.
func (c *GoogleKMSClient) ListKeyVersions(ctx context.Context, keyName string) ([]uint64, error) {
	parent := c.keyRing.cryptoKeyName(keyName)
	it := c.client.ListCryptoKeyVersions(ctx, &kmspb.ListCryptoKeyVersionsRequest{Parent: parent})

	var versions []uint64
	for {
		resp, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrapRPCError("list key versions", parent, err)
		}

		if resp.State != kmspb.CryptoKeyVersion_ENABLED || resp.Algorithm != secp256k1Algorithm {
			continue
		}
		version, err := strconv.ParseUint(path.Base(resp.Name), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "unexpected key version name %v", resp.Name)
		}
		versions = append(versions, version)
	}

	return versions, nil
}

// Close closes the connection to the KMS.
func (c *GoogleKMSClient) Close() error {
	return c.client.Close()
}

func crc32c(data []byte) uint32 {
	return crc32.Checksum(data, crc32.MakeTable(crc32.Castagnoli))
}

// wrapRPCError maps a gRPC status onto the error kinds of this module.
func wrapRPCError(op, keyID string, err error) error {
	var kind error
	switch status.Code(err) {
	case codes.NotFound:
		kind = kmscommon.ErrKeyNotFound
	case codes.PermissionDenied:
		kind = kmscommon.ErrPermissionDenied
	case codes.Unauthenticated:
		kind = kmscommon.ErrAuthentication
	case codes.InvalidArgument, codes.FailedPrecondition:
		kind = kmscommon.ErrInvalidConfiguration
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal:
		kind = kmscommon.ErrTransient
	default:
		return errors.Wrapf(err, "%v %v", op, keyID)
	}

	return kmscommon.WrapError(kind, op, keyID, err)
}
