package gcpkms

import (
	"context"
	"encoding/pem"
	"sync"
	"testing"

	"cloud.google.com/go/kms/apiv1/kmspb"
	kmscommon "github.com/LampardNguyen234/evm-kms-signer/common"
	"github.com/LampardNguyen234/evm-kms-signer/kmstest"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/googleapis/gax-go/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// fakeKMSClient answers like the GCP KMS, signing with a kmstest.Provider.
type fakeKMSClient struct {
	provider *kmstest.Provider

	mtx             sync.Mutex
	signRequests    []*kmspb.AsymmetricSignRequest
	getPublicKeyErr error
	signErr         error
	corruptRequest  bool
	corruptResponse bool
	corruptPem      bool
	pem             string
	versions        []*kmspb.CryptoKeyVersion
	listErr         error
	closed          bool
}

func (f *fakeKMSClient) GetPublicKey(ctx context.Context, req *kmspb.GetPublicKeyRequest, _ ...gax.CallOption) (*kmspb.PublicKey, error) {
	if f.getPublicKeyErr != nil {
		return nil, f.getPublicKeyErr
	}

	pemStr := f.pem
	if pemStr == "" {
		der, err := f.provider.GetPublicKey(ctx, req.Name)
		if err != nil {
			return nil, err
		}
		pemStr = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	}

	crc := int64(crc32c([]byte(pemStr)))
	if f.corruptPem {
		crc++
	}

	return &kmspb.PublicKey{Pem: pemStr, PemCrc32C: wrapperspb.Int64(crc), Name: req.Name}, nil
}

func (f *fakeKMSClient) AsymmetricSign(ctx context.Context, req *kmspb.AsymmetricSignRequest, _ ...gax.CallOption) (*kmspb.AsymmetricSignResponse, error) {
	f.mtx.Lock()
	f.signRequests = append(f.signRequests, req)
	f.mtx.Unlock()

	if f.signErr != nil {
		return nil, f.signErr
	}

	digest := req.GetDigest().GetSha256()
	verified := req.DigestCrc32C != nil && int64(crc32c(digest)) == req.DigestCrc32C.Value && !f.corruptRequest

	sig, err := f.provider.SignDigest(ctx, req.Name, digest)
	if err != nil {
		return nil, err
	}

	crc := int64(crc32c(sig))
	if f.corruptResponse {
		crc++
	}

	return &kmspb.AsymmetricSignResponse{
		Signature:            sig,
		SignatureCrc32C:      wrapperspb.Int64(crc),
		VerifiedDigestCrc32C: verified,
		Name:                 req.Name,
	}, nil
}

func (f *fakeKMSClient) ListCryptoKeyVersions(_ context.Context, _ *kmspb.ListCryptoKeyVersionsRequest, _ ...gax.CallOption) CryptoKeyVersionIterator {
	return &sliceIterator{versions: f.versions, err: f.listErr}
}

func (f *fakeKMSClient) Close() error {
	f.closed = true
	return nil
}

type sliceIterator struct {
	versions []*kmspb.CryptoKeyVersion
	err      error
}

func (it *sliceIterator) Next() (*kmspb.CryptoKeyVersion, error) {
	if it.err != nil {
		return nil, it.err
	}
	if len(it.versions) == 0 {
		return nil, iterator.Done
	}
	v := it.versions[0]
	it.versions = it.versions[1:]
	return v, nil
}

func newTestClient(t *testing.T) (*GoogleKMSClient, *fakeKMSClient) {
	provider, err := kmstest.NewRandomProvider()
	require.NoError(t, err)
	provider.HighS = true

	keyRing, err := NewKeyRing("evm-kms", "us-west1", "my-keyring")
	require.NoError(t, err)

	fake := &fakeKMSClient{provider: provider}
	c, err := NewGoogleKMSClientWithClient(fake, keyRing)
	require.NoError(t, err)

	return c, fake
}

func TestGoogleKMSClient_Signer(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	s, err := NewSigner(ctx, c, "evm-ecdsa", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(fake.provider.PrivateKey().PublicKey), s.GetAddress())
	assert.Equal(t,
		"projects/evm-kms/locations/us-west1/keyRings/my-keyring/cryptoKeys/evm-ecdsa/cryptoKeyVersions/1",
		s.KeyID())

	digest := crypto.Keccak256Hash([]byte("Hello World"))
	sig, err := s.SignHash(ctx, digest)
	require.NoError(t, err)

	pubKey, err := crypto.SigToPub(digest[:], sig)
	require.NoError(t, err)
	assert.Equal(t, s.GetAddress(), crypto.PubkeyToAddress(*pubKey))

	// the digest is sent as-is, never re-hashed
	require.Len(t, fake.signRequests, 1)
	assert.Equal(t, digest[:], fake.signRequests[0].GetDigest().GetSha256())
	assert.Equal(t, s.KeyID(), fake.signRequests[0].Name)

	require.NoError(t, s.Close())
	assert.True(t, fake.closed)
}

func TestGoogleKMSClient_SignDigest(t *testing.T) {
	keyID := "projects/evm-kms/locations/us-west1/keyRings/my-keyring/cryptoKeys/evm-ecdsa/cryptoKeyVersions/1"
	digest := crypto.Keccak256([]byte("digest"))

	t.Run("rejects invalid digest length", func(t *testing.T) {
		c, fake := newTestClient(t)
		_, err := c.SignDigest(context.Background(), keyID, digest[:31])
		assert.True(t, errors.Is(err, kmscommon.ErrInvalidDigestLength), "got %v", err)
		assert.Empty(t, fake.signRequests)
	})

	t.Run("detects a corrupted request", func(t *testing.T) {
		c, fake := newTestClient(t)
		fake.corruptRequest = true
		_, err := c.SignDigest(context.Background(), keyID, digest)
		assert.True(t, errors.Is(err, kmscommon.ErrTransient), "got %v", err)
	})

	t.Run("detects a corrupted response", func(t *testing.T) {
		c, fake := newTestClient(t)
		fake.corruptResponse = true
		_, err := c.SignDigest(context.Background(), keyID, digest)
		assert.True(t, errors.Is(err, kmscommon.ErrTransient), "got %v", err)
	})

	statusCases := []struct {
		code codes.Code
		kind error
	}{
		{codes.NotFound, kmscommon.ErrKeyNotFound},
		{codes.PermissionDenied, kmscommon.ErrPermissionDenied},
		{codes.Unauthenticated, kmscommon.ErrAuthentication},
		{codes.InvalidArgument, kmscommon.ErrInvalidConfiguration},
		{codes.Unavailable, kmscommon.ErrTransient},
		{codes.DeadlineExceeded, kmscommon.ErrTransient},
		{codes.ResourceExhausted, kmscommon.ErrTransient},
	}
	for _, tc := range statusCases {
		t.Run("maps "+tc.code.String(), func(t *testing.T) {
			c, fake := newTestClient(t)
			fake.signErr = status.Error(tc.code, "rejected")

			_, err := c.SignDigest(context.Background(), keyID, digest)
			assert.True(t, errors.Is(err, tc.kind), "got %v", err)
			assert.Equal(t, tc.kind == kmscommon.ErrTransient, kmscommon.IsRetryable(err))
			assert.Len(t, fake.signRequests, 1)
		})
	}

	t.Run("keeps unknown errors", func(t *testing.T) {
		c, fake := newTestClient(t)
		fake.signErr = status.Error(codes.Canceled, "canceled")

		_, err := c.SignDigest(context.Background(), keyID, digest)
		require.Error(t, err)
		assert.Equal(t, codes.Canceled, status.Code(errors.Cause(err)))
	})
}

func TestGoogleKMSClient_GetPublicKey(t *testing.T) {
	keyID := "projects/evm-kms/locations/us-west1/keyRings/my-keyring/cryptoKeys/evm-ecdsa/cryptoKeyVersions/1"

	t.Run("returns the DER public key", func(t *testing.T) {
		c, fake := newTestClient(t)
		der, err := c.GetPublicKey(context.Background(), keyID)
		require.NoError(t, err)

		pubKey, err := kmscommon.ParsePublicKey(der)
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(fake.provider.PrivateKey().PublicKey), crypto.PubkeyToAddress(*pubKey))
	})

	t.Run("detects a corrupted response", func(t *testing.T) {
		c, fake := newTestClient(t)
		fake.corruptPem = true
		_, err := c.GetPublicKey(context.Background(), keyID)
		assert.True(t, errors.Is(err, kmscommon.ErrTransient), "got %v", err)
	})

	t.Run("rejects invalid PEM", func(t *testing.T) {
		c, fake := newTestClient(t)
		fake.pem = "not a pem"
		_, err := c.GetPublicKey(context.Background(), keyID)
		assert.True(t, errors.Is(err, kmscommon.ErrMalformedPublicKey), "got %v", err)
	})

	t.Run("maps missing keys", func(t *testing.T) {
		c, fake := newTestClient(t)
		fake.getPublicKeyErr = status.Error(codes.NotFound, "no such key")

		_, err := NewSigner(context.Background(), c, "evm-ecdsa", 1, 5)
		assert.True(t, errors.Is(err, kmscommon.ErrKeyNotFound), "got %v", err)
	})
}

func TestGoogleKMSClient_ListKeyVersions(t *testing.T) {
	c, fake := newTestClient(t)
	name := "projects/evm-kms/locations/us-west1/keyRings/my-keyring/cryptoKeys/evm-ecdsa/cryptoKeyVersions/"
	fake.versions = []*kmspb.CryptoKeyVersion{
		{Name: name + "1", State: kmspb.CryptoKeyVersion_DISABLED, Algorithm: secp256k1Algorithm},
		{Name: name + "2", State: kmspb.CryptoKeyVersion_ENABLED, Algorithm: secp256k1Algorithm},
		{Name: name + "3", State: kmspb.CryptoKeyVersion_ENABLED, Algorithm: kmspb.CryptoKeyVersion_EC_SIGN_P256_SHA256},
		{Name: name + "4", State: kmspb.CryptoKeyVersion_ENABLED, Algorithm: secp256k1Algorithm},
	}

	versions, err := c.ListKeyVersions(context.Background(), "evm-ecdsa")
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 4}, versions)

	fake.listErr = status.Error(codes.PermissionDenied, "no viewer role")
	_, err = c.ListKeyVersions(context.Background(), "evm-ecdsa")
	assert.True(t, errors.Is(err, kmscommon.ErrPermissionDenied), "got %v", err)
}

func TestNewGoogleKMSClient(t *testing.T) {
	keyRing, err := NewKeyRing("evm-kms", "us-west1", "my-keyring")
	require.NoError(t, err)

	_, err = NewGoogleKMSClient(context.Background(), keyRing, "testdata/missing-credential.json")
	assert.True(t, errors.Is(err, kmscommon.ErrAuthentication), "got %v", err)

	_, err = NewGoogleKMSClient(context.Background(), keyRing, "testdata/config-example.json")
	assert.True(t, errors.Is(err, kmscommon.ErrAuthentication), "got %v", err)

	_, err = NewSigner(context.Background(), nil, "evm-ecdsa", 1, 5)
	assert.True(t, errors.Is(err, kmscommon.ErrInvalidConfiguration))
}
