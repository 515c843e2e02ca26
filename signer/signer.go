package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"
	"math/big"

	kmscommon "github.com/LampardNguyen234/evm-kms-signer/common"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Provider is the remote signing capability a Signer is built on.
//
// Implementations hold an authenticated channel to the KMS and nothing else; they must not retry internally.
type Provider interface {
	// GetPublicKey returns the DER-encoded SubjectPublicKeyInfo of the key version addressed by keyID.
	GetPublicKey(ctx context.Context, keyID string) ([]byte, error)

	// SignDigest asks the KMS to sign the given 32-byte digest as-is, and returns the DER-encoded signature.
	SignDigest(ctx context.Context, keyID string, digest []byte) ([]byte, error)
}

// Signer signs EVM digests, messages and transactions with a key held by a remote KMS.
//
// The public key and address are fetched once in New and never change afterwards, so signing methods are safe
// for concurrent use as long as the Provider is. WithSigner and WithChainID must not race with signing.
type Signer struct {
	provider  Provider
	keyID     string
	ctx       context.Context
	publicKey *ecdsa.PublicKey
	address   common.Address
	chainID   *big.Int
	txSigner  types.Signer
	log       *zap.SugaredLogger
}

// New creates a Signer for the key version keyID of the given Provider.
//
// It fetches the public key once and derives the EVM address from it. ctx is used for this call and is kept as the
// context of the default bind.TransactOpts. If no types.Signer is given via WithTxSigner, the signer will be
// initiated as types.LatestSignerForChainID(chainID).
func New(ctx context.Context, provider Provider, keyID string, chainID uint64, opts ...Option) (*Signer, error) {
	if provider == nil {
		return nil, errors.Wrap(kmscommon.ErrInvalidConfiguration, "nil provider")
	}
	if keyID == "" {
		return nil, errors.Wrap(kmscommon.ErrInvalidConfiguration, "empty key id")
	}

	cid := new(big.Int).SetUint64(chainID)
	s := &Signer{
		provider: provider,
		keyID:    keyID,
		ctx:      ctx,
		chainID:  cid,
		txSigner: types.LatestSignerForChainID(cid),
		log:      defaultLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	der, err := provider.GetPublicKey(ctx, keyID)
	if err != nil {
		return nil, err
	}

	pubKey, err := kmscommon.ParsePublicKey(der)
	if err != nil {
		return nil, errors.Wrapf(err, "public key of %v", keyID)
	}
	s.publicKey = pubKey
	s.address = crypto.PubkeyToAddress(*pubKey)
	s.log = s.log.With("keyID", keyID, "address", s.address.Hex())
	s.log.Debugw("loaded KMS public key", "chainID", chainID)

	return s, nil
}

// GetAddress returns the EVM address of the current signer.
func (s *Signer) GetAddress() common.Address {
	return s.address
}

// GetPublicKey returns a copy of the public key of the KMS key version.
func (s *Signer) GetPublicKey() (*ecdsa.PublicKey, error) {
	return &ecdsa.PublicKey{
		Curve: s.publicKey.Curve,
		X:     new(big.Int).Set(s.publicKey.X),
		Y:     new(big.Int).Set(s.publicKey.Y),
	}, nil
}

// KeyID returns the provider-specific identifier of the key version.
func (s *Signer) KeyID() string {
	return s.keyID
}

// ChainID returns the chain id transactions are signed for.
func (s *Signer) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// SignDigest calls the remote KMS to sign a 32-byte digest and converts the result to a canonical
// (r, low-s, v) signature. The digest is sent as-is and never re-hashed.
//
// Exactly one KMS call is made; a signature that cannot be matched to the public key fails with
// ErrRecoveryFailed and is not retried.
func (s *Signer) SignDigest(ctx context.Context, digest []byte) (kmscommon.Signature, error) {
	if len(digest) != kmscommon.DigestLength {
		return kmscommon.Signature{}, errors.Wrapf(kmscommon.ErrInvalidDigestLength, "got %d bytes", len(digest))
	}

	der, err := s.provider.SignDigest(ctx, s.keyID, digest)
	if err != nil {
		return kmscommon.Signature{}, kmscommon.WrapError(kmscommon.ErrSigning, "sign digest", s.keyID, err)
	}

	kmsSig, err := kmscommon.ParseDERSignature(der)
	if err != nil {
		return kmscommon.Signature{}, err
	}

	sig, err := kmscommon.KmsToEVMSignature(*s.publicKey, kmsSig, common.BytesToHash(digest))
	if err != nil {
		s.log.Errorw("KMS signature does not match the public key", "error", err)
		return kmscommon.Signature{}, err
	}

	s.log.Debugw("signed digest", "v", sig.V, "highS", kmsSig.S.Cmp(kmscommon.CurveOrderHalf) > 0)

	return sig, nil
}

// SignHash calls the remote KMS to sign a given digested message, and returns the 65-byte r || s || v signature
// with v either 0 or 1.
//
// Although the KMS does not support keccak256 hash function (it uses SHA256 instead), it will not care about
// which hash function to use if you send the hash of message to the KMS.
func (s *Signer) SignHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	sig, err := s.SignDigest(ctx, hash[:])
	if err != nil {
		return nil, err
	}

	return sig.Bytes(), nil
}

// SignMessage signs msg following EIP-191 (personal_sign).
//
// The returned v is 27 or 28 as wallets and ecrecover in contracts expect; it carries no EIP-155 chain id, which
// only applies to legacy transactions. Subtract 27 before passing the signature to crypto.Ecrecover.
func (s *Signer) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	sig, err := s.SignHash(ctx, common.BytesToHash(accounts.TextHash(msg)))
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27

	return sig, nil
}

// SignTypedData signs the EIP-712 hash of typedData.
//
// The returned v is 27 or 28, the form eth_signTypedData returns, rather than the raw recovery id in {0, 1}
// returned by SignHash.
func (s *Signer) SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("cannot hash EIP712 domain: %v", err)
	}
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("cannot hash typed data: %v", err)
	}
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))

	sig, err := s.SignHash(ctx, crypto.Keccak256Hash(rawData))
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27

	return sig, nil
}

// SignTx signs tx and checks the result recovers to this signer's address.
//
// Typed transactions carrying a chain id other than the signer's are signed for their own chain, so the returned
// transaction is always valid on the chain it names. Legacy transactions use the current types.Signer.
func (s *Signer) SignTx(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	txSigner := s.txSignerFor(tx)

	sig, err := s.SignHash(ctx, txSigner.Hash(tx))
	if err != nil {
		return nil, fmt.Errorf("cannot sign transaction: %w", err)
	}

	ret, err := tx.WithSignature(txSigner, sig)
	if err != nil {
		return nil, err
	}

	if _, err = s.hasSignedTx(txSigner, ret); err != nil {
		return nil, err
	}

	return ret, nil
}

// txSignerFor returns the types.Signer matching the chain id of tx.
func (s *Signer) txSignerFor(tx *types.Transaction) types.Signer {
	if tx.Type() == types.LegacyTxType {
		return s.txSigner
	}

	chainID := tx.ChainId()
	if chainID == nil || chainID.Sign() == 0 || chainID.Cmp(s.chainID) == 0 {
		return s.txSigner
	}

	return types.LatestSignerForChainID(chainID)
}

// GetDefaultEVMTransactor returns the default KMS-backed instance of bind.TransactOpts.
// Only `Context`, `From`, and `Signer` fields are set.
func (s *Signer) GetDefaultEVMTransactor() *bind.TransactOpts {
	return &bind.TransactOpts{
		Context: s.ctx,
		From:    s.GetAddress(),
		Signer:  s.GetEVMSignerFn(),
	}
}

// GetEVMSignerFn returns the KMS-backed bind.SignerFn.
func (s *Signer) GetEVMSignerFn() bind.SignerFn {
	return func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
		if addr != s.GetAddress() {
			return nil, bind.ErrNotAuthorized
		}

		return s.SignTx(s.ctx, tx)
	}
}

// HasSignedTx checks if the given tx is signed by the current Signer.
func (s *Signer) HasSignedTx(tx *types.Transaction) (bool, error) {
	return s.hasSignedTx(s.txSignerFor(tx), tx)
}

func (s *Signer) hasSignedTx(txSigner types.Signer, tx *types.Transaction) (bool, error) {
	from, err := types.Sender(txSigner, tx)
	if err != nil {
		return false, fmt.Errorf("cannot get sender of the tx: %v", err)
	}

	if from != s.GetAddress() {
		return false, fmt.Errorf("expected signer: %v, got %v", s.GetAddress(), from)
	}

	return true, nil
}

// WithSigner assigns the given types.Signer to the Signer.
func (s *Signer) WithSigner(txSigner types.Signer) {
	s.txSigner = txSigner
}

// WithChainID assigns given chainID (and updates the corresponding types.Signer) to the Signer.
func (s *Signer) WithChainID(chainID *big.Int) {
	if s.chainID.Cmp(chainID) != 0 {
		s.chainID = new(big.Int).Set(chainID)
		s.txSigner = types.LatestSignerForChainID(s.chainID)
	}
}

// Close releases the Provider if it holds resources.
func (s *Signer) Close() error {
	if closer, ok := s.provider.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
