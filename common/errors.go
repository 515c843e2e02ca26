package common

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors - Configuration and channel setup
var (
	ErrInvalidConfiguration = errors.New("kms: invalid configuration")
	ErrAuthentication       = errors.New("kms: authentication failed")
	ErrConnection           = errors.New("kms: connection failed")
)

// Sentinel errors - Remote service
var (
	ErrKeyNotFound      = errors.New("kms: key not found")
	ErrPermissionDenied = errors.New("kms: permission denied")
	ErrTransient        = errors.New("kms: transient error")
)

// Sentinel errors - Signing
var (
	ErrInvalidDigestLength = errors.New("kms: digest must be 32 bytes")
	ErrMalformedPublicKey  = errors.New("kms: malformed public key")
	ErrMalformedSignature  = errors.New("kms: malformed signature")
	ErrSigning             = errors.New("kms: signing failed")
	ErrRecoveryFailed      = errors.New("kms: cannot recover signer public key")
)

// KMSError attaches an error kind and the key being operated on to an underlying error.
//
// errors.Is matches both the Kind and anything in the wrapped chain, so a rejected signing call
// is at the same time ErrSigning and, for instance, ErrPermissionDenied.
type KMSError struct {
	Kind  error
	Op    string
	KeyID string
	Err   error
}

// Error implements the error interface.
func (e *KMSError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %q: %v", e.Op, e.KeyID, e.Kind)
	}
	return fmt.Sprintf("%s %q: %v: %v", e.Op, e.KeyID, e.Kind, e.Err)
}

// Unwrap implements the errors.Unwrap interface for error chaining.
func (e *KMSError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the kind of this error.
func (e *KMSError) Is(target error) bool {
	return target == e.Kind
}

// WrapError wraps err with the given kind and key context.
// Returns nil if err is nil.
func WrapError(kind error, op, keyID string, err error) error {
	if err == nil {
		return nil
	}
	return &KMSError{Kind: kind, Op: op, KeyID: keyID, Err: err}
}

// IsRetryable reports whether err is a transient remote condition the caller may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
