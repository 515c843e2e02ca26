package signer

import (
	"github.com/ethereum/go-ethereum/core/types"
	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/zap"
)

const loggerName = "kms-signer"

// Option configures a Signer.
type Option func(*Signer)

// WithLogger sets the logger used by the Signer.
func WithLogger(lg *zap.SugaredLogger) Option {
	return func(s *Signer) {
		if lg != nil {
			s.log = lg
		}
	}
}

// WithTxSigner sets the types.Signer used to hash and sign transactions.
// It defaults to types.LatestSignerForChainID(chainID).
func WithTxSigner(txSigner types.Signer) Option {
	return func(s *Signer) {
		if txSigner != nil {
			s.txSigner = txSigner
		}
	}
}

func defaultLogger() *zap.SugaredLogger {
	return &logging.Logger(loggerName).SugaredLogger
}
