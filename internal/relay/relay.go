// Package relay forwards value from the casino to freshly-generated stealth
// addresses. The relay is fire-and-forget: nothing it does links back into
// channel state, and a failed forward only surfaces in the logs.
package relay

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// TransferFunc performs the actual value movement (an on-chain send in
// production, a recorder in tests).
type TransferFunc func(ctx context.Context, to common.Address, amount *big.Int) error

var ErrBadForward = errors.New("bad relay forward")

// Sink accepts forward requests and dispatches them asynchronously.
type Sink struct {
	transfer TransferFunc
	timeout  time.Duration
	log      *zap.Logger
}

func NewSink(transfer TransferFunc, timeout time.Duration, log *zap.Logger) *Sink {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{transfer: transfer, timeout: timeout, log: log}
}

// Forward validates the request and dispatches the transfer in the
// background. The caller gets an error only for malformed requests; the
// transfer outcome itself is fire-and-forget.
func (s *Sink) Forward(to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return errors.Join(ErrBadForward, errors.New("zero stealth address"))
	}
	if amount == nil || amount.Sign() <= 0 {
		return errors.Join(ErrBadForward, errors.New("non-positive amount"))
	}

	fwd := new(big.Int).Set(amount)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.transfer(ctx, to, fwd); err != nil {
			s.log.Warn("relay forward failed",
				zap.String("to", to.Hex()),
				zap.String("amount", fwd.String()),
				zap.Error(err))
			return
		}
		s.log.Info("relay forward sent",
			zap.String("to", to.Hex()),
			zap.String("amount", fwd.String()))
	}()
	return nil
}
