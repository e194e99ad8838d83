// Package bankroll tracks total casino collateral locked across live
// channels. The off-chain engine consults it before funding a channel; the
// settlement layer runs the logically identical check, so the two agree at
// equilibrium.
package bankroll

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
)

var (
	ErrExposureExceeded = errors.New("bankroll exposure exceeded")
	ErrUnlockTooLarge   = errors.New("unlock exceeds locked collateral")
)

// Guard is a process-wide exposure counter. Zero max means no collateral
// may ever be locked.
type Guard struct {
	mu          sync.Mutex
	totalLocked *big.Int
	maxExposure *big.Int
}

func NewGuard(maxExposure *big.Int) *Guard {
	return &Guard{
		totalLocked: new(big.Int),
		maxExposure: new(big.Int).Set(maxExposure),
	}
}

// Lock reserves collateral, failing if the cap would be breached.
func (g *Guard) Lock(amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("negative lock amount %s", amount)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	next := new(big.Int).Add(g.totalLocked, amount)
	if next.Cmp(g.maxExposure) > 0 {
		return fmt.Errorf("%w: locked=%s request=%s max=%s",
			ErrExposureExceeded, g.totalLocked, amount, g.maxExposure)
	}
	g.totalLocked = next
	return nil
}

// Unlock releases previously locked collateral.
func (g *Guard) Unlock(amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("negative unlock amount %s", amount)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if amount.Cmp(g.totalLocked) > 0 {
		return fmt.Errorf("%w: locked=%s request=%s", ErrUnlockTooLarge, g.totalLocked, amount)
	}
	g.totalLocked.Sub(g.totalLocked, amount)
	return nil
}

// CanLock reports whether Lock would succeed without reserving anything.
func (g *Guard) CanLock(amount *big.Int) bool {
	if amount.Sign() < 0 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return new(big.Int).Add(g.totalLocked, amount).Cmp(g.maxExposure) <= 0
}

// TotalLocked returns a copy of the current exposure.
func (g *Guard) TotalLocked() *big.Int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return new(big.Int).Set(g.totalLocked)
}

// MaxExposure returns a copy of the configured cap.
func (g *Guard) MaxExposure() *big.Int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return new(big.Int).Set(g.maxExposure)
}
