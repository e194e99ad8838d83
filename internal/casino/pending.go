package casino

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultCommitTimeout is how long a commit stays revealable.
const DefaultCommitTimeout = 5 * time.Minute

// PendingCommit is a stored suspension point: the casino has committed to a
// seed and is waiting for the agent's reveal. Modeled as a record with a
// wall-clock timeout rather than a paused coroutine so the engine survives
// restarts and adversarial peers.
type PendingCommit struct {
	CasinoSeed string
	Commitment string
	Bet        *big.Int
	Choice     string // coinflip only
	CreatedAt  time.Time
}

type pendingKey struct {
	agent common.Address
	game  string
}

// PendingStore enforces single-flight per (agent, game). Committing to a
// different game while one is pending is allowed.
type PendingStore struct {
	mu      sync.Mutex
	m       map[pendingKey]*PendingCommit
	timeout time.Duration
	now     func() time.Time
}

func NewPendingStore(timeout time.Duration) *PendingStore {
	if timeout <= 0 {
		timeout = DefaultCommitTimeout
	}
	return &PendingStore{
		m:       map[pendingKey]*PendingCommit{},
		timeout: timeout,
		now:     time.Now,
	}
}

// Put stores a fresh commit, failing while a non-expired one exists for the
// same (agent, game). An expired leftover is silently replaced.
func (p *PendingStore) Put(agent common.Address, game string, pc *PendingCommit) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := pendingKey{agent: agent, game: game}
	if old, ok := p.m[key]; ok && p.now().Sub(old.CreatedAt) <= p.timeout {
		return fmt.Errorf("%w: %s/%s", ErrPendingExists, agent.Hex(), game)
	}
	pc.CreatedAt = p.now()
	p.m[key] = pc
	return nil
}

// Take removes and returns the pending commit for (agent, game). An expired
// commit is cleared and reported as ErrCommitExpired; the reveal that hits
// it fails but the slot is free again.
func (p *PendingStore) Take(agent common.Address, game string) (*PendingCommit, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := pendingKey{agent: agent, game: game}
	pc, ok := p.m[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoPendingCommit, agent.Hex(), game)
	}
	delete(p.m, key)
	if p.now().Sub(pc.CreatedAt) > p.timeout {
		return nil, fmt.Errorf("%w: committed at %s", ErrCommitExpired, pc.CreatedAt.Format(time.RFC3339))
	}
	return pc, nil
}

// Drop clears any pending commit for (agent, game), expired or not.
func (p *PendingStore) Drop(agent common.Address, game string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, pendingKey{agent: agent, game: game})
}

// Len reports the number of stored commits, expired ones included.
func (p *PendingStore) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}
