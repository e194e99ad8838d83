// Package entropy is the alternate randomness path: instead of the in-house
// commit-reveal flow, the casino requests a random value from an external
// verifiable-RNG provider and settles the round once the provider calls
// back. Rounds move through a small state machine with a TTL escape hatch
// so funds never stay blocked on a provider that goes dark.
package entropy

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Round status values. Terminal states are Settled, Expired and Failed.
type Status string

const (
	StatusNone      Status = "none"
	StatusRequested Status = "requested"
	StatusFulfilled Status = "fulfilled"
	StatusSettled   Status = "settled"
	StatusExpired   Status = "expired"
	StatusFailed    Status = "failed"
)

const DefaultTTL = 5 * time.Minute

var (
	ErrRoundNotFound    = errors.New("entropy round not found")
	ErrRoundExists      = errors.New("entropy round already pending")
	ErrBadTransition    = errors.New("invalid entropy round transition")
	ErrNotProvider      = errors.New("fulfillment not from configured provider")
	ErrRoundNotExpired  = errors.New("entropy round ttl not elapsed")
	ErrAlreadyFulfilled = errors.New("entropy round already fulfilled")
)

// Round is one externally-randomized wager.
type Round struct {
	RequestID   string
	Agent       common.Address
	Game        string
	Bet         *big.Int
	Choice      string
	FeePaid     *big.Int
	Status      Status
	RequestedAt time.Time
	Random      *big.Int
	Outcome     uint64 // random mod 2, set at settle
	FailReason  string
}

type roundKey struct {
	agent common.Address
	game  string
}

// Tracker owns all entropy rounds. One in-flight round per (agent, game);
// one fulfillment per request id.
type Tracker struct {
	mu       sync.Mutex
	provider common.Address
	ttl      time.Duration
	rounds   map[string]*Round
	active   map[roundKey]string // (agent, game) -> in-flight request id
	log      *zap.Logger
	now      func() time.Time
}

func NewTracker(provider common.Address, ttl time.Duration, log *zap.Logger) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		provider: provider,
		ttl:      ttl,
		rounds:   map[string]*Round{},
		active:   map[roundKey]string{},
		log:      log,
		now:      time.Now,
	}
}

// Request opens a round and returns its provider request identifier.
// A second request for the same (agent, game) while one is in flight is a
// re-commit and is rejected.
func (t *Tracker) Request(agent common.Address, game string, bet, fee *big.Int, choice string) (*Round, error) {
	if bet == nil || bet.Sign() <= 0 {
		return nil, fmt.Errorf("bet must be positive")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	key := roundKey{agent: agent, game: game}
	if id, ok := t.active[key]; ok {
		if r := t.rounds[id]; r != nil && r.Status == StatusRequested {
			return nil, fmt.Errorf("%w: request %s", ErrRoundExists, id)
		}
	}

	r := &Round{
		RequestID:   uuid.NewString(),
		Agent:       agent,
		Game:        game,
		Bet:         new(big.Int).Set(bet),
		Choice:      choice,
		FeePaid:     bigOrZero(fee),
		Status:      StatusRequested,
		RequestedAt: t.now(),
	}
	t.rounds[r.RequestID] = r
	t.active[key] = r.RequestID

	t.log.Info("entropy round requested",
		zap.String("requestId", r.RequestID),
		zap.String("agent", agent.Hex()),
		zap.String("game", game),
		zap.String("bet", bet.String()))
	return cloneRound(r), nil
}

// Fulfill records the provider's random value. Exactly one fulfillment is
// accepted per request, and only from the configured provider.
func (t *Tracker) Fulfill(requestID string, caller common.Address, random *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.rounds[requestID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoundNotFound, requestID)
	}
	if caller != t.provider {
		return fmt.Errorf("%w: caller %s", ErrNotProvider, caller.Hex())
	}
	switch r.Status {
	case StatusRequested:
	case StatusFulfilled:
		return fmt.Errorf("%w: %s", ErrAlreadyFulfilled, requestID)
	default:
		return fmt.Errorf("%w: %s is %s", ErrBadTransition, requestID, r.Status)
	}
	r.Random = new(big.Int).Set(random)
	r.Status = StatusFulfilled

	t.log.Info("entropy round fulfilled", zap.String("requestId", requestID))
	return nil
}

// Settle marks a fulfilled round processed and returns the deterministic
// outcome (random mod 2 for coinflip).
func (t *Tracker) Settle(requestID string) (*Round, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.rounds[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoundNotFound, requestID)
	}
	if r.Status != StatusFulfilled {
		return nil, fmt.Errorf("%w: settle on %s", ErrBadTransition, r.Status)
	}
	r.Outcome = new(big.Int).Mod(r.Random, big.NewInt(2)).Uint64()
	r.Status = StatusSettled
	t.clearActive(r)

	t.log.Info("entropy round settled",
		zap.String("requestId", requestID),
		zap.Uint64("outcome", r.Outcome))
	return cloneRound(r), nil
}

// Expire marks a requested round expired once its TTL has elapsed. Any
// observer may call it; it unblocks downstream funds.
func (t *Tracker) Expire(requestID string, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expireLocked(requestID, now)
}

func (t *Tracker) expireLocked(requestID string, now time.Time) error {
	r, ok := t.rounds[requestID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoundNotFound, requestID)
	}
	if r.Status != StatusRequested {
		return fmt.Errorf("%w: expire on %s", ErrBadTransition, r.Status)
	}
	if now.Sub(r.RequestedAt) < t.ttl {
		return fmt.Errorf("%w: %s", ErrRoundNotExpired, requestID)
	}
	r.Status = StatusExpired
	t.clearActive(r)

	t.log.Warn("entropy round expired", zap.String("requestId", requestID))
	return nil
}

// ExpireDue sweeps every requested round past its TTL and returns the
// request ids it expired.
func (t *Tracker) ExpireDue(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []string
	for id, r := range t.rounds {
		if r.Status == StatusRequested && now.Sub(r.RequestedAt) >= t.ttl {
			if err := t.expireLocked(id, now); err == nil {
				expired = append(expired, id)
			}
		}
	}
	return expired
}

// Fail moves a round to the terminal failure sink.
func (t *Tracker) Fail(requestID, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.rounds[requestID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoundNotFound, requestID)
	}
	if r.Status == StatusSettled || r.Status == StatusExpired || r.Status == StatusFailed {
		return fmt.Errorf("%w: fail on %s", ErrBadTransition, r.Status)
	}
	r.Status = StatusFailed
	r.FailReason = reason
	t.clearActive(r)

	t.log.Warn("entropy round failed",
		zap.String("requestId", requestID),
		zap.String("reason", reason))
	return nil
}

// Round returns a copy of the round for the given request id.
func (t *Tracker) Round(requestID string) (*Round, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.rounds[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoundNotFound, requestID)
	}
	return cloneRound(r), nil
}

func (t *Tracker) clearActive(r *Round) {
	key := roundKey{agent: r.Agent, game: r.Game}
	if t.active[key] == r.RequestID {
		delete(t.active, key)
	}
}

func cloneRound(r *Round) *Round {
	out := *r
	if r.Bet != nil {
		out.Bet = new(big.Int).Set(r.Bet)
	}
	if r.FeePaid != nil {
		out.FeePaid = new(big.Int).Set(r.FeePaid)
	}
	if r.Random != nil {
		out.Random = new(big.Int).Set(r.Random)
	}
	return &out
}

func bigOrZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(n)
}
