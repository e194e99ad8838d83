package casino

import (
	"fmt"
	"math/big"
	"time"

	"agentcasino/internal/signer"
)

// Game is the capability every plug-in implements. Adding a game to the
// engine means registering one instance; the engine derives its routing
// table from Name and Actions.
type Game interface {
	Name() string
	DisplayName() string
	// RTP is the theoretical return-to-player in [0, 1].
	RTP() float64
	// MaxMultiplier is the worst-case payout multiple used for bankroll
	// guarding.
	MaxMultiplier() int64
	Actions() []string
	HandleAction(action string, ch *Channel, params map[string]any, ctx *GameContext) (*ActionResult, error)
}

// infoActions need no open channel and never mutate state.
var infoActions = map[string]bool{"status": true}

// ActionResult is what a game hands back to the engine. State and Record
// are nil for non-mutating actions.
type ActionResult struct {
	State  *SignedState
	Record *RoundRecord
	Data   map[string]any
}

// GameContext is the slice of engine facilities a game may touch. The
// engine holds its lock for the duration of HandleAction, so games mutate
// the channel without further synchronization.
type GameContext struct {
	Signer  signer.Signer
	Pending *PendingStore
	Now     func() time.Time
}

// ValidateBet applies the house bet policy: positive bet, agent can pay,
// and the house can cover the worst case with a 2x safety factor.
func ValidateBet(ch *Channel, bet *big.Int, maxMultiplier int64) error {
	if bet == nil || bet.Sign() <= 0 {
		return ErrBetNotPositive
	}
	if ch.AgentBalance.Cmp(bet) < 0 {
		return fmt.Errorf("%w: balance=%s bet=%s", ErrInsufficientBalance, ch.AgentBalance, bet)
	}
	exposure := new(big.Int).Mul(bet, big.NewInt(maxMultiplier*2))
	if exposure.Cmp(ch.CasinoBalance) > 0 {
		return fmt.Errorf("%w: exposure=%s casinoBalance=%s", ErrHouseCannotCover, exposure, ch.CasinoBalance)
	}
	return nil
}

// ApplyOutcome settles one round on the channel: the bet moves agent to
// casino, the payout casino to agent, the nonce bumps by exactly one, and
// the new state is signed. Signing is the only suspension point; if it
// fails the whole mutation is rolled back so the invariants keep holding.
func (ctx *GameContext) ApplyOutcome(ch *Channel, bet, payout *big.Int) (*SignedState, error) {
	newAgent := new(big.Int).Sub(ch.AgentBalance, bet)
	newAgent.Add(newAgent, payout)
	newCasino := new(big.Int).Add(ch.CasinoBalance, bet)
	newCasino.Sub(newCasino, payout)
	if newAgent.Sign() < 0 || newCasino.Sign() < 0 {
		return nil, fmt.Errorf("%w: bet=%s payout=%s", ErrInsufficientBalance, bet, payout)
	}

	prevAgent, prevCasino, prevNonce := ch.AgentBalance, ch.CasinoBalance, ch.Nonce
	ch.AgentBalance = newAgent
	ch.CasinoBalance = newCasino
	ch.Nonce = prevNonce + 1

	sig, err := ctx.Signer.SignState(ch.state())
	if err != nil {
		ch.AgentBalance = prevAgent
		ch.CasinoBalance = prevCasino
		ch.Nonce = prevNonce
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return &SignedState{
		AgentBalance:  new(big.Int).Set(ch.AgentBalance),
		CasinoBalance: new(big.Int).Set(ch.CasinoBalance),
		Nonce:         ch.Nonce,
		Signature:     sig,
	}, nil
}
