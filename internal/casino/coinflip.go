package casino

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"agentcasino/internal/commitreveal"
)

// Coinflip pays 19/10 of the bet on a win, integer division. For a 1-wei
// bet that truncates to 1 wei, so the smallest unit is a pure house edge;
// micro-bets are accepted anyway because the settlement layer cannot
// verify a minimum-bet policy.
const (
	coinflipPayoutNum = 19
	coinflipPayoutDen = 10
)

type Coinflip struct{}

func NewCoinflip() *Coinflip { return &Coinflip{} }

func (*Coinflip) Name() string         { return "coinflip" }
func (*Coinflip) DisplayName() string  { return "Coinflip" }
func (*Coinflip) MaxMultiplier() int64 { return 2 }
func (*Coinflip) RTP() float64 {
	return 0.5 * float64(coinflipPayoutNum) / float64(coinflipPayoutDen)
}
func (*Coinflip) Actions() []string { return []string{"commit", "reveal", "status"} }

func (g *Coinflip) HandleAction(action string, ch *Channel, params map[string]any, ctx *GameContext) (*ActionResult, error) {
	switch action {
	case "commit":
		return g.commit(ch, params, ctx)
	case "reveal":
		return g.reveal(ch, params, ctx)
	case "status":
		return &ActionResult{Data: map[string]any{
			"game": g.Name(),
			"rtp":  g.RTP(),
		}}, nil
	default:
		return nil, fmt.Errorf("%w: coinflip_%s", ErrUnknownRoute, action)
	}
}

func (g *Coinflip) commit(ch *Channel, params map[string]any, ctx *GameContext) (*ActionResult, error) {
	bet, err := betParam(params)
	if err != nil {
		return nil, err
	}
	choice, _ := params["choice"].(string)
	if choice != "heads" && choice != "tails" {
		return nil, fmt.Errorf("%w: %q", ErrBadChoice, choice)
	}
	if err := ValidateBet(ch, bet, g.MaxMultiplier()); err != nil {
		return nil, err
	}
	seed, commitment, err := commitreveal.Commit()
	if err != nil {
		return nil, err
	}
	if err := ctx.Pending.Put(ch.Agent, g.Name(), &PendingCommit{
		CasinoSeed: seed,
		Commitment: commitment,
		Bet:        bet,
		Choice:     choice,
	}); err != nil {
		return nil, err
	}
	return &ActionResult{Data: map[string]any{
		"commitment": commitment,
		"bet":        bet.String(),
		"choice":     choice,
	}}, nil
}

func (g *Coinflip) reveal(ch *Channel, params map[string]any, ctx *GameContext) (*ActionResult, error) {
	agentSeed, _ := params["agentSeed"].(string)
	if agentSeed == "" {
		return nil, fmt.Errorf("missing agentSeed")
	}
	pc, err := ctx.Pending.Take(ch.Agent, g.Name())
	if err != nil {
		return nil, err
	}
	if ch.AgentBalance.Cmp(pc.Bet) < 0 {
		return nil, fmt.Errorf("%w: balance=%s bet=%s at reveal", ErrInsufficientBalance, ch.AgentBalance, pc.Bet)
	}

	res := commitreveal.ComputeResult(pc.CasinoSeed, agentSeed, ch.Nonce)
	result := "tails"
	if binary.BigEndian.Uint32(res.Hash[0:4])%2 == 0 {
		result = "heads"
	}

	payout := new(big.Int)
	won := result == pc.Choice
	if won {
		payout.Mul(pc.Bet, big.NewInt(coinflipPayoutNum))
		payout.Div(payout, big.NewInt(coinflipPayoutDen))
		// The house may pay out at most its collateral plus the bet it is
		// simultaneously winning back.
		cap := new(big.Int).Add(ch.CasinoBalance, pc.Bet)
		if payout.Cmp(cap) > 0 {
			payout.Set(cap)
		}
	}

	state, err := ctx.ApplyOutcome(ch, pc.Bet, payout)
	if err != nil {
		return nil, err
	}
	return &ActionResult{
		State: state,
		Record: &RoundRecord{
			Agent:  ch.Agent,
			Game:   g.Name(),
			Bet:    new(big.Int).Set(pc.Bet),
			Payout: new(big.Int).Set(payout),
			Won:    won,
			Details: map[string]any{
				"choice": pc.Choice,
				"result": result,
			},
			Nonce:     state.Nonce,
			Timestamp: ctx.Now(),
		},
		Data: map[string]any{
			"choice": pc.Choice,
			"result": result,
			"won":    won,
			"payout": payout.String(),
			"proof":  res.Proof,
		},
	}, nil
}
