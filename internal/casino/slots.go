package casino

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"agentcasino/internal/commitreveal"
)

// Slots: three reels drawn from one commit-reveal hash. Weights sum to 100
// and map a roll mod 100 into a symbol index; a triple pays the symbol's
// multiplier, anything else pays nothing.
var (
	slotSymbols = [5]string{"cherry", "lemon", "bell", "bar", "seven"}
	slotWeights = [5]int{30, 25, 20, 15, 10}
	slotPayouts = [5]int64{5, 10, 25, 50, 290}
)

type Slots struct{}

func NewSlots() *Slots { return &Slots{} }

func (*Slots) Name() string        { return "slots" }
func (*Slots) DisplayName() string { return "Slots" }
func (*Slots) MaxMultiplier() int64 {
	return slotPayouts[len(slotPayouts)-1]
}

// RTP: sum over symbols of (w/100)^3 * payout.
func (*Slots) RTP() float64 {
	rtp := 0.0
	for i, w := range slotWeights {
		p := float64(w) / 100
		rtp += p * p * p * float64(slotPayouts[i])
	}
	return rtp
}

func (*Slots) Actions() []string { return []string{"commit", "reveal", "status"} }

func (g *Slots) HandleAction(action string, ch *Channel, params map[string]any, ctx *GameContext) (*ActionResult, error) {
	switch action {
	case "commit":
		return g.commit(ch, params, ctx)
	case "reveal":
		return g.reveal(ch, params, ctx)
	case "status":
		return &ActionResult{Data: map[string]any{
			"game":    g.Name(),
			"rtp":     g.RTP(),
			"payouts": slotPayouts,
		}}, nil
	default:
		return nil, fmt.Errorf("%w: slots_%s", ErrUnknownRoute, action)
	}
}

func (g *Slots) commit(ch *Channel, params map[string]any, ctx *GameContext) (*ActionResult, error) {
	bet, err := betParam(params)
	if err != nil {
		return nil, err
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
	}); err != nil {
		return nil, err
	}
	return &ActionResult{Data: map[string]any{
		"commitment": commitment,
		"bet":        bet.String(),
	}}, nil
}

func (g *Slots) reveal(ch *Channel, params map[string]any, ctx *GameContext) (*ActionResult, error) {
	agentSeed, _ := params["agentSeed"].(string)
	if agentSeed == "" {
		return nil, fmt.Errorf("missing agentSeed")
	}
	pc, err := ctx.Pending.Take(ch.Agent, g.Name())
	if err != nil {
		return nil, err
	}
	// R1: the balance may have moved since commit (parallel games, claims).
	if ch.AgentBalance.Cmp(pc.Bet) < 0 {
		return nil, fmt.Errorf("%w: balance=%s bet=%s at reveal", ErrInsufficientBalance, ch.AgentBalance, pc.Bet)
	}

	res := commitreveal.ComputeResult(pc.CasinoSeed, agentSeed, ch.Nonce)
	reels := [3]int{
		slotIndex(binary.BigEndian.Uint32(res.Hash[0:4]) % 100),
		slotIndex(binary.BigEndian.Uint32(res.Hash[4:8]) % 100),
		slotIndex(binary.BigEndian.Uint32(res.Hash[8:12]) % 100),
	}

	payout := new(big.Int)
	won := reels[0] == reels[1] && reels[1] == reels[2]
	if won {
		payout.Mul(pc.Bet, big.NewInt(slotPayouts[reels[0]]))
		if payout.Cmp(ch.CasinoBalance) > 0 {
			payout.Set(ch.CasinoBalance)
		}
	}

	state, err := ctx.ApplyOutcome(ch, pc.Bet, payout)
	if err != nil {
		return nil, err
	}
	symbols := [3]string{slotSymbols[reels[0]], slotSymbols[reels[1]], slotSymbols[reels[2]]}
	return &ActionResult{
		State: state,
		Record: &RoundRecord{
			Agent:  ch.Agent,
			Game:   g.Name(),
			Bet:    new(big.Int).Set(pc.Bet),
			Payout: new(big.Int).Set(payout),
			Won:    won,
			Details: map[string]any{
				"reels": symbols,
			},
			Nonce:     state.Nonce,
			Timestamp: ctx.Now(),
		},
		Data: map[string]any{
			"reels":  symbols,
			"won":    won,
			"payout": payout.String(),
			"proof":  res.Proof,
		},
	}, nil
}

// slotIndex maps a roll in [0, 100) through the cumulative weight vector.
func slotIndex(roll uint32) int {
	acc := uint32(0)
	for i, w := range slotWeights {
		acc += uint32(w)
		if roll < acc {
			return i
		}
	}
	return len(slotWeights) - 1
}

func betParam(params map[string]any) (*big.Int, error) {
	raw, ok := params["bet"]
	if !ok {
		return nil, ErrBetNotPositive
	}
	switch v := raw.(type) {
	case *big.Int:
		return v, nil
	case string:
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrBetNotPositive, v)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("%w: unsupported bet type %T", ErrBetNotPositive, raw)
	}
}
