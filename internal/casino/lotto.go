package casino

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"agentcasino/internal/commitreveal"
)

// Lotto constants. The winning number is drawn from the casino seed
// committed at draw creation plus public entropy, so the draw is auditable
// after the fact.
const (
	lottoMinNumber        = 1
	lottoMaxNumber        = 100
	lottoPayoutMultiplier = 85

	MaxTicketsPerDraw   = 10
	DefaultDrawInterval = 6 * time.Hour
)

// Draw is one lotto round. Immutable once Drawn is set.
type Draw struct {
	ID            uint64
	CasinoSeed    string // secret until drawn
	Commitment    string
	DrawTime      time.Time
	Tickets       map[common.Address][]int
	TotalPool     *big.Int
	Drawn         bool
	WinningNumber int
	DrawnAt       time.Time
}

// DrawOutcome reports an executed draw: winners map to the winnings
// accrued to their unclaimed balance.
type DrawOutcome struct {
	DrawID        uint64
	WinningNumber int
	CasinoSeed    string
	Commitment    string
	Winners       map[common.Address]*big.Int
}

// Lotto holds draws and the unclaimed-winnings ledger. Winnings outlive
// channel close; they become claimable the next time the agent has an open
// channel.
type Lotto struct {
	mu          sync.Mutex
	ticketPrice *big.Int
	interval    time.Duration
	current     *Draw
	nextID      uint64
	unclaimed   map[common.Address]*big.Int
	now         func() time.Time
}

func NewLotto(ticketPrice *big.Int, interval time.Duration) (*Lotto, error) {
	if ticketPrice == nil || ticketPrice.Sign() <= 0 {
		return nil, fmt.Errorf("ticket price must be positive")
	}
	if interval <= 0 {
		interval = DefaultDrawInterval
	}
	l := &Lotto{
		ticketPrice: new(big.Int).Set(ticketPrice),
		interval:    interval,
		nextID:      1,
		unclaimed:   map[common.Address]*big.Int{},
		now:         time.Now,
	}
	if err := l.scheduleNext(l.now()); err != nil {
		return nil, err
	}
	return l, nil
}

func (*Lotto) Name() string         { return "lotto" }
func (*Lotto) DisplayName() string  { return "Lotto" }
func (*Lotto) MaxMultiplier() int64 { return lottoPayoutMultiplier }
func (*Lotto) RTP() float64 {
	return float64(lottoPayoutMultiplier) / float64(lottoMaxNumber)
}
func (*Lotto) Actions() []string { return []string{"buy", "claim", "status"} }

func (l *Lotto) HandleAction(action string, ch *Channel, params map[string]any, ctx *GameContext) (*ActionResult, error) {
	switch action {
	case "buy":
		return l.buy(ch, params, ctx)
	case "claim":
		return l.claim(ch, ctx)
	case "status":
		return l.status(ch), nil
	default:
		return nil, fmt.Errorf("%w: lotto_%s", ErrUnknownRoute, action)
	}
}

func (l *Lotto) buy(ch *Channel, params map[string]any, ctx *GameContext) (*ActionResult, error) {
	number, err := intParam(params, "number")
	if err != nil {
		return nil, err
	}
	if number < lottoMinNumber || number > lottoMaxNumber {
		return nil, fmt.Errorf("%w: %d", ErrBadPick, number)
	}
	count, err := intParam(params, "count")
	if err != nil {
		return nil, err
	}
	if count < 1 || count > MaxTicketsPerDraw {
		return nil, fmt.Errorf("%w: count %d", ErrTicketLimit, count)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	d := l.current
	if len(d.Tickets[ch.Agent])+count > MaxTicketsPerDraw {
		return nil, fmt.Errorf("%w: have %d, want %d more", ErrTicketLimit, len(d.Tickets[ch.Agent]), count)
	}

	cost := new(big.Int).Mul(l.ticketPrice, big.NewInt(int64(count)))
	if ch.AgentBalance.Cmp(cost) < 0 {
		return nil, fmt.Errorf("%w: balance=%s cost=%s", ErrInsufficientBalance, ch.AgentBalance, cost)
	}
	// Insurance against an unpayable jackpot: the house must be able to pay
	// out every ticket of this purchase at full multiplier.
	jackpot := new(big.Int).Mul(cost, big.NewInt(lottoPayoutMultiplier))
	if jackpot.Cmp(ch.CasinoBalance) > 0 {
		return nil, fmt.Errorf("%w: jackpot=%s casinoBalance=%s", ErrHouseCannotCover, jackpot, ch.CasinoBalance)
	}

	state, err := ctx.ApplyOutcome(ch, cost, new(big.Int))
	if err != nil {
		return nil, err
	}
	for i := 0; i < count; i++ {
		d.Tickets[ch.Agent] = append(d.Tickets[ch.Agent], number)
	}
	d.TotalPool.Add(d.TotalPool, cost)

	return &ActionResult{
		State: state,
		Record: &RoundRecord{
			Agent:  ch.Agent,
			Game:   l.Name(),
			Bet:    cost,
			Payout: new(big.Int),
			Won:    false,
			Details: map[string]any{
				"drawId":       d.ID,
				"pickedNumber": number,
				"ticketCount":  count,
			},
			Nonce:     state.Nonce,
			Timestamp: ctx.Now(),
		},
		Data: map[string]any{
			"drawId":     d.ID,
			"drawTime":   d.DrawTime,
			"commitment": d.Commitment,
			"tickets":    len(d.Tickets[ch.Agent]),
			"cost":       cost.String(),
		},
	}, nil
}

// claim moves as much of the agent's unclaimed winnings into the open
// channel as the house balance allows; any remainder stays unclaimed.
func (l *Lotto) claim(ch *Channel, ctx *GameContext) (*ActionResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, amount, err := l.applyWinningsLocked(ch, ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ErrNothingToClaim
	}
	return &ActionResult{
		State: state,
		Record: &RoundRecord{
			Agent:     ch.Agent,
			Game:      l.Name(),
			Bet:       new(big.Int),
			Payout:    amount,
			Won:       true,
			Details:   map[string]any{"claim": true},
			Nonce:     state.Nonce,
			Timestamp: ctx.Now(),
		},
		Data: map[string]any{
			"claimed":   amount.String(),
			"remaining": l.unclaimedLocked(ch.Agent).String(),
		},
	}, nil
}

func (l *Lotto) status(ch *Channel) *ActionResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	d := l.current
	data := map[string]any{
		"game":        l.Name(),
		"drawId":      d.ID,
		"drawTime":    d.DrawTime,
		"commitment":  d.Commitment,
		"totalPool":   d.TotalPool.String(),
		"ticketPrice": l.ticketPrice.String(),
	}
	if ch != nil {
		data["tickets"] = len(d.Tickets[ch.Agent])
		data["unclaimed"] = l.unclaimedLocked(ch.Agent).String()
	}
	return &ActionResult{Data: data}
}

// ExecuteDue runs every draw whose time has passed and schedules its
// successor. Winnings are accrued to the unclaimed ledger only; folding
// them into channels is the scheduler's second step.
func (l *Lotto) ExecuteDue(now time.Time) ([]*DrawOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var outcomes []*DrawOutcome
	for !l.current.Drawn && !l.current.DrawTime.After(now) {
		out := l.executeLocked(l.current, now)
		outcomes = append(outcomes, out)
		if err := l.scheduleNext(l.current.DrawTime); err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

func (l *Lotto) executeLocked(d *Draw, now time.Time) *DrawOutcome {
	// Public entropy: agent count and total pool, both observable by every
	// ticket holder before the draw.
	entropy := fmt.Sprintf("%d:%s", len(d.Tickets), d.TotalPool.String())
	res := commitreveal.ComputeResult(d.CasinoSeed, entropy, d.ID)
	winning := int(binary.BigEndian.Uint32(res.Hash[0:4])%lottoMaxNumber) + 1

	out := &DrawOutcome{
		DrawID:        d.ID,
		WinningNumber: winning,
		CasinoSeed:    d.CasinoSeed,
		Commitment:    d.Commitment,
		Winners:       map[common.Address]*big.Int{},
	}
	for agent, picks := range d.Tickets {
		matches := 0
		for _, n := range picks {
			if n == winning {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		payout := new(big.Int).Mul(l.ticketPrice, big.NewInt(int64(lottoPayoutMultiplier*matches)))
		out.Winners[agent] = payout
		l.creditUnclaimedLocked(agent, payout)
	}

	d.Drawn = true
	d.WinningNumber = winning
	d.DrawnAt = now
	return out
}

func (l *Lotto) scheduleNext(after time.Time) error {
	seed, commitment, err := commitreveal.Commit()
	if err != nil {
		return fmt.Errorf("schedule draw: %w", err)
	}
	l.current = &Draw{
		ID:         l.nextID,
		CasinoSeed: seed,
		Commitment: commitment,
		DrawTime:   after.Add(l.interval),
		Tickets:    map[common.Address][]int{},
		TotalPool:  new(big.Int),
	}
	l.nextID++
	return nil
}

// ApplyWinnings folds up to casinoBalance of the agent's unclaimed
// winnings into their open channel, preserving conservation and bumping
// the nonce exactly once. Returns a nil state when there is nothing to
// apply.
func (l *Lotto) ApplyWinnings(ch *Channel, ctx *GameContext) (*SignedState, *big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyWinningsLocked(ch, ctx)
}

func (l *Lotto) applyWinningsLocked(ch *Channel, ctx *GameContext) (*SignedState, *big.Int, error) {
	pending := l.unclaimedLocked(ch.Agent)
	if pending.Sign() == 0 {
		return nil, nil, nil
	}
	amount := new(big.Int).Set(pending)
	if amount.Cmp(ch.CasinoBalance) > 0 {
		amount.Set(ch.CasinoBalance)
	}
	if amount.Sign() == 0 {
		return nil, nil, nil
	}
	state, err := ctx.ApplyOutcome(ch, new(big.Int), amount)
	if err != nil {
		return nil, nil, err
	}
	l.unclaimed[ch.Agent] = pending.Sub(pending, amount)
	return state, amount, nil
}

// Unclaimed returns a copy of the agent's unclaimed winnings.
func (l *Lotto) Unclaimed(agent common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.unclaimedLocked(agent))
}

// AgentsWithWinnings lists agents with a positive unclaimed balance.
func (l *Lotto) AgentsWithWinnings() []common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()

	var agents []common.Address
	for agent, amount := range l.unclaimed {
		if amount.Sign() > 0 {
			agents = append(agents, agent)
		}
	}
	return agents
}

// CurrentDraw returns a shallow copy of the open draw's public fields.
func (l *Lotto) CurrentDraw() Draw {
	l.mu.Lock()
	defer l.mu.Unlock()

	d := *l.current
	d.CasinoSeed = "" // secret until drawn
	d.TotalPool = new(big.Int).Set(l.current.TotalPool)
	return d
}

func (l *Lotto) unclaimedLocked(agent common.Address) *big.Int {
	if n, ok := l.unclaimed[agent]; ok {
		return n
	}
	n := new(big.Int)
	l.unclaimed[agent] = n
	return n
}

func (l *Lotto) creditUnclaimedLocked(agent common.Address, amount *big.Int) {
	l.unclaimedLocked(agent).Add(l.unclaimedLocked(agent), amount)
}

func intParam(params map[string]any, key string) (int, error) {
	raw, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("non-integral %s: %v", key, v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("unsupported %s type %T", key, raw)
	}
}
