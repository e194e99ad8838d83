package casino

import (
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"agentcasino/internal/bankroll"
	"agentcasino/internal/signer"
)

// Config tunes the off-chain engine.
type Config struct {
	MaxChannels   int
	CommitTimeout time.Duration
	TicketPrice   *big.Int
	DrawInterval  time.Duration
	BusDepth      int
}

// sanitize fills defaults the way the payment-channel configs do.
func (c Config) sanitize() Config {
	if c.MaxChannels <= 0 {
		c.MaxChannels = 1000
	}
	if c.CommitTimeout <= 0 {
		c.CommitTimeout = DefaultCommitTimeout
	}
	if c.TicketPrice == nil || c.TicketPrice.Sign() <= 0 {
		c.TicketPrice = big.NewInt(1e15) // 0.001 ether
	}
	if c.DrawInterval <= 0 {
		c.DrawInterval = DefaultDrawInterval
	}
	return c
}

type route struct {
	game   Game
	action string
}

// Engine owns the in-memory channel table and serializes every channel
// operation behind one mutex. Per-channel ordering is therefore total; the
// pending-commit store and lotto ledger carry their own locks because they
// are also reachable from the scheduler.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	signer   signer.Signer
	guard    *bankroll.Guard
	pending  *PendingStore
	lotto    *Lotto
	games    map[string]Game
	routes   map[string]route
	channels map[common.Address]*Channel
	bus      *Bus
	log      *zap.Logger
	now      func() time.Time
}

// New wires an engine with the three built-in games registered.
func New(cfg Config, sgn signer.Signer, guard *bankroll.Guard, log *zap.Logger) (*Engine, error) {
	cfg = cfg.sanitize()
	if log == nil {
		log = zap.NewNop()
	}
	lotto, err := NewLotto(cfg.TicketPrice, cfg.DrawInterval)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:      cfg,
		signer:   sgn,
		guard:    guard,
		pending:  NewPendingStore(cfg.CommitTimeout),
		lotto:    lotto,
		games:    map[string]Game{},
		routes:   map[string]route{},
		channels: map[common.Address]*Channel{},
		bus:      NewBus(cfg.BusDepth),
		log:      log,
		now:      time.Now,
	}
	for _, g := range []Game{NewSlots(), NewCoinflip(), lotto} {
		if err := e.Register(g); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Register adds a game and its "<game>_<action>" routes.
func (e *Engine) Register(g Game) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.games[g.Name()]; ok {
		return fmt.Errorf("game %q already registered", g.Name())
	}
	e.games[g.Name()] = g
	for _, action := range g.Actions() {
		e.routes[g.Name()+"_"+action] = route{game: g, action: action}
	}
	return nil
}

// OpenChannel mirrors a funded on-chain channel in memory. Balances start
// equal to deposits and the nonce at zero.
func (e *Engine) OpenChannel(agent common.Address, agentDeposit, casinoDeposit *big.Int) (Snapshot, error) {
	if agentDeposit == nil || agentDeposit.Sign() < 0 || casinoDeposit == nil || casinoDeposit.Sign() < 0 {
		return Snapshot{}, fmt.Errorf("deposits must be non-negative")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.channels[agent]; ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrChannelExists, agent.Hex())
	}
	if len(e.channels) >= e.cfg.MaxChannels {
		return Snapshot{}, fmt.Errorf("%w: %d", ErrMaxChannels, e.cfg.MaxChannels)
	}
	if err := e.guard.Lock(casinoDeposit); err != nil {
		return Snapshot{}, err
	}

	ch := newChannel(agent, agentDeposit, casinoDeposit, e.now())
	e.channels[agent] = ch

	channelsOpenedTotal.Inc()
	e.publish("channel_opened", "", agent, ch.snapshot())
	e.log.Info("channel opened",
		zap.String("agent", agent.Hex()),
		zap.String("agentDeposit", agentDeposit.String()),
		zap.String("casinoDeposit", casinoDeposit.String()))
	return ch.snapshot(), nil
}

// StatusReport answers channel_status queries; InvariantOK is recomputed,
// not cached.
type StatusReport struct {
	Status        string
	AgentBalance  *big.Int
	CasinoBalance *big.Int
	Nonce         uint64
	GamesPlayed   int
	InvariantOK   bool
}

func (e *Engine) Status(agent common.Address) (StatusReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch, ok := e.channels[agent]
	if !ok {
		return StatusReport{}, fmt.Errorf("%w: %s", ErrChannelNotFound, agent.Hex())
	}
	return StatusReport{
		Status:        "open",
		AgentBalance:  new(big.Int).Set(ch.AgentBalance),
		CasinoBalance: new(big.Int).Set(ch.CasinoBalance),
		Nonce:         ch.Nonce,
		GamesPlayed:   len(ch.Games),
		InvariantOK:   ch.InvariantOK(),
	}, nil
}

// HandleAction routes "<game>_<action>" to the registered game. Info
// actions run without a channel; everything else requires one.
func (e *Engine) HandleAction(routeName string, agent common.Address, params map[string]any) (*ActionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.routes[routeName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoute, routeName)
	}

	ch := e.channels[agent]
	if ch == nil && !infoActions[r.action] {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, agent.Hex())
	}

	res, err := r.game.HandleAction(r.action, ch, params, e.gameContext())
	if err != nil {
		return nil, err
	}
	if res.Record != nil {
		ch.Games = append(ch.Games, *res.Record)
		roundsSettledTotal.WithLabelValues(r.game.Name(), strconv.FormatBool(res.Record.Won)).Inc()
		wageredEtherTotal.Add(etherFloat(res.Record.Bet))
		paidEtherTotal.Add(etherFloat(res.Record.Payout))
		e.publish("round", routeName, agent, *res.Record)
	}
	return res, nil
}

// CloseResult is the final signed state handed to the agent for on-chain
// settlement.
type CloseResult struct {
	AgentBalance  *big.Int
	CasinoBalance *big.Int
	Nonce         uint64
	Signature     []byte
	TotalGames    int
}

// CloseChannel recomputes conservation before signing anything. A failed
// invariant is a code bug, not a protocol event: the close is refused and
// the diagnostic surfaced.
func (e *Engine) CloseChannel(agent common.Address) (*CloseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch, ok := e.channels[agent]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, agent.Hex())
	}
	if !ch.InvariantOK() {
		return nil, fmt.Errorf("%w: agent=%s balances %s+%s != deposits %s+%s",
			ErrInvariantViolation, agent.Hex(),
			ch.AgentBalance, ch.CasinoBalance, ch.AgentDeposit, ch.CasinoDeposit)
	}

	sig, err := e.signer.SignState(ch.state())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}

	res := &CloseResult{
		AgentBalance:  new(big.Int).Set(ch.AgentBalance),
		CasinoBalance: new(big.Int).Set(ch.CasinoBalance),
		Nonce:         ch.Nonce,
		Signature:     sig,
		TotalGames:    len(ch.Games),
	}

	if err := e.guard.Unlock(ch.CasinoDeposit); err != nil {
		// The deposit was locked at open; failing here means the guard and
		// table disagree, which is as fatal as a conservation failure.
		return nil, fmt.Errorf("%w: unlock: %v", ErrInvariantViolation, err)
	}
	delete(e.channels, agent)
	e.pending.Drop(agent, "slots")
	e.pending.Drop(agent, "coinflip")

	channelsClosedTotal.WithLabelValues("cooperative").Inc()
	e.publish("channel_closed", "", agent, res)
	e.log.Info("channel closed",
		zap.String("agent", agent.Hex()),
		zap.Uint64("nonce", res.Nonce),
		zap.Int("games", res.TotalGames))
	return res, nil
}

// RunScheduled executes due lotto draws and folds winnings into channels
// that are still open. Its effect on a channel is indistinguishable from a
// normal mutation.
func (e *Engine) RunScheduled() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	outcomes, err := e.lotto.ExecuteDue(e.now())
	if err != nil {
		return err
	}
	for _, out := range outcomes {
		e.publish("draw_executed", "lotto", common.Address{}, out)
		e.log.Info("lotto draw executed",
			zap.Uint64("drawId", out.DrawID),
			zap.Int("winningNumber", out.WinningNumber),
			zap.Int("winners", len(out.Winners)))
	}

	for _, agent := range e.lotto.AgentsWithWinnings() {
		ch, ok := e.channels[agent]
		if !ok {
			continue // stays unclaimed until the agent opens again
		}
		state, amount, err := e.lotto.ApplyWinnings(ch, e.gameContext())
		if err != nil {
			e.log.Warn("apply winnings failed",
				zap.String("agent", agent.Hex()), zap.Error(err))
			continue
		}
		if state == nil {
			continue
		}
		rec := RoundRecord{
			Agent:     agent,
			Game:      "lotto",
			Bet:       new(big.Int),
			Payout:    amount,
			Won:       true,
			Details:   map[string]any{"applyWinnings": true},
			Nonce:     state.Nonce,
			Timestamp: e.now(),
		}
		ch.Games = append(ch.Games, rec)
		e.publish("round", "lotto_apply_winnings", agent, rec)
	}
	return nil
}

// Lotto exposes the lotto ledger for the wire handler and tests.
func (e *Engine) Lotto() *Lotto { return e.lotto }

// Events exposes the engine's event bus.
func (e *Engine) Events() *Bus { return e.bus }

// Games returns the registered game set, keyed by name.
func (e *Engine) Games() map[string]Game {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]Game, len(e.games))
	for k, v := range e.games {
		out[k] = v
	}
	return out
}

func (e *Engine) gameContext() *GameContext {
	return &GameContext{
		Signer:  e.signer,
		Pending: e.pending,
		Now:     e.now,
	}
}

func (e *Engine) publish(typ, action string, agent common.Address, result any) {
	ev := Event{TS: e.now(), Type: typ, Action: action, Result: result}
	if agent != (common.Address{}) {
		ev.Agent = agent.Hex()
	}
	e.bus.Publish(ev)
}
