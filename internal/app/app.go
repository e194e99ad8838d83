// Package app is the ABCI settlement application. It enforces escrow,
// dispute and treasury rules over channel states signed off-chain: anyone
// may submit a co-signed state, but only states whose signature recovers to
// the casino account settle funds.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"

	"agentcasino/internal/codec"
	"agentcasino/internal/signer"
	"agentcasino/internal/state"
)

const (
	AppVersion uint64 = 1

	// Timelocks and windows in seconds of block time.
	ChallengePeriodSecs    int64 = 24 * 3600
	MinChannelDurationSecs int64 = 3600
	HandoverTimelockSecs   int64 = 2 * 24 * 3600
	InsuranceTimelockSecs  int64 = 3 * 24 * 3600

	// Skim applied to house profit at settlement, in basis points.
	InsuranceBps int64 = 1000
)

// Tx result codes by failure class.
const (
	codeOK         uint32 = 0
	codeValidation uint32 = 1
	codePolicy     uint32 = 2
	codeLiveness   uint32 = 3
	codeIntegrity  uint32 = 4
	codeCrypto     uint32 = 5
)

var (
	// Agent deposit bounds: 0.001 to 10 ether.
	MinDeposit = big.NewInt(params.Ether / 1000)
	MaxDeposit = new(big.Int).Mul(big.NewInt(10), big.NewInt(params.Ether))
)

// Config fixes the genesis casino account, the bankroll exposure cap and
// the EIP-712 domain the app verifies signatures against.
type Config struct {
	Casino      common.Address
	MaxExposure *big.Int
	ChainID     *big.Int
	Contract    common.Address
}

type App struct {
	*abci.BaseApplication

	home   string
	domain signer.Domain

	mu       sync.Mutex
	st       *state.State
	lastHash []byte
}

func New(home string, cfg Config) (*App, error) {
	appHome := filepath.Join(home, "app")
	st, err := state.Load(appHome)
	if err != nil {
		return nil, err
	}
	if st.Casino == (common.Address{}) {
		st.Casino = cfg.Casino
	}
	if st.Bankroll.MaxExposure.Sign() == 0 && cfg.MaxExposure != nil {
		st.Bankroll.MaxExposure = new(big.Int).Set(cfg.MaxExposure)
	}
	a := &App{
		BaseApplication: abci.NewBaseApplication(),
		home:            home,
		domain:          signer.Domain{ChainID: cfg.ChainID, VerifyingContract: cfg.Contract},
		st:              st,
		lastHash:        st.AppHash(),
	}
	return a, nil
}

func (a *App) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "agentcasino settlement (v0)",
		Version:          "v0",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.st.Height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

func (a *App) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	_, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return &abci.CheckTxResponse{Code: codeValidation, Log: err.Error()}, nil
	}
	// Structural validation only; stateful checks run at FinalizeBlock.
	return &abci.CheckTxResponse{Code: codeOK}, nil
}

func (a *App) InitChain(_ context.Context, _ *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	return &abci.InitChainResponse{}, nil
}

func (a *App) FinalizeBlock(_ context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.st.Height = req.Height
	now := req.Time.Unix()

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for _, txBytes := range req.Txs {
		txResults = append(txResults, a.deliverTx(txBytes, now))
	}

	a.lastHash = a.st.AppHash()

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

func (a *App) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	// Persist after each block for devnet durability.
	appHome := filepath.Join(a.home, "app")
	if err := a.st.Save(appHome); err != nil {
		// CometBFT expects Commit to not crash; return error so node halts loudly.
		return nil, err
	}
	return &abci.CommitResponse{}, nil
}

func (a *App) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	path := strings.TrimSpace(req.Path)
	switch {
	case path == "/channels":
		agents := make([]string, 0, len(a.st.Channels))
		for k := range a.st.Channels {
			agents = append(agents, k)
		}
		sort.Strings(agents)
		b, _ := json.Marshal(agents)
		return &abci.QueryResponse{Code: codeOK, Value: b, Height: a.st.Height}, nil

	case path == "/casino":
		b, _ := json.Marshal(map[string]any{
			"casino":          a.st.Casino.Hex(),
			"pendingHandover": a.st.PendingHandover,
		})
		return &abci.QueryResponse{Code: codeOK, Value: b, Height: a.st.Height}, nil

	case path == "/bankroll":
		b, _ := json.Marshal(a.st.Bankroll)
		return &abci.QueryResponse{Code: codeOK, Value: b, Height: a.st.Height}, nil

	case path == "/insurance":
		b, _ := json.Marshal(a.st.Insurance)
		return &abci.QueryResponse{Code: codeOK, Value: b, Height: a.st.Height}, nil

	case strings.HasPrefix(path, "/account/"):
		addr, ok := parseAddr(strings.TrimPrefix(path, "/account/"))
		if !ok {
			return &abci.QueryResponse{Code: codeValidation, Log: "invalid address", Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(map[string]any{"addr": addr.Hex(), "balance": a.st.Balance(addr)})
		return &abci.QueryResponse{Code: codeOK, Value: b, Height: a.st.Height}, nil

	case strings.HasPrefix(path, "/pending/"):
		addr, ok := parseAddr(strings.TrimPrefix(path, "/pending/"))
		if !ok {
			return &abci.QueryResponse{Code: codeValidation, Log: "invalid address", Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(map[string]any{"addr": addr.Hex(), "pending": a.st.PendingWithdrawal(addr)})
		return &abci.QueryResponse{Code: codeOK, Value: b, Height: a.st.Height}, nil

	case strings.HasPrefix(path, "/channel/"):
		addr, ok := parseAddr(strings.TrimPrefix(path, "/channel/"))
		if !ok {
			return &abci.QueryResponse{Code: codeValidation, Log: "invalid address", Height: a.st.Height}, nil
		}
		ch := a.st.Channel(addr)
		if ch == nil {
			return &abci.QueryResponse{Code: codeValidation, Log: "channel not found", Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(ch)
		return &abci.QueryResponse{Code: codeOK, Value: b, Height: a.st.Height}, nil

	default:
		return &abci.QueryResponse{Code: codeValidation, Log: "unknown query path", Height: a.st.Height}, nil
	}
}

func (a *App) deliverTx(txBytes []byte, now int64) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return errTx(codeValidation, err.Error())
	}

	switch env.Type {
	case "bank/mint":
		var msg codec.BankMintTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return errTx(codeValidation, "bad bank/mint value")
		}
		to, ok := parseAddr(msg.To)
		if !ok || !positive(msg.Amount) {
			return errTx(codeValidation, "missing to/amount")
		}
		a.st.Credit(to, msg.Amount)
		return okEvent("BankMinted", map[string]string{
			"to":     to.Hex(),
			"amount": msg.Amount.String(),
		})

	case "bank/send":
		var msg codec.BankSendTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return errTx(codeValidation, "bad bank/send value")
		}
		from, okFrom := parseAddr(msg.From)
		to, okTo := parseAddr(msg.To)
		if !okFrom || !okTo || !positive(msg.Amount) {
			return errTx(codeValidation, "missing from/to/amount")
		}
		if err := a.st.Debit(from, msg.Amount); err != nil {
			return errTx(codeValidation, err.Error())
		}
		a.st.Credit(to, msg.Amount)
		return okEvent("BankSent", map[string]string{
			"from":   from.Hex(),
			"to":     to.Hex(),
			"amount": msg.Amount.String(),
		})

	case "bank/set_reject_push":
		var msg codec.BankSetRejectPushTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return errTx(codeValidation, "bad bank/set_reject_push value")
		}
		addr, ok := parseAddr(msg.Account)
		if !ok {
			return errTx(codeValidation, "missing account")
		}
		if msg.Reject {
			a.st.RejectPush[addr.Hex()] = true
		} else {
			delete(a.st.RejectPush, addr.Hex())
		}
		return okEvent("PayoutModeSet", map[string]string{
			"account": addr.Hex(),
			"reject":  fmt.Sprintf("%t", msg.Reject),
		})

	case "channel/open":
		return a.openChannel(env, now)
	case "channel/fund_casino":
		return a.fundCasino(env)
	case "channel/close":
		return a.closeChannel(env)
	case "channel/challenge":
		return a.challenge(env, now)
	case "channel/counter_challenge":
		return a.counterChallenge(env, now)
	case "channel/resolve":
		return a.resolve(env, now)
	case "channel/emergency_exit":
		return a.emergencyExit(env, now)
	case "channel/withdraw_pending":
		return a.withdrawPending(env)

	case "casino/transfer":
		return a.casinoTransfer(env, now)
	case "casino/accept":
		return a.casinoAccept(env, now)
	case "casino/cancel_transfer":
		return a.casinoCancelTransfer(env)

	case "insurance/request_withdrawal":
		return a.insuranceRequest(env, now)
	case "insurance/execute_withdrawal":
		return a.insuranceExecute(env, now)
	case "insurance/cancel_withdrawal":
		return a.insuranceCancel(env)

	default:
		return errTx(codeValidation, "unknown tx type: "+env.Type)
	}
}

// ---- Channel lifecycle ----

func (a *App) openChannel(env codec.TxEnvelope, now int64) *abci.ExecTxResult {
	var msg codec.ChannelOpenTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return errTx(codeValidation, "bad channel/open value")
	}
	agent, ok := parseAddr(msg.Agent)
	if !ok || !positive(msg.Amount) {
		return errTx(codeValidation, "missing agent/amount")
	}
	if msg.Amount.Cmp(MinDeposit) < 0 || msg.Amount.Cmp(MaxDeposit) > 0 {
		return errTx(codeValidation, fmt.Sprintf("deposit out of range: %s", msg.Amount))
	}
	if a.st.Channel(agent) != nil {
		return errTx(codePolicy, "channel already open for agent")
	}
	if err := a.st.Debit(agent, msg.Amount); err != nil {
		return errTx(codeValidation, err.Error())
	}
	a.st.PutChannel(&state.Channel{
		Agent:         agent,
		AgentDeposit:  new(big.Int).Set(msg.Amount),
		CasinoDeposit: new(big.Int),
		AgentBalance:  new(big.Int).Set(msg.Amount),
		CasinoBalance: new(big.Int),
		Status:        state.StatusOpen,
		OpenedAt:      now,
	})
	return okEvent("ChannelOpened", map[string]string{
		"agent":   agent.Hex(),
		"deposit": msg.Amount.String(),
	})
}

func (a *App) fundCasino(env codec.TxEnvelope) *abci.ExecTxResult {
	casino, res := a.requireCasino(env)
	if res != nil {
		return res
	}
	var msg codec.ChannelFundCasinoTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return errTx(codeValidation, "bad channel/fund_casino value")
	}
	agent, ok := parseAddr(msg.Agent)
	if !ok || !positive(msg.Amount) {
		return errTx(codeValidation, "missing agent/amount")
	}
	ch := a.st.Channel(agent)
	if ch == nil {
		return errTx(codeValidation, "channel not found")
	}
	if ch.Status != state.StatusOpen {
		return errTx(codePolicy, "channel not open")
	}
	if err := a.st.Bankroll.Lock(msg.Amount); err != nil {
		return errTx(codePolicy, err.Error())
	}
	if err := a.st.Debit(casino, msg.Amount); err != nil {
		// Undo the lock; debit failed after the exposure check.
		_ = a.st.Bankroll.Unlock(msg.Amount)
		return errTx(codeValidation, err.Error())
	}
	ch.CasinoDeposit = new(big.Int).Add(ch.CasinoDeposit, msg.Amount)
	ch.CasinoBalance = new(big.Int).Add(ch.CasinoBalance, msg.Amount)
	return okEvent("CasinoFunded", map[string]string{
		"agent":       agent.Hex(),
		"amount":      msg.Amount.String(),
		"totalLocked": a.st.Bankroll.TotalLocked.String(),
	})
}

// checkSignedState validates a submitted co-signed state against the stored
// channel: conservation, non-negative balances and a signature recovering
// to the casino account.
func (a *App) checkSignedState(ch *state.Channel, msg codec.SignedStateTx) *abci.ExecTxResult {
	if msg.AgentBalance == nil || msg.CasinoBalance == nil {
		return errTx(codeValidation, "missing balances")
	}
	if msg.AgentBalance.Sign() < 0 || msg.CasinoBalance.Sign() < 0 {
		return errTx(codeIntegrity, "negative balance")
	}
	total := new(big.Int).Add(msg.AgentBalance, msg.CasinoBalance)
	deposits := new(big.Int).Add(ch.AgentDeposit, ch.CasinoDeposit)
	if total.Cmp(deposits) != 0 {
		return errTx(codeIntegrity, fmt.Sprintf("balances %s do not match deposits %s", total, deposits))
	}
	recovered, err := signer.RecoverState(a.domain, signer.ChannelState{
		Agent:         ch.Agent,
		AgentBalance:  msg.AgentBalance,
		CasinoBalance: msg.CasinoBalance,
		Nonce:         msg.Nonce,
	}, msg.Signature)
	if err != nil {
		return errTx(codeCrypto, err.Error())
	}
	if recovered != a.st.Casino {
		return errTx(codeCrypto, "signature does not recover to casino account")
	}
	return nil
}

// settle closes the books on a channel: skims insurance from house profit,
// releases the bankroll lock, deletes the record, then pays out. Deleting
// before paying keeps reentrant submissions from seeing a live channel.
func (a *App) settle(ch *state.Channel, agentBal, casinoBal *big.Int, reason string) *abci.ExecTxResult {
	skim := new(big.Int)
	profit := new(big.Int).Sub(casinoBal, ch.CasinoDeposit)
	if profit.Sign() > 0 {
		skim.Div(new(big.Int).Mul(profit, big.NewInt(InsuranceBps)), big.NewInt(10000))
	}
	casinoPay := new(big.Int).Sub(casinoBal, skim)

	if err := a.st.Bankroll.Unlock(ch.CasinoDeposit); err != nil {
		return errTx(codeIntegrity, err.Error())
	}
	a.st.DeleteChannel(ch.Agent)
	a.st.Insurance.Balance = new(big.Int).Add(a.st.Insurance.Balance, skim)

	agentDeferred := a.st.Payout(ch.Agent, agentBal)
	casinoDeferred := a.st.Payout(a.st.Casino, casinoPay)

	return okEvent("ChannelClosed", map[string]string{
		"agent":          ch.Agent.Hex(),
		"reason":         reason,
		"agentPayout":    agentBal.String(),
		"casinoPayout":   casinoPay.String(),
		"insurance":      skim.String(),
		"agentDeferred":  fmt.Sprintf("%t", agentDeferred),
		"casinoDeferred": fmt.Sprintf("%t", casinoDeferred),
	})
}

func (a *App) closeChannel(env codec.TxEnvelope) *abci.ExecTxResult {
	var msg codec.SignedStateTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return errTx(codeValidation, "bad channel/close value")
	}
	agent, ok := parseAddr(msg.Agent)
	if !ok {
		return errTx(codeValidation, "missing agent")
	}
	ch := a.st.Channel(agent)
	if ch == nil {
		return errTx(codeValidation, "channel not found")
	}
	if ch.Status != state.StatusOpen {
		return errTx(codePolicy, "channel disputed; use resolve")
	}
	if msg.Nonce < ch.Nonce {
		return errTx(codePolicy, fmt.Sprintf("stale nonce %d < %d", msg.Nonce, ch.Nonce))
	}
	if res := a.checkSignedState(ch, msg); res != nil {
		return res
	}
	return a.settle(ch, msg.AgentBalance, msg.CasinoBalance, "cooperative")
}

func (a *App) challenge(env codec.TxEnvelope, now int64) *abci.ExecTxResult {
	var msg codec.SignedStateTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return errTx(codeValidation, "bad channel/challenge value")
	}
	agent, ok := parseAddr(msg.Agent)
	if !ok {
		return errTx(codeValidation, "missing agent")
	}
	ch := a.st.Channel(agent)
	if ch == nil {
		return errTx(codeValidation, "channel not found")
	}
	if ch.Status != state.StatusOpen {
		return errTx(codePolicy, "challenge already in progress")
	}
	if msg.Nonce < ch.Nonce {
		return errTx(codePolicy, fmt.Sprintf("stale nonce %d < %d", msg.Nonce, ch.Nonce))
	}
	if res := a.checkSignedState(ch, msg); res != nil {
		return res
	}
	ch.Status = state.StatusDisputed
	ch.AgentBalance = new(big.Int).Set(msg.AgentBalance)
	ch.CasinoBalance = new(big.Int).Set(msg.CasinoBalance)
	ch.Nonce = msg.Nonce
	ch.DisputeDeadline = now + ChallengePeriodSecs
	return okEvent("ChannelChallenged", map[string]string{
		"agent":    agent.Hex(),
		"nonce":    fmt.Sprintf("%d", msg.Nonce),
		"deadline": fmt.Sprintf("%d", ch.DisputeDeadline),
	})
}

func (a *App) counterChallenge(env codec.TxEnvelope, now int64) *abci.ExecTxResult {
	var msg codec.SignedStateTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return errTx(codeValidation, "bad channel/counter_challenge value")
	}
	agent, ok := parseAddr(msg.Agent)
	if !ok {
		return errTx(codeValidation, "missing agent")
	}
	ch := a.st.Channel(agent)
	if ch == nil {
		return errTx(codeValidation, "channel not found")
	}
	if ch.Status != state.StatusDisputed {
		return errTx(codePolicy, "no challenge in progress")
	}
	if now > ch.DisputeDeadline {
		return errTx(codeLiveness, "challenge period expired; use resolve")
	}
	// A counter must strictly advance the nonce. There is no cap on rounds;
	// each one restarts the clock.
	if msg.Nonce <= ch.Nonce {
		return errTx(codePolicy, fmt.Sprintf("nonce %d does not beat %d", msg.Nonce, ch.Nonce))
	}
	if res := a.checkSignedState(ch, msg); res != nil {
		return res
	}
	ch.AgentBalance = new(big.Int).Set(msg.AgentBalance)
	ch.CasinoBalance = new(big.Int).Set(msg.CasinoBalance)
	ch.Nonce = msg.Nonce
	ch.DisputeDeadline = now + ChallengePeriodSecs
	return okEvent("ChannelCounterChallenged", map[string]string{
		"agent":    agent.Hex(),
		"nonce":    fmt.Sprintf("%d", msg.Nonce),
		"deadline": fmt.Sprintf("%d", ch.DisputeDeadline),
	})
}

func (a *App) resolve(env codec.TxEnvelope, now int64) *abci.ExecTxResult {
	var msg codec.ChannelResolveTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return errTx(codeValidation, "bad channel/resolve value")
	}
	agent, ok := parseAddr(msg.Agent)
	if !ok {
		return errTx(codeValidation, "missing agent")
	}
	ch := a.st.Channel(agent)
	if ch == nil {
		return errTx(codeValidation, "channel not found")
	}
	if ch.Status != state.StatusDisputed {
		return errTx(codePolicy, "no challenge to resolve")
	}
	if now <= ch.DisputeDeadline {
		return errTx(codeLiveness, "challenge period still running")
	}
	return a.settle(ch, ch.AgentBalance, ch.CasinoBalance, "dispute")
}

func (a *App) emergencyExit(env codec.TxEnvelope, now int64) *abci.ExecTxResult {
	var msg codec.ChannelEmergencyExitTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return errTx(codeValidation, "bad channel/emergency_exit value")
	}
	agent, ok := parseAddr(msg.Agent)
	if !ok {
		return errTx(codeValidation, "missing agent")
	}
	ch := a.st.Channel(agent)
	if ch == nil {
		return errTx(codeValidation, "channel not found")
	}
	if ch.Status != state.StatusOpen {
		return errTx(codePolicy, "channel disputed; use resolve")
	}
	// Only a channel that never produced a signed update may exit this way.
	if ch.Nonce != 0 {
		return errTx(codePolicy, "channel has signed activity")
	}
	if now-ch.OpenedAt < MinChannelDurationSecs {
		return errTx(codeLiveness, "channel too young for emergency exit")
	}
	// Deposits come back untouched, so the skim is zero by construction.
	return a.settle(ch, ch.AgentDeposit, ch.CasinoDeposit, "emergency")
}

func (a *App) withdrawPending(env codec.TxEnvelope) *abci.ExecTxResult {
	var msg codec.ChannelWithdrawPendingTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return errTx(codeValidation, "bad channel/withdraw_pending value")
	}
	payee, ok := parseAddr(msg.Payee)
	if !ok {
		return errTx(codeValidation, "missing payee")
	}
	amount := a.st.TakePending(payee)
	if amount.Sign() == 0 {
		return errTx(codeValidation, "nothing pending")
	}
	// Pull payment: the payee initiates, so the credit goes through even for
	// accounts that reject pushes.
	a.st.Credit(payee, amount)
	return okEvent("PendingWithdrawn", map[string]string{
		"payee":  payee.Hex(),
		"amount": amount.String(),
	})
}

// ---- Casino ownership rotation ----

func (a *App) casinoTransfer(env codec.TxEnvelope, now int64) *abci.ExecTxResult {
	_, res := a.requireCasino(env)
	if res != nil {
		return res
	}
	var msg codec.CasinoTransferTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return errTx(codeValidation, "bad casino/transfer value")
	}
	next, ok := parseAddr(msg.NewCasino)
	if !ok || next == (common.Address{}) {
		return errTx(codeValidation, "missing newCasino")
	}
	if next == a.st.Casino {
		return errTx(codeValidation, "newCasino is current casino")
	}
	if a.st.Bankroll.TotalLocked.Sign() > 0 {
		return errTx(codePolicy, "handover blocked while channels hold locked bankroll")
	}
	a.st.PendingHandover = &state.PendingHandover{NewCasino: next, RequestedAt: now}
	return okEvent("HandoverRequested", map[string]string{
		"newCasino":   next.Hex(),
		"requestedAt": fmt.Sprintf("%d", now),
	})
}

func (a *App) casinoAccept(env codec.TxEnvelope, now int64) *abci.ExecTxResult {
	pending := a.st.PendingHandover
	if pending == nil {
		return errTx(codeValidation, "no handover pending")
	}
	sender, ok := parseAddr(env.Sender)
	if !ok || sender != pending.NewCasino {
		return errTx(codePolicy, "only the pending casino may accept")
	}
	if now-pending.RequestedAt < HandoverTimelockSecs {
		return errTx(codeLiveness, "handover timelock still running")
	}
	if a.st.Bankroll.TotalLocked.Sign() > 0 {
		return errTx(codePolicy, "handover blocked while channels hold locked bankroll")
	}
	prev := a.st.Casino
	a.st.Casino = pending.NewCasino
	a.st.PendingHandover = nil
	return okEvent("HandoverCompleted", map[string]string{
		"previous": prev.Hex(),
		"casino":   a.st.Casino.Hex(),
	})
}

func (a *App) casinoCancelTransfer(env codec.TxEnvelope) *abci.ExecTxResult {
	_, res := a.requireCasino(env)
	if res != nil {
		return res
	}
	if a.st.PendingHandover == nil {
		return errTx(codeValidation, "no handover pending")
	}
	cancelled := a.st.PendingHandover.NewCasino
	a.st.PendingHandover = nil
	return okEvent("HandoverCancelled", map[string]string{
		"newCasino": cancelled.Hex(),
	})
}

// ---- Insurance fund ----

func (a *App) insuranceRequest(env codec.TxEnvelope, now int64) *abci.ExecTxResult {
	_, res := a.requireCasino(env)
	if res != nil {
		return res
	}
	var msg codec.InsuranceRequestWithdrawalTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return errTx(codeValidation, "bad insurance/request_withdrawal value")
	}
	to, ok := parseAddr(msg.To)
	if !ok || !positive(msg.Amount) {
		return errTx(codeValidation, "missing to/amount")
	}
	if msg.Amount.Cmp(a.st.Insurance.Balance) > 0 {
		return errTx(codeValidation, fmt.Sprintf("insurance balance %s too low", a.st.Insurance.Balance))
	}
	if a.st.Insurance.WithdrawalPending() {
		return errTx(codePolicy, "withdrawal already pending")
	}
	a.st.Insurance.PendingTo = to
	a.st.Insurance.PendingAmount = new(big.Int).Set(msg.Amount)
	a.st.Insurance.RequestedAt = now
	return okEvent("InsuranceWithdrawalRequested", map[string]string{
		"to":          to.Hex(),
		"amount":      msg.Amount.String(),
		"requestedAt": fmt.Sprintf("%d", now),
	})
}

func (a *App) insuranceExecute(env codec.TxEnvelope, now int64) *abci.ExecTxResult {
	_, res := a.requireCasino(env)
	if res != nil {
		return res
	}
	fund := a.st.Insurance
	if !fund.WithdrawalPending() {
		return errTx(codeValidation, "no withdrawal pending")
	}
	if now-fund.RequestedAt < InsuranceTimelockSecs {
		return errTx(codeLiveness, "withdrawal timelock still running")
	}
	amount := fund.PendingAmount
	to := fund.PendingTo
	fund.Balance = new(big.Int).Sub(fund.Balance, amount)
	fund.PendingTo = common.Address{}
	fund.PendingAmount = new(big.Int)
	fund.RequestedAt = 0
	deferred := a.st.Payout(to, amount)
	return okEvent("InsuranceWithdrawn", map[string]string{
		"to":       to.Hex(),
		"amount":   amount.String(),
		"deferred": fmt.Sprintf("%t", deferred),
	})
}

func (a *App) insuranceCancel(env codec.TxEnvelope) *abci.ExecTxResult {
	_, res := a.requireCasino(env)
	if res != nil {
		return res
	}
	fund := a.st.Insurance
	if !fund.WithdrawalPending() {
		return errTx(codeValidation, "no withdrawal pending")
	}
	fund.PendingTo = common.Address{}
	fund.PendingAmount = new(big.Int)
	fund.RequestedAt = 0
	return okEvent("InsuranceWithdrawalCancelled", nil)
}

// ---- Helpers ----

// requireCasino gates casino-only ops on the envelope sender. v0 localnet
// trusts the declared sender; production recovers it from a tx signature.
func (a *App) requireCasino(env codec.TxEnvelope) (common.Address, *abci.ExecTxResult) {
	sender, ok := parseAddr(env.Sender)
	if !ok || sender != a.st.Casino {
		return common.Address{}, errTx(codePolicy, "sender is not the casino account")
	}
	return sender, nil
}

func parseAddr(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func positive(n *big.Int) bool {
	return n != nil && n.Sign() > 0
}

func errTx(code uint32, log string) *abci.ExecTxResult {
	return &abci.ExecTxResult{Code: code, Log: log}
}

func okEvent(typ string, attrs map[string]string) *abci.ExecTxResult {
	ev := abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: attrs[k], Index: true})
	}
	return &abci.ExecTxResult{
		Code:   codeOK,
		Events: []abci.Event{ev},
	}
}
