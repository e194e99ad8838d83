package app

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcasino/internal/codec"
	"agentcasino/internal/signer"
	"agentcasino/internal/wei"
)

var (
	testAgent    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testOutsider = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testContract = common.HexToAddress("0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC")
	testChainID  = big.NewInt(1337)
)

func newTestApp(t *testing.T) (*App, *signer.LocalSigner) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sgn := signer.NewLocalSigner(signer.Domain{
		ChainID:           testChainID,
		VerifyingContract: testContract,
	}, key)
	a, err := New(t.TempDir(), Config{
		Casino:      sgn.Address(),
		MaxExposure: wei.MustWei("1000"),
		ChainID:     testChainID,
		Contract:    testContract,
	})
	require.NoError(t, err)
	return a, sgn
}

func tx(t *testing.T, typ, sender string, value any) []byte {
	t.Helper()
	raw, err := json.Marshal(value)
	require.NoError(t, err)
	b, err := json.Marshal(codec.TxEnvelope{Type: typ, Value: raw, Sender: sender})
	require.NoError(t, err)
	return b
}

func deliver(t *testing.T, a *App, now int64, txs ...[]byte) []*abci.ExecTxResult {
	t.Helper()
	res, err := a.FinalizeBlock(context.Background(), &abci.FinalizeBlockRequest{
		Height: a.st.Height + 1,
		Time:   time.Unix(now, 0),
		Txs:    txs,
	})
	require.NoError(t, err)
	require.Len(t, res.TxResults, len(txs))
	return res.TxResults
}

func requireOK(t *testing.T, results []*abci.ExecTxResult) {
	t.Helper()
	for i, r := range results {
		require.Equal(t, codeOK, r.Code, "tx %d: %s", i, r.Log)
	}
}

func signedState(t *testing.T, sgn signer.Signer, agent common.Address, agentBal, casinoBal *big.Int, nonce uint64) codec.SignedStateTx {
	t.Helper()
	sig, err := sgn.SignState(signer.ChannelState{
		Agent:         agent,
		AgentBalance:  agentBal,
		CasinoBalance: casinoBal,
		Nonce:         nonce,
	})
	require.NoError(t, err)
	return codec.SignedStateTx{
		Agent:         agent.Hex(),
		AgentBalance:  agentBal,
		CasinoBalance: casinoBal,
		Nonce:         nonce,
		Signature:     sig,
	}
}

// openFunded mints for both sides, opens an agent channel and funds the
// house side, returning the block time used.
func openFunded(t *testing.T, a *App, sgn *signer.LocalSigner, agentDep, casinoDep string) int64 {
	t.Helper()
	now := int64(1_000_000)
	requireOK(t, deliver(t, a, now,
		tx(t, "bank/mint", "", codec.BankMintTx{To: testAgent.Hex(), Amount: wei.MustWei("1")}),
		tx(t, "bank/mint", "", codec.BankMintTx{To: sgn.Address().Hex(), Amount: wei.MustWei("1")}),
		tx(t, "channel/open", testAgent.Hex(), codec.ChannelOpenTx{Agent: testAgent.Hex(), Amount: wei.MustWei(agentDep)}),
		tx(t, "channel/fund_casino", sgn.Address().Hex(), codec.ChannelFundCasinoTx{Agent: testAgent.Hex(), Amount: wei.MustWei(casinoDep)}),
	))
	return now
}

func TestBankMintAndSend(t *testing.T) {
	a, _ := newTestApp(t)
	requireOK(t, deliver(t, a, 1,
		tx(t, "bank/mint", "", codec.BankMintTx{To: testAgent.Hex(), Amount: big.NewInt(100)}),
		tx(t, "bank/send", "", codec.BankSendTx{From: testAgent.Hex(), To: testOutsider.Hex(), Amount: big.NewInt(40)}),
	))
	assert.Zero(t, a.st.Balance(testAgent).Cmp(big.NewInt(60)))
	assert.Zero(t, a.st.Balance(testOutsider).Cmp(big.NewInt(40)))

	res := deliver(t, a, 2,
		tx(t, "bank/send", "", codec.BankSendTx{From: testOutsider.Hex(), To: testAgent.Hex(), Amount: big.NewInt(41)}),
	)
	assert.Equal(t, codeValidation, res[0].Code)
}

func TestOpenChannelDepositBounds(t *testing.T) {
	a, _ := newTestApp(t)
	requireOK(t, deliver(t, a, 1,
		tx(t, "bank/mint", "", codec.BankMintTx{To: testAgent.Hex(), Amount: wei.MustWei("100")}),
	))

	res := deliver(t, a, 2,
		tx(t, "channel/open", testAgent.Hex(), codec.ChannelOpenTx{Agent: testAgent.Hex(), Amount: wei.MustWei("0.0009")}),
		tx(t, "channel/open", testAgent.Hex(), codec.ChannelOpenTx{Agent: testAgent.Hex(), Amount: wei.MustWei("10.1")}),
		tx(t, "channel/open", testAgent.Hex(), codec.ChannelOpenTx{Agent: testAgent.Hex(), Amount: wei.MustWei("0.1")}),
		tx(t, "channel/open", testAgent.Hex(), codec.ChannelOpenTx{Agent: testAgent.Hex(), Amount: wei.MustWei("0.1")}),
	)
	assert.Equal(t, codeValidation, res[0].Code)
	assert.Equal(t, codeValidation, res[1].Code)
	assert.Equal(t, codeOK, res[2].Code)
	// One open channel per agent.
	assert.Equal(t, codePolicy, res[3].Code)

	ch := a.st.Channel(testAgent)
	require.NotNil(t, ch)
	assert.Zero(t, ch.AgentDeposit.Cmp(wei.MustWei("0.1")))
	assert.Zero(t, ch.AgentBalance.Cmp(wei.MustWei("0.1")))
	assert.Zero(t, a.st.Balance(testAgent).Cmp(wei.MustWei("99.9")))
}

func TestFundCasinoLocksBankroll(t *testing.T) {
	a, sgn := newTestApp(t)
	a.st.Bankroll.MaxExposure = wei.MustWei("0.15")

	requireOK(t, deliver(t, a, 1,
		tx(t, "bank/mint", "", codec.BankMintTx{To: testAgent.Hex(), Amount: wei.MustWei("1")}),
		tx(t, "bank/mint", "", codec.BankMintTx{To: sgn.Address().Hex(), Amount: wei.MustWei("1")}),
		tx(t, "channel/open", testAgent.Hex(), codec.ChannelOpenTx{Agent: testAgent.Hex(), Amount: wei.MustWei("0.1")}),
	))

	res := deliver(t, a, 2,
		tx(t, "channel/fund_casino", testOutsider.Hex(), codec.ChannelFundCasinoTx{Agent: testAgent.Hex(), Amount: wei.MustWei("0.1")}),
		tx(t, "channel/fund_casino", sgn.Address().Hex(), codec.ChannelFundCasinoTx{Agent: testAgent.Hex(), Amount: wei.MustWei("0.1")}),
		tx(t, "channel/fund_casino", sgn.Address().Hex(), codec.ChannelFundCasinoTx{Agent: testAgent.Hex(), Amount: wei.MustWei("0.1")}),
	)
	// Non-casino sender, then a fund that fits, then one over the cap.
	assert.Equal(t, codePolicy, res[0].Code)
	assert.Equal(t, codeOK, res[1].Code)
	assert.Equal(t, codePolicy, res[2].Code)

	assert.Zero(t, a.st.Bankroll.TotalLocked.Cmp(wei.MustWei("0.1")))
	ch := a.st.Channel(testAgent)
	assert.Zero(t, ch.CasinoDeposit.Cmp(wei.MustWei("0.1")))
	assert.Zero(t, ch.CasinoBalance.Cmp(wei.MustWei("0.1")))
}

// Cooperative close: the house made 0.02 profit, 10% of it is skimmed into
// the insurance fund and the rest pays out directly.
func TestCooperativeCloseSkimsInsurance(t *testing.T) {
	a, sgn := newTestApp(t)
	now := openFunded(t, a, sgn, "0.1", "0.1")

	st := signedState(t, sgn, testAgent, wei.MustWei("0.08"), wei.MustWei("0.12"), 5)
	requireOK(t, deliver(t, a, now+10, tx(t, "channel/close", testAgent.Hex(), st)))

	assert.Nil(t, a.st.Channel(testAgent))
	assert.Zero(t, a.st.Bankroll.TotalLocked.Sign())
	assert.Zero(t, a.st.Insurance.Balance.Cmp(wei.MustWei("0.002")))
	// 1 - 0.1 + 0.08
	assert.Zero(t, a.st.Balance(testAgent).Cmp(wei.MustWei("0.98")))
	// 1 - 0.1 + 0.118
	assert.Zero(t, a.st.Balance(sgn.Address()).Cmp(wei.MustWei("1.018")))
}

func TestCloseNoProfitNoSkim(t *testing.T) {
	a, sgn := newTestApp(t)
	now := openFunded(t, a, sgn, "0.1", "0.1")

	st := signedState(t, sgn, testAgent, wei.MustWei("0.15"), wei.MustWei("0.05"), 3)
	requireOK(t, deliver(t, a, now+10, tx(t, "channel/close", testAgent.Hex(), st)))

	assert.Zero(t, a.st.Insurance.Balance.Sign())
	assert.Zero(t, a.st.Balance(testAgent).Cmp(wei.MustWei("1.05")))
	assert.Zero(t, a.st.Balance(sgn.Address()).Cmp(wei.MustWei("0.95")))
}

func TestCloseRejectsBadStates(t *testing.T) {
	a, sgn := newTestApp(t)
	now := openFunded(t, a, sgn, "0.1", "0.1")

	// Balances that break conservation.
	inflated := signedState(t, sgn, testAgent, wei.MustWei("0.15"), wei.MustWei("0.1"), 1)
	res := deliver(t, a, now+10, tx(t, "channel/close", testAgent.Hex(), inflated))
	assert.Equal(t, codeIntegrity, res[0].Code)

	// Signature from a key that is not the casino.
	wrongKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	var wrong signer.Signer = signer.NewLocalSigner(signer.Domain{
		ChainID: testChainID, VerifyingContract: testContract,
	}, wrongKey)
	forged := signedState(t, wrong, testAgent, wei.MustWei("0.2"), wei.MustWei("0.0"), 1)
	res = deliver(t, a, now+11, tx(t, "channel/close", testAgent.Hex(), forged))
	assert.Equal(t, codeCrypto, res[0].Code)

	// Mangled signature bytes.
	good := signedState(t, sgn, testAgent, wei.MustWei("0.1"), wei.MustWei("0.1"), 1)
	good.Signature[10] ^= 0xff
	res = deliver(t, a, now+12, tx(t, "channel/close", testAgent.Hex(), good))
	assert.Equal(t, codeCrypto, res[0].Code)

	require.NotNil(t, a.st.Channel(testAgent))
}

// Full dispute: a stale challenge is beaten by a counter-challenge carrying
// a later nonce, the clock restarts, and resolve settles the newer state.
func TestDisputeWithCounterChallenge(t *testing.T) {
	a, sgn := newTestApp(t)
	now := openFunded(t, a, sgn, "0.1", "0.1")

	stale := signedState(t, sgn, testAgent, wei.MustWei("0.15"), wei.MustWei("0.05"), 1)
	requireOK(t, deliver(t, a, now+10, tx(t, "channel/challenge", testAgent.Hex(), stale)))

	ch := a.st.Channel(testAgent)
	require.NotNil(t, ch)
	assert.Equal(t, uint64(1), ch.Nonce)
	firstDeadline := ch.DisputeDeadline

	// Cooperative close is off the table while disputed.
	res := deliver(t, a, now+20, tx(t, "channel/close", testAgent.Hex(), stale))
	assert.Equal(t, codePolicy, res[0].Code)

	// Too early to resolve.
	res = deliver(t, a, now+30, tx(t, "channel/resolve", "", codec.ChannelResolveTx{Agent: testAgent.Hex()}))
	assert.Equal(t, codeLiveness, res[0].Code)

	// A counter with the same nonce loses; a later nonce wins and restarts
	// the clock.
	sameNonce := signedState(t, sgn, testAgent, wei.MustWei("0.09"), wei.MustWei("0.11"), 1)
	res = deliver(t, a, now+40, tx(t, "channel/counter_challenge", "", sameNonce))
	assert.Equal(t, codePolicy, res[0].Code)

	newer := signedState(t, sgn, testAgent, wei.MustWei("0.08"), wei.MustWei("0.12"), 2)
	counterAt := now + 50
	requireOK(t, deliver(t, a, counterAt, tx(t, "channel/counter_challenge", "", newer)))

	ch = a.st.Channel(testAgent)
	assert.Equal(t, uint64(2), ch.Nonce)
	assert.Equal(t, counterAt+ChallengePeriodSecs, ch.DisputeDeadline)
	assert.Greater(t, ch.DisputeDeadline, firstDeadline)

	// Counters after the deadline are too late.
	late := signedState(t, sgn, testAgent, wei.MustWei("0.07"), wei.MustWei("0.13"), 3)
	res = deliver(t, a, ch.DisputeDeadline+1, tx(t, "channel/counter_challenge", "", late))
	assert.Equal(t, codeLiveness, res[0].Code)

	requireOK(t, deliver(t, a, ch.DisputeDeadline+2,
		tx(t, "channel/resolve", "", codec.ChannelResolveTx{Agent: testAgent.Hex()}),
	))

	assert.Nil(t, a.st.Channel(testAgent))
	assert.Zero(t, a.st.Insurance.Balance.Cmp(wei.MustWei("0.002")))
	assert.Zero(t, a.st.Balance(testAgent).Cmp(wei.MustWei("0.98")))
	assert.Zero(t, a.st.Balance(sgn.Address()).Cmp(wei.MustWei("1.018")))
}

func TestEmergencyExitRefundsDeposits(t *testing.T) {
	a, sgn := newTestApp(t)
	now := openFunded(t, a, sgn, "0.1", "0.1")

	res := deliver(t, a, now+MinChannelDurationSecs-1,
		tx(t, "channel/emergency_exit", testAgent.Hex(), codec.ChannelEmergencyExitTx{Agent: testAgent.Hex()}),
	)
	assert.Equal(t, codeLiveness, res[0].Code)

	requireOK(t, deliver(t, a, now+MinChannelDurationSecs,
		tx(t, "channel/emergency_exit", testAgent.Hex(), codec.ChannelEmergencyExitTx{Agent: testAgent.Hex()}),
	))

	assert.Nil(t, a.st.Channel(testAgent))
	assert.Zero(t, a.st.Insurance.Balance.Sign())
	assert.Zero(t, a.st.Balance(testAgent).Cmp(wei.MustWei("1")))
	assert.Zero(t, a.st.Balance(sgn.Address()).Cmp(wei.MustWei("1")))
}

func TestEmergencyExitRefusedAfterActivity(t *testing.T) {
	a, sgn := newTestApp(t)
	now := openFunded(t, a, sgn, "0.1", "0.1")

	st := signedState(t, sgn, testAgent, wei.MustWei("0.09"), wei.MustWei("0.11"), 1)
	requireOK(t, deliver(t, a, now+10, tx(t, "channel/challenge", testAgent.Hex(), st)))

	res := deliver(t, a, now+2*MinChannelDurationSecs,
		tx(t, "channel/emergency_exit", testAgent.Hex(), codec.ChannelEmergencyExitTx{Agent: testAgent.Hex()}),
	)
	assert.Equal(t, codePolicy, res[0].Code)
}

// A payee that rejects direct transfers gets its settlement share parked as
// a pull payment; withdraw_pending later clears it.
func TestSettlementDefersToPullPayment(t *testing.T) {
	a, sgn := newTestApp(t)
	now := openFunded(t, a, sgn, "0.1", "0.1")

	requireOK(t, deliver(t, a, now+1,
		tx(t, "bank/set_reject_push", "", codec.BankSetRejectPushTx{Account: testAgent.Hex(), Reject: true}),
	))

	st := signedState(t, sgn, testAgent, wei.MustWei("0.08"), wei.MustWei("0.12"), 1)
	requireOK(t, deliver(t, a, now+2, tx(t, "channel/close", testAgent.Hex(), st)))

	// The close succeeded even though the agent payout could not be pushed.
	assert.Nil(t, a.st.Channel(testAgent))
	assert.Zero(t, a.st.Balance(testAgent).Cmp(wei.MustWei("0.9")))
	assert.Zero(t, a.st.PendingWithdrawal(testAgent).Cmp(wei.MustWei("0.08")))

	res := deliver(t, a, now+3,
		tx(t, "channel/withdraw_pending", testAgent.Hex(), codec.ChannelWithdrawPendingTx{Payee: testAgent.Hex()}),
		tx(t, "channel/withdraw_pending", testAgent.Hex(), codec.ChannelWithdrawPendingTx{Payee: testAgent.Hex()}),
	)
	assert.Equal(t, codeOK, res[0].Code)
	assert.Equal(t, codeValidation, res[1].Code)

	assert.Zero(t, a.st.Balance(testAgent).Cmp(wei.MustWei("0.98")))
	assert.Zero(t, a.st.PendingWithdrawal(testAgent).Sign())
}

func TestHandoverTimelockAndBankrollBlock(t *testing.T) {
	a, sgn := newTestApp(t)
	now := openFunded(t, a, sgn, "0.1", "0.1")

	// Blocked while bankroll is locked in a channel.
	res := deliver(t, a, now+1,
		tx(t, "casino/transfer", sgn.Address().Hex(), codec.CasinoTransferTx{NewCasino: testOutsider.Hex()}),
	)
	assert.Equal(t, codePolicy, res[0].Code)

	st := signedState(t, sgn, testAgent, wei.MustWei("0.1"), wei.MustWei("0.1"), 1)
	requireOK(t, deliver(t, a, now+2, tx(t, "channel/close", testAgent.Hex(), st)))

	requireOK(t, deliver(t, a, now+3,
		tx(t, "casino/transfer", sgn.Address().Hex(), codec.CasinoTransferTx{NewCasino: testOutsider.Hex()}),
	))

	res = deliver(t, a, now+4,
		// Wrong acceptor, then the right one before the timelock expires.
		tx(t, "casino/accept", testAgent.Hex(), codec.CasinoAcceptTx{}),
		tx(t, "casino/accept", testOutsider.Hex(), codec.CasinoAcceptTx{}),
	)
	assert.Equal(t, codePolicy, res[0].Code)
	assert.Equal(t, codeLiveness, res[1].Code)

	requireOK(t, deliver(t, a, now+3+HandoverTimelockSecs,
		tx(t, "casino/accept", testOutsider.Hex(), codec.CasinoAcceptTx{}),
	))
	assert.Equal(t, testOutsider, a.st.Casino)
	assert.Nil(t, a.st.PendingHandover)
}

func TestHandoverCancel(t *testing.T) {
	a, sgn := newTestApp(t)
	requireOK(t, deliver(t, a, 1,
		tx(t, "casino/transfer", sgn.Address().Hex(), codec.CasinoTransferTx{NewCasino: testOutsider.Hex()}),
		tx(t, "casino/cancel_transfer", sgn.Address().Hex(), codec.CasinoCancelTransferTx{}),
	))
	assert.Nil(t, a.st.PendingHandover)

	res := deliver(t, a, 2+HandoverTimelockSecs,
		tx(t, "casino/accept", testOutsider.Hex(), codec.CasinoAcceptTx{}),
	)
	assert.Equal(t, codeValidation, res[0].Code)
}

func TestInsuranceWithdrawalTimelock(t *testing.T) {
	a, sgn := newTestApp(t)
	now := openFunded(t, a, sgn, "0.1", "0.1")

	// Accumulate 0.002 of skim.
	st := signedState(t, sgn, testAgent, wei.MustWei("0.08"), wei.MustWei("0.12"), 1)
	requireOK(t, deliver(t, a, now+1, tx(t, "channel/close", testAgent.Hex(), st)))
	require.Zero(t, a.st.Insurance.Balance.Cmp(wei.MustWei("0.002")))

	res := deliver(t, a, now+2,
		// Over the fund balance, non-casino sender, then a valid request.
		tx(t, "insurance/request_withdrawal", sgn.Address().Hex(), codec.InsuranceRequestWithdrawalTx{To: testOutsider.Hex(), Amount: wei.MustWei("0.003")}),
		tx(t, "insurance/request_withdrawal", testOutsider.Hex(), codec.InsuranceRequestWithdrawalTx{To: testOutsider.Hex(), Amount: wei.MustWei("0.001")}),
		tx(t, "insurance/request_withdrawal", sgn.Address().Hex(), codec.InsuranceRequestWithdrawalTx{To: testOutsider.Hex(), Amount: wei.MustWei("0.001")}),
		tx(t, "insurance/request_withdrawal", sgn.Address().Hex(), codec.InsuranceRequestWithdrawalTx{To: testOutsider.Hex(), Amount: wei.MustWei("0.001")}),
	)
	assert.Equal(t, codeValidation, res[0].Code)
	assert.Equal(t, codePolicy, res[1].Code)
	assert.Equal(t, codeOK, res[2].Code)
	assert.Equal(t, codePolicy, res[3].Code)

	res = deliver(t, a, now+3,
		tx(t, "insurance/execute_withdrawal", sgn.Address().Hex(), codec.InsuranceExecuteWithdrawalTx{}),
	)
	assert.Equal(t, codeLiveness, res[0].Code)

	requireOK(t, deliver(t, a, now+2+InsuranceTimelockSecs,
		tx(t, "insurance/execute_withdrawal", sgn.Address().Hex(), codec.InsuranceExecuteWithdrawalTx{}),
	))
	assert.Zero(t, a.st.Insurance.Balance.Cmp(wei.MustWei("0.001")))
	assert.Zero(t, a.st.Balance(testOutsider).Cmp(wei.MustWei("0.001")))
	assert.False(t, a.st.Insurance.WithdrawalPending())
}

func TestInsuranceWithdrawalCancel(t *testing.T) {
	a, sgn := newTestApp(t)
	now := openFunded(t, a, sgn, "0.1", "0.1")

	st := signedState(t, sgn, testAgent, wei.MustWei("0.08"), wei.MustWei("0.12"), 1)
	requireOK(t, deliver(t, a, now+1, tx(t, "channel/close", testAgent.Hex(), st)))

	requireOK(t, deliver(t, a, now+2,
		tx(t, "insurance/request_withdrawal", sgn.Address().Hex(), codec.InsuranceRequestWithdrawalTx{To: testOutsider.Hex(), Amount: wei.MustWei("0.002")}),
		tx(t, "insurance/cancel_withdrawal", sgn.Address().Hex(), codec.InsuranceCancelWithdrawalTx{}),
	))
	assert.False(t, a.st.Insurance.WithdrawalPending())
	assert.Zero(t, a.st.Insurance.Balance.Cmp(wei.MustWei("0.002")))
}

func TestQueryChannelAndTreasury(t *testing.T) {
	a, sgn := newTestApp(t)
	openFunded(t, a, sgn, "0.1", "0.1")

	res, err := a.Query(context.Background(), &abci.QueryRequest{Path: "/channel/" + testAgent.Hex()})
	require.NoError(t, err)
	require.Equal(t, codeOK, res.Code)
	var ch map[string]any
	require.NoError(t, json.Unmarshal(res.Value, &ch))
	assert.Equal(t, "open", ch["status"])

	res, err = a.Query(context.Background(), &abci.QueryRequest{Path: "/bankroll"})
	require.NoError(t, err)
	require.Equal(t, codeOK, res.Code)

	res, err = a.Query(context.Background(), &abci.QueryRequest{Path: "/channel/" + testOutsider.Hex()})
	require.NoError(t, err)
	assert.Equal(t, codeValidation, res.Code)
}

func TestAppHashDeterministicAcrossReload(t *testing.T) {
	home := t.TempDir()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sgn := signer.NewLocalSigner(signer.Domain{ChainID: testChainID, VerifyingContract: testContract}, key)
	cfg := Config{Casino: sgn.Address(), MaxExposure: wei.MustWei("1000"), ChainID: testChainID, Contract: testContract}

	a, err := New(home, cfg)
	require.NoError(t, err)
	openFunded(t, a, sgn, "0.1", "0.1")
	_, err = a.Commit(context.Background(), &abci.CommitRequest{})
	require.NoError(t, err)
	want := a.st.AppHash()

	b, err := New(home, cfg)
	require.NoError(t, err)
	assert.Equal(t, want, b.st.AppHash())
	require.NotNil(t, b.st.Channel(testAgent))
	assert.Zero(t, b.st.Bankroll.TotalLocked.Cmp(wei.MustWei("0.1")))
}
