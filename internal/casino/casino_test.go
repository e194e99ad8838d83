package casino

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"agentcasino/internal/bankroll"
	"agentcasino/internal/commitreveal"
	"agentcasino/internal/signer"
	"agentcasino/internal/wei"
)

var testAgent = common.HexToAddress("0x1111111111111111111111111111111111111111")

func testDomain() signer.Domain {
	return signer.Domain{
		ChainID:           big.NewInt(31337),
		VerifyingContract: common.HexToAddress("0x00000000000000000000000000000000000caf3"),
	}
}

func newTestSigner(t *testing.T) *signer.LocalSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return signer.NewLocalSigner(testDomain(), key)
}

func newTestEngine(t *testing.T) (*Engine, *signer.LocalSigner) {
	t.Helper()
	sgn := newTestSigner(t)
	guard := bankroll.NewGuard(wei.MustWei(1000))
	eng, err := New(Config{}, sgn, guard, nil)
	require.NoError(t, err)
	return eng, sgn
}

func openTestChannel(t *testing.T, eng *Engine, agentEther, casinoEther string) {
	t.Helper()
	_, err := eng.OpenChannel(testAgent, wei.MustWei(agentEther), wei.MustWei(casinoEther))
	require.NoError(t, err)
}

// takePendingSeed reads the committed casino seed so tests can steer the
// reveal outcome.
func takePendingSeed(t *testing.T, eng *Engine, game string) string {
	t.Helper()
	eng.pending.mu.Lock()
	defer eng.pending.mu.Unlock()
	pc, ok := eng.pending.m[pendingKey{agent: testAgent, game: game}]
	require.True(t, ok, "no pending commit for %s", game)
	return pc.CasinoSeed
}

// findSeed brute-forces an agent seed whose derived hash satisfies pred.
func findSeed(t *testing.T, casinoSeed string, nonce uint64, pred func(commitreveal.Result) bool) string {
	t.Helper()
	for i := 0; i < 2_000_000; i++ {
		seed := fmt.Sprintf("agent-seed-%d", i)
		if pred(commitreveal.ComputeResult(casinoSeed, seed, nonce)) {
			return seed
		}
	}
	t.Fatal("no satisfying agent seed found")
	return ""
}

func timeZero() time.Time { return time.Unix(1_700_000_000, 0) }

func timeNow() func() time.Time { return time.Now }

// failingSigner simulates a remote signer outage.
type failingSigner struct{ addr common.Address }

func (f *failingSigner) SignState(signer.ChannelState) ([]byte, error) {
	return nil, fmt.Errorf("kms unavailable")
}
func (f *failingSigner) Address() common.Address { return f.addr }
