package casino

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"agentcasino/internal/signer"
)

// Channel mirrors one on-chain escrow in memory. Deposits are immutable
// after funding; balances move only through resolved rounds and claims, and
// always symmetrically, so conservation holds by construction between
// mutations.
type Channel struct {
	Agent         common.Address
	AgentDeposit  *big.Int
	CasinoDeposit *big.Int
	AgentBalance  *big.Int
	CasinoBalance *big.Int
	Nonce         uint64
	OpenedAt      time.Time
	Games         []RoundRecord
}

// RoundRecord is the emitted per-round record; persistence is a consumer
// concern, the signed state stays authoritative.
type RoundRecord struct {
	Agent     common.Address `json:"agent"`
	Game      string         `json:"game"`
	Bet       *big.Int       `json:"bet"`
	Payout    *big.Int       `json:"payout"`
	Won       bool           `json:"won"`
	Details   map[string]any `json:"details,omitempty"`
	Nonce     uint64         `json:"nonce"`
	Timestamp time.Time      `json:"timestamp"`
}

// Snapshot is the emitted per-channel record.
type Snapshot struct {
	Agent         common.Address `json:"agent"`
	Status        string         `json:"status"`
	AgentDeposit  *big.Int       `json:"agentDeposit"`
	CasinoDeposit *big.Int       `json:"casinoDeposit"`
	AgentBalance  *big.Int       `json:"agentBalance"`
	CasinoBalance *big.Int       `json:"casinoBalance"`
	Nonce         uint64         `json:"nonce"`
	GamesPlayed   int            `json:"gamesPlayed"`
	OpenedAt      time.Time      `json:"openedAt"`
}

// SignedState is what the agent accumulates: the post-mutation balances and
// nonce plus the casino's EIP-712 signature over them.
type SignedState struct {
	AgentBalance  *big.Int
	CasinoBalance *big.Int
	Nonce         uint64
	Signature     []byte
}

func newChannel(agent common.Address, agentDeposit, casinoDeposit *big.Int, openedAt time.Time) *Channel {
	return &Channel{
		Agent:         agent,
		AgentDeposit:  new(big.Int).Set(agentDeposit),
		CasinoDeposit: new(big.Int).Set(casinoDeposit),
		AgentBalance:  new(big.Int).Set(agentDeposit),
		CasinoBalance: new(big.Int).Set(casinoDeposit),
		Nonce:         0,
		OpenedAt:      openedAt,
	}
}

// InvariantOK recomputes conservation: balances must sum to deposits,
// integer-exact, and neither side may be negative.
func (c *Channel) InvariantOK() bool {
	if c.AgentBalance.Sign() < 0 || c.CasinoBalance.Sign() < 0 {
		return false
	}
	left := new(big.Int).Add(c.AgentBalance, c.CasinoBalance)
	right := new(big.Int).Add(c.AgentDeposit, c.CasinoDeposit)
	return left.Cmp(right) == 0
}

func (c *Channel) state() signer.ChannelState {
	return signer.ChannelState{
		Agent:         c.Agent,
		AgentBalance:  new(big.Int).Set(c.AgentBalance),
		CasinoBalance: new(big.Int).Set(c.CasinoBalance),
		Nonce:         c.Nonce,
	}
}

func (c *Channel) snapshot() Snapshot {
	return Snapshot{
		Agent:         c.Agent,
		Status:        "open",
		AgentDeposit:  new(big.Int).Set(c.AgentDeposit),
		CasinoDeposit: new(big.Int).Set(c.CasinoDeposit),
		AgentBalance:  new(big.Int).Set(c.AgentBalance),
		CasinoBalance: new(big.Int).Set(c.CasinoBalance),
		Nonce:         c.Nonce,
		GamesPlayed:   len(c.Games),
		OpenedAt:      c.OpenedAt,
	}
}
