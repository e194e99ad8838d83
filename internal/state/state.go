// Package state holds the settlement layer's deterministic state: escrow
// bank accounts, channel records, the bankroll manager, the insurance fund
// and pull-payment credits. Persistence is normalized JSON so the AppHash
// is stable across nodes.
package state

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

type ChannelStatus string

// Settled channels are deleted rather than flagged; a missing record means
// no channel.
const (
	StatusOpen     ChannelStatus = "open"
	StatusDisputed ChannelStatus = "disputed"
)

// Channel is the on-chain escrow record for one agent. Deposits are fixed
// once funded; the stored balances and nonce only move through the dispute
// operations.
type Channel struct {
	Agent           common.Address `json:"agent"`
	AgentDeposit    *big.Int       `json:"agentDeposit"`
	CasinoDeposit   *big.Int       `json:"casinoDeposit"`
	AgentBalance    *big.Int       `json:"agentBalance"`
	CasinoBalance   *big.Int       `json:"casinoBalance"`
	Nonce           uint64         `json:"nonce"`
	Status          ChannelStatus  `json:"status"`
	OpenedAt        int64          `json:"openedAt"`
	DisputeDeadline int64          `json:"disputeDeadline,omitempty"`
}

// Conserved reports whether the stored balances still sum to the deposits.
func (c *Channel) Conserved() bool {
	balances := new(big.Int).Add(c.AgentBalance, c.CasinoBalance)
	deposits := new(big.Int).Add(c.AgentDeposit, c.CasinoDeposit)
	return balances.Cmp(deposits) == 0
}

// Bankroll mirrors the off-chain exposure guard: the sum of house deposits
// locked in channels may never exceed MaxExposure.
type Bankroll struct {
	TotalLocked *big.Int `json:"totalLocked"`
	MaxExposure *big.Int `json:"maxExposure"`
}

func (b *Bankroll) Lock(amount *big.Int) error {
	next := new(big.Int).Add(b.TotalLocked, amount)
	if next.Cmp(b.MaxExposure) > 0 {
		return fmt.Errorf("bankroll exposure exceeded: locked=%s add=%s max=%s",
			b.TotalLocked, amount, b.MaxExposure)
	}
	b.TotalLocked = next
	return nil
}

func (b *Bankroll) Unlock(amount *big.Int) error {
	if amount.Cmp(b.TotalLocked) > 0 {
		return fmt.Errorf("bankroll unlock exceeds locked: locked=%s sub=%s",
			b.TotalLocked, amount)
	}
	b.TotalLocked = new(big.Int).Sub(b.TotalLocked, amount)
	return nil
}

// Insurance is the segregated treasury fed by the settlement skim. Outflows
// go through a timelocked request.
type Insurance struct {
	Balance       *big.Int       `json:"balance"`
	PendingTo     common.Address `json:"pendingTo,omitempty"`
	PendingAmount *big.Int       `json:"pendingAmount"`
	RequestedAt   int64          `json:"requestedAt,omitempty"`
}

func (f *Insurance) WithdrawalPending() bool {
	return f.PendingAmount.Sign() > 0
}

// PendingHandover is step one of the timelocked casino-account rotation.
type PendingHandover struct {
	NewCasino   common.Address `json:"newCasino"`
	RequestedAt int64          `json:"requestedAt"`
}

type State struct {
	Height int64 `json:"height"`

	Casino          common.Address   `json:"casino"`
	PendingHandover *PendingHandover `json:"pendingHandover,omitempty"`

	Accounts map[string]*big.Int `json:"accounts"`
	// RejectPush marks payees whose direct payouts fail, modeling a contract
	// payee that reverts on receive. Their credits land in PendingWithdrawals.
	RejectPush         map[string]bool     `json:"rejectPush,omitempty"`
	PendingWithdrawals map[string]*big.Int `json:"pendingWithdrawals,omitempty"`

	Channels  map[string]*Channel `json:"channels"`
	Bankroll  *Bankroll           `json:"bankroll"`
	Insurance *Insurance          `json:"insurance"`
}

func NewState() *State {
	st := &State{}
	st.normalize()
	return st
}

func Load(home string) (*State, error) {
	path := filepath.Join(home, "state.json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	st.normalize()
	return &st, nil
}

func (s *State) Save(home string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("mkdir home: %w", err)
	}
	path := filepath.Join(home, "state.json")
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Clone returns a deep copy of state suitable for staged tx execution.
func (s *State) Clone() (*State, error) {
	if s == nil {
		return nil, fmt.Errorf("state is nil")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state clone: %w", err)
	}
	var out State
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode state clone: %w", err)
	}
	out.normalize()
	return &out, nil
}

func (s *State) normalize() {
	if s.Accounts == nil {
		s.Accounts = map[string]*big.Int{}
	}
	if s.RejectPush == nil {
		s.RejectPush = map[string]bool{}
	}
	if s.PendingWithdrawals == nil {
		s.PendingWithdrawals = map[string]*big.Int{}
	}
	if s.Channels == nil {
		s.Channels = map[string]*Channel{}
	}
	if s.Bankroll == nil {
		s.Bankroll = &Bankroll{}
	}
	if s.Bankroll.TotalLocked == nil {
		s.Bankroll.TotalLocked = new(big.Int)
	}
	if s.Bankroll.MaxExposure == nil {
		s.Bankroll.MaxExposure = new(big.Int)
	}
	if s.Insurance == nil {
		s.Insurance = &Insurance{}
	}
	if s.Insurance.Balance == nil {
		s.Insurance.Balance = new(big.Int)
	}
	if s.Insurance.PendingAmount == nil {
		s.Insurance.PendingAmount = new(big.Int)
	}
}

func (s *State) AppHash() []byte {
	// Deterministic JSON hash: marshal with stable key ordering by serializing
	// a normalized view.
	//
	// Note: encoding/json does NOT guarantee map key order, so we manually
	// normalize maps into slices.
	type amountKV struct {
		Addr   string   `json:"addr"`
		Amount *big.Int `json:"amount"`
	}
	type flagKV struct {
		Addr string `json:"addr"`
		Flag bool   `json:"flag"`
	}
	type channelKV struct {
		Addr    string   `json:"addr"`
		Channel *Channel `json:"channel"`
	}

	sortAmounts := func(m map[string]*big.Int) []amountKV {
		out := make([]amountKV, 0, len(m))
		for k, v := range m {
			out = append(out, amountKV{Addr: k, Amount: v})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
		return out
	}

	rejects := make([]flagKV, 0, len(s.RejectPush))
	for k, v := range s.RejectPush {
		rejects = append(rejects, flagKV{Addr: k, Flag: v})
	}
	sort.Slice(rejects, func(i, j int) bool { return rejects[i].Addr < rejects[j].Addr })

	channels := make([]channelKV, 0, len(s.Channels))
	for k, v := range s.Channels {
		channels = append(channels, channelKV{Addr: k, Channel: v})
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].Addr < channels[j].Addr })

	normalized := struct {
		Height             int64            `json:"height"`
		Casino             common.Address   `json:"casino"`
		PendingHandover    *PendingHandover `json:"pendingHandover,omitempty"`
		Accounts           []amountKV       `json:"accounts"`
		RejectPush         []flagKV         `json:"rejectPush,omitempty"`
		PendingWithdrawals []amountKV       `json:"pendingWithdrawals,omitempty"`
		Channels           []channelKV      `json:"channels"`
		Bankroll           *Bankroll        `json:"bankroll"`
		Insurance          *Insurance       `json:"insurance"`
	}{
		Height:             s.Height,
		Casino:             s.Casino,
		PendingHandover:    s.PendingHandover,
		Accounts:           sortAmounts(s.Accounts),
		RejectPush:         rejects,
		PendingWithdrawals: sortAmounts(s.PendingWithdrawals),
		Channels:           channels,
		Bankroll:           s.Bankroll,
		Insurance:          s.Insurance,
	}

	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return sum[:]
}

// ---- Bank ----

func key(addr common.Address) string { return addr.Hex() }

func (s *State) Balance(addr common.Address) *big.Int {
	if n, ok := s.Accounts[key(addr)]; ok {
		return new(big.Int).Set(n)
	}
	return new(big.Int)
}

func (s *State) Credit(addr common.Address, amount *big.Int) {
	k := key(addr)
	if n, ok := s.Accounts[k]; ok {
		s.Accounts[k] = new(big.Int).Add(n, amount)
		return
	}
	s.Accounts[k] = new(big.Int).Set(amount)
}

func (s *State) Debit(addr common.Address, amount *big.Int) error {
	k := key(addr)
	n, ok := s.Accounts[k]
	if !ok || n.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient funds: have=%s need=%s", s.Balance(addr), amount)
	}
	s.Accounts[k] = new(big.Int).Sub(n, amount)
	return nil
}

// Payout pushes a settlement credit to the payee. When the direct transfer
// fails the amount is rerouted to the pull-payment map instead; settlement
// itself never reverts on a bad payee.
func (s *State) Payout(addr common.Address, amount *big.Int) (deferred bool) {
	if amount.Sign() == 0 {
		return false
	}
	k := key(addr)
	if s.RejectPush[k] {
		if n, ok := s.PendingWithdrawals[k]; ok {
			s.PendingWithdrawals[k] = new(big.Int).Add(n, amount)
		} else {
			s.PendingWithdrawals[k] = new(big.Int).Set(amount)
		}
		return true
	}
	s.Credit(addr, amount)
	return false
}

// PendingWithdrawal returns the payee's deferred credits without clearing.
func (s *State) PendingWithdrawal(addr common.Address) *big.Int {
	if n, ok := s.PendingWithdrawals[key(addr)]; ok {
		return new(big.Int).Set(n)
	}
	return new(big.Int)
}

// TakePending removes and returns the payee's deferred credits.
func (s *State) TakePending(addr common.Address) *big.Int {
	k := key(addr)
	n, ok := s.PendingWithdrawals[k]
	if !ok {
		return new(big.Int)
	}
	delete(s.PendingWithdrawals, k)
	return n
}

// ---- Channels ----

func (s *State) Channel(agent common.Address) *Channel {
	return s.Channels[key(agent)]
}

func (s *State) PutChannel(c *Channel) {
	s.Channels[key(c.Agent)] = c
}

func (s *State) DeleteChannel(agent common.Address) {
	delete(s.Channels, key(agent))
}
