package codec

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// TxEnvelope is the v0 transaction container.
//
// CometBFT transactions are opaque bytes. For v0 localnet we use JSON-encoded
// txs to move fast; this is NOT the final protocol encoding.
type TxEnvelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	// Sender is the account the tx acts as. v0 localnet trusts it; real
	// deployments recover it from a tx signature instead.
	Sender string `json:"sender,omitempty"`
}

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

// ---- Bank ----

// Amounts everywhere in the tx surface are wei, JSON-encoded as numbers.

type BankMintTx struct {
	To     string   `json:"to"`
	Amount *big.Int `json:"amount"`
}

type BankSendTx struct {
	From   string   `json:"from"`
	To     string   `json:"to"`
	Amount *big.Int `json:"amount"`
}

// Marks an account as rejecting direct payouts, modeling a contract payee
// whose receive hook reverts. Settlement credits for it become pull payments.
type BankSetRejectPushTx struct {
	Account string `json:"account"`
	Reject  bool   `json:"reject"`
}

// ---- Channels ----

type ChannelOpenTx struct {
	Agent  string   `json:"agent"`
	Amount *big.Int `json:"amount"`
}

type ChannelFundCasinoTx struct {
	Agent  string   `json:"agent"`
	Amount *big.Int `json:"amount"`
}

// SignedStateTx carries an EIP-712 co-signed channel state. Used verbatim
// by close, challenge and counter-challenge.
type SignedStateTx struct {
	Agent         string   `json:"agent"`
	AgentBalance  *big.Int `json:"agentBalance"`
	CasinoBalance *big.Int `json:"casinoBalance"`
	Nonce         uint64   `json:"nonce"`
	Signature     []byte   `json:"signature"` // 65 bytes r||s||v
}

type ChannelResolveTx struct {
	Agent string `json:"agent"`
}

type ChannelEmergencyExitTx struct {
	Agent string `json:"agent"`
}

type ChannelWithdrawPendingTx struct {
	Payee string `json:"payee"`
}

// ---- Casino ownership ----

type CasinoTransferTx struct {
	NewCasino string `json:"newCasino"`
}

type CasinoAcceptTx struct{}

type CasinoCancelTransferTx struct{}

// ---- Insurance ----

type InsuranceRequestWithdrawalTx struct {
	To     string   `json:"to"`
	Amount *big.Int `json:"amount"`
}

type InsuranceExecuteWithdrawalTx struct{}

type InsuranceCancelWithdrawalTx struct{}
