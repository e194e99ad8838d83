// Package signer produces and verifies EIP-712 signatures over channel
// states. The settlement layer accepts only states whose signature recovers
// to the configured casino account, so the digest here must match the
// on-chain verifier bit for bit.
package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Typed-data constants. Field order in the ChannelState type string is part
// of the wire format; do not reorder.
const (
	DomainName    = "AgentCasino"
	DomainVersion = "1"

	eip712DomainType = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
	channelStateType = "ChannelState(address agent,uint256 agentBalance,uint256 casinoBalance,uint256 nonce)"
)

var (
	ErrBadSignature = errors.New("bad signature")

	domainTypeHash = crypto.Keccak256Hash([]byte(eip712DomainType))
	stateTypeHash  = crypto.Keccak256Hash([]byte(channelStateType))
)

// ChannelState is the typed struct both sides sign.
type ChannelState struct {
	Agent         common.Address
	AgentBalance  *big.Int
	CasinoBalance *big.Int
	Nonce         uint64
}

// Domain pins the EIP-712 domain to one deployed settlement contract.
type Domain struct {
	ChainID           *big.Int
	VerifyingContract common.Address
}

// Signer asks some identity (local key, remote KMS) for a signature over a
// channel state. Implementations may block; the engine treats Sign as its
// only suspension point inside a mutation.
type Signer interface {
	SignState(state ChannelState) ([]byte, error)
	Address() common.Address
}

// Separator returns the EIP-712 domain separator.
func (d Domain) Separator() common.Hash {
	return crypto.Keccak256Hash(
		domainTypeHash.Bytes(),
		crypto.Keccak256([]byte(DomainName)),
		crypto.Keccak256([]byte(DomainVersion)),
		common.BigToHash(d.ChainID).Bytes(),
		common.BytesToHash(d.VerifyingContract.Bytes()).Bytes(),
	)
}

// Digest computes the final signing digest:
// keccak256(0x19 0x01 || domainSeparator || structHash).
func Digest(d Domain, s ChannelState) common.Hash {
	structHash := crypto.Keccak256Hash(
		stateTypeHash.Bytes(),
		common.BytesToHash(s.Agent.Bytes()).Bytes(),
		common.BigToHash(s.AgentBalance).Bytes(),
		common.BigToHash(s.CasinoBalance).Bytes(),
		common.BigToHash(new(big.Int).SetUint64(s.Nonce)).Bytes(),
	)
	return crypto.Keccak256Hash(
		[]byte{0x19, 0x01},
		d.Separator().Bytes(),
		structHash.Bytes(),
	)
}

// LocalSigner signs with an in-process secp256k1 key. Production uses a
// KMS-backed implementation of Signer with the same digest.
type LocalSigner struct {
	domain Domain
	key    *ecdsa.PrivateKey
	addr   common.Address
}

func NewLocalSigner(domain Domain, key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		domain: domain,
		key:    key,
		addr:   crypto.PubkeyToAddress(key.PublicKey),
	}
}

func (ls *LocalSigner) Address() common.Address { return ls.addr }

// SignState signs the EIP-712 digest and returns a 65-byte signature with
// V in {27, 28} as the settlement layer expects.
func (ls *LocalSigner) SignState(state ChannelState) ([]byte, error) {
	digest := Digest(ls.domain, state)
	sig, err := crypto.Sign(digest.Bytes(), ls.key)
	if err != nil {
		return nil, fmt.Errorf("sign channel state: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverState returns the account that signed the given state.
func RecoverState(d Domain, s ChannelState, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrBadSignature, len(sig))
	}
	v := sig[crypto.RecoveryIDOffset]
	if v != 27 && v != 28 {
		return common.Address{}, fmt.Errorf("%w: recovery id %d", ErrBadSignature, v)
	}
	adjusted := make([]byte, crypto.SignatureLength)
	copy(adjusted, sig)
	adjusted[crypto.RecoveryIDOffset] = v - 27

	pub, err := crypto.SigToPub(Digest(d, s).Bytes(), adjusted)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
