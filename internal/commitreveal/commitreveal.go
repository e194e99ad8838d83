// Package commitreveal implements the two-party commit-reveal randomness
// primitive. The casino commits to a secret seed before the wager; the agent
// contributes their own seed at reveal time; neither side can bias the
// result given the other's contribution.
package commitreveal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

const seedBytes = 32

// Proof carries everything needed to re-derive a round result.
type Proof struct {
	CasinoSeed string `json:"casinoSeed"`
	AgentSeed  string `json:"agentSeed"`
	Nonce      uint64 `json:"nonce"`
	Hash       string `json:"hash"`
}

// Result is the derived randomness of one round.
type Result struct {
	Hash  [sha256.Size]byte
	RNG   *big.Int // big-endian unsigned interpretation of Hash
	Proof Proof
}

// Commit draws a fresh casino seed and returns it together with its
// binding commitment. Both values are lowercase hex; the commitment is
// SHA-256 over the hex-encoded seed bytes.
func Commit() (seed, commitment string, err error) {
	raw := make([]byte, seedBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("draw seed: %w", err)
	}
	seed = hex.EncodeToString(raw)
	return seed, Commitment(seed), nil
}

// Commitment hashes a hex seed into its published commitment.
func Commitment(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// ComputeResult derives the round hash from both seeds and the channel
// nonce. Including the nonce makes replays at different channel versions
// yield different hashes even for identical seed pairs.
func ComputeResult(casinoSeed, agentSeed string, nonce uint64) Result {
	input := fmt.Sprintf("%s:%s:%d", casinoSeed, agentSeed, nonce)
	sum := sha256.Sum256([]byte(input))
	return Result{
		Hash: sum,
		RNG:  new(big.Int).SetBytes(sum[:]),
		Proof: Proof{
			CasinoSeed: casinoSeed,
			AgentSeed:  agentSeed,
			Nonce:      nonce,
			Hash:       hex.EncodeToString(sum[:]),
		},
	}
}

// Verify checks that a revealed casino seed matches the commitment it was
// bound to. Once the commitment has been transmitted, the seed is binding.
func Verify(commitment, casinoSeed string) bool {
	return Commitment(casinoSeed) == commitment
}
