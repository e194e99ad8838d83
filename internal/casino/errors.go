package casino

import "errors"

// Error taxonomy. Validation and policy errors leave state untouched;
// liveness errors additionally clean up the pending resource they name;
// ErrInvariantViolation is fatal for the operation that hit it.
var (
	// Validation.
	ErrChannelExists   = errors.New("agent already has an open channel")
	ErrChannelNotFound = errors.New("channel not found")
	ErrBetNotPositive  = errors.New("bet must be positive")
	ErrBadChoice       = errors.New("choice must be heads or tails")
	ErrBadPick         = errors.New("picked number out of range")
	ErrUnknownRoute    = errors.New("unknown game action")

	// Policy.
	ErrInsufficientBalance = errors.New("insufficient agent balance")
	ErrHouseCannotCover    = errors.New("house cannot cover max payout")
	ErrMaxChannels         = errors.New("maximum channels reached")
	ErrPendingExists       = errors.New("pending commit exists")
	ErrTicketLimit         = errors.New("tickets per draw exceeded")
	ErrNothingToClaim      = errors.New("nothing to claim")

	// Liveness.
	ErrNoPendingCommit = errors.New("no pending commit")
	ErrCommitExpired   = errors.New("commit expired")

	// Integrity.
	ErrInvariantViolation = errors.New("channel invariant violation")

	// Cryptographic / signing.
	ErrSigning = errors.New("state signing failed")
)
