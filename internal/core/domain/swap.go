package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/bitlift/bitlift/pkg/sigauth"
)

type SwapState int

const (
	// Pending states
	SwapCreated SwapState = iota
	SwapCommitted
	SwapClaimable

	// Terminal states
	SwapClaimed
	SwapRefunded
	SwapExpired
	SwapFailed
)

func (s SwapState) String() string {
	switch s {
	case SwapCreated:
		return "created"
	case SwapCommitted:
		return "committed"
	case SwapClaimable:
		return "claimable"
	case SwapClaimed:
		return "claimed"
	case SwapRefunded:
		return "refunded"
	case SwapExpired:
		return "expired"
	case SwapFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Swap is a single cross-chain swap, keyed by its payment hash. Funds are
// escrowed in the smart-chain contract and released either by revealing the
// Lightning preimage or by an SPV proof of the expected Bitcoin output.
type Swap struct {
	PaymentHash [32]byte

	Offerer string
	Claimer string
	Token   string

	Amount          uint64
	SecurityDeposit uint64
	ClaimerBounty   uint64
	Sequence        uint64

	ExpiresAt int64
	PayIn     bool
	PayOut    bool

	// TxoHash commits to the expected Bitcoin output (amount + script).
	// Empty for swaps settled via Lightning preimage.
	TxoHash               []byte
	RequiredConfirmations uint32

	State     SwapState
	CreatedAt int64

	CommitTxID string
	ClaimTxID  string
	RefundTxID string

	Authorization *sigauth.Authorization

	ErrorMessage string
}

// IsTerminal returns true if the swap reached a final state.
func (s *Swap) IsTerminal() bool {
	switch s.State {
	case SwapClaimed, SwapRefunded, SwapExpired, SwapFailed:
		return true
	default:
		return false
	}
}

// IsPending returns true if the swap is still in progress.
func (s *Swap) IsPending() bool {
	return !s.IsTerminal()
}

// CanCommit reports whether escrow may still be committed: the swap must be
// freshly created and far enough from its expiry that the commit transaction
// can safely confirm.
func (s *Swap) CanCommit(now time.Time, safetyWindow time.Duration) bool {
	if s.State != SwapCreated {
		return false
	}
	return time.Unix(s.ExpiresAt, 0).Sub(now) >= safetyWindow
}

// CanClaim reports whether the escrow may be claimed right now.
func (s *Swap) CanClaim(now time.Time) bool {
	if s.State != SwapClaimable {
		return false
	}
	return now.Unix() < s.ExpiresAt
}

// CanClaimWithProof reports whether a Bitcoin payment confirmed at
// proofHeight has matured enough, given the relay tip, for an SPV claim.
func (s *Swap) CanClaimWithProof(proofHeight, tipHeight uint32, now time.Time) bool {
	if s.State != SwapCommitted && s.State != SwapClaimable {
		return false
	}
	if now.Unix() >= s.ExpiresAt {
		return false
	}
	if tipHeight < proofHeight {
		return false
	}
	return tipHeight-proofHeight+1 >= s.RequiredConfirmations
}

// CanRefund reports whether the offerer may take the funds back. Early
// refunds require a counterparty-signed authorization, checked by the caller;
// hasEarlyRefundAuth reflects that check.
func (s *Swap) CanRefund(now time.Time, hasEarlyRefundAuth bool) bool {
	if s.State != SwapCommitted && s.State != SwapClaimable {
		return false
	}
	if hasEarlyRefundAuth {
		return true
	}
	return now.Unix() >= s.ExpiresAt
}

// Committed records the escrow commit transaction. Returns false if the
// transition is not admissible from the current state.
func (s *Swap) Committed(txid string) bool {
	if s.State != SwapCreated {
		return false
	}
	s.State = SwapCommitted
	s.CommitTxID = txid
	return true
}

// PaymentObserved marks the swap claimable once the unlocking payment is
// known (Lightning secret learned or Bitcoin output confirmed).
func (s *Swap) PaymentObserved() bool {
	if s.State != SwapCommitted {
		return false
	}
	s.State = SwapClaimable
	return true
}

// Claimed records the claim transaction. Idempotent on already-claimed swaps.
func (s *Swap) Claimed(txid string) bool {
	if s.IsTerminal() {
		return false
	}
	s.State = SwapClaimed
	s.ClaimTxID = txid
	return true
}

// Refunded records the refund transaction.
func (s *Swap) Refunded(txid string) bool {
	if s.IsTerminal() {
		return false
	}
	s.State = SwapRefunded
	s.RefundTxID = txid
	return true
}

// Expire marks a never-committed swap as expired.
func (s *Swap) Expire() bool {
	if s.State != SwapCreated {
		return false
	}
	s.State = SwapExpired
	return true
}

// Fail marks the swap as failed with an error message.
func (s *Swap) Fail(errorMsg string) bool {
	if s.IsTerminal() {
		return false
	}
	s.State = SwapFailed
	s.ErrorMessage = errorMsg
	return true
}

// SwapRepository stores the swaps tracked by the daemon.
type SwapRepository interface {
	// Add creates a new swap record.
	Add(ctx context.Context, swap Swap) error

	// Get retrieves a swap by payment hash.
	Get(ctx context.Context, paymentHash [32]byte) (*Swap, error)

	// GetAll retrieves all swaps.
	GetAll(ctx context.Context) ([]Swap, error)

	// GetPending retrieves all swaps in a non-terminal state.
	GetPending(ctx context.Context) ([]Swap, error)

	// Update updates an existing swap.
	Update(ctx context.Context, swap Swap) error

	// Close closes the repository.
	Close()
}
