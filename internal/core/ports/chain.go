package ports

import (
	"context"
	"math/big"

	"github.com/bitlift/bitlift/internal/core/domain"
	"github.com/bitlift/bitlift/pkg/sigauth"
	"github.com/bitlift/bitlift/pkg/spv"
	"github.com/btcsuite/btcd/wire"
)

// CommitStatus is the authoritative escrow status reported by the on-chain
// contract for one swap.
type CommitStatus int

const (
	CommitNotCommitted CommitStatus = iota
	CommitCommitted
	CommitPaid
	CommitExpired
)

func (s CommitStatus) String() string {
	switch s {
	case CommitNotCommitted:
		return "not_committed"
	case CommitCommitted:
		return "committed"
	case CommitPaid:
		return "paid"
	case CommitExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// SubmitMode selects which relay entry point a header batch goes through.
type SubmitMode int

const (
	// SubmitMain extends the main chain.
	SubmitMain SubmitMode = iota
	// SubmitNewFork opens a fork; the relay assigns and returns its id.
	SubmitNewFork
	// SubmitForkExtend appends to an already-opened fork.
	SubmitForkExtend
)

func (m SubmitMode) String() string {
	switch m {
	case SubmitMain:
		return "main"
	case SubmitNewFork:
		return "new-fork"
	case SubmitForkExtend:
		return "fork-extend"
	default:
		return "unknown"
	}
}

// TipData is the relay's committed tip: height plus cumulative chain-work.
type TipData struct {
	Height    uint32
	ChainWork *big.Int
}

// SubmitResult reports the outcome of one header-submission transaction.
type SubmitResult struct {
	NewTip domain.StoredHeader
	Fork   domain.ForkID
	TxID   string
}

// ChainContract is the narrow capability set the core needs from a
// smart-chain escrow contract plus its embedded Bitcoin light-client relay.
// Concrete chains (EVM, Solana) implement it with their own transaction and
// fee mechanics.
type ChainContract interface {
	// Init commits escrow for the swap using a counterparty authorization.
	Init(ctx context.Context, swap *domain.Swap, auth *sigauth.Authorization) (txid string, err error)

	// Claim settles the escrow by revealing the payment secret.
	Claim(ctx context.Context, swap *domain.Swap, secret []byte) (txid string, err error)

	// ClaimWithProof settles the escrow with an SPV inclusion proof of the
	// expected Bitcoin output.
	ClaimWithProof(ctx context.Context, swap *domain.Swap, proof *spv.Proof) (txid string, err error)

	// Refund returns the escrow to the offerer. auth may be nil when the
	// escrow expiry has passed; before expiry a counterparty-signed
	// early-refund authorization is required.
	Refund(ctx context.Context, swap *domain.Swap, auth *sigauth.Authorization) (txid string, err error)

	// GetCommitStatus returns the authoritative escrow status.
	GetCommitStatus(ctx context.Context, paymentHash [32]byte) (CommitStatus, error)

	// GetTipData returns the relay's committed tip height and chain-work.
	GetTipData(ctx context.Context) (TipData, error)

	// GetLatestKnownHeader returns the relay's last committed header.
	GetLatestKnownHeader(ctx context.Context) (*domain.StoredHeader, error)

	// GetStoredHeader returns the committed header at height on the given
	// fork, or nil if the relay has not stored one yet.
	GetStoredHeader(ctx context.Context, height uint32, fork domain.ForkID) (*domain.StoredHeader, error)

	// SubmitHeaders submits one batch of raw Bitcoin headers through the
	// entry point selected by mode, paying feeRate (0 lets the adapter pick
	// its own). fork is ignored for SubmitMain and SubmitNewFork; for
	// SubmitForkExtend it is the id returned by the fork-creating
	// submission.
	SubmitHeaders(ctx context.Context, headers []wire.BlockHeader, mode SubmitMode, fork domain.ForkID, feeRate uint64) (SubmitResult, error)

	// MainFeeRate and ForkFeeRate return the fee rates for the two
	// submission paths. Fetched lazily and cached once per sync run by the
	// synchronizer, then passed back through SubmitHeaders.
	MainFeeRate(ctx context.Context) (uint64, error)
	ForkFeeRate(ctx context.Context) (uint64, error)
}

// SwapEventSource exposes the contract's swap logs for reconciliation.
type SwapEventSource interface {
	// FilterEvents returns decoded events in [from, to] (bounded window)
	// together with the position the next window should start from.
	FilterEvents(ctx context.Context, from, to uint64) ([]domain.SwapEvent, uint64, error)

	// SubscribeEvents streams live events until ctx is done.
	SubscribeEvents(ctx context.Context) (<-chan domain.SwapEvent, error)

	// TipPosition returns the source's current log position (block height
	// or slot), bounding how far FilterEvents may scan.
	TipPosition(ctx context.Context) (uint64, error)
}
