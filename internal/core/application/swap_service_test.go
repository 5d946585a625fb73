package application_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bitlift/bitlift/internal/core/application"
	"github.com/bitlift/bitlift/internal/core/domain"
	"github.com/bitlift/bitlift/internal/core/ports"
	"github.com/bitlift/bitlift/pkg/sigauth"
	"github.com/bitlift/bitlift/pkg/spv"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

type swapFixture struct {
	svc   *application.SwapService
	repo  *fakeRepoManager
	chain *fakeChain
	btc   *fakeBtc
	key   *btcec.PrivateKey
}

func newSwapFixture(t *testing.T) *swapFixture {
	t.Helper()
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	repo := newFakeRepoManager()
	chain := newFakeChain()
	btc := buildBtcChain(0, 10)

	svc := application.NewSwapService(repo, chain, btc, key.PubKey(), application.SwapServiceConfig{
		SafetyWindow: time.Hour,
		GracePeriod:  5 * time.Minute,
		PollInterval: 10 * time.Millisecond,
		RetryTimeout: 100 * time.Millisecond,
	})
	return &swapFixture{svc: svc, repo: repo, chain: chain, btc: btc, key: key}
}

func (f *swapFixture) createSwap(
	t *testing.T, preimage []byte, expiresAt int64, prefix sigauth.Prefix,
) *domain.Swap {
	t.Helper()
	paymentHash := sha256.Sum256(preimage)
	timeout := uint64(time.Now().Add(30 * time.Minute).Unix())
	msg := sigauth.Message{
		Amount:      100_000,
		Expiry:      uint64(expiresAt),
		Sequence:    1,
		PaymentHash: paymentHash,
		Timeout:     timeout,
	}
	auth := sigauth.Sign(f.key, prefix, msg, nil)

	swap, err := f.svc.CreateSwap(context.Background(), application.CreateSwapParams{
		PaymentHash:           paymentHash,
		Amount:                msg.Amount,
		Sequence:              msg.Sequence,
		ExpiresAt:             expiresAt,
		RequiredConfirmations: 3,
		Authorization:         auth,
	})
	require.NoError(t, err)
	return swap
}

func TestCommit(t *testing.T) {
	f := newSwapFixture(t)
	preimage := []byte("preimage-commit")
	swap := f.createSwap(t, preimage, time.Now().Add(2*time.Hour).Unix(), sigauth.PrefixInitialize)

	txid, err := f.svc.Commit(context.Background(), swap.PaymentHash)
	require.NoError(t, err)
	require.Equal(t, "0xinit", txid)
	require.Equal(t, domain.SwapCommitted, swap.State)

	stored, err := f.repo.swapRepo.Get(context.Background(), swap.PaymentHash)
	require.NoError(t, err)
	require.Equal(t, domain.SwapCommitted, stored.State)
	require.Equal(t, "0xinit", stored.CommitTxID)
}

func TestCommitRejectsTooCloseToExpiry(t *testing.T) {
	f := newSwapFixture(t)
	preimage := []byte("preimage-expiring")
	swap := f.createSwap(t, preimage, time.Now().Add(30*time.Minute).Unix(), sigauth.PrefixInitialize)

	_, err := f.svc.Commit(context.Background(), swap.PaymentHash)
	require.ErrorIs(t, err, domain.ErrPrecondition)
	require.Equal(t, domain.SwapCreated, swap.State)
	require.Zero(t, f.chain.initCalls)
}

func TestCommitBadAuthorizationFailsSwap(t *testing.T) {
	f := newSwapFixture(t)
	preimage := []byte("preimage-bad-auth")
	// Signed for the wrong operation context.
	swap := f.createSwap(t, preimage, time.Now().Add(2*time.Hour).Unix(), sigauth.PrefixRefund)

	_, err := f.svc.Commit(context.Background(), swap.PaymentHash)
	require.ErrorIs(t, err, sigauth.ErrPrefixMismatch)
	require.Equal(t, domain.SwapFailed, swap.State)
	require.Zero(t, f.chain.initCalls)

	// A failed swap never becomes committable again.
	_, err = f.svc.Commit(context.Background(), swap.PaymentHash)
	require.ErrorIs(t, err, domain.ErrPrecondition)
}

func TestCommitInitFailureLeavesSwapRecoverable(t *testing.T) {
	f := newSwapFixture(t)
	ctx := context.Background()
	preimage := []byte("preimage-init-down")
	swap := f.createSwap(t, preimage, time.Now().Add(2*time.Hour).Unix(), sigauth.PrefixInitialize)

	f.chain.initErr = domain.Transient("eth send transaction", fmt.Errorf("connection reset"))
	_, err := f.svc.Commit(ctx, swap.PaymentHash)
	require.Error(t, err)

	// The broadcast may have landed despite the RPC error, so the swap must
	// stay committable rather than fail terminally.
	require.Equal(t, domain.SwapCreated, swap.State)
	require.Positive(t, f.chain.initCalls)

	// It did land: the redelivered log events converge the swap.
	f.chain.setStatus(ports.CommitPaid)
	require.NoError(t, f.svc.ApplyEvent(ctx, domain.CommitObservedEvent{
		PaymentHash: swap.PaymentHash, TxID: "0xc", Height: 1,
	}))
	require.NoError(t, f.svc.ApplyEvent(ctx, domain.ClaimedEvent{
		PaymentHash: swap.PaymentHash, TxID: "0xd", Height: 2,
	}))
	require.Equal(t, domain.SwapClaimed, swap.State)

	stored, err := f.repo.swapRepo.Get(ctx, swap.PaymentHash)
	require.NoError(t, err)
	require.Equal(t, domain.SwapClaimed, stored.State)
}

func TestClaimWithSecret(t *testing.T) {
	f := newSwapFixture(t)
	preimage := []byte("preimage-claim")
	swap := f.createSwap(t, preimage, time.Now().Add(2*time.Hour).Unix(), sigauth.PrefixInitialize)

	_, err := f.svc.Commit(context.Background(), swap.PaymentHash)
	require.NoError(t, err)

	_, err = f.svc.ClaimWithSecret(context.Background(), swap.PaymentHash, []byte("wrong"))
	require.ErrorIs(t, err, domain.ErrPrecondition)
	require.NotEqual(t, domain.SwapClaimed, swap.State)

	txid, err := f.svc.ClaimWithSecret(context.Background(), swap.PaymentHash, preimage)
	require.NoError(t, err)
	require.Equal(t, "0xclaim", txid)
	require.Equal(t, domain.SwapClaimed, swap.State)
}

// setupBtcPayment registers a one-transaction block paying the swap's txo
// hash, confirmed at the given height.
func (f *swapFixture) setupBtcPayment(t *testing.T, swap *domain.Swap, height uint32) chainhash.Hash {
	t.Helper()
	script := []byte{0x00, 0x14, 0xaa, 0xbb}
	const value = 100_000
	txoHash := spv.TxoHash(value, script)
	swap.TxoHash = txoHash[:]

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(value, script))
	var raw bytes.Buffer
	require.NoError(t, tx.Serialize(&raw))
	txid := tx.TxHash()

	f.btc.rawTxs[txid] = raw.Bytes()
	f.btc.proofs[txid] = &ports.MerkleProof{BlockHeight: height, Position: 0}

	// A single-transaction block commits the txid itself as merkle root.
	f.chain.headers[headerKey{height, domain.MainChain}] = &domain.StoredHeader{
		Height:     height,
		MerkleRoot: txid,
	}
	f.chain.latest = f.chain.headers[headerKey{height, domain.MainChain}]
	return txid
}

func TestClaimWithProof(t *testing.T) {
	f := newSwapFixture(t)
	ctx := context.Background()
	preimage := []byte("preimage-spv")
	swap := f.createSwap(t, preimage, time.Now().Add(2*time.Hour).Unix(), sigauth.PrefixInitialize)

	_, err := f.svc.Commit(ctx, swap.PaymentHash)
	require.NoError(t, err)

	txid := f.setupBtcPayment(t, swap, 100)
	f.chain.tip = ports.TipData{Height: 102} // 3 confirmations exactly

	claimTxID, err := f.svc.ClaimWithProof(ctx, swap.PaymentHash, txid)
	require.NoError(t, err)
	require.Equal(t, "0xclaim", claimTxID)
	require.Equal(t, domain.SwapClaimed, swap.State)
}

func TestClaimWithProofRejectsForgedProof(t *testing.T) {
	f := newSwapFixture(t)
	ctx := context.Background()
	preimage := []byte("preimage-forged")
	swap := f.createSwap(t, preimage, time.Now().Add(2*time.Hour).Unix(), sigauth.PrefixInitialize)

	_, err := f.svc.Commit(ctx, swap.PaymentHash)
	require.NoError(t, err)

	txid := f.setupBtcPayment(t, swap, 100)
	f.chain.tip = ports.TipData{Height: 110}

	// The relay committed a different merkle root at that height.
	f.chain.headers[headerKey{100, domain.MainChain}].MerkleRoot = chainhash.Hash{0xde, 0xad}

	_, err = f.svc.ClaimWithProof(ctx, swap.PaymentHash, txid)
	require.ErrorIs(t, err, domain.ErrProofMismatch)
	require.NotEqual(t, domain.SwapClaimed, swap.State)
}

func TestClaimWithProofWaitsForConfirmations(t *testing.T) {
	f := newSwapFixture(t)
	ctx := context.Background()
	preimage := []byte("preimage-depth")
	swap := f.createSwap(t, preimage, time.Now().Add(2*time.Hour).Unix(), sigauth.PrefixInitialize)

	_, err := f.svc.Commit(ctx, swap.PaymentHash)
	require.NoError(t, err)

	txid := f.setupBtcPayment(t, swap, 100)
	f.chain.tip = ports.TipData{Height: 101} // one short of 3 confirmations

	go func() {
		// The relay catches up while the claim is waiting.
		time.Sleep(50 * time.Millisecond)
		f.chain.mu.Lock()
		f.chain.tip = ports.TipData{Height: 102}
		f.chain.mu.Unlock()
	}()

	claimTxID, err := f.svc.ClaimWithProof(ctx, swap.PaymentHash, txid)
	require.NoError(t, err)
	require.Equal(t, "0xclaim", claimTxID)
}

func TestClaimWithProofFollowsActiveFork(t *testing.T) {
	f := newSwapFixture(t)
	ctx := context.Background()
	preimage := []byte("preimage-active-fork")
	swap := f.createSwap(t, preimage, time.Now().Add(2*time.Hour).Unix(), sigauth.PrefixInitialize)

	_, err := f.svc.Commit(ctx, swap.PaymentHash)
	require.NoError(t, err)

	txid := f.setupBtcPayment(t, swap, 100)

	// Mid-reorg the relay's authoritative branch is a pending fork; the
	// header at the proof height only exists there.
	main := f.chain.headers[headerKey{100, domain.MainChain}]
	delete(f.chain.headers, headerKey{100, domain.MainChain})
	forked := *main
	forked.Fork = domain.ForkID(2)
	f.chain.headers[headerKey{100, domain.ForkID(2)}] = &forked
	f.chain.latest = &forked
	f.chain.tip = ports.TipData{Height: 102}

	claimTxID, err := f.svc.ClaimWithProof(ctx, swap.PaymentHash, txid)
	require.NoError(t, err)
	require.Equal(t, "0xclaim", claimTxID)
	require.Equal(t, domain.SwapClaimed, swap.State)
}

func TestRefund(t *testing.T) {
	f := newSwapFixture(t)
	preimage := []byte("preimage-refund")
	swap := f.createSwap(t, preimage, time.Now().Add(2*time.Hour).Unix(), sigauth.PrefixInitialize)

	_, err := f.svc.Commit(context.Background(), swap.PaymentHash)
	require.NoError(t, err)

	// Before expiry without authorization: rejected.
	_, err = f.svc.Refund(context.Background(), swap.PaymentHash, nil)
	require.ErrorIs(t, err, domain.ErrPrecondition)

	// Early refund with a counterparty-signed grant.
	msg := sigauth.Message{
		Amount:      swap.Amount,
		Expiry:      uint64(swap.ExpiresAt),
		Sequence:    swap.Sequence,
		PaymentHash: swap.PaymentHash,
		Timeout:     uint64(time.Now().Add(30 * time.Minute).Unix()),
	}
	auth := sigauth.Sign(f.key, sigauth.PrefixRefund, msg, nil)

	txid, err := f.svc.Refund(context.Background(), swap.PaymentHash, auth)
	require.NoError(t, err)
	require.Equal(t, "0xrefund", txid)
	require.Equal(t, domain.SwapRefunded, swap.State)
}

func TestWaitTillClaimedWatchdogAcceptsPaid(t *testing.T) {
	f := newSwapFixture(t)
	preimage := []byte("preimage-watchdog")
	swap := f.createSwap(t, preimage, time.Now().Add(2*time.Hour).Unix(), sigauth.PrefixInitialize)

	_, err := f.svc.Commit(context.Background(), swap.PaymentHash)
	require.NoError(t, err)

	// A watchtower claims on our behalf: only the authoritative status
	// reports it.
	f.chain.setStatus(ports.CommitPaid)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.svc.WaitTillClaimed(ctx, swap.PaymentHash))
	require.Equal(t, domain.SwapClaimed, swap.State)
}

func TestConcurrentClaimObservations(t *testing.T) {
	f := newSwapFixture(t)
	preimage := []byte("preimage-concurrent")
	swap := f.createSwap(t, preimage, time.Now().Add(2*time.Hour).Unix(), sigauth.PrefixInitialize)

	_, err := f.svc.Commit(context.Background(), swap.PaymentHash)
	require.NoError(t, err)
	f.chain.setStatus(ports.CommitPaid)

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- f.svc.WaitTillClaimed(waitCtx, swap.PaymentHash)
	}()

	// The live event stream and startup reconciliation hammer the same
	// record while the watchdog races them.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_ = f.svc.ApplyEvent(context.Background(), domain.ClaimedEvent{
					PaymentHash: swap.PaymentHash, TxID: "0xobserved", Height: 42,
				})
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = f.svc.ReconcilePending(context.Background())
	}()
	wg.Wait()

	require.NoError(t, <-done)
	stored, err := f.svc.GetSwap(swap.PaymentHash)
	require.NoError(t, err)
	require.Equal(t, domain.SwapClaimed, stored.State)
}

func TestWaitTillClaimedLocalNotification(t *testing.T) {
	f := newSwapFixture(t)
	preimage := []byte("preimage-local")
	swap := f.createSwap(t, preimage, time.Now().Add(2*time.Hour).Unix(), sigauth.PrefixInitialize)

	_, err := f.svc.Commit(context.Background(), swap.PaymentHash)
	require.NoError(t, err)
	f.chain.setStatus(ports.CommitCommitted)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- f.svc.WaitTillClaimed(ctx, swap.PaymentHash)
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, f.svc.ApplyEvent(context.Background(), domain.ClaimedEvent{
		PaymentHash: swap.PaymentHash, TxID: "0xobserved", Height: 42,
	}))

	require.NoError(t, <-done)
	require.Equal(t, domain.SwapClaimed, swap.State)
	require.Equal(t, "0xobserved", swap.ClaimTxID)
}

func TestWaitTillClaimedCancellation(t *testing.T) {
	f := newSwapFixture(t)
	preimage := []byte("preimage-cancel")
	swap := f.createSwap(t, preimage, time.Now().Add(2*time.Hour).Unix(), sigauth.PrefixInitialize)

	_, err := f.svc.Commit(context.Background(), swap.PaymentHash)
	require.NoError(t, err)
	f.chain.setStatus(ports.CommitCommitted)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.svc.WaitTillClaimed(ctx, swap.PaymentHash)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.Equal(t, domain.SwapCommitted, swap.State)
}

func TestWaitTillCommittedWatchdog(t *testing.T) {
	f := newSwapFixture(t)
	preimage := []byte("preimage-commit-wait")
	swap := f.createSwap(t, preimage, time.Now().Add(2*time.Hour).Unix(), sigauth.PrefixInitialize)

	// The counterparty commits; only the authoritative status reports it.
	f.chain.setStatus(ports.CommitCommitted)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.svc.WaitTillCommitted(ctx, swap.PaymentHash))
	require.Equal(t, domain.SwapCommitted, swap.State)
}

func TestWaitTillCommittedAlreadyCommitted(t *testing.T) {
	f := newSwapFixture(t)
	preimage := []byte("preimage-commit-done")
	swap := f.createSwap(t, preimage, time.Now().Add(2*time.Hour).Unix(), sigauth.PrefixInitialize)

	_, err := f.svc.Commit(context.Background(), swap.PaymentHash)
	require.NoError(t, err)

	require.NoError(t, f.svc.WaitTillCommitted(context.Background(), swap.PaymentHash))
}

func TestApplyEventIdempotence(t *testing.T) {
	f := newSwapFixture(t)
	ctx := context.Background()
	preimage := []byte("preimage-events")
	swap := f.createSwap(t, preimage, time.Now().Add(2*time.Hour).Unix(), sigauth.PrefixInitialize)

	commit := domain.CommitObservedEvent{PaymentHash: swap.PaymentHash, TxID: "0xc", Height: 1}
	require.NoError(t, f.svc.ApplyEvent(ctx, commit))
	require.Equal(t, domain.SwapCommitted, swap.State)

	// Redelivery is a no-op.
	require.NoError(t, f.svc.ApplyEvent(ctx, commit))
	require.Equal(t, "0xc", swap.CommitTxID)

	claimed := domain.ClaimedEvent{PaymentHash: swap.PaymentHash, TxID: "0xd", Height: 2}
	require.NoError(t, f.svc.ApplyEvent(ctx, claimed))
	require.NoError(t, f.svc.ApplyEvent(ctx, claimed))
	require.Equal(t, domain.SwapClaimed, swap.State)
	require.Equal(t, "0xd", swap.ClaimTxID)

	// A refund observed after a claim must not regress the terminal state.
	require.NoError(t, f.svc.ApplyEvent(ctx, domain.RefundedEvent{
		PaymentHash: swap.PaymentHash, TxID: "0xe", Height: 3,
	}))
	require.Equal(t, domain.SwapClaimed, swap.State)
}

func TestApplyEventRejectsSkippedStates(t *testing.T) {
	f := newSwapFixture(t)
	ctx := context.Background()
	preimage := []byte("preimage-skip")
	swap := f.createSwap(t, preimage, time.Now().Add(2*time.Hour).Unix(), sigauth.PrefixInitialize)

	err := f.svc.ApplyEvent(ctx, domain.ClaimedEvent{PaymentHash: swap.PaymentHash, TxID: "0xd"})
	require.Error(t, err)
	require.Equal(t, domain.SwapCreated, swap.State)
}

func TestApplyEventIgnoresUnknownSwaps(t *testing.T) {
	f := newSwapFixture(t)

	err := f.svc.ApplyEvent(context.Background(), domain.ClaimedEvent{
		PaymentHash: [32]byte{0xff}, TxID: "0xd",
	})
	require.NoError(t, err)
}

func TestReconcilePending(t *testing.T) {
	f := newSwapFixture(t)
	ctx := context.Background()
	preimage := []byte("preimage-reconcile")
	swap := f.createSwap(t, preimage, time.Now().Add(2*time.Hour).Unix(), sigauth.PrefixInitialize)

	// Escrow was opened and paid while the daemon was down.
	f.chain.setStatus(ports.CommitPaid)

	require.NoError(t, f.svc.ReconcilePending(ctx))
	require.Equal(t, domain.SwapClaimed, swap.State)

	stored, err := f.repo.swapRepo.Get(ctx, swap.PaymentHash)
	require.NoError(t, err)
	require.Equal(t, domain.SwapClaimed, stored.State)
}
