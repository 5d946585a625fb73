package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/bitlift/bitlift/internal/core/domain"
	"github.com/bitlift/bitlift/internal/core/ports"
	"github.com/bitlift/bitlift/pkg/sigauth"
	"github.com/bitlift/bitlift/pkg/spv"
	"github.com/bitlift/bitlift/utils"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// SwapServiceConfig tunes the lifecycle guards and the watchdog.
type SwapServiceConfig struct {
	// SafetyWindow is the minimum time that must remain until a swap's
	// expiry for a commit to still be admitted.
	SafetyWindow time.Duration
	// GracePeriod is the margin an authorization must keep before its
	// timeout to be accepted.
	GracePeriod time.Duration
	// PollInterval paces the watchdog polls backing blocked waits.
	PollInterval time.Duration
	// RetryTimeout bounds backoff retries of transient RPC failures.
	RetryTimeout time.Duration
	// StartupConcurrency bounds in-flight status lookups during startup
	// reconciliation.
	StartupConcurrency int64
}

// SwapService owns the in-memory swap table and is the only mutator of swap
// records. Event and watchdog observations are proposals; the service admits
// them only when the lifecycle guards allow.
type SwapService struct {
	repoManager  ports.RepoManager
	chain        ports.ChainContract
	btc          ports.BitcoinService
	counterparty *btcec.PublicKey
	cfg          SwapServiceConfig

	mu       sync.RWMutex
	swaps    map[[32]byte]*domain.Swap
	watchers map[[32]byte][]chan domain.SwapState
}

func NewSwapService(
	repoManager ports.RepoManager,
	chain ports.ChainContract,
	btc ports.BitcoinService,
	counterparty *btcec.PublicKey,
	cfg SwapServiceConfig,
) *SwapService {
	if cfg.StartupConcurrency <= 0 {
		cfg.StartupConcurrency = 8
	}
	return &SwapService{
		repoManager:  repoManager,
		chain:        chain,
		btc:          btc,
		counterparty: counterparty,
		cfg:          cfg,
		swaps:        make(map[[32]byte]*domain.Swap),
		watchers:     make(map[[32]byte][]chan domain.SwapState),
	}
}

// CreateSwapParams carries the quote agreed with the counterparty.
type CreateSwapParams struct {
	PaymentHash           [32]byte
	Offerer               string
	Claimer               string
	Token                 string
	Amount                uint64
	SecurityDeposit       uint64
	ClaimerBounty         uint64
	Sequence              uint64
	ExpiresAt             int64
	PayIn                 bool
	PayOut                bool
	TxoHash               []byte
	RequiredConfirmations uint32
	Authorization         *sigauth.Authorization
}

// CreateSwap registers a quoted swap in the table and persists it.
func (s *SwapService) CreateSwap(ctx context.Context, params CreateSwapParams) (*domain.Swap, error) {
	swap := &domain.Swap{
		PaymentHash:           params.PaymentHash,
		Offerer:               params.Offerer,
		Claimer:               params.Claimer,
		Token:                 params.Token,
		Amount:                params.Amount,
		SecurityDeposit:       params.SecurityDeposit,
		ClaimerBounty:         params.ClaimerBounty,
		Sequence:              params.Sequence,
		ExpiresAt:             params.ExpiresAt,
		PayIn:                 params.PayIn,
		PayOut:                params.PayOut,
		TxoHash:               params.TxoHash,
		RequiredConfirmations: params.RequiredConfirmations,
		State:                 domain.SwapCreated,
		CreatedAt:             time.Now().Unix(),
		Authorization:         params.Authorization,
	}

	s.mu.Lock()
	if _, ok := s.swaps[swap.PaymentHash]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("swap %x already exists", swap.PaymentHash[:8])
	}
	s.swaps[swap.PaymentHash] = swap
	s.mu.Unlock()

	if err := s.repoManager.Swaps().Add(ctx, *swap); err != nil {
		return nil, fmt.Errorf("failed to persist swap: %w", err)
	}
	return swap, nil
}

// GetSwap returns a copy of the tracked swap for a payment hash.
func (s *SwapService) GetSwap(paymentHash [32]byte) (*domain.Swap, error) {
	swap, err := s.view(paymentHash)
	if err != nil {
		return nil, err
	}
	return &swap, nil
}

// view returns a copy of the tracked swap, taken under the table lock.
func (s *SwapService) view(paymentHash [32]byte) (domain.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	swap, ok := s.swaps[paymentHash]
	if !ok {
		return domain.Swap{}, domain.ErrSwapNotFound
	}
	return *swap, nil
}

// transition applies fn to the tracked swap under the table lock. fn reports
// whether it changed the record; if it did, the record is persisted while the
// lock is still held, so concurrent transitions cannot persist out of order,
// and watchers are notified afterwards. The returned copy is the
// post-transition snapshot.
func (s *SwapService) transition(ctx context.Context, paymentHash [32]byte, fn func(*domain.Swap) bool) (domain.Swap, bool, error) {
	s.mu.Lock()
	swap, ok := s.swaps[paymentHash]
	if !ok {
		s.mu.Unlock()
		return domain.Swap{}, false, domain.ErrSwapNotFound
	}
	if !fn(swap) {
		snapshot := *swap
		s.mu.Unlock()
		return snapshot, false, nil
	}
	snapshot := *swap
	if err := s.repoManager.Swaps().Update(ctx, snapshot); err != nil {
		log.WithError(err).Errorf("failed to persist swap %s", hex.EncodeToString(paymentHash[:8]))
	}
	watchers := append([]chan domain.SwapState(nil), s.watchers[paymentHash]...)
	s.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- snapshot.State:
		default:
		}
	}
	return snapshot, true, nil
}

// Commit escrows the swap on-chain using its counterparty authorization.
// A failed signature check on this path is fatal for the swap itself: the
// escrow can never be opened with that grant.
func (s *SwapService) Commit(ctx context.Context, paymentHash [32]byte) (string, error) {
	swap, err := s.view(paymentHash)
	if err != nil {
		return "", err
	}

	now := time.Now()
	if !swap.CanCommit(now, s.cfg.SafetyWindow) {
		return "", fmt.Errorf("%w: canCommit rejected swap %x in state %s (expiry %d)",
			domain.ErrPrecondition, paymentHash[:8], swap.State, swap.ExpiresAt)
	}

	if err := sigauth.Verify(
		swap.Authorization, s.counterparty, sigauth.PrefixInitialize,
		s.authMessage(&swap), now, s.cfg.GracePeriod,
	); err != nil {
		s.transition(ctx, paymentHash, func(sw *domain.Swap) bool {
			return sw.Fail(fmt.Sprintf("commit authorization rejected: %v", err))
		})
		return "", fmt.Errorf("commit authorization rejected: %w", err)
	}

	var txid string
	err = utils.Retry(ctx, s.cfg.RetryTimeout, func(ctx context.Context) error {
		var err error
		txid, err = s.chain.Init(ctx, &swap, swap.Authorization)
		return err
	})
	if err != nil {
		// The broadcast may have landed despite the error. Keep the swap in
		// created so the reconciler and the event log can converge it.
		return "", fmt.Errorf("escrow init failed: %w", err)
	}

	if _, _, err := s.transition(ctx, paymentHash, func(sw *domain.Swap) bool {
		return sw.Committed(txid)
	}); err != nil {
		return "", err
	}
	log.WithField("txid", txid).Infof("committed escrow for swap %x", paymentHash[:8])
	return txid, nil
}

// ClaimWithSecret settles the escrow by revealing the Lightning preimage.
func (s *SwapService) ClaimWithSecret(ctx context.Context, paymentHash [32]byte, preimage []byte) (string, error) {
	if _, err := s.view(paymentHash); err != nil {
		return "", err
	}

	if sha256.Sum256(preimage) != paymentHash {
		return "", fmt.Errorf("%w: preimage does not hash to payment hash %x",
			domain.ErrPrecondition, paymentHash[:8])
	}

	swap, _, err := s.transition(ctx, paymentHash, func(sw *domain.Swap) bool {
		return sw.PaymentObserved()
	})
	if err != nil {
		return "", err
	}
	if !swap.CanClaim(time.Now()) {
		return "", fmt.Errorf("%w: canClaim rejected swap %x in state %s",
			domain.ErrPrecondition, paymentHash[:8], swap.State)
	}

	var txid string
	err = utils.Retry(ctx, s.cfg.RetryTimeout, func(ctx context.Context) error {
		var err error
		txid, err = s.chain.Claim(ctx, &swap, preimage)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("claim failed: %w", err)
	}

	if _, _, err := s.transition(ctx, paymentHash, func(sw *domain.Swap) bool {
		return sw.Claimed(txid)
	}); err != nil {
		return "", err
	}
	log.WithField("txid", txid).Infof("claimed swap %x via secret", paymentHash[:8])
	return txid, nil
}

// ClaimWithProof settles the escrow with an SPV proof that the expected
// Bitcoin output confirmed. The proof is re-acquired on every attempt, so a
// reorg invalidating a previously-accepted header restarts acquisition
// instead of returning a stale success. "No header committed yet" and "not
// enough confirmations" are retried until ctx is done; a root mismatch
// against a committed header is fatal.
func (s *SwapService) ClaimWithProof(ctx context.Context, paymentHash [32]byte, btcTxID chainhash.Hash) (string, error) {
	swap, err := s.view(paymentHash)
	if err != nil {
		return "", err
	}
	if len(swap.TxoHash) != 32 {
		return "", fmt.Errorf("%w: swap %x carries no txo hash", domain.ErrPrecondition, paymentHash[:8])
	}

	proof, err := s.acquireProof(ctx, &swap, btcTxID)
	if err != nil {
		return "", err
	}

	if _, _, err := s.transition(ctx, paymentHash, func(sw *domain.Swap) bool {
		return sw.PaymentObserved()
	}); err != nil {
		return "", err
	}

	var txid string
	err = utils.Retry(ctx, s.cfg.RetryTimeout, func(ctx context.Context) error {
		var err error
		txid, err = s.chain.ClaimWithProof(ctx, &swap, proof)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("claim with proof failed: %w", err)
	}

	if _, _, err := s.transition(ctx, paymentHash, func(sw *domain.Swap) bool {
		return sw.Claimed(txid)
	}); err != nil {
		return "", err
	}
	log.WithField("txid", txid).Infof("claimed swap %x via SPV proof of %s", paymentHash[:8], btcTxID)
	return txid, nil
}

func (s *SwapService) acquireProof(ctx context.Context, swap *domain.Swap, btcTxID chainhash.Hash) (*spv.Proof, error) {
	var txoHash [32]byte
	copy(txoHash[:], swap.TxoHash)

	for {
		var mp *ports.MerkleProof
		err := utils.Retry(ctx, s.cfg.RetryTimeout, func(ctx context.Context) error {
			var err error
			mp, err = s.btc.GetMerkleProof(ctx, btcTxID)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch merkle proof: %w", err)
		}

		var rawTx []byte
		err = utils.Retry(ctx, s.cfg.RetryTimeout, func(ctx context.Context) error {
			var err error
			rawTx, err = s.btc.GetRawTransaction(ctx, btcTxID)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch raw transaction: %w", err)
		}
		idx, err := spv.FindOutput(rawTx, txoHash)
		if err != nil {
			return nil, err
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: transaction %s has no output matching txo hash",
				domain.ErrPrecondition, btcTxID)
		}

		proof := &spv.Proof{
			TxID:        btcTxID,
			BlockHeight: mp.BlockHeight,
			Position:    mp.Position,
			Siblings:    mp.Siblings,
		}

		// The proof must verify against the branch the relay currently
		// considers authoritative, which may be a pending fork mid-reorg.
		latest, err := s.chain.GetLatestKnownHeader(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read relay tip header: %w", err)
		}
		if latest == nil {
			if err := s.sleep(ctx); err != nil {
				return nil, err
			}
			continue
		}

		header, err := s.chain.GetStoredHeader(ctx, mp.BlockHeight, latest.Fork)
		if err != nil {
			return nil, fmt.Errorf("failed to read relay header at %d: %w", mp.BlockHeight, err)
		}
		if header == nil {
			// Relay has not caught up to the proof height yet.
			if err := s.sleep(ctx); err != nil {
				return nil, err
			}
			continue
		}

		if err := proof.Verify(header.MerkleRoot); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrProofMismatch, err)
		}

		tip, err := s.chain.GetTipData(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read relay tip: %w", err)
		}
		if !swap.CanClaimWithProof(mp.BlockHeight, tip.Height, time.Now()) {
			if time.Now().Unix() >= swap.ExpiresAt {
				return nil, fmt.Errorf("%w: escrow expired before the payment matured",
					domain.ErrPrecondition)
			}
			log.Debugf("swap %x needs %d confirmations, tip %d, proof height %d; waiting",
				swap.PaymentHash[:8], swap.RequiredConfirmations, tip.Height, mp.BlockHeight)
			if err := s.sleep(ctx); err != nil {
				return nil, err
			}
			continue
		}

		return proof, nil
	}
}

// Refund returns the escrow to the offerer, either after expiry or early
// with a counterparty-signed refund authorization.
func (s *SwapService) Refund(ctx context.Context, paymentHash [32]byte, auth *sigauth.Authorization) (string, error) {
	swap, err := s.view(paymentHash)
	if err != nil {
		return "", err
	}

	now := time.Now()
	hasEarlyRefundAuth := false
	if auth != nil {
		msg := s.authMessage(&swap)
		msg.Timeout = auth.Timeout
		if err := sigauth.Verify(
			auth, s.counterparty, sigauth.PrefixRefund, msg, now, s.cfg.GracePeriod,
		); err != nil {
			return "", fmt.Errorf("refund authorization rejected: %w", err)
		}
		hasEarlyRefundAuth = true
	}

	if !swap.CanRefund(now, hasEarlyRefundAuth) {
		return "", fmt.Errorf("%w: canRefund rejected swap %x in state %s before expiry",
			domain.ErrPrecondition, paymentHash[:8], swap.State)
	}

	var txid string
	err = utils.Retry(ctx, s.cfg.RetryTimeout, func(ctx context.Context) error {
		var err error
		txid, err = s.chain.Refund(ctx, &swap, auth)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("refund failed: %w", err)
	}

	if _, _, err := s.transition(ctx, paymentHash, func(sw *domain.Swap) bool {
		return sw.Refunded(txid)
	}); err != nil {
		return "", err
	}
	log.WithField("txid", txid).Infof("refunded swap %x", paymentHash[:8])
	return txid, nil
}

// WaitTillClaimed blocks until the swap is claimed, racing the local
// transition notification against a watchdog poll of the authoritative
// commit status. Whichever resolves first cancels the other. A PAID status
// observed by the watchdog is success even if an unrelated watchtower sent
// the claim.
func (s *SwapService) WaitTillClaimed(ctx context.Context, paymentHash [32]byte) error {
	swap, err := s.view(paymentHash)
	if err != nil {
		return err
	}
	if swap.State == domain.SwapClaimed {
		return nil
	}
	if swap.IsTerminal() {
		return fmt.Errorf("%w: swap %x already %s", domain.ErrPrecondition,
			paymentHash[:8], swap.State)
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := s.watch(paymentHash)
	defer s.unwatch(paymentHash, updates)

	result := make(chan error, 2)

	go func() {
		result <- s.awaitLocalState(raceCtx, updates, domain.SwapClaimed)
	}()
	go func() {
		result <- s.watchdogPoll(raceCtx, paymentHash)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitTillCommitted blocks until the counterparty's escrow commit is visible,
// either through a local transition or through the watchdog observing a
// committed (or already paid) status on-chain.
func (s *SwapService) WaitTillCommitted(ctx context.Context, paymentHash [32]byte) error {
	swap, err := s.view(paymentHash)
	if err != nil {
		return err
	}
	switch {
	case swap.State == domain.SwapCommitted || swap.State == domain.SwapClaimable ||
		swap.State == domain.SwapClaimed:
		return nil
	case swap.IsTerminal():
		return fmt.Errorf("%w: swap %x already %s", domain.ErrPrecondition,
			paymentHash[:8], swap.State)
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := s.watch(paymentHash)
	defer s.unwatch(paymentHash, updates)

	result := make(chan error, 2)

	go func() {
		result <- s.awaitLocalState(raceCtx, updates, domain.SwapCommitted)
	}()
	go func() {
		result <- s.watchdogPollCommitted(raceCtx, paymentHash)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SwapService) awaitLocalState(ctx context.Context, updates <-chan domain.SwapState, want domain.SwapState) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case state := <-updates:
			if state == want {
				return nil
			}
			switch state {
			case domain.SwapFailed, domain.SwapRefunded, domain.SwapExpired:
				return fmt.Errorf("%w: swap reached %s while waiting for %s",
					domain.ErrPrecondition, state, want)
			}
		}
	}
}

// watchdogPoll periodically checks the authoritative commit status. Transient
// poll failures never push a transition; the loop just tries again.
func (s *SwapService) watchdogPoll(ctx context.Context, paymentHash [32]byte) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		status, err := s.chain.GetCommitStatus(ctx, paymentHash)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithError(err).Debugf("watchdog poll failed for swap %x", paymentHash[:8])
			continue
		}

		switch status {
		case ports.CommitPaid:
			// Possibly claimed by a watchtower racing us. Still success.
			if _, changed, err := s.transition(ctx, paymentHash, func(sw *domain.Swap) bool {
				return sw.Claimed("")
			}); err == nil && changed {
				log.Infof("watchdog observed swap %x paid on-chain", paymentHash[:8])
			}
			return nil
		case ports.CommitExpired:
			return fmt.Errorf("%w: escrow expired while waiting for claim", domain.ErrPrecondition)
		}
	}
}

func (s *SwapService) watchdogPollCommitted(ctx context.Context, paymentHash [32]byte) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		status, err := s.chain.GetCommitStatus(ctx, paymentHash)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithError(err).Debugf("watchdog poll failed for swap %x", paymentHash[:8])
			continue
		}

		switch status {
		case ports.CommitCommitted, ports.CommitPaid:
			if _, changed, err := s.transition(ctx, paymentHash, func(sw *domain.Swap) bool {
				return sw.Committed("")
			}); err == nil && changed {
				log.Infof("watchdog observed swap %x committed on-chain", paymentHash[:8])
			}
			return nil
		case ports.CommitExpired:
			return fmt.Errorf("%w: escrow expired while waiting for commit", domain.ErrPrecondition)
		}
	}
}

// ApplyEvent admits an observed on-chain event into the state machine.
// Replayed events are no-ops; events that skip states signal an upstream bug
// and are rejected.
func (s *SwapService) ApplyEvent(ctx context.Context, event domain.SwapEvent) error {
	paymentHash := event.SwapPaymentHash()

	var rejected error
	_, _, err := s.transition(ctx, paymentHash, func(sw *domain.Swap) bool {
		switch ev := event.(type) {
		case domain.CommitObservedEvent:
			if sw.State != domain.SwapCreated {
				return false
			}
			return sw.Committed(ev.TxID)
		case domain.ClaimedEvent:
			if sw.State == domain.SwapClaimed {
				return false
			}
			if sw.State == domain.SwapCreated {
				rejected = fmt.Errorf("claimed event for swap %x still in state created", paymentHash[:8])
				return false
			}
			return sw.Claimed(ev.TxID)
		case domain.RefundedEvent:
			if sw.State == domain.SwapRefunded {
				return false
			}
			if sw.State == domain.SwapCreated {
				rejected = fmt.Errorf("refunded event for swap %x still in state created", paymentHash[:8])
				return false
			}
			return sw.Refunded(ev.TxID)
		default:
			rejected = fmt.Errorf("unknown swap event type %T", ev)
			return false
		}
	})
	if err != nil {
		// Not one of ours; a watchtower may track swaps we never quoted.
		return nil
	}
	return rejected
}

// ReconcilePending loads persisted swaps and converges each non-terminal one
// against the authoritative commit status, bounding in-flight lookups so the
// RPC endpoint is not overwhelmed on startup.
func (s *SwapService) ReconcilePending(ctx context.Context) error {
	swaps, err := s.repoManager.Swaps().GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load swaps: %w", err)
	}

	s.mu.Lock()
	for i := range swaps {
		swap := swaps[i]
		if _, ok := s.swaps[swap.PaymentHash]; !ok {
			s.swaps[swap.PaymentHash] = &swap
		}
	}
	s.mu.Unlock()

	sem := semaphore.NewWeighted(s.cfg.StartupConcurrency)
	var wg sync.WaitGroup

	for i := range swaps {
		if !swaps[i].IsPending() {
			continue
		}
		hash := swaps[i].PaymentHash

		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			if err := s.reconcileOne(ctx, hash); err != nil {
				log.WithError(err).Warnf("failed to reconcile swap %x", hash[:8])
			}
		}()
	}

	wg.Wait()
	return nil
}

func (s *SwapService) reconcileOne(ctx context.Context, paymentHash [32]byte) error {
	status, err := s.chain.GetCommitStatus(ctx, paymentHash)
	if err != nil {
		return err
	}

	_, _, err = s.transition(ctx, paymentHash, func(sw *domain.Swap) bool {
		switch status {
		case ports.CommitCommitted:
			return sw.Committed("")
		case ports.CommitPaid:
			if sw.State == domain.SwapCreated {
				sw.Committed("")
			}
			return sw.Claimed("")
		case ports.CommitExpired:
			return sw.Expire()
		case ports.CommitNotCommitted:
			if sw.State != domain.SwapCreated {
				log.Warnf("swap %x is %s locally but not committed on-chain",
					paymentHash[:8], sw.State)
			}
		}
		return false
	})
	return err
}

func (s *SwapService) authMessage(swap *domain.Swap) sigauth.Message {
	msg := sigauth.Message{
		Amount:      swap.Amount,
		Expiry:      uint64(swap.ExpiresAt),
		Sequence:    swap.Sequence,
		PaymentHash: swap.PaymentHash,
	}
	if swap.Authorization != nil {
		msg.Timeout = swap.Authorization.Timeout
	}
	return msg
}

func (s *SwapService) watch(paymentHash [32]byte) chan domain.SwapState {
	ch := make(chan domain.SwapState, 8)
	s.mu.Lock()
	s.watchers[paymentHash] = append(s.watchers[paymentHash], ch)
	s.mu.Unlock()
	return ch
}

func (s *SwapService) unwatch(paymentHash [32]byte, ch chan domain.SwapState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	watchers := s.watchers[paymentHash]
	for i, w := range watchers {
		if w == ch {
			s.watchers[paymentHash] = append(watchers[:i], watchers[i+1:]...)
			break
		}
	}
	if len(s.watchers[paymentHash]) == 0 {
		delete(s.watchers, paymentHash)
	}
}

func (s *SwapService) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.PollInterval):
		return nil
	}
}
