package application_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/bitlift/bitlift/internal/core/domain"
	"github.com/bitlift/bitlift/internal/core/ports"
	"github.com/bitlift/bitlift/pkg/sigauth"
	"github.com/bitlift/bitlift/pkg/spv"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

type fakeSwapRepo struct {
	mu    sync.Mutex
	swaps map[[32]byte]domain.Swap
}

func newFakeSwapRepo() *fakeSwapRepo {
	return &fakeSwapRepo{swaps: make(map[[32]byte]domain.Swap)}
}

func (r *fakeSwapRepo) Add(ctx context.Context, swap domain.Swap) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.swaps[swap.PaymentHash]; ok {
		return fmt.Errorf("swap already exists")
	}
	r.swaps[swap.PaymentHash] = swap
	return nil
}

func (r *fakeSwapRepo) Get(ctx context.Context, paymentHash [32]byte) (*domain.Swap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	swap, ok := r.swaps[paymentHash]
	if !ok {
		return nil, domain.ErrSwapNotFound
	}
	return &swap, nil
}

func (r *fakeSwapRepo) GetAll(ctx context.Context) ([]domain.Swap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	swaps := make([]domain.Swap, 0, len(r.swaps))
	for _, swap := range r.swaps {
		swaps = append(swaps, swap)
	}
	return swaps, nil
}

func (r *fakeSwapRepo) GetPending(ctx context.Context) ([]domain.Swap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var swaps []domain.Swap
	for _, swap := range r.swaps {
		if swap.IsPending() {
			swaps = append(swaps, swap)
		}
	}
	return swaps, nil
}

func (r *fakeSwapRepo) Update(ctx context.Context, swap domain.Swap) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.swaps[swap.PaymentHash] = swap
	return nil
}

func (r *fakeSwapRepo) Close() {}

type fakeCheckpointRepo struct {
	mu          sync.Mutex
	checkpoints map[string]domain.SyncCheckpoint
}

func newFakeCheckpointRepo() *fakeCheckpointRepo {
	return &fakeCheckpointRepo{checkpoints: make(map[string]domain.SyncCheckpoint)}
}

func (r *fakeCheckpointRepo) Get(ctx context.Context, listenerID string) (*domain.SyncCheckpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	checkpoint, ok := r.checkpoints[listenerID]
	if !ok {
		return nil, nil
	}
	return &checkpoint, nil
}

func (r *fakeCheckpointRepo) Put(ctx context.Context, checkpoint domain.SyncCheckpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkpoints[checkpoint.ListenerID] = checkpoint
	return nil
}

func (r *fakeCheckpointRepo) Delete(ctx context.Context, listenerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.checkpoints, listenerID)
	return nil
}

func (r *fakeCheckpointRepo) Close() {}

type fakeRepoManager struct {
	swapRepo       *fakeSwapRepo
	checkpointRepo *fakeCheckpointRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		swapRepo:       newFakeSwapRepo(),
		checkpointRepo: newFakeCheckpointRepo(),
	}
}

func (m *fakeRepoManager) Swaps() domain.SwapRepository             { return m.swapRepo }
func (m *fakeRepoManager) Checkpoints() domain.CheckpointRepository { return m.checkpointRepo }
func (m *fakeRepoManager) Close()                                   {}

type headerKey struct {
	height uint32
	fork   domain.ForkID
}

type submission struct {
	headers []wire.BlockHeader
	mode    ports.SubmitMode
	fork    domain.ForkID
	feeRate uint64
}

type fakeChain struct {
	mu sync.Mutex

	initTxID  string
	initErr   error
	initCalls int

	claimTxID  string
	claimErr   error
	refundTxID string

	status    ports.CommitStatus
	statusErr error

	tip     ports.TipData
	headers map[headerKey]*domain.StoredHeader
	latest  *domain.StoredHeader

	submissions  []submission
	nextForkID   domain.ForkID
	mainFeeCalls int
	forkFeeCalls int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		initTxID:   "0xinit",
		claimTxID:  "0xclaim",
		refundTxID: "0xrefund",
		headers:    make(map[headerKey]*domain.StoredHeader),
		nextForkID: domain.ForkID(1),
	}
}

func (c *fakeChain) Init(ctx context.Context, swap *domain.Swap, auth *sigauth.Authorization) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initCalls++
	if c.initErr != nil {
		return "", c.initErr
	}
	return c.initTxID, nil
}

func (c *fakeChain) Claim(ctx context.Context, swap *domain.Swap, secret []byte) (string, error) {
	if c.claimErr != nil {
		return "", c.claimErr
	}
	return c.claimTxID, nil
}

func (c *fakeChain) ClaimWithProof(ctx context.Context, swap *domain.Swap, proof *spv.Proof) (string, error) {
	if c.claimErr != nil {
		return "", c.claimErr
	}
	return c.claimTxID, nil
}

func (c *fakeChain) Refund(ctx context.Context, swap *domain.Swap, auth *sigauth.Authorization) (string, error) {
	return c.refundTxID, nil
}

func (c *fakeChain) GetCommitStatus(ctx context.Context, paymentHash [32]byte) (ports.CommitStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statusErr != nil {
		return ports.CommitNotCommitted, c.statusErr
	}
	return c.status, nil
}

func (c *fakeChain) setStatus(status ports.CommitStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
}

func (c *fakeChain) GetTipData(ctx context.Context) (ports.TipData, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tip, nil
}

func (c *fakeChain) GetLatestKnownHeader(ctx context.Context) (*domain.StoredHeader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest, nil
}

func (c *fakeChain) GetStoredHeader(ctx context.Context, height uint32, fork domain.ForkID) (*domain.StoredHeader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headers[headerKey{height, fork}], nil
}

func (c *fakeChain) SubmitHeaders(
	ctx context.Context, headers []wire.BlockHeader, mode ports.SubmitMode, fork domain.ForkID, feeRate uint64,
) (ports.SubmitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch := append([]wire.BlockHeader(nil), headers...)
	c.submissions = append(c.submissions, submission{batch, mode, fork, feeRate})

	if mode == ports.SubmitNewFork {
		fork = c.nextForkID
	}
	last := batch[len(batch)-1]
	newTip := domain.StoredHeader{
		Height:     c.tip.Height + uint32(len(batch)),
		Hash:       last.BlockHash(),
		PrevBlock:  last.PrevBlock,
		MerkleRoot: last.MerkleRoot,
		Fork:       fork,
	}
	return ports.SubmitResult{NewTip: newTip, Fork: fork, TxID: "0xsubmit"}, nil
}

func (c *fakeChain) MainFeeRate(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mainFeeCalls++
	return 10, nil
}

func (c *fakeChain) ForkFeeRate(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forkFeeCalls++
	return 13, nil
}

// fakeBtc serves a deterministic header chain indexed by height.
type fakeBtc struct {
	mu        sync.Mutex
	tipHeight uint32
	chain     map[uint32]*wire.BlockHeader

	rawTxs map[chainhash.Hash][]byte
	proofs map[chainhash.Hash]*ports.MerkleProof
}

// buildBtcChain produces a connected header chain from firstHeight to
// tipHeight inclusive.
func buildBtcChain(firstHeight, tipHeight uint32) *fakeBtc {
	btc := &fakeBtc{
		tipHeight: tipHeight,
		chain:     make(map[uint32]*wire.BlockHeader),
		rawTxs:    make(map[chainhash.Hash][]byte),
		proofs:    make(map[chainhash.Hash]*ports.MerkleProof),
	}
	var prev chainhash.Hash
	for h := firstHeight; h <= tipHeight; h++ {
		header := &wire.BlockHeader{
			Version:   2,
			PrevBlock: prev,
			Bits:      0x1d00ffff,
			Nonce:     h,
		}
		btc.chain[h] = header
		prev = header.BlockHash()
	}
	return btc
}

func (b *fakeBtc) GetTipHeight(ctx context.Context) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tipHeight, nil
}

func (b *fakeBtc) GetBlockHash(ctx context.Context, height uint32) (*chainhash.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	header, ok := b.chain[height]
	if !ok {
		return nil, fmt.Errorf("no block at height %d", height)
	}
	hash := header.BlockHash()
	return &hash, nil
}

func (b *fakeBtc) GetBlockHeader(ctx context.Context, height uint32) (*wire.BlockHeader, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	header, ok := b.chain[height]
	if !ok {
		return nil, fmt.Errorf("no block at height %d", height)
	}
	return header, nil
}

func (b *fakeBtc) GetTransactionStatus(ctx context.Context, txid chainhash.Hash) (*ports.TxStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	proof, ok := b.proofs[txid]
	if !ok {
		return &ports.TxStatus{}, nil
	}
	return &ports.TxStatus{Confirmed: true, BlockHeight: proof.BlockHeight}, nil
}

func (b *fakeBtc) GetRawTransaction(ctx context.Context, txid chainhash.Hash) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.rawTxs[txid]
	if !ok {
		return nil, fmt.Errorf("unknown transaction %s", txid)
	}
	return raw, nil
}

func (b *fakeBtc) GetMerkleProof(ctx context.Context, txid chainhash.Hash) (*ports.MerkleProof, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	proof, ok := b.proofs[txid]
	if !ok {
		return nil, fmt.Errorf("no proof for transaction %s", txid)
	}
	return proof, nil
}

// fakeEventSource replays a fixed event log indexed by position.
type fakeEventSource struct {
	mu     sync.Mutex
	events map[uint64][]domain.SwapEvent
	tip    uint64
	live   chan domain.SwapEvent

	filterCalls [][2]uint64
	// filterGate, when set, blocks FilterEvents until released once.
	filterGate chan struct{}
}

func newFakeEventSource(tip uint64) *fakeEventSource {
	return &fakeEventSource{
		events: make(map[uint64][]domain.SwapEvent),
		tip:    tip,
		live:   make(chan domain.SwapEvent, 16),
	}
}

func (s *fakeEventSource) addEvent(position uint64, event domain.SwapEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[position] = append(s.events[position], event)
}

func (s *fakeEventSource) FilterEvents(ctx context.Context, from, to uint64) ([]domain.SwapEvent, uint64, error) {
	s.mu.Lock()
	gate := s.filterGate
	s.filterGate = nil
	s.filterCalls = append(s.filterCalls, [2]uint64{from, to})
	var events []domain.SwapEvent
	for pos := from; pos <= to; pos++ {
		events = append(events, s.events[pos]...)
	}
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, from, ctx.Err()
		}
	}
	return events, to + 1, nil
}

func (s *fakeEventSource) SubscribeEvents(ctx context.Context) (<-chan domain.SwapEvent, error) {
	return s.live, nil
}

func (s *fakeEventSource) TipPosition(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tip, nil
}
