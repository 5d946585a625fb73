package application

import (
	"context"
	"fmt"

	"github.com/bitlift/bitlift/internal/core/domain"
	"github.com/bitlift/bitlift/internal/core/ports"
	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"
)

// RelaySyncConfig tunes the header synchronizer. MaxHeadersMain is higher
// than MaxHeadersFork because fork submissions carry extra proof data and hit
// the target chain's transaction-size limits sooner.
type RelaySyncConfig struct {
	// FetchBatch is how many headers are pulled from the indexer per
	// request.
	FetchBatch uint32
	// MaxHeadersMain caps headers per main-chain submission transaction.
	MaxHeadersMain int
	// MaxHeadersFork caps headers per fork submission transaction.
	MaxHeadersFork int
}

// SyncStats summarizes one synchronizer run.
type SyncStats struct {
	Submissions      int
	HeadersSubmitted int
	StartHeight      uint32
	TipHeight        uint32
	Fork             domain.ForkID
}

// RelaySynchronizer converges the on-chain Bitcoin light client with the
// real Bitcoin chain by submitting header batches. Discovery, batching and
// submission are kept separate so a reorg mid-sync only affects the
// classification step.
type RelaySynchronizer struct {
	chain ports.ChainContract
	btc   ports.BitcoinService
	cfg   RelaySyncConfig
}

func NewRelaySynchronizer(chain ports.ChainContract, btc ports.BitcoinService, cfg RelaySyncConfig) *RelaySynchronizer {
	if cfg.FetchBatch == 0 {
		cfg.FetchBatch = 15
	}
	if cfg.MaxHeadersMain <= 0 {
		cfg.MaxHeadersMain = 15
	}
	if cfg.MaxHeadersFork <= 0 {
		cfg.MaxHeadersFork = cfg.MaxHeadersMain / 2
		if cfg.MaxHeadersFork < 1 {
			cfg.MaxHeadersFork = 1
		}
	}
	return &RelaySynchronizer{chain: chain, btc: btc, cfg: cfg}
}

// syncRun holds the per-run submission state: the current entry-point mode,
// the fork id once known, and lazily fetched fee rates.
type syncRun struct {
	mode ports.SubmitMode
	fork domain.ForkID

	mainFeeRate *uint64
	forkFeeRate *uint64
}

// Sync brings the relay tip to the current real chain tip. It returns the
// stats of the run; a run with zero submissions means the relay was already
// converged.
func (r *RelaySynchronizer) Sync(ctx context.Context) (*SyncStats, error) {
	latest, err := r.chain.GetLatestKnownHeader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read relay tip header: %w", err)
	}
	if latest == nil {
		return nil, fmt.Errorf("relay has no committed headers; bootstrap it first")
	}

	realTip, err := r.btc.GetTipHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read real chain tip: %w", err)
	}

	run := &syncRun{mode: ports.SubmitMain, fork: domain.MainChain}

	startHeight, err := r.classify(ctx, latest, run)
	if err != nil {
		return nil, err
	}

	stats := &SyncStats{StartHeight: startHeight, TipHeight: realTip, Fork: run.fork}
	if startHeight > realTip {
		return stats, nil
	}

	log.Infof("syncing relay from height %d to %d (%s mode)", startHeight, realTip, run.mode)

	batch := make([]wire.BlockHeader, 0, r.batchCap(run.mode))
	for height := startHeight; height <= realTip; {
		fetchEnd := height + r.cfg.FetchBatch - 1
		if fetchEnd > realTip {
			fetchEnd = realTip
		}
		for h := height; h <= fetchEnd; h++ {
			header, err := r.btc.GetBlockHeader(ctx, h)
			if err != nil {
				return stats, fmt.Errorf("failed to fetch header at %d: %w", h, err)
			}
			batch = append(batch, *header)
			if len(batch) == r.batchCap(run.mode) {
				if err := r.submit(ctx, run, batch, stats); err != nil {
					return stats, err
				}
				batch = batch[:0]
			}
		}
		height = fetchEnd + 1
	}

	// Flush the final partial batch.
	if len(batch) > 0 {
		if err := r.submit(ctx, run, batch, stats); err != nil {
			return stats, err
		}
	}

	stats.Fork = run.fork
	log.Infof("relay synced to height %d in %d submissions (%s)",
		stats.TipHeight, stats.Submissions, run.fork)
	return stats, nil
}

// classify decides whether the run extends the main chain or has to open a
// fork, and returns the first height to submit. The relay tip may be stale or
// on a losing branch: if the real chain's hash at the relay tip height does
// not match, the run starts in pending-fork mode from the last common
// ancestor.
func (r *RelaySynchronizer) classify(ctx context.Context, latest *domain.StoredHeader, run *syncRun) (uint32, error) {
	realHash, err := r.btc.GetBlockHash(ctx, latest.Height)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch block hash at %d: %w", latest.Height, err)
	}
	if *realHash == latest.Hash {
		return latest.Height + 1, nil
	}

	log.Warnf("relay tip %s at height %d is not on the real chain; opening fork",
		latest.Hash, latest.Height)
	run.mode = ports.SubmitNewFork
	run.fork = domain.PendingFork

	forkPoint, err := r.findForkPoint(ctx, latest.Height)
	if err != nil {
		return 0, err
	}
	return forkPoint + 1, nil
}

// findForkPoint walks backward until the relay's committed header matches the
// real chain again.
func (r *RelaySynchronizer) findForkPoint(ctx context.Context, fromHeight uint32) (uint32, error) {
	for height := fromHeight; height > 0; height-- {
		stored, err := r.chain.GetStoredHeader(ctx, height, domain.MainChain)
		if err != nil {
			return 0, fmt.Errorf("failed to read relay header at %d: %w", height, err)
		}
		if stored == nil {
			continue
		}
		realHash, err := r.btc.GetBlockHash(ctx, height)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch block hash at %d: %w", height, err)
		}
		if *realHash == stored.Hash {
			return height, nil
		}
	}
	return 0, fmt.Errorf("no common ancestor found between relay and real chain")
}

func (r *RelaySynchronizer) submit(ctx context.Context, run *syncRun, batch []wire.BlockHeader, stats *SyncStats) error {
	feeRate, err := r.feeRate(ctx, run)
	if err != nil {
		return err
	}

	res, err := r.chain.SubmitHeaders(ctx, batch, run.mode, run.fork, feeRate)
	if err != nil {
		return fmt.Errorf("failed to submit %d headers (%s): %w", len(batch), run.mode, err)
	}

	stats.Submissions++
	stats.HeadersSubmitted += len(batch)
	log.WithField("txid", res.TxID).Debugf("submitted %d headers (%s, fee rate %d), relay tip now %d",
		len(batch), run.mode, feeRate, res.NewTip.Height)

	// The first fork-creating submission fixes the fork id for the rest of
	// the run.
	if run.mode == ports.SubmitNewFork {
		run.mode = ports.SubmitForkExtend
		run.fork = res.Fork
	}
	return nil
}

func (r *RelaySynchronizer) batchCap(mode ports.SubmitMode) int {
	if mode == ports.SubmitMain {
		return r.cfg.MaxHeadersMain
	}
	return r.cfg.MaxHeadersFork
}

// feeRate returns the cached fee rate for the run's current mode, fetching it
// at most once per run and per mode.
func (r *RelaySynchronizer) feeRate(ctx context.Context, run *syncRun) (uint64, error) {
	if run.mode == ports.SubmitMain {
		if run.mainFeeRate == nil {
			rate, err := r.chain.MainFeeRate(ctx)
			if err != nil {
				return 0, fmt.Errorf("failed to fetch main fee rate: %w", err)
			}
			run.mainFeeRate = &rate
		}
		return *run.mainFeeRate, nil
	}
	if run.forkFeeRate == nil {
		rate, err := r.chain.ForkFeeRate(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch fork fee rate: %w", err)
		}
		run.forkFeeRate = &rate
	}
	return *run.forkFeeRate, nil
}
