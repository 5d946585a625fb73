package domain_test

import (
	"math/big"
	"testing"

	"github.com/bitlift/bitlift/internal/core/domain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func TestForkID(t *testing.T) {
	require.True(t, domain.MainChain.IsMainChain())
	require.False(t, domain.MainChain.IsPending())
	require.Equal(t, "main", domain.MainChain.String())

	require.True(t, domain.PendingFork.IsPending())
	require.False(t, domain.PendingFork.IsMainChain())
	require.Equal(t, "pending-fork", domain.PendingFork.String())

	fork := domain.ForkID(3)
	require.False(t, fork.IsMainChain())
	require.False(t, fork.IsPending())
	require.Equal(t, "fork-3", fork.String())
}

func TestCheckExtension(t *testing.T) {
	prev := domain.StoredHeader{
		Height:    100,
		Hash:      chainhash.Hash{1},
		ChainWork: big.NewInt(1000),
	}
	next := domain.StoredHeader{
		Height:    101,
		Hash:      chainhash.Hash{2},
		PrevBlock: chainhash.Hash{1},
		ChainWork: big.NewInt(1010),
	}

	require.NoError(t, domain.CheckExtension(prev, next))

	skipped := next
	skipped.Height = 102
	require.Error(t, domain.CheckExtension(prev, skipped))

	brokenLink := next
	brokenLink.PrevBlock = chainhash.Hash{9}
	require.Error(t, domain.CheckExtension(prev, brokenLink))

	regressed := next
	regressed.ChainWork = big.NewInt(999)
	require.Error(t, domain.CheckExtension(prev, regressed))

	// Equal chain-work is tolerated; only regression is rejected.
	equalWork := next
	equalWork.ChainWork = big.NewInt(1000)
	require.NoError(t, domain.CheckExtension(prev, equalWork))
}
