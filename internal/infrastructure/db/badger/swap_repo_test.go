package badgerdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/bitlift/bitlift/internal/core/domain"
	badgerdb "github.com/bitlift/bitlift/internal/infrastructure/db/badger"
	"github.com/bitlift/bitlift/pkg/sigauth"
	"github.com/stretchr/testify/require"
)

func newTestSwap(hash byte) domain.Swap {
	now := time.Now().Unix()
	return domain.Swap{
		PaymentHash:           [32]byte{hash},
		Offerer:               "0xofferer",
		Claimer:               "0xclaimer",
		Token:                 "0xtoken",
		Amount:                250000,
		SecurityDeposit:       1000,
		ClaimerBounty:         500,
		Sequence:              7,
		ExpiresAt:             now + 3600,
		PayIn:                 true,
		TxoHash:               []byte{0xde, 0xad, 0xbe, 0xef},
		RequiredConfirmations: 3,
		State:                 domain.SwapCreated,
		CreatedAt:             now,
	}
}

func TestSwapRepositoryRoundTrip(t *testing.T) {
	repo, err := badgerdb.NewSwapRepository("", nil)
	require.NoError(t, err)
	defer repo.Close()
	ctx := context.Background()

	swap := newTestSwap(1)
	swap.Authorization = &sigauth.Authorization{
		Prefix:    sigauth.PrefixInitialize,
		Timeout:   uint64(swap.ExpiresAt),
		Signature: []byte{1, 2, 3, 4},
		Anchor:    []byte{5, 6, 7, 8},
	}
	require.NoError(t, repo.Add(ctx, swap))

	got, err := repo.Get(ctx, swap.PaymentHash)
	require.NoError(t, err)
	require.Equal(t, swap, *got)
}

func TestSwapRepositoryGetUnknown(t *testing.T) {
	repo, err := badgerdb.NewSwapRepository("", nil)
	require.NoError(t, err)
	defer repo.Close()

	_, err = repo.Get(context.Background(), [32]byte{0xff})
	require.ErrorIs(t, err, domain.ErrSwapNotFound)
}

func TestSwapRepositoryUpdate(t *testing.T) {
	repo, err := badgerdb.NewSwapRepository("", nil)
	require.NoError(t, err)
	defer repo.Close()
	ctx := context.Background()

	swap := newTestSwap(2)
	require.NoError(t, repo.Add(ctx, swap))

	require.True(t, swap.Committed("0xcommit"))
	require.NoError(t, repo.Update(ctx, swap))

	got, err := repo.Get(ctx, swap.PaymentHash)
	require.NoError(t, err)
	require.Equal(t, domain.SwapCommitted, got.State)
	require.Equal(t, "0xcommit", got.CommitTxID)
}

func TestSwapRepositoryGetPending(t *testing.T) {
	repo, err := badgerdb.NewSwapRepository("", nil)
	require.NoError(t, err)
	defer repo.Close()
	ctx := context.Background()

	pending := newTestSwap(3)
	require.NoError(t, repo.Add(ctx, pending))

	claimed := newTestSwap(4)
	require.True(t, claimed.Committed("0xcommit"))
	require.True(t, claimed.PaymentObserved())
	require.True(t, claimed.Claimed("0xclaim"))
	require.NoError(t, repo.Add(ctx, claimed))

	swaps, err := repo.GetPending(ctx)
	require.NoError(t, err)
	require.Len(t, swaps, 1)
	require.Equal(t, pending.PaymentHash, swaps[0].PaymentHash)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestCheckpointRepository(t *testing.T) {
	repo, err := badgerdb.NewCheckpointRepository("", nil)
	require.NoError(t, err)
	defer repo.Close()
	ctx := context.Background()

	got, err := repo.Get(ctx, "listener")
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, repo.Put(ctx, domain.SyncCheckpoint{ListenerID: "listener", Height: 42}))
	require.NoError(t, repo.Put(ctx, domain.SyncCheckpoint{ListenerID: "listener", Height: 100}))

	got, err = repo.Get(ctx, "listener")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, uint64(100), got.Height)
}
