package badgerdb

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/bitlift/bitlift/internal/core/domain"
	"github.com/bitlift/bitlift/pkg/sigauth"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const swapDir = "swaps"

type swapRepository struct {
	store *badgerhold.Store
}

func NewSwapRepository(baseDir string, logger badger.Logger) (domain.SwapRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, swapDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open swap store: %s", err)
	}
	return &swapRepository{store}, nil
}

func (r *swapRepository) Add(ctx context.Context, swap domain.Swap) error {
	return r.store.Insert(swapKey(swap.PaymentHash), toSwapData(swap))
}

func (r *swapRepository) Get(ctx context.Context, paymentHash [32]byte) (*domain.Swap, error) {
	var data swapData
	err := r.store.Get(swapKey(paymentHash), &data)
	if err == badgerhold.ErrNotFound {
		return nil, domain.ErrSwapNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get swap: %w", err)
	}

	swap, err := data.toSwap()
	if err != nil {
		return nil, err
	}
	return &swap, nil
}

func (r *swapRepository) GetAll(ctx context.Context) ([]domain.Swap, error) {
	var dataList []swapData
	if err := r.store.Find(&dataList, nil); err != nil {
		return nil, fmt.Errorf("failed to get all swaps: %w", err)
	}

	swaps := make([]domain.Swap, 0, len(dataList))
	for _, data := range dataList {
		swap, err := data.toSwap()
		if err != nil {
			return nil, err
		}
		swaps = append(swaps, swap)
	}
	return swaps, nil
}

func (r *swapRepository) GetPending(ctx context.Context) ([]domain.Swap, error) {
	swaps, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	pending := make([]domain.Swap, 0, len(swaps))
	for _, swap := range swaps {
		if swap.IsPending() {
			pending = append(pending, swap)
		}
	}
	return pending, nil
}

func (r *swapRepository) Update(ctx context.Context, swap domain.Swap) error {
	return r.store.Upsert(swapKey(swap.PaymentHash), toSwapData(swap))
}

func (r *swapRepository) Close() {
	// nolint:all
	r.store.Close()
}

func swapKey(paymentHash [32]byte) string {
	return hex.EncodeToString(paymentHash[:])
}

type swapData struct {
	PaymentHash           string
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
	TxoHash               string
	RequiredConfirmations uint32
	State                 domain.SwapState
	CreatedAt             int64
	CommitTxID            string
	ClaimTxID             string
	RefundTxID            string
	AuthPrefix            string
	AuthTimeout           uint64
	AuthSignature         string
	AuthAnchor            string
	ErrorMessage          string
}

func toSwapData(swap domain.Swap) swapData {
	data := swapData{
		PaymentHash:           hex.EncodeToString(swap.PaymentHash[:]),
		Offerer:               swap.Offerer,
		Claimer:               swap.Claimer,
		Token:                 swap.Token,
		Amount:                swap.Amount,
		SecurityDeposit:       swap.SecurityDeposit,
		ClaimerBounty:         swap.ClaimerBounty,
		Sequence:              swap.Sequence,
		ExpiresAt:             swap.ExpiresAt,
		PayIn:                 swap.PayIn,
		PayOut:                swap.PayOut,
		TxoHash:               hex.EncodeToString(swap.TxoHash),
		RequiredConfirmations: swap.RequiredConfirmations,
		State:                 swap.State,
		CreatedAt:             swap.CreatedAt,
		CommitTxID:            swap.CommitTxID,
		ClaimTxID:             swap.ClaimTxID,
		RefundTxID:            swap.RefundTxID,
		ErrorMessage:          swap.ErrorMessage,
	}
	if swap.Authorization != nil {
		data.AuthPrefix = string(swap.Authorization.Prefix)
		data.AuthTimeout = swap.Authorization.Timeout
		data.AuthSignature = hex.EncodeToString(swap.Authorization.Signature)
		data.AuthAnchor = hex.EncodeToString(swap.Authorization.Anchor)
	}
	return data
}

func (d *swapData) toSwap() (domain.Swap, error) {
	hashBytes, err := hex.DecodeString(d.PaymentHash)
	if err != nil || len(hashBytes) != 32 {
		return domain.Swap{}, fmt.Errorf("invalid payment hash %q", d.PaymentHash)
	}
	var paymentHash [32]byte
	copy(paymentHash[:], hashBytes)

	var txoHash []byte
	if len(d.TxoHash) > 0 {
		txoHash, err = hex.DecodeString(d.TxoHash)
		if err != nil {
			return domain.Swap{}, fmt.Errorf("invalid txo hash %q", d.TxoHash)
		}
	}

	var auth *sigauth.Authorization
	if len(d.AuthSignature) > 0 {
		sig, err := hex.DecodeString(d.AuthSignature)
		if err != nil {
			return domain.Swap{}, fmt.Errorf("invalid authorization signature: %w", err)
		}
		var anchor []byte
		if len(d.AuthAnchor) > 0 {
			anchor, err = hex.DecodeString(d.AuthAnchor)
			if err != nil {
				return domain.Swap{}, fmt.Errorf("invalid authorization anchor: %w", err)
			}
		}
		auth = &sigauth.Authorization{
			Prefix:    sigauth.Prefix(d.AuthPrefix),
			Timeout:   d.AuthTimeout,
			Signature: sig,
			Anchor:    anchor,
		}
	}

	return domain.Swap{
		PaymentHash:           paymentHash,
		Offerer:               d.Offerer,
		Claimer:               d.Claimer,
		Token:                 d.Token,
		Amount:                d.Amount,
		SecurityDeposit:       d.SecurityDeposit,
		ClaimerBounty:         d.ClaimerBounty,
		Sequence:              d.Sequence,
		ExpiresAt:             d.ExpiresAt,
		PayIn:                 d.PayIn,
		PayOut:                d.PayOut,
		TxoHash:               txoHash,
		RequiredConfirmations: d.RequiredConfirmations,
		State:                 d.State,
		CreatedAt:             d.CreatedAt,
		CommitTxID:            d.CommitTxID,
		ClaimTxID:             d.ClaimTxID,
		RefundTxID:            d.RefundTxID,
		Authorization:         auth,
		ErrorMessage:          d.ErrorMessage,
	}, nil
}
