package esplora

import (
	"context"
	"time"

	"github.com/bitlift/bitlift/internal/core/ports"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

type service struct {
	http           *httpService
	electrumClient *ElectrumClient
	useElectrum    bool
}

// NewService creates a new esplora/electrum Bitcoin data source.
// If electrumURL is provided, tip height and merkle proofs go over the
// Electrum protocol; everything else, and all queries when only esploraURL is
// set, use the HTTP REST API.
func NewService(esploraURL, electrumURL string) ports.BitcoinService {
	svc := &service{http: newHTTPService(esploraURL)}
	if electrumURL != "" {
		svc.electrumClient = NewElectrumClient(electrumURL, 10*time.Second)
		svc.useElectrum = true
	}
	return svc
}

func (s *service) GetTipHeight(ctx context.Context) (uint32, error) {
	if s.useElectrum {
		return s.electrumClient.GetBlockchainHeight(ctx)
	}
	return s.http.GetTipHeight(ctx)
}

func (s *service) GetBlockHash(ctx context.Context, height uint32) (*chainhash.Hash, error) {
	return s.http.GetBlockHash(ctx, height)
}

func (s *service) GetBlockHeader(ctx context.Context, height uint32) (*wire.BlockHeader, error) {
	return s.http.GetBlockHeader(ctx, height)
}

func (s *service) GetTransactionStatus(ctx context.Context, txid chainhash.Hash) (*ports.TxStatus, error) {
	return s.http.GetTransactionStatus(ctx, txid)
}

func (s *service) GetRawTransaction(ctx context.Context, txid chainhash.Hash) ([]byte, error) {
	return s.http.GetRawTransaction(ctx, txid)
}

func (s *service) GetMerkleProof(ctx context.Context, txid chainhash.Hash) (*ports.MerkleProof, error) {
	if s.useElectrum {
		status, err := s.http.GetTransactionStatus(ctx, txid)
		if err != nil {
			return nil, err
		}
		if !status.Confirmed {
			return nil, errTxUnconfirmed(txid)
		}
		return s.electrumClient.GetMerkleProof(ctx, txid, status.BlockHeight)
	}
	return s.http.GetMerkleProof(ctx, txid)
}
