package ports

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// TxStatus is the confirmation status of a Bitcoin transaction as reported
// by the indexer.
type TxStatus struct {
	Confirmed   bool
	BlockHeight uint32
	BlockHash   chainhash.Hash
}

// MerkleProof is the inclusion path of a transaction within its block.
type MerkleProof struct {
	BlockHeight uint32
	Position    uint32
	Siblings    []chainhash.Hash
}

// BitcoinService is an untrusted, retryable Bitcoin indexer. Everything it
// returns is verified against the on-chain relay before being acted on.
type BitcoinService interface {
	GetTipHeight(ctx context.Context) (uint32, error)
	GetBlockHash(ctx context.Context, height uint32) (*chainhash.Hash, error)
	GetBlockHeader(ctx context.Context, height uint32) (*wire.BlockHeader, error)
	GetTransactionStatus(ctx context.Context, txid chainhash.Hash) (*TxStatus, error)
	GetRawTransaction(ctx context.Context, txid chainhash.Hash) ([]byte, error)
	GetMerkleProof(ctx context.Context, txid chainhash.Hash) (*MerkleProof, error)
}
