// Package spv verifies that a Bitcoin transaction is included in a block
// committed to the on-chain light-client relay, without trusting the indexer
// that served the proof.
package spv

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ErrRootMismatch means the recomputed merkle root does not match the
// committed one. Fatal: either the proof is fraudulent or the relay is
// corrupted.
var ErrRootMismatch = errors.New("recomputed merkle root does not match committed root")

// Proof is a merkle inclusion path for one transaction.
type Proof struct {
	TxID        chainhash.Hash
	BlockHeight uint32
	// Position is the transaction's index within the block.
	Position uint32
	// Siblings are the hashes along the path from the transaction to the
	// root, leaf level first.
	Siblings []chainhash.Hash
}

// MerkleRoot folds the txid with each sibling according to the position's
// parity at that level, using Bitcoin's double-SHA256 node hash.
func (p *Proof) MerkleRoot() chainhash.Hash {
	node := p.TxID
	pos := p.Position
	for _, sibling := range p.Siblings {
		var buf [64]byte
		if pos&1 == 1 {
			copy(buf[:32], sibling[:])
			copy(buf[32:], node[:])
		} else {
			copy(buf[:32], node[:])
			copy(buf[32:], sibling[:])
		}
		node = chainhash.DoubleHashH(buf[:])
		pos >>= 1
	}
	return node
}

// Verify checks the proof against the merkle root committed at the proof's
// height.
func (p *Proof) Verify(committedRoot chainhash.Hash) error {
	if got := p.MerkleRoot(); got != committedRoot {
		return fmt.Errorf("%w: got %s, want %s", ErrRootMismatch, got, committedRoot)
	}
	return nil
}

// Confirmations returns the proof's confirmation depth at the given tip.
func (p *Proof) Confirmations(tipHeight uint32) uint32 {
	if tipHeight < p.BlockHeight {
		return 0
	}
	return tipHeight - p.BlockHeight + 1
}

// TxoHash is the content commitment to an expected Bitcoin output:
// SHA256(value LE8 ‖ scriptPubKey). It lets a swap recognize its payment
// without pre-announcing the destination address's purpose.
func TxoHash(value uint64, pkScript []byte) [32]byte {
	buf := make([]byte, 0, 8+len(pkScript))
	buf = binary.LittleEndian.AppendUint64(buf, value)
	buf = append(buf, pkScript...)
	return sha256.Sum256(buf)
}

// FindOutput scans a raw transaction for the output matching txoHash and
// returns its index, or -1 if no output matches.
func FindOutput(rawTx []byte, txoHash [32]byte) (int, error) {
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return -1, fmt.Errorf("failed to deserialize transaction: %w", err)
	}
	for i, out := range tx.TxOut {
		if TxoHash(uint64(out.Value), out.PkScript) == txoHash {
			return i, nil
		}
	}
	return -1, nil
}
