package domain

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ForkID identifies which branch of the relayed header chain a header
// belongs to. The on-chain relay encodes three meanings in one integer:
// 0 is the main chain, any positive value is an existing fork, and the
// negative sentinel marks a fork whose id the contract has not assigned yet.
// The encoding is part of the contract ABI and is kept as-is; the helpers
// below give the three meanings names.
type ForkID int32

const (
	MainChain   ForkID = 0
	PendingFork ForkID = -1
)

func (f ForkID) IsMainChain() bool { return f == MainChain }

// IsPending is true while a fork submission has not yet been assigned a
// concrete id by the relay contract.
func (f ForkID) IsPending() bool { return f < 0 }

func (f ForkID) String() string {
	switch {
	case f.IsMainChain():
		return "main"
	case f.IsPending():
		return "pending-fork"
	default:
		return fmt.Sprintf("fork-%d", int32(f))
	}
}

// StoredHeader is a Bitcoin header as committed to the on-chain relay.
// Headers are never deleted; losing forks are superseded, not erased.
type StoredHeader struct {
	Height     uint32
	Hash       chainhash.Hash
	PrevBlock  chainhash.Hash
	MerkleRoot chainhash.Hash
	ChainWork  *big.Int
	Fork       ForkID
}

// CheckExtension verifies that next is a valid successor of prev on the same
// (or parent) fork: height increases by one, the back-link matches, and
// cumulative chain-work does not decrease.
func CheckExtension(prev, next StoredHeader) error {
	if next.Height != prev.Height+1 {
		return fmt.Errorf("header height %d does not extend %d", next.Height, prev.Height)
	}
	if next.PrevBlock != prev.Hash {
		return fmt.Errorf("header at height %d back-link %s does not match %s",
			next.Height, next.PrevBlock, prev.Hash)
	}
	if prev.ChainWork != nil && next.ChainWork != nil &&
		next.ChainWork.Cmp(prev.ChainWork) < 0 {
		return fmt.Errorf("chain-work regressed at height %d", next.Height)
	}
	return nil
}
