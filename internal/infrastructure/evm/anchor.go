package evm

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/bitlift/bitlift/pkg/sigauth"
)

// Authorization anchors bind a signed grant to a recent block:
// block number LE8 followed by the 32-byte block hash. The anchor's validity
// window is measured in blocks and is much tighter than the explicit timeout.
const anchorLen = 8 + 32

// NewAnchor captures the current tip as a freshness anchor.
func (c *Contract) NewAnchor(ctx context.Context) ([]byte, error) {
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tip header: %w", err)
	}
	anchor := make([]byte, 0, anchorLen)
	anchor = binary.LittleEndian.AppendUint64(anchor, header.Number.Uint64())
	hash := header.Hash()
	return append(anchor, hash[:]...), nil
}

// VerifyAnchor checks that an authorization's anchor references a canonical
// block no older than maxAge blocks.
func (c *Contract) VerifyAnchor(ctx context.Context, auth *sigauth.Authorization, maxAge uint64) error {
	if auth == nil || len(auth.Anchor) != anchorLen {
		return fmt.Errorf("%w: malformed anchor", sigauth.ErrSignatureInvalid)
	}
	number := binary.LittleEndian.Uint64(auth.Anchor[:8])

	tip, err := c.client.BlockNumber(ctx)
	if err != nil {
		return err
	}
	if number > tip || tip-number > maxAge {
		return fmt.Errorf("%w: anchor block %d older than %d blocks", sigauth.ErrExpired, number, maxAge)
	}

	header, err := c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return fmt.Errorf("failed to fetch anchor block %d: %w", number, err)
	}
	hash := header.Hash()
	if !bytes.Equal(auth.Anchor[8:], hash[:]) {
		return fmt.Errorf("%w: anchor hash does not match block %d", sigauth.ErrSignatureInvalid, number)
	}
	return nil
}
