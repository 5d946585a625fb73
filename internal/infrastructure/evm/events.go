package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/bitlift/bitlift/internal/core/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	log "github.com/sirupsen/logrus"
)

func (c *Contract) filterQuery(from, to *big.Int) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: from,
		ToBlock:   to,
		Addresses: []common.Address{c.address},
		Topics: [][]common.Hash{{
			c.committedTopic, c.claimedTopic, c.refundedTopic,
		}},
	}
}

func (c *Contract) FilterEvents(ctx context.Context, from, to uint64) ([]domain.SwapEvent, uint64, error) {
	logs, err := c.client.FilterLogs(ctx, c.filterQuery(
		new(big.Int).SetUint64(from), new(big.Int).SetUint64(to),
	))
	if err != nil {
		return nil, from, domain.Transient("eth filter logs", err)
	}

	events := make([]domain.SwapEvent, 0, len(logs))
	for _, l := range logs {
		event, err := c.decodeLog(l)
		if err != nil {
			log.WithError(err).Warnf("skipping undecodable log in tx %s", l.TxHash)
			continue
		}
		events = append(events, event)
	}
	return events, to + 1, nil
}

func (c *Contract) SubscribeEvents(ctx context.Context) (<-chan domain.SwapEvent, error) {
	logs := make(chan types.Log, 64)
	sub, err := c.client.SubscribeFilterLogs(ctx, c.filterQuery(nil, nil), logs)
	if err != nil {
		return nil, domain.Transient("eth subscribe logs", err)
	}

	events := make(chan domain.SwapEvent, 64)
	go func() {
		defer close(events)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					log.WithError(err).Warn("eth log subscription closed")
				}
				return
			case l := <-logs:
				event, err := c.decodeLog(l)
				if err != nil {
					log.WithError(err).Warnf("skipping undecodable log in tx %s", l.TxHash)
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, nil
}

func (c *Contract) TipPosition(ctx context.Context) (uint64, error) {
	height, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, domain.Transient("eth block number", err)
	}
	return height, nil
}

// decodeLog maps a raw contract log onto the closed swap event set. The
// payment hash is always the first indexed topic.
func (c *Contract) decodeLog(l types.Log) (domain.SwapEvent, error) {
	if len(l.Topics) < 2 {
		return nil, fmt.Errorf("log has %d topics, want at least 2", len(l.Topics))
	}
	var paymentHash [32]byte
	copy(paymentHash[:], l.Topics[1].Bytes())

	switch l.Topics[0] {
	case c.committedTopic:
		return domain.CommitObservedEvent{
			PaymentHash: paymentHash,
			TxID:        l.TxHash.Hex(),
			Height:      l.BlockNumber,
		}, nil
	case c.claimedTopic:
		out, err := c.abi.Events["Claimed"].Inputs.NonIndexed().Unpack(l.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack claimed event: %w", err)
		}
		var secret []byte
		if len(out) > 0 {
			if s, ok := out[0].([32]byte); ok {
				secret = s[:]
			}
		}
		return domain.ClaimedEvent{
			PaymentHash: paymentHash,
			TxID:        l.TxHash.Hex(),
			Height:      l.BlockNumber,
			Secret:      secret,
		}, nil
	case c.refundedTopic:
		return domain.RefundedEvent{
			PaymentHash: paymentHash,
			TxID:        l.TxHash.Hex(),
			Height:      l.BlockNumber,
		}, nil
	default:
		return nil, fmt.Errorf("unknown event topic %s", l.Topics[0])
	}
}
