package solana

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bitlift/bitlift/internal/core/domain"
)

// The escrow program reports swap transitions as log lines:
//
//	Program log: swap_committed <payment hash hex>
//	Program log: swap_claimed <payment hash hex> <secret hex>
//	Program log: swap_refunded <payment hash hex>
const (
	logPrefix        = "Program log: "
	committedMarker  = "swap_committed"
	claimedMarker    = "swap_claimed"
	refundedMarker   = "swap_refunded"
	signaturePerPage = 1000
)

func parseLogs(signature string, slot uint64, logs []string) []domain.SwapEvent {
	var events []domain.SwapEvent
	for _, line := range logs {
		body, ok := strings.CutPrefix(line, logPrefix)
		if !ok {
			continue
		}
		fields := strings.Fields(body)
		if len(fields) < 2 {
			continue
		}
		paymentHash, err := decodePaymentHash(fields[1])
		if err != nil {
			continue
		}

		switch fields[0] {
		case committedMarker:
			events = append(events, domain.CommitObservedEvent{
				PaymentHash: paymentHash, TxID: signature, Height: slot,
			})
		case claimedMarker:
			var secret []byte
			if len(fields) > 2 {
				secret, _ = hex.DecodeString(fields[2])
			}
			events = append(events, domain.ClaimedEvent{
				PaymentHash: paymentHash, TxID: signature, Height: slot, Secret: secret,
			})
		case refundedMarker:
			events = append(events, domain.RefundedEvent{
				PaymentHash: paymentHash, TxID: signature, Height: slot,
			})
		}
	}
	return events
}

func decodePaymentHash(s string) ([32]byte, error) {
	var hash [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return hash, err
	}
	if len(raw) != 32 {
		return hash, fmt.Errorf("payment hash is %d bytes, want 32", len(raw))
	}
	copy(hash[:], raw)
	return hash, nil
}

func (p *Program) FilterEvents(ctx context.Context, from, to uint64) ([]domain.SwapEvent, uint64, error) {
	// The history endpoint pages newest first, so collect the signatures in
	// the slot window before replaying them in order.
	var window []SignatureInfo
	before := ""
	for {
		page, err := p.client.GetSignaturesForAddress(ctx, p.address, before, signaturePerPage)
		if err != nil {
			return nil, from, err
		}
		if len(page) == 0 {
			break
		}
		for _, info := range page {
			if info.Err != nil || info.Slot > to {
				continue
			}
			if info.Slot < from {
				break
			}
			window = append(window, info)
		}
		oldest := page[len(page)-1]
		if oldest.Slot < from || len(page) < signaturePerPage {
			break
		}
		before = oldest.Signature
	}

	events := make([]domain.SwapEvent, 0, len(window))
	for i := len(window) - 1; i >= 0; i-- {
		info := window[i]
		logs, slot, err := p.client.GetTransactionLogs(ctx, info.Signature)
		if err != nil {
			return nil, from, err
		}
		events = append(events, parseLogs(info.Signature, slot, logs)...)
	}
	return events, to + 1, nil
}

func (p *Program) SubscribeEvents(ctx context.Context) (<-chan domain.SwapEvent, error) {
	notifications := subscribeLogs(ctx, p.wsEndpoint, p.address)
	events := make(chan domain.SwapEvent, 64)
	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-notifications:
				if !ok {
					return
				}
				if n.Err != nil {
					continue
				}
				for _, event := range parseLogs(n.Signature, n.Slot, n.Logs) {
					select {
					case events <- event:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return events, nil
}

func (p *Program) TipPosition(ctx context.Context) (uint64, error) {
	return p.client.GetSlot(ctx)
}
