package domain

// SwapEvent is one decoded on-chain log concerning a swap. The set of kinds
// is closed: CommitObservedEvent, ClaimedEvent and RefundedEvent. Delivery is
// at-least-once; handlers must treat replays as no-ops.
type SwapEvent interface {
	SwapPaymentHash() [32]byte
	swapEvent()
}

// CommitObservedEvent signals that escrow for the swap was committed
// on-chain, possibly by a transaction this process did not send.
type CommitObservedEvent struct {
	PaymentHash [32]byte
	TxID        string
	Height      uint64
}

// ClaimedEvent signals that the escrow was claimed. Secret carries the
// revealed preimage when the claim was by secret-reveal, nil for SPV claims.
type ClaimedEvent struct {
	PaymentHash [32]byte
	TxID        string
	Height      uint64
	Secret      []byte
}

// RefundedEvent signals that the escrow was refunded to the offerer.
type RefundedEvent struct {
	PaymentHash [32]byte
	TxID        string
	Height      uint64
}

func (e CommitObservedEvent) SwapPaymentHash() [32]byte { return e.PaymentHash }
func (e ClaimedEvent) SwapPaymentHash() [32]byte        { return e.PaymentHash }
func (e RefundedEvent) SwapPaymentHash() [32]byte       { return e.PaymentHash }

func (CommitObservedEvent) swapEvent() {}
func (ClaimedEvent) swapEvent()        {}
func (RefundedEvent) swapEvent()       {}
