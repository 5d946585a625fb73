// Package sigauth builds and verifies the time-bounded off-chain signatures
// that authorize swap escrow operations. The canonical message layout is a
// compatibility contract shared with the on-chain programs and must stay
// bit-exact.
package sigauth

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Prefix is the ASCII context tag distinguishing what an authorization is
// for. A signature produced under one prefix is never valid under another.
type Prefix string

const (
	PrefixInitialize      Prefix = "initialize"
	PrefixClaimInitialize Prefix = "claim_initialize"
	PrefixRefund          Prefix = "refund"
)

var (
	// ErrPrefixMismatch means the authorization was produced for a
	// different operation. Hard rejection, never retried.
	ErrPrefixMismatch = errors.New("authorization prefix mismatch")

	// ErrExpired means the authorization timeout is within the grace
	// period. The caller must obtain a fresh one.
	ErrExpired = errors.New("authorization expired")

	// ErrSignatureInvalid means the signature does not verify against the
	// expected counterparty key.
	ErrSignatureInvalid = errors.New("authorization signature invalid")
)

// Message holds the swap parameters bound by an authorization.
type Message struct {
	Amount      uint64
	Expiry      uint64
	Sequence    uint64
	PaymentHash [32]byte
	Timeout     uint64
}

// Authorization is an immutable signed grant for one escrow operation.
// Anchor is a chain-specific freshness reference (e.g. a recent block hash)
// with its own, tighter validity window enforced by the chain adapter.
type Authorization struct {
	Prefix    Prefix
	Timeout   uint64
	Signature []byte
	Anchor    []byte
}

// Serialize returns the canonical message bytes:
// prefix ‖ amount LE8 ‖ expiry LE8 ‖ sequence LE8 ‖ paymentHash ‖ timeout LE8.
func (m Message) Serialize(prefix Prefix) []byte {
	buf := make([]byte, 0, len(prefix)+8*4+32)
	buf = append(buf, []byte(prefix)...)
	buf = binary.LittleEndian.AppendUint64(buf, m.Amount)
	buf = binary.LittleEndian.AppendUint64(buf, m.Expiry)
	buf = binary.LittleEndian.AppendUint64(buf, m.Sequence)
	buf = append(buf, m.PaymentHash[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, m.Timeout)
	return buf
}

// Digest hashes the canonical message bytes for signing.
func (m Message) Digest(prefix Prefix) [32]byte {
	return sha256.Sum256(m.Serialize(prefix))
}

// Sign produces an authorization over msg, valid until msg.Timeout.
func Sign(key *btcec.PrivateKey, prefix Prefix, msg Message, anchor []byte) *Authorization {
	digest := msg.Digest(prefix)
	sig := ecdsa.Sign(key, digest[:])
	return &Authorization{
		Prefix:    prefix,
		Timeout:   msg.Timeout,
		Signature: sig.Serialize(),
		Anchor:    anchor,
	}
}

// Verify checks an authorization against the expected operation context,
// counterparty key and grace period. The message timeout must match the
// authorization's and leave at least gracePeriod of validity.
func Verify(
	auth *Authorization, key *btcec.PublicKey, prefix Prefix, msg Message,
	now time.Time, gracePeriod time.Duration,
) error {
	if auth == nil {
		return fmt.Errorf("%w: missing authorization", ErrSignatureInvalid)
	}
	if auth.Prefix != prefix {
		return fmt.Errorf("%w: got %q, want %q", ErrPrefixMismatch, auth.Prefix, prefix)
	}
	if auth.Timeout != msg.Timeout {
		return fmt.Errorf("%w: timeout %d does not match message %d",
			ErrSignatureInvalid, auth.Timeout, msg.Timeout)
	}
	if time.Unix(int64(auth.Timeout), 0).Sub(now) < gracePeriod {
		return fmt.Errorf("%w: timeout %d within grace period", ErrExpired, auth.Timeout)
	}
	sig, err := ecdsa.ParseDERSignature(auth.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	digest := msg.Digest(prefix)
	if !sig.Verify(digest[:], key) {
		return ErrSignatureInvalid
	}
	return nil
}
