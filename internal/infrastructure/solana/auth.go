package solana

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"filippo.io/edwards25519"
	"github.com/bitlift/bitlift/pkg/sigauth"
)

// ParsePublicKey decodes a base58 ed25519 public key and rejects
// non-canonical or off-curve encodings.
func ParsePublicKey(address string) (ed25519.PublicKey, error) {
	raw, err := DecodeAddress(address)
	if err != nil {
		return nil, err
	}
	point, err := new(edwards25519.Point).SetBytes(raw[:])
	if err != nil {
		return nil, fmt.Errorf("invalid public key %q: %w", address, err)
	}
	if point.Equal(edwards25519.NewIdentityPoint()) == 1 {
		return nil, fmt.Errorf("invalid public key %q: identity point", address)
	}
	return ed25519.PublicKey(raw[:]), nil
}

// VerifyAuthorization checks a counterparty authorization signed with an
// ed25519 key. The signature covers the canonical message digest, mirroring
// the secp256k1 path.
func VerifyAuthorization(
	auth *sigauth.Authorization, key ed25519.PublicKey, prefix sigauth.Prefix,
	msg sigauth.Message, now time.Time, gracePeriod time.Duration,
) error {
	if auth == nil {
		return fmt.Errorf("%w: missing authorization", sigauth.ErrSignatureInvalid)
	}
	if auth.Prefix != prefix {
		return fmt.Errorf("%w: got %q, want %q", sigauth.ErrPrefixMismatch, auth.Prefix, prefix)
	}
	if auth.Timeout != msg.Timeout {
		return fmt.Errorf("%w: timeout %d does not match message %d",
			sigauth.ErrSignatureInvalid, auth.Timeout, msg.Timeout)
	}
	if time.Unix(int64(auth.Timeout), 0).Sub(now) < gracePeriod {
		return fmt.Errorf("%w: timeout %d within grace period", sigauth.ErrExpired, auth.Timeout)
	}
	if len(auth.Signature) != ed25519.SignatureSize {
		return fmt.Errorf("%w: got %d signature bytes, want %d",
			sigauth.ErrSignatureInvalid, len(auth.Signature), ed25519.SignatureSize)
	}
	digest := msg.Digest(prefix)
	if !ed25519.Verify(key, digest[:], auth.Signature) {
		return sigauth.ErrSignatureInvalid
	}
	return nil
}
