package solana

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

const pdaMarker = "ProgramDerivedAddress"

// DecodeAddress decodes a base58 address and checks its length.
func DecodeAddress(address string) ([32]byte, error) {
	var key [32]byte
	raw, err := base58.Decode(address)
	if err != nil {
		return key, fmt.Errorf("invalid address %q: %w", address, err)
	}
	if len(raw) != 32 {
		return key, fmt.Errorf("invalid address %q: got %d bytes, want 32", address, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// isOnCurve reports whether b decodes to a valid edwards25519 point. Derived
// addresses must stay off the curve so no private key can exist for them.
func isOnCurve(b [32]byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b[:])
	return err == nil
}

// FindProgramAddress derives the canonical program address for the given
// seeds: the highest bump whose hash falls off the ed25519 curve.
func FindProgramAddress(seeds [][]byte, programID [32]byte) ([32]byte, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{uint8(bump)})
		h.Write(programID[:])
		h.Write([]byte(pdaMarker))

		var addr [32]byte
		copy(addr[:], h.Sum(nil))
		if !isOnCurve(addr) {
			return addr, uint8(bump), nil
		}
	}
	return [32]byte{}, 0, fmt.Errorf("no off-curve address for seeds")
}
