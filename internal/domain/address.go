package domain

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Address is a base58-encoded 32-byte account key.
type Address string

// ZeroAddress is the mint/burn sentinel. It is never a valid holder.
const ZeroAddress Address = ""

// IsZero reports whether the address is the zero sentinel.
func (a Address) IsZero() bool { return a == ZeroAddress }

// Validate checks that the address decodes to exactly 32 bytes.
func (a Address) Validate() error {
	if a.IsZero() {
		return fmt.Errorf("zero address")
	}
	raw, err := base58.Decode(string(a))
	if err != nil {
		return fmt.Errorf("decode address: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("address must decode to 32 bytes, got %d", len(raw))
	}
	return nil
}

// AddressFromBytes encodes a 32-byte key as a base58 address.
func AddressFromBytes(raw [32]byte) Address {
	return Address(base58.Encode(raw[:]))
}

// DeriveCustodyAddress derives a deterministic off-curve address for
// contract-held balances from a label and a sequence of seeds.
// Off-curve keys have no corresponding private key, so custody balances
// cannot be spent by an external signer.
func DeriveCustodyAddress(label string, seeds ...string) Address {
	for bump := 0; bump < 256; bump++ {
		data := []byte(label)
		for _, seed := range seeds {
			data = append(data, '|')
			data = append(data, seed...)
		}
		data = append(data, byte(bump))

		hash := sha256.Sum256(data)
		if !isOnCurve(hash[:]) {
			return Address(base58.Encode(hash[:]))
		}
	}
	// Unreachable in practice: roughly half of all candidates are off-curve.
	panic("custody address derivation exhausted bump space")
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
