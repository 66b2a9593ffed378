// Package fhe models the engine's encrypted value capability: opaque
// handles to encrypted unsigned 128-bit integers supporting homomorphic
// add/subtract, trivial encryption of plaintext values, and encrypted
// comparison. No caller ever reads a plaintext through this package's
// Scheme interface; plaintexts are revealed only by the decryption oracle,
// which holds the Keeper.
package fhe

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/veilswap/veilswap/core/types"
)

// Handle is the opaque reference to an encrypted 128-bit value.
type Handle = types.Hash

var (
	ErrUnknownHandle = errors.New("fhe: unknown ciphertext handle")
	ErrNilValue      = errors.New("fhe: nil plaintext value")
	ErrValueTooWide  = errors.New("fhe: plaintext exceeds 128 bits")
)

// Scheme is the homomorphic capability surface available to the engine.
// All arithmetic is modulo 2^128; Sub wraps on underflow, which is why
// escrow sufficiency is attested separately via Le before any debit.
type Scheme interface {
	// TrivialEncrypt wraps a plaintext into a fresh ciphertext handle.
	TrivialEncrypt(v *uint256.Int) (Handle, error)

	// Add returns a handle to a + b (mod 2^128).
	Add(a, b Handle) (Handle, error)

	// Sub returns a handle to a - b (mod 2^128).
	Sub(a, b Handle) (Handle, error)

	// Le returns a handle to an encrypted boolean: 1 when a <= b, else 0.
	Le(a, b Handle) (Handle, error)
}

// Revealer is the decryption side of the capability. Only the threshold
// decryption oracle service holds a Revealer; engine code must never see one.
type Revealer interface {
	// Reveal decrypts the value behind a handle.
	Reveal(h Handle) (*uint256.Int, error)
}
