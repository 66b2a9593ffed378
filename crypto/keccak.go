// Package crypto provides the hashing and signature primitives used by the
// confidential swap engine: Keccak256 for identifiers and digests, secp256k1
// ECDSA for oracle callback authentication, and a pluggable BLS backend for
// operator batch proofs.
package crypto

import (
	"golang.org/x/crypto/sha3"

	"github.com/veilswap/veilswap/core/types"
)

// Keccak256 calculates the Keccak-256 hash of the given data.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash calculates Keccak-256 and returns it as a types.Hash.
func Keccak256Hash(data ...[]byte) types.Hash {
	return types.BytesToHash(Keccak256(data...))
}
