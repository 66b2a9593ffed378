package crypto

import (
	"errors"
	"sync"
)

// BLS signature sizes for the MinPk scheme (public keys in G1, signatures in
// G2), the variant used by the restaking operator set.
const (
	BLSPubkeySize = 48 // compressed G1
	BLSSigSize    = 96 // compressed G2
)

// BLSOperatorDST is the domain separation tag for operator batch signatures.
var BLSOperatorDST = []byte("VEILSWAP_BATCH_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_")

var (
	ErrBLSNoBackend     = errors.New("bls: no backend registered (build with -tags blst or inject one)")
	ErrBLSInvalidSigLen = errors.New("bls: signature must be 96 bytes")
	ErrBLSInvalidKeyLen = errors.New("bls: pubkey must be 48 bytes")
	ErrBLSNoSigners     = errors.New("bls: no signer public keys")
)

// BLSBackend verifies BLS12-381 signatures. The production implementation
// wraps supranational/blst behind the "blst" build tag; tests inject their
// own backend via SetBLSBackend.
type BLSBackend interface {
	// Verify checks a single signature: 48-byte compressed G1 pubkey,
	// arbitrary message, 96-byte compressed G2 signature.
	Verify(pubkey, msg, sig []byte) bool

	// FastAggregateVerify checks an aggregate signature where all signers
	// signed the same message.
	FastAggregateVerify(pubkeys [][]byte, msg, sig []byte) bool

	// Name returns a human-readable backend identifier.
	Name() string
}

var (
	blsMu      sync.RWMutex
	blsBackend BLSBackend
)

// SetBLSBackend installs the active BLS backend. Passing nil removes it.
func SetBLSBackend(b BLSBackend) {
	blsMu.Lock()
	defer blsMu.Unlock()
	blsBackend = b
}

// ActiveBLSBackend returns the installed backend, or nil when none is set.
func ActiveBLSBackend() BLSBackend {
	blsMu.RLock()
	defer blsMu.RUnlock()
	return blsBackend
}

// BLSVerify checks a single signature using the active backend.
func BLSVerify(pubkey, msg, sig []byte) (bool, error) {
	if len(pubkey) != BLSPubkeySize {
		return false, ErrBLSInvalidKeyLen
	}
	if len(sig) != BLSSigSize {
		return false, ErrBLSInvalidSigLen
	}
	b := ActiveBLSBackend()
	if b == nil {
		return false, ErrBLSNoBackend
	}
	return b.Verify(pubkey, msg, sig), nil
}

// BLSFastAggregateVerify checks an aggregate signature where every signer
// signed the same message, the common case for operator batch proofs.
func BLSFastAggregateVerify(pubkeys [][]byte, msg, sig []byte) (bool, error) {
	if len(pubkeys) == 0 {
		return false, ErrBLSNoSigners
	}
	for _, pk := range pubkeys {
		if len(pk) != BLSPubkeySize {
			return false, ErrBLSInvalidKeyLen
		}
	}
	if len(sig) != BLSSigSize {
		return false, ErrBLSInvalidSigLen
	}
	b := ActiveBLSBackend()
	if b == nil {
		return false, ErrBLSNoBackend
	}
	return b.FastAggregateVerify(pubkeys, msg, sig), nil
}
