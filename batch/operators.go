package batch

import (
	"errors"

	"github.com/veilswap/veilswap/core/types"
	"github.com/veilswap/veilswap/crypto"
)

var (
	ErrEmptyOperatorSet = errors.New("batch: operator set has no members")
	ErrBadQuorum        = errors.New("batch: quorum must be >= 1 and <= set size")
	ErrNoQuorum         = errors.New("batch: proof does not reach quorum")
	ErrBadSignerIndex   = errors.New("batch: signer index out of range")
	ErrDuplicateSigner  = errors.New("batch: duplicate signer index")
	ErrProofRejected    = errors.New("batch: operator proof verification failed")
)

// OperatorSet is the restaking-secured committee authorized to propose batch
// settlements. Pubkeys are 48-byte compressed BLS G1 keys; Quorum is the
// minimum number of distinct signers a valid proposal needs.
type OperatorSet struct {
	Pubkeys [][]byte
	Quorum  int
}

// Validate checks the set's structural invariants.
func (s *OperatorSet) Validate() error {
	if s == nil || len(s.Pubkeys) == 0 {
		return ErrEmptyOperatorSet
	}
	if s.Quorum < 1 || s.Quorum > len(s.Pubkeys) {
		return ErrBadQuorum
	}
	for _, pk := range s.Pubkeys {
		if len(pk) != crypto.BLSPubkeySize {
			return crypto.ErrBLSInvalidKeyLen
		}
	}
	return nil
}

// Proof is an operator-set attestation over a batch digest: an aggregate
// BLS signature by the operators at the given indices.
type Proof struct {
	SignerIndices []int
	Signature     []byte
}

// VerifyProof checks that the proof carries a quorum of distinct operators
// whose aggregate signature covers the batch's digest hash.
func VerifyProof(b *types.Batch, proof *Proof, set *OperatorSet) error {
	if err := set.Validate(); err != nil {
		return err
	}
	if proof == nil || len(proof.SignerIndices) < set.Quorum {
		return ErrNoQuorum
	}
	seen := make(map[int]struct{}, len(proof.SignerIndices))
	pubkeys := make([][]byte, 0, len(proof.SignerIndices))
	for _, idx := range proof.SignerIndices {
		if idx < 0 || idx >= len(set.Pubkeys) {
			return ErrBadSignerIndex
		}
		if _, dup := seen[idx]; dup {
			return ErrDuplicateSigner
		}
		seen[idx] = struct{}{}
		pubkeys = append(pubkeys, set.Pubkeys[idx])
	}

	msg := crypto.Keccak256(batchDomain, b.Digest())
	ok, err := crypto.BLSFastAggregateVerify(pubkeys, msg, proof.Signature)
	if err != nil {
		return err
	}
	if !ok {
		return ErrProofRejected
	}
	return nil
}
