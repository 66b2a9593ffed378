package batch

import (
	"bytes"
	"testing"

	"github.com/holiman/uint256"

	"github.com/veilswap/veilswap/core/types"
	"github.com/veilswap/veilswap/crypto"
)

// stubBLS is a test backend with a switchable verdict.
type stubBLS struct {
	accept  bool
	lastMsg []byte
}

func (s *stubBLS) Verify(pubkey, msg, sig []byte) bool {
	s.lastMsg = msg
	return s.accept
}

func (s *stubBLS) FastAggregateVerify(pubkeys [][]byte, msg, sig []byte) bool {
	s.lastMsg = msg
	return s.accept
}

func (s *stubBLS) Name() string { return "stub" }

func installStub(t *testing.T, accept bool) *stubBLS {
	t.Helper()
	prev := crypto.ActiveBLSBackend()
	stub := &stubBLS{accept: accept}
	crypto.SetBLSBackend(stub)
	t.Cleanup(func() { crypto.SetBLSBackend(prev) })
	return stub
}

func testOperatorSet(n, quorum int) *OperatorSet {
	set := &OperatorSet{Quorum: quorum}
	for i := 0; i < n; i++ {
		pk := make([]byte, crypto.BLSPubkeySize)
		pk[0] = byte(i + 1)
		set.Pubkeys = append(set.Pubkeys, pk)
	}
	return set
}

func testBatch() *types.Batch {
	return &types.Batch{
		ID:          types.BytesToHash([]byte{0xbb}),
		Pool:        testPool,
		NetExternal: uint256.NewInt(10),
		Price:       types.Price{Num: uint256.NewInt(1), Den: uint256.NewInt(1)},
	}
}

func TestOperatorSetValidate(t *testing.T) {
	tests := []struct {
		name string
		set  *OperatorSet
		want error
	}{
		{"ok", testOperatorSet(3, 2), nil},
		{"nil", nil, ErrEmptyOperatorSet},
		{"empty", &OperatorSet{Quorum: 1}, ErrEmptyOperatorSet},
		{"zero quorum", testOperatorSet(3, 0), ErrBadQuorum},
		{"quorum too high", testOperatorSet(3, 4), ErrBadQuorum},
	}
	for _, tt := range tests {
		if err := tt.set.Validate(); err != tt.want {
			t.Errorf("%s: want %v, got %v", tt.name, tt.want, err)
		}
	}

	short := testOperatorSet(2, 1)
	short.Pubkeys[1] = short.Pubkeys[1][:47]
	if err := short.Validate(); err != crypto.ErrBLSInvalidKeyLen {
		t.Errorf("short key: want ErrBLSInvalidKeyLen, got %v", err)
	}
}

func TestVerifyProofQuorum(t *testing.T) {
	installStub(t, true)
	set := testOperatorSet(4, 3)
	b := testBatch()
	sig := make([]byte, crypto.BLSSigSize)

	if err := VerifyProof(b, &Proof{SignerIndices: []int{0, 1, 2}, Signature: sig}, set); err != nil {
		t.Fatalf("quorum proof rejected: %v", err)
	}
	if err := VerifyProof(b, &Proof{SignerIndices: []int{0, 1}, Signature: sig}, set); err != ErrNoQuorum {
		t.Fatalf("below quorum: want ErrNoQuorum, got %v", err)
	}
	if err := VerifyProof(b, nil, set); err != ErrNoQuorum {
		t.Fatalf("nil proof: want ErrNoQuorum, got %v", err)
	}
}

func TestVerifyProofSignerIndices(t *testing.T) {
	installStub(t, true)
	set := testOperatorSet(4, 3)
	b := testBatch()
	sig := make([]byte, crypto.BLSSigSize)

	if err := VerifyProof(b, &Proof{SignerIndices: []int{0, 1, 4}, Signature: sig}, set); err != ErrBadSignerIndex {
		t.Fatalf("out of range: want ErrBadSignerIndex, got %v", err)
	}
	if err := VerifyProof(b, &Proof{SignerIndices: []int{0, 1, 1}, Signature: sig}, set); err != ErrDuplicateSigner {
		t.Fatalf("duplicate: want ErrDuplicateSigner, got %v", err)
	}
}

func TestVerifyProofRejectedSignature(t *testing.T) {
	installStub(t, false)
	set := testOperatorSet(3, 2)
	b := testBatch()
	proof := &Proof{SignerIndices: []int{0, 1}, Signature: make([]byte, crypto.BLSSigSize)}
	if err := VerifyProof(b, proof, set); err != ErrProofRejected {
		t.Fatalf("want ErrProofRejected, got %v", err)
	}
}

func TestVerifyProofSignsBatchDigest(t *testing.T) {
	stub := installStub(t, true)
	set := testOperatorSet(2, 2)
	b := testBatch()
	proof := &Proof{SignerIndices: []int{0, 1}, Signature: make([]byte, crypto.BLSSigSize)}
	if err := VerifyProof(b, proof, set); err != nil {
		t.Fatalf("VerifyProof: %v", err)
	}
	want := crypto.Keccak256(batchDomain, b.Digest())
	if !bytes.Equal(stub.lastMsg, want) {
		t.Fatal("proof verified over the wrong message")
	}
}
