package types

import (
	"encoding/binary"

	"github.com/holiman/uint256"
)

// BatchID uniquely identifies a settlement batch.
type BatchID = Hash

// Price is an exact rational execution price: Num units of token-out per Den
// units of token-in, quoted in the direction of the batch's larger side.
type Price struct {
	Num *uint256.Int
	Den *uint256.Int
}

// Valid reports whether the price has non-zero terms within 128 bits.
func (p Price) Valid() bool {
	return p.Num != nil && p.Den != nil &&
		!p.Num.IsZero() && !p.Den.IsZero() &&
		FitsUint128(p.Num) && FitsUint128(p.Den)
}

// InternalTransfer is a batch-internal settlement leg: Amount of Asset is
// credited to To, funded from the escrow of the counter intent From. Internal
// transfers never touch the external pool or the plaintext reserves.
type InternalTransfer struct {
	From   IntentID
	To     Address
	Asset  Address
	Amount *uint256.Int
}

// Share is a residual intent's pro-rata claim on the batch's externally
// realized output. Shares partition the realized amount exactly:
// sum(Numerator) == Denominator across a batch.
type Share struct {
	Intent      IntentID
	Owner       Address
	Numerator   *uint256.Int
	Denominator *uint256.Int
}

// Batch aggregates a set of decrypted intents on one pool into internal
// transfers, a single net external trade and pro-rata output shares.
type Batch struct {
	ID      BatchID
	Pool    PoolID
	Members []IntentID

	// ZeroForOne is the direction of the net external trade: true when the
	// larger side sells Token0 for Token1.
	ZeroForOne bool

	// NetExternal is the input amount of the single external trade. Zero
	// when the two sides cancel exactly.
	NetExternal *uint256.Int

	// Price is the agreed execution price for internal matching.
	Price Price

	Transfers []InternalTransfer
	Shares    []Share
}

// Digest returns the canonical byte encoding of the batch, hashed by the
// operator set when signing a settlement proposal. Member order, transfer
// order and share order are all part of the digest, so a proposal commits to
// one exact settlement.
func (b *Batch) Digest() []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, b.Pool.Bytes()...)
	if b.ZeroForOne {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendAmount(buf, b.NetExternal)
	buf = appendAmount(buf, b.Price.Num)
	buf = appendAmount(buf, b.Price.Den)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b.Members)))
	for _, id := range b.Members {
		buf = append(buf, id.Bytes()...)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b.Transfers)))
	for _, tr := range b.Transfers {
		buf = append(buf, tr.From.Bytes()...)
		buf = append(buf, tr.To.Bytes()...)
		buf = append(buf, tr.Asset.Bytes()...)
		buf = appendAmount(buf, tr.Amount)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b.Shares)))
	for _, sh := range b.Shares {
		buf = append(buf, sh.Intent.Bytes()...)
		buf = append(buf, sh.Owner.Bytes()...)
		buf = appendAmount(buf, sh.Numerator)
		buf = appendAmount(buf, sh.Denominator)
	}
	return buf
}

func appendAmount(buf []byte, v *uint256.Int) []byte {
	var word [32]byte
	if v != nil {
		word = v.Bytes32()
	}
	return append(buf, word[:]...)
}
