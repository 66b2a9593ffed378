package types

import (
	"github.com/holiman/uint256"
)

// IntentID uniquely identifies a submitted swap intent. It is derived from
// the submitter, the pool and a per-engine submission nonce, so it is
// collision-resistant across submitters and time.
type IntentID = Hash

// IntentState tracks an intent through its lifecycle.
type IntentState uint8

const (
	// IntentPending: stored, escrow locked, decryption not yet requested.
	IntentPending IntentState = iota
	// IntentDecrypting: a decryption request is in flight with the oracle.
	IntentDecrypting
	// IntentDecrypted: the oracle revealed the plaintext amount.
	IntentDecrypted
	// IntentExecuted: settled, output credited to the owner. Terminal.
	IntentExecuted
	// IntentExpired: deadline passed and escrow refunded. Terminal.
	IntentExpired
)

// String implements fmt.Stringer.
func (s IntentState) String() string {
	switch s {
	case IntentPending:
		return "pending"
	case IntentDecrypting:
		return "decrypting"
	case IntentDecrypted:
		return "decrypted"
	case IntentExecuted:
		return "executed"
	case IntentExpired:
		return "expired"
	}
	return "unknown"
}

// Terminal reports whether the state admits no further transitions.
func (s IntentState) Terminal() bool {
	return s == IntentExecuted || s == IntentExpired
}

// Intent is a user's encrypted request to swap TokenIn for TokenOut on a
// pool. The amount stays encrypted (EncAmount is an opaque ciphertext
// handle) until the threshold decryption oracle reveals it.
type Intent struct {
	ID       IntentID
	Pool     PoolID
	Owner    Address
	TokenIn  Address
	TokenOut Address

	// EncAmount is the handle of the escrowed encrypted input amount.
	EncAmount Hash

	// Deadline is the absolute unix-seconds expiry. Past it the intent can
	// only be refunded, never executed.
	Deadline uint64

	// SubmittedAt is the unix-seconds submission timestamp.
	SubmittedAt uint64

	State IntentState

	// DecryptedAmount is populated only on the transition into
	// IntentDecrypted.
	DecryptedAmount *uint256.Int

	// Sufficient records the oracle's decrypt-time attestation that the
	// owner's encrypted balance covered the amount when escrow was taken.
	// Insufficient intents fail execution and are refundable.
	Sufficient bool
}

// ZeroForOne reports the trade direction relative to the pool's canonical
// asset order: true when the intent sells Token0 for Token1.
func (in *Intent) ZeroForOne(key PoolKey) bool {
	return in.TokenIn == key.Token0
}

// Expired reports whether the intent's deadline has passed at the given
// unix-seconds time.
func (in *Intent) Expired(now uint64) bool {
	return now > in.Deadline
}
