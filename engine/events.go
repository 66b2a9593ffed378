package engine

import (
	"github.com/holiman/uint256"

	"github.com/veilswap/veilswap/core/types"
)

// DepositedEvent reports a reserve deposit. Deposit amounts are plaintext
// by nature, so carrying them here reveals nothing new.
type DepositedEvent struct {
	Pool   types.PoolID
	Asset  types.Address
	Holder types.Address
	Amount *uint256.Int
}

// WithdrawnEvent reports a reserve withdrawal.
type WithdrawnEvent struct {
	Pool      types.PoolID
	Asset     types.Address
	Holder    types.Address
	Recipient types.Address
	Amount    *uint256.Int
}

// IntentSubmittedEvent reports a new intent. It never carries an amount:
// the amount is still encrypted at submission time.
type IntentSubmittedEvent struct {
	ID       types.IntentID
	Pool     types.PoolID
	Owner    types.Address
	TokenIn  types.Address
	TokenOut types.Address
	Deadline uint64
}

// IntentDecryptedEvent reports the oracle's reveal, the first point at
// which the plaintext amount exists.
type IntentDecryptedEvent struct {
	ID         types.IntentID
	Amount     *uint256.Int
	Sufficient bool
}

// IntentExecutedEvent reports a settled single intent.
type IntentExecutedEvent struct {
	ID        types.IntentID
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
}

// IntentRefundedEvent reports an escrow refund (deadline or shortfall).
type IntentRefundedEvent struct {
	ID types.IntentID
}

// BatchSettledEvent reports a completed batch settlement.
type BatchSettledEvent struct {
	ID          types.BatchID
	Pool        types.PoolID
	Members     int
	NetExternal *uint256.Int
	Realized    *uint256.Int
}
