// Package intents implements the intent store and its lifecycle state
// machine: Pending -> Decrypting -> Decrypted -> Executed, with Expired as
// the terminal deadline path. Intents are never deleted, only marked
// terminal, so the store doubles as the audit trail of every swap request.
package intents

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/holiman/uint256"

	"github.com/veilswap/veilswap/core/types"
	"github.com/veilswap/veilswap/crypto"
	"github.com/veilswap/veilswap/fhe"
)

var (
	ErrInvalidPair       = errors.New("intents: token pair is not an ordered pair of the pool's assets")
	ErrDeadlinePassed    = errors.New("intents: deadline already passed")
	ErrUnknownIntent     = errors.New("intents: unknown intent id")
	ErrUnknownRequest    = errors.New("intents: unknown or already consumed decryption request")
	ErrNotDecrypted      = errors.New("intents: intent is not in the decrypted state")
	ErrAlreadyDecrypted  = errors.New("intents: intent already decrypted")
	ErrAlreadyExecuted   = errors.New("intents: intent already executed")
	ErrAlreadyExpired    = errors.New("intents: intent already expired")
	ErrNotExpired        = errors.New("intents: intent deadline has not passed")
	ErrInsufficientFunds = errors.New("intents: escrowed balance was insufficient at decryption time")
)

// intentDomain separates intent ids from every other keccak use.
var intentDomain = []byte("veilswap/intent/v1")

// Store tracks every submitted intent and the single-use mapping from
// decryption request ids to intent ids.
type Store struct {
	mu              sync.RWMutex
	intents         map[types.IntentID]*types.Intent
	requestToIntent map[types.Hash]types.IntentID
	nonce           uint64
}

// NewStore creates an empty intent store.
func NewStore() *Store {
	return &Store{
		intents:         make(map[types.IntentID]*types.Intent),
		requestToIntent: make(map[types.Hash]types.IntentID),
	}
}

// ValidatePair checks that (tokenIn, tokenOut) is an ordered pair of the
// pool's two assets.
func ValidatePair(key types.PoolKey, tokenIn, tokenOut types.Address) error {
	if tokenIn == tokenOut || !key.HasAsset(tokenIn) || !key.HasAsset(tokenOut) {
		return ErrInvalidPair
	}
	return nil
}

// Create stores a fresh intent in the Pending state and returns it. The id
// commits to the owner, pool, a store-wide nonce and the submission time.
func (s *Store) Create(pool types.PoolID, key types.PoolKey, owner, tokenIn, tokenOut types.Address, encAmount fhe.Handle, deadline, now uint64) (*types.Intent, error) {
	if err := ValidatePair(key, tokenIn, tokenOut); err != nil {
		return nil, err
	}
	if deadline <= now {
		return nil, ErrDeadlinePassed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nonce++
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], s.nonce)
	binary.BigEndian.PutUint64(buf[8:], now)
	id := crypto.Keccak256Hash(intentDomain, owner.Bytes(), pool.Bytes(), buf[:])

	in := &types.Intent{
		ID:          id,
		Pool:        pool,
		Owner:       owner,
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		EncAmount:   encAmount,
		Deadline:    deadline,
		SubmittedAt: now,
		State:       types.IntentPending,
	}
	s.intents[id] = in
	return in, nil
}

// Get returns the intent with the given id.
func (s *Store) Get(id types.IntentID) (*types.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.intents[id]
	if !ok {
		return nil, ErrUnknownIntent
	}
	return in, nil
}

// BindRequest records the single-use mapping from a decryption request to an
// intent and moves the intent to Decrypting.
func (s *Store) BindRequest(requestID types.Hash, id types.IntentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[id]
	if !ok {
		return ErrUnknownIntent
	}
	s.requestToIntent[requestID] = id
	if in.State == types.IntentPending {
		in.State = types.IntentDecrypting
	}
	return nil
}

// PeekRequest resolves a request mapping without consuming it.
func (s *Store) PeekRequest(requestID types.Hash) (types.IntentID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.requestToIntent[requestID]
	if !ok {
		return types.IntentID{}, ErrUnknownRequest
	}
	return id, nil
}

// ConsumeRequest resolves and removes a request mapping. A second call with
// the same request id fails ErrUnknownRequest, which is what makes oracle
// callbacks single-use.
func (s *Store) ConsumeRequest(requestID types.Hash) (types.IntentID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.requestToIntent[requestID]
	if !ok {
		return types.IntentID{}, ErrUnknownRequest
	}
	delete(s.requestToIntent, requestID)
	return id, nil
}

// MarkDecrypted records the oracle-revealed amount and sufficiency flag.
// Only Pending or Decrypting intents accept the transition.
func (s *Store) MarkDecrypted(id types.IntentID, amount *uint256.Int, sufficient bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[id]
	if !ok {
		return ErrUnknownIntent
	}
	switch in.State {
	case types.IntentPending, types.IntentDecrypting:
	case types.IntentDecrypted:
		return ErrAlreadyDecrypted
	case types.IntentExecuted:
		return ErrAlreadyExecuted
	case types.IntentExpired:
		return ErrAlreadyExpired
	}
	in.DecryptedAmount = new(uint256.Int).Set(amount)
	in.Sufficient = sufficient
	in.State = types.IntentDecrypted
	return nil
}

// CheckExecutable verifies that the intent may enter execution at the given
// time: decrypted, within deadline, and with attested escrow sufficiency.
func (s *Store) CheckExecutable(id types.IntentID, now uint64) (*types.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.intents[id]
	if !ok {
		return nil, ErrUnknownIntent
	}
	switch in.State {
	case types.IntentDecrypted:
	case types.IntentExecuted:
		return nil, ErrAlreadyExecuted
	case types.IntentExpired:
		return nil, ErrAlreadyExpired
	default:
		return nil, ErrNotDecrypted
	}
	if in.Expired(now) {
		return nil, ErrDeadlinePassed
	}
	if !in.Sufficient {
		return nil, ErrInsufficientFunds
	}
	return in, nil
}

// MarkExecuted finalizes an intent after settlement. The caller has already
// validated executability; the state check here is a last-line guard.
func (s *Store) MarkExecuted(id types.IntentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[id]
	if !ok {
		return ErrUnknownIntent
	}
	if in.State != types.IntentDecrypted {
		return ErrNotDecrypted
	}
	in.State = types.IntentExecuted
	return nil
}

// MarkAllExecuted finalizes a set of intents together: either every id is in
// the Decrypted state and all of them transition to Executed, or none do.
// Batch settlement uses this so a bad member cannot leave the batch half
// marked after the ledger work already committed.
func (s *Store) MarkAllExecuted(ids []types.IntentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := make([]*types.Intent, len(ids))
	for i, id := range ids {
		in, ok := s.intents[id]
		if !ok {
			return ErrUnknownIntent
		}
		if in.State != types.IntentDecrypted {
			return ErrNotDecrypted
		}
		staged[i] = in
	}
	for _, in := range staged {
		in.State = types.IntentExecuted
	}
	return nil
}

// CheckRefundable verifies that the intent's escrow may be returned: either
// the deadline has passed, or decryption revealed an amount that can never
// execute (insufficient escrow, or zero).
func (s *Store) CheckRefundable(id types.IntentID, now uint64) (*types.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.intents[id]
	if !ok {
		return nil, ErrUnknownIntent
	}
	if in.State.Terminal() {
		if in.State == types.IntentExecuted {
			return nil, ErrAlreadyExecuted
		}
		return nil, ErrAlreadyExpired
	}
	unexecutable := in.State == types.IntentDecrypted &&
		(!in.Sufficient || in.DecryptedAmount.IsZero())
	if !in.Expired(now) && !unexecutable {
		return nil, ErrNotExpired
	}
	return in, nil
}

// MarkExpired moves a non-terminal intent to the Expired state after its
// escrow has been refunded.
func (s *Store) MarkExpired(id types.IntentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[id]
	if !ok {
		return ErrUnknownIntent
	}
	if in.State.Terminal() {
		if in.State == types.IntentExecuted {
			return ErrAlreadyExecuted
		}
		return ErrAlreadyExpired
	}
	in.State = types.IntentExpired
	return nil
}

// Len returns the total number of intents ever stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.intents)
}

// PendingRequests returns the number of outstanding request mappings.
func (s *Store) PendingRequests() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requestToIntent)
}
