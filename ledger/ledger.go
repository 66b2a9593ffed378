// Package ledger implements the reserve ledger: per-pool per-asset plaintext
// reserve counters and the encrypted-balance token contracts they back.
//
// The backing invariant is the system's conservation law: the sum of all
// encrypted balances for a pool/asset decrypts to exactly the plaintext
// reserve at every call boundary. Every reserve mutation is paired, in the
// same journaled step, with an equal-and-opposite aggregate encrypted-balance
// mutation.
//
// The ledger is not internally locked: the engine serializes all entry
// points and wraps each one in a snapshot/revert window.
package ledger

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/veilswap/veilswap/core/types"
	"github.com/veilswap/veilswap/crypto"
	"github.com/veilswap/veilswap/fhe"
)

var (
	ErrPoolNotRegistered   = errors.New("ledger: pool not registered")
	ErrPoolExists          = errors.New("ledger: pool already registered")
	ErrInvalidAsset        = errors.New("ledger: asset is not one of the pool's assets")
	ErrInsufficientReserve = errors.New("ledger: reserve below requested amount")
	ErrReserveOverflow     = errors.New("ledger: reserve would exceed 128 bits")
)

// reserveKey indexes reserves and token contracts by (pool, asset).
type reserveKey struct {
	pool  types.PoolID
	asset types.Address
}

// Ledger holds pool registrations, plaintext reserves and the encrypted
// token contracts backing them.
type Ledger struct {
	scheme   fhe.Scheme
	pools    map[types.PoolID]types.PoolKey
	reserves map[reserveKey]*uint256.Int
	tokens   map[reserveKey]*Token

	journal journal
}

// New creates an empty ledger over the given encrypted value capability.
func New(scheme fhe.Scheme) *Ledger {
	return &Ledger{
		scheme:   scheme,
		pools:    make(map[types.PoolID]types.PoolKey),
		reserves: make(map[reserveKey]*uint256.Int),
		tokens:   make(map[reserveKey]*Token),
	}
}

// PoolIDOf derives the pool id from a canonical pool key.
func PoolIDOf(key types.PoolKey) types.PoolID {
	return crypto.Keccak256Hash(key.Encode())
}

// RegisterPool registers a pool with the engine and returns its id. Both
// asset token contracts are created eagerly so deposits have a stable
// contract handle from the start.
func (l *Ledger) RegisterPool(key types.PoolKey) (types.PoolID, error) {
	if err := key.Validate(); err != nil {
		return types.PoolID{}, err
	}
	id := PoolIDOf(key)
	if _, ok := l.pools[id]; ok {
		return types.PoolID{}, ErrPoolExists
	}
	l.pools[id] = key
	l.getOrCreateToken(id, key.Token0)
	l.getOrCreateToken(id, key.Token1)
	return id, nil
}

// PoolKey returns the key of a registered pool.
func (l *Ledger) PoolKey(id types.PoolID) (types.PoolKey, error) {
	key, ok := l.pools[id]
	if !ok {
		return types.PoolKey{}, ErrPoolNotRegistered
	}
	return key, nil
}

// checkAsset validates that asset belongs to the registered pool.
func (l *Ledger) checkAsset(pool types.PoolID, asset types.Address) error {
	key, ok := l.pools[pool]
	if !ok {
		return ErrPoolNotRegistered
	}
	if !key.HasAsset(asset) {
		return ErrInvalidAsset
	}
	return nil
}

// Reserve returns a copy of the plaintext reserve for pool/asset. Unknown
// combinations read as zero.
func (l *Ledger) Reserve(pool types.PoolID, asset types.Address) *uint256.Int {
	if r, ok := l.reserves[reserveKey{pool, asset}]; ok {
		return new(uint256.Int).Set(r)
	}
	return uint256.NewInt(0)
}

// Token returns the encrypted token contract for pool/asset with idempotent
// get-or-create semantics.
func (l *Ledger) Token(pool types.PoolID, asset types.Address) (*Token, error) {
	if err := l.checkAsset(pool, asset); err != nil {
		return nil, err
	}
	return l.getOrCreateToken(pool, asset), nil
}

func (l *Ledger) getOrCreateToken(pool types.PoolID, asset types.Address) *Token {
	k := reserveKey{pool, asset}
	if t, ok := l.tokens[k]; ok {
		return t
	}
	t := newToken(l, pool, asset)
	l.tokens[k] = t
	return t
}

// Deposit credits the reserve and mints an equal trivially-encrypted balance
// to the holder, in one journaled step.
func (l *Ledger) Deposit(pool types.PoolID, asset types.Address, holder types.Address, amount *uint256.Int) error {
	if err := types.CheckAmount(amount); err != nil {
		return err
	}
	if err := l.checkAsset(pool, asset); err != nil {
		return err
	}
	if err := l.addReserve(pool, asset, amount); err != nil {
		return err
	}
	return l.getOrCreateToken(pool, asset).Mint(holder, amount)
}

// Withdraw burns amount from the holder's encrypted balance and decrements
// the reserve. The holder authorizes the plaintext amount out of band; the
// ciphertext-domain burn wraps on a shortfall, which the out-of-band
// authorization rules out.
func (l *Ledger) Withdraw(pool types.PoolID, asset types.Address, holder types.Address, amount *uint256.Int) error {
	if err := types.CheckAmount(amount); err != nil {
		return err
	}
	if err := l.checkAsset(pool, asset); err != nil {
		return err
	}
	if err := l.subReserve(pool, asset, amount); err != nil {
		return err
	}
	return l.getOrCreateToken(pool, asset).Burn(holder, amount)
}

// AddReserve raises the reserve as part of a settlement step. The caller is
// responsible for the matching encrypted mint in the same step.
func (l *Ledger) AddReserve(pool types.PoolID, asset types.Address, amount *uint256.Int) error {
	if err := types.CheckAmount(amount); err != nil {
		return err
	}
	if err := l.checkAsset(pool, asset); err != nil {
		return err
	}
	return l.addReserve(pool, asset, amount)
}

// SubReserve lowers the reserve as part of a settlement step. The caller is
// responsible for the matching encrypted burn in the same step.
func (l *Ledger) SubReserve(pool types.PoolID, asset types.Address, amount *uint256.Int) error {
	if err := types.CheckAmount(amount); err != nil {
		return err
	}
	if err := l.checkAsset(pool, asset); err != nil {
		return err
	}
	return l.subReserve(pool, asset, amount)
}

func (l *Ledger) addReserve(pool types.PoolID, asset types.Address, amount *uint256.Int) error {
	k := reserveKey{pool, asset}
	cur, ok := l.reserves[k]
	if !ok {
		cur = uint256.NewInt(0)
	}
	next := new(uint256.Int).Add(cur, amount)
	if next.Gt(types.MaxUint128) {
		return ErrReserveOverflow
	}
	l.journal.append(reserveChange{key: k, prev: cur, existed: ok})
	l.reserves[k] = next
	return nil
}

func (l *Ledger) subReserve(pool types.PoolID, asset types.Address, amount *uint256.Int) error {
	k := reserveKey{pool, asset}
	cur, ok := l.reserves[k]
	if !ok || cur.Lt(amount) {
		return ErrInsufficientReserve
	}
	l.journal.append(reserveChange{key: k, prev: cur, existed: true})
	l.reserves[k] = new(uint256.Int).Sub(cur, amount)
	return nil
}

// Snapshot marks the current journal depth. RevertToSnapshot with the
// returned value undoes every mutation made since.
func (l *Ledger) Snapshot() int {
	return l.journal.snapshot()
}

// RevertToSnapshot rolls the ledger back to a previous Snapshot mark.
func (l *Ledger) RevertToSnapshot(id int) {
	l.journal.revert(l, id)
}

// Commit discards revert information accumulated so far. Called by the
// engine at the end of a successful entry point.
func (l *Ledger) Commit() {
	l.journal.reset()
}
