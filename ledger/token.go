package ledger

import (
	"sort"

	"github.com/holiman/uint256"

	"github.com/veilswap/veilswap/core/types"
	"github.com/veilswap/veilswap/fhe"
)

// Token is the encrypted-balance contract for one (pool, asset) pair. Each
// holder's balance is an opaque ciphertext handle; all balance arithmetic is
// homomorphic. The ledger is the sole caller of Mint and Burn.
type Token struct {
	ledger *Ledger
	pool   types.PoolID
	asset  types.Address

	balances map[types.Address]fhe.Handle
}

func newToken(l *Ledger, pool types.PoolID, asset types.Address) *Token {
	return &Token{
		ledger:   l,
		pool:     pool,
		asset:    asset,
		balances: make(map[types.Address]fhe.Handle),
	}
}

// Pool returns the pool this contract belongs to.
func (t *Token) Pool() types.PoolID { return t.pool }

// Asset returns the asset this contract tracks.
func (t *Token) Asset() types.Address { return t.asset }

// BalanceHandle returns the holder's current balance ciphertext, creating a
// trivially-encrypted zero for first-time holders.
func (t *Token) BalanceHandle(holder types.Address) (fhe.Handle, error) {
	if h, ok := t.balances[holder]; ok {
		return h, nil
	}
	zero, err := t.ledger.scheme.TrivialEncrypt(uint256.NewInt(0))
	if err != nil {
		return fhe.Handle{}, err
	}
	t.setBalance(holder, zero)
	return zero, nil
}

// Mint credits a trivially-encrypted amount to the holder.
func (t *Token) Mint(to types.Address, amount *uint256.Int) error {
	enc, err := t.ledger.scheme.TrivialEncrypt(amount)
	if err != nil {
		return err
	}
	return t.credit(to, enc)
}

// Burn debits a trivially-encrypted amount from the holder. The subtraction
// wraps in the ciphertext domain; callers guarantee sufficiency out of band.
func (t *Token) Burn(from types.Address, amount *uint256.Int) error {
	enc, err := t.ledger.scheme.TrivialEncrypt(amount)
	if err != nil {
		return err
	}
	return t.debit(from, enc)
}

// Transfer moves the encrypted amount behind h from one holder to another.
// The aggregate balance is unchanged, so no reserve mutation pairs with it.
func (t *Token) Transfer(from, to types.Address, h fhe.Handle) error {
	if err := t.debit(from, h); err != nil {
		return err
	}
	return t.credit(to, h)
}

// TransferPlain moves a plaintext-known amount between holders through a
// trivial encryption.
func (t *Token) TransferPlain(from, to types.Address, amount *uint256.Int) error {
	enc, err := t.ledger.scheme.TrivialEncrypt(amount)
	if err != nil {
		return err
	}
	if err := t.debit(from, enc); err != nil {
		return err
	}
	return t.credit(to, enc)
}

// credit sets balance[to] += h.
func (t *Token) credit(to types.Address, h fhe.Handle) error {
	cur, err := t.BalanceHandle(to)
	if err != nil {
		return err
	}
	next, err := t.ledger.scheme.Add(cur, h)
	if err != nil {
		return err
	}
	t.setBalance(to, next)
	return nil
}

// debit sets balance[from] -= h.
func (t *Token) debit(from types.Address, h fhe.Handle) error {
	cur, err := t.BalanceHandle(from)
	if err != nil {
		return err
	}
	next, err := t.ledger.scheme.Sub(cur, h)
	if err != nil {
		return err
	}
	t.setBalance(from, next)
	return nil
}

// setBalance journals and applies a balance handle update.
func (t *Token) setBalance(holder types.Address, h fhe.Handle) {
	prev, existed := t.balances[holder]
	t.ledger.journal.append(balanceChange{
		token:   t,
		holder:  holder,
		prev:    prev,
		existed: existed,
	})
	t.balances[holder] = h
}

// Holders returns all holders with a balance entry, in address order. Used
// by conservation checks and audit tooling.
func (t *Token) Holders() []types.Address {
	out := make([]types.Address, 0, len(t.balances))
	for a := range t.balances {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
