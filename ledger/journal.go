package ledger

import (
	"github.com/holiman/uint256"

	"github.com/veilswap/veilswap/core/types"
	"github.com/veilswap/veilswap/fhe"
)

// journalEntry records how to undo one ledger mutation.
type journalEntry interface {
	revert(l *Ledger)
}

// journal is an append-only undo log, truncated on revert or commit. The
// same shape as a state-database journal: Snapshot returns the current
// depth, RevertToSnapshot unwinds entries above it in reverse order.
type journal struct {
	entries []journalEntry
}

func (j *journal) append(e journalEntry) {
	j.entries = append(j.entries, e)
}

func (j *journal) snapshot() int {
	return len(j.entries)
}

func (j *journal) revert(l *Ledger, depth int) {
	if depth < 0 {
		depth = 0
	}
	for i := len(j.entries) - 1; i >= depth; i-- {
		j.entries[i].revert(l)
	}
	j.entries = j.entries[:depth]
}

func (j *journal) reset() {
	j.entries = j.entries[:0]
}

// reserveChange undoes a reserve counter update.
type reserveChange struct {
	key     reserveKey
	prev    *uint256.Int
	existed bool
}

func (c reserveChange) revert(l *Ledger) {
	if c.existed {
		l.reserves[c.key] = c.prev
	} else {
		delete(l.reserves, c.key)
	}
}

// balanceChange undoes an encrypted balance handle update.
type balanceChange struct {
	token   *Token
	holder  types.Address
	prev    fhe.Handle
	existed bool
}

func (c balanceChange) revert(*Ledger) {
	if c.existed {
		c.token.balances[c.holder] = c.prev
	} else {
		delete(c.token.balances, c.holder)
	}
}
