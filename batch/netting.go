// Package batch implements the netting and settlement algorithm: a set of
// decrypted intents on one pool is aggregated into batch-internal transfers,
// a single net external trade, and pro-rata shares of the externally
// realized output.
//
// Matching is deterministic and total: largest-first on both sides, ties
// broken by ascending intent id. Every plaintext unit on the smaller side is
// assigned to exactly one counter-intent at the batch's execution price; the
// residual on the larger side equals the net external amount.
package batch

import (
	"errors"
	"sort"

	"github.com/holiman/uint256"

	"github.com/veilswap/veilswap/core/types"
	"github.com/veilswap/veilswap/crypto"
)

var (
	ErrNoMembers        = errors.New("batch: no member intents")
	ErrMixedPools       = errors.New("batch: members span multiple pools")
	ErrMemberState      = errors.New("batch: member intent is not decrypted")
	ErrMemberShortfall  = errors.New("batch: member intent has insufficient escrow")
	ErrDuplicateMember  = errors.New("batch: member intent listed more than once")
	ErrInvalidPrice     = errors.New("batch: invalid execution price")
	ErrProposalMismatch = errors.New("batch: proposal does not match recomputed netting")
)

// batchDomain separates batch ids from every other keccak use.
var batchDomain = []byte("veilswap/batch/v1")

// side is one direction's intents with mutable matching state.
type side struct {
	intents   []*types.Intent
	remaining []*uint256.Int // unmatched escrow, in the side's own asset
}

// ComputeNetting aggregates decrypted intents on one pool into a batch at
// the given execution price (price.Num units of Token1 per price.Den units
// of Token0).
func ComputeNetting(members []*types.Intent, key types.PoolKey, price types.Price) (*types.Batch, error) {
	if len(members) == 0 {
		return nil, ErrNoMembers
	}
	if !price.Valid() {
		return nil, ErrInvalidPrice
	}

	pool := members[0].Pool
	var side0, side1 side // side0 sells Token0, side1 sells Token1
	seen := make(map[types.IntentID]struct{}, len(members))
	for _, in := range members {
		if in.Pool != pool {
			return nil, ErrMixedPools
		}
		if _, dup := seen[in.ID]; dup {
			return nil, ErrDuplicateMember
		}
		seen[in.ID] = struct{}{}
		if in.State != types.IntentDecrypted || in.DecryptedAmount == nil {
			return nil, ErrMemberState
		}
		if !in.Sufficient {
			return nil, ErrMemberShortfall
		}
		if in.ZeroForOne(key) {
			side0.add(in)
		} else {
			side1.add(in)
		}
	}
	side0.sortLargestFirst()
	side1.sortLargestFirst()

	// Decide the larger side at the execution price by cross-multiplying:
	// gross0 in Token1 terms is gross0*Num/Den, so compare gross0*Num
	// against gross1*Den. Products of two 128-bit values fit in 256 bits.
	gross0 := side0.gross()
	gross1 := side1.gross()
	lhs := new(uint256.Int).Mul(gross0, price.Num)
	rhs := new(uint256.Int).Mul(gross1, price.Den)
	zeroForOne := !lhs.Lt(rhs) // ties settle in the Token0->Token1 direction

	larger, smaller := &side0, &side1
	largerAsset, smallerAsset := key.Token0, key.Token1
	// conv maps smaller-side units to larger-side units: mul/div.
	convMul, convDiv := price.Den, price.Num
	if !zeroForOne {
		larger, smaller = &side1, &side0
		largerAsset, smallerAsset = key.Token1, key.Token0
		convMul, convDiv = price.Num, price.Den
	}

	b := &types.Batch{
		Pool:        pool,
		ZeroForOne:  zeroForOne,
		Price:       price,
		NetExternal: uint256.NewInt(0),
	}
	for _, in := range side0.intents {
		b.Members = append(b.Members, in.ID)
	}
	for _, in := range side1.intents {
		b.Members = append(b.Members, in.ID)
	}

	matchInternal(b, larger, smaller, largerAsset, smallerAsset, convMul, convDiv)

	// Residuals on the larger side feed the external trade and define the
	// pro-rata shares of its realized output.
	for i, in := range larger.intents {
		if larger.remaining[i].IsZero() {
			continue
		}
		b.NetExternal = new(uint256.Int).Add(b.NetExternal, larger.remaining[i])
		b.Shares = append(b.Shares, types.Share{
			Intent:    in.ID,
			Owner:     in.Owner,
			Numerator: new(uint256.Int).Set(larger.remaining[i]),
		})
	}
	for i := range b.Shares {
		b.Shares[i].Denominator = new(uint256.Int).Set(b.NetExternal)
	}

	b.ID = ProposalID(b)
	return b, nil
}

// ProposalID derives the identifier a batch must carry: a domain-separated
// hash of its canonical digest. Operators compute ids with this before
// signing a settlement proposal.
func ProposalID(b *types.Batch) types.BatchID {
	return crypto.Keccak256Hash(batchDomain, b.Digest())
}

// matchInternal drains the smaller side against the larger side. Each pair
// assignment produces two internal transfers: the larger intent's owner
// receives the smaller-side payment, and the smaller intent's owner receives
// the matched larger-side units, each funded from the counter escrow.
func matchInternal(b *types.Batch, larger, smaller *side, largerAsset, smallerAsset types.Address, convMul, convDiv *uint256.Int) {
	li := 0
	for sj, sin := range smaller.intents {
		pay := smaller.remaining[sj] // smaller-side units still to assign
		for !pay.IsZero() && li < len(larger.intents) {
			lin := larger.intents[li]
			cap := larger.remaining[li]
			if cap.IsZero() {
				li++
				continue
			}
			// The smaller remainder converts to this many larger units.
			need := mulDiv(pay, convMul, convDiv)
			if need.IsZero() {
				// Sub-unit dust: worth less than one larger-side unit at
				// this price. Assign it to the current counter-intent so
				// the smaller side drains in full.
				b.Transfers = append(b.Transfers, types.InternalTransfer{
					From: sin.ID, To: lin.Owner, Asset: smallerAsset, Amount: pay,
				})
				pay = uint256.NewInt(0)
				break
			}

			var take, paid *uint256.Int
			if need.Gt(cap) {
				// Partial: consume the larger intent fully and carry the
				// rest. The payment rounds up, never down: a floored payment
				// can hit zero when one larger unit is worth less than one
				// smaller unit, and the loop would then exhaust the larger
				// side while smaller units remain unassigned.
				take = new(uint256.Int).Set(cap)
				paid = mulDivCeil(take, convDiv, convMul)
				if paid.Gt(pay) {
					paid = new(uint256.Int).Set(pay)
				}
			} else {
				// Final segment for this smaller intent: assign all its
				// remaining units so the smaller side drains exactly.
				take = need
				paid = new(uint256.Int).Set(pay)
			}

			if !take.IsZero() {
				b.Transfers = append(b.Transfers, types.InternalTransfer{
					From: lin.ID, To: sin.Owner, Asset: largerAsset, Amount: take,
				})
				larger.remaining[li] = new(uint256.Int).Sub(cap, take)
			}
			if !paid.IsZero() {
				b.Transfers = append(b.Transfers, types.InternalTransfer{
					From: sin.ID, To: lin.Owner, Asset: smallerAsset, Amount: paid,
				})
				pay = new(uint256.Int).Sub(pay, paid)
			}
		}
		smaller.remaining[sj] = pay
	}
}

// ValidateProposal recomputes the netting for the proposal's members and
// price and requires the proposed batch to match it exactly. The matching
// policy is deterministic, so an honest operator always reproduces it.
func ValidateProposal(proposal *types.Batch, members []*types.Intent, key types.PoolKey) error {
	if proposal == nil {
		return ErrNoMembers
	}
	// The id must commit to the proposal's own contents; otherwise a tampered
	// proposal could ride on an honest batch's id.
	if ProposalID(proposal) != proposal.ID {
		return ErrProposalMismatch
	}
	local, err := ComputeNetting(members, key, proposal.Price)
	if err != nil {
		return err
	}
	if local.ID != proposal.ID {
		return ErrProposalMismatch
	}
	return nil
}

// SplitOutput divides the externally realized output across the batch's
// shares: each share gets floor(realized * num / den), and the integer
// remainder goes to the first (largest) share so no dust is lost.
func SplitOutput(realized *uint256.Int, shares []types.Share) []*uint256.Int {
	out := make([]*uint256.Int, len(shares))
	if len(shares) == 0 {
		return out
	}
	distributed := uint256.NewInt(0)
	for i, sh := range shares {
		out[i] = mulDiv(realized, sh.Numerator, sh.Denominator)
		distributed.Add(distributed, out[i])
	}
	remainder := new(uint256.Int).Sub(realized, distributed)
	out[0] = new(uint256.Int).Add(out[0], remainder)
	return out
}

func (s *side) add(in *types.Intent) {
	s.intents = append(s.intents, in)
	s.remaining = append(s.remaining, new(uint256.Int).Set(in.DecryptedAmount))
}

func (s *side) sortLargestFirst() {
	sort.SliceStable(s.intents, func(i, j int) bool {
		a, b := s.intents[i].DecryptedAmount, s.intents[j].DecryptedAmount
		if a.Eq(b) {
			return s.intents[i].ID.Less(s.intents[j].ID)
		}
		return a.Gt(b)
	})
	for i, in := range s.intents {
		s.remaining[i] = new(uint256.Int).Set(in.DecryptedAmount)
	}
}

func (s *side) gross() *uint256.Int {
	sum := uint256.NewInt(0)
	for _, r := range s.remaining {
		sum.Add(sum, r)
	}
	return sum
}

// mulDiv computes floor(a * mul / div) exactly; a and mul are at most 128
// bits so the product fits in 256 bits.
func mulDiv(a, mul, div *uint256.Int) *uint256.Int {
	prod := new(uint256.Int).Mul(a, mul)
	return prod.Div(prod, div)
}

// mulDivCeil computes ceil(a * mul / div) exactly.
func mulDivCeil(a, mul, div *uint256.Int) *uint256.Int {
	prod := new(uint256.Int).Mul(a, mul)
	quot, rem := new(uint256.Int).DivMod(prod, div, new(uint256.Int))
	if !rem.IsZero() {
		quot.AddUint64(quot, 1)
	}
	return quot
}
