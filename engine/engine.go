// Package engine wires the confidential swap components into one serialized
// facade: deposits and withdrawals against the reserve ledger, encrypted
// intent submission, authenticated decryption callbacks, single-intent
// execution, deadline refunds, and operator-proposed batch settlement.
//
// Every entry point runs to completion under one mutex and is atomic: on any
// error the ledger journal is reverted wholesale, so no partial reserve or
// balance update is ever observable. Asynchronous steps (decryption) are
// split across distinct entry points rather than blocking inside one.
package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/veilswap/veilswap/amm"
	"github.com/veilswap/veilswap/batch"
	"github.com/veilswap/veilswap/core/types"
	"github.com/veilswap/veilswap/crypto"
	"github.com/veilswap/veilswap/events"
	"github.com/veilswap/veilswap/fhe"
	"github.com/veilswap/veilswap/intents"
	"github.com/veilswap/veilswap/ledger"
	"github.com/veilswap/veilswap/log"
	"github.com/veilswap/veilswap/oracle"
)

var (
	ErrNilDependency   = errors.New("engine: nil dependency")
	ErrBadCallback     = errors.New("engine: malformed oracle callback")
	ErrUnknownBatch    = errors.New("engine: unknown batch id")
	ErrBatchHasExpired = errors.New("engine: batch member past deadline")
)

// EscrowAddress is the engine-owned holding account that carries every
// intent's escrowed ciphertext until settlement or refund.
var EscrowAddress = types.BytesToAddress(crypto.Keccak256([]byte("veilswap/escrow/v1"))[12:])

// Config carries the engine's operating parameters.
type Config struct {
	// SlippageBps is the adapter's maximal slippage tolerance.
	SlippageBps uint64
	// Operators is the committee authorized to propose batch settlements.
	Operators *batch.OperatorSet
	// Now supplies unix-seconds time; defaults to the wall clock.
	Now func() uint64
	// EventBuffer sizes each notification subscription's channel.
	EventBuffer int
}

// Engine is the confidential intent and batch settlement engine.
type Engine struct {
	mu sync.Mutex

	logger    *log.Logger
	scheme    fhe.Scheme
	ledger    *ledger.Ledger
	intents   *intents.Store
	oracle    *oracle.Client
	adapter   *amm.Adapter
	operators *batch.OperatorSet
	bus       *events.Bus
	now       func() uint64

	// settled batches, kept for auditability
	batches map[types.BatchID]*types.Batch
}

// New assembles an engine over the given capability, oracle client and
// external pool.
func New(cfg Config, scheme fhe.Scheme, oracleClient *oracle.Client, pool amm.TradePool) (*Engine, error) {
	if scheme == nil || oracleClient == nil || pool == nil {
		return nil, ErrNilDependency
	}
	adapter, err := amm.NewAdapter(pool, cfg.SlippageBps)
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = func() uint64 { return uint64(time.Now().Unix()) }
	}
	return &Engine{
		logger:    log.Default().Module("engine"),
		scheme:    scheme,
		ledger:    ledger.New(scheme),
		intents:   intents.NewStore(),
		oracle:    oracleClient,
		adapter:   adapter,
		operators: cfg.Operators,
		bus:       events.NewBus(cfg.EventBuffer),
		now:       now,
		batches:   make(map[types.BatchID]*types.Batch),
	}, nil
}

// Bus returns the engine's notification bus.
func (e *Engine) Bus() *events.Bus { return e.bus }

// RegisterPool registers an external pool with the engine.
func (e *Engine) RegisterPool(key types.PoolKey) (types.PoolID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, err := e.ledger.RegisterPool(key)
	if err != nil {
		return types.PoolID{}, err
	}
	e.ledger.Commit()
	e.logger.Info("pool registered", "pool", id.Hex(), "fee_bps", key.FeeBps)
	return id, nil
}

// Deposit credits the caller's external assets to the pool reserve and
// mints an equal encrypted balance.
func (e *Engine) Deposit(pool types.PoolID, asset, holder types.Address, amount *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.atomic(func() error {
		if err := e.ledger.Deposit(pool, asset, holder, amount); err != nil {
			return err
		}
		e.bus.Publish(events.TypeDeposited, DepositedEvent{
			Pool: pool, Asset: asset, Holder: holder, Amount: new(uint256.Int).Set(amount),
		})
		return nil
	})
}

// Withdraw burns the authorized plaintext amount from the holder's encrypted
// balance and releases the reserve to the recipient.
func (e *Engine) Withdraw(pool types.PoolID, asset, holder, recipient types.Address, amount *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.atomic(func() error {
		if err := e.ledger.Withdraw(pool, asset, holder, amount); err != nil {
			return err
		}
		e.bus.Publish(events.TypeWithdrawn, WithdrawnEvent{
			Pool: pool, Asset: asset, Holder: holder, Recipient: recipient, Amount: new(uint256.Int).Set(amount),
		})
		return nil
	})
}

// SubmitIntent escrows the encrypted amount, stores the intent and issues
// the decryption request. The request carries two handles: the amount and a
// pre-debit sufficiency attestation computed homomorphically, so the
// shortfall check never reveals the balance itself.
func (e *Engine) SubmitIntent(owner types.Address, pool types.PoolID, tokenIn, tokenOut types.Address, encAmount fhe.Handle, deadline uint64) (types.IntentID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var id types.IntentID
	err := e.atomic(func() error {
		key, err := e.ledger.PoolKey(pool)
		if err != nil {
			return err
		}
		if err := intents.ValidatePair(key, tokenIn, tokenOut); err != nil {
			return err
		}
		token, err := e.ledger.Token(pool, tokenIn)
		if err != nil {
			return err
		}
		balance, err := token.BalanceHandle(owner)
		if err != nil {
			return err
		}
		// Sufficiency is attested against the balance before the debit.
		sufficient, err := e.scheme.Le(encAmount, balance)
		if err != nil {
			return err
		}
		// Escrow is locked before the decryption request goes out, so the
		// owner cannot cancel mid-flight to dodge an unfavorable reveal.
		if err := token.Transfer(owner, EscrowAddress, encAmount); err != nil {
			return err
		}

		in, err := e.intents.Create(pool, key, owner, tokenIn, tokenOut, encAmount, deadline, e.now())
		if err != nil {
			return err
		}
		reqID, err := e.oracle.Request([]fhe.Handle{encAmount, sufficient})
		if err != nil {
			return err
		}
		if err := e.intents.BindRequest(reqID, in.ID); err != nil {
			return err
		}
		id = in.ID

		e.bus.Publish(events.TypeIntentSubmitted, IntentSubmittedEvent{
			ID: in.ID, Pool: pool, Owner: owner,
			TokenIn: tokenIn, TokenOut: tokenOut, Deadline: deadline,
		})
		e.logger.Debug("intent submitted", "intent", in.ID.Hex(), "pool", pool.Hex())
		return nil
	})
	return id, err
}

// HandleDecryptionCallback processes the oracle's asynchronous answer to a
// decryption request. The proof is verified before any plaintext is
// trusted; the request mapping is strictly single-use, so replaying a
// callback fails.
func (e *Engine) HandleDecryptionCallback(cb *oracle.Callback) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.atomic(func() error {
		if cb == nil || len(cb.Values) != 2 {
			return ErrBadCallback
		}
		// Authenticate first: a bad proof must not consume the request.
		if err := e.oracle.Verify(cb); err != nil {
			return err
		}
		amount := cb.Values[0]
		if !types.FitsUint128(amount) {
			return ErrBadCallback
		}
		sufficient := cb.Values[1].Eq(uint256.NewInt(1))

		// Resolve without consuming so a rejected transition (already
		// expired, already executed) leaves the request mapping intact.
		id, err := e.intents.PeekRequest(cb.RequestID)
		if err != nil {
			return err
		}
		if err := e.intents.MarkDecrypted(id, amount, sufficient); err != nil {
			return err
		}
		if _, err := e.intents.ConsumeRequest(cb.RequestID); err != nil {
			return err
		}
		if _, err := e.oracle.Consume(cb.RequestID); err != nil {
			return err
		}

		e.bus.Publish(events.TypeIntentDecrypted, IntentDecryptedEvent{
			ID: id, Amount: new(uint256.Int).Set(amount), Sufficient: sufficient,
		})
		return nil
	})
}

// Execute settles a single decrypted intent directly against the external
// pool. Callable by anyone once the intent is decrypted and within deadline.
func (e *Engine) Execute(id types.IntentID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.atomic(func() error {
		in, err := e.intents.CheckExecutable(id, e.now())
		if err != nil {
			return err
		}
		key, err := e.ledger.PoolKey(in.Pool)
		if err != nil {
			return err
		}
		out, err := e.settleExternal(in.Pool, key, in.TokenIn, in.DecryptedAmount, []types.Share{{
			Intent: in.ID, Owner: in.Owner,
			Numerator:   in.DecryptedAmount,
			Denominator: in.DecryptedAmount,
		}})
		if err != nil {
			return err
		}
		if err := e.intents.MarkExecuted(id); err != nil {
			return err
		}

		e.bus.Publish(events.TypeIntentExecuted, IntentExecutedEvent{
			ID: id, AmountIn: new(uint256.Int).Set(in.DecryptedAmount), AmountOut: out,
		})
		e.logger.Debug("intent executed", "intent", id.Hex())
		return nil
	})
}

// Refund returns an intent's escrow to its owner. Valid for intents past
// deadline and for decrypted intents whose escrow was attested insufficient.
func (e *Engine) Refund(id types.IntentID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.atomic(func() error {
		in, err := e.intents.CheckRefundable(id, e.now())
		if err != nil {
			return err
		}
		token, err := e.ledger.Token(in.Pool, in.TokenIn)
		if err != nil {
			return err
		}
		if err := token.Transfer(EscrowAddress, in.Owner, in.EncAmount); err != nil {
			return err
		}
		if err := e.intents.MarkExpired(id); err != nil {
			return err
		}

		e.bus.Publish(events.TypeIntentRefunded, IntentRefundedEvent{ID: id})
		return nil
	})
}

// SettleBatch applies an operator-proposed batch: quorum proof first, then
// the proposal is revalidated against a local recomputation, internal
// transfers are applied, the single net external trade runs, and the
// realized output is distributed by share. Any failure aborts the whole
// step; member intents stay decrypted and the batch is safe to repropose.
func (e *Engine) SettleBatch(proposal *types.Batch, proof *batch.Proof) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.atomic(func() error {
		if err := batch.VerifyProof(proposal, proof, e.operators); err != nil {
			return err
		}
		key, err := e.ledger.PoolKey(proposal.Pool)
		if err != nil {
			return err
		}

		now := e.now()
		members := make([]*types.Intent, 0, len(proposal.Members))
		for _, id := range proposal.Members {
			in, err := e.intents.CheckExecutable(id, now)
			if err != nil {
				if errors.Is(err, intents.ErrDeadlinePassed) {
					return ErrBatchHasExpired
				}
				return err
			}
			members = append(members, in)
		}
		if err := batch.ValidateProposal(proposal, members, key); err != nil {
			return err
		}

		// Internal transfers first: escrow-to-owner credits that cancel
		// without touching reserves.
		for _, tr := range proposal.Transfers {
			token, err := e.ledger.Token(proposal.Pool, tr.Asset)
			if err != nil {
				return err
			}
			if err := token.TransferPlain(EscrowAddress, tr.To, tr.Amount); err != nil {
				return err
			}
		}

		// Then the one net external trade and pro-rata distribution.
		realized := uint256.NewInt(0)
		if !proposal.NetExternal.IsZero() {
			tokenIn := key.Token0
			if !proposal.ZeroForOne {
				tokenIn = key.Token1
			}
			realized, err = e.settleExternal(proposal.Pool, key, tokenIn, proposal.NetExternal, proposal.Shares)
			if err != nil {
				return err
			}
		}

		if err := e.intents.MarkAllExecuted(proposal.Members); err != nil {
			return err
		}
		e.batches[proposal.ID] = proposal

		e.bus.Publish(events.TypeBatchSettled, BatchSettledEvent{
			ID: proposal.ID, Pool: proposal.Pool,
			Members:     len(proposal.Members),
			NetExternal: new(uint256.Int).Set(proposal.NetExternal),
			Realized:    realized,
		})
		e.logger.Info("batch settled", "batch", proposal.ID.Hex(),
			"members", len(proposal.Members), "transfers", len(proposal.Transfers))
		return nil
	})
}

// settleExternal runs one trade of amountIn against the external pool and
// completes the conservation step: reserves move inside the adapter, the
// escrowed input is burned, and the realized output is minted to the share
// holders pro rata with the integer remainder assigned to the first share.
func (e *Engine) settleExternal(pool types.PoolID, key types.PoolKey, tokenIn types.Address, amountIn *uint256.Int, shares []types.Share) (*uint256.Int, error) {
	tokenOut := key.Other(tokenIn)
	out, err := e.adapter.Settle(e.ledger, pool, key, tokenIn, amountIn)
	if err != nil {
		return nil, err
	}
	inToken, err := e.ledger.Token(pool, tokenIn)
	if err != nil {
		return nil, err
	}
	if err := inToken.Burn(EscrowAddress, amountIn); err != nil {
		return nil, err
	}
	outToken, err := e.ledger.Token(pool, tokenOut)
	if err != nil {
		return nil, err
	}
	for i, portion := range batch.SplitOutput(out, shares) {
		if portion.IsZero() {
			continue
		}
		if err := outToken.Mint(shares[i].Owner, portion); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// atomic wraps one entry point in a snapshot/revert window. Callers hold
// the engine mutex.
func (e *Engine) atomic(fn func() error) error {
	snap := e.ledger.Snapshot()
	if err := fn(); err != nil {
		e.ledger.RevertToSnapshot(snap)
		return err
	}
	e.ledger.Commit()
	return nil
}

// Intent returns a snapshot of the stored intent with the given id. The copy
// keeps callers from observing or mutating live state outside the engine's
// serialized entry points.
func (e *Engine) Intent(id types.IntentID) (*types.Intent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	in, err := e.intents.Get(id)
	if err != nil {
		return nil, err
	}
	cp := *in
	if in.DecryptedAmount != nil {
		cp.DecryptedAmount = new(uint256.Int).Set(in.DecryptedAmount)
	}
	return &cp, nil
}

// Batch returns a settled batch by id.
func (e *Engine) Batch(id types.BatchID) (*types.Batch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.batches[id]
	if !ok {
		return nil, ErrUnknownBatch
	}
	return b, nil
}

// Reserve returns the plaintext reserve for pool/asset.
func (e *Engine) Reserve(pool types.PoolID, asset types.Address) *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Reserve(pool, asset)
}

// Token exposes the encrypted token contract for pool/asset.
func (e *Engine) Token(pool types.PoolID, asset types.Address) (*ledger.Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Token(pool, asset)
}
