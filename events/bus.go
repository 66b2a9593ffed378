// Package events provides the engine's notification surface for external
// observers and indexers: a publish/subscribe bus carrying identifiers and
// non-sensitive metadata only. Plaintext swap amounts never appear on the
// bus before decryption.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Type identifies the kind of event published on the bus.
type Type string

// Engine notification types.
const (
	TypeDeposited       Type = "ledger.deposited"
	TypeWithdrawn       Type = "ledger.withdrawn"
	TypeIntentSubmitted Type = "intent.submitted"
	TypeIntentDecrypted Type = "intent.decrypted"
	TypeIntentExecuted  Type = "intent.executed"
	TypeIntentRefunded  Type = "intent.refunded"
	TypeBatchSettled    Type = "batch.settled"
)

// Event is a message published on the bus.
type Event struct {
	Type      Type
	Data      interface{}
	Timestamp time.Time
}

// Subscription receives events matching one or more types.
type Subscription struct {
	id     uint64
	types  map[Type]struct{}
	ch     chan Event
	bus    *Bus
	closed atomic.Bool
}

// Chan returns the read-only channel delivering matching events.
func (s *Subscription) Chan() <-chan Event {
	return s.ch
}

// Unsubscribe removes the subscription and closes its channel. Safe to call
// multiple times.
func (s *Subscription) Unsubscribe() {
	if s.bus != nil {
		s.bus.Unsubscribe(s)
	}
}

// Bus is a publish/subscribe fan-out for engine notifications. All methods
// are safe for concurrent use.
type Bus struct {
	mu         sync.RWMutex
	subs       map[uint64]*Subscription
	nextID     uint64
	bufferSize int
	closed     bool
}

// NewBus creates a bus; bufferSize controls each subscription's channel
// buffer, 0 for unbuffered.
func NewBus(bufferSize int) *Bus {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Bus{
		subs:       make(map[uint64]*Subscription),
		bufferSize: bufferSize,
	}
}

// Subscribe creates a subscription for events of the given types. With no
// types the subscription matches everything.
func (b *Bus) Subscribe(typs ...Type) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub := &Subscription{
			ch:    make(chan Event),
			types: make(map[Type]struct{}),
		}
		sub.closed.Store(true)
		close(sub.ch)
		return sub
	}

	b.nextID++
	typeSet := make(map[Type]struct{}, len(typs))
	for _, t := range typs {
		typeSet[t] = struct{}{}
	}
	sub := &Subscription{
		id:    b.nextID,
		types: typeSet,
		ch:    make(chan Event, b.bufferSize),
		bus:   b,
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil || !sub.closed.CompareAndSwap(false, true) {
		return
	}
	b.mu.Lock()
	delete(b.subs, sub.id)
	b.mu.Unlock()
	close(sub.ch)
}

// Publish delivers an event to every matching subscription. Slow consumers
// with full buffers are skipped rather than blocking the engine.
func (b *Bus) Publish(typ Type, data interface{}) {
	ev := Event{Type: typ, Data: data, Timestamp: time.Now()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if len(sub.types) > 0 {
			if _, ok := sub.types[typ]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Close shuts down the bus and every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[uint64]*Subscription)
	b.mu.Unlock()

	for _, s := range subs {
		if s.closed.CompareAndSwap(false, true) {
			close(s.ch)
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
