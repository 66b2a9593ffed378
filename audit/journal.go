// Package audit persists the engine's notifications as an append-only,
// replayable journal in BadgerDB. Each record is keyed by a monotonically
// increasing sequence number, so indexers can resume from the last sequence
// they saw.
package audit

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/veilswap/veilswap/events"
	"github.com/veilswap/veilswap/log"
)

var (
	ErrClosed      = errors.New("audit: journal closed")
	ErrBadSequence = errors.New("audit: corrupt sequence key")
)

// recordPrefix namespaces journal entries inside the badger keyspace.
const recordPrefix = "evt:"

// Record is one persisted engine notification.
type Record struct {
	Seq       uint64          `json:"seq"`
	Type      events.Type     `json:"type"`
	Timestamp time.Time       `json:"ts"`
	Data      json.RawMessage `json:"data"`
}

// Journal is a badger-backed append-only event log. Safe for concurrent use.
type Journal struct {
	mu     sync.Mutex
	db     *badger.DB
	logger *log.Logger
	seq    uint64
	closed bool
}

// Open creates or reopens a journal at dir. The next sequence number is
// recovered from the last persisted record.
func Open(dir string) (*Journal, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	j := &Journal{db: db, logger: log.Default().Module("audit")}
	if err := j.recoverSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// OpenInMemory creates an ephemeral journal, used in tests.
func OpenInMemory() (*Journal, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Journal{db: db, logger: log.Default().Module("audit")}, nil
}

// recoverSeq finds the highest persisted sequence number.
func (j *Journal) recoverSeq() error {
	return j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Reverse: true, Prefix: []byte(recordPrefix)})
		defer it.Close()
		it.Seek(seqKey(^uint64(0)))
		if !it.ValidForPrefix([]byte(recordPrefix)) {
			return nil
		}
		key := it.Item().Key()
		if len(key) != len(recordPrefix)+8 {
			return ErrBadSequence
		}
		j.seq = binary.BigEndian.Uint64(key[len(recordPrefix):])
		return nil
	})
}

// Append persists one event and returns its sequence number.
func (j *Journal) Append(ev events.Event) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return 0, ErrClosed
	}
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return 0, err
	}
	j.seq++
	rec := Record{Seq: j.seq, Type: ev.Type, Timestamp: ev.Timestamp, Data: data}
	buf, err := json.Marshal(rec)
	if err != nil {
		return 0, err
	}
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(seqKey(rec.Seq), buf)
	})
	if err != nil {
		return 0, err
	}
	return rec.Seq, nil
}

// Replay streams records with Seq >= from, in order, to fn. Replay stops
// early when fn returns an error.
func (j *Journal) Replay(from uint64, fn func(Record) error) error {
	j.mu.Lock()
	closed := j.closed
	j.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(recordPrefix)})
		defer it.Close()
		for it.Seek(seqKey(from)); it.ValidForPrefix([]byte(recordPrefix)); it.Next() {
			var rec Record
			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			})
			if err != nil {
				return err
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Follow subscribes to the bus and persists every event until the
// subscription closes. It runs in its own goroutine and returns the
// subscription so the caller controls its lifetime.
func (j *Journal) Follow(bus *events.Bus) *events.Subscription {
	sub := bus.Subscribe()
	go func() {
		for ev := range sub.Chan() {
			if _, err := j.Append(ev); err != nil {
				j.logger.Error("append failed", "type", string(ev.Type), "err", err)
			}
		}
	}()
	return sub
}

// Seq returns the last assigned sequence number.
func (j *Journal) Seq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// Close flushes and closes the underlying store.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

func seqKey(seq uint64) []byte {
	key := make([]byte, len(recordPrefix)+8)
	copy(key, recordPrefix)
	binary.BigEndian.PutUint64(key[len(recordPrefix):], seq)
	return key
}
