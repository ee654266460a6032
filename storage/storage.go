// Package storage defines the transactional sorted KV trait the query
// engine consumes, generalized from a pull-iterator shape over ordered
// partitions of keyed rows.
package storage

import "context"

// Direction controls range-scan order.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// TxMode selects how commit-time conflicts are handled. It is a per-Engine
// (per-Open), not per-transaction, choice.
type TxMode int

const (
	// Optimistic transactions detect conflicts at commit time by comparing
	// the transaction's read/write set against what has committed since its
	// snapshot was taken.
	Optimistic TxMode = iota
	// Pessimistic transactions acquire row locks (with intent) on read, so
	// conflicts are prevented rather than detected after the fact.
	Pessimistic
)

func (m TxMode) String() string {
	switch m {
	case Optimistic:
		return "optimistic"
	case Pessimistic:
		return "pessimistic"
	default:
		return "unknown"
	}
}

// Engine is a storage backend: an in-memory store, a bolt-backed disk
// store, or any other transactional sorted KV implementation.
type Engine interface {
	// Begin starts a new transaction with snapshot isolation. write
	// indicates whether the transaction may mutate the store.
	Begin(ctx context.Context, write bool) (Tx, error)

	// Mode reports how this engine resolves write/write conflicts.
	Mode() TxMode

	// Close releases all resources held by the engine.
	Close() error
}

// Tx is a single transaction handle: snapshot reads plus this transaction's
// own writes, until Commit or Rollback.
type Tx interface {
	// Get returns the value stored at key, or ok=false if absent.
	Get(key []byte) (val []byte, ok bool, err error)

	// Put writes key -> val, visible to subsequent reads in this
	// transaction immediately, and to other transactions only after Commit.
	Put(key, val []byte) error

	// Delete removes key, if present.
	Delete(key []byte) error

	// Range returns an Iterator over [lower, upper) in the given direction.
	// A nil lower or upper bound means unbounded on that side. Both bounds
	// are treated as inclusive-lower/exclusive-upper, matching Go slice
	// convention; callers that need an inclusive upper bound pad it with a
	// single 0x00 byte (memcomparable keys make this safe: it is always the
	// tightest key strictly greater than any encoding that is a prefix of
	// upper).
	Range(lower, upper []byte, dir Direction) (Iterator, error)

	// DeleteRange removes every key in [lower, upper).
	DeleteRange(lower, upper []byte) error

	// Commit finalizes the transaction. Returns a cozoerr.ErrTransactionConflict
	// if an optimistic engine detects a conflicting concurrent write.
	Commit() error

	// Rollback discards the transaction without applying any writes.
	Rollback() error
}

// Iterator walks a key range in order. Callers must call Close when done,
// including after Next returns false.
type Iterator interface {
	// Next advances the iterator and reports whether a new entry is
	// available via Key/Value.
	Next() bool

	Key() []byte
	Value() []byte

	// Err returns the first error encountered during iteration, if any.
	Err() error

	Close() error
}

// CompactRange hints to the engine that it may reclaim space in
// [lower, upper). Engines without a compaction concept treat this as a
// no-op; it is not part of the transactional contract.
type CompactRange interface {
	CompactRange(lower, upper []byte) error
}
