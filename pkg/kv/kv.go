// Package kv defines the minimal ordered key-value contract the storage
// façade (pkg/txn) is built on, and provides a BadgerDB-backed and an
// in-memory implementation of it.
//
// Keys are opaque byte strings; comparison is lexicographic. Implementations
// must support prefix iteration in key order and optimistic transactions
// with a snapshot read view taken at begin time.
package kv

import "errors"

// Sentinel errors returned by Engine/Tx implementations.
var (
	ErrNotFound = errors.New("kv: key not found")
	ErrClosed   = errors.New("kv: engine closed")
	ErrConflict = errors.New("kv: transaction conflict")
)

// Engine is the KV adapter contract. Any engine offering ordered
// byte keys, prefix iteration, and optimistic transactions with a snapshot
// read view satisfies it.
type Engine interface {
	// BeginTx creates a transaction with a snapshot taken at call time.
	// Subsequent reads through the returned Tx observe that snapshot.
	BeginTx(writable bool) (Tx, error)

	// Close releases the engine and all resources it holds.
	Close() error
}

// Tx is a single KV transaction.
type Tx interface {
	// Get returns the value for key, or ErrNotFound.
	Get(key []byte) ([]byte, error)

	// GetLast returns the greatest key with the given prefix, or
	// ErrNotFound if none exists. The caller (the encoding layer)
	// guarantees prefix's last byte is strictly less than 0xFF; GetLast
	// does not itself validate this precondition.
	GetLast(prefix []byte) (key []byte, value []byte, err error)

	// Put writes key=value, tracked for optimistic conflict detection.
	Put(key, value []byte) error

	// PutUntracked writes key=value without registering it in the
	// transaction's conflict-detection read/write set.
	PutUntracked(key, value []byte) error

	// Delete removes key, tracked for optimistic conflict detection.
	Delete(key []byte) error

	// Iterate returns entries whose keys begin with prefix, in
	// lexicographic key order.
	Iterate(prefix []byte) (Iterator, error)

	// DisableIndexing hints that this is a write-only transaction about
	// to commit, so building the uncommitted read-index can be skipped.
	// Purely an optimization; engines that lack the concept ignore it.
	DisableIndexing()

	// Commit applies all buffered writes atomically. Returns ErrConflict
	// if another writable transaction committed an overlapping write
	// since this transaction's snapshot was taken.
	Commit() error

	// Rollback discards all buffered writes.
	Rollback() error

	// Close releases the transaction's resources. Idempotent.
	Close() error
}

// Iterator yields (key, value) pairs in lexicographic key order.
type Iterator interface {
	// Next advances the iterator. Returns false when exhausted.
	Next() bool

	// Key returns the current entry's key. Valid only after Next
	// returns true.
	Key() []byte

	// Value returns the current entry's value. Valid only after Next
	// returns true.
	Value() []byte

	// Close releases the iterator's underlying cursor. The cursor is not
	// reused afterwards; pkg/txn recycles only its own tracking wrapper.
	Close() error
}
