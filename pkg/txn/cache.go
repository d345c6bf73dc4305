package txn

import (
	"github.com/orneryd/graphkv/pkg/graph"
	"github.com/orneryd/graphkv/pkg/kv"
	"github.com/orneryd/graphkv/pkg/schema"
)

// SchemaCache is the live, reference-counted schema graph a transaction
// borrows to resolve types. Implemented by
// pkg/database's schemaCache; declared here so pkg/txn never imports pkg/database
// (pkg/database constructs transactions, so the dependency only runs one
// way).
type SchemaCache interface {
	// Store returns the typed graph view of the cached schema.
	Store() *graph.Store
	// Lattice returns the type lattice view of the cached schema.
	Lattice() *schema.Lattice
	// Unpin releases this transaction's hold on the cache, allowing
	// eviction once the refcount reaches zero and may_close is set.
	Unpin()
	// SignalMayRefresh notifies the cache that a data transaction has
	// committed; after a fixed number of signals (schemaRefreshRate in
	// pkg/database) the cache's underlying read snapshot is replaced with a
	// fresh one.
	SignalMayRefresh()
}

// Database is the narrow capability surface a transaction needs from its
// owning database: the cross-transaction dataReadSchemaLock and
// the lazily-cached schema graph.
type Database interface {
	// Engine returns the KV engine, so a long-lived schema READ
	// transaction can replace its snapshot on refresh.
	Engine() kv.Engine

	// AcquireSchemaWriteLock / ReleaseSchemaWriteLock bracket a schema
	// commit's flush+kv-commit window, draining data
	// transactions' opens for the duration.
	AcquireSchemaWriteLock()
	ReleaseSchemaWriteLock()

	// AcquireDataReadLock / ReleaseDataReadLock bracket a data
	// transaction's open just long enough to pin the cached schema.
	AcquireDataReadLock()
	ReleaseDataReadLock()

	// PinSchemaCache returns the current cached schema graph, creating it
	// if absent, with its reference count already incremented.
	PinSchemaCache() SchemaCache

	// EvictSchemaCache marks the current cache may-close and drops the
	// database's reference to it; a fresh one is built lazily on next
	// PinSchemaCache.
	EvictSchemaCache()
}
