// Package txn implements the transaction manager: a KV transaction
// wrapped with a per-transaction read/write lock, an iterator registry and
// recycling pool, and a typed graph layer over a lock-serializing storage
// view. Two variants, Schema and Data, share this core and differ only in
// their commit protocol and the cross-transaction state they pin.
//
// Grounded on pkg/storage/badger_transaction.go's mutex-guarded status
// field and Commit/Rollback shape, generalized from a single transaction
// kind to the Schema/Data split and the dataReadSchemaLock protocol added
// here.
package txn

import (
	"sync"
	"sync/atomic"

	"github.com/orneryd/graphkv/pkg/graph"
	"github.com/orneryd/graphkv/pkg/kv"
	"github.com/orneryd/graphkv/pkg/schema"
)

// Kind is a transaction's read/write mode.
type Kind int

const (
	Read Kind = iota
	Write
)

// Variant distinguishes Schema from Data transactions.
type Variant int

const (
	SchemaVariant Variant = iota
	DataVariant
)

// Options configures a transaction. Explain/Parallel/Infer/TraceInference are stored for the
// out-of-scope reasoner/planner but not acted on by this core.
type Options struct {
	SchemaRefreshRate int
	Explain           bool
	Parallel          bool
	Infer             bool
	TraceInference    bool
}

// Transaction is the shared core of a Schema or Data transaction.
type Transaction struct {
	kind    Kind
	variant Variant
	opts    Options

	db   Database
	kvTx kv.Tx

	rw   sync.RWMutex // per-transaction read/write lock
	view *storageView

	store   *graph.Store
	lattice *schema.Lattice

	iterMu        sync.Mutex
	liveIterators map[*trackedIterator]struct{}
	recycledPool  []*trackedIterator

	open atomic.Bool

	mu             sync.Mutex
	committed      bool
	closed         bool
	schemaModified bool // set when this transaction wrote a type-kind record
	dataModified   bool // set when this transaction wrote an instance-kind record

	// variant-specific state
	schema *schemaState
	data   *dataState
}

type schemaState struct {
	cache          SchemaCache   // unpinned on Close if set; NewSchemaTransaction leaves it nil
	refreshSignals *atomic.Int64 // non-nil only for a READ schema transaction
}

type dataState struct {
	cache SchemaCache // the pinned schema cache this data tx resolves types against

	// createdInstances/createdRolePlayers record exactly what this
	// transaction created, so commitData can validate those records against
	// the pinned schema without re-scanning the whole data graph.
	createdInstances   []graph.VertexID
	createdRolePlayers []graph.RolePlayer
}

func newCore(kind Kind, variant Variant, db Database, kvTx kv.Tx, opts Options) *Transaction {
	t := &Transaction{
		kind:          kind,
		variant:       variant,
		opts:          opts,
		db:            db,
		kvTx:          kvTx,
		liveIterators: make(map[*trackedIterator]struct{}),
	}
	t.open.Store(true)
	t.view = &storageView{tx: kvTx, rw: &t.rw, own: t}
	t.store = graph.NewStore(t.view)
	t.lattice = schema.NewLattice(t.store)
	return t
}

// NotifySchemaWrite implements graph.SchemaWriteNotifier. pkg/graph's Store
// calls this on its Storage (the storageView) whenever a write touched a
// type-kind record, letting a transaction detect cross-kind mutation at
// commit without decoding raw key bytes.
func (s *storageView) NotifySchemaWrite() {
	s.own.mu.Lock()
	s.own.schemaModified = true
	s.own.mu.Unlock()
}

// NotifyDataWrite implements graph.DataWriteNotifier.
func (s *storageView) NotifyDataWrite() {
	s.own.mu.Lock()
	s.own.dataModified = true
	s.own.mu.Unlock()
}

// NotifyInstanceCreated implements graph.InstanceWriteNotifier.
func (s *storageView) NotifyInstanceCreated(v *graph.Vertex) {
	s.own.mu.Lock()
	if s.own.data != nil {
		s.own.data.createdInstances = append(s.own.data.createdInstances, v.ID)
	}
	s.own.mu.Unlock()
}

// NotifyRolePlayerCreated implements graph.RolePlayerWriteNotifier.
func (s *storageView) NotifyRolePlayerCreated(rp graph.RolePlayer) {
	s.own.mu.Lock()
	if s.own.data != nil {
		s.own.data.createdRolePlayers = append(s.own.data.createdRolePlayers, rp)
	}
	s.own.mu.Unlock()
}

// Type returns the transaction's read/write mode.
func (t *Transaction) Type() Kind { return t.kind }

// Variant returns Schema or Data.
func (t *Transaction) Variant() Variant { return t.variant }

// IsOpen reports whether the transaction is still usable.
func (t *Transaction) IsOpen() bool { return t.open.Load() }

// Store returns the transaction's typed graph view, failing with
// ErrTransactionClosed if closed.
func (t *Transaction) Store() (*graph.Store, error) {
	if !t.IsOpen() {
		return nil, ErrTransactionClosed
	}
	return t.store, nil
}

// Lattice returns the transaction's type lattice view.
func (t *Transaction) Lattice() (*schema.Lattice, error) {
	if !t.IsOpen() {
		return nil, ErrTransactionClosed
	}
	return t.lattice, nil
}

// closeOnFault is called by storageView when a KV call returns an
// unexpected error: the transaction is closed before the error surfaces.
func (t *Transaction) closeOnFault() {
	t.Close()
}

// Rollback clears in-memory graph mutations and aborts the KV transaction,
// leaving the transaction open for further reads.
func (t *Transaction) Rollback() error {
	if !t.IsOpen() {
		return ErrTransactionClosed
	}
	t.mu.Lock()
	t.schemaModified = false
	t.dataModified = false
	t.mu.Unlock()
	return t.kvTx.Rollback()
}

// Close releases all resources. Idempotent.
func (t *Transaction) Close() error {
	if !t.open.CompareAndSwap(true, false) {
		return nil // already closed
	}
	t.closeAllIterators()

	t.mu.Lock()
	alreadyCommitted := t.committed
	t.closed = true
	t.mu.Unlock()

	if t.variant == SchemaVariant && t.schema != nil && t.schema.cache != nil {
		t.schema.cache.Unpin()
	}
	if t.variant == DataVariant && t.data != nil && t.data.cache != nil {
		t.data.cache.Unpin()
	}

	if alreadyCommitted {
		return nil
	}
	return t.kvTx.Close()
}
