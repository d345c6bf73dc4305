package txn

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/orneryd/graphkv/pkg/kv"
)

// DefaultSchemaRefreshRate is the number of downstream data-transaction
// may_refresh signals a long-lived schema READ transaction absorbs before
// replacing its snapshot.
const DefaultSchemaRefreshRate = 100

// NewSchemaTransaction opens a Schema transaction against db.
func NewSchemaTransaction(db Database, kind Kind, opts Options) (*Transaction, error) {
	if opts.SchemaRefreshRate <= 0 {
		opts.SchemaRefreshRate = DefaultSchemaRefreshRate
	}
	kvTx, err := db.Engine().BeginTx(kind == Write)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	t := newCore(kind, SchemaVariant, db, kvTx, opts)
	t.schema = &schemaState{}
	if kind == Read {
		t.schema.refreshSignals = new(atomic.Int64)
	}
	return t, nil
}

// MayRefresh counts one may_refresh signal against a schema READ
// transaction's refresh counter. No-op on WRITE or non-schema
// transactions. A data transaction's commit signals its pinned SchemaCache
// (SignalMayRefresh), not this method; nothing in this package calls it.
func (t *Transaction) MayRefresh() error {
	if t.variant != SchemaVariant || t.kind != Read || t.schema == nil || t.schema.refreshSignals == nil {
		return nil
	}
	if !t.IsOpen() {
		return nil
	}
	n := t.schema.refreshSignals.Add(1)
	if int(n) < t.opts.SchemaRefreshRate {
		return nil
	}
	t.schema.refreshSignals.Store(0)
	return t.refreshSnapshot()
}

// refreshSnapshot replaces the read-only KV transaction with a fresh one so
// reads advance past recently committed schemas without forcing a reopen.
// The old KV transaction is closed after the new one is in place.
func (t *Transaction) refreshSnapshot() error {
	t.rw.Lock()
	defer t.rw.Unlock()

	fresh, err := t.db.Engine().BeginTx(false)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}
	old := t.kvTx
	t.kvTx = fresh
	t.view.tx = fresh
	return old.Close()
}

// Commit runs the schema write commit protocol.
func (t *Transaction) commitSchema() error {
	if !t.open.CompareAndSwap(true, false) {
		return ErrTransactionClosed
	}

	t.mu.Lock()
	dataTouched := t.dataModified
	t.mu.Unlock()

	finish := func(err error) error {
		t.closeAllIterators()
		t.db.EvictSchemaCache()
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		return err
	}

	if t.kind == Read {
		return finish(ErrIllegalCommit)
	}
	if dataTouched {
		return finish(ErrSchemaViolation)
	}

	t.view.Tx().DisableIndexing()

	// t.Lattice() reports ErrTransactionClosed once open has been flipped
	// above, so the lattice field is used directly.
	if verr := validateAllRoots(t.store, t.lattice); verr != nil {
		return finish(verr)
	}

	t.db.AcquireSchemaWriteLock()
	defer t.db.ReleaseSchemaWriteLock()

	if err := t.kvTx.Commit(); err != nil {
		_ = t.kvTx.Rollback()
		log.Printf("[graphkv:txn] schema commit failed, rolled back: %v", err)
		return finish(fmt.Errorf("%w: %v", ErrStorageFailure, err))
	}

	t.mu.Lock()
	t.committed = true
	t.mu.Unlock()
	log.Printf("[graphkv:txn] schema transaction committed")
	return finish(nil)
}

// Tx exposes the underlying kv.Tx for the refresh path only.
func (s *storageView) Tx() kv.Tx { return s.tx }
