package txn

import (
	"fmt"
	"log"
)

// NewDataTransaction opens a Data transaction against db. The
// database's cached schema graph is pinned for the lifetime of the
// transaction, bracketed by the cross-transaction dataReadSchemaLock just
// long enough to take the pin — the lock is not held for the transaction's
// full duration.
func NewDataTransaction(db Database, kind Kind, opts Options) (*Transaction, error) {
	kvTx, err := db.Engine().BeginTx(kind == Write)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailure, err)
	}

	db.AcquireDataReadLock()
	cache := db.PinSchemaCache()
	db.ReleaseDataReadLock()
	if cache == nil {
		_ = kvTx.Close()
		return nil, fmt.Errorf("%w: schema cache unavailable", ErrStorageFailure)
	}

	t := newCore(kind, DataVariant, db, kvTx, opts)
	t.data = &dataState{cache: cache}
	return t, nil
}

// commitData runs the data write commit protocol.
func (t *Transaction) commitData() error {
	if !t.open.CompareAndSwap(true, false) {
		return ErrTransactionClosed
	}

	t.mu.Lock()
	schemaTouched := t.schemaModified
	t.mu.Unlock()

	finish := func(err error) error {
		t.closeAllIterators()
		if t.data != nil && t.data.cache != nil {
			t.data.cache.SignalMayRefresh()
			t.data.cache.Unpin()
		}
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		return err
	}

	if t.kind == Read {
		return finish(ErrIllegalCommit)
	}
	if schemaTouched {
		return finish(ErrDataViolation)
	}

	t.view.Tx().DisableIndexing()

	if err := validateDataInstances(t); err != nil {
		return finish(err)
	}

	if err := t.kvTx.Commit(); err != nil {
		_ = t.kvTx.Rollback()
		log.Printf("[graphkv:txn] data commit failed, rolled back: %v", err)
		return finish(fmt.Errorf("%w: %v", ErrStorageFailure, err))
	}

	t.mu.Lock()
	t.committed = true
	t.mu.Unlock()
	log.Printf("[graphkv:txn] data transaction committed")
	return finish(nil)
}

// Commit runs the variant-appropriate commit protocol:
// polymorphic dispatch on the transaction's Schema/Data variant.
func (t *Transaction) Commit() error {
	switch t.variant {
	case SchemaVariant:
		return t.commitSchema()
	default:
		return t.commitData()
	}
}
