package kv

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// BadgerEngine is a persistent Engine backed by BadgerDB.
//
// Generalized from pkg/storage/badger.go's BadgerEngine: that type owned a
// fixed node/edge key schema; this one owns nothing but the raw db handle,
// since key layout is the caller's concern.
type BadgerEngine struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// BadgerOptions configures a BadgerEngine.
type BadgerOptions struct {
	// DataDir is the directory for data files. Required unless InMemory.
	DataDir string
	// InMemory runs BadgerDB in memory-only mode (for tests).
	InMemory bool
	// SyncWrites forces fsync after each write.
	SyncWrites bool
	// Logger for BadgerDB's internal logging; nil uses Badger's default.
	Logger badger.Logger
}

// NewBadgerEngine opens a persistent engine rooted at dataDir.
func NewBadgerEngine(dataDir string) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerEngineInMemory opens an in-memory-only engine, for tests.
func NewBadgerEngineInMemory() (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{InMemory: true})
}

// NewBadgerEngineWithOptions opens an engine with explicit options.
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.DataDir == "" {
			return nil, fmt.Errorf("kv: DataDir required unless InMemory")
		}
		badgerOpts = badger.DefaultOptions(opts.DataDir)
	}
	badgerOpts = badgerOpts.WithSyncWrites(opts.SyncWrites)
	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(opts.Logger)
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("kv: opening badger: %w", err)
	}

	return &BadgerEngine{db: db}, nil
}

// BeginTx implements Engine.
func (e *BadgerEngine) BeginTx(writable bool) (Tx, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}
	return &badgerTx{badgerTx: e.db.NewTransaction(writable)}, nil
}

// Close implements Engine.
func (e *BadgerEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.db.Close()
}

// badgerTx adapts *badger.Txn to the Tx interface.
type badgerTx struct {
	badgerTx *badger.Txn
}

func (t *badgerTx) Get(key []byte) ([]byte, error) {
	item, err := t.badgerTx.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: get: %w", err)
	}
	var out []byte
	err = item.Value(func(val []byte) error {
		out = append([]byte{}, val...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kv: reading value: %w", err)
	}
	return out, nil
}

// GetLast seeks to the first key strictly greater than prefix incremented
// at its last byte, then steps back one entry. The caller guarantees
// prefix's last byte is < 0xFF.
func (t *badgerTx) GetLast(prefix []byte) ([]byte, []byte, error) {
	upperBound := append([]byte{}, prefix...)
	upperBound[len(upperBound)-1]++

	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	it := t.badgerTx.NewIterator(opts)
	defer it.Close()

	// In reverse mode, Seek positions at the greatest key <= the seek key.
	// Seeking to upperBound finds either upperBound itself (not part of
	// our prefix) or the greatest key below it; step past an exact match
	// on upperBound since that belongs to the next prefix.
	for it.Seek(upperBound); it.Valid(); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		if bytes.Equal(key, upperBound) {
			continue
		}
		if !bytes.HasPrefix(key, prefix) {
			return nil, nil, ErrNotFound
		}
		var val []byte
		if err := item.Value(func(v []byte) error {
			val = append([]byte{}, v...)
			return nil
		}); err != nil {
			return nil, nil, fmt.Errorf("kv: reading value: %w", err)
		}
		return key, val, nil
	}
	return nil, nil, ErrNotFound
}

func (t *badgerTx) Put(key, value []byte) error {
	if err := t.badgerTx.Set(key, value); err != nil {
		return fmt.Errorf("kv: put: %w", err)
	}
	return nil
}

func (t *badgerTx) PutUntracked(key, value []byte) error {
	e := badger.NewEntry(key, value).WithDiscard()
	if err := t.badgerTx.SetEntry(e); err != nil {
		return fmt.Errorf("kv: put untracked: %w", err)
	}
	return nil
}

func (t *badgerTx) Delete(key []byte) error {
	if err := t.badgerTx.Delete(key); err != nil {
		return fmt.Errorf("kv: delete: %w", err)
	}
	return nil
}

func (t *badgerTx) Iterate(prefix []byte) (Iterator, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.badgerTx.NewIterator(opts)
	return &badgerIterator{it: it, prefix: prefix, started: false}, nil
}

func (t *badgerTx) DisableIndexing() {
	// Badger has no equivalent knob on *badger.Txn; this is a documented
	// no-op optimization hint.
}

func (t *badgerTx) Commit() error {
	if err := t.badgerTx.Commit(); err != nil {
		if err == badger.ErrConflict {
			return ErrConflict
		}
		return fmt.Errorf("kv: commit: %w", err)
	}
	return nil
}

func (t *badgerTx) Rollback() error {
	t.badgerTx.Discard()
	return nil
}

func (t *badgerTx) Close() error {
	t.badgerTx.Discard()
	return nil
}

type badgerIterator struct {
	it      *badger.Iterator
	prefix  []byte
	started bool
}

func (i *badgerIterator) Next() bool {
	if !i.started {
		i.it.Seek(i.prefix)
		i.started = true
	} else {
		i.it.Next()
	}
	return i.it.ValidForPrefix(i.prefix)
}

func (i *badgerIterator) Key() []byte {
	return i.it.Item().KeyCopy(nil)
}

func (i *badgerIterator) Value() []byte {
	var val []byte
	_ = i.it.Item().Value(func(v []byte) error {
		val = append([]byte{}, v...)
		return nil
	})
	return val
}

func (i *badgerIterator) Close() error {
	i.it.Close()
	return nil
}
