// Package database implements the process-long database object:
// the KV engine, the dataReadSchemaLock serializing schema commits against
// data-transaction opens, the lazily-built shared schema cache, and the
// schema/data key generators.
//
// Grounded on pkg/storage/schema.go's SchemaManager for the mutex-guarded
// struct shape, generalized from an in-process constraint/index registry to
// the cross-transaction locking and reference-counted cache added here.
package database

import (
	"fmt"
	"sync"

	"github.com/orneryd/graphkv/pkg/config"
	"github.com/orneryd/graphkv/pkg/kv"
	"github.com/orneryd/graphkv/pkg/txn"
)

// Database owns a KV engine exclusively. It implements txn.Database
// so pkg/txn's transaction constructors can open against it without
// importing this package.
type Database struct {
	engine kv.Engine

	// dataReadSchemaLock: write side held by schema commits, read side by
	// data-transaction opens.
	dataReadSchemaLock sync.RWMutex

	cacheMu sync.Mutex
	cache   *schemaCache

	SchemaKeys *KeyGenerator
	DataKeys   *KeyGenerator
}

// Open constructs a Database over the KV engine selected by cfg.
func Open(cfg config.DatabaseConfig) (*Database, error) {
	engine, err := openEngine(cfg)
	if err != nil {
		return nil, fmt.Errorf("database: opening storage engine: %w", err)
	}
	return &Database{
		engine:     engine,
		SchemaKeys: NewKeyGenerator("s"),
		DataKeys:   NewKeyGenerator("d"),
	}, nil
}

func openEngine(cfg config.DatabaseConfig) (kv.Engine, error) {
	if cfg.InMemory || cfg.DataDir == "" {
		return kv.NewMemoryEngine(), nil
	}
	return kv.NewBadgerEngine(cfg.DataDir)
}

// Engine implements txn.Database.
func (d *Database) Engine() kv.Engine { return d.engine }

// AcquireSchemaWriteLock implements txn.Database.
func (d *Database) AcquireSchemaWriteLock() { d.dataReadSchemaLock.Lock() }

// ReleaseSchemaWriteLock implements txn.Database.
func (d *Database) ReleaseSchemaWriteLock() { d.dataReadSchemaLock.Unlock() }

// AcquireDataReadLock implements txn.Database.
func (d *Database) AcquireDataReadLock() { d.dataReadSchemaLock.RLock() }

// ReleaseDataReadLock implements txn.Database.
func (d *Database) ReleaseDataReadLock() { d.dataReadSchemaLock.RUnlock() }

// PinSchemaCache implements txn.Database: returns the current cached schema
// graph, building one lazily, with its reference count already
// incremented.
func (d *Database) PinSchemaCache() txn.SchemaCache {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()

	if d.cache == nil {
		c, err := newSchemaCache(d)
		if err != nil {
			// The engine is unusable; txn.NewDataTransaction reports a
			// nil cache as a storage failure.
			return nil
		}
		d.cache = c
	}
	d.cache.pin()
	return d.cache
}

// EvictSchemaCache implements txn.Database: marks the current cache
// may-close (it is dropped once its reference count reaches zero) and
// clears the database's own reference so a fresh one is built lazily on
// next PinSchemaCache.
func (d *Database) EvictSchemaCache() {
	d.cacheMu.Lock()
	c := d.cache
	d.cache = nil
	d.cacheMu.Unlock()

	if c != nil {
		c.markMayClose()
	}
}

// dropCache closes c's backing KV transaction once its last pin is
// released after having been marked may-close. A no-op if the database has
// already moved on to a newer cache.
func (d *Database) dropCache(c *schemaCache) {
	d.cacheMu.Lock()
	if d.cache == c {
		d.cache = nil
	}
	d.cacheMu.Unlock()
	c.close()
}

// Close releases the database's KV engine and any cached schema graph.
func (d *Database) Close() error {
	d.cacheMu.Lock()
	c := d.cache
	d.cache = nil
	d.cacheMu.Unlock()
	if c != nil {
		c.close()
	}
	return d.engine.Close()
}
