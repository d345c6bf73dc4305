package database

import (
	"sync"

	"github.com/orneryd/graphkv/pkg/graph"
	"github.com/orneryd/graphkv/pkg/kv"
	"github.com/orneryd/graphkv/pkg/schema"
)

// schemaRefreshRate bounds how many SignalMayRefresh calls a cache absorbs
// before replacing its backing KV snapshot.
const schemaRefreshRate = 100

// schemaCache is the live, reference-counted schema graph a database lazily
// builds and shares with data transactions. It implements
// txn.SchemaCache.
//
// Grounded on pkg/storage/schema.go's SchemaManager (sync.RWMutex-guarded
// in-memory schema state), generalized with the reference-count + may-close
// protocol a cross-transaction schema lifecycle needs.
type schemaCache struct {
	db *Database

	mu        sync.Mutex
	tx        kv.Tx
	store     *graph.Store
	lattice   *schema.Lattice
	refs      int
	mayClose  bool
	refreshes int
}

func newSchemaCache(db *Database) (*schemaCache, error) {
	tx, err := db.engine.BeginTx(false)
	if err != nil {
		return nil, err
	}
	store := graph.NewStore(&singleTxStorage{tx: tx})
	c := &schemaCache{
		db:      db,
		tx:      tx,
		store:   store,
		lattice: schema.NewLattice(store),
	}
	return c, nil
}

// Store implements txn.SchemaCache.
func (c *schemaCache) Store() *graph.Store { return c.store }

// Lattice implements txn.SchemaCache.
func (c *schemaCache) Lattice() *schema.Lattice { return c.lattice }

// pin increments the reference count; called while the database holds
// dataReadSchemaLock in read mode.
func (c *schemaCache) pin() {
	c.mu.Lock()
	c.refs++
	c.mu.Unlock()
}

// Unpin implements txn.SchemaCache: decrements the reference count and, if
// the cache has been marked may-close and no one else holds it, evicts it
// from the owning database so the next pin rebuilds from a fresh snapshot.
func (c *schemaCache) Unpin() {
	c.mu.Lock()
	c.refs--
	evict := c.refs <= 0 && c.mayClose
	c.mu.Unlock()
	if evict {
		c.db.dropCache(c)
	}
}

// markMayClose is set by a schema commit's eviction step:
// the cache is still in use by live data transactions but must not outlive
// them.
func (c *schemaCache) markMayClose() {
	c.mu.Lock()
	c.mayClose = true
	evict := c.refs <= 0
	c.mu.Unlock()
	if evict {
		c.db.dropCache(c)
	}
}

// SignalMayRefresh implements txn.SchemaCache: every schemaRefreshRate
// signals from committing data transactions, the cache's backing snapshot
// is replaced so long-lived readers of the cache observe recently committed
// data without forcing a full schema reload.
func (c *schemaCache) SignalMayRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++
	if c.refreshes < schemaRefreshRate {
		return
	}
	c.refreshes = 0

	fresh, err := c.db.engine.BeginTx(false)
	if err != nil {
		return
	}
	old := c.tx
	c.tx = fresh
	c.store = graph.NewStore(&singleTxStorage{tx: fresh})
	c.lattice = schema.NewLattice(c.store)
	_ = old.Close()
}

func (c *schemaCache) close() {
	c.mu.Lock()
	tx := c.tx
	c.mu.Unlock()
	if tx != nil {
		_ = tx.Close()
	}
}

// singleTxStorage adapts a single kv.Tx to graph.Storage for the
// process-long schema cache, which is not bound to any one transaction's
// read/write lock.
type singleTxStorage struct {
	mu sync.RWMutex
	tx kv.Tx
}

func (s *singleTxStorage) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tx.Get(key)
}

func (s *singleTxStorage) GetLast(prefix []byte) ([]byte, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tx.GetLast(prefix)
}

func (s *singleTxStorage) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx.Put(key, value)
}

func (s *singleTxStorage) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx.Delete(key)
}

func (s *singleTxStorage) Iterate(prefix []byte) (kv.Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tx.Iterate(prefix)
}
