package txn

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphkv/pkg/graph"
	"github.com/orneryd/graphkv/pkg/kv"
	"github.com/orneryd/graphkv/pkg/schema"
)

// stubCache is a minimal SchemaCache used to test pinning/unpinning and
// refresh signaling without pulling in pkg/database.
type stubCache struct {
	mu          sync.Mutex
	store       *graph.Store
	lattice     *schema.Lattice
	pins        int
	refreshHits int
}

func (c *stubCache) Store() *graph.Store       { return c.store }
func (c *stubCache) Lattice() *schema.Lattice  { return c.lattice }
func (c *stubCache) Unpin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pins--
}
func (c *stubCache) SignalMayRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshHits++
}

// stubDatabase implements the txn.Database interface over a bare
// kv.MemoryEngine, with no-op locks (single-goroutine tests).
type stubDatabase struct {
	engine      kv.Engine
	mu          sync.Mutex
	cache       *stubCache
	evictCalled int
}

func newStubDatabase() *stubDatabase {
	return &stubDatabase{engine: kv.NewMemoryEngine()}
}

func (d *stubDatabase) Engine() kv.Engine { return d.engine }

func (d *stubDatabase) AcquireSchemaWriteLock() {}
func (d *stubDatabase) ReleaseSchemaWriteLock() {}
func (d *stubDatabase) AcquireDataReadLock()    {}
func (d *stubDatabase) ReleaseDataReadLock()    {}

func (d *stubDatabase) PinSchemaCache() SchemaCache {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cache == nil {
		store := graph.NewStore(newInlineStorage(d.engine))
		d.cache = &stubCache{store: store, lattice: schema.NewLattice(store)}
	}
	d.cache.pins++
	return d.cache
}

func (d *stubDatabase) EvictSchemaCache() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evictCalled++
	d.cache = nil
}

// inlineStorage adapts a kv.Engine's own auto-committing read tx to
// graph.Storage, for the stub cache's standalone store view.
type inlineStorage struct {
	engine kv.Engine
}

func newInlineStorage(e kv.Engine) *inlineStorage { return &inlineStorage{engine: e} }

func (s *inlineStorage) withTx(write bool, fn func(kv.Tx) error) error {
	tx, err := s.engine.BeginTx(write)
	if err != nil {
		return err
	}
	defer tx.Close()
	if err := fn(tx); err != nil {
		return err
	}
	if write {
		return tx.Commit()
	}
	return nil
}

func (s *inlineStorage) Get(key []byte) (v []byte, err error) {
	err = s.withTx(false, func(tx kv.Tx) error {
		v, err = tx.Get(key)
		return err
	})
	return
}

func (s *inlineStorage) GetLast(prefix []byte) (k, v []byte, err error) {
	err = s.withTx(false, func(tx kv.Tx) error {
		k, v, err = tx.GetLast(prefix)
		return err
	})
	return
}

func (s *inlineStorage) Put(key, value []byte) error {
	return s.withTx(true, func(tx kv.Tx) error { return tx.Put(key, value) })
}

func (s *inlineStorage) Delete(key []byte) error {
	return s.withTx(true, func(tx kv.Tx) error { return tx.Delete(key) })
}

func (s *inlineStorage) Iterate(prefix []byte) (it kv.Iterator, err error) {
	tx, err := s.engine.BeginTx(false)
	if err != nil {
		return nil, err
	}
	return tx.Iterate(prefix)
}

func TestNewSchemaTransaction_WriteCommits(t *testing.T) {
	db := newStubDatabase()
	tx, err := NewSchemaTransaction(db, Write, Options{})
	require.NoError(t, err)
	require.True(t, tx.IsOpen())

	store, err := tx.Store()
	require.NoError(t, err)
	require.NoError(t, store.CreateVertex(&graph.Vertex{ID: graph.RootThingID, Kind: graph.KindThingType, IsRoot: true}))

	require.NoError(t, tx.Commit())
	assert.False(t, tx.IsOpen())
	assert.Equal(t, 1, db.evictCalled)
}

func TestNewSchemaTransaction_ReadCannotCommit(t *testing.T) {
	db := newStubDatabase()
	tx, err := NewSchemaTransaction(db, Read, Options{})
	require.NoError(t, err)

	err = tx.Commit()
	assert.ErrorIs(t, err, ErrIllegalCommit)
}

func TestSchemaTransaction_DataWriteIsViolation(t *testing.T) {
	db := newStubDatabase()
	tx, err := NewSchemaTransaction(db, Write, Options{})
	require.NoError(t, err)

	store, err := tx.Store()
	require.NoError(t, err)
	require.NoError(t, store.CreateVertex(&graph.Vertex{ID: "e1", Kind: graph.KindEntity, TypeID: graph.RootEntityID}))

	err = tx.Commit()
	assert.ErrorIs(t, err, ErrSchemaViolation)
}

func TestDataTransaction_SchemaWriteIsViolation(t *testing.T) {
	db := newStubDatabase()
	tx, err := NewDataTransaction(db, Write, Options{})
	require.NoError(t, err)

	store, err := tx.Store()
	require.NoError(t, err)
	require.NoError(t, store.CreateVertex(&graph.Vertex{ID: "person", Kind: graph.KindEntityType, Label: "person"}))

	err = tx.Commit()
	assert.ErrorIs(t, err, ErrDataViolation)
}

func TestDataTransaction_CommitSignalsRefreshAndUnpins(t *testing.T) {
	db := newStubDatabase()

	schemaTx, err := NewSchemaTransaction(db, Write, Options{})
	require.NoError(t, err)
	schemaStore, err := schemaTx.Store()
	require.NoError(t, err)
	require.NoError(t, schemaStore.CreateVertex(&graph.Vertex{ID: graph.RootEntityID, Kind: graph.KindEntityType, IsRoot: true}))
	require.NoError(t, schemaTx.Commit())

	tx, err := NewDataTransaction(db, Write, Options{})
	require.NoError(t, err)

	cache := db.cache
	require.NotNil(t, cache)
	assert.Equal(t, 1, cache.pins)

	store, err := tx.Store()
	require.NoError(t, err)
	require.NoError(t, store.CreateVertex(&graph.Vertex{ID: "e1", Kind: graph.KindEntity, TypeID: graph.RootEntityID}))

	require.NoError(t, tx.Commit())
	assert.Equal(t, 1, cache.refreshHits)
	assert.Equal(t, 0, cache.pins)
}

func TestDataTransaction_CommitRejectsAbstractTypeInstance(t *testing.T) {
	db := newStubDatabase()

	schemaTx, err := NewSchemaTransaction(db, Write, Options{})
	require.NoError(t, err)
	schemaStore, err := schemaTx.Store()
	require.NoError(t, err)
	require.NoError(t, schemaStore.CreateVertex(&graph.Vertex{ID: graph.RootEntityID, Kind: graph.KindEntityType, IsRoot: true}))
	require.NoError(t, schemaStore.CreateVertex(&graph.Vertex{ID: "shape", Kind: graph.KindEntityType, Label: "shape", IsAbstract: true}))
	lattice, err := schemaTx.Lattice()
	require.NoError(t, err)
	require.NoError(t, lattice.Sub("shape", graph.RootEntityID))
	require.NoError(t, schemaTx.Commit())

	tx, err := NewDataTransaction(db, Write, Options{})
	require.NoError(t, err)
	store, err := tx.Store()
	require.NoError(t, err)
	require.NoError(t, store.CreateVertex(&graph.Vertex{ID: "s1", Kind: graph.KindEntity, TypeID: "shape"}))

	err = tx.Commit()
	assert.ErrorIs(t, err, ErrDataViolation)
}

func TestDataTransaction_CommitRejectsUnknownInstanceType(t *testing.T) {
	db := newStubDatabase()
	tx, err := NewDataTransaction(db, Write, Options{})
	require.NoError(t, err)

	store, err := tx.Store()
	require.NoError(t, err)
	require.NoError(t, store.CreateVertex(&graph.Vertex{ID: "e1", Kind: graph.KindEntity, TypeID: "ghost"}))

	err = tx.Commit()
	assert.ErrorIs(t, err, ErrDataViolation)
}

func TestDataTransaction_CommitRejectsRolePlayerNotPlayingRole(t *testing.T) {
	db := newStubDatabase()

	schemaTx, err := NewSchemaTransaction(db, Write, Options{})
	require.NoError(t, err)
	schemaStore, err := schemaTx.Store()
	require.NoError(t, err)
	require.NoError(t, schemaStore.CreateVertex(&graph.Vertex{ID: graph.RootEntityID, Kind: graph.KindEntityType, IsRoot: true}))
	require.NoError(t, schemaStore.CreateVertex(&graph.Vertex{ID: graph.RootRelationID, Kind: graph.KindRelationType, IsRoot: true}))
	require.NoError(t, schemaStore.CreateVertex(&graph.Vertex{ID: "person", Kind: graph.KindEntityType, Label: "person"}))
	lattice, err := schemaTx.Lattice()
	require.NoError(t, err)
	require.NoError(t, lattice.Sub("person", graph.RootEntityID))
	require.NoError(t, schemaTx.Commit())

	tx, err := NewDataTransaction(db, Write, Options{})
	require.NoError(t, err)
	store, err := tx.Store()
	require.NoError(t, err)
	require.NoError(t, store.CreateVertex(&graph.Vertex{ID: "alice", Kind: graph.KindEntity, TypeID: "person"}))
	require.NoError(t, store.CreateVertex(&graph.Vertex{ID: "rel1", Kind: graph.KindRelation, TypeID: graph.RootRelationID}))
	require.NoError(t, store.CreateRolePlayer(graph.RolePlayer{Relation: "rel1", Player: "alice", RoleType: "employee"}))

	err = tx.Commit()
	assert.ErrorIs(t, err, ErrDataViolation)
}

func TestDataTransaction_CommitAcceptsValidRolePlayer(t *testing.T) {
	db := newStubDatabase()

	schemaTx, err := NewSchemaTransaction(db, Write, Options{})
	require.NoError(t, err)
	schemaStore, err := schemaTx.Store()
	require.NoError(t, err)
	require.NoError(t, schemaStore.CreateVertex(&graph.Vertex{ID: graph.RootEntityID, Kind: graph.KindEntityType, IsRoot: true}))
	require.NoError(t, schemaStore.CreateVertex(&graph.Vertex{ID: graph.RootRelationID, Kind: graph.KindRelationType, IsRoot: true}))
	require.NoError(t, schemaStore.CreateVertex(&graph.Vertex{ID: graph.RootRoleID, Kind: graph.KindRoleType, IsRoot: true}))
	require.NoError(t, schemaStore.CreateVertex(&graph.Vertex{ID: "person", Kind: graph.KindEntityType, Label: "person"}))
	require.NoError(t, schemaStore.CreateVertex(&graph.Vertex{ID: "employee", Kind: graph.KindRoleType, Label: "employee"}))
	lattice, err := schemaTx.Lattice()
	require.NoError(t, err)
	require.NoError(t, lattice.Sub("person", graph.RootEntityID))
	require.NoError(t, lattice.Sub("employee", graph.RootRoleID))
	require.NoError(t, lattice.Plays("person", "employee", ""))
	require.NoError(t, schemaTx.Commit())

	tx, err := NewDataTransaction(db, Write, Options{})
	require.NoError(t, err)
	store, err := tx.Store()
	require.NoError(t, err)
	require.NoError(t, store.CreateVertex(&graph.Vertex{ID: "alice", Kind: graph.KindEntity, TypeID: "person"}))
	require.NoError(t, store.CreateVertex(&graph.Vertex{ID: "rel1", Kind: graph.KindRelation, TypeID: graph.RootRelationID}))
	require.NoError(t, store.CreateRolePlayer(graph.RolePlayer{Relation: "rel1", Player: "alice", RoleType: "employee"}))

	require.NoError(t, tx.Commit())
}

func TestDataTransaction_ReadCannotCommit(t *testing.T) {
	db := newStubDatabase()
	tx, err := NewDataTransaction(db, Read, Options{})
	require.NoError(t, err)

	err = tx.Commit()
	assert.ErrorIs(t, err, ErrIllegalCommit)
}

func TestTransaction_RollbackClearsModifiedFlags(t *testing.T) {
	db := newStubDatabase()
	tx, err := NewDataTransaction(db, Write, Options{})
	require.NoError(t, err)

	store, err := tx.Store()
	require.NoError(t, err)
	require.NoError(t, store.CreateVertex(&graph.Vertex{ID: "e1", Kind: graph.KindEntity, TypeID: graph.RootEntityID}))

	require.NoError(t, tx.Rollback())
	assert.True(t, tx.IsOpen())

	tx.mu.Lock()
	dataModified := tx.dataModified
	tx.mu.Unlock()
	assert.False(t, dataModified)
}

func TestTransaction_CloseIsIdempotent(t *testing.T) {
	db := newStubDatabase()
	tx, err := NewDataTransaction(db, Read, Options{})
	require.NoError(t, err)

	require.NoError(t, tx.Close())
	require.NoError(t, tx.Close())
	assert.False(t, tx.IsOpen())
}

func TestTransaction_ClosedRejectsStoreAccess(t *testing.T) {
	db := newStubDatabase()
	tx, err := NewDataTransaction(db, Read, Options{})
	require.NoError(t, err)
	require.NoError(t, tx.Close())

	_, err = tx.Store()
	assert.ErrorIs(t, err, ErrTransactionClosed)
	_, err = tx.Lattice()
	assert.ErrorIs(t, err, ErrTransactionClosed)
}

func TestTransaction_IteratorsAreRecycledOnReadClose(t *testing.T) {
	db := newStubDatabase()
	tx, err := NewSchemaTransaction(db, Read, Options{})
	require.NoError(t, err)

	store, err := tx.Store()
	require.NoError(t, err)

	_, err = store.Outs(graph.EdgeSub, graph.RootEntityID)
	require.NoError(t, err)
	assert.Empty(t, tx.liveIterators)
	assert.Len(t, tx.recycledPool, 1, "a closed read-tx iterator should return to the pool")

	require.NoError(t, tx.Close())
	assert.Empty(t, tx.liveIterators)
	assert.Empty(t, tx.recycledPool)
}

func TestSchemaTransaction_MayRefreshRotatesSnapshot(t *testing.T) {
	db := newStubDatabase()
	tx, err := NewSchemaTransaction(db, Read, Options{SchemaRefreshRate: 2})
	require.NoError(t, err)

	original := tx.kvTx
	require.NoError(t, tx.MayRefresh())
	assert.Same(t, original, tx.kvTx, "refresh should not fire before the configured rate")

	require.NoError(t, tx.MayRefresh())
	assert.NotSame(t, original, tx.kvTx, "refresh should replace the snapshot at the configured rate")
}
