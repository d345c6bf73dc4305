package kv

import (
	"bytes"
	"sort"
	"sync"
)

// MemoryEngine is an in-memory Engine, for tests and small/ephemeral
// databases. It offers the same optimistic-transaction semantics as
// BadgerEngine over a sorted-slice index instead of an LSM tree.
//
// Grounded on pkg/storage/memory.go's RWMutex-guarded-map style, generalized
// to track a sorted key index for prefix iteration and GetLast (the earlier
// map-only version had no GetLast/ordered-iteration requirement since it
// never backed a typed-graph/type-lattice adapter).
type MemoryEngine struct {
	mu     sync.RWMutex
	data   map[string][]byte
	keys   []string // kept sorted
	closed bool

	// commitVersion increments on every successful write commit; a
	// writable transaction records the version at BeginTx and fails
	// optimistically at Commit if it has since advanced and any key this
	// transaction read or wrote now holds a different committed value.
	commitVersion uint64
}

// NewMemoryEngine creates an empty in-memory engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{data: make(map[string][]byte)}
}

func (e *MemoryEngine) BeginTx(writable bool) (Tx, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}

	snapshot := make(map[string][]byte, len(e.data))
	for k, v := range e.data {
		snapshot[k] = v
	}
	keys := make([]string, len(e.keys))
	copy(keys, e.keys)

	return &memoryTx{
		engine:      e,
		writable:    writable,
		baseVersion: e.commitVersion,
		snapshot:    snapshot,
		keys:        keys,
		writes:      make(map[string][]byte),
		deletes:     make(map[string]struct{}),
		tracked:     make(map[string]struct{}),
	}, nil
}

func (e *MemoryEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

type memoryTx struct {
	engine      *MemoryEngine
	writable    bool
	baseVersion uint64

	snapshot map[string][]byte
	keys     []string // sorted keys as of snapshot

	writes  map[string][]byte
	deletes map[string]struct{}
	tracked map[string]struct{} // keys read or written, for conflict detection

	done bool
}

func (t *memoryTx) Get(key []byte) ([]byte, error) {
	k := string(key)
	t.tracked[k] = struct{}{}
	if _, deleted := t.deletes[k]; deleted {
		return nil, ErrNotFound
	}
	if v, ok := t.writes[k]; ok {
		return v, nil
	}
	if v, ok := t.snapshot[k]; ok {
		return v, nil
	}
	return nil, ErrNotFound
}

func (t *memoryTx) GetLast(prefix []byte) ([]byte, []byte, error) {
	p := string(prefix)
	upper := append([]byte{}, prefix...)
	upper[len(upper)-1]++
	upperStr := string(upper)

	best := ""
	found := false
	consider := func(k string) {
		if !bytes.HasPrefix([]byte(k), prefix) || k >= upperStr {
			return
		}
		if !found || k > best {
			best = k
			found = true
		}
	}

	// snapshot keys (sorted) restricted to [prefix, upper)
	lo := sort.SearchStrings(t.keys, p)
	for i := lo; i < len(t.keys) && t.keys[i] < upperStr; i++ {
		if _, deleted := t.deletes[t.keys[i]]; deleted {
			continue
		}
		if _, overwritten := t.writes[t.keys[i]]; overwritten {
			continue // handled below via writes scan
		}
		consider(t.keys[i])
	}
	for k := range t.writes {
		consider(k)
	}

	if !found {
		return nil, nil, ErrNotFound
	}
	t.tracked[best] = struct{}{}
	if v, ok := t.writes[best]; ok {
		return []byte(best), v, nil
	}
	return []byte(best), t.snapshot[best], nil
}

func (t *memoryTx) put(key, value []byte, track bool) error {
	k := string(key)
	if track {
		t.tracked[k] = struct{}{}
	}
	t.writes[k] = append([]byte{}, value...)
	delete(t.deletes, k)
	return nil
}

func (t *memoryTx) Put(key, value []byte) error          { return t.put(key, value, true) }
func (t *memoryTx) PutUntracked(key, value []byte) error { return t.put(key, value, false) }

func (t *memoryTx) Delete(key []byte) error {
	k := string(key)
	t.tracked[k] = struct{}{}
	delete(t.writes, k)
	t.deletes[k] = struct{}{}
	return nil
}

func (t *memoryTx) Iterate(prefix []byte) (Iterator, error) {
	p := string(prefix)

	merged := make(map[string][]byte)
	lo := sort.SearchStrings(t.keys, p)
	for i := lo; i < len(t.keys); i++ {
		k := t.keys[i]
		if !bytes.HasPrefix([]byte(k), prefix) {
			break
		}
		if _, deleted := t.deletes[k]; deleted {
			continue
		}
		merged[k] = t.snapshot[k]
	}
	for k, v := range t.writes {
		if bytes.HasPrefix([]byte(k), prefix) {
			merged[k] = v
		}
	}
	for k := range t.deletes {
		delete(merged, k)
	}

	sorted := make([]string, 0, len(merged))
	for k := range merged {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	return &memoryIterator{keys: sorted, values: merged, pos: -1}, nil
}

func (t *memoryTx) DisableIndexing() {}

func (t *memoryTx) Commit() error {
	if t.done {
		return ErrClosed
	}
	t.done = true
	if !t.writable {
		return nil
	}

	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()

	if t.engine.commitVersion != t.baseVersion {
		// Another writer committed since our snapshot; conflict only if
		// we touched a key it also touched. We conservatively compare
		// against the full current key set for any tracked key whose
		// current value differs from our snapshot's.
		for k := range t.tracked {
			cur, curOK := t.engine.data[k]
			snap, snapOK := t.snapshot[k]
			if curOK != snapOK || !bytes.Equal(cur, snap) {
				return ErrConflict
			}
		}
	}

	for k := range t.deletes {
		if _, existed := t.engine.data[k]; existed {
			delete(t.engine.data, k)
			t.engine.removeKey(k)
		}
	}
	for k, v := range t.writes {
		if _, existed := t.engine.data[k]; !existed {
			t.engine.insertKey(k)
		}
		t.engine.data[k] = v
	}
	t.engine.commitVersion++
	return nil
}

func (t *memoryTx) Rollback() error {
	t.done = true
	return nil
}

func (t *memoryTx) Close() error {
	t.done = true
	return nil
}

func (e *MemoryEngine) insertKey(k string) {
	i := sort.SearchStrings(e.keys, k)
	e.keys = append(e.keys, "")
	copy(e.keys[i+1:], e.keys[i:])
	e.keys[i] = k
}

func (e *MemoryEngine) removeKey(k string) {
	i := sort.SearchStrings(e.keys, k)
	if i < len(e.keys) && e.keys[i] == k {
		e.keys = append(e.keys[:i], e.keys[i+1:]...)
	}
}

type memoryIterator struct {
	keys   []string
	values map[string][]byte
	pos    int
}

func (i *memoryIterator) Next() bool {
	i.pos++
	return i.pos < len(i.keys)
}

func (i *memoryIterator) Key() []byte {
	return []byte(i.keys[i.pos])
}

func (i *memoryIterator) Value() []byte {
	return i.values[i.keys[i.pos]]
}

func (i *memoryIterator) Close() error { return nil }
