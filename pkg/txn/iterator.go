package txn

import "github.com/orneryd/graphkv/pkg/kv"

// trackedIterator wraps a kv.Iterator so the owning transaction can close
// every live iterator on its own Close, and so a closed READ-transaction
// iterator's wrapper is returned to a pool instead of discarded.
type trackedIterator struct {
	kv.Iterator
	own    *Transaction
	closed bool
}

func (it *trackedIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	err := it.Iterator.Close()
	it.own.unregisterIterator(it)
	return err
}

// registerIterator wraps it and adds it to the transaction's live set.
func (t *Transaction) registerIterator(it kv.Iterator) kv.Iterator {
	t.iterMu.Lock()
	defer t.iterMu.Unlock()

	tracked := t.popFromPool()
	if tracked != nil {
		tracked.Iterator = it
		tracked.closed = false
	} else {
		tracked = &trackedIterator{Iterator: it, own: t}
	}
	t.liveIterators[tracked] = struct{}{}
	return tracked
}

func (t *Transaction) unregisterIterator(it *trackedIterator) {
	t.iterMu.Lock()
	defer t.iterMu.Unlock()
	delete(t.liveIterators, it)
	if t.kind == Read {
		t.recycledPool = append(t.recycledPool, it)
	}
}

// popFromPool returns a previously-recycled wrapper struct, if any, so
// repeated same-prefix iteration in a READ transaction avoids reallocating
// the tracking wrapper. The underlying storage cursor is always fresh: the
// KV adapter contract exposes no reset-to-prefix primitive, so true
// cursor reuse is an engine-internal optimization, not one this layer can
// perform generically.
func (t *Transaction) popFromPool() *trackedIterator {
	n := len(t.recycledPool)
	if n == 0 {
		return nil
	}
	tracked := t.recycledPool[n-1]
	t.recycledPool = t.recycledPool[:n-1]
	return tracked
}

// closeAllIterators closes every live iterator (best-effort) and drains the
// recycled pool. Called from Transaction.Close.
func (t *Transaction) closeAllIterators() {
	t.iterMu.Lock()
	live := make([]*trackedIterator, 0, len(t.liveIterators))
	for it := range t.liveIterators {
		live = append(live, it)
	}
	t.liveIterators = make(map[*trackedIterator]struct{})
	t.recycledPool = nil
	t.iterMu.Unlock()

	for _, it := range live {
		_ = it.Iterator.Close()
	}
}
