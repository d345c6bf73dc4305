package txn

import (
	"fmt"
	"log"
	"sync"

	"github.com/orneryd/graphkv/pkg/kv"
)

// storageView serializes all KV calls through the owning transaction's
// read/write lock: get/iteration take the read lock, put/delete
// take the write lock, put_untracked unconditionally takes the write lock.
// Any unexpected KV error closes the owning transaction before surfacing.
type storageView struct {
	tx  kv.Tx
	rw  *sync.RWMutex
	own *Transaction
}

func (s *storageView) fail(err error) error {
	log.Printf("[graphkv:txn] transaction-fatal storage error, closing: %v", err)
	s.own.closeOnFault()
	return fmt.Errorf("%w: %v", ErrStorageFailure, err)
}

func (s *storageView) Get(key []byte) ([]byte, error) {
	s.rw.RLock()
	defer s.rw.RUnlock()
	v, err := s.tx.Get(key)
	if err != nil {
		if err == kv.ErrNotFound {
			return nil, err
		}
		return nil, s.fail(err)
	}
	return v, nil
}

func (s *storageView) GetLast(prefix []byte) ([]byte, []byte, error) {
	s.rw.RLock()
	defer s.rw.RUnlock()
	k, v, err := s.tx.GetLast(prefix)
	if err != nil {
		if err == kv.ErrNotFound {
			return nil, nil, err
		}
		return nil, nil, s.fail(err)
	}
	return k, v, nil
}

func (s *storageView) Put(key, value []byte) error {
	s.rw.Lock()
	defer s.rw.Unlock()
	if err := s.tx.Put(key, value); err != nil {
		return s.fail(err)
	}
	return nil
}

func (s *storageView) PutUntracked(key, value []byte) error {
	s.rw.Lock()
	defer s.rw.Unlock()
	if err := s.tx.PutUntracked(key, value); err != nil {
		return s.fail(err)
	}
	return nil
}

func (s *storageView) Delete(key []byte) error {
	s.rw.Lock()
	defer s.rw.Unlock()
	if err := s.tx.Delete(key); err != nil {
		return s.fail(err)
	}
	return nil
}

func (s *storageView) Iterate(prefix []byte) (kv.Iterator, error) {
	s.rw.RLock()
	defer s.rw.RUnlock()
	it, err := s.tx.Iterate(prefix)
	if err != nil {
		return nil, s.fail(err)
	}
	return s.own.registerIterator(it), nil
}
