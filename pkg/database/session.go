package database

import (
	"sync"

	"github.com/orneryd/graphkv/pkg/config"
	"github.com/orneryd/graphkv/pkg/txn"
)

// SessionType selects whether a session's transactions operate on the
// schema or the data subgraph.
type SessionType int

const (
	SchemaSession SessionType = iota
	DataSession
)

// Session produces transactions of its declared type and holds a weak
// registry of the transactions it opened, so Close can close whichever are
// still open.
type Session struct {
	db     *Database
	kind   SessionType
	mu     sync.Mutex
	open   map[*txn.Transaction]struct{}
	closed bool
}

// NewSession opens a session of the given type against db.
func NewSession(db *Database, kind SessionType) *Session {
	return &Session{db: db, kind: kind, open: make(map[*txn.Transaction]struct{})}
}

// optionsFrom adapts config.TransactionConfig to txn.Options.
func optionsFrom(cfg config.TransactionConfig) txn.Options {
	return txn.Options{
		SchemaRefreshRate: cfg.SchemaRefreshRate,
		Explain:           cfg.Explain,
		Parallel:          cfg.Parallel,
		Infer:             cfg.Infer,
		TraceInference:    cfg.TraceInference,
	}
}

// Transaction opens a new transaction of kind (READ/WRITE), matching the
// session's declared type.
func (s *Session) Transaction(kind txn.Kind, cfg config.TransactionConfig) (*txn.Transaction, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.mu.Unlock()

	var t *txn.Transaction
	var err error
	switch s.kind {
	case SchemaSession:
		t, err = txn.NewSchemaTransaction(s.db, kind, optionsFrom(cfg))
	default:
		t, err = txn.NewDataTransaction(s.db, kind, optionsFrom(cfg))
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.open[t] = struct{}{}
	s.mu.Unlock()
	return t, nil
}

// Close closes every transaction this session opened that is still open.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	live := make([]*txn.Transaction, 0, len(s.open))
	for t := range s.open {
		live = append(live, t)
	}
	s.open = nil
	s.mu.Unlock()

	var firstErr error
	for _, t := range live {
		if t.IsOpen() {
			if err := t.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
