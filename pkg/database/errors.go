package database

import "errors"

// ErrSessionClosed is returned when a transaction is requested from a
// session that has already been closed.
var ErrSessionClosed = errors.New("database: session is closed")
