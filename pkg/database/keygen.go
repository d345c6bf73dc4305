package database

import (
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"

	"golang.org/x/crypto/blake2b"
)

// KeyGenerator produces distinct encoded identifiers for one vertex
// population — schema or data. Generalized from pkg/storage/
// transaction.go's time-formatted generateTxID to a counter-based scheme:
// the counter never repeats a value, which a wall-clock string cannot
// guarantee under clock skew or sub-microsecond bursts.
//
// The encoded ID is a blake2b-128 digest of the counter value rather than
// the raw counter bytes, so identifiers carried in exported snapshots or
// logs don't leak the database's total vertex count. The counter increases
// monotonically but the digests do not: compared as bytes, the IDs are not
// in generation order.
type KeyGenerator struct {
	prefix  string
	counter atomic.Uint64
}

// NewKeyGenerator returns a generator whose IDs are tagged with prefix
// ("s" for schema, "d" for data) so the two populations' identifiers never
// collide even if their counters happen to align.
func NewKeyGenerator(prefix string) *KeyGenerator {
	return &KeyGenerator{prefix: prefix}
}

// Next returns the next identifier in the sequence, encoded as
// prefix + hex(blake2b-128(counter)).
func (g *KeyGenerator) Next() string {
	n := g.counter.Add(1)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)

	h, err := blake2b.New(16, nil)
	if err != nil {
		// Only returns an error for an invalid size/key combination;
		// 16 bytes with no key is always valid.
		panic(err)
	}
	h.Write(buf[:])
	return g.prefix + hex.EncodeToString(h.Sum(nil))
}
