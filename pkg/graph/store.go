package graph

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/orneryd/graphkv/pkg/kv"
)

// Storage is the subset of the KV contract the typed graph store needs.
// Satisfied directly by kv.Tx, and by pkg/txn's lock-wrapping storage view
// so every graph read/write goes through the transaction's read/write lock
// discipline.
type Storage interface {
	Get(key []byte) ([]byte, error)
	GetLast(prefix []byte) (key, value []byte, err error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Iterate(prefix []byte) (kv.Iterator, error)
}

var ErrNotFound = errors.New("graph: not found")

// SchemaWriteNotifier is implemented optionally by a Storage to observe
// type-level (schema) mutations, independent of the raw key bytes written —
// used by pkg/txn to detect a schema transaction touching data or vice
// versa.
type SchemaWriteNotifier interface {
	NotifySchemaWrite()
}

// DataWriteNotifier is the instance-level (data) counterpart of
// SchemaWriteNotifier.
type DataWriteNotifier interface {
	NotifyDataWrite()
}

// InstanceWriteNotifier is implemented optionally by a Storage to observe
// instance-vertex creation, letting a data transaction collect exactly the
// records it needs to validate against the schema at commit instead of
// re-scanning the whole data graph.
type InstanceWriteNotifier interface {
	NotifyInstanceCreated(v *Vertex)
}

// RolePlayerWriteNotifier is the role-player counterpart of
// InstanceWriteNotifier.
type RolePlayerWriteNotifier interface {
	NotifyRolePlayerCreated(rp RolePlayer)
}

func (g *Store) notifySchemaWrite() {
	if n, ok := g.s.(SchemaWriteNotifier); ok {
		n.NotifySchemaWrite()
	}
}

func (g *Store) notifyDataWrite() {
	if n, ok := g.s.(DataWriteNotifier); ok {
		n.NotifyDataWrite()
	}
}

func (g *Store) notifyInstanceCreated(v *Vertex) {
	if n, ok := g.s.(InstanceWriteNotifier); ok {
		n.NotifyInstanceCreated(v)
	}
}

func (g *Store) notifyRolePlayerCreated(rp RolePlayer) {
	if n, ok := g.s.(RolePlayerWriteNotifier); ok {
		n.NotifyRolePlayerCreated(rp)
	}
}

// Key prefixes. Single-byte, following pkg/storage/badger.go's scheme.
const (
	prefixVertex      = byte(0x01) // vertex:id -> json(Vertex)
	prefixLabelIndex  = byte(0x02) // label:kind:label -> id
	prefixTypeEdgeOut = byte(0x03) // tout:edgeKind:from:0x00:to -> overriddenID
	prefixTypeEdgeIn  = byte(0x04) // tin:edgeKind:to:0x00:from -> (empty)
	prefixRolePlayer  = byte(0x05) // rp:relation:0x00:roleType:0x00:repetition:0x00:player -> (empty)
	prefixRolePlayerP = byte(0x06) // rpp:player:0x00:relation:0x00:roleType:0x00:repetition -> (empty)
	prefixInstanceOf  = byte(0x07) // inst:typeId:0x00:instanceId -> (empty)
)

const sep = byte(0x00)

func vertexKey(id VertexID) []byte {
	return append([]byte{prefixVertex}, []byte(id)...)
}

func labelKey(kind Kind, label string) []byte {
	key := []byte{prefixLabelIndex, byte(kind)}
	return append(key, []byte(label)...)
}

func typeEdgeOutKey(kind EdgeKind, from, to VertexID) []byte {
	key := []byte{prefixTypeEdgeOut, byte(kind)}
	key = append(key, []byte(from)...)
	key = append(key, sep)
	key = append(key, []byte(to)...)
	return key
}

func typeEdgeOutPrefix(kind EdgeKind, from VertexID) []byte {
	key := []byte{prefixTypeEdgeOut, byte(kind)}
	key = append(key, []byte(from)...)
	return append(key, sep)
}

func typeEdgeInKey(kind EdgeKind, to, from VertexID) []byte {
	key := []byte{prefixTypeEdgeIn, byte(kind)}
	key = append(key, []byte(to)...)
	key = append(key, sep)
	key = append(key, []byte(from)...)
	return key
}

func typeEdgeInPrefix(kind EdgeKind, to VertexID) []byte {
	key := []byte{prefixTypeEdgeIn, byte(kind)}
	key = append(key, []byte(to)...)
	return append(key, sep)
}

func repBytes(rep int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(rep))
	return b
}

func rolePlayerKey(relation, roleType VertexID, repetition int, player VertexID) []byte {
	key := []byte{prefixRolePlayer}
	key = append(key, []byte(relation)...)
	key = append(key, sep)
	key = append(key, []byte(roleType)...)
	key = append(key, sep)
	key = append(key, repBytes(repetition)...)
	key = append(key, sep)
	key = append(key, []byte(player)...)
	return key
}

func rolePlayerRelationPrefix(relation VertexID) []byte {
	key := []byte{prefixRolePlayer}
	key = append(key, []byte(relation)...)
	return append(key, sep)
}

func rolePlayerPlayerKey(player, relation, roleType VertexID, repetition int) []byte {
	key := []byte{prefixRolePlayerP}
	key = append(key, []byte(player)...)
	key = append(key, sep)
	key = append(key, []byte(relation)...)
	key = append(key, sep)
	key = append(key, []byte(roleType)...)
	key = append(key, sep)
	key = append(key, repBytes(repetition)...)
	return key
}

func rolePlayerPlayerPrefix(player VertexID) []byte {
	key := []byte{prefixRolePlayerP}
	key = append(key, []byte(player)...)
	return append(key, sep)
}

func instanceOfKey(typeID, instanceID VertexID) []byte {
	key := []byte{prefixInstanceOf}
	key = append(key, []byte(typeID)...)
	key = append(key, sep)
	return append(key, []byte(instanceID)...)
}

func instanceOfPrefix(typeID VertexID) []byte {
	key := []byte{prefixInstanceOf}
	key = append(key, []byte(typeID)...)
	return append(key, sep)
}

// Store is a typed-graph view over a Storage. One Store is created per
// transaction: it caches nothing across transactions, relying on the
// owning transaction's iterator/lock discipline for consistency.
type Store struct {
	s Storage
}

// NewStore wraps a Storage in a typed-graph Store.
func NewStore(s Storage) *Store {
	return &Store{s: s}
}

// CreateVertex persists a new vertex. Fails if one already exists at id.
func (g *Store) CreateVertex(v *Vertex) error {
	if _, err := g.GetVertex(v.ID); err == nil {
		return fmt.Errorf("graph: vertex %q already exists", v.ID)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	data, err := encodeVertex(v)
	if err != nil {
		return err
	}
	if err := g.s.Put(vertexKey(v.ID), data); err != nil {
		return fmt.Errorf("graph: writing vertex: %w", err)
	}
	if v.Kind.IsType() && v.Label != "" {
		if err := g.s.Put(labelKey(v.Kind, v.Label), []byte(v.ID)); err != nil {
			return fmt.Errorf("graph: writing label index: %w", err)
		}
	}
	if v.Kind.IsInstance() && v.TypeID != "" {
		if err := g.s.Put(instanceOfKey(v.TypeID, v.ID), []byte{}); err != nil {
			return fmt.Errorf("graph: writing instance index: %w", err)
		}
	}
	if v.Kind.IsType() {
		g.notifySchemaWrite()
	} else {
		g.notifyDataWrite()
		g.notifyInstanceCreated(v)
	}
	return nil
}

// notFoundOrWrap translates a Storage.Get miss into ErrNotFound, propagating
// any other (storage-fatal) error as-is.
func notFoundOrWrap(err error) error {
	if errors.Is(err, kv.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("graph: %w", err)
}

// GetVertex retrieves a vertex by id.
func (g *Store) GetVertex(id VertexID) (*Vertex, error) {
	data, err := g.s.Get(vertexKey(id))
	if err != nil {
		return nil, notFoundOrWrap(err)
	}
	return decodeVertex(data)
}

// VertexByLabel looks up a type vertex of the given kind by its label.
func (g *Store) VertexByLabel(kind Kind, label string) (*Vertex, error) {
	id, err := g.s.Get(labelKey(kind, label))
	if err != nil {
		return nil, notFoundOrWrap(err)
	}
	return g.GetVertex(VertexID(id))
}

// SetLabel updates a type vertex's label, maintaining the label index.
func (g *Store) SetLabel(id VertexID, label string) error {
	v, err := g.GetVertex(id)
	if err != nil {
		return err
	}
	if v.Label != "" {
		_ = g.s.Delete(labelKey(v.Kind, v.Label))
	}
	v.Label = label
	data, err := encodeVertex(v)
	if err != nil {
		return err
	}
	if err := g.s.Put(vertexKey(id), data); err != nil {
		return err
	}
	if err := g.s.Put(labelKey(v.Kind, label), []byte(id)); err != nil {
		return err
	}
	g.notifySchemaWrite()
	return nil
}

// SetAbstract updates a type vertex's isAbstract flag.
func (g *Store) SetAbstract(id VertexID, abstract bool) error {
	v, err := g.GetVertex(id)
	if err != nil {
		return err
	}
	v.IsAbstract = abstract
	data, err := encodeVertex(v)
	if err != nil {
		return err
	}
	if err := g.s.Put(vertexKey(id), data); err != nil {
		return err
	}
	g.notifySchemaWrite()
	return nil
}

// DeleteVertex removes a vertex and its label index entry. The caller is
// responsible for ensuring no edges reference it.
func (g *Store) DeleteVertex(id VertexID) error {
	v, err := g.GetVertex(id)
	if err != nil {
		return err
	}
	if v.Label != "" {
		_ = g.s.Delete(labelKey(v.Kind, v.Label))
	}
	if v.Kind.IsInstance() && v.TypeID != "" {
		_ = g.s.Delete(instanceOfKey(v.TypeID, v.ID))
	}
	if err := g.s.Delete(vertexKey(id)); err != nil {
		return err
	}
	if v.Kind.IsType() {
		g.notifySchemaWrite()
	} else {
		g.notifyDataWrite()
	}
	return nil
}

// HasAnyInstance reports whether any instance of exactly the given type
// exists (not descendants — callers walk the SUB tree themselves).
func (g *Store) HasAnyInstance(typeID VertexID) (bool, error) {
	it, err := g.s.Iterate(instanceOfPrefix(typeID))
	if err != nil {
		return false, err
	}
	defer it.Close()
	return it.Next(), nil
}

// CreateTypeEdge adds an edge of kind between two type vertices, optionally
// carrying an overridden pointer. Idempotent: re-creating the
// same (kind, from, to) just updates the overridden annotation.
func (g *Store) CreateTypeEdge(kind EdgeKind, from, to VertexID, overridden VertexID) error {
	if err := g.s.Put(typeEdgeOutKey(kind, from, to), []byte(overridden)); err != nil {
		return fmt.Errorf("graph: writing out-edge: %w", err)
	}
	if err := g.s.Put(typeEdgeInKey(kind, to, from), []byte{}); err != nil {
		return fmt.Errorf("graph: writing in-edge: %w", err)
	}
	g.notifySchemaWrite()
	return nil
}

// DeleteTypeEdge removes an edge of kind between two type vertices.
func (g *Store) DeleteTypeEdge(kind EdgeKind, from, to VertexID) error {
	if err := g.s.Delete(typeEdgeOutKey(kind, from, to)); err != nil {
		return fmt.Errorf("graph: deleting out-edge: %w", err)
	}
	if err := g.s.Delete(typeEdgeInKey(kind, to, from)); err != nil {
		return fmt.Errorf("graph: deleting in-edge: %w", err)
	}
	g.notifySchemaWrite()
	return nil
}

// Outs returns the out-edges of kind from a type vertex.
func (g *Store) Outs(kind EdgeKind, from VertexID) ([]TypeEdge, error) {
	it, err := g.s.Iterate(typeEdgeOutPrefix(kind, from))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	prefix := typeEdgeOutPrefix(kind, from)
	var out []TypeEdge
	for it.Next() {
		key := it.Key()
		to := VertexID(key[len(prefix):])
		out = append(out, TypeEdge{To: to, Overridden: VertexID(it.Value())})
	}
	return out, nil
}

// Ins returns the vertices with an in-edge of kind to the given vertex.
func (g *Store) Ins(kind EdgeKind, to VertexID) ([]VertexID, error) {
	it, err := g.s.Iterate(typeEdgeInPrefix(kind, to))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	prefix := typeEdgeInPrefix(kind, to)
	var out []VertexID
	for it.Next() {
		key := it.Key()
		out = append(out, VertexID(key[len(prefix):]))
	}
	return out, nil
}

// HasOut reports whether a type edge of kind from->to exists, returning its
// overridden annotation if set.
func (g *Store) HasOut(kind EdgeKind, from, to VertexID) (overridden VertexID, ok bool) {
	v, err := g.s.Get(typeEdgeOutKey(kind, from, to))
	if err != nil {
		return "", false
	}
	return VertexID(v), true
}

// CreateRolePlayer adds an instance-level role-player edge.
func (g *Store) CreateRolePlayer(rp RolePlayer) error {
	if err := g.s.Put(rolePlayerKey(rp.Relation, rp.RoleType, rp.Repetition, rp.Player), []byte{}); err != nil {
		return err
	}
	if err := g.s.Put(rolePlayerPlayerKey(rp.Player, rp.Relation, rp.RoleType, rp.Repetition), []byte{}); err != nil {
		return err
	}
	g.notifyDataWrite()
	g.notifyRolePlayerCreated(rp)
	return nil
}

// DeleteRolePlayer removes an instance-level role-player edge.
func (g *Store) DeleteRolePlayer(rp RolePlayer) error {
	if err := g.s.Delete(rolePlayerKey(rp.Relation, rp.RoleType, rp.Repetition, rp.Player)); err != nil {
		return err
	}
	if err := g.s.Delete(rolePlayerPlayerKey(rp.Player, rp.Relation, rp.RoleType, rp.Repetition)); err != nil {
		return err
	}
	g.notifyDataWrite()
	return nil
}

// RolePlayersOf returns every role-player edge rooted at a relation.
func (g *Store) RolePlayersOf(relation VertexID) ([]RolePlayer, error) {
	it, err := g.s.Iterate(rolePlayerRelationPrefix(relation))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []RolePlayer
	for it.Next() {
		rp, err := parseRolePlayerKey(it.Key())
		if err != nil {
			return nil, err
		}
		rp.Relation = relation
		out = append(out, rp)
	}
	return out, nil
}

func parseRolePlayerKey(key []byte) (RolePlayer, error) {
	// prefixRolePlayer + relation + 0x00 + roleType + 0x00 + rep(4) + 0x00 + player
	// The repetition bytes may themselves contain 0x00, so only the two
	// leading variable-length fields are split on sep.
	rest := key[1:]
	parts := bytes.SplitN(rest, []byte{sep}, 3)
	if len(parts) != 3 {
		return RolePlayer{}, fmt.Errorf("graph: malformed role-player key")
	}
	tail := parts[2]
	if len(tail) < 5 || tail[4] != sep {
		return RolePlayer{}, fmt.Errorf("graph: malformed role-player repetition")
	}
	rep := binary.BigEndian.Uint32(tail[:4])
	return RolePlayer{
		RoleType:   VertexID(parts[1]),
		Repetition: int(rep),
		Player:     VertexID(tail[5:]),
	}, nil
}

// RolePlayersOfPlayer returns every role-player edge in which the given
// vertex participates as the player, across all relations.
func (g *Store) RolePlayersOfPlayer(player VertexID) ([]RolePlayer, error) {
	it, err := g.s.Iterate(rolePlayerPlayerPrefix(player))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []RolePlayer
	for it.Next() {
		rp, err := parseRolePlayerPlayerKey(it.Key())
		if err != nil {
			return nil, err
		}
		rp.Player = player
		out = append(out, rp)
	}
	return out, nil
}

func parseRolePlayerPlayerKey(key []byte) (RolePlayer, error) {
	// prefixRolePlayerP + player + 0x00 + relation + 0x00 + roleType + 0x00 + rep(4)
	rest := key[1:]
	parts := bytes.SplitN(rest, []byte{sep}, 4)
	if len(parts) != 4 {
		return RolePlayer{}, fmt.Errorf("graph: malformed role-player-by-player key")
	}
	if len(parts[3]) != 4 {
		return RolePlayer{}, fmt.Errorf("graph: malformed role-player-by-player repetition")
	}
	rep := binary.BigEndian.Uint32(parts[3])
	return RolePlayer{
		Relation:   VertexID(parts[1]),
		RoleType:   VertexID(parts[2]),
		Repetition: int(rep),
	}, nil
}
