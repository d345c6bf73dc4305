// Package graph implements the typed graph store: vertices and
// edges persisted as KV records, with adjacency indexed by edge-kind so
// vertex.Outs(kind) is O(result size).
//
// Grounded on pkg/storage/badger.go's key-prefix scheme and
// encodeNode/decodeNode JSON (de)serialization, generalized from a fixed
// node/edge schema to a typed vertex/edge schema carrying kind, label,
// abstractness, value-type, and edge overrides.
package graph

import (
	"encoding/json"
	"fmt"
)

// Kind is the vertex kind.
type Kind byte

const (
	KindThingType Kind = iota + 1
	KindEntityType
	KindAttributeType
	KindRelationType
	KindRoleType
	KindEntity
	KindAttribute
	KindRelation
	KindRole
)

func (k Kind) String() string {
	switch k {
	case KindThingType:
		return "THING_TYPE"
	case KindEntityType:
		return "ENTITY_TYPE"
	case KindAttributeType:
		return "ATTRIBUTE_TYPE"
	case KindRelationType:
		return "RELATION_TYPE"
	case KindRoleType:
		return "ROLE_TYPE"
	case KindEntity:
		return "ENTITY"
	case KindAttribute:
		return "ATTRIBUTE"
	case KindRelation:
		return "RELATION"
	case KindRole:
		return "ROLE"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// IsType reports whether k is one of the *_TYPE kinds.
func (k Kind) IsType() bool {
	switch k {
	case KindThingType, KindEntityType, KindAttributeType, KindRelationType, KindRoleType:
		return true
	}
	return false
}

// IsInstance reports whether k is one of the instance (non-type) kinds.
func (k Kind) IsInstance() bool {
	return !k.IsType()
}

// ValueType is the value type tag carried by attribute types.
type ValueType string

const (
	ValueTypeNone     ValueType = ""
	ValueTypeLong     ValueType = "long"
	ValueTypeDouble   ValueType = "double"
	ValueTypeString   ValueType = "string"
	ValueTypeBoolean  ValueType = "boolean"
	ValueTypeDateTime ValueType = "datetime"
)

// Keyable is the set of value types a KEY attribute may have.
var Keyable = map[ValueType]bool{
	ValueTypeLong:     true,
	ValueTypeString:   true,
	ValueTypeBoolean:  true,
	ValueTypeDateTime: true,
}

// EdgeKind is the edge kind.
type EdgeKind byte

const (
	EdgeSub EdgeKind = iota + 1
	EdgeHas
	EdgeKey
	EdgePlays
	EdgeRelates
	EdgePlaying
	EdgeRelating
	EdgeHasAttributeInstance
	EdgeRolePlayer
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeSub:
		return "SUB"
	case EdgeHas:
		return "HAS"
	case EdgeKey:
		return "KEY"
	case EdgePlays:
		return "PLAYS"
	case EdgeRelates:
		return "RELATES"
	case EdgePlaying:
		return "PLAYING"
	case EdgeRelating:
		return "RELATING"
	case EdgeHasAttributeInstance:
		return "HAS_ATTRIBUTE_INSTANCE"
	case EdgeRolePlayer:
		return "ROLE_PLAYER"
	default:
		return fmt.Sprintf("EdgeKind(%d)", k)
	}
}

// VertexID is the stable, KV-encoded identity of a vertex.
type VertexID string

// Well-known root-type vertex identities. Every kind's SUB-closure
// terminates at its own distinguished root.
const (
	RootThingID     VertexID = "root:thing"
	RootEntityID    VertexID = "root:entity"
	RootAttributeID VertexID = "root:attribute"
	RootRelationID  VertexID = "root:relation"
	RootRoleID      VertexID = "root:role"
)

// Vertex is a typed graph vertex.
type Vertex struct {
	ID         VertexID  `json:"id"`
	Kind       Kind      `json:"kind"`
	Label      string    `json:"label,omitempty"`      // types only
	IsAbstract bool      `json:"isAbstract,omitempty"` // types only
	ValueType  ValueType `json:"valueType,omitempty"`  // attribute types only
	IsRoot     bool      `json:"isRoot,omitempty"`
	TypeID     VertexID  `json:"typeId,omitempty"` // instances only: the type they are an instance of
}

func encodeVertex(v *Vertex) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("graph: encoding vertex: %w", err)
	}
	return data, nil
}

func decodeVertex(data []byte) (*Vertex, error) {
	var v Vertex
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("graph: decoding vertex: %w", err)
	}
	return &v, nil
}

// TypeEdge describes an out-edge of type kind EdgeKind from a type vertex,
// including its overridden annotation if any.
type TypeEdge struct {
	To         VertexID
	Overridden VertexID // empty if no override
}

// RolePlayer describes an instance-level role-player edge: the role
// type label and a repetition index let the same (relation, player) pair
// appear with the same role multiple times, distinguishably.
type RolePlayer struct {
	Relation   VertexID
	Player     VertexID
	RoleType   VertexID
	Repetition int
}
