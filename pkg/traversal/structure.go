// Package traversal implements the query planner's input graph: a
// mutable builder for a `Structure`, the undirected-but-directionally-
// annotated multigraph a planner partitions into disjoint connected
// components before execution. Nothing in this module or the rest of
// graphkv consumes a Structure further — it is the documented hand-off
// point to an out-of-scope planner/executor.
//
// Grounded on pkg/cypher/traversal.go's TraversalContext (visited-set
// bookkeeping, explicit adjacency walk), generalized from Cypher
// relationship-pattern matching to structure-vertex component
// partitioning, and on an arena-by-index discipline that resolves the
// vertex↔edge cyclic reference without owning pointers.
package traversal

import "github.com/orneryd/graphkv/pkg/graph"

// VertexKind partitions structure-vertices into thing and type vertices.
type VertexKind int

const (
	ThingVertexKind VertexKind = iota
	TypeVertexKind
)

// EdgeVariant distinguishes the four structure-edge shapes.
type EdgeVariant int

const (
	EqualEdge EdgeVariant = iota
	PredicateEdge
	NativeEdge
	RolePlayerEdge
)

// vertexRecord is the arena entry for one structure-vertex. Adjacency is
// held as edge indices into the owning Structure's edge arena, not owning
// references, to break the vertex↔edge cyclic reference without pointers.
type vertexRecord struct {
	id         string
	kind       VertexKind
	properties map[string]any
	out        []int
	in         []int
	loop       []int
}

// edgeRecord is the arena entry for one structure-edge. from/to are vertex
// indices; from == to for a self-edge, recorded only on that vertex's loop
// set.
type edgeRecord struct {
	variant     EdgeVariant
	from, to    int
	predicate   string
	nativeKind  graph.EdgeKind
	transitive  bool
	annotations map[string]string
	roleTypes   []string
	repetition  int
}

// Structure is a mutable query graph builder. The zero value is not
// usable; construct with New.
type Structure struct {
	vertices []vertexRecord
	edges    []edgeRecord
	index    map[string]int
}

// New returns an empty Structure.
func New() *Structure {
	return &Structure{index: make(map[string]int)}
}

// Vertex is a read-only view of one structure-vertex, returned by
// Vertices() and the get-or-create constructors.
type Vertex struct {
	ID         string
	Kind       VertexKind
	Properties map[string]any
}

// Edge is a read-only view of one structure-edge, returned by Edges().
type Edge struct {
	Variant     EdgeVariant
	From, To    string
	Predicate   string
	NativeKind  graph.EdgeKind
	Transitive  bool
	Annotations map[string]string
	RoleTypes   []string
	Repetition  int
}

func (s *Structure) view(idx int) Vertex {
	v := s.vertices[idx]
	return Vertex{ID: v.id, Kind: v.kind, Properties: v.properties}
}

func (s *Structure) edgeView(e edgeRecord) Edge {
	return Edge{
		Variant:     e.variant,
		From:        s.vertices[e.from].id,
		To:          s.vertices[e.to].id,
		Predicate:   e.predicate,
		NativeKind:  e.nativeKind,
		Transitive:  e.transitive,
		Annotations: e.annotations,
		RoleTypes:   e.roleTypes,
		Repetition:  e.repetition,
	}
}

// getOrCreate returns id's vertex index, creating it under kind if absent.
// Recreating an existing id under the opposite kind is a programming error
//: it panics rather than silently reinterpreting the vertex, the
// same way a type confusion elsewhere in this module would.
func (s *Structure) getOrCreate(id string, kind VertexKind) int {
	if idx, ok := s.index[id]; ok {
		if s.vertices[idx].kind != kind {
			panic("traversal: vertex " + id + " already exists with a different kind")
		}
		return idx
	}
	idx := len(s.vertices)
	s.vertices = append(s.vertices, vertexRecord{id: id, kind: kind})
	s.index[id] = idx
	return idx
}

// ThingVertex gets or creates the thing-kind vertex identified by id.
func (s *Structure) ThingVertex(id string) Vertex {
	return s.view(s.getOrCreate(id, ThingVertexKind))
}

// TypeVertex gets or creates the type-kind vertex identified by id.
func (s *Structure) TypeVertex(id string) Vertex {
	return s.view(s.getOrCreate(id, TypeVertexKind))
}

// SetProperty attaches a property to a variable-identified vertex's
// property bag, stored once and referenced.
func (s *Structure) SetProperty(id string, key string, value any) {
	idx, ok := s.index[id]
	if !ok {
		return
	}
	if s.vertices[idx].properties == nil {
		s.vertices[idx].properties = make(map[string]any)
	}
	s.vertices[idx].properties[key] = value
}

// addEdge records e on the appropriate adjacency sets: loop-only for a
// self-edge, else out on from and in on to.
func (s *Structure) addEdge(e edgeRecord) {
	idx := len(s.edges)
	s.edges = append(s.edges, e)
	if e.from == e.to {
		s.vertices[e.from].loop = append(s.vertices[e.from].loop, idx)
		return
	}
	s.vertices[e.from].out = append(s.vertices[e.from].out, idx)
	s.vertices[e.to].in = append(s.vertices[e.to].in, idx)
}

// EqualEdge appends an Equal edge between a and b (get-or-created as thing
// vertices if absent).
func (s *Structure) EqualEdge(a, b string) {
	fa := s.getOrCreate(a, ThingVertexKind)
	fb := s.getOrCreate(b, ThingVertexKind)
	s.addEdge(edgeRecord{variant: EqualEdge, from: fa, to: fb})
}

// PredicateEdge appends a Predicate edge between a and b carrying
// predicate's comparison operator (e.g. "=", ">", "contains").
func (s *Structure) PredicateEdge(a, b, predicate string) {
	fa := s.getOrCreate(a, ThingVertexKind)
	fb := s.getOrCreate(b, ThingVertexKind)
	s.addEdge(edgeRecord{variant: PredicateEdge, from: fa, to: fb, predicate: predicate})
}

// NativeEdge appends a Native edge from `from` to `to` of the given typed
// graph edge-kind, optionally transitive, with free-form
// annotations. An endpoint that already exists is used as it is, whatever
// its kind; an absent one is created as a type vertex.
func (s *Structure) NativeEdge(from, to string, kind graph.EdgeKind, transitive bool, annotations map[string]string) {
	ff, ok := s.index[from]
	if !ok {
		ff = s.getOrCreate(from, TypeVertexKind)
	}
	ft, ok := s.index[to]
	if !ok {
		ft = s.getOrCreate(to, TypeVertexKind)
	}
	s.addEdge(edgeRecord{
		variant:     NativeEdge,
		from:        ff,
		to:          ft,
		nativeKind:  kind,
		transitive:  transitive,
		annotations: annotations,
	})
}

// RolePlayerEdge appends a RolePlayer edge from the relation vertex `from`
// to the player vertex `to`, carrying the candidate role-type set and a
// repetition index.
func (s *Structure) RolePlayerEdge(from, to string, roleTypes []string, repetition int) {
	ff := s.getOrCreate(from, ThingVertexKind)
	ft := s.getOrCreate(to, ThingVertexKind)
	s.addEdge(edgeRecord{
		variant:    RolePlayerEdge,
		from:       ff,
		to:         ft,
		roleTypes:  roleTypes,
		repetition: repetition,
	})
}

// Vertices returns a read-only view of every structure-vertex.
func (s *Structure) Vertices() []Vertex {
	out := make([]Vertex, len(s.vertices))
	for i := range s.vertices {
		out[i] = s.view(i)
	}
	return out
}

// Edges returns a read-only view of every structure-edge.
func (s *Structure) Edges() []Edge {
	out := make([]Edge, len(s.edges))
	for i, e := range s.edges {
		out[i] = s.edgeView(e)
	}
	return out
}
