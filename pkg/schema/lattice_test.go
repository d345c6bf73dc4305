package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphkv/pkg/graph"
	"github.com/orneryd/graphkv/pkg/kv"
)

func newTestLattice(t *testing.T) *Lattice {
	t.Helper()
	e := kv.NewMemoryEngine()
	t.Cleanup(func() { e.Close() })
	tx, err := e.BeginTx(true)
	require.NoError(t, err)
	t.Cleanup(func() { tx.Close() })
	return NewLattice(graph.NewStore(tx))
}

func mustCreateType(t *testing.T, l *Lattice, id graph.VertexID, kind graph.Kind, label string, root bool) {
	t.Helper()
	require.NoError(t, l.store.CreateVertex(&graph.Vertex{ID: id, Kind: kind, Label: label, IsRoot: root}))
}

func mustCreateAttrType(t *testing.T, l *Lattice, id graph.VertexID, label string, vt graph.ValueType, root bool) {
	t.Helper()
	require.NoError(t, l.store.CreateVertex(&graph.Vertex{ID: id, Kind: graph.KindAttributeType, Label: label, ValueType: vt, IsRoot: root}))
}

// TestLattice_S1_InheritanceAndOverride mirrors scenario S1: person ⊂ entity,
// employee ⊂ person; name:string, full_name:string ⊂ name. person.has(name);
// employee.has(full_name, overriddenBy=name).
func TestLattice_S1_InheritanceAndOverride(t *testing.T) {
	l := newTestLattice(t)

	mustCreateType(t, l, "entity", graph.KindEntityType, "entity", true)
	mustCreateType(t, l, "person", graph.KindEntityType, "person", false)
	mustCreateType(t, l, "employee", graph.KindEntityType, "employee", false)
	mustCreateAttrType(t, l, "name", "name", graph.ValueTypeString, false)
	mustCreateAttrType(t, l, "full_name", "full_name", graph.ValueTypeString, false)
	mustCreateAttrType(t, l, "other_unrelated", "other_unrelated", graph.ValueTypeString, false)

	require.NoError(t, l.Sub("person", "entity"))
	require.NoError(t, l.Sub("employee", "person"))
	require.NoError(t, l.Sub("full_name", "name"))

	require.NoError(t, l.Has("person", "name", ""))
	require.NoError(t, l.Has("employee", "full_name", "name"))

	attrsEmployee, err := l.Attributes("employee")
	require.NoError(t, err)
	assert.Equal(t, []graph.VertexID{"full_name"}, attrsEmployee)

	attrsPerson, err := l.Attributes("person")
	require.NoError(t, err)
	assert.Equal(t, []graph.VertexID{"name"}, attrsPerson)

	err = l.Has("employee", "other_unrelated", "name")
	assert.ErrorIs(t, err, ErrInvalidOverrideNotSupertype)
}

// TestLattice_S2_KeyValueTypeGate mirrors scenario S2.
func TestLattice_S2_KeyValueTypeGate(t *testing.T) {
	l := newTestLattice(t)

	mustCreateType(t, l, "entity", graph.KindEntityType, "entity", true)
	mustCreateType(t, l, "person", graph.KindEntityType, "person", false)
	require.NoError(t, l.Sub("person", "entity"))

	mustCreateAttrType(t, l, "weight", "weight", graph.ValueTypeDouble, false)
	err := l.Key("person", "weight", "")
	assert.ErrorIs(t, err, ErrInvalidKeyValueType)

	mustCreateAttrType(t, l, "ssn", "ssn", graph.ValueTypeString, false)
	require.NoError(t, l.Key("person", "ssn", ""))

	err = l.Has("person", "ssn", "")
	assert.ErrorIs(t, err, ErrKeyHasConflict)
}

func TestLattice_RootTypeMutationGuard(t *testing.T) {
	l := newTestLattice(t)
	mustCreateType(t, l, "entity", graph.KindEntityType, "entity", true)

	assert.ErrorIs(t, l.SetLabel("entity", "renamed"), ErrInvalidRootTypeMutation)
	assert.ErrorIs(t, l.SetAbstract("entity", true), ErrInvalidRootTypeMutation)
	assert.ErrorIs(t, l.Sub("entity", "entity"), ErrInvalidRootTypeMutation)
}

func TestLattice_RedeclareWithoutOverrideFails(t *testing.T) {
	l := newTestLattice(t)

	mustCreateType(t, l, "entity", graph.KindEntityType, "entity", true)
	mustCreateType(t, l, "person", graph.KindEntityType, "person", false)
	mustCreateType(t, l, "employee", graph.KindEntityType, "employee", false)
	mustCreateAttrType(t, l, "name", "name", graph.ValueTypeString, false)

	require.NoError(t, l.Sub("person", "entity"))
	require.NoError(t, l.Sub("employee", "person"))
	require.NoError(t, l.Has("person", "name", ""))

	err := l.Has("employee", "name", "")
	assert.ErrorIs(t, err, ErrAttributeAlreadyDeclared)
}

func TestLattice_UnhasRemovesEdge(t *testing.T) {
	l := newTestLattice(t)

	mustCreateType(t, l, "entity", graph.KindEntityType, "entity", true)
	mustCreateType(t, l, "person", graph.KindEntityType, "person", false)
	require.NoError(t, l.Sub("person", "entity"))
	mustCreateAttrType(t, l, "name", "name", graph.ValueTypeString, false)

	require.NoError(t, l.Has("person", "name", ""))
	require.NoError(t, l.Unhas("person", "name"))

	attrs, err := l.Attributes("person")
	require.NoError(t, err)
	assert.Empty(t, attrs)

	// idempotent: unhas on an absent edge is not an error
	require.NoError(t, l.Unhas("person", "name"))
}

func TestLattice_DeleteFailsWithSubtypes(t *testing.T) {
	l := newTestLattice(t)

	mustCreateType(t, l, "entity", graph.KindEntityType, "entity", true)
	mustCreateType(t, l, "person", graph.KindEntityType, "person", false)
	require.NoError(t, l.Sub("person", "entity"))

	err := l.Delete("person")
	assert.NoError(t, err) // no subtypes of person yet

	mustCreateType(t, l, "person2", graph.KindEntityType, "person2", false)
	mustCreateType(t, l, "child", graph.KindEntityType, "child", false)
	require.NoError(t, l.Sub("person2", "entity"))
	require.NoError(t, l.Sub("child", "person2"))

	err = l.Delete("person2")
	assert.ErrorIs(t, err, ErrHasSubtypes)
}

func TestLattice_DeleteFailsWithInstances(t *testing.T) {
	l := newTestLattice(t)

	mustCreateType(t, l, "entity", graph.KindEntityType, "entity", true)
	mustCreateType(t, l, "person", graph.KindEntityType, "person", false)
	require.NoError(t, l.Sub("person", "entity"))

	require.NoError(t, l.store.CreateVertex(&graph.Vertex{ID: "alice", Kind: graph.KindEntity, TypeID: "person"}))

	err := l.Delete("person")
	assert.ErrorIs(t, err, ErrHasInstances)
}

func TestLattice_Validate_RootIsNoOp(t *testing.T) {
	l := newTestLattice(t)
	mustCreateType(t, l, "entity", graph.KindEntityType, "entity", true)
	assert.NoError(t, l.Validate("entity"))
}

func TestLattice_Validate_RecursesIntoSubtypes(t *testing.T) {
	l := newTestLattice(t)

	mustCreateType(t, l, "entity", graph.KindEntityType, "entity", true)
	mustCreateType(t, l, "person", graph.KindEntityType, "person", false)
	mustCreateType(t, l, "employee", graph.KindEntityType, "employee", false)
	require.NoError(t, l.Sub("person", "entity"))
	require.NoError(t, l.Sub("employee", "person"))

	assert.NoError(t, l.Validate("entity"))

	mustCreateAttrType(t, l, "weight", "weight", graph.ValueTypeDouble, false)
	require.NoError(t, l.store.CreateTypeEdge(graph.EdgeKey, "employee", "weight", ""))
	assert.ErrorIs(t, l.Validate("person"), ErrInvalidKeyValueType)
}
