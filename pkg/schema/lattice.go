// Package schema implements the override-aware type lattice: the
// standard lattice edits (label, is_abstract, sub), the KEY/HAS/PLAYS edges
// with their override annotations, and the transitive keys/attributes/plays
// visibility queries.
//
// Grounded on pkg/storage/schema.go's mutex-free, read-mostly style
// (SchemaManager there validates Neo4j-style UNIQUE/NODE_KEY/EXISTS
// constraints over a flat label space; this generalizes that validation
// idiom to a true type lattice with inheritance and override).
package schema

import (
	"fmt"

	"github.com/orneryd/graphkv/pkg/graph"
)

// Lattice operates the type lattice over a typed graph store. One Lattice
// is constructed per transaction, atop that transaction's storage view.
type Lattice struct {
	store *graph.Store
}

// NewLattice wraps a graph.Store in a Lattice.
func NewLattice(store *graph.Store) *Lattice {
	return &Lattice{store: store}
}

func (l *Lattice) requireNotRoot(t graph.VertexID) (*graph.Vertex, error) {
	v, err := l.store.GetVertex(t)
	if err != nil {
		return nil, err
	}
	if v.IsRoot {
		return nil, ErrInvalidRootTypeMutation
	}
	return v, nil
}

// Label returns a type's label.
func (l *Lattice) Label(t graph.VertexID) (string, error) {
	v, err := l.store.GetVertex(t)
	if err != nil {
		return "", err
	}
	return v.Label, nil
}

// SetLabel renames a type.
func (l *Lattice) SetLabel(t graph.VertexID, label string) error {
	if _, err := l.requireNotRoot(t); err != nil {
		return err
	}
	return l.store.SetLabel(t, label)
}

// IsAbstract reports a type's abstractness.
func (l *Lattice) IsAbstract(t graph.VertexID) (bool, error) {
	v, err := l.store.GetVertex(t)
	if err != nil {
		return false, err
	}
	return v.IsAbstract, nil
}

// SetAbstract marks a type abstract or concrete.
func (l *Lattice) SetAbstract(t graph.VertexID, abstract bool) error {
	if _, err := l.requireNotRoot(t); err != nil {
		return err
	}
	return l.store.SetAbstract(t, abstract)
}

// Parent returns t's SUB parent, if any (false for root types).
func (l *Lattice) Parent(t graph.VertexID) (graph.VertexID, bool, error) {
	outs, err := l.store.Outs(graph.EdgeSub, t)
	if err != nil {
		return "", false, err
	}
	if len(outs) == 0 {
		return "", false, nil
	}
	return outs[0].To, true, nil
}

// Sub sets t's SUB parent, replacing any existing one.
func (l *Lattice) Sub(t, parent graph.VertexID) error {
	if _, err := l.requireNotRoot(t); err != nil {
		return err
	}
	if existing, ok, err := l.Parent(t); err != nil {
		return err
	} else if ok {
		if err := l.store.DeleteTypeEdge(graph.EdgeSub, t, existing); err != nil {
			return err
		}
	}
	return l.store.CreateTypeEdge(graph.EdgeSub, t, parent, "")
}

// isSubtypeOrEqual reports whether x equals y or y appears in x's SUB
// ancestor chain: an overriding edge's target must be a subtype
// (inclusive) of the overridden edge's target.
func (l *Lattice) isSubtypeOrEqual(x, y graph.VertexID) (bool, error) {
	cur := x
	for {
		if cur == y {
			return true, nil
		}
		parent, ok, err := l.Parent(cur)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		cur = parent
	}
}

// declaredEdges concatenates a type's own out-edges across the given kinds.
func (l *Lattice) declaredEdges(t graph.VertexID, kinds ...graph.EdgeKind) ([]graph.TypeEdge, error) {
	var out []graph.TypeEdge
	for _, k := range kinds {
		edges, err := l.store.Outs(k, t)
		if err != nil {
			return nil, err
		}
		out = append(out, edges...)
	}
	return out, nil
}

// visible computes the override-aware transitive closure over the given
// edge kinds: declared-first, then inherited-minus-overridden in
// ancestor order from nearest to furthest.
func (l *Lattice) visible(t graph.VertexID, kinds ...graph.EdgeKind) ([]graph.VertexID, error) {
	declared, err := l.declaredEdges(t, kinds...)
	if err != nil {
		return nil, err
	}

	overriddenAtT := make(map[graph.VertexID]bool)
	declaredSet := make(map[graph.VertexID]bool)
	result := make([]graph.VertexID, 0, len(declared))
	for _, e := range declared {
		result = append(result, e.To)
		declaredSet[e.To] = true
		if e.Overridden != "" {
			overriddenAtT[e.Overridden] = true
		}
	}

	parent, ok, err := l.Parent(t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return result, nil
	}

	inherited, err := l.visible(parent, kinds...)
	if err != nil {
		return nil, err
	}
	for _, a := range inherited {
		if overriddenAtT[a] || declaredSet[a] {
			continue
		}
		result = append(result, a)
	}
	return result, nil
}

// Keys returns the override-aware visible key set of t.
func (l *Lattice) Keys(t graph.VertexID) ([]graph.VertexID, error) {
	return l.visible(t, graph.EdgeKey)
}

// Attributes returns the override-aware visible attribute set of t (the
// union of KEY and HAS).
func (l *Lattice) Attributes(t graph.VertexID) ([]graph.VertexID, error) {
	return l.visible(t, graph.EdgeKey, graph.EdgeHas)
}

// PlaysOf returns the override-aware visible role set of t.
func (l *Lattice) PlaysOf(t graph.VertexID) ([]graph.VertexID, error) {
	return l.visible(t, graph.EdgePlays)
}

// checkOverride validates the shared precondition for key/has/plays with an
// explicit override: the override target must be ancestor-visible, must not
// already be declared on t, and the new edge's target must be a subtype
// (inclusive) of it.
func (l *Lattice) checkOverride(t, newTarget, overridden graph.VertexID, inheritedVisible []graph.VertexID, declaredAtT []graph.TypeEdge) error {
	visibleFromParent := make(map[graph.VertexID]bool, len(inheritedVisible))
	for _, a := range inheritedVisible {
		visibleFromParent[a] = true
	}
	for _, e := range declaredAtT {
		if e.To == overridden {
			return ErrInvalidOverrideNotAvailable
		}
	}
	if !visibleFromParent[overridden] {
		return ErrInvalidOverrideNotAvailable
	}
	ok, err := l.isSubtypeOrEqual(newTarget, overridden)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidOverrideNotSupertype
	}
	return nil
}

// Key installs a KEY edge from t to attr, optionally overriding an
// ancestor-visible attribute.
func (l *Lattice) Key(t, attr, overridden graph.VertexID) error {
	if _, err := l.requireNotRoot(t); err != nil {
		return err
	}
	attrVertex, err := l.store.GetVertex(attr)
	if err != nil {
		return err
	}
	if !graph.Keyable[attrVertex.ValueType] {
		return ErrInvalidKeyValueType
	}
	if _, hasAlready := l.store.HasOut(graph.EdgeHas, t, attr); hasAlready {
		return ErrKeyHasConflict
	}

	if err := l.checkRedeclare(t, attr, overridden, graph.EdgeKey, graph.EdgeHas); err != nil {
		return err
	}
	return l.store.CreateTypeEdge(graph.EdgeKey, t, attr, overridden)
}

// Has installs a HAS edge from t to attr, optionally overriding an
// ancestor-visible attribute. Mutually exclusive with Key on the
// same attribute.
func (l *Lattice) Has(t, attr, overridden graph.VertexID) error {
	if _, err := l.requireNotRoot(t); err != nil {
		return err
	}
	if _, err := l.store.GetVertex(attr); err != nil {
		return err
	}
	if _, keyedAlready := l.store.HasOut(graph.EdgeKey, t, attr); keyedAlready {
		return ErrKeyHasConflict
	}

	if err := l.checkRedeclare(t, attr, overridden, graph.EdgeKey, graph.EdgeHas); err != nil {
		return err
	}
	return l.store.CreateTypeEdge(graph.EdgeHas, t, attr, overridden)
}

// Plays installs a PLAYS edge from t to role, optionally overriding an
// ancestor-visible role.
func (l *Lattice) Plays(t, role, overridden graph.VertexID) error {
	if _, err := l.requireNotRoot(t); err != nil {
		return err
	}
	if _, err := l.store.GetVertex(role); err != nil {
		return err
	}
	if err := l.checkRedeclare(t, role, overridden, graph.EdgePlays); err != nil {
		return err
	}
	return l.store.CreateTypeEdge(graph.EdgePlays, t, role, overridden)
}

// checkRedeclare enforces: without an override, target must not already be
// visible (declared or inherited) via any of kinds; with an override, the
// override target must satisfy checkOverride.
func (l *Lattice) checkRedeclare(t, target, overridden graph.VertexID, kinds ...graph.EdgeKind) error {
	declaredAtT, err := l.declaredEdges(t, kinds...)
	if err != nil {
		return err
	}
	parent, ok, err := l.Parent(t)
	if err != nil {
		return err
	}
	var inherited []graph.VertexID
	if ok {
		inherited, err = l.visible(parent, kinds...)
		if err != nil {
			return err
		}
	}

	if overridden == "" {
		for _, a := range inherited {
			if a == target {
				return ErrAttributeAlreadyDeclared
			}
		}
		return nil
	}
	return l.checkOverride(t, target, overridden, inherited, declaredAtT)
}

// Unkey removes t's KEY edge to attr, if present.
func (l *Lattice) Unkey(t, attr graph.VertexID) error {
	if _, err := l.requireNotRoot(t); err != nil {
		return err
	}
	return l.store.DeleteTypeEdge(graph.EdgeKey, t, attr)
}

// Unhas removes t's HAS edge to attr, if present.
func (l *Lattice) Unhas(t, attr graph.VertexID) error {
	if _, err := l.requireNotRoot(t); err != nil {
		return err
	}
	return l.store.DeleteTypeEdge(graph.EdgeHas, t, attr)
}

// Unplay removes t's PLAYS edge to role, if present.
func (l *Lattice) Unplay(t, role graph.VertexID) error {
	if _, err := l.requireNotRoot(t); err != nil {
		return err
	}
	return l.store.DeleteTypeEdge(graph.EdgePlays, t, role)
}

// Delete removes a type, failing if it has proper subtypes or any instance
// in its subtree.
func (l *Lattice) Delete(t graph.VertexID) error {
	if _, err := l.requireNotRoot(t); err != nil {
		return err
	}
	subs, err := l.store.Ins(graph.EdgeSub, t)
	if err != nil {
		return err
	}
	if len(subs) > 0 {
		return ErrHasSubtypes
	}
	hasInstances, err := l.store.HasAnyInstance(t)
	if err != nil {
		return err
	}
	if hasInstances {
		return ErrHasInstances
	}

	for _, k := range []graph.EdgeKind{graph.EdgeSub, graph.EdgeKey, graph.EdgeHas, graph.EdgePlays} {
		edges, err := l.declaredEdges(t, k)
		if err != nil {
			return err
		}
		for _, e := range edges {
			if err := l.store.DeleteTypeEdge(k, t, e.To); err != nil {
				return err
			}
		}
	}
	return l.store.DeleteVertex(t)
}

// Validate recursively validates subtype constraints from t downward;
// root types are no-ops.
func (l *Lattice) Validate(t graph.VertexID) error {
	v, err := l.store.GetVertex(t)
	if err != nil {
		return err
	}
	if v.IsRoot {
		return nil
	}

	declaredKeys, err := l.declaredEdges(t, graph.EdgeKey)
	if err != nil {
		return err
	}
	for _, e := range declaredKeys {
		attr, err := l.store.GetVertex(e.To)
		if err != nil {
			return err
		}
		if !graph.Keyable[attr.ValueType] {
			return fmt.Errorf("%w: %q", ErrInvalidKeyValueType, attr.Label)
		}
		if _, hasToo := l.store.HasOut(graph.EdgeHas, t, e.To); hasToo {
			return fmt.Errorf("%w: %q", ErrKeyHasConflict, attr.Label)
		}
	}

	subs, err := l.store.Ins(graph.EdgeSub, t)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := l.Validate(sub); err != nil {
			return err
		}
	}
	return nil
}
