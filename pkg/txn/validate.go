package txn

import (
	"errors"
	"fmt"

	"github.com/orneryd/graphkv/pkg/graph"
	"github.com/orneryd/graphkv/pkg/schema"
)

// rootIDs enumerates the well-known root vertices each kind's SUB-closure
// terminates at. A schema commit recursively validates every type
// reachable from each, skipping any root that has not been bootstrapped
// yet.
var rootIDs = []graph.VertexID{
	graph.RootThingID,
	graph.RootEntityID,
	graph.RootAttributeID,
	graph.RootRelationID,
	graph.RootRoleID,
}

// validateAllRoots runs schema.Lattice.Validate on every direct subtype of
// every bootstrapped root.
func validateAllRoots(store *graph.Store, lattice *schema.Lattice) error {
	for _, root := range rootIDs {
		if _, err := store.GetVertex(root); err != nil {
			if errors.Is(err, graph.ErrNotFound) {
				continue
			}
			return err
		}
		// Validate is a no-op on a root, so validation starts at each
		// root's direct subtypes and recurses from there.
		subs, err := store.Ins(graph.EdgeSub, root)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			if err := lattice.Validate(sub); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateDataInstances checks every instance vertex and role-player edge
// created by a data transaction against its pinned schema: an instance's
// type must exist and be concrete, and a role-player's role must be one
// the player's type actually plays.
func validateDataInstances(t *Transaction) error {
	if t.data == nil || t.data.cache == nil {
		return nil
	}
	schemaStore := t.data.cache.Store()
	lattice := t.data.cache.Lattice()

	for _, id := range t.data.createdInstances {
		v, err := t.store.GetVertex(id)
		if err != nil {
			return err
		}
		if v.TypeID == "" {
			continue
		}
		typeVertex, err := schemaStore.GetVertex(v.TypeID)
		if err != nil {
			if errors.Is(err, graph.ErrNotFound) {
				return fmt.Errorf("%w: type %q does not exist", ErrDataViolation, v.TypeID)
			}
			return err
		}
		if typeVertex.IsAbstract {
			return fmt.Errorf("%w: %q is abstract and cannot be instantiated", ErrDataViolation, typeVertex.Label)
		}
	}

	for _, rp := range t.data.createdRolePlayers {
		player, err := t.store.GetVertex(rp.Player)
		if err != nil {
			return err
		}
		if player.TypeID == "" {
			return fmt.Errorf("%w: role player %q has no declared type", ErrDataViolation, rp.Player)
		}
		plays, err := lattice.PlaysOf(player.TypeID)
		if err != nil {
			return err
		}
		if !containsVertexID(plays, rp.RoleType) {
			return fmt.Errorf("%w: %q does not play role %q", ErrDataViolation, player.TypeID, rp.RoleType)
		}
	}
	return nil
}

func containsVertexID(list []graph.VertexID, target graph.VertexID) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
