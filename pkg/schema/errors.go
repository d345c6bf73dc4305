package schema

import "errors"

// Sentinel errors surfaced by type lattice operations.
var (
	ErrInvalidKeyValueType         = errors.New("schema: attribute value type is not keyable")
	ErrKeyHasConflict              = errors.New("schema: type may not both key and have the same attribute")
	ErrAttributeAlreadyDeclared    = errors.New("schema: attribute already declared or inherited without an override")
	ErrInvalidOverrideNotSupertype = errors.New("schema: override target is not a supertype of the new edge's target")
	ErrInvalidOverrideNotAvailable = errors.New("schema: override target is not ancestor-visible, or is already declared on this type")
	ErrInvalidRootTypeMutation     = errors.New("schema: root types may not be mutated")
	ErrHasSubtypes                 = errors.New("schema: type has proper subtypes")
	ErrHasInstances                = errors.New("schema: type has instances in its subtree")
	ErrNoParent                    = errors.New("schema: type has no SUB parent")
)
