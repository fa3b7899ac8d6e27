package ecs

import (
	"reflect"
	"unsafe"
)

// zeroSized backs the pointer handed out for tag fields.
var zeroSized struct{}

// View maps one entity's components onto a struct of component pointers.
// The type T should be a struct with embedded or named pointer fields for
// each component type. Named fields can be marked as optional using the
// `ecs:"optional"` struct tag.
type View[T any] struct {
	registry    *Registry
	ids         []ComponentID
	optional    []bool
	fieldOffset []uintptr
}

// NewView creates a new view for the given struct type.
// Embedded fields are always required.
// Every component type must be registered with the registry's components.
func NewView[T any](registry *Registry) *View[T] {
	v := &View[T]{}
	v.Init(registry)
	return v
}

// Init parses T and binds the view to a registry.
// This is called automatically by the Scheduler during system registration.
func (v *View[T]) Init(registry *Registry) {
	structType := reflect.TypeFor[T]()

	if structType.Kind() != reflect.Struct {
		panic("ecs: View type parameter must be a struct")
	}

	v.registry = registry
	v.ids = make([]ComponentID, 0, structType.NumField())
	v.optional = make([]bool, 0, structType.NumField())
	v.fieldOffset = make([]uintptr, 0, structType.NumField())

	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		fieldType := field.Type

		if fieldType.Kind() != reflect.Ptr {
			panic("ecs: View struct fields must be pointer types")
		}

		componentType := fieldType.Elem()
		id, ok := registry.components.ids[componentType]
		if !ok {
			panic("ecs: component type " + componentType.String() + " not registered")
		}
		v.ids = append(v.ids, id)
		v.fieldOffset = append(v.fieldOffset, field.Offset)

		// Embedded fields (field.Anonymous) are always required
		isOptional := false
		if !field.Anonymous {
			tag := field.Tag.Get("ecs")
			if tag != "" {
				if tag == "optional" {
					isOptional = true
				} else {
					panic("ecs: invalid ecs tag value: \"" + tag + "\" (only \"optional\" is supported)")
				}
			}
		}
		v.optional = append(v.optional, isOptional)
	}
}

// Accesses returns the query accesses matching the view: Write for required
// fields and OptionalWrite for optional ones.
func (v *View[T]) Accesses() []Access {
	accesses := make([]Access, len(v.ids))
	for i, id := range v.ids {
		mode := AccessWrite
		if v.optional[i] {
			mode = AccessOptionalWrite
		}
		accesses[i] = Access{Mode: mode, Type: v.registry.components.Info(id).Type}
	}
	return accesses
}

// Fill populates the provided struct pointer with component data for the
// given entity. Returns false if the entity is missing any required
// components. Optional components are set to nil if not present.
func (v *View[T]) Fill(id EntityID, ptr *T) bool {
	v.registry.enter()
	defer v.registry.leave()

	storage, row, ok := v.registry.pool.GetArchetype(id)
	if !ok || storage == nil {
		return false
	}
	return v.populate(unsafe.Pointer(ptr), storage, row)
}

// FillChunk populates ptr from one row of a chunk produced by a query built
// from Accesses.
func (v *View[T]) FillChunk(c Chunk, row int, ptr *T) bool {
	if row < 0 || row >= c.Count {
		return false
	}
	return v.populate(unsafe.Pointer(ptr), c.storage, row)
}

// Get returns a populated view struct for the given entity, or nil if the
// entity doesn't have all the required components.
func (v *View[T]) Get(id EntityID) *T {
	var result T
	if !v.Fill(id, &result) {
		return nil
	}
	return &result
}

func (v *View[T]) populate(structPtr unsafe.Pointer, storage *ArchetypeStorage, row int) bool {
	arch := storage.Archetype()
	for i, id := range v.ids {
		fieldPtr := unsafe.Add(structPtr, v.fieldOffset[i])

		var componentPtr unsafe.Pointer
		if idx := arch.IndexOf(id); idx >= 0 {
			componentPtr = storage.cell(idx, row)
		} else if arch.HasTag(TagComponentID(id)) {
			componentPtr = unsafe.Pointer(&zeroSized)
		}

		if componentPtr == nil && !v.optional[i] {
			return false
		}
		*(*unsafe.Pointer)(fieldPtr) = componentPtr
	}
	return true
}
