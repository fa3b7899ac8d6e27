package ecs

import (
	"fmt"
	"reflect"
	"unsafe"
)

// MaxComponents is the number of distinct component and tag types a
// ComponentRegistry can hold. Ids share one space so they fit a single mask.
const MaxComponents = 256

// ComponentID identifies a registered component type.
type ComponentID uint16

// TagComponentID identifies a registered zero-size marker type. Tags are
// allocated from the same id space as data components.
type TagComponentID uint16

// ComponentInfo describes the memory layout of a registered component type.
type ComponentInfo struct {
	ID    ComponentID
	Size  uintptr
	Align uintptr
	Type  reflect.Type

	ctor func(unsafe.Pointer)
}

// IsTag reports whether the component carries no data.
func (c ComponentInfo) IsTag() bool { return c.Size == 0 }

// HasData reports whether the component occupies a column.
func (c ComponentInfo) HasData() bool { return c.Size > 0 }

// Construct default-constructs the component at ptr.
func (c ComponentInfo) Construct(ptr unsafe.Pointer) {
	if c.ctor != nil {
		c.ctor(ptr)
	}
}

// ComponentRegistry manages component type registration for an ECS instance.
// Each Registry is created with its own ComponentRegistry, allowing multiple
// independent ECS systems to coexist without interference. The same
// ComponentRegistry may be shared by several Registries.
type ComponentRegistry struct {
	ids   map[reflect.Type]ComponentID
	infos []ComponentInfo
}

// NewComponentRegistry creates a new component registry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{
		ids: make(map[reflect.Type]ComponentID),
	}
}

// RegisterComponent registers a new component type with the given registry
// and returns its id. Zero-size types are registered as tags.
// Registering the same type twice returns the existing id.
func RegisterComponent[T any](r *ComponentRegistry) ComponentID {
	return register[T](r, nil)
}

// RegisterComponentFunc registers T with a custom default constructor. The
// constructor runs on zeroed memory every time a row is created for T.
func RegisterComponentFunc[T any](r *ComponentRegistry, ctor func(*T)) ComponentID {
	return register(r, ctor)
}

// RegisterTag registers the zero-size marker type T and returns its tag id.
func RegisterTag[T any](r *ComponentRegistry) TagComponentID {
	id := register[T](r, nil)
	if r.infos[id].HasData() {
		panic("ecs: tag type " + r.infos[id].Type.String() + " is not zero-size")
	}
	return TagComponentID(id)
}

func register[T any](r *ComponentRegistry, ctor func(*T)) ComponentID {
	t := reflect.TypeFor[T]()
	if id, ok := r.ids[t]; ok {
		return id
	}
	if len(r.infos) >= MaxComponents {
		panic(fmt.Sprintf("ecs: cannot register component %s: maximum number of component types (%d) reached", t, MaxComponents))
	}
	if !isPointerFree(t) {
		panic("ecs: component type " + t.String() + " must not contain pointers, slices, maps, strings, interfaces, channels or functions")
	}

	info := ComponentInfo{
		ID:    ComponentID(len(r.infos)),
		Size:  t.Size(),
		Align: uintptr(t.Align()),
		Type:  t,
	}
	if info.Size > 0 {
		if ctor != nil {
			info.ctor = func(p unsafe.Pointer) {
				var zero T
				*(*T)(p) = zero
				ctor((*T)(p))
			}
		} else {
			info.ctor = func(p unsafe.Pointer) {
				var zero T
				*(*T)(p) = zero
			}
		}
	}

	r.ids[t] = info.ID
	r.infos = append(r.infos, info)
	return info.ID
}

// ComponentIDOf returns the id T was registered with.
func ComponentIDOf[T any](r *ComponentRegistry) (ComponentID, bool) {
	id, ok := r.ids[reflect.TypeFor[T]()]
	return id, ok
}

// mustID returns the id of T or panics if T was never registered.
func mustID[T any](r *ComponentRegistry) ComponentID {
	t := reflect.TypeFor[T]()
	id, ok := r.ids[t]
	if !ok {
		panic("ecs: component type " + t.String() + " not registered")
	}
	return id
}

// Info returns the layout of a registered component.
func (r *ComponentRegistry) Info(id ComponentID) ComponentInfo {
	if int(id) >= len(r.infos) {
		panic(fmt.Sprintf("ecs: unknown component id %d", id))
	}
	return r.infos[id]
}

// Count returns the number of registered types.
func (r *ComponentRegistry) Count() int {
	return len(r.infos)
}

// isPointerFree reports whether values of t can be copied as raw bytes and
// dropped without running any destructor or informing the garbage collector.
func isPointerFree(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return t.Len() == 0 || isPointerFree(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !isPointerFree(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
