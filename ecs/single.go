package ecs

import (
	"reflect"
	"unsafe"
)

type singleComponent struct {
	ptr     unsafe.Pointer
	release func()
}

// AssignSingleComponent returns the registry-wide instance of T, creating a
// zero value on first use. T follows the same pointer-free rule as entity
// components but does not need to be registered.
func AssignSingleComponent[T any](r *Registry) *T {
	t := reflect.TypeFor[T]()

	r.enter()
	defer r.leave()
	return (*T)(r.singleFor(t))
}

// singleFor returns the instance of t, creating a zero value on first use.
func (r *Registry) singleFor(t reflect.Type) unsafe.Pointer {
	if single, ok := r.singles[t]; ok {
		return single.ptr
	}
	if !isPointerFree(t) {
		panic("ecs: single component " + t.String() + " must not contain pointers")
	}

	value := reflect.New(t)
	single := &singleComponent{
		ptr: value.UnsafePointer(),
		release: func() {
			value.Elem().SetZero()
		},
	}
	r.singles[t] = single
	return single.ptr
}

// GetSingleComponent returns the instance of T, or nil when none exists.
func GetSingleComponent[T any](r *Registry) *T {
	r.enter()
	defer r.leave()

	single, ok := r.singles[reflect.TypeFor[T]()]
	if !ok {
		return nil
	}
	return (*T)(single.ptr)
}

// RemoveSingleComponent destroys the instance of T. Pointers previously
// returned for it observe a zero value afterwards.
func RemoveSingleComponent[T any](r *Registry) bool {
	t := reflect.TypeFor[T]()

	r.enter()
	defer r.leave()

	single, ok := r.singles[t]
	if !ok {
		return false
	}
	single.release()
	delete(r.singles, t)
	return true
}

// DestroyAllSingleComponents destroys every single component.
func (r *Registry) DestroyAllSingleComponents() {
	r.enter()
	defer r.leave()
	r.destroySingles()
}

// SingleComponentTypes returns the types of the live single components.
func (r *Registry) SingleComponentTypes() []reflect.Type {
	r.enter()
	defer r.leave()

	types := make([]reflect.Type, 0, len(r.singles))
	for t := range r.singles {
		types = append(types, t)
	}
	return types
}

func (r *Registry) destroySingles() {
	for t, single := range r.singles {
		single.release()
		delete(r.singles, t)
	}
}
