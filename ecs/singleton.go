package ecs

// Singleton provides cached access to a single component instance that is
// not associated with any entity. Use this for global game state,
// configuration, or other registry-wide data.
type Singleton[T any] struct {
	registry *Registry
	ptr      *T
}

// NewSingleton creates a new Singleton accessor for the given registry.
// If initializer is provided and the single component doesn't exist yet,
// it is created with the initializer value. Otherwise, a zero value is used.
// This guarantees the component exists after the call.
func NewSingleton[T any](registry *Registry, initializer ...T) *Singleton[T] {
	ptr := GetSingleComponent[T](registry)
	if ptr == nil {
		ptr = AssignSingleComponent[T](registry)
		if len(initializer) > 0 {
			*ptr = initializer[0]
		}
	}

	return &Singleton[T]{
		registry: registry,
		ptr:      ptr,
	}
}

// Init initializes the Singleton with a registry reference.
// This is called automatically by the Scheduler during system registration.
func (s *Singleton[T]) Init(registry *Registry) {
	s.registry = registry
	s.ptr = nil
}

// Get returns a pointer to the single component.
// Returns nil if it has not been assigned to the registry.
func (s *Singleton[T]) Get() *T {
	s.refresh()
	return s.ptr
}

// Exists returns true if the single component is present in the registry.
func (s *Singleton[T]) Exists() bool {
	s.refresh()
	return s.ptr != nil
}

// refresh re-reads the pointer; the component may have been removed or
// re-created since the last call.
func (s *Singleton[T]) refresh() {
	if s.registry == nil {
		return
	}
	s.ptr = GetSingleComponent[T](s.registry)
}
